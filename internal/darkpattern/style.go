package darkpattern

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"golang.org/x/net/html"

	"github.com/ppiankov/verity/internal/page"
)

// rootFontSize is the initial font-size in px
const rootFontSize = 16.0

var fontSizeKeywords = map[string]float64{
	"xx-small": 9,
	"x-small":  10,
	"small":    13,
	"medium":   16,
	"large":    18,
	"x-large":  24,
	"xx-large": 32,
}

var fontShorthandSize = regexp.MustCompile(`(?:^|\s)((?:\d*\.)?\d+(?:px|em|rem|pt|%)|xx-small|x-small|small|medium|large|x-large|xx-large|smaller|larger)(?:/\S+)?(?:\s|$)`)

type styleRule struct {
	selector cascadia.Sel
	decls    []*css.Declaration
	order    int
}

// candidate is one declared value competing in the cascade
type candidate struct {
	value     string
	important bool
	inline    bool
	spec      cascadia.Specificity
	order     int
}

func (c candidate) beats(o candidate) bool {
	if c.important != o.important {
		return c.important
	}
	if c.inline != o.inline {
		return c.inline
	}
	if c.spec != o.spec {
		return o.spec.Less(c.spec)
	}
	return c.order > o.order
}

// Styles resolves computed font-size and opacity from the page's author
// stylesheets and inline style attributes. It is built fresh per detection
// pass and memoizes per node.
type Styles struct {
	rules    []styleRule
	fontSize map[*html.Node]float64
	opacity  map[*html.Node]float64
}

// NewStyles collects every <style> sheet in doc in source order
func NewStyles(doc *page.Document) *Styles {
	s := &Styles{
		fontSize: make(map[*html.Node]float64),
		opacity:  make(map[*html.Node]float64),
	}

	order := 0
	doc.Query().Find("style").Each(func(_ int, sel *goquery.Selection) {
		sheet, err := parser.Parse(sel.Text())
		if err != nil {
			return
		}
		s.addRules(sheet.Rules, &order)
	})
	return s
}

func (s *Styles) addRules(rules []*css.Rule, order *int) {
	for _, rule := range rules {
		if rule.Kind == css.AtRule {
			// Media blocks are assumed to apply; other at-rules carry no element styles
			if rule.Name == "@media" || rule.Name == "@supports" {
				s.addRules(rule.Rules, order)
			}
			continue
		}
		for _, text := range rule.Selectors {
			group, err := cascadia.ParseGroup(text)
			if err != nil {
				continue
			}
			for _, sel := range group {
				if sel.PseudoElement() != "" {
					continue
				}
				*order++
				s.rules = append(s.rules, styleRule{selector: sel, decls: rule.Declarations, order: *order})
			}
		}
	}
}

// cascaded returns the winning declared value of prop on n, if any.
// A font shorthand contributes its size to font-size.
func (s *Styles) cascaded(n *html.Node, prop string) (string, bool) {
	var best candidate
	found := false

	consider := func(c candidate) {
		if !found || c.beats(best) {
			best = c
			found = true
		}
	}

	for _, r := range s.rules {
		if !r.selector.Match(n) {
			continue
		}
		for _, d := range r.decls {
			if v, ok := declValue(d, prop); ok {
				consider(candidate{value: v, important: d.Important, spec: r.selector.Specificity(), order: r.order})
			}
		}
	}

	if inline, ok := page.Attr(n, "style"); ok {
		decls, err := parseInline(inline)
		if err == nil {
			for i, d := range decls {
				if v, ok := declValue(d, prop); ok {
					consider(candidate{value: v, important: d.Important, inline: true, order: i})
				}
			}
		}
	}

	return best.value, found
}

// parseInline parses a style attribute. The parser drops a final declaration
// that has no terminating semicolon, so one is added.
func parseInline(style string) ([]*css.Declaration, error) {
	style = strings.TrimSpace(style)
	if style != "" && !strings.HasSuffix(style, ";") {
		style += ";"
	}
	return parser.ParseDeclarations(style)
}

func declValue(d *css.Declaration, prop string) (string, bool) {
	name := strings.ToLower(strings.TrimSpace(d.Property))
	value := strings.ToLower(strings.TrimSpace(d.Value))
	if name == prop {
		return value, true
	}
	if prop == "font-size" && name == "font" {
		if m := fontShorthandSize.FindStringSubmatch(value); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// FontSize returns the computed font-size of n in px
func (s *Styles) FontSize(n *html.Node) float64 {
	if n == nil || n.Type != html.ElementNode {
		return rootFontSize
	}
	if v, ok := s.fontSize[n]; ok {
		return v
	}

	parent := rootFontSize
	if n.Parent != nil && n.Parent.Type == html.ElementNode {
		parent = s.FontSize(n.Parent)
	}

	size := parent
	if value, ok := s.cascaded(n, "font-size"); ok {
		size = resolveFontSize(value, parent)
	}
	s.fontSize[n] = size
	return size
}

func resolveFontSize(value string, parent float64) float64 {
	switch value {
	case "inherit", "unset":
		return parent
	case "initial":
		return rootFontSize
	case "smaller":
		return parent / 1.2
	case "larger":
		return parent * 1.2
	}
	if px, ok := fontSizeKeywords[value]; ok {
		return px
	}

	for _, unit := range []struct {
		suffix string
		scale  float64
	}{
		{"rem", rootFontSize},
		{"px", 1},
		{"em", parent},
		{"pt", 4.0 / 3.0},
		{"%", parent / 100},
	} {
		if num, ok := strings.CutSuffix(value, unit.suffix); ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(num), 64); err == nil && f >= 0 {
				return f * unit.scale
			}
			return parent
		}
	}
	return parent
}

// Opacity returns the computed opacity of n. Opacity is not inherited, so
// this is the element's own value, 1 when unset.
func (s *Styles) Opacity(n *html.Node) float64 {
	if n == nil || n.Type != html.ElementNode {
		return 1
	}
	if v, ok := s.opacity[n]; ok {
		return v
	}

	opacity := 1.0
	if value, ok := s.cascaded(n, "opacity"); ok {
		switch {
		case value == "inherit":
			opacity = s.Opacity(n.Parent)
		case strings.HasSuffix(value, "%"):
			if f, err := strconv.ParseFloat(strings.TrimSuffix(value, "%"), 64); err == nil {
				opacity = f / 100
			}
		default:
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				opacity = f
			}
		}
	}
	opacity = min(max(opacity, 0), 1)
	s.opacity[n] = opacity
	return opacity
}

// setInlineStyle merges props into n's style attribute, replacing earlier
// values of the same properties and keeping the rest
func setInlineStyle(n *html.Node, props [][2]string) {
	var kept []string
	if existing, ok := page.Attr(n, "style"); ok {
		if decls, err := parseInline(existing); err == nil {
			for _, d := range decls {
				if !hasProp(props, strings.ToLower(d.Property)) {
					kept = append(kept, d.String())
				}
			}
		}
	}
	for _, p := range props {
		kept = append(kept, p[0]+": "+p[1]+";")
	}
	page.SetAttr(n, "style", strings.Join(kept, " "))
}

func hasProp(props [][2]string, name string) bool {
	for _, p := range props {
		if p[0] == name {
			return true
		}
	}
	return false
}
