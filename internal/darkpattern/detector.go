// Package darkpattern scans a page for manipulative UI: resetting countdowns,
// artificial scarcity and subscription terms hidden by styling. Detectors keep
// no state between calls; scarcity and subscription findings also restyle the
// offending elements in place.
package darkpattern

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/ppiankov/verity/internal/metrics"
	"github.com/ppiankov/verity/internal/model"
	"github.com/ppiankov/verity/internal/page"
)

// Finding messages
const (
	MessageFakeCountdown      = "Fake countdown timer detected - this timer may reset"
	MessageFakeScarcity       = "Potential artificial scarcity detected"
	MessageHiddenSubscription = "Hidden subscription terms detected"
)

const (
	countdownSelector = `[class*="count"], [class*="timer"], [id*="count"], [id*="timer"]`
	timerPrimitive    = "setInterval"

	minFontSize = 12.0
	minOpacity  = 0.7

	maxFindingText = 120
)

var (
	clockPattern    = regexp.MustCompile(`\d+:\d+:\d+`)
	durationPattern = regexp.MustCompile(`\d+\s*(hours?|minutes?|seconds?)`)

	scarcityPhrases = []*regexp.Regexp{
		regexp.MustCompile(`(?i)only \d+ left`),
		regexp.MustCompile(`(?i)\d+ people are viewing`),
		regexp.MustCompile(`(?i)limited (time|stock|offer)`),
		regexp.MustCompile(`(?i)hurry.*limited`),
		regexp.MustCompile(`(?i)last chance`),
		regexp.MustCompile(`(?i)selling fast`),
	}

	subscriptionTerms = []string{"auto-renew", "recurring", "subscription", "monthly fee", "annual fee"}

	scarcityHighlight = [][2]string{
		{"outline", "2px dashed #FFB300"},
		{"background-color", "rgba(255, 179, 0, 0.1)"},
	}

	subscriptionRemediation = [][2]string{
		{"font-size", "14px"},
		{"opacity", "1"},
		{"background-color", "rgba(255, 61, 0, 0.1)"},
		{"padding", "8px"},
	}
)

// Detector runs all three detectors over a page
type Detector struct {
	logger *slog.Logger
}

// NewDetector creates a detector
func NewDetector(logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{logger: logger}
}

// Detect returns countdown, scarcity and hidden subscription findings, in that order
func (d *Detector) Detect(doc *page.Document) []model.Finding {
	var findings []model.Finding
	findings = append(findings, DetectCountdowns(doc)...)
	findings = append(findings, DetectScarcity(doc)...)
	findings = append(findings, DetectHiddenSubscriptions(doc, NewStyles(doc))...)

	for _, f := range findings {
		metrics.Findings.WithLabelValues(string(f.Type)).Inc()
	}
	if len(findings) > 0 {
		d.logger.Info("dark patterns detected", "url", doc.URL(), "count", len(findings))
	}
	return findings
}

// DetectCountdowns flags timer-like elements showing a clock or duration when
// some page script both runs a recurring timer and references the element's
// class or id token. A static countdown is not flagged.
func DetectCountdowns(doc *page.Document) []model.Finding {
	var scripts []string
	doc.Query().Find("script").Each(func(_ int, s *goquery.Selection) {
		if text := s.Text(); strings.Contains(text, timerPrimitive) {
			scripts = append(scripts, text)
		}
	})
	if len(scripts) == 0 {
		return nil
	}

	var findings []model.Finding
	doc.Query().Find(countdownSelector).Each(func(_ int, sel *goquery.Selection) {
		n := sel.Nodes[0]
		text := strings.ToLower(sel.Text())
		if !clockPattern.MatchString(text) && !durationPattern.MatchString(text) {
			return
		}

		tokens := timerTokens(n)
		for _, script := range scripts {
			if referencesAny(script, tokens) {
				findings = append(findings, newFinding(model.FindingFakeCountdown, model.SeverityHigh, MessageFakeCountdown, n))
				return
			}
		}
	})
	return findings
}

// timerTokens returns the class tokens that made n a candidate plus its id
func timerTokens(n *html.Node) []string {
	var tokens []string
	if class, ok := page.Attr(n, "class"); ok {
		for _, c := range strings.Fields(class) {
			if strings.Contains(c, "count") || strings.Contains(c, "timer") {
				tokens = append(tokens, c)
			}
		}
	}
	if id, ok := page.Attr(n, "id"); ok && strings.TrimSpace(id) != "" {
		tokens = append(tokens, strings.TrimSpace(id))
	}
	return tokens
}

func referencesAny(script string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(script, t) {
			return true
		}
	}
	return false
}

// DetectScarcity flags leaf elements whose text matches a scarcity phrase,
// one finding per element, and outlines each flagged element
func DetectScarcity(doc *page.Document) []model.Finding {
	body := doc.Body()
	pageText := strings.ToLower(page.VisibleText(body))

	var active []*regexp.Regexp
	for _, p := range scarcityPhrases {
		if p.MatchString(pageText) {
			active = append(active, p)
		}
	}
	if len(active) == 0 {
		return nil
	}

	var findings []model.Finding
	eachElement(body, func(n *html.Node) {
		if hasElementChild(n) {
			return
		}
		text := page.VisibleText(n)
		for _, p := range active {
			if p.MatchString(text) {
				findings = append(findings, newFinding(model.FindingFakeScarcity, model.SeverityMedium, MessageFakeScarcity, n))
				setInlineStyle(n, scarcityHighlight)
				return
			}
		}
	})
	return findings
}

// DetectHiddenSubscriptions flags elements mentioning subscription terms whose
// computed font-size is below 12px or opacity below 0.7. Every flagged element
// is then made readable in place. Styles are evaluated before any remediation.
func DetectHiddenSubscriptions(doc *page.Document, styles *Styles) []model.Finding {
	body := doc.Body()
	if !containsAnyTerm(strings.ToLower(page.VisibleText(body))) {
		return nil
	}

	var flagged []*html.Node
	eachElement(body, func(n *html.Node) {
		if !containsAnyTerm(strings.ToLower(page.VisibleText(n))) {
			return
		}
		if styles.FontSize(n) < minFontSize || styles.Opacity(n) < minOpacity {
			flagged = append(flagged, n)
		}
	})

	findings := make([]model.Finding, 0, len(flagged))
	for _, n := range flagged {
		findings = append(findings, newFinding(model.FindingHiddenSubscription, model.SeverityHigh, MessageHiddenSubscription, n))
		setInlineStyle(n, subscriptionRemediation)
	}
	return findings
}

func containsAnyTerm(lower string) bool {
	for _, term := range subscriptionTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// eachElement visits rendered elements under root (inclusive) in document order
func eachElement(root *html.Node, visit func(*html.Node)) {
	if root.Type == html.ElementNode {
		switch root.Data {
		case "script", "style", "noscript", "template", "head":
			return
		}
		visit(root)
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		eachElement(c, visit)
	}
}

func hasElementChild(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return true
		}
	}
	return false
}

func newFinding(t model.FindingType, severity model.Severity, message string, n *html.Node) model.Finding {
	text := strings.Join(strings.Fields(page.VisibleText(n)), " ")
	if runes := []rune(text); len(runes) > maxFindingText {
		text = string(runes[:maxFindingText]) + "..."
	}
	return model.Finding{
		Type:     t,
		Severity: severity,
		Message:  message,
		Path:     page.Path(n),
		Text:     text,
		Element:  n,
	}
}
