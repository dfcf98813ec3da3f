// Package page holds the parsed content tree and the content units carved out of it.
package page

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// RegionAttr marks elements inserted by the annotator; they are never units themselves
const RegionAttr = "data-verity-region"

// Document is a parsed page plus the URL it came from
type Document struct {
	doc    *goquery.Document
	url    string
	domain string

	mu  sync.Mutex
	ids map[*html.Node]string
}

// Parse reads HTML from r. rawURL may be empty for detached content.
func Parse(r io.Reader, rawURL string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	domain := ""
	if rawURL != "" {
		parsed, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("parse url: %w", err)
		}
		domain = parsed.Hostname()
	}

	return &Document{
		doc:    doc,
		url:    rawURL,
		domain: domain,
		ids:    make(map[*html.Node]string),
	}, nil
}

// ParseString is Parse over an in-memory string
func ParseString(content string, rawURL string) (*Document, error) {
	return Parse(strings.NewReader(content), rawURL)
}

// URL returns the page URL
func (d *Document) URL() string {
	return d.url
}

// Domain returns the page host name without port
func (d *Document) Domain() string {
	return d.domain
}

// Query exposes the goquery document for selector-based passes
func (d *Document) Query() *goquery.Document {
	return d.doc
}

// Root returns the document node
func (d *Document) Root() *html.Node {
	return d.doc.Nodes[0]
}

// Body returns the <body> element, or the root when there is none
func (d *Document) Body() *html.Node {
	if body := d.doc.Find("body"); body.Length() > 0 {
		return body.Nodes[0]
	}
	return d.Root()
}

// Render serializes the current tree, including any annotations
func (d *Document) Render() (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, d.Root()); err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return buf.String(), nil
}

// NodeID returns the stable identity of n within this document.
// The first call fixes the id so later mutations do not change it.
func (d *Document) NodeID(n *html.Node) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if id, ok := d.ids[n]; ok {
		return id
	}
	id := Path(n)
	d.ids[n] = id
	return id
}

// Path builds a structural path such as /html[0]/body[0]/p[2].
// Indices count same-tag element siblings, ignoring annotator-inserted elements.
func Path(n *html.Node) string {
	var segments []string
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		idx := 0
		for sib := cur.PrevSibling; sib != nil; sib = sib.PrevSibling {
			if sib.Type == html.ElementNode && sib.Data == cur.Data && !IsRegion(sib) {
				idx++
			}
		}
		segments = append(segments, fmt.Sprintf("%s[%d]", cur.Data, idx))
	}

	var b strings.Builder
	for i := len(segments) - 1; i >= 0; i-- {
		b.WriteString("/")
		b.WriteString(segments[i])
	}
	return b.String()
}

// IsRegion reports whether n was inserted by the annotator
func IsRegion(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	_, ok := Attr(n, RegionAttr)
	return ok
}

// Attr returns the value of attribute key on n
func Attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets or replaces attribute key on n
func SetAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// VisibleText concatenates the text under n, skipping non-rendered elements
func VisibleText(n *html.Node) string {
	var buf strings.Builder
	walkText(n, func(t *html.Node) {
		buf.WriteString(t.Data)
	})
	return buf.String()
}

// walkText visits text nodes under n in document order
func walkText(n *html.Node, visit func(*html.Node)) {
	if n.Type == html.TextNode {
		visit(n)
		return
	}
	if n.Type == html.ElementNode && isHidden(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, visit)
	}
}

func isHidden(n *html.Node) bool {
	switch n.Data {
	case "script", "style", "noscript", "template", "iframe", "head":
		return true
	}
	return false
}
