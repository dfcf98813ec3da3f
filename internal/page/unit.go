package page

import (
	"strings"

	"golang.org/x/net/html"
)

// blockTags are the elements scanned for claims; span is handled separately
var blockTags = map[string]bool{
	"p": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "td": true, "div": true,
}

// Unit is a content unit backed by an element of a Document. A shallow unit
// covers only the element's own text, leaving out children that hold units.
type Unit struct {
	id      string
	node    *html.Node
	shallow bool
}

// NewUnit wraps an element as a content unit with the given identity
func NewUnit(id string, n *html.Node) *Unit {
	return &Unit{id: id, node: n}
}

// Shallow reports whether the unit covers only the element's own text
func (u *Unit) Shallow() bool {
	return u.shallow
}

// ID returns the unit's stable identity
func (u *Unit) ID() string {
	return u.id
}

// Node returns the backing element
func (u *Unit) Node() *html.Node {
	return u.node
}

// Text returns the unit's current visible text
func (u *Unit) Text() string {
	var buf strings.Builder
	u.walkText(func(t *html.Node) {
		buf.WriteString(t.Data)
	})
	return buf.String()
}

func (u *Unit) walkText(visit func(*html.Node)) {
	if !u.shallow {
		walkText(u.node, visit)
		return
	}
	for c := u.node.FirstChild; c != nil; c = c.NextSibling {
		if !holdsBlock(c) {
			walkText(c, visit)
		}
	}
}

// Units returns the scannable elements in document order. An element without
// block descendants is a unit with all its text. A block element holding other
// blocks becomes a shallow unit when it has text of its own, and its block
// children are scanned separately. A span is a unit only when no enclosing
// unit exists.
func (d *Document) Units() []*Unit {
	var units []*Unit

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if isHidden(n) || IsRegion(n) {
				return
			}
			candidate := blockTags[n.Data] || n.Data == "span"
			if candidate && !hasBlockDescendant(n) {
				units = append(units, NewUnit(d.NodeID(n), n))
				return
			}
			if candidate {
				unit := &Unit{id: d.NodeID(n), node: n, shallow: true}
				if strings.TrimSpace(unit.Text()) != "" {
					units = append(units, unit)
				}
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					if holdsBlock(c) {
						walk(c)
					}
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(d.Body())
	return units
}

// holdsBlock reports whether n is a block element or contains one
func holdsBlock(n *html.Node) bool {
	if n.Type != html.ElementNode || isHidden(n) {
		return false
	}
	return blockTags[n.Data] || hasBlockDescendant(n)
}

func hasBlockDescendant(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || isHidden(c) {
			continue
		}
		if blockTags[c.Data] || hasBlockDescendant(c) {
			return true
		}
	}
	return false
}

// textSegment is one text node and where its data starts in the unit text
type textSegment struct {
	node  *html.Node
	start int
}

// WrapRange wraps unit text bytes [start, end) in place. Every text node the
// range touches is split so that only the covered part moves into a fresh
// wrapper from newWrapper; sibling elements and their attributes are untouched.
func (u *Unit) WrapRange(start, end int, newWrapper func(segment int) *html.Node) bool {
	if start < 0 || end <= start {
		return false
	}

	var segments []textSegment
	total := 0
	u.walkText(func(t *html.Node) {
		segments = append(segments, textSegment{node: t, start: total})
		total += len(t.Data)
	})
	if end > total {
		return false
	}

	wrapped := 0
	for _, seg := range segments {
		segEnd := seg.start + len(seg.node.Data)
		if segEnd <= start || seg.start >= end {
			continue
		}

		lo := max(start, seg.start) - seg.start
		hi := min(end, segEnd) - seg.start
		wrapSegment(seg.node, lo, hi, newWrapper(wrapped))
		wrapped++
	}

	return wrapped > 0
}

// wrapSegment moves data[lo:hi] of text node t into wrapper, keeping the rest in place
func wrapSegment(t *html.Node, lo, hi int, wrapper *html.Node) {
	parent := t.Parent
	data := t.Data

	if lo > 0 {
		parent.InsertBefore(&html.Node{Type: html.TextNode, Data: data[:lo]}, t)
	}

	wrapper.AppendChild(&html.Node{Type: html.TextNode, Data: data[lo:hi]})
	parent.InsertBefore(wrapper, t)

	if hi < len(data) {
		t.Data = data[hi:]
	} else {
		parent.RemoveChild(t)
	}
}
