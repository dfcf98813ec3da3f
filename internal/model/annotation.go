package model

import "golang.org/x/net/html"

// ContentUnit is a caller-owned block of text that can have a substring wrapped in place
type ContentUnit interface {
	// ID returns a stable identity for the unit within its document
	ID() string

	// Text returns the unit's current text content
	Text() string

	// WrapRange wraps the text bytes [start, end) with nodes produced by newWrapper.
	// It returns false when the range no longer maps onto the unit's text.
	WrapRange(start, end int, newWrapper func(segment int) *html.Node) bool
}

// AnnotatedRegion binds a claim and its verification result to a wrapped span
type AnnotatedRegion struct {
	ID     string             `json:"id"`
	UnitID string             `json:"unit_id"`
	Claim  Claim              `json:"claim"`
	Result VerificationResult `json:"result"`
}

// Counts aggregates bound results for badge and popup display
type Counts struct {
	Verified     int `json:"verified"`
	Questionable int `json:"questionable"`
	False        int `json:"false"`
	Degraded     int `json:"degraded"` // Subset of the above that was simulated
}

// Total returns the number of rated claims
func (c Counts) Total() int {
	return c.Verified + c.Questionable + c.False
}

// Badge colors
const (
	BadgeColorFalse        = "#FF3D00"
	BadgeColorQuestionable = "#FFB300"
	BadgeColorVerified     = "#00C853"
	BadgeColorIdle         = "#0066FF"
)

// Badge is the toolbar badge update emitted to the UI layer
type Badge struct {
	Count    int    `json:"count"`
	Color    string `json:"color"`
	Degraded int    `json:"degraded"`
}

// Badge derives the badge from the counts; the worst rating present picks the color
func (c Counts) Badge() Badge {
	color := BadgeColorIdle
	switch {
	case c.False > 0:
		color = BadgeColorFalse
	case c.Questionable > 0:
		color = BadgeColorQuestionable
	case c.Verified > 0:
		color = BadgeColorVerified
	}
	return Badge{Count: c.Total(), Color: color, Degraded: c.Degraded}
}
