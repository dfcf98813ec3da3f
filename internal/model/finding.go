package model

import "golang.org/x/net/html"

// FindingType is the closed set of dark pattern kinds
type FindingType string

const (
	FindingFakeCountdown      FindingType = "fake-countdown"
	FindingFakeScarcity       FindingType = "fake-scarcity"
	FindingHiddenSubscription FindingType = "hidden-subscription"
)

// Label returns the display name for the finding type
func (t FindingType) Label() string {
	switch t {
	case FindingFakeCountdown:
		return "Fake Countdown Timer"
	case FindingFakeScarcity:
		return "Artificial Scarcity"
	case FindingHiddenSubscription:
		return "Hidden Subscription"
	default:
		return string(t)
	}
}

// Severity of a dark pattern finding
type Severity string

const (
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Finding is one dark pattern detected in a single pass
type Finding struct {
	Type     FindingType `json:"type"`
	Severity Severity    `json:"severity"`
	Message  string      `json:"message"`
	Path     string      `json:"path"`           // Structural path of the target element
	Text     string      `json:"text,omitempty"` // Trimmed text of the target element
	Element  *html.Node  `json:"-"`
}
