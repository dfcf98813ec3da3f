package pipeline

import (
	"sync"

	"github.com/ppiankov/verity/internal/model"
)

// EventSink receives the events a scan session emits to the UI layer
type EventSink interface {
	BadgeUpdated(badge model.Badge)
	DarkPatternsFound(findings []model.Finding)
	TrustScored(trust model.TrustScore)
	ScanCompleted(summary model.ScanSummary)
}

// NopSink discards every event
type NopSink struct{}

func (NopSink) BadgeUpdated(model.Badge)          {}
func (NopSink) DarkPatternsFound([]model.Finding) {}
func (NopSink) TrustScored(model.TrustScore)      {}
func (NopSink) ScanCompleted(model.ScanSummary)   {}

// Recorder keeps every event it receives. It is safe for concurrent use.
type Recorder struct {
	mu        sync.Mutex
	Badges    []model.Badge
	Findings  [][]model.Finding
	Trust     []model.TrustScore
	Summaries []model.ScanSummary
}

func (r *Recorder) BadgeUpdated(badge model.Badge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Badges = append(r.Badges, badge)
}

func (r *Recorder) DarkPatternsFound(findings []model.Finding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Findings = append(r.Findings, findings)
}

func (r *Recorder) TrustScored(trust model.TrustScore) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Trust = append(r.Trust, trust)
}

func (r *Recorder) ScanCompleted(summary model.ScanSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Summaries = append(r.Summaries, summary)
}

// LastBadge returns the most recent badge update
func (r *Recorder) LastBadge() (model.Badge, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Badges) == 0 {
		return model.Badge{}, false
	}
	return r.Badges[len(r.Badges)-1], true
}
