package model

import (
	"fmt"
	"time"
)

// ScanSummary is emitted once a scan session finishes
type ScanSummary struct {
	URL       string            `json:"url"`
	Domain    string            `json:"domain"`
	StartedAt time.Time         `json:"started_at"`
	Duration  time.Duration     `json:"duration_ns"`
	Units     int               `json:"units"`  // Content units examined
	Claims    int               `json:"claims"` // Claims extracted
	Counts    Counts            `json:"counts"`
	Badge     Badge             `json:"badge"`
	Regions   []AnnotatedRegion `json:"regions"`
	Findings  []Finding         `json:"findings"`
	Trust     *TrustScore       `json:"trust,omitempty"`
	Cancelled bool              `json:"cancelled"`
	Digest    string            `json:"digest,omitempty"` // Optional LLM digest, never affects ratings
}

// Message returns the completion notice shown to the user
func (s ScanSummary) Message() string {
	total := s.Counts.Total()
	if total == 1 {
		return "Verity found 1 claim"
	}
	return fmt.Sprintf("Verity found %d claims", total)
}
