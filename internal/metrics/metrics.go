// Package metrics declares the Prometheus collectors shared by the scanner and the server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// VerifyAttempts counts backend attempts by endpoint and outcome (ok, error)
	VerifyAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verity_backend_attempts_total",
		Help: "Backend request attempts by endpoint and outcome",
	}, []string{"endpoint", "outcome"})

	// VerifyDuration tracks backend latency per attempt
	VerifyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "verity_backend_attempt_duration_seconds",
		Help:    "Backend attempt duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 11), // 10ms to ~10s
	}, []string{"endpoint"})

	// DegradedFallbacks counts operations answered locally after the backend failed
	DegradedFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verity_degraded_fallbacks_total",
		Help: "Results synthesized locally after backend failure",
	}, []string{"operation"})

	// CacheLookups counts verification cache lookups by result (hit, miss)
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verity_cache_lookups_total",
		Help: "Verification cache lookups by result",
	}, []string{"kind", "result"})

	// Annotations counts regions created by rating
	Annotations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verity_annotations_total",
		Help: "Annotated regions by rating",
	}, []string{"rating"})

	// Findings counts dark pattern findings by type
	Findings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verity_dark_pattern_findings_total",
		Help: "Dark pattern findings by type",
	}, []string{"type"})

	// Scans counts completed scans by outcome (completed, cancelled, failed)
	Scans = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verity_scans_total",
		Help: "Page scans by outcome",
	}, []string{"outcome"})
)
