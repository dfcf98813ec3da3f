package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/verity/internal/annotate"
	"github.com/ppiankov/verity/internal/config"
	"github.com/ppiankov/verity/internal/darkpattern"
	"github.com/ppiankov/verity/internal/extract"
	"github.com/ppiankov/verity/internal/metrics"
	"github.com/ppiankov/verity/internal/model"
	"github.com/ppiankov/verity/internal/page"
	"github.com/ppiankov/verity/internal/verify"
	"github.com/ppiankov/verity/internal/worker"
)

// Verifier is the part of the verification client a session needs.
// TryVerify reports cancellation as an error wrapping verify.ErrCancelled.
type Verifier interface {
	Verify(ctx context.Context, claim string, page verify.PageContext) model.VerificationResult
	TryVerify(ctx context.Context, claim string, page verify.PageContext) (model.VerificationResult, error)
	GetDomainTrust(ctx context.Context, domain string) model.TrustScore
}

// delaySleepFunc waits out the verification delay (injectable for tests)
var delaySleepFunc = func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SessionOptions configures a scan session
type SessionOptions struct {
	Verifier      Verifier
	Settings      config.Source
	Sink          EventSink
	Detector      *darkpattern.Detector
	Concurrency   int
	MinUnitLength int
	Logger        *slog.Logger
}

// Session is one scan of one document. It owns its annotation engine, so
// counters start at zero for every session. Cancel stops new backend requests;
// requests already in flight finish or time out on their own. Rescan starts
// over with a fresh context as long as the parent is still alive.
type Session struct {
	id       string
	doc      *page.Document
	engine   *annotate.Engine
	verifier Verifier
	settings config.Source
	sink     EventSink
	detector *darkpattern.Detector

	concurrency   int
	minUnitLength int
	logger        *slog.Logger

	parent context.Context

	// treeMu serializes reads and mutations of the document tree
	treeMu sync.Mutex

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	started  time.Time
	units    int
	claims   int
	findings []model.Finding
	trust    *model.TrustScore
}

// NewSession creates a session over doc, bound to parent for cancellation
func NewSession(parent context.Context, doc *page.Document, opts SessionOptions) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Settings == nil {
		opts.Settings = config.Static(model.DefaultSettings())
	}
	if opts.Sink == nil {
		opts.Sink = NopSink{}
	}
	if opts.Detector == nil {
		opts.Detector = darkpattern.NewDetector(opts.Logger)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 6
	}
	if opts.MinUnitLength < 0 {
		opts.MinUnitLength = 0
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		id:            id,
		doc:           doc,
		engine:        annotate.NewEngine(opts.Logger),
		verifier:      opts.Verifier,
		settings:      opts.Settings,
		sink:          opts.Sink,
		detector:      opts.Detector,
		concurrency:   opts.Concurrency,
		minUnitLength: opts.MinUnitLength,
		logger:        opts.Logger.With("session", id, "url", doc.URL()),
		parent:        parent,
		ctx:           ctx,
		cancel:        cancel,
		started:       time.Now(),
	}
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// Document returns the scanned document
func (s *Session) Document() *page.Document {
	return s.doc
}

// Cancel stops the session from issuing new requests
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	cancel()
}

func (s *Session) currentContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// Lookup returns the region bound under id
func (s *Session) Lookup(id string) (model.AnnotatedRegion, bool) {
	return s.engine.Lookup(id)
}

// Run performs the automatic scan: settings, dark pattern detection, domain
// trust, the verification delay and finally claim verification. It always
// ends with a ScanCompleted event.
func (s *Session) Run() model.ScanSummary {
	ctx := s.currentContext()
	settings, err := s.settings.Settings(ctx)
	if err != nil {
		s.logger.Warn("settings unavailable, using defaults", "error", err)
		settings = model.DefaultSettings()
	}

	if settings.DarkPatternDetection {
		s.treeMu.Lock()
		findings := s.detector.Detect(s.doc)
		s.treeMu.Unlock()

		s.mu.Lock()
		s.findings = findings
		s.mu.Unlock()
		if len(findings) > 0 {
			s.sink.DarkPatternsFound(findings)
		}
	}

	if settings.DomainTrustScore && s.doc.Domain() != "" && ctx.Err() == nil {
		trust := s.verifier.GetDomainTrust(ctx, s.doc.Domain())
		if trust.IsDegraded() && ctx.Err() != nil {
			s.logger.Debug("scan cancelled during trust lookup")
		} else {
			s.mu.Lock()
			s.trust = &trust
			s.mu.Unlock()
			s.sink.TrustScored(trust)
		}
	}

	if settings.AutoVerify {
		if err := delaySleepFunc(ctx, settings.Delay()); err != nil {
			s.logger.Debug("scan cancelled during delay", "error", err)
		} else {
			s.scan(ctx)
		}
	}

	return s.complete()
}

// Rescan verifies any unit not yet processed, skipping the delay.
// Units bound by an earlier scan are left alone. A cancelled session gets a
// fresh context so the claims it left unverified are retried.
func (s *Session) Rescan() model.ScanSummary {
	s.mu.Lock()
	if s.ctx.Err() != nil && s.parent.Err() == nil {
		s.ctx, s.cancel = context.WithCancel(s.parent)
	}
	ctx := s.ctx
	s.mu.Unlock()

	s.scan(ctx)
	return s.complete()
}

// VerifySelection verifies arbitrary selected text without touching the tree
func (s *Session) VerifySelection(ctx context.Context, text string) model.VerificationResult {
	return s.verifier.Verify(ctx, strings.TrimSpace(text), s.pageContext())
}

// Summary reports the session state so far
func (s *Session) Summary() model.ScanSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	return model.ScanSummary{
		URL:       s.doc.URL(),
		Domain:    s.doc.Domain(),
		StartedAt: s.started,
		Duration:  time.Since(s.started),
		Units:     s.units,
		Claims:    s.claims,
		Counts:    s.engine.Counts(),
		Badge:     s.engine.Badge(),
		Regions:   s.engine.Regions(),
		Findings:  s.findings,
		Trust:     s.trust,
		Cancelled: s.ctx.Err() != nil,
	}
}

func (s *Session) complete() model.ScanSummary {
	summary := s.Summary()

	outcome := "completed"
	if summary.Cancelled {
		outcome = "cancelled"
	}
	metrics.Scans.WithLabelValues(outcome).Inc()

	s.logger.Info("scan finished", "outcome", outcome, "claims", summary.Claims,
		"verified", summary.Counts.Verified, "questionable", summary.Counts.Questionable,
		"false", summary.Counts.False, "degraded", summary.Counts.Degraded,
		"findings", len(summary.Findings))
	s.sink.ScanCompleted(summary)
	return summary
}

func (s *Session) pageContext() verify.PageContext {
	return verify.PageContext{URL: s.doc.URL(), Domain: s.doc.Domain()}
}

// pending is a unit waiting for its claims to be verified
type pending struct {
	unit   *page.Unit
	claims []model.Claim
	first  int // index of the unit's first job in the pool
}

type verifyJob struct {
	claim    string
	page     verify.PageContext
	verifier Verifier
}

type verifyResult struct {
	result model.VerificationResult
}

func (r *verifyResult) GetError() error {
	return nil
}

// Execute returns nil when the session was cancelled before the claim got an
// answer, which leaves its unit unprocessed
func (j *verifyJob) Execute(ctx context.Context) worker.Result {
	result, err := j.verifier.TryVerify(ctx, j.claim, j.page)
	if err != nil {
		return nil
	}
	return &verifyResult{result: result}
}

// scan extracts claims from every unprocessed unit, verifies them through a
// bounded pool and binds the results unit by unit in document order
func (s *Session) scan(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	s.treeMu.Lock()
	var work []pending
	examined, extracted, jobs := 0, 0, 0
	for _, unit := range s.doc.Units() {
		if s.engine.IsProcessed(unit.ID()) {
			continue
		}
		text := unit.Text()
		if len(strings.TrimSpace(text)) < s.minUnitLength {
			continue
		}
		examined++

		claims := extract.ExtractClaims(text)
		if len(claims) == 0 {
			s.engine.MarkProcessed(unit.ID())
			continue
		}
		work = append(work, pending{unit: unit, claims: claims, first: jobs})
		jobs += len(claims)
		extracted += len(claims)
	}
	s.treeMu.Unlock()

	s.mu.Lock()
	s.units += examined
	s.claims += extracted
	s.mu.Unlock()

	if len(work) == 0 {
		return
	}
	s.logger.Debug("verifying claims", "units", len(work), "claims", extracted)

	pool := worker.NewPool(ctx, s.concurrency)
	pool.Start()
	pc := s.pageContext()
	for _, w := range work {
		for _, c := range w.claims {
			pool.Submit(&verifyJob{claim: c.Text, page: pc, verifier: s.verifier})
		}
	}
	results := pool.Wait()
	if ctx.Err() != nil {
		s.logger.Info("scan cancelled, claims left unverified", "skipped", pool.Skipped())
	}

	for _, w := range work {
		bindings, complete := collect(w, results)
		if !complete {
			// Left unprocessed so a later rescan picks the unit up again
			continue
		}

		s.treeMu.Lock()
		fresh := !s.engine.IsProcessed(w.unit.ID())
		s.engine.BindUnit(w.unit, bindings)
		s.treeMu.Unlock()

		if fresh {
			s.sink.BadgeUpdated(s.engine.Badge())
		}
	}
}

// collect pairs a unit's claims with their results. It reports false when a
// job never ran or was cancelled.
func collect(w pending, results []worker.Result) ([]annotate.Binding, bool) {
	bindings := make([]annotate.Binding, 0, len(w.claims))
	for i, c := range w.claims {
		idx := w.first + i
		if idx >= len(results) || results[idx] == nil {
			return nil, false
		}
		vr, ok := results[idx].(*verifyResult)
		if !ok {
			return nil, false
		}
		bindings = append(bindings, annotate.Binding{Claim: c, Result: vr.result})
	}
	return bindings, true
}
