// Package pipeline runs scan sessions: dark pattern detection, domain trust,
// claim extraction, verification and annotation of one document.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ppiankov/verity/internal/cache"
	"github.com/ppiankov/verity/internal/config"
	"github.com/ppiankov/verity/internal/darkpattern"
	"github.com/ppiankov/verity/internal/llm"
	"github.com/ppiankov/verity/internal/model"
	"github.com/ppiankov/verity/internal/page"
	"github.com/ppiankov/verity/internal/util"
	"github.com/ppiankov/verity/internal/verify"
)

// Pipeline wires the fetcher, the verification client and the detectors
// together and starts sessions over them
type Pipeline struct {
	fetcher    *page.Fetcher
	client     *verify.Client
	detector   *darkpattern.Detector
	renderer   *Renderer
	summarizer *llm.Summarizer // nil if disabled
	settings   config.Source
	config     *model.Config
	logger     *slog.Logger
}

// NewPipeline creates a pipeline. A nil settings source serves cfg.Settings.
func NewPipeline(cfg *model.Config, settings config.Source, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if settings == nil {
		settings = config.Static(cfg.Settings)
	}

	var summarizer *llm.Summarizer
	if cfg.LLM.Provider != "" {
		s, err := llm.NewSummarizer(llm.ConfigFromModel(cfg.LLM, cfg.Client), logger)
		if err != nil {
			logger.Warn("failed to initialize LLM provider", "error", err)
		} else {
			summarizer = s
		}
	}

	var robots *util.RobotsChecker
	if cfg.Scan.RespectRobots {
		robots = util.NewRobotsChecker(cfg.Scan.UserAgent, cfg.Scan.FetchTimeout, logger)
	}

	return &Pipeline{
		fetcher: page.NewFetcher(cfg.Scan.FetchTimeout, cfg.Scan.UserAgent, cfg.Scan.MaxBodyBytes,
			cfg.Scan.InsecureTLS, cfg.Client.HTTPProxy, cfg.Client.HTTPSProxy, robots),
		client:     verify.New(cfg.Settings.APIEndpoint, cfg.Client, cache.New(cfg.Cache), logger),
		detector:   darkpattern.NewDetector(logger),
		renderer:   NewRenderer(),
		summarizer: summarizer,
		settings:   settings,
		config:     cfg,
		logger:     logger,
	}
}

// Client returns the verification client
func (p *Pipeline) Client() *verify.Client {
	return p.client
}

// Settings resolves the pipeline's current settings
func (p *Pipeline) Settings(ctx context.Context) (model.Settings, error) {
	return p.settings.Settings(ctx)
}

// Renderer returns the report renderer
func (p *Pipeline) Renderer() *Renderer {
	return p.renderer
}

// NewSession starts a session over doc; settings override the pipeline's source when non-nil
func (p *Pipeline) NewSession(ctx context.Context, doc *page.Document, settings config.Source, sink EventSink) *Session {
	if settings == nil {
		settings = p.settings
	}
	return NewSession(ctx, doc, SessionOptions{
		Verifier:      p.client,
		Settings:      settings,
		Sink:          sink,
		Detector:      p.detector,
		Concurrency:   p.config.Client.Concurrency,
		MinUnitLength: p.config.Scan.MinUnitLength,
		Logger:        p.logger,
	})
}

// ScanResult contains a finished scan
type ScanResult struct {
	Summary  model.ScanSummary
	Document *page.Document
	Digest   *llm.Digest
}

// Scan fetches rawURL and runs a full session over it
func (p *Pipeline) Scan(ctx context.Context, rawURL string, sink EventSink) (*ScanResult, error) {
	doc, err := p.fetcher.FetchWithRetry(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	return p.ScanDocument(ctx, doc, sink), nil
}

// ScanDocument runs a full session over an already parsed document
func (p *Pipeline) ScanDocument(ctx context.Context, doc *page.Document, sink EventSink) *ScanResult {
	session := p.NewSession(ctx, doc, nil, sink)
	defer session.Cancel()

	summary := session.Run()

	// The digest runs after rating and never changes it
	var digest *llm.Digest
	if p.summarizer.IsEnabled() && !summary.Cancelled {
		digest = p.summarizer.Generate(ctx, summary)
		if digest != nil {
			summary.Digest = digest.Text
		}
	}

	return &ScanResult{Summary: summary, Document: doc, Digest: digest}
}

// ScanURL scans rawURL for batch processing
func (p *Pipeline) ScanURL(ctx context.Context, rawURL string) (*model.ScanSummary, error) {
	result, err := p.Scan(ctx, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return &result.Summary, nil
}

// RenderReport renders the result to the requested outputs
func (p *Pipeline) RenderReport(result *ScanResult, jsonPath, htmlPath string, verbose bool) error {
	if jsonPath != "" {
		if err := p.renderer.RenderJSON(NewReport(result), jsonPath); err != nil {
			return fmt.Errorf("render JSON: %w", err)
		}
		if verbose {
			p.logger.Info("wrote JSON report", "path", jsonPath)
		}
	}

	if htmlPath != "" {
		if err := p.renderer.RenderHTML(result.Document, htmlPath); err != nil {
			return fmt.Errorf("render HTML: %w", err)
		}
		if verbose {
			p.logger.Info("wrote annotated HTML", "path", htmlPath)
		}
	}

	return nil
}
