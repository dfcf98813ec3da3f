package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ppiankov/verity/internal/model"
)

// Digest is the outcome of a digest attempt. Failures are reported as
// warnings so a scan never fails because of the LLM.
type Digest struct {
	Enabled  bool     `json:"enabled"`
	Provider string   `json:"provider,omitempty"`
	Model    string   `json:"model,omitempty"`
	Text     string   `json:"text,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Summarizer wraps an optional provider
type Summarizer struct {
	provider Provider
	config   Config
	logger   *slog.Logger
}

// NewSummarizer creates a summarizer; a disabled config yields a no-op summarizer
func NewSummarizer(config Config, logger *slog.Logger) (*Summarizer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	provider, err := NewProvider(config)
	if err != nil {
		return nil, err
	}
	return &Summarizer{provider: provider, config: config, logger: logger}, nil
}

// IsEnabled reports whether a provider is configured
func (s *Summarizer) IsEnabled() bool {
	return s != nil && s.provider != nil
}

// ProviderName returns the configured provider, or "" when disabled
func (s *Summarizer) ProviderName() string {
	if !s.IsEnabled() {
		return ""
	}
	return s.provider.Name()
}

// Generate produces a digest of summary. It returns nil when disabled.
func (s *Summarizer) Generate(ctx context.Context, summary model.ScanSummary) *Digest {
	if !s.IsEnabled() {
		return nil
	}

	digest := &Digest{Provider: s.provider.Name()}
	if !s.provider.IsAvailable(ctx) {
		digest.Warnings = append(digest.Warnings, fmt.Sprintf("Provider %s is not available (check API key)", s.provider.Name()))
		return digest
	}
	digest.Enabled = true

	resp, err := s.provider.Digest(ctx, DigestRequest{
		Summary:    summary,
		SourceURLs: SourceURLs(summary),
		Model:      s.config.Model,
		MaxTokens:  s.config.MaxTokens,
	})
	if err != nil {
		s.logger.Warn("digest generation failed", "provider", digest.Provider, "error", err)
		digest.Warnings = append(digest.Warnings, fmt.Sprintf("Digest generation failed: %v", err))
		return digest
	}

	digest.Model = resp.Model
	digest.Text = resp.Text
	digest.Warnings = append(digest.Warnings, fmt.Sprintf("Tokens used: %d", resp.TokensUsed))
	if len(resp.CitedURLs) > 0 {
		digest.Warnings = append(digest.Warnings, fmt.Sprintf("Verified %d citations against region sources", len(resp.CitedURLs)))
	}
	return digest
}
