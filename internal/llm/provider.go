// Package llm produces an optional natural-language digest of a finished scan.
// A digest never changes ratings, counts or findings.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/verity/internal/model"
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Digest summarizes a scan, citing only allowed source URLs
	Digest(ctx context.Context, req DigestRequest) (*DigestResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// DigestRequest contains the input for a scan digest
type DigestRequest struct {
	Summary model.ScanSummary

	// SourceURLs is the allowlist of URLs the model may cite
	SourceURLs []string

	// Prompt overrides the default prompt when set
	Prompt string

	Model     string
	MaxTokens int
}

// DigestResponse is the model's output
type DigestResponse struct {
	Text       string
	CitedURLs  []string
	Model      string
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai" or "" (disabled)
	Provider string

	Model   string
	APIKey  string
	BaseURL string

	// Timeout for API requests in seconds
	Timeout int

	MaxTokens int

	HTTPProxy  string
	HTTPSProxy string
}

// DefaultConfig returns the disabled default
func DefaultConfig() Config {
	return Config{
		Provider:  "",
		Timeout:   30,
		MaxTokens: 600,
	}
}

// ConfigFromModel converts the loaded configuration
func ConfigFromModel(m model.LLMConfig, client model.ClientConfig) Config {
	return Config{
		Provider:   m.Provider,
		Model:      m.Model,
		APIKey:     m.APIKey,
		BaseURL:    m.BaseURL,
		Timeout:    m.Timeout,
		MaxTokens:  m.MaxTokens,
		HTTPProxy:  client.HTTPProxy,
		HTTPSProxy: client.HTTPSProxy,
	}
}

// NewProvider creates the configured provider; it returns nil when disabled
func NewProvider(config Config) (Provider, error) {
	switch strings.ToLower(config.Provider) {
	case "openai":
		return NewOpenAIProvider(config)
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai)", config.Provider)
	}
}

// SourceURLs collects the distinct source links of authoritative regions
func SourceURLs(summary model.ScanSummary) []string {
	seen := make(map[string]bool)
	var urls []string
	for _, r := range summary.Regions {
		if r.Result.IsDegraded() {
			continue
		}
		for _, s := range r.Result.Sources {
			if s.URL != "" && !seen[s.URL] {
				seen[s.URL] = true
				urls = append(urls, s.URL)
			}
		}
	}
	return urls
}

// BuildPrompt constructs the default digest prompt
func BuildPrompt(summary model.ScanSummary, sourceURLs []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, `You are summarizing a Verity page scan. Verity rates claims against a verification service; it is a best-effort heuristic, not a fact database.

RULES:
1. You MUST ONLY cite URLs from this allowed list:
%s

2. Ratings marked SIMULATED came from a local fallback, not the verification service. Say so if you mention them.
3. Do not add your own verdicts on any claim.

Page: %s
Claims rated: %d (verified %d, questionable %d, false %d, simulated %d)
Dark patterns found: %d
`, joinURLs(sourceURLs), summary.URL, summary.Counts.Total(), summary.Counts.Verified, summary.Counts.Questionable, summary.Counts.False, summary.Counts.Degraded, len(summary.Findings))

	if summary.Trust != nil {
		fmt.Fprintf(&b, "Domain trust: %d/100 (%s)\n", summary.Trust.Score, provenanceLabel(summary.Trust.IsDegraded()))
	}

	b.WriteString("\nRated claims:\n")
	for i, r := range summary.Regions {
		if i >= 10 {
			fmt.Fprintf(&b, "... and %d more\n", len(summary.Regions)-10)
			break
		}
		fmt.Fprintf(&b, "- [%s, %d%%, %s] %s\n", r.Result.Rating, r.Result.Confidence, provenanceLabel(r.Result.IsDegraded()), r.Claim.Text)
	}

	for _, f := range summary.Findings {
		fmt.Fprintf(&b, "- %s: %s\n", f.Type.Label(), f.Message)
	}

	b.WriteString("\nProvide a 2-3 sentence digest for the reader of this page.")
	return b.String()
}

func provenanceLabel(degraded bool) string {
	if degraded {
		return "SIMULATED"
	}
	return "verified by service"
}

func joinURLs(urls []string) string {
	if len(urls) == 0 {
		return "(No source URLs available)"
	}
	var b strings.Builder
	for i, u := range urls {
		if i >= 20 {
			fmt.Fprintf(&b, "\n... and %d more URLs", len(urls)-20)
			break
		}
		b.WriteString("\n- ")
		b.WriteString(u)
	}
	return b.String()
}
