package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/verity/internal/model"
	"github.com/ppiankov/verity/internal/pipeline"
)

var (
	outJSON        string
	outHTML        string
	timeout        time.Duration
	delay          int
	noDarkPatterns bool
	noTrust        bool
	insecureTLS    bool
	llmEnabled     bool
	llmModel       string
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan <url>",
	Short: "Scan a single URL for claims and dark patterns",
	Long: `Scan fetches a web page and:
- Detects fake countdown timers, artificial scarcity and hidden subscription terms
- Looks up the domain's trust score
- Extracts factual claims and verifies them against the verification service
- Writes a JSON report and, optionally, the annotated HTML

Press Ctrl+C to cancel: requests already in flight finish, no new ones start.

Example:
  verity scan https://shop.example.com/item
  verity scan https://shop.example.com/item --json report.json --html annotated.html
  verity scan https://shop.example.com/item --delay 0 --llm`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	// Output flags
	scanCmd.Flags().StringVar(&outJSON, "json", "verity-report.json", "output JSON path")
	scanCmd.Flags().StringVar(&outHTML, "html", "", "output annotated HTML path (optional)")

	// Scan flags
	scanCmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall scan timeout")
	scanCmd.Flags().IntVar(&delay, "delay", -1, "verification delay in milliseconds (-1 uses settings)")
	scanCmd.Flags().BoolVar(&noDarkPatterns, "no-dark-patterns", false, "skip dark pattern detection")
	scanCmd.Flags().BoolVar(&noTrust, "no-trust", false, "skip the domain trust lookup")
	scanCmd.Flags().BoolVar(&insecureTLS, "insecure", false, "skip TLS certificate verification (use for self-signed certs)")

	// LLM flags
	scanCmd.Flags().BoolVar(&llmEnabled, "llm", false, "enable an OpenAI digest of the scan (needs OPENAI_API_KEY)")
	scanCmd.Flags().StringVar(&llmModel, "llm-model", "gpt-4o-mini", "LLM model name")
}

// applyScanFlags overrides cfg with the scan flags
func applyScanFlags(cfg *model.Config) error {
	if delay >= 0 {
		cfg.Settings.VerificationDelay = delay
	}
	if noDarkPatterns {
		cfg.Settings.DarkPatternDetection = false
	}
	if noTrust {
		cfg.Settings.DomainTrustScore = false
	}
	if insecureTLS {
		cfg.Scan.InsecureTLS = true
	}
	if llmEnabled {
		cfg.LLM.Provider = "openai"
		cfg.LLM.Model = llmModel
		if cfg.LLM.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	}
	return nil
}

// signalContext is cancelled on SIGINT/SIGTERM or after d
func signalContext(d time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if d <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	return ctx, func() {
		cancel()
		stop()
	}
}

func runScan(cmd *cobra.Command, args []string) error {
	url := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyScanFlags(cfg); err != nil {
		return err
	}

	ctx, cancel := signalContext(timeout)
	defer cancel()

	if verbose {
		_, _ = fmt.Fprintf(stderrW, "Scanning: %s\n", url)
		_, _ = fmt.Fprintf(stderrW, "Verification service: %s\n", cfg.Settings.APIEndpoint)
		_, _ = fmt.Fprintf(stderrW, "Timeout: %v\n", timeout)
		_, _ = fmt.Fprintf(stderrW, "Cache: %v\n\n", cfg.Cache.Enabled)
		_, _ = fmt.Fprintf(stderrW, "⚙️  Fetching HTML...\n")
	}

	p := pipeline.NewPipeline(cfg, nil, logger)
	result, err := p.Scan(ctx, url, &progressSink{verbose: verbose})
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if err := p.RenderReport(result, outJSON, outHTML, verbose); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	if outJSON != "" {
		_, _ = fmt.Fprintf(stderrW, "✓ Wrote JSON: %s\n", outJSON)
	}
	if outHTML != "" {
		_, _ = fmt.Fprintf(stderrW, "✓ Wrote annotated HTML: %s\n", outHTML)
	}

	p.Renderer().RenderSummary(stdout, result.Summary, result.Digest)
	return nil
}

// progressSink prints session events as they happen
type progressSink struct {
	verbose bool
}

func (s *progressSink) BadgeUpdated(b model.Badge) {
	if s.verbose {
		_, _ = fmt.Fprintf(stderrW, "✓ Badge %s\n", pipeline.RenderBadge(b))
	}
}

func (s *progressSink) DarkPatternsFound(findings []model.Finding) {
	if s.verbose {
		_, _ = fmt.Fprintf(stderrW, "⚠ Found %d dark patterns\n", len(findings))
	}
}

func (s *progressSink) TrustScored(t model.TrustScore) {
	if s.verbose {
		_, _ = fmt.Fprintf(stderrW, "✓ %s\n", pipeline.RenderTrust(t))
	}
}

func (s *progressSink) ScanCompleted(summary model.ScanSummary) {
	if s.verbose {
		_, _ = fmt.Fprintf(stderrW, "✓ %s in %v\n\n", summary.Message(), summary.Duration.Round(time.Millisecond))
	}
}
