package cli

import (
	"fmt"
	"net/url"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/verity/internal/pipeline"
	"github.com/ppiankov/verity/internal/worker"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
	batchDelay   int
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Scan multiple URLs from a file in parallel",
	Long: `Batch scans many pages concurrently:
- Read URLs from input file (one per line, # for comments)
- Scan pages in parallel, rate limited per host
- Write one JSON report per URL

Example:
  verity batch urls.txt
  verity batch urls.txt --concurrency 8 --output-dir ./reports`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", runtime.NumCPU(), "number of pages scanned at once")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./verity-reports", "output directory for reports")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 10*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().IntVar(&batchDelay, "delay", 0, "verification delay in milliseconds (-1 uses settings)")
	batchCmd.Flags().BoolVar(&noDarkPatterns, "no-dark-patterns", false, "skip dark pattern detection")
	batchCmd.Flags().BoolVar(&noTrust, "no-trust", false, "skip domain trust lookups")
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	delay = batchDelay
	if err := applyScanFlags(cfg); err != nil {
		return err
	}

	ctx, cancel := signalContext(batchTimeout)
	defer cancel()

	_, _ = fmt.Fprintf(stderrW, "\n")
	_, _ = fmt.Fprintf(stderrW, "  Input file:   %s\n", file)
	_, _ = fmt.Fprintf(stderrW, "  Workers:      %d\n", concurrency)
	_, _ = fmt.Fprintf(stderrW, "  Output dir:   %s\n", outputDir)
	_, _ = fmt.Fprintf(stderrW, "  Timeout:      %v\n\n", batchTimeout)

	p := pipeline.NewPipeline(cfg, nil, logger)
	processor := worker.NewBatchProcessor(p, concurrency, cfg.Client.RequestsPerSecond, cfg.Client.Burst)

	_, _ = fmt.Fprintf(stderrW, "⚙️  Processing URLs with %d workers...\n\n", concurrency)
	results, err := processor.ProcessFile(ctx, file)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}

	successCount, failureCount := 0, 0
	for _, result := range results {
		if result.Error != nil {
			failureCount++
			_, _ = fmt.Fprintf(stderrW, "✗ %s: %v\n", result.URL, result.Error)
			continue
		}

		report := &pipeline.Report{
			GeneratedAt: time.Now().UTC(),
			Message:     result.Summary.Message(),
			Summary:     *result.Summary,
		}
		jsonPath := filepath.Join(outputDir, sanitizeFilename(result.URL)+".json")
		if err := p.Renderer().RenderJSON(report, jsonPath); err != nil {
			failureCount++
			_, _ = fmt.Fprintf(stderrW, "✗ %s: failed to write JSON: %v\n", result.URL, err)
			continue
		}

		successCount++
		_, _ = fmt.Fprintf(stderrW, "✓ %s  %s  (%d findings)\n", result.URL, pipeline.RenderBadge(result.Summary.Badge), len(result.Summary.Findings))
	}

	_, _ = fmt.Fprintf(stderrW, "\n")
	_, _ = fmt.Fprintf(stderrW, "  Total:     %d URLs\n", len(results))
	_, _ = fmt.Fprintf(stderrW, "  Success:   %d\n", successCount)
	_, _ = fmt.Fprintf(stderrW, "  Failures:  %d\n", failureCount)
	_, _ = fmt.Fprintf(stderrW, "  Output:    %s\n\n", outputDir)

	return nil
}

var filenameReplacer = strings.NewReplacer(
	"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
	"\"", "_", "<", "_", ">", "_", "|", "_", " ", "-", "&", "_", "=", "_",
)

// sanitizeFilename turns a URL into a file name stem
func sanitizeFilename(raw string) string {
	s := raw
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		s = u.Host + strings.TrimSuffix(u.EscapedPath(), "/")
		if u.RawQuery != "" {
			s += "_" + u.RawQuery
		}
	}
	s = filenameReplacer.Replace(s)
	s = strings.Trim(s, "_.")

	if len(s) > 100 {
		s = s[:100]
	}
	if s == "" {
		s = "report"
	}
	return s
}
