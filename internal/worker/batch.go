package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/verity/internal/model"
)

// Scanner scans one page
type Scanner interface {
	ScanURL(ctx context.Context, url string) (*model.ScanSummary, error)
}

// ScanJob scans a single URL after clearing the per-host limiter
type ScanJob struct {
	URL     string
	Scanner Scanner
	Limiter *Limiter
}

// Execute runs the scan
func (j *ScanJob) Execute(ctx context.Context) Result {
	if j.Limiter != nil {
		if err := j.Limiter.Wait(ctx, j.URL); err != nil {
			return &ScanResult{URL: j.URL, Error: fmt.Errorf("rate limit: %w", err)}
		}
	}

	summary, err := j.Scanner.ScanURL(ctx, j.URL)
	if err != nil {
		return &ScanResult{URL: j.URL, Error: err}
	}
	return &ScanResult{URL: j.URL, Summary: summary}
}

// ScanResult is the outcome of one batch entry
type ScanResult struct {
	URL     string
	Summary *model.ScanSummary
	Error   error
}

// GetError returns the error from the scan result
func (r *ScanResult) GetError() error {
	return r.Error
}

// BatchProcessor scans many URLs concurrently
type BatchProcessor struct {
	scanner     Scanner
	concurrency int
	limiter     *Limiter
}

// NewBatchProcessor creates a batch processor; a zero rate leaves hosts unthrottled
func NewBatchProcessor(scanner Scanner, concurrency int, requestsPerSecond float64, burst int) *BatchProcessor {
	return &BatchProcessor{
		scanner:     scanner,
		concurrency: concurrency,
		limiter:     NewLimiter(requestsPerSecond, burst),
	}
}

// ProcessURLs scans urls and returns one result per URL in input order.
// URLs never started because ctx was cancelled carry ctx's error.
func (b *BatchProcessor) ProcessURLs(ctx context.Context, urls []string) []*ScanResult {
	if len(urls) == 0 {
		return []*ScanResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	for _, u := range urls {
		pool.Submit(&ScanJob{URL: u, Scanner: b.scanner, Limiter: b.limiter})
	}

	results := pool.Wait()

	scanResults := make([]*ScanResult, len(urls))
	for i, u := range urls {
		if i < len(results) && results[i] != nil {
			scanResults[i] = results[i].(*ScanResult)
			continue
		}
		err := ctx.Err()
		if err == nil {
			err = context.Canceled
		}
		scanResults[i] = &ScanResult{URL: u, Error: fmt.Errorf("not started: %w", err)}
	}

	return scanResults
}

// ProcessFile reads URLs from a file and scans them
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*ScanResult, error) {
	urls, err := ReadLines(filePath)
	if err != nil {
		return nil, fmt.Errorf("read URLs: %w", err)
	}

	return b.ProcessURLs(ctx, urls), nil
}

// ReadLines reads one entry per line, skipping blanks, # comments and repeats.
// Batch scans read URLs with it and batch verification reads claims.
func ReadLines(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var lines []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			lines = append(lines, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return lines, nil
}
