package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/verity/internal/model"
)

// stubScanner reports two claims per page and fails pages whose URL contains "broken"
type stubScanner struct {
	mu      sync.Mutex
	scanned []string
}

func (s *stubScanner) ScanURL(ctx context.Context, url string) (*model.ScanSummary, error) {
	s.mu.Lock()
	s.scanned = append(s.scanned, url)
	s.mu.Unlock()

	if strings.Contains(url, "broken") {
		return nil, errors.New("fetch: connection refused")
	}
	return &model.ScanSummary{URL: url, Claims: 2}, nil
}

func TestBatchProcessor_ResultsFollowInputOrder(t *testing.T) {
	processor := NewBatchProcessor(&stubScanner{}, 3, 0, 0)

	urls := []string{
		"https://a.example/item",
		"https://broken.example/item",
		"https://c.example/item",
		"https://d.example/item",
	}
	results := processor.ProcessURLs(context.Background(), urls)

	if len(results) != len(urls) {
		t.Fatalf("expected %d results, got %d", len(urls), len(results))
	}
	for i, res := range results {
		if res.URL != urls[i] {
			t.Errorf("result %d: expected %s, got %s", i, urls[i], res.URL)
		}
	}

	if results[1].GetError() == nil || results[1].Summary != nil {
		t.Errorf("expected failure without summary for broken page, got %+v", results[1])
	}
	for _, i := range []int{0, 2, 3} {
		if results[i].GetError() != nil {
			t.Errorf("unexpected error for %s: %v", urls[i], results[i].Error)
		}
		if results[i].Summary == nil || results[i].Summary.URL != urls[i] {
			t.Errorf("result %d: summary does not match its URL", i)
		}
	}
}

func TestBatchProcessor_ThrottlesPerHost(t *testing.T) {
	scanner := &stubScanner{}
	processor := NewBatchProcessor(scanner, 3, 20, 1)

	start := time.Now()
	processor.ProcessURLs(context.Background(), []string{
		"https://shop.example/a",
		"https://shop.example/b",
		"https://shop.example/c",
	})
	elapsed := time.Since(start)

	// burst 1 at 20/s: the second and third scans wait 50ms each
	if elapsed < 90*time.Millisecond {
		t.Errorf("expected same-host scans to be throttled, took %v", elapsed)
	}
	if len(scanner.scanned) != 3 {
		t.Errorf("expected 3 scans, got %d", len(scanner.scanned))
	}
}

func TestBatchProcessor_CancelledBeforeStart(t *testing.T) {
	scanner := &stubScanner{}
	processor := NewBatchProcessor(scanner, 1, 0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := processor.ProcessURLs(ctx, []string{"https://a.example", "https://b.example"})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, res := range results {
		if !errors.Is(res.Error, context.Canceled) {
			t.Errorf("expected cancellation error for %s, got %v", res.URL, res.Error)
		}
	}
	if len(scanner.scanned) != 0 {
		t.Errorf("expected no scans after cancel, got %v", scanner.scanned)
	}
}

func TestBatchProcessor_ProcessFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urls.txt")
	content := "https://a.example\n# staging\n\n  https://b.example  \nhttps://a.example\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	results, err := NewBatchProcessor(&stubScanner{}, 2, 0, 0).ProcessFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[1].URL != "https://b.example" {
		t.Errorf("expected trimmed URL, got %q", results[1].URL)
	}

	if _, err := NewBatchProcessor(&stubScanner{}, 2, 0, 0).ProcessFile(context.Background(), filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestReadLines(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"empty", "", nil},
		{"comments and blanks", "# claims\n\nWater boils at 100 degrees.\n   \n", []string{"Water boils at 100 degrees."}},
		{"repeats dropped", "One claim.\nOne claim.\nTwo claims.", []string{"One claim.", "Two claims."}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "lines.txt")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			got, err := ReadLines(path)
			if err != nil {
				t.Fatalf("ReadLines failed: %v", err)
			}
			if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
				t.Errorf("ReadLines() = %q, want %q", got, tt.want)
			}
		})
	}
}
