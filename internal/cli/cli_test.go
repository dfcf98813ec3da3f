package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/verity/internal/config"
	"github.com/ppiankov/verity/internal/model"
	"github.com/ppiankov/verity/internal/verify"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://shop.example.com/item/42", "shop.example.com_item_42"},
		{"https://shop.example.com/", "shop.example.com"},
		{"https://shop.example.com/search?q=a", "shop.example.com_search_q_a"},
		{"not a url", "not-a-url"},
		{"", "report"},
	}

	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	long := "https://shop.example.com/" + strings.Repeat("a", 200)
	if got := sanitizeFilename(long); len(got) != 100 {
		t.Errorf("expected name truncated to 100, got %d", len(got))
	}
}

func TestWriteDefaultConfig(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".verity")

	path, err := writeDefaultConfig(dir)
	if err != nil {
		t.Fatalf("writeDefaultConfig failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	var parsed model.Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("written config is not valid YAML: %v", err)
	}
	if parsed.Settings.APIEndpoint != "http://localhost:5000" {
		t.Errorf("unexpected apiEndpoint: %q", parsed.Settings.APIEndpoint)
	}

	// The written file loads back through viper and validates
	v, err := config.New(path)
	if err != nil {
		t.Fatalf("config.New failed: %v", err)
	}
	cfg, err := config.Load(v)
	if err != nil {
		t.Fatalf("config.Load failed: %v", err)
	}
	if cfg.Settings.VerificationDelay != 2000 {
		t.Errorf("expected delay 2000, got %d", cfg.Settings.VerificationDelay)
	}

	if _, err := writeDefaultConfig(dir); err == nil {
		t.Error("expected error when config already exists")
	}
}

func TestApplyScanFlags(t *testing.T) {
	defer func() {
		delay, noDarkPatterns, noTrust, insecureTLS, llmEnabled = -1, false, false, false, false
	}()

	cfg := model.DefaultConfig()
	delay, noDarkPatterns, noTrust, insecureTLS = 0, true, true, true
	if err := applyScanFlags(cfg); err != nil {
		t.Fatalf("applyScanFlags failed: %v", err)
	}
	if cfg.Settings.VerificationDelay != 0 || cfg.Settings.DarkPatternDetection || cfg.Settings.DomainTrustScore || !cfg.Scan.InsecureTLS {
		t.Errorf("flags not applied: %+v %+v", cfg.Settings, cfg.Scan)
	}

	cfg = model.DefaultConfig()
	delay, llmEnabled = -1, true
	if err := applyScanFlags(cfg); err == nil {
		t.Error("expected error when LLM is enabled without an API key")
	}
	if cfg.Settings.VerificationDelay != 2000 {
		t.Errorf("delay -1 must keep settings, got %d", cfg.Settings.VerificationDelay)
	}
}

func TestSetupLogging_UnknownFormat(t *testing.T) {
	defer func() { logFormat = "text" }()

	logFormat = "xml"
	if err := setupLogging(); err == nil {
		t.Error("expected error for unknown log format")
	}
	logFormat = "json"
	if err := setupLogging(); err != nil {
		t.Errorf("json format failed: %v", err)
	}
}

func TestLoadConfig_UsesViper(t *testing.T) {
	defer func() { v, vErr = nil, nil }()

	v = viper.New()
	config.SetDefaults(v)
	v.Set("settings.apiEndpoint", "https://verify.example.org")
	vErr = nil

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Settings.APIEndpoint != "https://verify.example.org" {
		t.Errorf("unexpected endpoint: %s", cfg.Settings.APIEndpoint)
	}
}

func TestVerifyClaims_SingleBatchRequest(t *testing.T) {
	var batches, singles int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case verify.EndpointBatch:
			atomic.AddInt32(&batches, 1)
			var req struct {
				Claims []string `json:"claims"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			out := make([]map[string]any, len(req.Claims))
			for i, c := range req.Claims {
				out[i] = map[string]any{"claim": c, "rating": "questionable", "confidence": 55}
			}
			_ = json.NewEncoder(w).Encode(out)
		default:
			atomic.AddInt32(&singles, 1)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := verify.New(srv.URL, model.ClientConfig{Attempts: 1, AttemptTimeout: time.Second}, nil, nil)
	var out bytes.Buffer
	verifyClaims(context.Background(), client, []string{"Water boils at 100 degrees.", "Most cats are always black."}, verify.PageContext{}, &out)

	if atomic.LoadInt32(&batches) != 1 || atomic.LoadInt32(&singles) != 0 {
		t.Errorf("expected one batch request and no single requests, got %d and %d", atomic.LoadInt32(&batches), atomic.LoadInt32(&singles))
	}
	got := out.String()
	for _, want := range []string{"1. Water boils at 100 degrees.", "2. Most cats are always black.", "Questionable", "55% confidence"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestVerifyClaims_Empty(t *testing.T) {
	var out bytes.Buffer
	verifyClaims(context.Background(), verify.New("http://127.0.0.1:1", model.ClientConfig{}, nil, nil), nil, verify.PageContext{}, &out)
	if !strings.Contains(out.String(), "No claims") {
		t.Errorf("unexpected output %q", out.String())
	}
}
