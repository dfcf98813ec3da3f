package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/verity/internal/model"
	"github.com/ppiankov/verity/internal/pipeline"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const productHTML = `<html><body>
<p>This supplement is proven to boost energy by 300% according to new research.</p>
<p>Only 2 left in stock!</p>
</body></html>`

// fakeBackend serves the verification API and records feedback reports
type fakeBackend struct {
	*httptest.Server
	mu       sync.Mutex
	feedback []map[string]any
	healthy  bool
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{healthy: true}
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/verify-claim":
			var req map[string]string
			_ = json.NewDecoder(r.Body).Decode(&req)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"claim":       req["claim"],
				"rating":      "false",
				"confidence":  91,
				"sources":     []map[string]string{{"name": "Journal", "url": "https://journal.example/a"}},
				"explanation": "Contradicted by trials.",
			})
		case strings.HasPrefix(r.URL.Path, "/api/domain-trust/"):
			_ = json.NewEncoder(w).Encode(map[string]any{"domain": "shop.example.com", "score": 40, "verificationsCount": 3})
		case r.URL.Path == "/api/report":
			var req map[string]any
			_ = json.NewDecoder(r.Body).Decode(&req)
			b.mu.Lock()
			b.feedback = append(b.feedback, req)
			b.mu.Unlock()
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == "/api/health":
			b.mu.Lock()
			healthy := b.healthy
			b.mu.Unlock()
			if !healthy {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(b.Close)
	return b
}

func (b *fakeBackend) reports() []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]map[string]any(nil), b.feedback...)
}

func newTestServer(t *testing.T, backend *fakeBackend) *gin.Engine {
	t.Helper()
	cfg := model.DefaultConfig()
	cfg.Settings.APIEndpoint = backend.URL
	cfg.Cache.Enabled = false
	cfg.Scan.RespectRobots = false
	return New(pipeline.NewPipeline(cfg, nil, nil), cfg.Server, nil).Router()
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestScanAndRegionLookup(t *testing.T) {
	r := newTestServer(t, newFakeBackend(t))

	w := doJSON(t, r, http.MethodPost, "/v1/scan", map[string]any{
		"html": productHTML,
		"url":  "https://shop.example.com/item",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp scanResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, model.Counts{False: 1}, resp.Counts)
	assert.Equal(t, model.Badge{Count: 1, Color: model.BadgeColorFalse}, resp.Badge)
	assert.Equal(t, "Verity found 1 claim", resp.Message)
	require.NotNil(t, resp.Trust)
	assert.Equal(t, 40, resp.Trust.Score)
	require.Len(t, resp.Findings, 1)
	assert.Equal(t, model.FindingFakeScarcity, resp.Findings[0].Type)
	require.Len(t, resp.Regions, 1)
	assert.Contains(t, resp.HTML, `id="`+resp.Regions[0].ID+`"`)

	w = doJSON(t, r, http.MethodGet, "/v1/sessions/"+resp.SessionID+"/regions/"+resp.Regions[0].ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var region model.AnnotatedRegion
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &region))
	assert.Equal(t, "Contradicted by trials.", region.Result.Explanation)
	assert.Equal(t, model.ProvenanceAuthoritative, region.Result.Provenance)

	w = doJSON(t, r, http.MethodGet, "/v1/sessions/"+resp.SessionID+"/regions/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = doJSON(t, r, http.MethodGet, "/v1/sessions/nope/regions/"+resp.Regions[0].ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestScan_SettingsOverride(t *testing.T) {
	r := newTestServer(t, newFakeBackend(t))

	w := doJSON(t, r, http.MethodPost, "/v1/scan", map[string]any{
		"html": productHTML,
		"url":  "https://shop.example.com/item",
		"settings": map[string]any{
			"autoVerify":           false,
			"darkPatternDetection": false,
			"domainTrustScore":     false,
			"verificationDelay":    5000,
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp scanResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Regions)
	assert.Empty(t, resp.Findings)
	assert.Nil(t, resp.Trust)
	assert.Equal(t, model.BadgeColorIdle, resp.Badge.Color)
}

func TestScan_BadRequest(t *testing.T) {
	r := newTestServer(t, newFakeBackend(t))

	w := doJSON(t, r, http.MethodPost, "/v1/scan", map[string]any{"url": "https://shop.example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/v1/scan", map[string]any{"html": "<p>x</p>", "url": "not a url"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerify(t *testing.T) {
	r := newTestServer(t, newFakeBackend(t))

	w := doJSON(t, r, http.MethodPost, "/v1/verify", map[string]any{
		"claim": "Cuts costs by 50%.",
		"url":   "https://shop.example.com/item",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var result model.VerificationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, model.RatingFalse, result.Rating)
	assert.Equal(t, 91, result.Confidence)

	w = doJSON(t, r, http.MethodPost, "/v1/verify", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFeedback_Accepted(t *testing.T) {
	backend := newFakeBackend(t)
	r := newTestServer(t, backend)

	w := doJSON(t, r, http.MethodPost, "/v1/feedback", map[string]any{
		"claimId":   "verity-1-abc",
		"isCorrect": false,
		"feedback":  "Outdated",
	})
	assert.Equal(t, http.StatusAccepted, w.Code)

	assert.Eventually(t, func() bool { return len(backend.reports()) == 1 }, 2*time.Second, 10*time.Millisecond)
	report := backend.reports()[0]
	assert.Equal(t, "verity-1-abc", report["claimId"])
	assert.Equal(t, false, report["isCorrect"])
}

func TestFeedback_AcceptedWhenBackendDown(t *testing.T) {
	backend := newFakeBackend(t)
	r := newTestServer(t, backend)
	backend.Close()

	w := doJSON(t, r, http.MethodPost, "/v1/feedback", map[string]any{"claimId": "x", "isCorrect": true})
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	backend := newFakeBackend(t)
	r := newTestServer(t, backend)

	w := doJSON(t, r, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","backend":true}`, w.Body.String())

	backend.mu.Lock()
	backend.healthy = false
	backend.mu.Unlock()
	w = doJSON(t, r, http.MethodGet, "/healthz", nil)
	assert.JSONEq(t, `{"status":"ok","backend":false}`, w.Body.String())

	// Populate at least one series
	doJSON(t, r, http.MethodPost, "/v1/scan", map[string]any{"html": productHTML, "url": "https://shop.example.com/item"})
	w = doJSON(t, r, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "verity_scans_total")
}

func TestCORS(t *testing.T) {
	r := newTestServer(t, newFakeBackend(t))

	req := httptest.NewRequest(http.MethodOptions, "/v1/scan", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
