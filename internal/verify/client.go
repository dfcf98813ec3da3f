// Package verify talks to the verification backend. Every answer it returns is
// tagged with its provenance: backend failures never surface as errors, they
// degrade to locally synthesized values marked as such.
package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ppiankov/verity/internal/cache"
	"github.com/ppiankov/verity/internal/metrics"
	"github.com/ppiankov/verity/internal/model"
	"github.com/ppiankov/verity/internal/util"
	"github.com/ppiankov/verity/internal/worker"
)

// Backend endpoints
const (
	EndpointVerify = "/api/verify-claim"
	EndpointTrust  = "/api/domain-trust/"
	EndpointBatch  = "/api/batch-verify"
	EndpointReport = "/api/report"
	EndpointHealth = "/api/health"
)

var (
	// ErrUnexpectedStatus is returned for non-2xx backend responses
	ErrUnexpectedStatus = errors.New("unexpected status")

	// ErrDecode is returned when a 2xx body cannot be read as the expected shape
	ErrDecode = errors.New("decode response")

	// ErrCancelled is returned when the caller's context ends before the attempts are used up
	ErrCancelled = errors.New("verification cancelled")
)

// retrySleepFunc waits between attempts (injectable for tests)
var retrySleepFunc = sleepContext

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// PageContext identifies the page a claim was found on
type PageContext struct {
	URL    string `json:"url"`
	Domain string `json:"domain"`
}

// Client is the verification backend client
type Client struct {
	endpoint       string
	httpClient     *http.Client
	userAgent      string
	attempts       int
	attemptTimeout time.Duration
	backoffBase    time.Duration
	concurrency    int

	limiter  *worker.Limiter
	cache    cache.Cache
	cacheTTL time.Duration
	group    singleflight.Group
	policy   *bluemonday.Policy
	logger   *slog.Logger
}

// New creates a client for the backend at endpoint. A nil cache disables caching.
func New(endpoint string, cfg model.ClientConfig, c cache.Cache, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if c == nil {
		c = cache.Noop{}
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 10 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 6
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = model.DefaultUserAgent
	}

	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy),
			},
		},
		userAgent:      cfg.UserAgent,
		attempts:       cfg.Attempts,
		attemptTimeout: cfg.AttemptTimeout,
		backoffBase:    cfg.BackoffBase,
		concurrency:    cfg.Concurrency,
		limiter:        worker.NewLimiter(cfg.RequestsPerSecond, cfg.Burst),
		cache:          c,
		policy:         bluemonday.StrictPolicy(),
		logger:         logger,
	}
}

// Endpoint returns the backend base URL
func (c *Client) Endpoint() string {
	return c.endpoint
}

type verifyRequest struct {
	Claim  string `json:"claim"`
	URL    string `json:"url"`
	Domain string `json:"domain"`
}

type verifyResponse struct {
	Claim       string         `json:"claim"`
	Rating      string         `json:"rating"`
	Confidence  float64        `json:"confidence"`
	Sources     []model.Source `json:"sources"`
	Explanation string         `json:"explanation"`
}

type trustResponse struct {
	Domain             string  `json:"domain"`
	Score              float64 `json:"score"`
	VerificationsCount int     `json:"verificationsCount"`
}

type batchRequest struct {
	Claims []string `json:"claims"`
}

type feedbackRequest struct {
	ClaimID   string `json:"claimId"`
	IsCorrect bool   `json:"isCorrect"`
	Feedback  string `json:"feedback"`
}

// Verify classifies one claim. After all attempts fail it returns a degraded result.
func (c *Client) Verify(ctx context.Context, claim string, page PageContext) model.VerificationResult {
	result, err := c.TryVerify(ctx, claim, page)
	if err != nil {
		c.logger.Warn("verification degraded", "claim", truncate(claim, 60), "provenance", model.ProvenanceDegraded, "error", err)
		metrics.DegradedFallbacks.WithLabelValues("verify").Inc()
		return FallbackResult(claim)
	}
	return result
}

// TryVerify is Verify without the fallback for cancellation: when ctx ends
// before the attempts are used up it returns an error wrapping ErrCancelled
// and no result. Exhausted attempts still yield a degraded result.
func (c *Client) TryVerify(ctx context.Context, claim string, page PageContext) (model.VerificationResult, error) {
	key := cache.ClaimKey(claim, page.Domain)
	if result, ok := c.cachedResult(key); ok {
		result.Claim = claim
		return result, nil
	}

	var resp verifyResponse
	err := c.retry(ctx, EndpointVerify, func(attemptCtx context.Context) error {
		resp = verifyResponse{}
		return c.doJSON(attemptCtx, http.MethodPost, EndpointVerify, verifyRequest{Claim: claim, URL: page.URL, Domain: page.Domain}, &resp)
	})
	if errors.Is(err, ErrCancelled) {
		return model.VerificationResult{}, err
	}
	if err == nil {
		result, convErr := c.toResult(claim, resp)
		if convErr == nil {
			c.storeResult(key, result)
			return result, nil
		}
		err = convErr
	}

	c.logger.Warn("verification degraded", "claim", truncate(claim, 60), "provenance", model.ProvenanceDegraded, "error", err)
	metrics.DegradedFallbacks.WithLabelValues("verify").Inc()
	return FallbackResult(claim), nil
}

// GetDomainTrust returns the domain's trust score with the same retry and fallback contract as Verify.
// Concurrent lookups of one domain share a single request that no caller can
// cancel; a caller whose ctx ends stops waiting and gets a degraded score.
func (c *Client) GetDomainTrust(ctx context.Context, domain string) model.TrustScore {
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(domain, func() (any, error) {
		return c.domainTrust(shared, domain), nil
	})

	select {
	case res := <-ch:
		return res.Val.(model.TrustScore)
	case <-ctx.Done():
		c.logger.Debug("domain trust lookup abandoned", "domain", domain, "error", ctx.Err())
		return FallbackTrust(domain)
	}
}

func (c *Client) domainTrust(ctx context.Context, domain string) model.TrustScore {
	key := cache.TrustKey(domain)
	if raw, ok := c.cache.Get(key); ok {
		var score model.TrustScore
		if json.Unmarshal(raw, &score) == nil && !score.IsDegraded() {
			metrics.CacheLookups.WithLabelValues("trust", "hit").Inc()
			return score
		}
	}
	metrics.CacheLookups.WithLabelValues("trust", "miss").Inc()

	path := EndpointTrust + url.PathEscape(domain)
	var resp trustResponse
	err := c.retry(ctx, EndpointTrust, func(attemptCtx context.Context) error {
		resp = trustResponse{}
		return c.doJSON(attemptCtx, http.MethodGet, path, nil, &resp)
	})
	if err == nil {
		score := model.TrustScore{
			Domain:             domain,
			Score:              clampInt(int(resp.Score+0.5), 0, 100),
			VerificationsCount: max(resp.VerificationsCount, 0),
			Provenance:         model.ProvenanceAuthoritative,
		}
		if raw, err := json.Marshal(score); err == nil {
			_ = c.cache.Set(key, raw, 0)
		}
		return score
	}

	c.logger.Warn("domain trust degraded", "domain", domain, "provenance", model.ProvenanceDegraded, "error", err)
	metrics.DegradedFallbacks.WithLabelValues("trust").Inc()
	return FallbackTrust(domain)
}

// VerifyBatch verifies claims in one backend call. If the batch call fails, or
// returns the wrong number of items, every claim is verified on its own with at
// most the configured number in flight. Results align with claims by index.
func (c *Client) VerifyBatch(ctx context.Context, claims []string, page PageContext) []model.VerificationResult {
	results := make([]model.VerificationResult, len(claims))
	if len(claims) == 0 {
		return results
	}

	var resp []verifyResponse
	err := c.retry(ctx, EndpointBatch, func(attemptCtx context.Context) error {
		resp = nil
		return c.doJSON(attemptCtx, http.MethodPost, EndpointBatch, batchRequest{Claims: claims}, &resp)
	})
	if err == nil && len(resp) != len(claims) {
		err = fmt.Errorf("%w: %d results for %d claims", ErrDecode, len(resp), len(claims))
	}

	var pending []int
	if err == nil {
		for i, item := range resp {
			result, convErr := c.toResult(claims[i], item)
			if convErr != nil {
				pending = append(pending, i)
				continue
			}
			c.storeResult(cache.ClaimKey(claims[i], page.Domain), result)
			results[i] = result
		}
	} else {
		c.logger.Warn("batch verification failed, verifying individually", "claims", len(claims), "error", err)
		metrics.DegradedFallbacks.WithLabelValues("batch").Inc()
		for i := range claims {
			pending = append(pending, i)
		}
	}

	if len(pending) == 0 {
		return results
	}

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for _, i := range pending {
		g.Go(func() error {
			results[i] = c.Verify(ctx, claims[i], page)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// ReportFeedback sends user feedback once. Failures are logged and dropped.
func (c *Client) ReportFeedback(ctx context.Context, claimID string, isCorrect bool, feedback string) {
	attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.attemptTimeout)
	defer cancel()

	err := c.doJSON(attemptCtx, http.MethodPost, EndpointReport, feedbackRequest{ClaimID: claimID, IsCorrect: isCorrect, Feedback: feedback}, nil)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		c.logger.Warn("feedback not delivered", "claim_id", claimID, "error", err)
	}
	metrics.VerifyAttempts.WithLabelValues(EndpointReport, outcome).Inc()
}

// Healthy reports whether the backend answers its health check with a 2xx
func (c *Client) Healthy(ctx context.Context) bool {
	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	if err := c.doJSON(attemptCtx, http.MethodGet, EndpointHealth, nil, nil); err != nil {
		c.logger.Debug("backend unhealthy", "endpoint", c.endpoint, "error", err)
		return false
	}
	return true
}

// retry runs attempt up to c.attempts times. Each attempt gets its own timeout
// and is detached from ctx cancellation, so an attempt in flight runs to
// completion; cancellation only prevents further attempts.
func (c *Client) retry(ctx context.Context, endpoint string, attempt func(ctx context.Context) error) error {
	var lastErr error
	for n := 1; n <= c.attempts; n++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w before attempt %d: %w", ErrCancelled, n, err)
		}
		if err := c.limiter.Wait(ctx, c.endpoint); err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w waiting for rate limit: %w", ErrCancelled, err)
			}
			return fmt.Errorf("rate limit: %w", err)
		}

		attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.attemptTimeout)
		start := time.Now()
		err := attempt(attemptCtx)
		cancel()
		metrics.VerifyDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

		if err == nil {
			metrics.VerifyAttempts.WithLabelValues(endpoint, "ok").Inc()
			return nil
		}
		metrics.VerifyAttempts.WithLabelValues(endpoint, "error").Inc()
		lastErr = err

		if n < c.attempts {
			c.logger.Warn("backend attempt failed", "endpoint", endpoint, "attempt", n, "max", c.attempts, "error", err)
			if err := retrySleepFunc(ctx, c.backoffBase*time.Duration(n)); err != nil {
				return fmt.Errorf("%w during backoff after %d attempts: %w", ErrCancelled, n, err)
			}
		}
	}
	return fmt.Errorf("%d attempts failed: %w", c.attempts, lastErr)
}

// doJSON performs one request; body and out may be nil
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

// toResult converts a backend answer, rejecting ratings outside the closed set
func (c *Client) toResult(claim string, resp verifyResponse) (model.VerificationResult, error) {
	rating, ok := model.ParseRating(strings.ToLower(strings.TrimSpace(resp.Rating)))
	if !ok {
		return model.VerificationResult{}, fmt.Errorf("%w: unknown rating %q", ErrDecode, resp.Rating)
	}

	sources := make([]model.Source, 0, len(resp.Sources))
	for _, s := range resp.Sources {
		sources = append(sources, model.Source{Name: c.sanitize(s.Name), URL: safeURL(s.URL)})
	}

	return model.Authoritative(model.VerificationResult{
		Claim:       claim,
		Rating:      rating,
		Confidence:  int(resp.Confidence + 0.5),
		Sources:     sources,
		Explanation: c.sanitize(resp.Explanation),
	}), nil
}

func (c *Client) cachedResult(key string) (model.VerificationResult, bool) {
	raw, ok := c.cache.Get(key)
	if ok {
		var result model.VerificationResult
		if json.Unmarshal(raw, &result) == nil && !result.IsDegraded() {
			metrics.CacheLookups.WithLabelValues("claim", "hit").Inc()
			return result, true
		}
	}
	metrics.CacheLookups.WithLabelValues("claim", "miss").Inc()
	return model.VerificationResult{}, false
}

// storeResult caches authoritative results only
func (c *Client) storeResult(key string, result model.VerificationResult) {
	if result.IsDegraded() {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := c.cache.Set(key, raw, 0); err != nil {
		c.logger.Debug("cache write failed", "error", err)
	}
}

// sanitize strips markup from backend text; the tree renderer escapes on output
func (c *Client) sanitize(s string) string {
	return strings.TrimSpace(html.UnescapeString(c.policy.Sanitize(s)))
}

// safeURL keeps only http(s) source links
func safeURL(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return ""
	}
	return parsed.String()
}

func clampInt(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
