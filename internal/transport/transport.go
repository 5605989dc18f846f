// Package transport is the single gateway for every outbound call to
// the remote service (C1, §4.1). It owns the process-wide rate
// limiter, user-agent rotation, session header injection, per-request
// timeouts, and retry-with-backoff, and classifies every failure into
// the error-kind taxonomy so callers never inspect status codes
// themselves.
package transport

import (
	"bytes"
	"context"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vidcrawl/vidcrawl/internal/apperrors"
)

// Option configures a Transport at construction time.
type Option func(*Transport)

// WithHTTPClient overrides the underlying *http.Client, mainly for
// tests that need a mock transport.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) { t.client = c }
}

// Transport is the single chokepoint described by §4.1. It is safe for
// concurrent use; the token bucket and the UA rotation cursor are the
// only process-wide mutable state (§5, §9).
type Transport struct {
	client *http.Client
	logger *zap.Logger

	limiter      *rate.Limiter
	randomOffset time.Duration

	maxRetries        int
	retryBaseInterval time.Duration
	timeout           time.Duration

	userAgents       []string
	uaRotateInterval time.Duration

	mu          sync.Mutex
	uaIndex     int
	uaRotatedAt time.Time

	sessionHeaders map[string]string
	sessionMu      sync.RWMutex

	rng *rand.Rand
}

// Config is the subset of the global configuration the transport
// needs. Passed by value so the transport never reaches back into the
// global config package.
type Config struct {
	RequestInterval   time.Duration
	RandomOffset      time.Duration
	MaxRetries        int
	RetryBaseInterval time.Duration
	Timeout           time.Duration
	UserAgents        []string
	UARotateInterval  time.Duration
}

// New builds a Transport from cfg. The token bucket rate is
// 1/RequestInterval with burst 1, per §4.1.
func New(cfg Config, logger *zap.Logger, opts ...Option) *Transport {
	interval := cfg.RequestInterval
	if interval <= 0 {
		interval = time.Millisecond
	}

	t := &Transport{
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.Named("transport"),

		limiter:      rate.NewLimiter(rate.Every(interval), 1),
		randomOffset: cfg.RandomOffset,

		maxRetries:        cfg.MaxRetries,
		retryBaseInterval: cfg.RetryBaseInterval,
		timeout:           cfg.Timeout,

		userAgents:       cfg.UserAgents,
		uaRotateInterval: cfg.UARotateInterval,
		uaRotatedAt:      time.Now(),

		sessionHeaders: make(map[string]string),
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetSessionHeaders replaces the headers injected into every request
// (cookies, auth tokens). Called by the session manager after
// login/refresh.
func (t *Transport) SetSessionHeaders(headers map[string]string) {
	t.sessionMu.Lock()
	defer t.sessionMu.Unlock()
	t.sessionHeaders = make(map[string]string, len(headers))
	for k, v := range headers {
		t.sessionHeaders[k] = v
	}
}

// Result is the parsed response body of a successful request.
type Result struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// Request performs a rate-limited, retried HTTP call and classifies
// failures per §4.1's contract. body may be nil.
func (t *Transport) Request(ctx context.Context, method, rawURL string, params url.Values, body []byte) (*Result, error) {
	var lastErr error

	for attempt := 1; attempt <= t.maxRetries+1; attempt++ {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, apperrors.Wrap(apperrors.KindTransient, "rate limiter wait", err)
		}
		t.jitterSleep(ctx)

		res, err := t.doOnce(ctx, method, rawURL, params, body)
		if err == nil {
			return res, nil
		}
		lastErr = err

		kind := apperrors.KindOf(err)
		if kind == apperrors.KindAuthExpired {
			// Not retried at this layer per §4.1.
			return nil, err
		}

		if attempt > t.maxRetries {
			break
		}

		delay := t.backoffDelay(attempt, err)
		t.logger.Debug("retrying request",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, apperrors.Wrap(apperrors.KindTransient, "context cancelled during retry", ctx.Err())
		}
	}

	return nil, lastErr
}

func (t *Transport) backoffDelay(attempt int, err error) time.Duration {
	if ae, ok := apperrors.AsAppError(err); ok && ae.Kind == apperrors.KindRateLimited && ae.RetryAfter > 0 {
		return clamp(ae.RetryAfter, t.retryBaseInterval, 60*time.Second)
	}
	backoff := t.retryBaseInterval * time.Duration(1<<uint(attempt-1))
	jitter := time.Duration(t.rng.Int63n(int64(t.retryBaseInterval) + 1))
	return backoff + jitter
}

func clamp(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

func (t *Transport) jitterSleep(ctx context.Context) {
	if t.randomOffset <= 0 {
		return
	}
	jitter := time.Duration(t.rng.Int63n(int64(t.randomOffset)))
	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

func (t *Transport) doOnce(ctx context.Context, method, rawURL string, params url.Values, body []byte) (*Result, error) {
	u := rawURL
	if params != nil && len(params) > 0 {
		u = rawURL + "?" + params.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindTransient, "build request", err)
	}

	req.Header.Set("User-Agent", t.currentUserAgent())
	t.sessionMu.RLock()
	for k, v := range t.sessionHeaders {
		req.Header.Set(k, v)
	}
	t.sessionMu.RUnlock()

	resp, err := t.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, apperrors.Wrap(apperrors.KindTransient, "context done", ctxErr)
		}
		return nil, apperrors.Wrap(apperrors.KindTransient, "request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindTransient, "read body", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return &Result{StatusCode: resp.StatusCode, Body: data, Header: resp.Header}, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, apperrors.New(apperrors.KindAuthExpired, "authentication failed")
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, apperrors.RateLimited(retryAfterFromHeader(resp.Header, t.retryBaseInterval))
	default:
		return nil, apperrors.RemoteError(resp.StatusCode, string(data))
	}
}

func retryAfterFromHeader(h http.Header, fallback time.Duration) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

// CurrentUserAgent exposes the same rotating UA Request uses, for
// callers that need to issue requests outside the gateway (e.g. the
// stream downloader's byte-range fetcher, which bypasses Request
// because it must not buffer whole bodies in memory).
func (t *Transport) CurrentUserAgent() string {
	return t.currentUserAgent()
}

// SessionHeaders returns a copy of the headers Request injects into
// every call, for the same out-of-band callers CurrentUserAgent serves.
func (t *Transport) SessionHeaders() map[string]string {
	t.sessionMu.RLock()
	defer t.sessionMu.RUnlock()
	out := make(map[string]string, len(t.sessionHeaders))
	for k, v := range t.sessionHeaders {
		out[k] = v
	}
	return out
}

// currentUserAgent returns the UA for this request, rotating the
// shared cursor if the rotation interval has elapsed (§4.1).
func (t *Transport) currentUserAgent() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.userAgents) == 0 {
		return "vidcrawl/1.0"
	}
	if t.uaRotateInterval > 0 && time.Since(t.uaRotatedAt) >= t.uaRotateInterval {
		t.uaIndex = (t.uaIndex + 1) % len(t.userAgents)
		t.uaRotatedAt = time.Now()
	}
	return t.userAgents[t.uaIndex]
}
