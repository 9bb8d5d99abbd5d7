package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dunamismax/imageoptimizer/internal/ratelimit"
	"github.com/dunamismax/imageoptimizer/internal/transform"
)

type stubLimiter struct {
	mu       sync.Mutex
	subjects []string
	costs    []int64
	allow    int
	err      error
}

func (l *stubLimiter) Allow(_ context.Context, subject string, cost int64) (ratelimit.Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.subjects = append(l.subjects, subject)
	l.costs = append(l.costs, cost)
	if l.err != nil {
		return ratelimit.Decision{}, l.err
	}
	if l.allow > 0 {
		l.allow--
		return ratelimit.Decision{Allowed: true, Remaining: int64(l.allow)}, nil
	}
	return ratelimit.Decision{Allowed: false, RetryAfter: 1500 * time.Millisecond}, nil
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","backend":"`+transform.Backend+`"}`, rec.Body.String())
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/healthz", nil)
	assert.NotEmpty(t, rec.Header().Get(headerRequestID))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(headerRequestID, "abc-123")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(headerRequestID))
}

func TestRateLimit(t *testing.T) {
	limiter := &stubLimiter{allow: 1}
	env := newTestEnv(t, func(d *Deps, _ *Options) { d.RateLimiter = limiter })

	body := map[string]any{"imageDataUrl": pngDataURL(t, 8, 8)}
	rec := env.do(t, http.MethodPost, "/v1/images/compress", body)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/images/compress", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))

	rec = env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, limiter.subjects, 2)
	assert.Equal(t, "ip:192.0.2.1:/v1/images/compress", limiter.subjects[0])
	assert.Equal(t, 1.0, testutil.ToFloat64(env.server.metrics.rateLimitRejected.WithLabelValues("/v1/images/compress")))
}

func TestRateLimitUsesUserHeader(t *testing.T) {
	limiter := &stubLimiter{allow: 10}
	env := newTestEnv(t, func(d *Deps, _ *Options) { d.RateLimiter = limiter })

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", strings.NewReader(`{}`))
	req.Header.Set(defaultUserIDHeader, "u-42")
	env.handler.ServeHTTP(httptest.NewRecorder(), req)

	require.Len(t, limiter.subjects, 1)
	assert.Equal(t, "user:u-42:/v1/jobs", limiter.subjects[0])
}

func TestRateLimitChargesByBodySize(t *testing.T) {
	limiter := &stubLimiter{allow: 10}
	env := newTestEnv(t, func(d *Deps, o *Options) {
		d.RateLimiter = limiter
		o.RateLimitBytesPerUnit = 1024
	})

	env.handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/jobs", strings.NewReader(`{}`)))
	env.handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/jobs", strings.NewReader(strings.Repeat(" ", 3000))))

	assert.Equal(t, []int64{1, 3}, limiter.costs)
}

func TestRateLimitFailsOpen(t *testing.T) {
	env := newTestEnv(t, func(d *Deps, _ *Options) { d.RateLimiter = &stubLimiter{err: errors.New("redis down")} })

	rec := env.do(t, http.MethodPost, "/v1/images/compress", map[string]any{"imageDataUrl": pngDataURL(t, 8, 8)})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodGet, "/healthz", nil)
	env.do(t, http.MethodGet, "/no/such/route", nil)

	rec := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := rec.Body.String()
	assert.Contains(t, out, `imageoptimizer_api_requests_total{method="GET",route="/healthz",status="200"} 1`)
	assert.Contains(t, out, `route="other",status="404"`)
}

func TestRouteLabel(t *testing.T) {
	tests := map[string]string{
		"/v1/jobs":                 "/v1/jobs",
		"/v1/jobs/abc":             "/v1/jobs/{id}",
		"/v1/jobs/abc/start":       "/v1/jobs/{id}/start",
		"/v1/images/resize":        "/v1/images/resize",
		"/v1/pdfs/split":           "/v1/pdfs/split",
		"/wp-admin/../../etc/pass": "other",
	}
	for path, want := range tests {
		assert.Equal(t, want, routeLabel(path), path)
	}
}
