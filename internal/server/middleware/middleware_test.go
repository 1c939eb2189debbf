package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestAuth(t *testing.T) {
	h := Auth("k3y")(ok)

	assert.Equal(t, http.StatusUnauthorized, serve(h, httptest.NewRequest(http.MethodPost, "/", nil)).Code)

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, serve(h, r).Code)

	r = httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("Authorization", "bearer k3y")
	assert.Equal(t, http.StatusOK, serve(h, r).Code)

	r = httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("X-API-Key", "k3y")
	assert.Equal(t, http.StatusOK, serve(h, r).Code)

	assert.Equal(t, http.StatusOK, serve(Auth("")(ok), httptest.NewRequest(http.MethodPost, "/", nil)).Code)
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://app.example"})(ok)

	r := httptest.NewRequest(http.MethodOptions, "/", nil)
	r.Header.Set("Origin", "https://app.example")
	rec := serve(h, r)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-Amby-Signature")

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Origin", "https://evil.example")
	rec = serve(h, r)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

type stubLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (s *stubLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	s.keys = append(s.keys, key)
	return s.allow, s.err
}

func TestRateLimit(t *testing.T) {
	deny := &stubLimiter{}
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	rec := serve(RateLimit(deny, 1, time.Second, quietLogger())(ok), r)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, []string{"api:10.0.0.1"}, deny.keys)

	broken := &stubLimiter{err: errors.New("redis down")}
	rec = serve(RateLimit(broken, 1, time.Second, quietLogger())(ok), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLocalLimiter(t *testing.T) {
	l := NewLocalLimiter()
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := l.Allow(ctx, "a", 3, time.Second)
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, _ := l.Allow(ctx, "a", 3, time.Second)
	assert.False(t, allowed)

	allowed, _ = l.Allow(ctx, "b", 3, time.Second)
	assert.True(t, allowed, "buckets are per key")

	now = now.Add(time.Second)
	allowed, _ = l.Allow(ctx, "a", 3, time.Second)
	assert.True(t, allowed)
}

type routeCounter struct{ routes []string }

func (c *routeCounter) ObserveHTTP(route string, _ int) { c.routes = append(c.routes, route) }

func TestLoggingReportsPattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("GET /api/markets/{id}", ok)
	obs := &routeCounter{}

	serve(Logging(quietLogger(), obs)(mux), httptest.NewRequest(http.MethodGet, "/api/markets/7", nil))
	assert.Equal(t, []string{"GET /api/markets/{id}"}, obs.routes)
}
