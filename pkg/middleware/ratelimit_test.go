package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

type memCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func (c *memCounter) Incr(_ context.Context, key string, _ time.Duration) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int64)
	}
	c.counts[key]++
	return c.counts[key], nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/payment/webhook", nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_SharedCounter(t *testing.T) {
	counter := &memCounter{}
	rl := NewRateLimiter(RateLimitConfig{Limit: 2, Window: time.Minute}, counter, zaptest.NewLogger(t))
	defer rl.Shutdown()
	h := rl.Middleware("payment_webhook", okHandler())

	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:5000").Code)
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:5001").Code)

	rec := hit(h, "10.0.0.1:5002")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"success":false,"error":"Too many requests","code":"RATE_LIMITED"}`, rec.Body.String())

	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.2:5000").Code)
	assert.Equal(t, int64(3), counter.counts["payment_webhook:10.0.0.1"])
}

func TestRateLimiter_FallsBackToLocalLimiter(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{Limit: 3, Window: time.Hour}, &memCounter{err: errors.New("dial tcp: connection refused")}, zaptest.NewLogger(t))
	defer rl.Shutdown()
	h := rl.Middleware("refund_webhook", okHandler())

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit(h, "10.0.0.9:1").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.9:1").Code)
}

func TestRateLimiter_NoCounter(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{}, nil, zaptest.NewLogger(t))
	defer rl.Shutdown()

	assert.Equal(t, 120, rl.cfg.Limit)
	assert.Equal(t, http.StatusOK, hit(rl.Middleware("x", okHandler()), "10.0.0.1:1").Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:4431"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	assert.Equal(t, "192.0.2.10", ClientIP(req, false))
	assert.Equal(t, "203.0.113.7", ClientIP(req, true))

	req.Header.Del("X-Forwarded-For")
	req.Header.Set("X-Real-IP", "198.51.100.4")
	assert.Equal(t, "198.51.100.4", ClientIP(req, true))
}

func TestLocalLimiter_EvictsOldestAtCapacity(t *testing.T) {
	l := newLocalLimiter(1, 1)
	defer l.shutdown()
	l.maxSize = 2

	l.get("a")
	time.Sleep(time.Millisecond)
	l.get("b")
	l.get("c")

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Len(t, l.limiters, 2)
	assert.NotContains(t, l.limiters, "a")
}
