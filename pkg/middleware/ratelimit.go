package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kevin07696/checkout-reconciler/pkg/observability"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Counter is a fixed-window hit counter shared across instances
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RateLimitConfig configures per-client limits
type RateLimitConfig struct {
	Limit  int           // requests allowed per window
	Window time.Duration // window length
	// TrustProxy uses the first X-Forwarded-For hop as the client address.
	// Enable only behind a proxy that overwrites the header.
	TrustProxy bool
}

// DefaultRateLimitConfig allows 120 requests per minute per client
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{Limit: 120, Window: time.Minute}
}

// RateLimiter limits requests per client address. With a shared counter
// the limit holds across instances; without one, or when the counter is
// unreachable, an in-process token bucket per address is used instead.
type RateLimiter struct {
	cfg     RateLimitConfig
	counter Counter
	local   *localLimiter
	logger  *zap.Logger
}

// NewRateLimiter creates a limiter. counter may be nil.
func NewRateLimiter(cfg RateLimitConfig, counter Counter, logger *zap.Logger) *RateLimiter {
	if cfg.Limit <= 0 || cfg.Window <= 0 {
		def := DefaultRateLimitConfig()
		cfg.Limit, cfg.Window = def.Limit, def.Window
	}
	perSecond := float64(cfg.Limit) / cfg.Window.Seconds()
	return &RateLimiter{
		cfg:     cfg,
		counter: counter,
		local:   newLocalLimiter(rate.Limit(perSecond), cfg.Limit),
		logger:  logger,
	}
}

// Middleware applies the limit to next. route labels the metric and the counter key.
func (rl *RateLimiter) Middleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r, rl.cfg.TrustProxy)
		if !rl.allow(r.Context(), route, ip) {
			observability.RecordRateLimited(route)
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.cfg.Window.Seconds())))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"success":false,"error":"Too many requests","code":"RATE_LIMITED"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(ctx context.Context, route, ip string) bool {
	if rl.counter != nil {
		n, err := rl.counter.Incr(ctx, route+":"+ip, rl.cfg.Window)
		if err == nil {
			return n <= int64(rl.cfg.Limit)
		}
		rl.logger.Warn("Shared rate counter unavailable, using local limiter",
			zap.String("route", route),
			zap.Error(err),
		)
	}
	return rl.local.get(route + ":" + ip).Allow()
}

// Shutdown stops the local limiter's cleanup goroutine
func (rl *RateLimiter) Shutdown() {
	rl.local.shutdown()
}

// ClientIP returns the caller's address without the port
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// localLimiter keeps one token bucket per key with idle eviction
type localLimiter struct {
	mu              sync.Mutex
	limiters        map[string]*keyLimiter
	rate            rate.Limit
	burst           int
	maxSize         int
	cleanupInterval time.Duration
	stopCh          chan struct{}
	stopOnce        sync.Once
}

type keyLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

func newLocalLimiter(r rate.Limit, burst int) *localLimiter {
	l := &localLimiter{
		limiters:        make(map[string]*keyLimiter),
		rate:            r,
		burst:           burst,
		maxSize:         10000,
		cleanupInterval: 5 * time.Minute,
		stopCh:          make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

func (l *localLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

func (l *localLimiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := time.Now().Add(-l.cleanupInterval)
	for key, kl := range l.limiters {
		if kl.lastAccess.Before(cutoff) {
			delete(l.limiters, key)
		}
	}
}

func (l *localLimiter) shutdown() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

func (l *localLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if kl, ok := l.limiters[key]; ok {
		kl.lastAccess = time.Now()
		return kl.limiter
	}

	if len(l.limiters) >= l.maxSize {
		var oldestKey string
		var oldest time.Time
		for k, kl := range l.limiters {
			if oldestKey == "" || kl.lastAccess.Before(oldest) {
				oldestKey, oldest = k, kl.lastAccess
			}
		}
		delete(l.limiters, oldestKey)
	}

	kl := &keyLimiter{limiter: rate.NewLimiter(l.rate, l.burst), lastAccess: time.Now()}
	l.limiters[key] = kl
	return kl.limiter
}
