package mw

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/MrSnakeDoc/stash/internal/utils"
)

type RateLimitConfig struct {
	Burst             int
	RefillPerIPPerMin int
	MaxEntries        int
	SweepInterval     time.Duration
	IdleTTL           time.Duration
	TrustProxy        bool
	Now               func() time.Time // for testing
}

func (c *RateLimitConfig) withDefaults() {
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = 15 * time.Minute
	}
	c.Burst = max(c.Burst, 1)
	c.RefillPerIPPerMin = max(c.RefillPerIPPerMin, 1)
	if c.MaxEntries <= 0 {
		c.MaxEntries = 4096
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// bucket is a token bucket for one client IP.
type bucket struct {
	tokens   float64
	refilled time.Time
	seen     time.Time
}

// take refills the bucket up to capacity and consumes one token.
// It returns the tokens left or, when empty, how long to wait.
func (b *bucket) take(now time.Time, rate, capacity float64) (left int, wait time.Duration) {
	if elapsed := now.Sub(b.refilled).Seconds(); elapsed > 0 {
		b.tokens = math.Min(capacity, b.tokens+elapsed*rate)
		b.refilled = now
	}
	b.seen = now
	if b.tokens >= 1 {
		b.tokens--
		return int(b.tokens), 0
	}
	secs := math.Ceil((1 - b.tokens) / rate)
	return 0, time.Duration(max(secs, 1)) * time.Second
}

type limiter struct {
	cfg       RateLimitConfig
	rate      float64
	capacity  float64
	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

func newLimiter(cfg RateLimitConfig) *limiter {
	cfg.withDefaults()
	return &limiter{
		cfg:       cfg,
		rate:      float64(cfg.RefillPerIPPerMin) / 60.0,
		capacity:  float64(cfg.Burst),
		buckets:   make(map[string]*bucket, 64),
		lastSweep: cfg.Now(),
	}
}

func (l *limiter) allow(key string) (left int, wait time.Duration) {
	now := l.cfg.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.cfg.SweepInterval || len(l.buckets) >= l.cfg.MaxEntries {
		l.sweepLocked(now)
	}
	b := l.buckets[key]
	if b == nil {
		b = &bucket{tokens: l.capacity, refilled: now}
		l.buckets[key] = b
	}
	return b.take(now, l.rate, l.capacity)
}

func (l *limiter) sweepLocked(now time.Time) {
	for ip, b := range l.buckets {
		if now.Sub(b.seen) > l.cfg.IdleTTL {
			delete(l.buckets, ip)
		}
	}
	l.lastSweep = now
}

// RateLimit applies a per-client-IP token bucket. Rejected requests get
// 429 with Retry-After.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	l := newLimiter(cfg)
	limit := strconv.Itoa(l.cfg.Burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			left, wait := l.allow(utils.ClientIP(r, l.cfg.TrustProxy))
			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(left))
			if wait > 0 {
				h.Set("Retry-After", strconv.Itoa(int(wait/time.Second)))
				h.Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": "rate limited"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
