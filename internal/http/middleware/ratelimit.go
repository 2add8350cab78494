// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the edge limiter: a per-identity token bucket
// (golang.org/x/time/rate) that protects the process from bursts. It is
// independent of the per-user daily search quota enforced in the services.
//
// Buckets are keyed by user id when known, otherwise by client IP, and idle
// buckets are swept every sweepEvery lookups. A request the idempotency
// validator identifies as a replay gets its token back once the handler has
// run, so retried POSTs are not charged twice.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const sweepEvery = 5000

// KeyFunc selects the bucket identity for a request.
type KeyFunc func(*gin.Context) string

// KeyByUserOrIP prefers the authenticated user ("user:<id>") and falls back
// to the client address ("ip:<addr>").
func KeyByUserOrIP() KeyFunc {
	return func(c *gin.Context) string {
		if uid, ok := UserID(c); ok {
			return "user:" + uid
		}
		return "ip:" + c.ClientIP()
	}
}

// RateLimitOptions configures NewRateLimiter.
type RateLimitOptions struct {
	RPS   float64
	Burst int // <= 0 means 1
	Key   KeyFunc
	// IdleTTL evicts buckets not seen for this long. Defaults to 10m.
	IdleTTL time.Duration
	// Now is the limiter clock. Defaults to time.Now.
	Now func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a concurrency-safe set of per-key token buckets.
type RateLimiter struct {
	limit rate.Limit
	burst int
	key   KeyFunc
	ttl   time.Duration
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
	lookups int
}

// NewRateLimiter builds a limiter from opts.
func NewRateLimiter(opts RateLimitOptions) *RateLimiter {
	rl := &RateLimiter{
		limit:   rate.Limit(opts.RPS),
		burst:   opts.Burst,
		key:     opts.Key,
		ttl:     opts.IdleTTL,
		now:     opts.Now,
		buckets: make(map[string]*bucket),
	}
	if rl.burst <= 0 {
		rl.burst = 1
	}
	if rl.key == nil {
		rl.key = KeyByUserOrIP()
	}
	if rl.ttl <= 0 {
		rl.ttl = 10 * time.Minute
	}
	if rl.now == nil {
		rl.now = time.Now
	}
	return rl
}

// Len reports the number of live buckets.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

func (rl *RateLimiter) bucketFor(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Sweep before touching key so a stale bucket for key is dropped too.
	rl.lookups++
	if rl.lookups >= sweepEvery {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.ttl {
				delete(rl.buckets, k)
			}
		}
		rl.lookups = 0
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

// IsRateBypass reports whether the request was marked as an idempotent
// replay and should not be charged.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler returns the Gin middleware. Rejections are 429 rate_limited with
// a Retry-After header in whole seconds.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		now := rl.now()
		res := rl.bucketFor(rl.key(c), now).ReserveN(now, 1)
		if !res.OK() {
			rl.reject(c, time.Second)
			return
		}
		if delay := res.DelayFrom(now); delay > 0 {
			res.CancelAt(now)
			rl.reject(c, delay)
			return
		}

		c.Next()

		if IsRateBypass(c) {
			res.CancelAt(now)
		}
	}
}

func (rl *RateLimiter) reject(c *gin.Context, wait time.Duration) {
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		secs = 1
	}
	c.Header("Retry-After", strconv.Itoa(secs))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       "rate_limited",
		"message":    "rate limit exceeded",
	})
}
