package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TokenBucket implements a token bucket rate limiter
type TokenBucket struct {
	mu       sync.Mutex
	rate     float64 // tokens per second
	burst    int
	tokens   float64
	lastTime time.Time
}

// NewTokenBucket creates a full bucket
func NewTokenBucket(perSecond float64, burst int) *TokenBucket {
	return &TokenBucket{
		rate:     perSecond,
		burst:    burst,
		tokens:   float64(burst),
		lastTime: time.Now(),
	}
}

// Take removes one token. When none is available it reports how long until
// one will be.
func (tb *TokenBucket) Take(now time.Time) (bool, time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill(now)
	if tb.tokens >= 1 {
		tb.tokens--
		return true, 0
	}
	if tb.rate <= 0 {
		return false, time.Duration(math.MaxInt64)
	}
	wait := time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
	return false, wait
}

func (tb *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(tb.lastTime).Seconds()
	if elapsed > 0 {
		tb.tokens = math.Min(float64(tb.burst), tb.tokens+elapsed*tb.rate)
		tb.lastTime = now
	}
}

func (tb *TokenBucket) idleSince(cutoff time.Time) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.lastTime.Before(cutoff)
}

// RateLimiter keeps one bucket per key
type RateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*TokenBucket
	rate     float64
	burst    int
	now      func() time.Time
	lastSwep time.Time
}

// NewRateLimiter allows requestsPerMinute per key with the given burst
func NewRateLimiter(requestsPerMinute, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		buckets: make(map[string]*TokenBucket),
		rate:    float64(requestsPerMinute) / 60.0,
		burst:   burst,
		now:     time.Now,
	}
}

// Allow takes a token from key's bucket
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	now := rl.now()

	rl.mu.Lock()
	bucket, ok := rl.buckets[key]
	if !ok {
		bucket = NewTokenBucket(rl.rate, rl.burst)
		bucket.lastTime = now
		rl.buckets[key] = bucket
	}
	rl.sweep(now)
	rl.mu.Unlock()

	return bucket.Take(now)
}

// sweep drops buckets idle long enough to have refilled; callers hold rl.mu
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSwep) < time.Minute {
		return
	}
	rl.lastSwep = now

	refill := time.Minute
	if rl.rate > 0 {
		refill = time.Duration(float64(rl.burst) / rl.rate * float64(time.Second))
	}
	cutoff := now.Add(-refill)
	for key, bucket := range rl.buckets {
		if bucket.idleSince(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

// Len reports the number of tracked keys
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// RateLimit limits requests per actor, or per client IP before authentication
func RateLimit(limiter *RateLimiter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := ActorFromContext(c)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}

		ok, wait := limiter.Allow(key)
		if !ok {
			retry := int(math.Ceil(wait.Seconds()))
			if retry < 1 {
				retry = 1
			}
			logger.Warn("rate limit exceeded", zap.String("key", key), zap.Duration("retry_after", wait))
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limited",
				"message":     "too many requests",
				"retry_after": retry,
			})
			return
		}
		c.Next()
	}
}
