// Package ratelimit applies a per-caller token bucket to the REST
// surface. Websocket sessions are long-lived and excluded; their cost
// is bounded by the one-connection-one-goroutine model.
package ratelimit

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type tokenBucket struct {
	mu         sync.Mutex
	tokens     int
	lastRefill time.Time
}

// take refills the bucket proportionally to elapsed time, then spends
// one token if any are available.
func (b *tokenBucket) take(capacity int, refillEvery time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if refill := int(now.Sub(b.lastRefill) / refillEvery); refill > 0 {
		b.tokens = min(capacity, b.tokens+refill)
		b.lastRefill = now
	}

	if b.tokens == 0 {
		return false
	}
	b.tokens--
	return true
}

// stale reports whether the bucket has been idle long enough to evict.
func (b *tokenBucket) stale(now time.Time, idle time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return now.Sub(b.lastRefill) > idle
}

type RateLimiter struct {
	mu      sync.RWMutex
	buckets map[string]*tokenBucket

	capacity    int
	refillEvery time.Duration
	logger      *zap.Logger
	ticker      *time.Ticker
}

type Config struct {
	MaxRequestsPerMinute int
	WindowDuration       time.Duration
	Logger               *zap.Logger
}

func New(cfg Config) *RateLimiter {
	if cfg.MaxRequestsPerMinute == 0 {
		cfg.MaxRequestsPerMinute = 60
	}
	if cfg.WindowDuration == 0 {
		cfg.WindowDuration = time.Minute
	}

	rl := &RateLimiter{
		buckets:     make(map[string]*tokenBucket),
		capacity:    cfg.MaxRequestsPerMinute,
		refillEvery: cfg.WindowDuration / time.Duration(cfg.MaxRequestsPerMinute),
		logger:      cfg.Logger,
		ticker:      time.NewTicker(5 * time.Minute),
	}

	go rl.evictStale()

	return rl
}

func (rl *RateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.IP()

		// Authenticated requests are limited per user, not per IP.
		if userID, ok := c.Locals("user_id").(string); ok && userID != "" {
			key = userID
		}

		if !rl.bucketFor(key).take(rl.capacity, rl.refillEvery) {
			rl.logger.Warn("Rate limit exceeded",
				zap.String("key", key),
				zap.String("path", c.Path()),
			)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Rate limit exceeded. Please try again later.",
			})
		}

		return c.Next()
	}
}

func (rl *RateLimiter) bucketFor(key string) *tokenBucket {
	rl.mu.RLock()
	b, ok := rl.buckets[key]
	rl.mu.RUnlock()
	if ok {
		return b
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if b, ok = rl.buckets[key]; ok {
		return b
	}
	b = &tokenBucket{tokens: rl.capacity, lastRefill: time.Now()}
	rl.buckets[key] = b
	return b
}

func (rl *RateLimiter) evictStale() {
	for range rl.ticker.C {
		now := time.Now()
		rl.mu.Lock()
		for key, b := range rl.buckets {
			if b.stale(now, 10*time.Minute) {
				delete(rl.buckets, key)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *RateLimiter) Stop() {
	rl.ticker.Stop()
}
