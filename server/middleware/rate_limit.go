package middleware

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/hrygo/plaza/server/auth"
	apierrors "github.com/hrygo/plaza/server/internal/errors"
)

// RateLimitConfig configures a RateLimiter.
type RateLimitConfig struct {
	// Rate is the sustained number of requests per second per key.
	Rate rate.Limit
	// Burst is the bucket size per key.
	Burst int
	// IdleTTL drops limiters not used for this long.
	IdleTTL time.Duration
}

// DefaultRateLimitConfig allows 10 requests per second with a burst of 20.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Rate:    rate.Every(time.Second / 10),
		Burst:   20,
		IdleTTL: 10 * time.Minute,
	}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter provides per-key token bucket rate limiting.
type RateLimiter struct {
	mu     sync.Mutex
	config RateLimitConfig
	limits map[string]*limiterEntry
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.Rate <= 0 {
		config.Rate = DefaultRateLimitConfig().Rate
	}
	if config.Burst <= 0 {
		config.Burst = DefaultRateLimitConfig().Burst
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = DefaultRateLimitConfig().IdleTTL
	}
	return &RateLimiter{
		config: config,
		limits: make(map[string]*limiterEntry),
	}
}

// getLimiter gets or creates a limiter for the given key.
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if entry, ok := rl.limits[key]; ok {
		entry.lastSeen = now
		return entry.limiter
	}

	entry := &limiterEntry{
		limiter:  rate.NewLimiter(rl.config.Rate, rl.config.Burst),
		lastSeen: now,
	}
	rl.limits[key] = entry
	return entry.limiter
}

// Allow checks if a request is allowed for the given key.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.getLimiter(key).Allow()
}

// Wait waits for a request to be allowed.
// Returns error if the context is cancelled or the wait would exceed its deadline.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	return rl.getLimiter(key).Wait(ctx)
}

// Sweep drops limiters idle for longer than IdleTTL and returns how many were dropped.
func (rl *RateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rl.config.IdleTTL)
	dropped := 0
	for key, entry := range rl.limits {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limits, key)
			dropped++
		}
	}
	return dropped
}

// Run sweeps idle limiters every interval until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Sweep()
		}
	}
}

// ClientKey keys authenticated requests by user and anonymous ones by IP.
func ClientKey(c echo.Context) string {
	if userID := auth.UserIDFromContext(c.Request().Context()); userID != 0 {
		return "user:" + strconv.FormatInt(int64(userID), 10)
	}
	return "ip:" + c.RealIP()
}

// RateLimit rejects requests over the limit of their key with RATE_LIMIT_EXCEEDED.
func RateLimit(rl *RateLimiter, keyFunc func(c echo.Context) string) echo.MiddlewareFunc {
	if keyFunc == nil {
		keyFunc = ClientKey
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !rl.Allow(keyFunc(c)) {
				return apierrors.RateLimitExceeded("Too many requests, slow down")
			}
			return next(c)
		}
	}
}
