package http

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"

	apperrors "github.com/spec-kit/cjs-api/pkg/util"
)

const limiterCleanupInterval = 5 * time.Minute

// ipRateLimiter hands out one token bucket per client address.
type ipRateLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	rate     rate.Limit
	burst    int

	mu          sync.Mutex
	lastCleanup time.Time
}

func (rl *ipRateLimiter) limiter(key string) *rate.Limiter {
	if limiter, ok := rl.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}
	actual, _ := rl.limiters.LoadOrStore(key, rate.NewLimiter(rl.rate, rl.burst))
	rl.maybeCleanup()
	return actual.(*rate.Limiter)
}

// maybeCleanup drops limiters whose bucket has refilled, i.e. idle clients.
func (rl *ipRateLimiter) maybeCleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if time.Since(rl.lastCleanup) < limiterCleanupInterval {
		return
	}
	rl.lastCleanup = time.Now()

	rl.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(rl.burst) {
			rl.limiters.Delete(key)
		}
		return true
	})
}

// RateLimitByIP allows perMinute requests per client IP with the given burst.
// A non-positive perMinute disables limiting.
func RateLimitByIP(perMinute, burst int) fiber.Handler {
	if perMinute <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	if burst <= 0 {
		burst = perMinute
	}

	rl := &ipRateLimiter{
		rate:        rate.Limit(float64(perMinute) / time.Minute.Seconds()),
		burst:       burst,
		lastCleanup: time.Now(),
	}

	return func(c *fiber.Ctx) error {
		limiter := rl.limiter(c.IP())
		if !limiter.Allow() {
			reservation := limiter.Reserve()
			delay := reservation.Delay()
			reservation.Cancel()

			retryAfter := max(int(delay.Seconds()), 1)
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
			return apperrors.NewRateLimited("too many requests")
		}
		return c.Next()
	}
}
