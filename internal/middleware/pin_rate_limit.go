package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/billpay/internal/auth"
)

const pinRateLimitPrefix = "rl:pin:"

// PinAttemptRateLimit caps PIN-bearing requests per account per minute using
// a Redis counter. It runs after JWTAuth and fails open on cache errors; the
// authorizer's own lockout still applies.
func PinAttemptRateLimit(cache *redis.Client, maxPerMin int, logger *slog.Logger) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 10
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next() // no-op without Redis
		}
		account := auth.AccountID(c)
		if account == "" {
			account = c.IP()
		}
		key := pinRateLimitPrefix + account
		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err != nil {
			logger.Warn("pin rate limit unavailable", slog.Any("error", err))
			return c.Next()
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many pin attempts, try again later")
		}
		return c.Next()
	}
}
