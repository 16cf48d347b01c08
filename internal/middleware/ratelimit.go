package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// DepositRateLimit limits deposit submissions per user using a fixed
// one-minute Redis window.
func DepositRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 30
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next() // no-op without Redis
		}
		subject := UserIDFrom(c)
		if subject == "" {
			subject = c.IP()
		}
		window := time.Now().UTC().Truncate(time.Minute).Unix()
		key := "rl:deposit:" + subject + ":" + strconv.FormatInt(window, 10)
		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err == nil && cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		if err != nil {
			return c.Next() // fail-open on cache errors
		}
		if cnt > int64(maxPerMin) {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(60-time.Now().UTC().Second()))
			return fiber.NewError(http.StatusTooManyRequests, "too many deposits, try again later")
		}
		return c.Next()
	}
}
