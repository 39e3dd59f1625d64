package middleware

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/tsheringkof667-bot/Bank/internal/httpx"
)

const rateLimitPrefix = "ratelimit:v1"

// NewLimiter builds a limiter from a rate such as "60-M". Counters live in
// Redis when a client is given so every instance shares them.
func NewLimiter(rate string, cache *redis.Client) (*limiter.Limiter, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, err
	}
	if cache == nil {
		return limiter.New(memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: rateLimitPrefix}), r), nil
	}
	st, err := redisstore.NewStoreWithOptions(cache, limiter.StoreOptions{Prefix: rateLimitPrefix})
	if err != nil {
		return nil, err
	}
	return limiter.New(st, r), nil
}

// RateLimit throttles requests per caller, falling back to the client IP for
// anonymous requests. Limiter failures let the request through.
func RateLimit(l *limiter.Limiter, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := httpx.Caller(c)
		if key == "" {
			key = c.IP()
		}
		lc, err := l.Get(c.UserContext(), key)
		if err != nil {
			logger.Warn("rate limiter unavailable", slog.Any("error", err))
			return c.Next()
		}
		c.Set("X-RateLimit-Limit", strconv.FormatInt(lc.Limit, 10))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(lc.Remaining, 10))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(lc.Reset, 10))
		if lc.Reached {
			return fiber.NewError(http.StatusTooManyRequests, "too many requests, try again later")
		}
		return c.Next()
	}
}
