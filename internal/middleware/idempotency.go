package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tsheringkof667-bot/Bank/internal/httpx"
)

const (
	// IdempotencyKeyHeader lets a client retry a money movement safely.
	IdempotencyKeyHeader = "Idempotency-Key"
	idempotencyPrefix    = "idempotency:v2:"
	inProgressMarker     = "__in_progress__"
	cacheTimeout         = 2 * time.Second
)

type storedResponse struct {
	Status  int               `json:"status"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
}

// Idempotency replays the first response given to a (caller, Idempotency-Key)
// pair on unsafe methods. Only final answers are kept: requests that end in an
// error are forgotten so the client may retry them. Without a cache the
// middleware does nothing.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		switch strings.ToUpper(c.Method()) {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		key := strings.TrimSpace(c.Get(IdempotencyKeyHeader))
		if key == "" {
			return fiber.NewError(fiber.StatusBadRequest, "missing "+IdempotencyKeyHeader+" header")
		}
		cacheKey := idempotencyPrefix + httpx.Caller(c) + ":" + c.Path() + ":" + key
		log := logger.With(slog.String("idempotency_key", key))

		ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
		defer cancel()

		reserved, err := cache.SetNX(ctx, cacheKey, inProgressMarker, ttl).Result()
		if err != nil {
			log.Error("idempotency reservation failed", slog.Any("error", err))
			return fiber.NewError(fiber.StatusServiceUnavailable, "idempotency store unavailable")
		}
		if !reserved {
			return replay(ctx, c, cache, cacheKey, log)
		}

		if err := c.Next(); err != nil {
			forget(cache, cacheKey)
			return err
		}
		if c.Response().StatusCode() >= fiber.StatusInternalServerError {
			forget(cache, cacheKey)
			return nil
		}

		stored := storedResponse{
			Status:  c.Response().StatusCode(),
			Body:    string(c.Response().Body()),
			Headers: map[string]string{},
		}
		c.Response().Header.VisitAll(func(k, v []byte) {
			stored.Headers[string(k)] = string(v)
		})
		payload, err := json.Marshal(stored)
		if err != nil {
			log.Error("encode idempotent response", slog.Any("error", err))
			forget(cache, cacheKey)
			return nil
		}

		persistCtx, persistCancel := context.WithTimeout(context.Background(), cacheTimeout)
		defer persistCancel()
		if err := cache.Set(persistCtx, cacheKey, payload, ttl).Err(); err != nil {
			// The movement already happened; the client gets its answer and only
			// loses replay protection for this key.
			log.Error("persist idempotent response", slog.Any("error", err))
			forget(cache, cacheKey)
		}
		return nil
	}
}

func replay(ctx context.Context, c *fiber.Ctx, cache *redis.Client, cacheKey string, log *slog.Logger) error {
	cached, err := cache.Get(ctx, cacheKey).Result()
	if errors.Is(err, redis.Nil) {
		return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
	}
	if err != nil {
		log.Error("idempotency lookup failed", slog.Any("error", err))
		return fiber.NewError(fiber.StatusServiceUnavailable, "idempotency store unavailable")
	}
	if cached == inProgressMarker {
		return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(cached), &stored); err != nil {
		log.Warn("decode stored idempotent response", slog.Any("error", err))
		return fiber.NewError(fiber.StatusConflict, "duplicate request")
	}
	for header, value := range stored.Headers {
		if strings.EqualFold(header, fiber.HeaderContentLength) {
			continue
		}
		c.Set(header, value)
	}
	c.Set("Idempotent-Replayed", "true")
	return c.Status(stored.Status).SendString(stored.Body)
}

func forget(cache *redis.Client, cacheKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
	defer cancel()
	cache.Del(ctx, cacheKey)
}
