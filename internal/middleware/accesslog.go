package middleware

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/tsheringkof667-bot/Bank/internal/httpx"
)

// AccessLog emits one structured line per request. Errors returned by handlers
// are passed through to the error handler, which sets the final status, so the
// logged status for a failed request is the one the error maps to.
func AccessLog(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			} else {
				status = httpx.Status(err)
			}
		}

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
		}
		if id := RequestIDFrom(c); id != "" {
			attrs = append(attrs, slog.String("request_id", id))
		}
		if caller := httpx.Caller(c); caller != "" {
			attrs = append(attrs, slog.String("caller_id", caller))
		}
		switch {
		case status >= fiber.StatusInternalServerError:
			logger.Error("request completed", append(attrs, slog.Any("error", err))...)
		case err != nil:
			logger.Warn("request completed", append(attrs, slog.Any("error", err))...)
		default:
			logger.Info("request completed", attrs...)
		}
		return err
	}
}
