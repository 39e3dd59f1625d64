package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/tsheringkof667-bot/Bank/internal/httpx"
)

// CallerHeader names the header an upstream gateway uses to pass the
// authenticated caller.
const CallerHeader = "X-User-ID"

// CallerIdentity copies the authenticated caller id into the request locals.
// Authentication itself happens upstream; requests without a caller are refused.
func CallerIdentity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller := strings.TrimSpace(c.Get(CallerHeader))
		if caller == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing "+CallerHeader+" header")
		}
		c.Locals(httpx.CallerKey, caller)
		return c.Next()
	}
}
