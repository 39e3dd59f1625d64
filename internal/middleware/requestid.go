package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// RequestIDHeader carries the request identifier in and out.
const RequestIDHeader = "X-Request-ID"

// RequestID ensures each request has a stable request identifier for tracing and logging.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqID := c.Get(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set(RequestIDHeader, reqID)
		c.Locals(RequestIDHeader, reqID)
		return c.Next()
	}
}

// RequestIDFrom returns the identifier stored by RequestID.
func RequestIDFrom(c *fiber.Ctx) string {
	id, _ := c.Locals(RequestIDHeader).(string)
	return id
}
