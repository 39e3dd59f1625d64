package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tsheringkof667-bot/Bank/internal/movement"
)

// RegisterMovementRoutes wires deposit, withdrawal and transfer endpoints.
// Every money movement passes through the idempotency middleware.
func RegisterMovementRoutes(r fiber.Router, h *movement.Handler, idempotent fiber.Handler) {
	m := r.Group("/movements", idempotent)
	m.Post("/deposit", h.Deposit)
	m.Post("/withdraw", h.Withdraw)
	m.Post("/transfer", h.Transfer)

	r.Get("/transactions/:transactionId", h.Transaction)
}
