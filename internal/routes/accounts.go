package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tsheringkof667-bot/Bank/internal/account"
)

// RegisterAccountRoutes wires account endpoints.
func RegisterAccountRoutes(r fiber.Router, h *account.Handler) {
	r.Post("/accounts", h.Create)
	r.Get("/accounts", h.List)
	r.Get("/accounts/:accountId/balance", h.Balance)
	r.Post("/accounts/:accountId/statement", h.Statement)
	r.Get("/accounts/:accountId/transactions", h.History)
}
