package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tsheringkof667-bot/Bank/internal/loan"
	"github.com/tsheringkof667-bot/Bank/internal/movement"
)

// RegisterLoanRoutes wires loan endpoints. Static paths come before :loanId.
func RegisterLoanRoutes(r fiber.Router, h *loan.Handler, m *movement.Handler, idempotent fiber.Handler) {
	r.Get("/loans/emi", h.EMI)
	r.Get("/loans/overdue", h.Overdue)
	r.Post("/loans", h.Apply)
	r.Get("/loans", h.List)
	r.Get("/loans/:loanId", h.Get)
	r.Get("/loans/:loanId/schedule", h.Schedule)
	r.Post("/loans/:loanId/approve", h.Approve)
	r.Post("/loans/:loanId/reject", h.Reject)
	r.Post("/loans/:loanId/default", h.Default)
	r.Post("/loans/:loanId/disburse", idempotent, m.Disburse)
	r.Post("/loans/:loanId/repay", idempotent, m.Repay)
}
