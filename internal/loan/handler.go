package loan

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/tsheringkof667-bot/Bank/internal/apperrors"
	"github.com/tsheringkof667-bot/Bank/internal/httpx"
	"github.com/tsheringkof667-bot/Bank/internal/money"
)

// Handler exposes loan HTTP endpoints. Disbursement and repayment move money
// and live with the movement handler.
type Handler struct {
	service *Service
}

// NewHandler builds a loan HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type applyRequest struct {
	AccountID    string `json:"account_id" validate:"required"`
	LoanType     string `json:"loan_type" validate:"required,oneof=personal home auto education business"`
	Amount       string `json:"amount" validate:"required,amount"`
	TenureMonths int    `json:"tenure_months" validate:"required,min=1,max=60"`
	Purpose      string `json:"purpose" validate:"max=500"`
}

type decisionRequest struct {
	Remarks string `json:"remarks" validate:"max=500"`
}

type emiQuery struct {
	Amount string `query:"amount" validate:"required,amount"`
	Tenure int    `query:"tenure" validate:"required,min=1,max=60"`
	Rate   string `query:"rate" validate:"omitempty,numeric"`
}

type loanResponse struct {
	ID                 string     `json:"id"`
	LoanNumber         string     `json:"loan_number"`
	AccountID          string     `json:"account_id"`
	RepaymentAccountID string     `json:"repayment_account_id,omitempty"`
	LoanType           string     `json:"loan_type"`
	Principal          string     `json:"principal_amount"`
	InterestRate       string     `json:"interest_rate"`
	TenureMonths       int        `json:"tenure_months"`
	RemainingTenure    int        `json:"remaining_tenure"`
	EMIAmount          string     `json:"emi_amount"`
	RemainingAmount    string     `json:"remaining_amount"`
	Purpose            string     `json:"purpose,omitempty"`
	Status             string     `json:"status"`
	Remarks            string     `json:"remarks,omitempty"`
	DisbursedAt        *time.Time `json:"disbursed_at,omitempty"`
	LastPaymentAt      *time.Time `json:"last_payment_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

type installmentResponse struct {
	Sequence   int        `json:"installment_number"`
	DueDate    string     `json:"due_date"`
	Amount     string     `json:"emi_amount"`
	Principal  string     `json:"principal_component"`
	Interest   string     `json:"interest_component"`
	Status     string     `json:"status"`
	PaidAmount string     `json:"paid_amount"`
	PaidAt     *time.Time `json:"paid_at,omitempty"`
}

// Apply handles POST /loans.
func (h *Handler) Apply(c *fiber.Ctx) error {
	var req applyRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	l, err := h.service.Apply(c.UserContext(), ApplyInput{
		OwnerID:      httpx.Caller(c),
		AccountID:    req.AccountID,
		LoanType:     req.LoanType,
		Amount:       decimal.RequireFromString(req.Amount),
		TenureMonths: req.TenureMonths,
		Purpose:      req.Purpose,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(toLoan(l))
}

// List handles GET /loans.
func (h *Handler) List(c *fiber.Ctx) error {
	loans, sum, err := h.service.ListByOwner(c.UserContext(), httpx.Caller(c))
	if err != nil {
		return err
	}
	out := make([]loanResponse, 0, len(loans))
	for _, l := range loans {
		out = append(out, toLoan(l))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"loans": out,
		"summary": fiber.Map{
			"total_loans":    sum.TotalLoans,
			"active_loans":   sum.ActiveLoans,
			"total_borrowed": money.Format(sum.TotalBorrowed),
			"total_paid":     money.Format(sum.TotalPaid),
			"total_due":      money.Format(sum.TotalDue),
		},
	})
}

// Get handles GET /loans/:loanId.
func (h *Handler) Get(c *fiber.Ctx) error {
	l, err := h.service.Get(c.UserContext(), httpx.Caller(c), c.Params("loanId"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toLoan(l))
}

// Approve handles POST /loans/:loanId/approve.
func (h *Handler) Approve(c *fiber.Ctx) error {
	return h.decide(c, h.service.Approve)
}

// Reject handles POST /loans/:loanId/reject.
func (h *Handler) Reject(c *fiber.Ctx) error {
	return h.decide(c, h.service.Reject)
}

// Default handles POST /loans/:loanId/default.
func (h *Handler) Default(c *fiber.Ctx) error {
	return h.decide(c, h.service.MarkDefaulted)
}

func (h *Handler) decide(c *fiber.Ctx, fn func(ctx context.Context, loanID, remarks string) (Loan, error)) error {
	var req decisionRequest
	if len(c.Body()) > 0 {
		if err := httpx.Bind(c, &req); err != nil {
			return err
		}
	}
	l, err := fn(c.UserContext(), c.Params("loanId"), req.Remarks)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toLoan(l))
}

// Schedule handles GET /loans/:loanId/schedule.
func (h *Handler) Schedule(c *fiber.Ctx) error {
	l, schedule, err := h.service.Schedule(c.UserContext(), httpx.Caller(c), c.Params("loanId"))
	if err != nil {
		return err
	}
	out := make([]installmentResponse, 0, len(schedule))
	for _, inst := range schedule {
		out = append(out, installmentResponse{
			Sequence:   inst.Sequence,
			DueDate:    inst.DueDate.Format(time.DateOnly),
			Amount:     money.Format(inst.Amount),
			Principal:  money.Format(inst.Principal),
			Interest:   money.Format(inst.Interest),
			Status:     string(inst.Status),
			PaidAmount: money.Format(inst.PaidAmount),
			PaidAt:     inst.PaidAt,
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"loan":          toLoan(l),
		"schedule":      out,
		"total_payable": money.Format(TotalPayable(schedule)),
	})
}

// EMI handles GET /loans/emi?amount=&tenure=&rate=.
func (h *Handler) EMI(c *fiber.Ctx) error {
	var q emiQuery
	if err := c.QueryParser(&q); err != nil {
		return apperrors.Validation("malformed query: %v", err)
	}
	if err := httpx.Validate(q); err != nil {
		return err
	}
	rate := decimal.Zero
	if q.Rate != "" {
		rate = decimal.RequireFromString(q.Rate)
	}
	quote, err := h.service.Quote(decimal.RequireFromString(q.Amount), rate, q.Tenure)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"principal":      money.Format(quote.Principal),
		"interest_rate":  quote.InterestRate.String(),
		"tenure_months":  quote.TenureMonths,
		"emi":            money.Format(quote.EMI),
		"total_payable":  money.Format(quote.TotalPayable),
		"total_interest": money.Format(quote.TotalInterest),
	})
}

// Overdue handles GET /loans/overdue?as_of=YYYY-MM-DD.
func (h *Handler) Overdue(c *fiber.Ctx) error {
	asOf := time.Now().UTC()
	if raw := c.Query("as_of"); raw != "" {
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return apperrors.Validation("as_of must be a date like 2006-01-02")
		}
		asOf = t
	}
	overdue, err := h.service.OverdueLoans(c.UserContext(), asOf)
	if err != nil {
		return err
	}
	out := make([]fiber.Map, 0, len(overdue))
	for _, o := range overdue {
		out = append(out, fiber.Map{
			"loan":         toLoan(o.Loan),
			"days_overdue": o.DaysOverdue,
			"penalty":      money.Format(o.Penalty),
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"as_of": asOf.Format(time.DateOnly), "loans": out})
}

func toLoan(l Loan) loanResponse {
	return loanResponse{
		ID:                 l.ID,
		LoanNumber:         l.LoanNumber,
		AccountID:          l.AccountID,
		RepaymentAccountID: l.RepaymentAccountID,
		LoanType:           l.LoanType,
		Principal:          money.Format(l.Principal),
		InterestRate:       l.InterestRate.String(),
		TenureMonths:       l.TenureMonths,
		RemainingTenure:    l.RemainingTenure,
		EMIAmount:          money.Format(l.EMIAmount),
		RemainingAmount:    money.Format(l.RemainingAmount),
		Purpose:            l.Purpose,
		Status:             string(l.Status),
		Remarks:            l.Remarks,
		DisbursedAt:        l.DisbursedAt,
		LastPaymentAt:      l.LastPaymentAt,
		CreatedAt:          l.CreatedAt,
	}
}
