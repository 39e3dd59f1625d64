package movement

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/tsheringkof667-bot/Bank/internal/httpx"
	"github.com/tsheringkof667-bot/Bank/internal/ledger"
	"github.com/tsheringkof667-bot/Bank/internal/loan"
	"github.com/tsheringkof667-bot/Bank/internal/money"
	"github.com/tsheringkof667-bot/Bank/internal/transactions"
)

// Handler exposes money movement HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a movement HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transferRequest struct {
	FromAccountID   string            `json:"from_account_id" validate:"required"`
	ToAccountNumber string            `json:"to_account_number" validate:"required"`
	Amount          string            `json:"amount" validate:"required,amount"`
	Description     string            `json:"description" validate:"max=255"`
	ReferenceID     string            `json:"reference_id" validate:"max=100"`
	Metadata        map[string]string `json:"metadata"`
}

type accountRequest struct {
	AccountID   string            `json:"account_id" validate:"required"`
	Amount      string            `json:"amount" validate:"required,amount"`
	Description string            `json:"description" validate:"max=255"`
	ReferenceID string            `json:"reference_id" validate:"max=100"`
	Metadata    map[string]string `json:"metadata"`
}

type repayRequest struct {
	FromAccountID string `json:"from_account_id" validate:"required"`
	Amount        string `json:"amount" validate:"required,amount"`
}

type balanceView struct {
	AccountID        string `json:"account_id"`
	AccountNumber    string `json:"account_number"`
	CurrentBalance   string `json:"current_balance"`
	AvailableBalance string `json:"available_balance"`
}

type loanView struct {
	ID              string  `json:"id"`
	LoanNumber      string  `json:"loan_number"`
	Status          string  `json:"status"`
	RemainingAmount string  `json:"remaining_amount"`
	RemainingTenure int     `json:"remaining_tenure"`
	EMIAmount       string  `json:"emi_amount"`
	RepaymentID     string  `json:"repayment_account_id,omitempty"`
	DisbursedAt     *string `json:"disbursed_at,omitempty"`
}

type resultResponse struct {
	TransactionID string       `json:"transaction_id"`
	Type          string       `json:"type"`
	Status        string       `json:"status"`
	Amount        string       `json:"amount"`
	From          *balanceView `json:"from,omitempty"`
	To            *balanceView `json:"to,omitempty"`
	Loan          *loanView    `json:"loan,omitempty"`
	CompletedAt   time.Time    `json:"completed_at"`
}

type transactionResponse struct {
	TransactionID string    `json:"transaction_id"`
	FromAccountID *string   `json:"from_account_id,omitempty"`
	ToAccountID   *string   `json:"to_account_id,omitempty"`
	Amount        string    `json:"amount"`
	Type          string    `json:"type"`
	Status        string    `json:"status"`
	Description   string    `json:"description,omitempty"`
	ReferenceID   string    `json:"reference_id,omitempty"`
	Metadata      any       `json:"metadata,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Transfer handles POST /movements/transfer.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	res, err := h.service.Transfer(c.UserContext(), TransferInput{
		CallerID:        httpx.Caller(c),
		FromAccountID:   req.FromAccountID,
		ToAccountNumber: req.ToAccountNumber,
		Amount:          decimal.RequireFromString(req.Amount),
		Description:     req.Description,
		ReferenceID:     req.ReferenceID,
		Metadata:        req.Metadata,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toResult(res))
}

// Deposit handles POST /movements/deposit.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	var req accountRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	res, err := h.service.Deposit(c.UserContext(), DepositInput{
		CallerID:    httpx.Caller(c),
		AccountID:   req.AccountID,
		Amount:      decimal.RequireFromString(req.Amount),
		Description: req.Description,
		ReferenceID: req.ReferenceID,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toResult(res))
}

// Withdraw handles POST /movements/withdraw.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	var req accountRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	res, err := h.service.Withdraw(c.UserContext(), WithdrawInput{
		CallerID:    httpx.Caller(c),
		AccountID:   req.AccountID,
		Amount:      decimal.RequireFromString(req.Amount),
		Description: req.Description,
		ReferenceID: req.ReferenceID,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toResult(res))
}

// Disburse handles POST /loans/:loanId/disburse.
func (h *Handler) Disburse(c *fiber.Ctx) error {
	res, err := h.service.DisburseLoan(c.UserContext(), DisburseInput{ActorID: httpx.Caller(c), LoanID: c.Params("loanId")})
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toResult(res))
}

// Repay handles POST /loans/:loanId/repay.
func (h *Handler) Repay(c *fiber.Ctx) error {
	var req repayRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	res, err := h.service.RepayLoan(c.UserContext(), RepayInput{
		CallerID:      httpx.Caller(c),
		LoanID:        c.Params("loanId"),
		FromAccountID: req.FromAccountID,
		Amount:        decimal.RequireFromString(req.Amount),
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toResult(res))
}

// Transaction handles GET /transactions/:transactionId.
func (h *Handler) Transaction(c *fiber.Ctx) error {
	t, err := h.service.Transaction(c.UserContext(), httpx.Caller(c), c.Params("transactionId"))
	if err != nil {
		return err
	}
	resp := transactionResponse{
		TransactionID: t.TransactionID,
		FromAccountID: t.FromAccountID,
		ToAccountID:   t.ToAccountID,
		Amount:        money.Format(t.Amount),
		Type:          string(t.Type),
		Status:        string(t.Status),
		Description:   t.Description,
		ReferenceID:   t.ReferenceID,
		ErrorMessage:  t.ErrorMessage,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
	if meta, err := transactions.DecodeMetadata(t.Metadata); err == nil && len(meta.Values) > 0 {
		resp.Metadata = meta.Values
	}
	return c.Status(http.StatusOK).JSON(resp)
}

func toResult(r Result) resultResponse {
	return resultResponse{
		TransactionID: r.TransactionID,
		Type:          string(r.Type),
		Status:        string(r.Status),
		Amount:        money.Format(r.Amount),
		From:          toBalance(r.From),
		To:            toBalance(r.To),
		Loan:          toLoan(r.Loan),
		CompletedAt:   r.CompletedAt,
	}
}

func toBalance(a *ledger.Account) *balanceView {
	if a == nil {
		return nil
	}
	return &balanceView{
		AccountID:        a.ID,
		AccountNumber:    a.AccountNumber,
		CurrentBalance:   money.Format(a.CurrentBalance),
		AvailableBalance: money.Format(a.AvailableBalance),
	}
}

func toLoan(l *loan.Loan) *loanView {
	if l == nil {
		return nil
	}
	v := &loanView{
		ID:              l.ID,
		LoanNumber:      l.LoanNumber,
		Status:          string(l.Status),
		RemainingAmount: money.Format(l.RemainingAmount),
		RemainingTenure: l.RemainingTenure,
		EMIAmount:       money.Format(l.EMIAmount),
		RepaymentID:     l.RepaymentAccountID,
	}
	if l.DisbursedAt != nil {
		at := l.DisbursedAt.UTC().Format(time.RFC3339)
		v.DisbursedAt = &at
	}
	return v
}
