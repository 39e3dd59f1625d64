package account

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/tsheringkof667-bot/Bank/internal/apperrors"
	"github.com/tsheringkof667-bot/Bank/internal/httpx"
	"github.com/tsheringkof667-bot/Bank/internal/ledger"
	"github.com/tsheringkof667-bot/Bank/internal/money"
	"github.com/tsheringkof667-bot/Bank/internal/transactions"
)

// Handler exposes account HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds an account HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	AccountType string `json:"account_type" validate:"required,oneof=savings current fixed_deposit"`
	Currency    string `json:"currency" validate:"omitempty,len=3,uppercase"`
}

type statementRequest struct {
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
}

type accountResponse struct {
	ID               string    `json:"id"`
	AccountNumber    string    `json:"account_number"`
	AccountType      string    `json:"account_type"`
	Currency         string    `json:"currency"`
	CurrentBalance   string    `json:"current_balance"`
	AvailableBalance string    `json:"available_balance"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
}

type transactionResponse struct {
	TransactionID string    `json:"transaction_id"`
	Type          string    `json:"type"`
	Direction     string    `json:"direction"`
	Amount        string    `json:"amount"`
	Status        string    `json:"status"`
	Description   string    `json:"description,omitempty"`
	ReferenceID   string    `json:"reference_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Create handles POST /accounts.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	account, err := h.service.Create(c.UserContext(), CreateInput{
		OwnerID:  httpx.Caller(c),
		Type:     ledger.Type(req.AccountType),
		Currency: req.Currency,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(toAccount(account))
}

// List handles GET /accounts.
func (h *Handler) List(c *fiber.Ctx) error {
	accounts, sum, err := h.service.List(c.UserContext(), httpx.Caller(c))
	if err != nil {
		return err
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccount(a))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"accounts": out,
		"summary": fiber.Map{
			"total_accounts":    sum.TotalAccounts,
			"total_balance":     money.Format(sum.TotalBalance),
			"available_balance": money.Format(sum.AvailableBalance),
		},
	})
}

// Balance handles GET /accounts/:accountId/balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	a, err := h.service.Balance(c.UserContext(), httpx.Caller(c), c.Params("accountId"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"account_id":        a.ID,
		"account_number":    a.AccountNumber,
		"current_balance":   money.Format(a.CurrentBalance),
		"available_balance": money.Format(a.AvailableBalance),
		"held_balance":      money.Format(a.Held()),
		"currency":          a.Currency,
		"timestamp":         time.Now().UTC(),
	})
}

// Statement handles POST /accounts/:accountId/statement.
func (h *Handler) Statement(c *fiber.Ctx) error {
	var req statementRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	start, err := time.Parse(time.DateOnly, req.StartDate)
	if err != nil {
		return apperrors.Validation("invalid start_date")
	}
	end, err := time.Parse(time.DateOnly, req.EndDate)
	if err != nil {
		return apperrors.Validation("invalid end_date")
	}
	accountID := c.Params("accountId")
	st, err := h.service.Statement(c.UserContext(), httpx.Caller(c), accountID, start, end)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"account":      toAccount(st.Account),
		"start_date":   req.StartDate,
		"end_date":     req.EndDate,
		"transactions": toTransactions(accountID, st.Transactions),
		"summary": fiber.Map{
			"total_transactions": len(st.Transactions),
			"total_credits":      money.Format(st.TotalCredits),
			"total_debits":       money.Format(st.TotalDebits),
			"opening_balance":    money.Format(st.OpeningBalance),
			"closing_balance":    money.Format(st.ClosingBalance),
		},
		"generated_at": st.GeneratedAt,
	})
}

// History handles GET /accounts/:accountId/transactions?limit=&offset=.
func (h *Handler) History(c *fiber.Ctx) error {
	accountID := c.Params("accountId")
	limit := c.QueryInt("limit", defaultPageSize)
	offset := c.QueryInt("offset", 0)
	txns, err := h.service.History(c.UserContext(), httpx.Caller(c), accountID, limit, offset)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"transactions": toTransactions(accountID, txns),
		"limit":        limit,
		"offset":       offset,
	})
}

func toAccount(a ledger.Account) accountResponse {
	return accountResponse{
		ID:               a.ID,
		AccountNumber:    a.AccountNumber,
		AccountType:      string(a.Type),
		Currency:         a.Currency,
		CurrentBalance:   money.Format(a.CurrentBalance),
		AvailableBalance: money.Format(a.AvailableBalance),
		Status:           a.Status,
		CreatedAt:        a.CreatedAt,
	}
}

func toTransactions(accountID string, txns []transactions.Transaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(txns))
	for _, t := range txns {
		direction := "credit"
		if t.FromAccountID != nil && *t.FromAccountID == accountID {
			direction = "debit"
		}
		out = append(out, transactionResponse{
			TransactionID: t.TransactionID,
			Type:          string(t.Type),
			Direction:     direction,
			Amount:        money.Format(t.Amount),
			Status:        string(t.Status),
			Description:   t.Description,
			ReferenceID:   t.ReferenceID,
			CreatedAt:     t.CreatedAt,
		})
	}
	return out
}
