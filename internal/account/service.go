// Package account opens customer accounts and serves their read views:
// balances, statements and transaction history.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tsheringkof667-bot/Bank/internal/apperrors"
	"github.com/tsheringkof667-bot/Bank/internal/audit"
	"github.com/tsheringkof667-bot/Bank/internal/ledger"
	"github.com/tsheringkof667-bot/Bank/internal/money"
	"github.com/tsheringkof667-bot/Bank/internal/transactions"
)

const (
	// DefaultMaxPerOwner caps how many accounts one owner may open.
	DefaultMaxPerOwner = 3
	numberAttempts     = 3
	defaultPageSize    = 20
	maxPageSize        = 100
)

// Store is the part of the persistent store the account service needs.
type Store interface {
	Accounts() ledger.Accounts
	Transactions() transactions.Log
}

// Options tunes a Service.
type Options struct {
	MaxPerOwner int
	Currency    string
	Audit       audit.Sink
	Logger      *slog.Logger
	Now         func() time.Time
}

// Service exposes account operations.
type Service struct {
	store       Store
	maxPerOwner int
	currency    string
	audit       audit.Sink
	logger      *slog.Logger
	now         func() time.Time
}

// NewService builds an account service instance.
func NewService(store Store, opts Options) *Service {
	if opts.MaxPerOwner <= 0 {
		opts.MaxPerOwner = DefaultMaxPerOwner
	}
	if opts.Currency == "" {
		opts.Currency = ledger.DefaultCurrency
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:       store,
		maxPerOwner: opts.MaxPerOwner,
		currency:    opts.Currency,
		audit:       opts.Audit,
		logger:      opts.Logger,
		now:         opts.Now,
	}
}

// CreateInput captures data required to open an account.
type CreateInput struct {
	OwnerID  string
	Type     ledger.Type
	Currency string
}

// Create opens an empty active account.
func (s *Service) Create(ctx context.Context, in CreateInput) (ledger.Account, error) {
	if in.OwnerID == "" {
		return ledger.Account{}, apperrors.Validation("owner is required")
	}
	if !in.Type.Valid() || in.Type == ledger.TypeLoan {
		return ledger.Account{}, apperrors.Validation("account type %q cannot be opened", in.Type)
	}
	existing, err := s.store.Accounts().ListByOwner(ctx, in.OwnerID)
	if err != nil {
		return ledger.Account{}, err
	}
	open := 0
	for _, a := range existing {
		if a.Type != ledger.TypeLoan {
			open++
		}
	}
	if open >= s.maxPerOwner {
		return ledger.Account{}, apperrors.Validation("maximum of %d accounts per customer reached", s.maxPerOwner)
	}

	currency := in.Currency
	if currency == "" {
		currency = s.currency
	}
	now := s.now().UTC()
	account := ledger.Account{
		ID:               uuid.NewString(),
		OwnerID:          in.OwnerID,
		Type:             in.Type,
		Currency:         currency,
		CurrentBalance:   decimal.Zero,
		AvailableBalance: decimal.Zero,
		Status:           ledger.StatusActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	for attempt := 1; ; attempt++ {
		account.AccountNumber = ledger.NewAccountNumber(s.now())
		err = s.store.Accounts().Create(ctx, account)
		if err == nil {
			break
		}
		if !errors.Is(err, apperrors.ErrDuplicate) || attempt == numberAttempts {
			return ledger.Account{}, err
		}
	}

	s.logger.Info("account opened", slog.String("account_number", account.AccountNumber), slog.String("owner_id", account.OwnerID))
	s.record(ctx, audit.Event{
		ActorID: in.OwnerID, Action: audit.ActionAccountCreated, Entity: "accounts", EntityID: account.ID,
		Details: map[string]string{"account_number": account.AccountNumber, "type": string(account.Type)},
	})
	return account, nil
}

// Summary totals an owner's spendable accounts. Loan repayment accounts are
// listed but not counted.
type Summary struct {
	TotalAccounts    int
	TotalBalance     decimal.Decimal
	AvailableBalance decimal.Decimal
}

// List returns the owner's accounts, newest first.
func (s *Service) List(ctx context.Context, ownerID string) ([]ledger.Account, Summary, error) {
	accounts, err := s.store.Accounts().ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, Summary{}, err
	}
	sum := Summary{TotalAccounts: len(accounts), TotalBalance: decimal.Zero, AvailableBalance: decimal.Zero}
	for _, a := range accounts {
		if a.Type == ledger.TypeLoan {
			continue
		}
		sum.TotalBalance = sum.TotalBalance.Add(a.CurrentBalance)
		sum.AvailableBalance = sum.AvailableBalance.Add(a.AvailableBalance)
	}
	return accounts, sum, nil
}

// Balance returns an account owned by ownerID.
func (s *Service) Balance(ctx context.Context, ownerID, accountID string) (ledger.Account, error) {
	return s.owned(ctx, ownerID, accountID)
}

// Statement is an account's completed activity over a date range.
type Statement struct {
	Account        ledger.Account
	Start          time.Time
	End            time.Time
	Transactions   []transactions.Transaction
	TotalCredits   decimal.Decimal
	TotalDebits    decimal.Decimal
	OpeningBalance decimal.Decimal
	ClosingBalance decimal.Decimal
	GeneratedAt    time.Time
}

// Statement lists completed transactions between the start and end dates
// inclusive. The closing balance is the current balance, so the opening
// balance is derived backwards from the period's totals.
func (s *Service) Statement(ctx context.Context, ownerID, accountID string, start, end time.Time) (Statement, error) {
	if start.After(end) {
		return Statement{}, apperrors.Validation("start date must not be after end date")
	}
	account, err := s.owned(ctx, ownerID, accountID)
	if err != nil {
		return Statement{}, err
	}
	txns, err := s.store.Transactions().Statement(ctx, accountID, start, end)
	if err != nil {
		return Statement{}, err
	}

	var credits, debits []decimal.Decimal
	for _, t := range txns {
		if t.ToAccountID != nil && *t.ToAccountID == accountID {
			credits = append(credits, t.Amount)
		}
		if t.FromAccountID != nil && *t.FromAccountID == accountID {
			debits = append(debits, t.Amount)
		}
	}
	st := Statement{
		Account:        account,
		Start:          start,
		End:            end,
		Transactions:   txns,
		TotalCredits:   money.Sum(credits...),
		TotalDebits:    money.Sum(debits...),
		ClosingBalance: account.CurrentBalance,
		GeneratedAt:    s.now().UTC(),
	}
	st.OpeningBalance = st.ClosingBalance.Sub(st.TotalCredits).Add(st.TotalDebits)

	s.record(ctx, audit.Event{
		ActorID: ownerID, Action: audit.ActionStatementGenerated, Entity: "accounts", EntityID: accountID,
		Details: map[string]string{
			"start":        start.Format(time.DateOnly),
			"end":          end.Format(time.DateOnly),
			"transactions": fmt.Sprint(len(txns)),
			"credits":      money.Format(st.TotalCredits),
			"debits":       money.Format(st.TotalDebits),
		},
	})
	return st, nil
}

// History pages through every transaction touching the account, newest first.
func (s *Service) History(ctx context.Context, ownerID, accountID string, limit, offset int) ([]transactions.Transaction, error) {
	if _, err := s.owned(ctx, ownerID, accountID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.Transactions().ListByAccount(ctx, accountID, limit, offset)
}

func (s *Service) owned(ctx context.Context, ownerID, accountID string) (ledger.Account, error) {
	a, err := s.store.Accounts().Get(ctx, accountID)
	if err != nil {
		return ledger.Account{}, err
	}
	if ownerID != "" && a.OwnerID != ownerID {
		return ledger.Account{}, apperrors.NotFound("account", accountID)
	}
	return a, nil
}

func (s *Service) record(ctx context.Context, event audit.Event) {
	if s.audit == nil {
		return
	}
	event.At = s.now().UTC()
	if err := s.audit.Record(ctx, event); err != nil {
		s.logger.Warn("audit failed", slog.String("action", event.Action), slog.Any("error", err))
	}
}
