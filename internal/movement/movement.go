// Package movement moves money between accounts. Every movement places a hold
// where funds leave an account, records a pending transaction, applies the
// balance changes in one unit of work and, when that unit fails, releases the
// hold and marks the transaction failed before returning.
package movement

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tsheringkof667-bot/Bank/internal/apperrors"
	"github.com/tsheringkof667-bot/Bank/internal/audit"
	"github.com/tsheringkof667-bot/Bank/internal/ledger"
	"github.com/tsheringkof667-bot/Bank/internal/loan"
	"github.com/tsheringkof667-bot/Bank/internal/metrics"
	"github.com/tsheringkof667-bot/Bank/internal/notification"
	"github.com/tsheringkof667-bot/Bank/internal/store"
	"github.com/tsheringkof667-bot/Bank/internal/transactions"
)

// State is a step of the movement state machine.
type State string

const (
	StateValidating   State = "validating"
	StateHeld         State = "held"
	StateApplying     State = "applying"
	StateCompleted    State = "completed"
	StateCompensating State = "compensating"
	StateFailed       State = "failed"
)

// Limits caps outgoing money.
type Limits struct {
	// DailyTransfer caps completed transfers out of one account per UTC day.
	DailyTransfer decimal.Decimal
	// Withdrawal caps a single withdrawal.
	Withdrawal decimal.Decimal
}

// DefaultLimits returns 50000 per day for transfers and 20000 per withdrawal.
func DefaultLimits() Limits {
	return Limits{DailyTransfer: decimal.NewFromInt(50000), Withdrawal: decimal.NewFromInt(20000)}
}

const maxRecordAttempts = 3

// Service orchestrates money movements over a Store.
type Service struct {
	store     store.Store
	limits    Limits
	loanTerms loan.Terms
	notifier  notification.Notifier
	audit     audit.Sink
	metrics   metrics.Recorder
	logger    *slog.Logger
	now       func() time.Time
}

// Options carries the optional collaborators of a Service.
type Options struct {
	Limits    Limits
	LoanTerms loan.Terms
	Notifier  notification.Notifier
	Audit     audit.Sink
	Metrics   metrics.Recorder
	Logger    *slog.Logger
	Now       func() time.Time
}

// NewService constructs the orchestrator. Zero limits fall back to DefaultLimits.
func NewService(st store.Store, opts Options) *Service {
	if opts.Limits.DailyTransfer.IsZero() && opts.Limits.Withdrawal.IsZero() {
		opts.Limits = DefaultLimits()
	}
	if opts.LoanTerms.InterestRate.IsZero() {
		opts.LoanTerms = loan.DefaultTerms()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NoOp{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:     st,
		limits:    opts.Limits,
		loanTerms: opts.LoanTerms,
		notifier:  opts.Notifier,
		audit:     opts.Audit,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		now:       opts.Now,
	}
}

// Result describes a completed movement.
type Result struct {
	TransactionID string
	Type          transactions.Type
	Status        transactions.Status
	Amount        decimal.Decimal
	From          *ledger.Account
	To            *ledger.Account
	Loan          *loan.Loan
	CompletedAt   time.Time
}

// Transaction returns a transaction the caller is party to.
func (s *Service) Transaction(ctx context.Context, callerID, transactionID string) (transactions.Transaction, error) {
	t, err := s.store.Transactions().Get(ctx, transactionID)
	if err != nil {
		return transactions.Transaction{}, err
	}
	if callerID == "" {
		return t, nil
	}
	for _, id := range []*string{t.FromAccountID, t.ToAccountID} {
		if id == nil {
			continue
		}
		a, err := s.store.Accounts().Get(ctx, *id)
		if err == nil && a.OwnerID == callerID {
			return t, nil
		}
	}
	return transactions.Transaction{}, apperrors.NotFound("transaction", transactionID)
}

// ownedActive loads an account and checks that callerID owns it and it can move money.
// Loan accounts never qualify: they only receive repayments.
func (s *Service) ownedActive(ctx context.Context, callerID, accountID string) (ledger.Account, error) {
	a, err := s.store.Accounts().Get(ctx, accountID)
	if err != nil {
		return ledger.Account{}, err
	}
	if callerID != "" && a.OwnerID != callerID {
		return ledger.Account{}, apperrors.NotFound("account", accountID)
	}
	if err := spendable(a); err != nil {
		return ledger.Account{}, err
	}
	return a, nil
}

func spendable(a ledger.Account) error {
	if a.Type == ledger.TypeLoan {
		return apperrors.Validation("account %s is a loan account", a.AccountNumber)
	}
	if a.Status != ledger.StatusActive {
		return apperrors.Validation("account %s is %s", a.AccountNumber, a.Status)
	}
	return nil
}
