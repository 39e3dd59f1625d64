package loan

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tsheringkof667-bot/Bank/internal/apperrors"
	"github.com/tsheringkof667-bot/Bank/internal/audit"
	"github.com/tsheringkof667-bot/Bank/internal/ledger"
	"github.com/tsheringkof667-bot/Bank/internal/money"
	"github.com/tsheringkof667-bot/Bank/internal/notification"
)

const (
	MinTenure = 1
	MaxTenure = 60
)

// Store is the slice of the persistent store the loan service reads and writes.
type Store interface {
	Accounts() ledger.Accounts
	Loans() Repository
}

// Terms are the lending parameters applied to new applications and overdue checks.
type Terms struct {
	InterestRate  decimal.Decimal
	PenaltyRate   decimal.Decimal
	OverdueWindow time.Duration
}

// DefaultTerms lends at 8.5% with a 2% late charge after 30 days.
func DefaultTerms() Terms {
	return Terms{
		InterestRate:  decimal.RequireFromString("8.5"),
		PenaltyRate:   decimal.NewFromInt(2),
		OverdueWindow: 30 * 24 * time.Hour,
	}
}

// Service manages loan applications and read projections. Money moves through
// the movement package; this service never touches balances.
type Service struct {
	store    Store
	terms    Terms
	notifier notification.Notifier
	audit    audit.Sink
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a loan service.
func NewService(store Store, terms Terms, notifier notification.Notifier, sink audit.Sink, logger *slog.Logger) *Service {
	return &Service{store: store, terms: terms, notifier: notifier, audit: sink, logger: logger, now: time.Now}
}

// WithClock overrides the service clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Terms returns the configured lending terms.
func (s *Service) Terms() Terms { return s.terms }

// ApplyInput captures a loan application.
type ApplyInput struct {
	OwnerID      string
	AccountID    string
	LoanType     string
	Amount       decimal.Decimal
	TenureMonths int
	Purpose      string
}

// Apply files a pending loan against one of the applicant's accounts.
func (s *Service) Apply(ctx context.Context, in ApplyInput) (Loan, error) {
	if err := money.ValidatePositive(in.Amount); err != nil {
		return Loan{}, err
	}
	if in.TenureMonths < MinTenure || in.TenureMonths > MaxTenure {
		return Loan{}, apperrors.Validation("loan tenure must be between %d and %d months", MinTenure, MaxTenure)
	}
	if in.LoanType == "" {
		return Loan{}, apperrors.Validation("loan type is required")
	}
	account, err := s.store.Accounts().Get(ctx, in.AccountID)
	if err != nil {
		return Loan{}, err
	}
	if account.OwnerID != in.OwnerID {
		return Loan{}, apperrors.NotFound("account", in.AccountID)
	}

	emi, err := CalculateEMI(in.Amount, s.terms.InterestRate, in.TenureMonths)
	if err != nil {
		return Loan{}, err
	}

	now := s.now().UTC()
	l := Loan{
		ID:              uuid.NewString(),
		LoanNumber:      NewLoanNumber(now),
		OwnerID:         in.OwnerID,
		AccountID:       in.AccountID,
		LoanType:        in.LoanType,
		Principal:       in.Amount,
		InterestRate:    s.terms.InterestRate,
		TenureMonths:    in.TenureMonths,
		RemainingTenure: in.TenureMonths,
		EMIAmount:       emi,
		RemainingAmount: in.Amount,
		Purpose:         in.Purpose,
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.Loans().Create(ctx, l); err != nil {
		return Loan{}, err
	}

	s.logger.Info("loan application filed", slog.String("loan_number", l.LoanNumber), slog.String("owner_id", l.OwnerID))
	s.emit(ctx, notification.Message{
		Kind:        notification.KindLoanApplied,
		Destination: l.OwnerID,
		Title:       "Loan Application Submitted",
		Body:        fmt.Sprintf("Your %s loan application for %s has been submitted for review.", l.LoanType, money.Format(l.Principal)),
		Data:        map[string]string{"loan_number": l.LoanNumber},
	}, audit.Event{
		ActorID: l.OwnerID, Action: audit.ActionLoanApplied, Entity: "loans", EntityID: l.ID,
		Details: map[string]string{"amount": money.Format(l.Principal), "tenure_months": fmt.Sprint(l.TenureMonths)},
	})
	return l, nil
}

// Approve moves a pending loan to approved.
func (s *Service) Approve(ctx context.Context, loanID, remarks string) (Loan, error) {
	return s.transition(ctx, loanID, StatusPending, StatusApproved, remarks, audit.ActionLoanApproved)
}

// Reject moves a pending loan to rejected.
func (s *Service) Reject(ctx context.Context, loanID, remarks string) (Loan, error) {
	return s.transition(ctx, loanID, StatusPending, StatusRejected, remarks, audit.ActionLoanRejected)
}

// MarkDefaulted flags an active loan as defaulted. It is a reporting state only.
func (s *Service) MarkDefaulted(ctx context.Context, loanID, remarks string) (Loan, error) {
	return s.transition(ctx, loanID, StatusActive, StatusDefaulted, remarks, audit.ActionLoanDefaulted)
}

func (s *Service) transition(ctx context.Context, loanID string, from, to Status, remarks, action string) (Loan, error) {
	l, err := s.store.Loans().Transition(ctx, loanID, from, to, remarks)
	if err != nil {
		return Loan{}, err
	}
	s.logger.Info("loan status changed", slog.String("loan_number", l.LoanNumber), slog.String("from", string(from)), slog.String("to", string(to)))
	s.emit(ctx, notification.Message{}, audit.Event{
		ActorID: l.OwnerID, Action: action, Entity: "loans", EntityID: l.ID,
		Details: map[string]string{"remarks": remarks},
	})
	return l, nil
}

// Get returns a loan, checking ownership when ownerID is set.
func (s *Service) Get(ctx context.Context, ownerID, loanID string) (Loan, error) {
	l, err := s.store.Loans().Get(ctx, loanID)
	if err != nil {
		return Loan{}, err
	}
	if ownerID != "" && l.OwnerID != ownerID {
		return Loan{}, apperrors.NotFound("loan", loanID)
	}
	return l, nil
}

// Summary aggregates an owner's loans.
type Summary struct {
	TotalLoans    int
	ActiveLoans   int
	TotalBorrowed decimal.Decimal
	TotalPaid     decimal.Decimal
	TotalDue      decimal.Decimal
}

// ListByOwner returns the owner's loans with totals.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]Loan, Summary, error) {
	loans, err := s.store.Loans().ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, Summary{}, err
	}
	sum := Summary{TotalLoans: len(loans), TotalBorrowed: decimal.Zero, TotalPaid: decimal.Zero, TotalDue: decimal.Zero}
	for _, l := range loans {
		if l.Status == StatusActive {
			sum.ActiveLoans++
		}
		sum.TotalBorrowed = sum.TotalBorrowed.Add(l.Principal)
		if l.Status == StatusPending || l.Status == StatusApproved || l.Status == StatusRejected {
			continue
		}
		due := decimal.Max(l.RemainingAmount, decimal.Zero)
		sum.TotalDue = sum.TotalDue.Add(due)
		sum.TotalPaid = sum.TotalPaid.Add(s.paid(ctx, l))
	}
	return loans, sum, nil
}

// paid is what has been repaid so far, measured against the scheduled total.
func (s *Service) paid(ctx context.Context, l Loan) decimal.Decimal {
	schedule, err := s.store.Loans().Installments(ctx, l.ID)
	if err != nil || len(schedule) == 0 {
		return l.Principal.Sub(l.RemainingAmount)
	}
	total := decimal.Zero
	for _, inst := range schedule {
		total = total.Add(inst.PaidAmount)
	}
	return total
}

// Schedule returns the loan's installments ordered by sequence.
func (s *Service) Schedule(ctx context.Context, ownerID, loanID string) (Loan, []Installment, error) {
	l, err := s.Get(ctx, ownerID, loanID)
	if err != nil {
		return Loan{}, nil, err
	}
	schedule, err := s.store.Loans().Installments(ctx, loanID)
	if err != nil {
		return Loan{}, nil, err
	}
	if len(schedule) == 0 && l.DisbursedAt == nil {
		// Not disbursed yet: project the schedule as if disbursed now.
		schedule = GenerateSchedule(l.Principal, l.InterestRate, l.TenureMonths, l.EMIAmount, s.now())
		for i := range schedule {
			schedule[i].LoanID = l.ID
		}
	}
	sort.Slice(schedule, func(i, j int) bool { return schedule[i].Sequence < schedule[j].Sequence })
	return l, schedule, nil
}

// Overdue is one entry of the overdue report.
type Overdue struct {
	Loan        Loan
	DaysOverdue int
	Penalty     decimal.Decimal
}

// OverdueLoans lists active loans with an outstanding balance and no payment
// within the overdue window before asOf. It does not modify anything.
func (s *Service) OverdueLoans(ctx context.Context, asOf time.Time) ([]Overdue, error) {
	active, err := s.store.Loans().ListByStatus(ctx, StatusActive)
	if err != nil {
		return nil, err
	}
	var out []Overdue
	for _, l := range active {
		if !IsOverdue(l, asOf, s.terms.OverdueWindow) {
			continue
		}
		out = append(out, Overdue{
			Loan:        l,
			DaysOverdue: DaysOverdue(l, asOf, s.terms.OverdueWindow),
			Penalty:     Penalty(l.EMIAmount, s.terms.PenaltyRate),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DaysOverdue > out[j].DaysOverdue })
	return out, nil
}

// Quote is an EMI estimate.
type Quote struct {
	Principal     decimal.Decimal
	InterestRate  decimal.Decimal
	TenureMonths  int
	EMI           decimal.Decimal
	TotalPayable  decimal.Decimal
	TotalInterest decimal.Decimal
}

// Quote prices a loan. A zero rate argument means the configured rate.
func (s *Service) Quote(principal, rate decimal.Decimal, tenureMonths int) (Quote, error) {
	if rate.IsZero() {
		rate = s.terms.InterestRate
	}
	if tenureMonths > MaxTenure {
		return Quote{}, apperrors.Validation("loan tenure must be between %d and %d months", MinTenure, MaxTenure)
	}
	emi, err := CalculateEMI(principal, rate, tenureMonths)
	if err != nil {
		return Quote{}, err
	}
	total := TotalPayable(GenerateSchedule(principal, rate, tenureMonths, emi, s.now()))
	return Quote{
		Principal:     principal,
		InterestRate:  rate,
		TenureMonths:  tenureMonths,
		EMI:           emi,
		TotalPayable:  total,
		TotalInterest: total.Sub(principal),
	}, nil
}

func (s *Service) emit(ctx context.Context, msg notification.Message, event audit.Event) {
	if s.notifier != nil && msg.Kind != "" {
		if err := s.notifier.Send(ctx, msg); err != nil {
			s.logger.Warn("notification failed", slog.String("kind", msg.Kind), slog.Any("error", err))
		}
	}
	if s.audit != nil {
		if event.At.IsZero() {
			event.At = s.now().UTC()
		}
		if err := s.audit.Record(ctx, event); err != nil {
			s.logger.Warn("audit failed", slog.String("action", event.Action), slog.Any("error", err))
		}
	}
}
