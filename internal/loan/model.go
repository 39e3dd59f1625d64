package loan

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle position of a loan.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusDisbursed Status = "disbursed"
	StatusActive    Status = "active"
	StatusClosed    Status = "closed"
	StatusDefaulted Status = "defaulted"
)

// InstallmentStatus tracks whether an installment has been covered.
type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "pending"
	InstallmentPaid    InstallmentStatus = "paid"
)

// Loan is a borrowing against an account. RemainingAmount never grows once the
// loan is active and the loan closes when it reaches zero.
type Loan struct {
	ID                 string
	LoanNumber         string
	OwnerID            string
	AccountID          string
	RepaymentAccountID string
	LoanType           string
	Principal          decimal.Decimal
	InterestRate       decimal.Decimal
	TenureMonths       int
	RemainingTenure    int
	EMIAmount          decimal.Decimal
	RemainingAmount    decimal.Decimal
	Purpose            string
	Status             Status
	Remarks            string
	DisbursedAt        *time.Time
	LastPaymentAt      *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Installment is one row of an amortization schedule. Principal+Interest equals
// Amount exactly.
type Installment struct {
	LoanID     string
	Sequence   int
	DueDate    time.Time
	Amount     decimal.Decimal
	Principal  decimal.Decimal
	Interest   decimal.Decimal
	Status     InstallmentStatus
	PaidAmount decimal.Decimal
	PaidAt     *time.Time
	Penalty    decimal.Decimal
}

// Outstanding is what is still owed on the installment.
func (i Installment) Outstanding() decimal.Decimal {
	return i.Amount.Sub(i.PaidAmount)
}

// Repository persists loans and their schedules.
type Repository interface {
	Create(ctx context.Context, loan Loan) error
	Get(ctx context.Context, id string) (Loan, error)
	// GetForUpdate reads a loan and locks it until the surrounding unit of work ends.
	GetForUpdate(ctx context.Context, id string) (Loan, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Loan, error)
	ListByStatus(ctx context.Context, status Status) ([]Loan, error)
	// Update overwrites the mutable fields of an existing loan.
	Update(ctx context.Context, loan Loan) error
	// Transition moves a loan from one status to another in a single conditional
	// write, failing with ErrAlreadyProcessed when the loan is no longer in from.
	Transition(ctx context.Context, id string, from, to Status, remarks string) (Loan, error)
	// SaveInstallments inserts or replaces the given installments.
	SaveInstallments(ctx context.Context, loanID string, installments []Installment) error
	Installments(ctx context.Context, loanID string) ([]Installment, error)
}

// NewLoanNumber returns LOAN, the millisecond clock and four random digits.
func NewLoanNumber(now time.Time) string {
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		n = big.NewInt(now.UnixNano() % 9000)
	}
	return fmt.Sprintf("LOAN%d%d", now.UnixMilli(), 1000+n.Int64())
}
