package transactions

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tsheringkof667-bot/Bank/internal/apperrors"
	"github.com/tsheringkof667-bot/Bank/internal/money"
)

// Type classifies a money movement.
type Type string

const (
	TypeDeposit          Type = "deposit"
	TypeWithdrawal       Type = "withdrawal"
	TypeTransfer         Type = "transfer"
	TypeLoanDisbursement Type = "loan_disbursement"
	TypeLoanRepayment    Type = "loan_repayment"
	TypeInterestCredit   Type = "interest_credit"
	TypePenalty          Type = "penalty"
	TypeFee              Type = "fee"
)

// Status is the lifecycle position of a transaction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Transaction records one movement attempt. FromAccountID and ToAccountID are
// non-owning references; at least one is set.
type Transaction struct {
	ID            string
	TransactionID string
	FromAccountID *string
	ToAccountID   *string
	Amount        decimal.Decimal
	Type          Type
	Status        Status
	Description   string
	ReferenceID   string
	Metadata      []byte
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Touches reports whether the transaction moves money into or out of accountID.
func (t Transaction) Touches(accountID string) bool {
	return (t.FromAccountID != nil && *t.FromAccountID == accountID) ||
		(t.ToAccountID != nil && *t.ToAccountID == accountID)
}

// RecordInput describes a new pending transaction.
type RecordInput struct {
	Type          Type
	FromAccountID *string
	ToAccountID   *string
	Amount        decimal.Decimal
	Description   string
	ReferenceID   string
	Metadata      []byte
}

func (in RecordInput) validate() error {
	if in.FromAccountID == nil && in.ToAccountID == nil {
		return apperrors.Validation("transaction needs a source or destination account")
	}
	if in.Type == "" {
		return apperrors.Validation("transaction type is required")
	}
	return money.ValidatePositive(in.Amount)
}

// Log is the transaction journal. Complete and Fail are the idempotency guard:
// a transaction leaves pending at most once.
type Log interface {
	Record(ctx context.Context, in RecordInput) (Transaction, error)
	Complete(ctx context.Context, transactionID string) (Transaction, error)
	Fail(ctx context.Context, transactionID, reason string) (Transaction, error)
	Get(ctx context.Context, transactionID string) (Transaction, error)
	// DailyDebitTotal sums completed transactions of type t debited from accountID
	// during the UTC calendar day containing date.
	DailyDebitTotal(ctx context.Context, accountID string, t Type, date time.Time) (decimal.Decimal, error)
	// Statement lists completed transactions touching accountID created between the
	// start and end dates inclusive, oldest first.
	Statement(ctx context.Context, accountID string, start, end time.Time) ([]Transaction, error)
	// ListByAccount lists transactions of any status touching accountID, newest first.
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]Transaction, error)
}

// IDGenerator produces externally visible transaction identifiers.
type IDGenerator func() string

// NewTransactionID returns TXN, the 13-digit millisecond clock and 8 random hex chars.
func NewTransactionID() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("transactions: read random: %v", err))
	}
	return fmt.Sprintf("TXN%013d%s", time.Now().UnixMilli(), hex.EncodeToString(b[:]))
}

// DayBounds returns the half-open UTC day [start, end) containing t.
func DayBounds(t time.Time) (time.Time, time.Time) {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// RangeBounds returns [start day 00:00, day after end 00:00) in UTC.
func RangeBounds(start, end time.Time) (time.Time, time.Time) {
	from, _ := DayBounds(start)
	_, to := DayBounds(end)
	return from, to
}
