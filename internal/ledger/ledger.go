package ledger

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tsheringkof667-bot/Bank/internal/money"
)

// Type classifies an account.
type Type string

const (
	TypeSavings      Type = "savings"
	TypeCurrent      Type = "current"
	TypeFixedDeposit Type = "fixed_deposit"
	TypeLoan         Type = "loan"
)

// Valid reports whether t is a known account type.
func (t Type) Valid() bool {
	switch t {
	case TypeSavings, TypeCurrent, TypeFixedDeposit, TypeLoan:
		return true
	}
	return false
}

const (
	StatusActive = "active"
	StatusFrozen = "frozen"
	StatusClosed = "closed"
)

// DefaultCurrency is used when an account is opened without one.
const DefaultCurrency = "INR"

const accountNumberPrefix = "KONI"

// Account is a customer account holding two balances. CurrentBalance is the settled
// value; AvailableBalance is what can still be spent and is lower than CurrentBalance
// by exactly the sum of outstanding holds.
type Account struct {
	ID               string
	AccountNumber    string
	OwnerID          string
	Type             Type
	Currency         string
	CurrentBalance   decimal.Decimal
	AvailableBalance decimal.Decimal
	Status           string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Held returns the amount currently reserved by outstanding holds.
func (a Account) Held() decimal.Decimal {
	return a.CurrentBalance.Sub(a.AvailableBalance)
}

// Accounts defines the balance primitives. Balances change only through Credit,
// Debit, Hold and Release. Every amount must be positive with at most two
// fractional digits.
type Accounts interface {
	Create(ctx context.Context, account Account) error
	Get(ctx context.Context, id string) (Account, error)
	GetByNumber(ctx context.Context, number string) (Account, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Account, error)

	// Credit increases both balances.
	Credit(ctx context.Context, id string, amount decimal.Decimal) (Account, error)
	// Debit decreases the current balance unconditionally; sufficiency is the
	// caller's responsibility, established by an earlier Hold.
	Debit(ctx context.Context, id string, amount decimal.Decimal) (Account, error)
	// Hold decreases the available balance only if it stays non-negative, as one
	// atomic compare-and-decrement. On failure nothing is mutated.
	Hold(ctx context.Context, id string, amount decimal.Decimal) (Account, error)
	// Release returns a held amount to the available balance.
	Release(ctx context.Context, id string, amount decimal.Decimal) (Account, error)
}

// NewAccountNumber generates a customer-facing account number: the KONI prefix,
// the last eight digits of the millisecond clock and four random digits.
func NewAccountNumber(now time.Time) string {
	ts := fmt.Sprintf("%013d", now.UnixMilli())
	return accountNumberPrefix + ts[len(ts)-8:] + randomDigits(4)
}

func randomDigits(n int) string {
	max := big.NewInt(1)
	for i := 0; i < n; i++ {
		max.Mul(max, big.NewInt(10))
	}
	v, err := rand.Int(rand.Reader, max)
	if err != nil {
		v = big.NewInt(time.Now().UnixNano() % max.Int64())
	}
	return fmt.Sprintf("%0*d", n, v.Int64())
}

func validateAmount(amount decimal.Decimal) error {
	return money.ValidatePositive(amount)
}
