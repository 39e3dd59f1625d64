package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tsheringkof667-bot/Bank/internal/apperrors"
)

// MemoryAccounts is a map-backed Accounts implementation. It does no locking of its
// own: the owning store serializes access and clones it to stage a unit of work.
type MemoryAccounts struct {
	accounts map[string]Account
	byNumber map[string]string
	now      func() time.Time
}

// NewMemoryAccounts creates an empty account book using now as its clock.
func NewMemoryAccounts(now func() time.Time) *MemoryAccounts {
	if now == nil {
		now = time.Now
	}
	return &MemoryAccounts{
		accounts: make(map[string]Account),
		byNumber: make(map[string]string),
		now:      now,
	}
}

// Clone returns an independent copy. Account values hold no shared references.
func (m *MemoryAccounts) Clone() *MemoryAccounts {
	c := &MemoryAccounts{
		accounts: make(map[string]Account, len(m.accounts)),
		byNumber: make(map[string]string, len(m.byNumber)),
		now:      m.now,
	}
	for k, v := range m.accounts {
		c.accounts[k] = v
	}
	for k, v := range m.byNumber {
		c.byNumber[k] = v
	}
	return c
}

func (m *MemoryAccounts) Create(_ context.Context, account Account) error {
	if _, exists := m.accounts[account.ID]; exists {
		return fmt.Errorf("%w: account %s", apperrors.ErrDuplicate, account.ID)
	}
	if _, exists := m.byNumber[account.AccountNumber]; exists {
		return fmt.Errorf("%w: account number %s", apperrors.ErrDuplicate, account.AccountNumber)
	}
	m.accounts[account.ID] = account
	m.byNumber[account.AccountNumber] = account.ID
	return nil
}

func (m *MemoryAccounts) Get(_ context.Context, id string) (Account, error) {
	account, ok := m.accounts[id]
	if !ok {
		return Account{}, apperrors.NotFound("account", id)
	}
	return account, nil
}

func (m *MemoryAccounts) GetByNumber(ctx context.Context, number string) (Account, error) {
	id, ok := m.byNumber[number]
	if !ok {
		return Account{}, apperrors.NotFound("account number", number)
	}
	return m.Get(ctx, id)
}

func (m *MemoryAccounts) ListByOwner(_ context.Context, ownerID string) ([]Account, error) {
	var out []Account
	for _, a := range m.accounts {
		if a.OwnerID == ownerID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryAccounts) Credit(ctx context.Context, id string, amount decimal.Decimal) (Account, error) {
	return m.mutate(ctx, id, amount, func(a *Account) error {
		a.CurrentBalance = a.CurrentBalance.Add(amount)
		a.AvailableBalance = a.AvailableBalance.Add(amount)
		return nil
	})
}

func (m *MemoryAccounts) Debit(ctx context.Context, id string, amount decimal.Decimal) (Account, error) {
	return m.mutate(ctx, id, amount, func(a *Account) error {
		a.CurrentBalance = a.CurrentBalance.Sub(amount)
		return nil
	})
}

func (m *MemoryAccounts) Hold(ctx context.Context, id string, amount decimal.Decimal) (Account, error) {
	return m.mutate(ctx, id, amount, func(a *Account) error {
		if a.AvailableBalance.LessThan(amount) {
			return fmt.Errorf("%w: account %s available %s, requested %s",
				apperrors.ErrInsufficientFunds, id, a.AvailableBalance.StringFixed(2), amount.StringFixed(2))
		}
		a.AvailableBalance = a.AvailableBalance.Sub(amount)
		return nil
	})
}

func (m *MemoryAccounts) Release(ctx context.Context, id string, amount decimal.Decimal) (Account, error) {
	return m.mutate(ctx, id, amount, func(a *Account) error {
		a.AvailableBalance = a.AvailableBalance.Add(amount)
		return nil
	})
}

// mutate applies fn to a copy and stores it only when fn succeeds.
func (m *MemoryAccounts) mutate(_ context.Context, id string, amount decimal.Decimal, fn func(*Account) error) (Account, error) {
	if err := validateAmount(amount); err != nil {
		return Account{}, err
	}
	account, ok := m.accounts[id]
	if !ok {
		return Account{}, apperrors.NotFound("account", id)
	}
	if err := fn(&account); err != nil {
		return Account{}, err
	}
	account.UpdatedAt = m.now().UTC()
	m.accounts[id] = account
	return account, nil
}
