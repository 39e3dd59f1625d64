package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"

	"github.com/tsheringkof667-bot/Bank/internal/apperrors"
	"github.com/tsheringkof667-bot/Bank/internal/ledger"
	"github.com/tsheringkof667-bot/Bank/internal/loan"
	"github.com/tsheringkof667-bot/Bank/internal/transactions"
)

// DefaultBusyTimeout bounds how long a call waits for the store.
const DefaultBusyTimeout = 5 * time.Second

// MemoryOptions configures NewMemory.
type MemoryOptions struct {
	Now           func() time.Time
	TransactionID transactions.IDGenerator
	BusyTimeout   time.Duration
}

type memState struct {
	accounts *ledger.MemoryAccounts
	log      *transactions.MemoryLog
	loans    *loan.MemoryRepository
}

func (s *memState) clone() *memState {
	return &memState{accounts: s.accounts.Clone(), log: s.log.Clone(), loans: s.loans.Clone()}
}

func (s *memState) Accounts() ledger.Accounts      { return s.accounts }
func (s *memState) Transactions() transactions.Log { return s.log }
func (s *memState) Loans() loan.Repository         { return s.loans }

// Memory is an in-process Store. A weighted semaphore of size one serializes every
// call. Units of work run against a cloned state that replaces the live one only
// when the callback succeeds.
type Memory struct {
	sem         *semaphore.Weighted
	state       *memState
	busyTimeout time.Duration
}

// NewMemory builds an empty in-memory store.
func NewMemory(opts MemoryOptions) *Memory {
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = DefaultBusyTimeout
	}
	return &Memory{
		sem: semaphore.NewWeighted(1),
		state: &memState{
			accounts: ledger.NewMemoryAccounts(opts.Now),
			log:      transactions.NewMemoryLog(opts.TransactionID, opts.Now),
			loans:    loan.NewMemoryRepository(opts.Now),
		},
		busyTimeout: opts.BusyTimeout,
	}
}

func (m *Memory) Accounts() ledger.Accounts      { return memAccounts{m} }
func (m *Memory) Transactions() transactions.Log { return memLog{m} }
func (m *Memory) Loans() loan.Repository         { return memLoans{m} }

// Close is a no-op.
func (m *Memory) Close() error { return nil }

func (m *Memory) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.sem.Release(1)

	staged := m.state.clone()
	if err := fn(staged); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return apperrors.Contention("commit", err)
	}
	m.state = staged
	return nil
}

func (m *Memory) acquire(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.busyTimeout)
	defer cancel()
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return apperrors.Contention("acquire store", err)
	}
	return nil
}

func call[T any](ctx context.Context, m *Memory, fn func(st *memState) (T, error)) (T, error) {
	if err := m.acquire(ctx); err != nil {
		var zero T
		return zero, err
	}
	defer m.sem.Release(1)
	return fn(m.state)
}

func exec(ctx context.Context, m *Memory, fn func(st *memState) error) error {
	_, err := call(ctx, m, func(st *memState) (struct{}, error) { return struct{}{}, fn(st) })
	return err
}

type memAccounts struct{ m *Memory }

func (a memAccounts) Create(ctx context.Context, account ledger.Account) error {
	return exec(ctx, a.m, func(st *memState) error { return st.accounts.Create(ctx, account) })
}

func (a memAccounts) Get(ctx context.Context, id string) (ledger.Account, error) {
	return call(ctx, a.m, func(st *memState) (ledger.Account, error) { return st.accounts.Get(ctx, id) })
}

func (a memAccounts) GetByNumber(ctx context.Context, number string) (ledger.Account, error) {
	return call(ctx, a.m, func(st *memState) (ledger.Account, error) { return st.accounts.GetByNumber(ctx, number) })
}

func (a memAccounts) ListByOwner(ctx context.Context, ownerID string) ([]ledger.Account, error) {
	return call(ctx, a.m, func(st *memState) ([]ledger.Account, error) { return st.accounts.ListByOwner(ctx, ownerID) })
}

func (a memAccounts) Credit(ctx context.Context, id string, amount decimal.Decimal) (ledger.Account, error) {
	return call(ctx, a.m, func(st *memState) (ledger.Account, error) { return st.accounts.Credit(ctx, id, amount) })
}

func (a memAccounts) Debit(ctx context.Context, id string, amount decimal.Decimal) (ledger.Account, error) {
	return call(ctx, a.m, func(st *memState) (ledger.Account, error) { return st.accounts.Debit(ctx, id, amount) })
}

func (a memAccounts) Hold(ctx context.Context, id string, amount decimal.Decimal) (ledger.Account, error) {
	return call(ctx, a.m, func(st *memState) (ledger.Account, error) { return st.accounts.Hold(ctx, id, amount) })
}

func (a memAccounts) Release(ctx context.Context, id string, amount decimal.Decimal) (ledger.Account, error) {
	return call(ctx, a.m, func(st *memState) (ledger.Account, error) { return st.accounts.Release(ctx, id, amount) })
}

type memLog struct{ m *Memory }

func (l memLog) Record(ctx context.Context, in transactions.RecordInput) (transactions.Transaction, error) {
	return call(ctx, l.m, func(st *memState) (transactions.Transaction, error) { return st.log.Record(ctx, in) })
}

func (l memLog) Complete(ctx context.Context, transactionID string) (transactions.Transaction, error) {
	return call(ctx, l.m, func(st *memState) (transactions.Transaction, error) { return st.log.Complete(ctx, transactionID) })
}

func (l memLog) Fail(ctx context.Context, transactionID, reason string) (transactions.Transaction, error) {
	return call(ctx, l.m, func(st *memState) (transactions.Transaction, error) {
		return st.log.Fail(ctx, transactionID, reason)
	})
}

func (l memLog) Get(ctx context.Context, transactionID string) (transactions.Transaction, error) {
	return call(ctx, l.m, func(st *memState) (transactions.Transaction, error) { return st.log.Get(ctx, transactionID) })
}

func (l memLog) DailyDebitTotal(ctx context.Context, accountID string, t transactions.Type, date time.Time) (decimal.Decimal, error) {
	return call(ctx, l.m, func(st *memState) (decimal.Decimal, error) {
		return st.log.DailyDebitTotal(ctx, accountID, t, date)
	})
}

func (l memLog) Statement(ctx context.Context, accountID string, start, end time.Time) ([]transactions.Transaction, error) {
	return call(ctx, l.m, func(st *memState) ([]transactions.Transaction, error) {
		return st.log.Statement(ctx, accountID, start, end)
	})
}

func (l memLog) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]transactions.Transaction, error) {
	return call(ctx, l.m, func(st *memState) ([]transactions.Transaction, error) {
		return st.log.ListByAccount(ctx, accountID, limit, offset)
	})
}

type memLoans struct{ m *Memory }

func (r memLoans) Create(ctx context.Context, l loan.Loan) error {
	return exec(ctx, r.m, func(st *memState) error { return st.loans.Create(ctx, l) })
}

func (r memLoans) Get(ctx context.Context, id string) (loan.Loan, error) {
	return call(ctx, r.m, func(st *memState) (loan.Loan, error) { return st.loans.Get(ctx, id) })
}

func (r memLoans) GetForUpdate(ctx context.Context, id string) (loan.Loan, error) {
	return call(ctx, r.m, func(st *memState) (loan.Loan, error) { return st.loans.GetForUpdate(ctx, id) })
}

func (r memLoans) ListByOwner(ctx context.Context, ownerID string) ([]loan.Loan, error) {
	return call(ctx, r.m, func(st *memState) ([]loan.Loan, error) { return st.loans.ListByOwner(ctx, ownerID) })
}

func (r memLoans) ListByStatus(ctx context.Context, status loan.Status) ([]loan.Loan, error) {
	return call(ctx, r.m, func(st *memState) ([]loan.Loan, error) { return st.loans.ListByStatus(ctx, status) })
}

func (r memLoans) Update(ctx context.Context, l loan.Loan) error {
	return exec(ctx, r.m, func(st *memState) error { return st.loans.Update(ctx, l) })
}

func (r memLoans) Transition(ctx context.Context, id string, from, to loan.Status, remarks string) (loan.Loan, error) {
	return call(ctx, r.m, func(st *memState) (loan.Loan, error) { return st.loans.Transition(ctx, id, from, to, remarks) })
}

func (r memLoans) SaveInstallments(ctx context.Context, loanID string, installments []loan.Installment) error {
	return exec(ctx, r.m, func(st *memState) error { return st.loans.SaveInstallments(ctx, loanID, installments) })
}

func (r memLoans) Installments(ctx context.Context, loanID string) ([]loan.Installment, error) {
	return call(ctx, r.m, func(st *memState) ([]loan.Installment, error) { return st.loans.Installments(ctx, loanID) })
}
