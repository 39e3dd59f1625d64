package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsheringkof667-bot/Bank/internal/apperrors"
	"github.com/tsheringkof667-bot/Bank/internal/ledger"
	"github.com/tsheringkof667-bot/Bank/internal/logging"
	"github.com/tsheringkof667-bot/Bank/internal/metrics"
	"github.com/tsheringkof667-bot/Bank/internal/transactions"
)

func openAccount(t *testing.T, s Store, balance string) ledger.Account {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	a := ledger.Account{
		ID:            uuid.NewString(),
		AccountNumber: ledger.NewAccountNumber(now),
		OwnerID:       "owner",
		Type:          ledger.TypeSavings,
		Currency:      ledger.DefaultCurrency,
		Status:        ledger.StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, s.Accounts().Create(ctx, a))
	a, err := s.Accounts().Credit(ctx, a.ID, decimal.RequireFromString(balance))
	require.NoError(t, err)
	return a
}

func TestMemoryAtomicCommitsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(MemoryOptions{})
	a := openAccount(t, s, "100")
	b := openAccount(t, s, "0")
	ten := decimal.NewFromInt(10)

	boom := errors.New("boom")
	err := s.Atomic(ctx, func(tx Tx) error {
		if _, err := tx.Accounts().Debit(ctx, a.ID, ten); err != nil {
			return err
		}
		if _, err := tx.Accounts().Credit(ctx, b.ID, ten); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	gotA, _ := s.Accounts().Get(ctx, a.ID)
	gotB, _ := s.Accounts().Get(ctx, b.ID)
	assert.Equal(t, "100.00", gotA.CurrentBalance.StringFixed(2))
	assert.Equal(t, "0.00", gotB.CurrentBalance.StringFixed(2))

	require.NoError(t, s.Atomic(ctx, func(tx Tx) error {
		if _, err := tx.Accounts().Debit(ctx, a.ID, ten); err != nil {
			return err
		}
		_, err := tx.Accounts().Credit(ctx, b.ID, ten)
		return err
	}))
	gotA, _ = s.Accounts().Get(ctx, a.ID)
	gotB, _ = s.Accounts().Get(ctx, b.ID)
	assert.Equal(t, "90.00", gotA.CurrentBalance.StringFixed(2))
	assert.Equal(t, "10.00", gotB.CurrentBalance.StringFixed(2))
}

func TestMemoryBusyTimeoutIsContention(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(MemoryOptions{BusyTimeout: 20 * time.Millisecond})
	a := openAccount(t, s, "5")

	var inner error
	require.NoError(t, s.Atomic(ctx, func(Tx) error {
		_, inner = s.Accounts().Get(ctx, a.ID)
		return nil
	}))
	assert.True(t, errors.Is(inner, apperrors.ErrContention), "got %v", inner)
	assert.True(t, apperrors.Retryable(inner))
}

func TestMemoryConcurrentHoldsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(MemoryOptions{})
	a := openAccount(t, s, "1000")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Accounts().Hold(ctx, a.ID, decimal.NewFromInt(300)); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			} else {
				assert.True(t, errors.Is(err, apperrors.ErrInsufficientFunds))
			}
		}()
	}
	wg.Wait()

	got, err := s.Accounts().Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, successes)
	assert.Equal(t, "100.00", got.AvailableBalance.StringFixed(2))
	assert.Equal(t, "1000.00", got.CurrentBalance.StringFixed(2))
}

func TestMemoryAtomicRollsBackTransactionLog(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(MemoryOptions{TransactionID: func() string { return "TXN1" }})
	a := openAccount(t, s, "1")

	tx, err := s.Transactions().Record(ctx, transactions.RecordInput{
		Type: transactions.TypeDeposit, ToAccountID: &a.ID, Amount: decimal.NewFromInt(1),
	})
	require.NoError(t, err)

	err = s.Atomic(ctx, func(uow Tx) error {
		if _, err := uow.Transactions().Complete(ctx, tx.TransactionID); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	got, err := s.Transactions().Get(ctx, tx.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, transactions.StatusPending, got.Status)
}

type failingStore struct {
	Store
	err error
}

func (f failingStore) Atomic(context.Context, func(Tx) error) error { return f.err }

func TestResilientOpensOnInfrastructureFailures(t *testing.T) {
	ctx := context.Background()
	inner := &failingStore{Store: NewMemory(MemoryOptions{}), err: apperrors.Persistence("write", errors.New("disk"))}
	r := NewResilient(inner, BreakerConfig{MaxFailures: 2, OpenTimeout: time.Minute}, metrics.NoOp{}, logging.Discard())

	for i := 0; i < 2; i++ {
		err := r.Atomic(ctx, func(Tx) error { return nil })
		assert.True(t, errors.Is(err, apperrors.ErrPersistence))
	}
	err := r.Atomic(ctx, func(Tx) error { return nil })
	assert.True(t, errors.Is(err, apperrors.ErrContention), "open breaker must surface as contention, got %v", err)

	_, err = r.Accounts().ListByOwner(ctx, "owner")
	assert.NoError(t, err, "direct accessors bypass the breaker")
}

func TestResilientIgnoresDomainErrors(t *testing.T) {
	ctx := context.Background()
	inner := &failingStore{Store: NewMemory(MemoryOptions{}), err: apperrors.ErrInsufficientFunds}
	r := NewResilient(inner, BreakerConfig{MaxFailures: 1, OpenTimeout: time.Minute}, nil, logging.Discard())

	for i := 0; i < 3; i++ {
		err := r.Atomic(ctx, func(Tx) error { return nil })
		assert.True(t, errors.Is(err, apperrors.ErrInsufficientFunds))
	}
	assert.Equal(t, "closed", r.State().String())
}
