package movement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/tsheringkof667-bot/Bank/internal/apperrors"
	"github.com/tsheringkof667-bot/Bank/internal/audit"
	"github.com/tsheringkof667-bot/Bank/internal/ledger"
	"github.com/tsheringkof667-bot/Bank/internal/logging"
	"github.com/tsheringkof667-bot/Bank/internal/notification"
	"github.com/tsheringkof667-bot/Bank/internal/store"
	"github.com/tsheringkof667-bot/Bank/internal/transactions"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []notification.Message
}

func (r *recordingNotifier) Send(_ context.Context, m notification.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, m)
	return nil
}

func (r *recordingNotifier) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.messages))
	for _, m := range r.messages {
		out = append(out, m.Kind)
	}
	return out
}

type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingSink) Record(_ context.Context, e audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// faultyStore commits nothing: it runs the callback inside the real unit of
// work, then aborts it with err. With panics set it panics instead.
type faultyStore struct {
	store.Store
	err    error
	panics bool
}

func (f *faultyStore) Atomic(ctx context.Context, fn func(tx store.Tx) error) error {
	return f.Store.Atomic(ctx, func(tx store.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		if f.panics {
			panic("commit exploded")
		}
		return f.err
	})
}

func amount(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func open(t *testing.T, st store.Store, owner, balance string) ledger.Account {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	a := ledger.Account{
		ID:            uuid.NewString(),
		AccountNumber: ledger.NewAccountNumber(now),
		OwnerID:       owner,
		Type:          ledger.TypeSavings,
		Currency:      ledger.DefaultCurrency,
		Status:        ledger.StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, st.Accounts().Create(ctx, a))
	if balance != "0" {
		var err error
		a, err = st.Accounts().Credit(ctx, a.ID, amount(balance))
		require.NoError(t, err)
	}
	return a
}

func balances(t *testing.T, st store.Store, id string) (current, available string) {
	t.Helper()
	a, err := st.Accounts().Get(context.Background(), id)
	require.NoError(t, err)
	return a.CurrentBalance.StringFixed(2), a.AvailableBalance.StringFixed(2)
}

type MovementSuite struct {
	suite.Suite
	ctx      context.Context
	store    *store.Memory
	notifier *recordingNotifier
	sink     *recordingSink
	svc      *Service
}

func TestMovementSuite(t *testing.T) {
	suite.Run(t, new(MovementSuite))
}

func (s *MovementSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewMemory(store.MemoryOptions{})
	s.notifier = &recordingNotifier{}
	s.sink = &recordingSink{}
	s.svc = NewService(s.store, Options{Notifier: s.notifier, Audit: s.sink, Logger: logging.Discard()})
}

func (s *MovementSuite) TestTransferMovesFundsAndRecordsCompletion() {
	a := open(s.T(), s.store, "alice", "10000")
	b := open(s.T(), s.store, "bob", "5000")

	res, err := s.svc.Transfer(s.ctx, TransferInput{
		CallerID: "alice", FromAccountID: a.ID, ToAccountNumber: b.AccountNumber, Amount: amount("3000"),
	})
	s.Require().NoError(err)
	s.Equal(transactions.StatusCompleted, res.Status)
	s.Equal("7000.00", res.From.CurrentBalance.StringFixed(2))
	s.Equal("8000.00", res.To.CurrentBalance.StringFixed(2))

	cur, avail := balances(s.T(), s.store, a.ID)
	s.Equal("7000.00", cur)
	s.Equal("7000.00", avail)

	txn, err := s.svc.Transaction(s.ctx, "bob", res.TransactionID)
	s.Require().NoError(err)
	s.Equal(transactions.TypeTransfer, txn.Type)
	s.Equal("Transfer to "+b.AccountNumber, txn.Description)

	_, err = s.svc.Transaction(s.ctx, "mallory", res.TransactionID)
	s.ErrorIs(err, apperrors.ErrNotFound)

	s.Equal([]string{notification.KindTransferSent, notification.KindTransferReceived}, s.notifier.kinds())
	s.Require().Len(s.sink.events, 1)
	s.Equal(audit.ActionTransferCompleted, s.sink.events[0].Action)
}

func (s *MovementSuite) TestTransferRejectsInsufficientFundsWithoutSideEffects() {
	a := open(s.T(), s.store, "alice", "100")
	b := open(s.T(), s.store, "bob", "0")

	_, err := s.svc.Transfer(s.ctx, TransferInput{
		CallerID: "alice", FromAccountID: a.ID, ToAccountNumber: b.AccountNumber, Amount: amount("100.01"),
	})
	s.ErrorIs(err, apperrors.ErrInsufficientFunds)

	cur, avail := balances(s.T(), s.store, a.ID)
	s.Equal("100.00", cur)
	s.Equal("100.00", avail)
	history, err := s.store.Transactions().ListByAccount(s.ctx, a.ID, 10, 0)
	s.Require().NoError(err)
	s.Empty(history)
	s.Empty(s.notifier.kinds())
}

func (s *MovementSuite) TestTransferValidation() {
	a := open(s.T(), s.store, "alice", "100")
	b := open(s.T(), s.store, "bob", "0")

	cases := map[string]struct {
		in   TransferInput
		want error
	}{
		"zero amount":       {TransferInput{CallerID: "alice", FromAccountID: a.ID, ToAccountNumber: b.AccountNumber, Amount: decimal.Zero}, apperrors.ErrValidation},
		"sub-cent amount":   {TransferInput{CallerID: "alice", FromAccountID: a.ID, ToAccountNumber: b.AccountNumber, Amount: amount("1.005")}, apperrors.ErrValidation},
		"same account":      {TransferInput{CallerID: "alice", FromAccountID: a.ID, ToAccountNumber: a.AccountNumber, Amount: amount("1")}, apperrors.ErrValidation},
		"foreign source":    {TransferInput{CallerID: "bob", FromAccountID: a.ID, ToAccountNumber: b.AccountNumber, Amount: amount("1")}, apperrors.ErrNotFound},
		"unknown recipient": {TransferInput{CallerID: "alice", FromAccountID: a.ID, ToAccountNumber: "KONI000000000000", Amount: amount("1")}, apperrors.ErrNotFound},
	}
	for name, tc := range cases {
		s.Run(name, func() {
			_, err := s.svc.Transfer(s.ctx, tc.in)
			s.ErrorIs(err, tc.want)
		})
	}
}

func (s *MovementSuite) TestDailyTransferLimit() {
	a := open(s.T(), s.store, "alice", "100000")
	b := open(s.T(), s.store, "bob", "0")
	in := TransferInput{CallerID: "alice", FromAccountID: a.ID, ToAccountNumber: b.AccountNumber, Amount: amount("20000")}

	for i := 0; i < 2; i++ {
		_, err := s.svc.Transfer(s.ctx, in)
		s.Require().NoError(err)
	}
	_, err := s.svc.Transfer(s.ctx, in)
	s.ErrorIs(err, apperrors.ErrLimitExceeded)
	s.Contains(err.Error(), "remaining 10000.00")

	in.Amount = amount("10000")
	_, err = s.svc.Transfer(s.ctx, in)
	s.NoError(err, "the remaining allowance is still usable")
}

func (s *MovementSuite) TestTransferRejectsCurrencyMismatch() {
	a := open(s.T(), s.store, "alice", "1000")
	now := time.Now().UTC()
	usd := ledger.Account{
		ID: uuid.NewString(), AccountNumber: ledger.NewAccountNumber(now), OwnerID: "bob",
		Type: ledger.TypeSavings, Currency: "USD", Status: ledger.StatusActive, CreatedAt: now, UpdatedAt: now,
	}
	s.Require().NoError(s.store.Accounts().Create(s.ctx, usd))

	_, err := s.svc.Transfer(s.ctx, TransferInput{CallerID: "alice", FromAccountID: a.ID, ToAccountNumber: usd.AccountNumber, Amount: amount("100")})
	s.ErrorIs(err, apperrors.ErrValidation)

	cur, avail := balances(s.T(), s.store, a.ID)
	s.Equal("1000.00", cur)
	s.Equal("1000.00", avail)
	cur, _ = balances(s.T(), s.store, usd.ID)
	s.Equal("0.00", cur)
}

func (s *MovementSuite) TestWithdrawalCap() {
	a := open(s.T(), s.store, "alice", "50000")

	_, err := s.svc.Withdraw(s.ctx, WithdrawInput{CallerID: "alice", AccountID: a.ID, Amount: amount("20000.01")})
	s.ErrorIs(err, apperrors.ErrLimitExceeded)

	res, err := s.svc.Withdraw(s.ctx, WithdrawInput{CallerID: "alice", AccountID: a.ID, Amount: amount("20000")})
	s.Require().NoError(err)
	s.Equal("30000.00", res.From.CurrentBalance.StringFixed(2))
	s.Equal("30000.00", res.From.AvailableBalance.StringFixed(2))
}

func (s *MovementSuite) TestDepositCreditsAndKeepsMetadata() {
	a := open(s.T(), s.store, "alice", "0")

	res, err := s.svc.Deposit(s.ctx, DepositInput{
		CallerID: "alice", AccountID: a.ID, Amount: amount("250.50"), Metadata: map[string]string{"channel": "branch"},
	})
	s.Require().NoError(err)
	s.Equal("250.50", res.To.CurrentBalance.StringFixed(2))
	s.Equal("250.50", res.To.AvailableBalance.StringFixed(2))

	txn, err := s.store.Transactions().Get(s.ctx, res.TransactionID)
	s.Require().NoError(err)
	meta, err := transactions.DecodeMetadata(txn.Metadata)
	s.Require().NoError(err)
	s.Equal("branch", meta.Values["channel"])
	s.Equal("Deposit", txn.Description)
}

func (s *MovementSuite) TestFrozenAccountCannotMoveMoney() {
	a := open(s.T(), s.store, "alice", "100")
	b := open(s.T(), s.store, "bob", "0")
	frozen := ledger.Account{
		ID: uuid.NewString(), AccountNumber: ledger.NewAccountNumber(time.Now()), OwnerID: "carol",
		Type: ledger.TypeCurrent, Currency: ledger.DefaultCurrency, Status: ledger.StatusFrozen,
	}
	s.Require().NoError(s.store.Accounts().Create(s.ctx, frozen))

	_, err := s.svc.Transfer(s.ctx, TransferInput{CallerID: "alice", FromAccountID: a.ID, ToAccountNumber: frozen.AccountNumber, Amount: amount("1")})
	s.ErrorIs(err, apperrors.ErrValidation)
	_, err = s.svc.Deposit(s.ctx, DepositInput{CallerID: "carol", AccountID: frozen.ID, Amount: amount("1")})
	s.ErrorIs(err, apperrors.ErrValidation)
	_, err = s.svc.Transfer(s.ctx, TransferInput{CallerID: "alice", FromAccountID: a.ID, ToAccountNumber: b.AccountNumber, Amount: amount("1")})
	s.NoError(err)
}

func (s *MovementSuite) TestCompletedTransactionCannotBeProcessedTwice() {
	a := open(s.T(), s.store, "alice", "100")

	res, err := s.svc.Withdraw(s.ctx, WithdrawInput{CallerID: "alice", AccountID: a.ID, Amount: amount("10")})
	s.Require().NoError(err)

	_, err = s.store.Transactions().Complete(s.ctx, res.TransactionID)
	s.ErrorIs(err, apperrors.ErrAlreadyProcessed)
	_, err = s.store.Transactions().Fail(s.ctx, res.TransactionID, "late failure")
	s.ErrorIs(err, apperrors.ErrAlreadyProcessed)

	cur, _ := balances(s.T(), s.store, a.ID)
	s.Equal("90.00", cur)
}

func (s *MovementSuite) TestConcurrentWithdrawalsNeverOverdraw() {
	a := open(s.T(), s.store, "alice", "1000")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.svc.Withdraw(s.ctx, WithdrawInput{CallerID: "alice", AccountID: a.ID, Amount: amount("700")})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if errors.Is(err, apperrors.ErrInsufficientFunds) {
				rejected++
			}
		}()
	}
	wg.Wait()

	s.Equal(1, succeeded)
	s.Equal(4, rejected)
	cur, avail := balances(s.T(), s.store, a.ID)
	s.Equal("300.00", cur)
	s.Equal("300.00", avail)
}

func (s *MovementSuite) TestConcurrentTransfersConserveMoney() {
	accounts := []ledger.Account{
		open(s.T(), s.store, "alice", "500"),
		open(s.T(), s.store, "bob", "500"),
		open(s.T(), s.store, "carol", "500"),
	}
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		from := accounts[i%3]
		to := accounts[(i+1)%3]
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, _ = s.svc.Transfer(s.ctx, TransferInput{
				CallerID: from.OwnerID, FromAccountID: from.ID, ToAccountNumber: to.AccountNumber,
				Amount: decimal.NewFromInt(int64(50 + n*10)),
			})
		}(i)
	}
	wg.Wait()

	total := decimal.Zero
	for _, a := range accounts {
		got, err := s.store.Accounts().Get(s.ctx, a.ID)
		s.Require().NoError(err)
		s.True(got.CurrentBalance.Equal(got.AvailableBalance), "no hold may outlive its movement")
		s.False(got.CurrentBalance.IsNegative())
		total = total.Add(got.CurrentBalance)
	}
	s.Equal("1500.00", total.StringFixed(2))
}

func TestApplyFailureReleasesHoldAndFailsTransaction(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory(store.MemoryOptions{TransactionID: func() string { return "TXN-FAULT" }})
	a := open(t, mem, "alice", "1000")
	b := open(t, mem, "bob", "0")
	faulty := &faultyStore{Store: mem, err: apperrors.Persistence("commit", errors.New("connection reset"))}
	notifier := &recordingNotifier{}
	svc := NewService(faulty, Options{Notifier: notifier, Logger: logging.Discard()})

	_, err := svc.Transfer(ctx, TransferInput{CallerID: "alice", FromAccountID: a.ID, ToAccountNumber: b.AccountNumber, Amount: amount("400")})
	require.ErrorIs(t, err, apperrors.ErrPersistence)

	cur, avail := balances(t, mem, a.ID)
	assert.Equal(t, "1000.00", cur)
	assert.Equal(t, "1000.00", avail)
	cur, _ = balances(t, mem, b.ID)
	assert.Equal(t, "0.00", cur)

	txn, err := mem.Transactions().Get(ctx, "TXN-FAULT")
	require.NoError(t, err)
	assert.Equal(t, transactions.StatusFailed, txn.Status)
	assert.Contains(t, txn.ErrorMessage, "connection reset")
	assert.Empty(t, notifier.kinds(), "nothing is announced for a failed movement")
}

func TestApplyPanicStillCompensates(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory(store.MemoryOptions{TransactionID: func() string { return "TXN-PANIC" }})
	a := open(t, mem, "alice", "1000")
	svc := NewService(&faultyStore{Store: mem, panics: true}, Options{Logger: logging.Discard()})

	assert.Panics(t, func() {
		_, _ = svc.Withdraw(ctx, WithdrawInput{CallerID: "alice", AccountID: a.ID, Amount: amount("250")})
	})

	cur, avail := balances(t, mem, a.ID)
	assert.Equal(t, "1000.00", cur)
	assert.Equal(t, "1000.00", avail)
	txn, err := mem.Transactions().Get(ctx, "TXN-PANIC")
	require.NoError(t, err)
	assert.Equal(t, transactions.StatusFailed, txn.Status)
}

func sequence(ids ...string) transactions.IDGenerator {
	var (
		mu sync.Mutex
		i  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		id := ids[len(ids)-1]
		if i < len(ids) {
			id = ids[i]
		}
		i++
		return id
	}
}

func TestRecordRetriesTransactionIDCollisions(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory(store.MemoryOptions{TransactionID: sequence("TXN-A", "TXN-A", "TXN-A", "TXN-B")})
	a := open(t, mem, "alice", "100")
	svc := NewService(mem, Options{Logger: logging.Discard()})

	first, err := svc.Deposit(ctx, DepositInput{CallerID: "alice", AccountID: a.ID, Amount: amount("1")})
	require.NoError(t, err)
	assert.Equal(t, "TXN-A", first.TransactionID)

	second, err := svc.Deposit(ctx, DepositInput{CallerID: "alice", AccountID: a.ID, Amount: amount("1")})
	require.NoError(t, err)
	assert.Equal(t, "TXN-B", second.TransactionID)
}

func TestRecordGivesUpAfterRepeatedCollisions(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory(store.MemoryOptions{TransactionID: func() string { return "TXN-SAME" }})
	a := open(t, mem, "alice", "100")
	svc := NewService(mem, Options{Logger: logging.Discard()})

	_, err := svc.Deposit(ctx, DepositInput{CallerID: "alice", AccountID: a.ID, Amount: amount("1")})
	require.NoError(t, err)

	_, err = svc.Withdraw(ctx, WithdrawInput{CallerID: "alice", AccountID: a.ID, Amount: amount("10")})
	require.ErrorIs(t, err, apperrors.ErrDuplicateTransactionID)

	cur, avail := balances(t, mem, a.ID)
	assert.Equal(t, "101.00", cur)
	assert.Equal(t, "101.00", avail, "the hold is released when recording fails")
}

func TestContentionSurfacesAsRetryable(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory(store.MemoryOptions{BusyTimeout: 20 * time.Millisecond})
	a := open(t, mem, "alice", "100")
	svc := NewService(mem, Options{Logger: logging.Discard()})

	var err error
	require.NoError(t, mem.Atomic(ctx, func(store.Tx) error {
		_, err = svc.Deposit(ctx, DepositInput{CallerID: "alice", AccountID: a.ID, Amount: amount("1")})
		return nil
	}))
	assert.True(t, apperrors.Retryable(err), fmt.Sprintf("got %v", err))
}
