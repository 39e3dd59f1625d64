package movement

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsheringkof667-bot/Bank/internal/apperrors"
	"github.com/tsheringkof667-bot/Bank/internal/ledger"
	"github.com/tsheringkof667-bot/Bank/internal/loan"
	"github.com/tsheringkof667-bot/Bank/internal/logging"
	"github.com/tsheringkof667-bot/Bank/internal/notification"
	"github.com/tsheringkof667-bot/Bank/internal/store"
)

type loanFixture struct {
	ctx      context.Context
	store    *store.Memory
	loans    *loan.Service
	svc      *Service
	notifier *recordingNotifier
	account  ledger.Account
}

func newLoanFixture(t *testing.T) *loanFixture {
	t.Helper()
	f := &loanFixture{ctx: context.Background(), notifier: &recordingNotifier{}}
	f.store = store.NewMemory(store.MemoryOptions{})
	f.loans = loan.NewService(f.store, loan.DefaultTerms(), nil, nil, logging.Discard())
	f.svc = NewService(f.store, Options{Notifier: f.notifier, Logger: logging.Discard()})
	f.account = open(t, f.store, "u1", "100")
	return f
}

func (f *loanFixture) approved(t *testing.T, principal string, tenure int) loan.Loan {
	t.Helper()
	l, err := f.loans.Apply(f.ctx, loan.ApplyInput{
		OwnerID: "u1", AccountID: f.account.ID, LoanType: "personal", Amount: amount(principal), TenureMonths: tenure,
	})
	require.NoError(t, err)
	l, err = f.loans.Approve(f.ctx, l.ID, "ok")
	require.NoError(t, err)
	return l
}

func TestDisburseAndRepayUntilClosed(t *testing.T) {
	f := newLoanFixture(t)
	l := f.approved(t, "1200", 3)
	assert.Equal(t, "405.68", l.EMIAmount.StringFixed(2))

	res, err := f.svc.DisburseLoan(f.ctx, DisburseInput{ActorID: "officer", LoanID: l.ID})
	require.NoError(t, err)
	assert.Equal(t, loan.StatusActive, res.Loan.Status)
	assert.Equal(t, "1217.04", res.Loan.RemainingAmount.StringFixed(2))
	assert.Equal(t, "1300.00", res.To.CurrentBalance.StringFixed(2))
	require.NotEmpty(t, res.Loan.RepaymentAccountID)
	require.NotNil(t, res.Loan.DisbursedAt)

	repayment, err := f.store.Accounts().Get(f.ctx, res.Loan.RepaymentAccountID)
	require.NoError(t, err)
	assert.Equal(t, ledger.TypeLoan, repayment.Type)
	assert.Equal(t, "u1", repayment.OwnerID)

	schedule, err := f.store.Loans().Installments(f.ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, schedule, 3)
	assert.Equal(t, "8.50", schedule[0].Interest.StringFixed(2))

	first, err := f.svc.RepayLoan(f.ctx, RepayInput{CallerID: "u1", LoanID: l.ID, FromAccountID: f.account.ID, Amount: amount("405.68")})
	require.NoError(t, err)
	assert.Equal(t, loan.StatusActive, first.Loan.Status)
	assert.Equal(t, "811.36", first.Loan.RemainingAmount.StringFixed(2))
	assert.Equal(t, 2, first.Loan.RemainingTenure)
	assert.Equal(t, "894.32", first.From.CurrentBalance.StringFixed(2))

	schedule, err = f.store.Loans().Installments(f.ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, loan.InstallmentPaid, schedule[0].Status)
	assert.Equal(t, loan.InstallmentPending, schedule[1].Status)

	_, err = f.svc.RepayLoan(f.ctx, RepayInput{CallerID: "u1", LoanID: l.ID, FromAccountID: f.account.ID, Amount: amount("811.37")})
	require.ErrorIs(t, err, apperrors.ErrValidation, "cannot pay more than is owed")

	last, err := f.svc.RepayLoan(f.ctx, RepayInput{CallerID: "u1", LoanID: l.ID, FromAccountID: f.account.ID, Amount: amount("811.36")})
	require.NoError(t, err)
	assert.Equal(t, loan.StatusClosed, last.Loan.Status)
	assert.True(t, last.Loan.RemainingAmount.IsZero())
	assert.Equal(t, "82.96", last.From.CurrentBalance.StringFixed(2))

	repayment, err = f.store.Accounts().Get(f.ctx, res.Loan.RepaymentAccountID)
	require.NoError(t, err)
	assert.Equal(t, "1217.04", repayment.CurrentBalance.StringFixed(2))

	assert.Equal(t, []string{
		notification.KindLoanDisbursed,
		notification.KindLoanRepaid,
		notification.KindLoanRepaid,
		notification.KindLoanClosed,
	}, f.notifier.kinds())

	_, err = f.svc.RepayLoan(f.ctx, RepayInput{CallerID: "u1", LoanID: l.ID, FromAccountID: f.account.ID, Amount: amount("1")})
	assert.ErrorIs(t, err, apperrors.ErrValidation, "a closed loan takes no payments")
}

func TestDisburseRequiresApproval(t *testing.T) {
	f := newLoanFixture(t)
	l, err := f.loans.Apply(f.ctx, loan.ApplyInput{
		OwnerID: "u1", AccountID: f.account.ID, LoanType: "personal", Amount: amount("5000"), TenureMonths: 1,
	})
	require.NoError(t, err)

	_, err = f.svc.DisburseLoan(f.ctx, DisburseInput{LoanID: l.ID})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	l = f.approved(t, "5000", 1)
	_, err = f.svc.DisburseLoan(f.ctx, DisburseInput{LoanID: l.ID})
	require.NoError(t, err)
	_, err = f.svc.DisburseLoan(f.ctx, DisburseInput{LoanID: l.ID})
	assert.ErrorIs(t, err, apperrors.ErrValidation, "a loan pays out once")

	cur, _ := balances(t, f.store, f.account.ID)
	assert.Equal(t, "5100.00", cur)
}

func TestRepayChecksOwnershipAndFunds(t *testing.T) {
	f := newLoanFixture(t)
	l := f.approved(t, "1200", 3)
	_, err := f.svc.DisburseLoan(f.ctx, DisburseInput{LoanID: l.ID})
	require.NoError(t, err)

	_, err = f.svc.RepayLoan(f.ctx, RepayInput{CallerID: "intruder", LoanID: l.ID, FromAccountID: f.account.ID, Amount: amount("10")})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	empty := open(t, f.store, "u1", "0")
	_, err = f.svc.RepayLoan(f.ctx, RepayInput{CallerID: "u1", LoanID: l.ID, FromAccountID: empty.ID, Amount: amount("10")})
	assert.ErrorIs(t, err, apperrors.ErrInsufficientFunds)

	got, err := f.store.Loans().Get(f.ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "1217.04", got.RemainingAmount.StringFixed(2))
}

func TestFailedRepaymentLeavesLoanUntouched(t *testing.T) {
	f := newLoanFixture(t)
	l := f.approved(t, "1200", 3)
	_, err := f.svc.DisburseLoan(f.ctx, DisburseInput{LoanID: l.ID})
	require.NoError(t, err)

	faulty := NewService(&faultyStore{Store: f.store, err: apperrors.Contention("commit", context.DeadlineExceeded)}, Options{Logger: logging.Discard()})
	_, err = faulty.RepayLoan(f.ctx, RepayInput{CallerID: "u1", LoanID: l.ID, FromAccountID: f.account.ID, Amount: amount("405.68")})
	require.ErrorIs(t, err, apperrors.ErrContention)

	got, err := f.store.Loans().Get(f.ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "1217.04", got.RemainingAmount.StringFixed(2))
	schedule, err := f.store.Loans().Installments(f.ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, schedule[0].PaidAmount.IsZero())
	cur, avail := balances(t, f.store, f.account.ID)
	assert.Equal(t, "1300.00", cur)
	assert.Equal(t, "1300.00", avail)
}

func TestLoanAccountCannotFundMovements(t *testing.T) {
	f := newLoanFixture(t)
	l := f.approved(t, "1200", 3)
	res, err := f.svc.DisburseLoan(f.ctx, DisburseInput{LoanID: l.ID})
	require.NoError(t, err)
	_, err = f.svc.RepayLoan(f.ctx, RepayInput{CallerID: "u1", LoanID: l.ID, FromAccountID: f.account.ID, Amount: amount("405.68")})
	require.NoError(t, err)

	loanAccount, err := f.store.Accounts().Get(f.ctx, res.Loan.RepaymentAccountID)
	require.NoError(t, err)

	_, err = f.svc.Transfer(f.ctx, TransferInput{CallerID: "u1", FromAccountID: loanAccount.ID, ToAccountNumber: f.account.AccountNumber, Amount: amount("405.68")})
	assert.ErrorIs(t, err, apperrors.ErrValidation, "transfer out of a loan account")
	_, err = f.svc.Withdraw(f.ctx, WithdrawInput{CallerID: "u1", AccountID: loanAccount.ID, Amount: amount("100")})
	assert.ErrorIs(t, err, apperrors.ErrValidation, "withdraw from a loan account")
	_, err = f.svc.Transfer(f.ctx, TransferInput{CallerID: "u1", FromAccountID: f.account.ID, ToAccountNumber: loanAccount.AccountNumber, Amount: amount("100")})
	assert.ErrorIs(t, err, apperrors.ErrValidation, "transfer into a loan account")

	for i := 0; i < 2; i++ {
		_, err = f.svc.RepayLoan(f.ctx, RepayInput{CallerID: "u1", LoanID: l.ID, FromAccountID: loanAccount.ID, Amount: amount("405.68")})
		assert.ErrorIs(t, err, apperrors.ErrValidation, "repay from the loan's own account")
	}

	got, err := f.store.Loans().Get(f.ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, loan.StatusActive, got.Status)
	assert.Equal(t, "811.36", got.RemainingAmount.StringFixed(2))
	cur, _ := balances(t, f.store, loanAccount.ID)
	assert.Equal(t, "405.68", cur)
	cur, avail := balances(t, f.store, f.account.ID)
	assert.Equal(t, "894.32", cur)
	assert.Equal(t, "894.32", avail)
}

// lockRecorder notes which loans a unit of work read for update.
type lockRecorder struct {
	store.Store
	mu     sync.Mutex
	locked []string
}

func (r *lockRecorder) Atomic(ctx context.Context, fn func(tx store.Tx) error) error {
	return r.Store.Atomic(ctx, func(tx store.Tx) error { return fn(recordedTx{Tx: tx, r: r}) })
}

type recordedTx struct {
	store.Tx
	r *lockRecorder
}

func (t recordedTx) Loans() loan.Repository { return recordedLoans{Repository: t.Tx.Loans(), r: t.r} }

type recordedLoans struct {
	loan.Repository
	r *lockRecorder
}

func (l recordedLoans) GetForUpdate(ctx context.Context, id string) (loan.Loan, error) {
	l.r.mu.Lock()
	l.r.locked = append(l.r.locked, id)
	l.r.mu.Unlock()
	return l.Repository.GetForUpdate(ctx, id)
}

func TestRepaymentLocksLoanBeforeApplying(t *testing.T) {
	f := newLoanFixture(t)
	l := f.approved(t, "1200", 3)
	_, err := f.svc.DisburseLoan(f.ctx, DisburseInput{LoanID: l.ID})
	require.NoError(t, err)

	rec := &lockRecorder{Store: f.store}
	svc := NewService(rec, Options{Logger: logging.Discard()})
	_, err = svc.RepayLoan(f.ctx, RepayInput{CallerID: "u1", LoanID: l.ID, FromAccountID: f.account.ID, Amount: amount("405.68")})
	require.NoError(t, err)
	assert.Equal(t, []string{l.ID}, rec.locked)
}

func TestConcurrentFullRepaymentsSettleOnce(t *testing.T) {
	f := newLoanFixture(t)
	l := f.approved(t, "1200", 3)
	res, err := f.svc.DisburseLoan(f.ctx, DisburseInput{LoanID: l.ID})
	require.NoError(t, err)

	sources := []ledger.Account{open(t, f.store, "u1", "2000"), open(t, f.store, "u1", "2000")}
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for _, src := range sources {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.svc.RepayLoan(f.ctx, RepayInput{CallerID: "u1", LoanID: l.ID, FromAccountID: id, Amount: amount("1217.04")})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, apperrors.ErrValidation)
		}(src.ID)
	}
	wg.Wait()
	assert.Equal(t, 1, successes)

	got, err := f.store.Loans().Get(f.ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, loan.StatusClosed, got.Status)
	cur, _ := balances(t, f.store, res.Loan.RepaymentAccountID)
	assert.Equal(t, "1217.04", cur)

	total := decimal.Zero
	for _, src := range sources {
		a, err := f.store.Accounts().Get(f.ctx, src.ID)
		require.NoError(t, err)
		assert.True(t, a.AvailableBalance.Equal(a.CurrentBalance), "no hold outlives its movement")
		total = total.Add(a.CurrentBalance)
	}
	assert.Equal(t, "2782.96", total.StringFixed(2))
}
