package movement

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tsheringkof667-bot/Bank/internal/apperrors"
	"github.com/tsheringkof667-bot/Bank/internal/audit"
	"github.com/tsheringkof667-bot/Bank/internal/ledger"
	"github.com/tsheringkof667-bot/Bank/internal/money"
	"github.com/tsheringkof667-bot/Bank/internal/notification"
	"github.com/tsheringkof667-bot/Bank/internal/store"
	"github.com/tsheringkof667-bot/Bank/internal/transactions"
)

// TransferInput moves money from one of the caller's accounts to any account
// identified by number.
type TransferInput struct {
	CallerID        string
	FromAccountID   string
	ToAccountNumber string
	Amount          decimal.Decimal
	Description     string
	ReferenceID     string
	Metadata        map[string]string
}

// Transfer moves funds between two accounts.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (res Result, err error) {
	op := s.begin(transactions.TypeTransfer)
	defer func() { s.observe(op, err) }()

	if err := money.ValidatePositive(in.Amount); err != nil {
		return Result{}, err
	}
	from, err := s.ownedActive(ctx, in.CallerID, in.FromAccountID)
	if err != nil {
		return Result{}, err
	}
	to, err := s.store.Accounts().GetByNumber(ctx, in.ToAccountNumber)
	if err != nil {
		return Result{}, err
	}
	if to.ID == from.ID {
		return Result{}, apperrors.Validation("cannot transfer to the same account")
	}
	if err := spendable(to); err != nil {
		return Result{}, err
	}
	if to.Currency != from.Currency {
		return Result{}, apperrors.Validation("cannot transfer %s to a %s account", from.Currency, to.Currency)
	}

	used, err := s.store.Transactions().DailyDebitTotal(ctx, from.ID, transactions.TypeTransfer, s.now())
	if err != nil {
		return Result{}, err
	}
	if used.Add(in.Amount).GreaterThan(s.limits.DailyTransfer) {
		return Result{}, fmt.Errorf("%w: daily transfer limit exceeded, remaining %s",
			apperrors.ErrLimitExceeded, money.Format(decimal.Max(s.limits.DailyTransfer.Sub(used), decimal.Zero)))
	}

	meta, err := transactions.EncodeMetadata(in.Metadata)
	if err != nil {
		return Result{}, apperrors.Validation("%v", err)
	}
	description := in.Description
	if description == "" {
		description = "Transfer to " + to.AccountNumber
	}

	var fromAfter, toAfter ledger.Account
	txn, err := s.execute(ctx, op, plan{
		kind:   transactions.TypeTransfer,
		hold:   from.ID,
		amount: in.Amount,
		record: transactions.RecordInput{
			Type:          transactions.TypeTransfer,
			FromAccountID: &from.ID,
			ToAccountID:   &to.ID,
			Amount:        in.Amount,
			Description:   description,
			ReferenceID:   in.ReferenceID,
			Metadata:      meta,
		},
		apply: func(ctx context.Context, tx store.Tx, _ transactions.Transaction) error {
			var err error
			if fromAfter, err = tx.Accounts().Debit(ctx, from.ID, in.Amount); err != nil {
				return err
			}
			toAfter, err = tx.Accounts().Credit(ctx, to.ID, in.Amount)
			return err
		},
	})
	if err != nil {
		return Result{}, err
	}

	amount := money.Format(in.Amount)
	s.emit(ctx, []notification.Message{
		{
			Kind: notification.KindTransferSent, Destination: from.OwnerID, Title: "Money Sent",
			Body: fmt.Sprintf("%s sent to account %s. Available balance: %s", amount, to.AccountNumber, money.Format(fromAfter.AvailableBalance)),
			Data: map[string]string{"transaction_id": txn.TransactionID},
		},
		{
			Kind: notification.KindTransferReceived, Destination: to.OwnerID, Title: "Money Received",
			Body: fmt.Sprintf("%s received from account %s", amount, from.AccountNumber),
			Data: map[string]string{"transaction_id": txn.TransactionID},
		},
	}, audit.Event{
		ActorID: in.CallerID, Action: audit.ActionTransferCompleted, Entity: "transactions", EntityID: txn.TransactionID,
		Details: map[string]string{"amount": amount, "from": from.AccountNumber, "to": to.AccountNumber},
	})
	return Result{
		TransactionID: txn.TransactionID,
		Type:          txn.Type,
		Status:        txn.Status,
		Amount:        txn.Amount,
		From:          &fromAfter,
		To:            &toAfter,
		CompletedAt:   txn.UpdatedAt,
	}, nil
}

// DepositInput credits one of the caller's accounts.
type DepositInput struct {
	CallerID    string
	AccountID   string
	Amount      decimal.Decimal
	Description string
	ReferenceID string
	Metadata    map[string]string
}

// Deposit credits an account. Nothing is held since a credit cannot overdraw.
func (s *Service) Deposit(ctx context.Context, in DepositInput) (res Result, err error) {
	op := s.begin(transactions.TypeDeposit)
	defer func() { s.observe(op, err) }()

	if err := money.ValidatePositive(in.Amount); err != nil {
		return Result{}, err
	}
	account, err := s.ownedActive(ctx, in.CallerID, in.AccountID)
	if err != nil {
		return Result{}, err
	}
	meta, err := transactions.EncodeMetadata(in.Metadata)
	if err != nil {
		return Result{}, apperrors.Validation("%v", err)
	}
	description := in.Description
	if description == "" {
		description = "Deposit"
	}

	var after ledger.Account
	txn, err := s.execute(ctx, op, plan{
		kind:   transactions.TypeDeposit,
		amount: in.Amount,
		record: transactions.RecordInput{
			Type:        transactions.TypeDeposit,
			ToAccountID: &account.ID,
			Amount:      in.Amount,
			Description: description,
			ReferenceID: in.ReferenceID,
			Metadata:    meta,
		},
		apply: func(ctx context.Context, tx store.Tx, _ transactions.Transaction) error {
			var err error
			after, err = tx.Accounts().Credit(ctx, account.ID, in.Amount)
			return err
		},
	})
	if err != nil {
		return Result{}, err
	}

	amount := money.Format(in.Amount)
	s.emit(ctx, []notification.Message{{
		Kind: notification.KindDeposit, Destination: account.OwnerID, Title: "Deposit Successful",
		Body: fmt.Sprintf("%s deposited to account %s. New balance: %s", amount, account.AccountNumber, money.Format(after.CurrentBalance)),
		Data: map[string]string{"transaction_id": txn.TransactionID},
	}}, audit.Event{
		ActorID: in.CallerID, Action: audit.ActionDepositCompleted, Entity: "transactions", EntityID: txn.TransactionID,
		Details: map[string]string{"amount": amount, "account": account.AccountNumber},
	})
	return Result{
		TransactionID: txn.TransactionID,
		Type:          txn.Type,
		Status:        txn.Status,
		Amount:        txn.Amount,
		To:            &after,
		CompletedAt:   txn.UpdatedAt,
	}, nil
}

// WithdrawInput debits one of the caller's accounts.
type WithdrawInput struct {
	CallerID    string
	AccountID   string
	Amount      decimal.Decimal
	Description string
	ReferenceID string
	Metadata    map[string]string
}

// Withdraw debits an account, capped per transaction.
func (s *Service) Withdraw(ctx context.Context, in WithdrawInput) (res Result, err error) {
	op := s.begin(transactions.TypeWithdrawal)
	defer func() { s.observe(op, err) }()

	if err := money.ValidatePositive(in.Amount); err != nil {
		return Result{}, err
	}
	if in.Amount.GreaterThan(s.limits.Withdrawal) {
		return Result{}, fmt.Errorf("%w: withdrawal limit is %s per transaction",
			apperrors.ErrLimitExceeded, money.Format(s.limits.Withdrawal))
	}
	account, err := s.ownedActive(ctx, in.CallerID, in.AccountID)
	if err != nil {
		return Result{}, err
	}
	meta, err := transactions.EncodeMetadata(in.Metadata)
	if err != nil {
		return Result{}, apperrors.Validation("%v", err)
	}
	description := in.Description
	if description == "" {
		description = "Withdrawal"
	}

	var after ledger.Account
	txn, err := s.execute(ctx, op, plan{
		kind:   transactions.TypeWithdrawal,
		hold:   account.ID,
		amount: in.Amount,
		record: transactions.RecordInput{
			Type:          transactions.TypeWithdrawal,
			FromAccountID: &account.ID,
			Amount:        in.Amount,
			Description:   description,
			ReferenceID:   in.ReferenceID,
			Metadata:      meta,
		},
		apply: func(ctx context.Context, tx store.Tx, _ transactions.Transaction) error {
			var err error
			after, err = tx.Accounts().Debit(ctx, account.ID, in.Amount)
			return err
		},
	})
	if err != nil {
		return Result{}, err
	}

	amount := money.Format(in.Amount)
	s.emit(ctx, []notification.Message{{
		Kind: notification.KindWithdrawal, Destination: account.OwnerID, Title: "Withdrawal Successful",
		Body: fmt.Sprintf("%s withdrawn from account %s. Remaining balance: %s", amount, account.AccountNumber, money.Format(after.CurrentBalance)),
		Data: map[string]string{"transaction_id": txn.TransactionID},
	}}, audit.Event{
		ActorID: in.CallerID, Action: audit.ActionWithdrawalCompleted, Entity: "transactions", EntityID: txn.TransactionID,
		Details: map[string]string{"amount": amount, "account": account.AccountNumber},
	})
	return Result{
		TransactionID: txn.TransactionID,
		Type:          txn.Type,
		Status:        txn.Status,
		Amount:        txn.Amount,
		From:          &after,
		CompletedAt:   txn.UpdatedAt,
	}, nil
}
