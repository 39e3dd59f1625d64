package movement

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tsheringkof667-bot/Bank/internal/apperrors"
	"github.com/tsheringkof667-bot/Bank/internal/audit"
	"github.com/tsheringkof667-bot/Bank/internal/ledger"
	"github.com/tsheringkof667-bot/Bank/internal/loan"
	"github.com/tsheringkof667-bot/Bank/internal/money"
	"github.com/tsheringkof667-bot/Bank/internal/notification"
	"github.com/tsheringkof667-bot/Bank/internal/store"
	"github.com/tsheringkof667-bot/Bank/internal/transactions"
)

// DisburseInput identifies an approved loan to pay out.
type DisburseInput struct {
	ActorID string
	LoanID  string
}

// DisburseLoan credits the principal to the borrower's account, opens the loan
// account that receives repayments, materializes the schedule and activates the
// loan, all in the same unit of work.
func (s *Service) DisburseLoan(ctx context.Context, in DisburseInput) (res Result, err error) {
	op := s.begin(transactions.TypeLoanDisbursement)
	defer func() { s.observe(op, err) }()

	l, err := s.store.Loans().Get(ctx, in.LoanID)
	if err != nil {
		return Result{}, err
	}
	if l.Status != loan.StatusApproved {
		return Result{}, apperrors.Validation("loan %s is %s, not approved", l.LoanNumber, l.Status)
	}
	borrower, err := s.ownedActive(ctx, l.OwnerID, l.AccountID)
	if err != nil {
		return Result{}, err
	}

	var (
		after    ledger.Account
		active   loan.Loan
		schedule []loan.Installment
	)
	txn, err := s.execute(ctx, op, plan{
		kind:   transactions.TypeLoanDisbursement,
		amount: l.Principal,
		record: transactions.RecordInput{
			Type:        transactions.TypeLoanDisbursement,
			ToAccountID: &borrower.ID,
			Amount:      l.Principal,
			Description: "Loan disbursement for " + l.LoanNumber,
			ReferenceID: l.LoanNumber,
		},
		apply: func(ctx context.Context, tx store.Tx, _ transactions.Transaction) error {
			// The conditional transition claims the loan so a concurrent
			// disbursement of the same loan fails here.
			claimed, err := tx.Loans().Transition(ctx, l.ID, loan.StatusApproved, loan.StatusDisbursed, "")
			if err != nil {
				return err
			}
			now := s.now().UTC()
			repayment := ledger.Account{
				ID:               uuid.NewString(),
				AccountNumber:    ledger.NewAccountNumber(now),
				OwnerID:          claimed.OwnerID,
				Type:             ledger.TypeLoan,
				Currency:         borrower.Currency,
				CurrentBalance:   decimal.Zero,
				AvailableBalance: decimal.Zero,
				Status:           ledger.StatusActive,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			if err := tx.Accounts().Create(ctx, repayment); err != nil {
				return err
			}
			if after, err = tx.Accounts().Credit(ctx, borrower.ID, claimed.Principal); err != nil {
				return err
			}

			schedule = loan.GenerateSchedule(claimed.Principal, claimed.InterestRate, claimed.TenureMonths, claimed.EMIAmount, now)
			if err := tx.Loans().SaveInstallments(ctx, claimed.ID, schedule); err != nil {
				return err
			}

			active = claimed
			active.Status = loan.StatusActive
			active.RepaymentAccountID = repayment.ID
			active.DisbursedAt = &now
			active.RemainingAmount = loan.TotalPayable(schedule)
			active.RemainingTenure = len(schedule)
			active.Remarks = "Loan disbursed"
			active.UpdatedAt = now
			return tx.Loans().Update(ctx, active)
		},
	})
	if err != nil {
		return Result{}, err
	}

	amount := money.Format(l.Principal)
	s.emit(ctx, []notification.Message{{
		Kind: notification.KindLoanDisbursed, Destination: l.OwnerID, Title: "Loan Disbursed",
		Body: fmt.Sprintf("Your loan %s of %s has been disbursed to account %s. EMI: %s for %d months",
			l.LoanNumber, amount, borrower.AccountNumber, money.Format(l.EMIAmount), l.TenureMonths),
		Data: map[string]string{"loan_number": l.LoanNumber, "transaction_id": txn.TransactionID},
	}}, audit.Event{
		ActorID: in.ActorID, Action: audit.ActionLoanDisbursed, Entity: "loans", EntityID: l.ID,
		Details: map[string]string{"amount": amount, "transaction_id": txn.TransactionID},
	})
	return Result{
		TransactionID: txn.TransactionID,
		Type:          txn.Type,
		Status:        txn.Status,
		Amount:        txn.Amount,
		To:            &after,
		Loan:          &active,
		CompletedAt:   txn.UpdatedAt,
	}, nil
}

// RepayInput pays towards a loan from one of the borrower's accounts.
type RepayInput struct {
	CallerID      string
	LoanID        string
	FromAccountID string
	Amount        decimal.Decimal
}

// RepayLoan moves money from the borrower's account into the loan's repayment
// account and allocates it against the schedule.
func (s *Service) RepayLoan(ctx context.Context, in RepayInput) (res Result, err error) {
	op := s.begin(transactions.TypeLoanRepayment)
	defer func() { s.observe(op, err) }()

	if err := money.ValidatePositive(in.Amount); err != nil {
		return Result{}, err
	}
	l, err := s.store.Loans().Get(ctx, in.LoanID)
	if err != nil {
		return Result{}, err
	}
	if in.CallerID != "" && l.OwnerID != in.CallerID {
		return Result{}, apperrors.NotFound("loan", in.LoanID)
	}
	if l.Status != loan.StatusActive {
		return Result{}, apperrors.Validation("loan %s is %s, not active", l.LoanNumber, l.Status)
	}
	if in.Amount.GreaterThan(l.RemainingAmount) {
		return Result{}, apperrors.Validation("amount %s exceeds remaining loan amount %s",
			money.Format(in.Amount), money.Format(l.RemainingAmount))
	}
	if l.RepaymentAccountID == "" {
		return Result{}, apperrors.Validation("loan %s has no repayment account", l.LoanNumber)
	}
	if in.FromAccountID == l.RepaymentAccountID {
		return Result{}, apperrors.Validation("loan %s cannot be repaid from its own loan account", l.LoanNumber)
	}
	source, err := s.ownedActive(ctx, l.OwnerID, in.FromAccountID)
	if err != nil {
		return Result{}, err
	}

	var (
		after   ledger.Account
		updated loan.Loan
	)
	txn, err := s.execute(ctx, op, plan{
		kind:   transactions.TypeLoanRepayment,
		hold:   source.ID,
		amount: in.Amount,
		record: transactions.RecordInput{
			Type:          transactions.TypeLoanRepayment,
			FromAccountID: &source.ID,
			ToAccountID:   &l.RepaymentAccountID,
			Amount:        in.Amount,
			Description:   "Loan repayment for " + l.LoanNumber,
			ReferenceID:   l.LoanNumber,
		},
		apply: func(ctx context.Context, tx store.Tx, _ transactions.Transaction) error {
			// Locked so the remaining amount and schedule below stay current
			// until commit.
			current, err := tx.Loans().GetForUpdate(ctx, l.ID)
			if err != nil {
				return err
			}
			schedule, err := tx.Loans().Installments(ctx, l.ID)
			if err != nil {
				return err
			}
			next, installments, err := loan.ApplyRepayment(current, schedule, in.Amount, s.now())
			if err != nil {
				return err
			}
			if after, err = tx.Accounts().Debit(ctx, source.ID, in.Amount); err != nil {
				return err
			}
			if _, err = tx.Accounts().Credit(ctx, current.RepaymentAccountID, in.Amount); err != nil {
				return err
			}
			if err := tx.Loans().SaveInstallments(ctx, l.ID, installments); err != nil {
				return err
			}
			updated = next
			return tx.Loans().Update(ctx, next)
		},
	})
	if err != nil {
		return Result{}, err
	}

	amount := money.Format(in.Amount)
	messages := []notification.Message{{
		Kind: notification.KindLoanRepaid, Destination: l.OwnerID, Title: "Loan Repayment Successful",
		Body: fmt.Sprintf("Your loan repayment of %s for %s was successful. Remaining amount: %s",
			amount, l.LoanNumber, money.Format(updated.RemainingAmount)),
		Data: map[string]string{"loan_number": l.LoanNumber, "transaction_id": txn.TransactionID},
	}}
	if updated.Status == loan.StatusClosed {
		messages = append(messages, notification.Message{
			Kind: notification.KindLoanClosed, Destination: l.OwnerID, Title: "Loan Closed",
			Body: fmt.Sprintf("Your loan %s has been fully repaid.", l.LoanNumber),
			Data: map[string]string{"loan_number": l.LoanNumber},
		})
	}
	s.emit(ctx, messages, audit.Event{
		ActorID: in.CallerID, Action: audit.ActionLoanRepayment, Entity: "loans", EntityID: l.ID,
		Details: map[string]string{"amount": amount, "remaining_amount": money.Format(updated.RemainingAmount)},
	})
	return Result{
		TransactionID: txn.TransactionID,
		Type:          txn.Type,
		Status:        txn.Status,
		Amount:        txn.Amount,
		From:          &after,
		Loan:          &updated,
		CompletedAt:   txn.UpdatedAt,
	}, nil
}
