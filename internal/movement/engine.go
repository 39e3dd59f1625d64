package movement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tsheringkof667-bot/Bank/internal/apperrors"
	"github.com/tsheringkof667-bot/Bank/internal/audit"
	"github.com/tsheringkof667-bot/Bank/internal/notification"
	"github.com/tsheringkof667-bot/Bank/internal/store"
	"github.com/tsheringkof667-bot/Bank/internal/transactions"
)

const compensationTimeout = 10 * time.Second

// plan is one movement: which account to hold (empty for credit-only
// movements), what to record, and the writes of the apply phase.
type plan struct {
	kind   transactions.Type
	hold   string
	amount decimal.Decimal
	record transactions.RecordInput
	apply  func(ctx context.Context, tx store.Tx, txn transactions.Transaction) error
}

type operation struct {
	kind   transactions.Type
	state  State
	start  time.Time
	logger *slog.Logger
}

func (s *Service) begin(kind transactions.Type) *operation {
	op := &operation{kind: kind, start: s.now(), logger: s.logger.With(slog.String("movement", string(kind)))}
	op.enter(StateValidating)
	return op
}

func (o *operation) enter(st State) {
	o.state = st
	o.logger.Debug("movement state", slog.String("state", string(st)))
}

// execute runs hold, record and apply for a validated plan.
func (s *Service) execute(ctx context.Context, op *operation, p plan) (transactions.Transaction, error) {
	if p.hold != "" {
		if _, err := s.store.Accounts().Hold(ctx, p.hold, p.amount); err != nil {
			op.enter(StateFailed)
			return transactions.Transaction{}, err
		}
		op.enter(StateHeld)
	}

	txn, err := s.record(ctx, p.record)
	if err != nil {
		if p.hold != "" {
			op.enter(StateCompensating)
			ok := s.release(ctx, op, p)
			s.metrics.RecordCompensation(string(p.kind), ok)
		}
		op.enter(StateFailed)
		return transactions.Transaction{}, err
	}

	return s.apply(ctx, op, p, txn)
}

// apply commits the plan's writes together with completing the transaction. Any
// exit other than a commit, including a panic, releases the hold and fails the
// transaction before returning.
func (s *Service) apply(ctx context.Context, op *operation, p plan, txn transactions.Transaction) (done transactions.Transaction, err error) {
	op.enter(StateApplying)
	committed := false
	defer func() {
		if committed {
			return
		}
		if r := recover(); r != nil {
			s.compensate(ctx, op, p, txn, errors.New("apply panicked"))
			panic(r)
		}
		s.compensate(ctx, op, p, txn, err)
	}()

	err = s.store.Atomic(ctx, func(tx store.Tx) error {
		if err := p.apply(ctx, tx, txn); err != nil {
			return err
		}
		completed, err := tx.Transactions().Complete(ctx, txn.TransactionID)
		if err != nil {
			return err
		}
		done = completed
		return nil
	})
	if err != nil {
		return transactions.Transaction{}, err
	}
	committed = true
	op.enter(StateCompleted)
	return done, nil
}

// compensate restores availability and marks the transaction failed. It runs on
// a detached context so a cancelled request still cleans up.
func (s *Service) compensate(ctx context.Context, op *operation, p plan, txn transactions.Transaction, cause error) {
	op.enter(StateCompensating)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	ok := true
	if p.hold != "" {
		ok = s.release(ctx, op, p)
	}
	reason := "apply failed"
	if cause != nil {
		reason = cause.Error()
	}
	if _, err := s.store.Transactions().Fail(ctx, txn.TransactionID, reason); err != nil {
		ok = false
		op.logger.Error("mark transaction failed", slog.String("transaction_id", txn.TransactionID), slog.Any("error", err))
	}
	s.metrics.RecordCompensation(string(p.kind), ok)
	op.logger.Warn("movement compensated",
		slog.String("transaction_id", txn.TransactionID),
		slog.String("reason", reason),
		slog.Bool("clean", ok),
	)
	op.enter(StateFailed)
}

func (s *Service) release(ctx context.Context, op *operation, p plan) bool {
	if _, err := s.store.Accounts().Release(ctx, p.hold, p.amount); err != nil {
		op.logger.Error("release hold",
			slog.String("account_id", p.hold),
			slog.String("amount", p.amount.StringFixed(2)),
			slog.Any("error", err),
		)
		return false
	}
	return true
}

// record inserts the pending transaction, retrying id collisions with fresh ids.
func (s *Service) record(ctx context.Context, in transactions.RecordInput) (transactions.Transaction, error) {
	var err error
	for attempt := 1; attempt <= maxRecordAttempts; attempt++ {
		var t transactions.Transaction
		t, err = s.store.Transactions().Record(ctx, in)
		if !errors.Is(err, apperrors.ErrDuplicateTransactionID) {
			return t, err
		}
		s.logger.Warn("transaction id collision", slog.Int("attempt", attempt))
	}
	return transactions.Transaction{}, err
}

// observe records the outcome of a movement.
func (s *Service) observe(op *operation, err error) {
	outcome := string(StateCompleted)
	if err != nil {
		outcome = apperrors.Kind(err)
	}
	elapsed := s.now().Sub(op.start)
	s.metrics.RecordMovement(string(op.kind), outcome, elapsed)
	if err != nil {
		op.logger.Info("movement rejected", slog.String("outcome", outcome), slog.Any("error", err))
		return
	}
	op.logger.Info("movement completed", slog.Duration("elapsed", elapsed))
}

// emit delivers post-commit side effects. Failures are logged and dropped.
func (s *Service) emit(ctx context.Context, messages []notification.Message, event audit.Event) {
	if s.notifier != nil {
		for _, msg := range messages {
			if err := s.notifier.Send(ctx, msg); err != nil {
				s.logger.Warn("notification failed", slog.String("kind", msg.Kind), slog.Any("error", err))
			}
		}
	}
	if s.audit != nil {
		if event.At.IsZero() {
			event.At = s.now().UTC()
		}
		if err := s.audit.Record(ctx, event); err != nil {
			s.logger.Warn("audit failed", slog.String("action", event.Action), slog.Any("error", err))
		}
	}
}
