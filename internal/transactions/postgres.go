package transactions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/tsheringkof667-bot/Bank/internal/apperrors"
	"github.com/tsheringkof667-bot/Bank/internal/infra"
)

const transactionColumns = `id, transaction_id, from_account_id, to_account_id, amount,
        transaction_type, status, description, COALESCE(reference_id, ''), metadata,
        COALESCE(error_message, ''), created_at, updated_at`

const uniqueTransactionID = "transactions_transaction_id_key"

// PostgresLog stores transactions in PostgreSQL.
type PostgresLog struct {
	q     infra.Querier
	newID IDGenerator
}

// NewPostgresLog builds a Log over a pool or an open transaction.
func NewPostgresLog(q infra.Querier, newID IDGenerator) *PostgresLog {
	if newID == nil {
		newID = NewTransactionID
	}
	return &PostgresLog{q: q, newID: newID}
}

func (l *PostgresLog) Record(ctx context.Context, in RecordInput) (Transaction, error) {
	if err := in.validate(); err != nil {
		return Transaction{}, err
	}
	from, err := parseRef(in.FromAccountID)
	if err != nil {
		return Transaction{}, err
	}
	to, err := parseRef(in.ToAccountID)
	if err != nil {
		return Transaction{}, err
	}

	txID := l.newID()
	var reference *string
	if in.ReferenceID != "" {
		reference = &in.ReferenceID
	}
	row := l.q.QueryRow(ctx, `INSERT INTO transactions
        (id, transaction_id, from_account_id, to_account_id, amount, transaction_type,
         status, description, reference_id, metadata, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
        RETURNING `+transactionColumns,
		uuid.New(), txID, from, to, in.Amount, string(in.Type),
		string(StatusPending), in.Description, reference, in.Metadata)
	t, err := scanTransaction(row)
	if infra.IsUniqueViolation(err, uniqueTransactionID) {
		return Transaction{}, fmt.Errorf("%w: %s", apperrors.ErrDuplicateTransactionID, txID)
	}
	if err != nil {
		return Transaction{}, infra.ClassifyError("record transaction", err)
	}
	return t, nil
}

func (l *PostgresLog) Complete(ctx context.Context, transactionID string) (Transaction, error) {
	return l.finish(ctx, transactionID, StatusCompleted, nil)
}

func (l *PostgresLog) Fail(ctx context.Context, transactionID, reason string) (Transaction, error) {
	return l.finish(ctx, transactionID, StatusFailed, &reason)
}

// finish moves a pending transaction to a terminal status in one conditional update.
func (l *PostgresLog) finish(ctx context.Context, transactionID string, status Status, reason *string) (Transaction, error) {
	row := l.q.QueryRow(ctx, `UPDATE transactions
        SET status = $2, error_message = $3, updated_at = now()
        WHERE transaction_id = $1 AND status = 'pending'
        RETURNING `+transactionColumns, transactionID, string(status), reason)
	t, err := scanTransaction(row)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, infra.ClassifyError("finish transaction", err)
	}
	current, getErr := l.Get(ctx, transactionID)
	if getErr != nil {
		return Transaction{}, getErr
	}
	return Transaction{}, fmt.Errorf("%w: %s is %s", apperrors.ErrAlreadyProcessed, transactionID, current.Status)
}

func (l *PostgresLog) Get(ctx context.Context, transactionID string) (Transaction, error) {
	row := l.q.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE transaction_id = $1`, transactionID)
	t, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, apperrors.NotFound("transaction", transactionID)
	}
	if err != nil {
		return Transaction{}, infra.ClassifyError("get transaction", err)
	}
	return t, nil
}

func (l *PostgresLog) DailyDebitTotal(ctx context.Context, accountID string, typ Type, date time.Time) (decimal.Decimal, error) {
	id, err := uuid.Parse(accountID)
	if err != nil {
		return decimal.Zero, apperrors.NotFound("account", accountID)
	}
	start, end := DayBounds(date)
	var total decimal.Decimal
	err = l.q.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM transactions
        WHERE from_account_id = $1 AND transaction_type = $2 AND status = 'completed'
          AND created_at >= $3 AND created_at < $4`,
		id, string(typ), start, end).Scan(&total)
	if err != nil {
		return decimal.Zero, infra.ClassifyError("daily debit total", err)
	}
	return total, nil
}

func (l *PostgresLog) Statement(ctx context.Context, accountID string, start, end time.Time) ([]Transaction, error) {
	id, err := uuid.Parse(accountID)
	if err != nil {
		return nil, apperrors.NotFound("account", accountID)
	}
	from, to := RangeBounds(start, end)
	rows, err := l.q.Query(ctx, `SELECT `+transactionColumns+` FROM transactions
        WHERE (from_account_id = $1 OR to_account_id = $1) AND status = 'completed'
          AND created_at >= $2 AND created_at < $3
        ORDER BY created_at ASC`, id, from, to)
	if err != nil {
		return nil, infra.ClassifyError("statement", err)
	}
	return collect(rows, "statement")
}

func (l *PostgresLog) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]Transaction, error) {
	id, err := uuid.Parse(accountID)
	if err != nil {
		return nil, apperrors.NotFound("account", accountID)
	}
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := l.q.Query(ctx, `SELECT `+transactionColumns+` FROM transactions
        WHERE from_account_id = $1 OR to_account_id = $1
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3`, id, lim, offset)
	if err != nil {
		return nil, infra.ClassifyError("list transactions", err)
	}
	return collect(rows, "list transactions")
}

func collect(rows pgx.Rows, op string) ([]Transaction, error) {
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, infra.ClassifyError(op, err)
		}
		out = append(out, t)
	}
	return out, infra.ClassifyError(op, rows.Err())
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		t        Transaction
		id       uuid.UUID
		from, to *uuid.UUID
		typ      string
		status   string
	)
	err := row.Scan(&id, &t.TransactionID, &from, &to, &t.Amount, &typ, &status,
		&t.Description, &t.ReferenceID, &t.Metadata, &t.ErrorMessage, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return Transaction{}, err
	}
	t.ID = id.String()
	t.FromAccountID = refString(from)
	t.ToAccountID = refString(to)
	t.Type = Type(typ)
	t.Status = Status(status)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}

func parseRef(s *string) (*uuid.UUID, error) {
	if s == nil {
		return nil, nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil, apperrors.NotFound("account", *s)
	}
	return &id, nil
}

func refString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}
