package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/tsheringkof667-bot/Bank/internal/apperrors"
	"github.com/tsheringkof667-bot/Bank/internal/infra"
)

const accountColumns = `id, account_number, owner_id, account_type, currency,
        current_balance, available_balance, status, created_at, updated_at`

// PostgresAccounts persists accounts in PostgreSQL. Every balance primitive is a
// single UPDATE statement so it is atomic on its own and composes inside a
// surrounding transaction when q is a pgx.Tx.
type PostgresAccounts struct {
	q infra.Querier
}

// NewPostgresAccounts builds an Accounts implementation over a pool or transaction.
func NewPostgresAccounts(q infra.Querier) *PostgresAccounts {
	return &PostgresAccounts{q: q}
}

// Create inserts a new account row.
func (r *PostgresAccounts) Create(ctx context.Context, a Account) error {
	id, err := uuid.Parse(a.ID)
	if err != nil {
		return apperrors.Validation("account id %q is not a uuid", a.ID)
	}
	_, err = r.q.Exec(ctx, `INSERT INTO accounts (`+accountColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, a.AccountNumber, a.OwnerID, string(a.Type), a.Currency,
		a.CurrentBalance, a.AvailableBalance, a.Status, a.CreatedAt.UTC(), a.UpdatedAt.UTC())
	if infra.IsUniqueViolation(err, "") {
		return fmt.Errorf("%w: account number %s", apperrors.ErrDuplicate, a.AccountNumber)
	}
	return infra.ClassifyError("create account", err)
}

// Get fetches an account by id.
func (r *PostgresAccounts) Get(ctx context.Context, id string) (Account, error) {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return Account{}, apperrors.NotFound("account", id)
	}
	row := r.q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, accountID)
	return scanAccount(row, "account", id)
}

// GetByNumber fetches an account by its customer-facing number.
func (r *PostgresAccounts) GetByNumber(ctx context.Context, number string) (Account, error) {
	row := r.q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE account_number = $1`, number)
	return scanAccount(row, "account number", number)
}

// ListByOwner returns the owner's accounts, newest first.
func (r *PostgresAccounts) ListByOwner(ctx context.Context, ownerID string) ([]Account, error) {
	rows, err := r.q.Query(ctx, `SELECT `+accountColumns+` FROM accounts
        WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, infra.ClassifyError("list accounts", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows, "account", ownerID)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, infra.ClassifyError("list accounts", rows.Err())
}

// Credit increases current and available balances.
func (r *PostgresAccounts) Credit(ctx context.Context, id string, amount decimal.Decimal) (Account, error) {
	return r.update(ctx, "credit", id, amount, `UPDATE accounts
        SET current_balance = current_balance + $2,
            available_balance = available_balance + $2,
            updated_at = now()
        WHERE id = $1
        RETURNING `+accountColumns)
}

// Debit decreases the current balance.
func (r *PostgresAccounts) Debit(ctx context.Context, id string, amount decimal.Decimal) (Account, error) {
	return r.update(ctx, "debit", id, amount, `UPDATE accounts
        SET current_balance = current_balance - $2,
            updated_at = now()
        WHERE id = $1
        RETURNING `+accountColumns)
}

// Hold reserves amount from the available balance with a compare-and-decrement.
// Zero affected rows means either the account is missing or funds are short.
func (r *PostgresAccounts) Hold(ctx context.Context, id string, amount decimal.Decimal) (Account, error) {
	a, err := r.update(ctx, "hold", id, amount, `UPDATE accounts
        SET available_balance = available_balance - $2,
            updated_at = now()
        WHERE id = $1 AND available_balance >= $2
        RETURNING `+accountColumns)
	if !errors.Is(err, apperrors.ErrNotFound) {
		return a, err
	}
	if _, getErr := r.Get(ctx, id); getErr != nil {
		return Account{}, getErr
	}
	return Account{}, fmt.Errorf("%w: account %s cannot cover %s", apperrors.ErrInsufficientFunds, id, amount.StringFixed(2))
}

// Release returns a held amount to the available balance.
func (r *PostgresAccounts) Release(ctx context.Context, id string, amount decimal.Decimal) (Account, error) {
	return r.update(ctx, "release", id, amount, `UPDATE accounts
        SET available_balance = available_balance + $2,
            updated_at = now()
        WHERE id = $1
        RETURNING `+accountColumns)
}

func (r *PostgresAccounts) update(ctx context.Context, op, id string, amount decimal.Decimal, query string) (Account, error) {
	if err := validateAmount(amount); err != nil {
		return Account{}, err
	}
	accountID, err := uuid.Parse(id)
	if err != nil {
		return Account{}, apperrors.NotFound("account", id)
	}
	a, err := scanAccount(r.q.QueryRow(ctx, query, accountID, amount), "account", id)
	if err != nil {
		return Account{}, infra.ClassifyError(op, err)
	}
	return a, nil
}

func scanAccount(row pgx.Row, entity, key string) (Account, error) {
	var (
		a         Account
		id        uuid.UUID
		accountTy string
	)
	err := row.Scan(&id, &a.AccountNumber, &a.OwnerID, &accountTy, &a.Currency,
		&a.CurrentBalance, &a.AvailableBalance, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, apperrors.NotFound(entity, key)
		}
		return Account{}, infra.ClassifyError("scan account", err)
	}
	a.ID = id.String()
	a.Type = Type(accountTy)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}
