package loan

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tsheringkof667-bot/Bank/internal/apperrors"
	"github.com/tsheringkof667-bot/Bank/internal/infra"
)

const loanColumns = `id, loan_number, owner_id, account_id, repayment_account_id, loan_type,
        principal, interest_rate, tenure_months, remaining_tenure, emi_amount, remaining_amount,
        purpose, status, remarks, disbursed_at, last_payment_at, created_at, updated_at`

// PostgresRepository stores loans and installments in PostgreSQL.
type PostgresRepository struct {
	q infra.Querier
}

// NewPostgresRepository builds a repository over a pool or an open transaction.
func NewPostgresRepository(q infra.Querier) *PostgresRepository {
	return &PostgresRepository{q: q}
}

func (r *PostgresRepository) Create(ctx context.Context, l Loan) error {
	id, err := uuid.Parse(l.ID)
	if err != nil {
		return apperrors.Validation("loan id %q is not a uuid", l.ID)
	}
	accountID, err := uuid.Parse(l.AccountID)
	if err != nil {
		return apperrors.NotFound("account", l.AccountID)
	}
	_, err = r.q.Exec(ctx, `INSERT INTO loans (`+loanColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		id, l.LoanNumber, l.OwnerID, accountID, optionalUUID(l.RepaymentAccountID), l.LoanType,
		l.Principal, l.InterestRate, l.TenureMonths, l.RemainingTenure, l.EMIAmount, l.RemainingAmount,
		l.Purpose, string(l.Status), l.Remarks, l.DisbursedAt, l.LastPaymentAt, l.CreatedAt.UTC(), l.UpdatedAt.UTC())
	if infra.IsUniqueViolation(err, "loans_loan_number_key") {
		return fmt.Errorf("%w: loan number %s", apperrors.ErrDuplicate, l.LoanNumber)
	}
	return infra.ClassifyError("create loan", err)
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Loan, error) {
	return r.get(ctx, id, `SELECT `+loanColumns+` FROM loans WHERE id = $1`)
}

// GetForUpdate takes the row lock, so concurrent repayments of one loan apply in turn.
func (r *PostgresRepository) GetForUpdate(ctx context.Context, id string) (Loan, error) {
	return r.get(ctx, id, `SELECT `+loanColumns+` FROM loans WHERE id = $1 FOR UPDATE`)
}

func (r *PostgresRepository) get(ctx context.Context, id, query string) (Loan, error) {
	loanID, err := uuid.Parse(id)
	if err != nil {
		return Loan{}, apperrors.NotFound("loan", id)
	}
	l, err := scanLoan(r.q.QueryRow(ctx, query, loanID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Loan{}, apperrors.NotFound("loan", id)
	}
	if err != nil {
		return Loan{}, infra.ClassifyError("get loan", err)
	}
	return l, nil
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]Loan, error) {
	return r.list(ctx, `SELECT `+loanColumns+` FROM loans WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
}

func (r *PostgresRepository) ListByStatus(ctx context.Context, status Status) ([]Loan, error) {
	return r.list(ctx, `SELECT `+loanColumns+` FROM loans WHERE status = $1 ORDER BY created_at DESC`, string(status))
}

func (r *PostgresRepository) list(ctx context.Context, query string, arg any) ([]Loan, error) {
	rows, err := r.q.Query(ctx, query, arg)
	if err != nil {
		return nil, infra.ClassifyError("list loans", err)
	}
	defer rows.Close()
	var out []Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, infra.ClassifyError("list loans", err)
		}
		out = append(out, l)
	}
	return out, infra.ClassifyError("list loans", rows.Err())
}

func (r *PostgresRepository) Update(ctx context.Context, l Loan) error {
	id, err := uuid.Parse(l.ID)
	if err != nil {
		return apperrors.NotFound("loan", l.ID)
	}
	tag, err := r.q.Exec(ctx, `UPDATE loans
        SET repayment_account_id = $2, remaining_tenure = $3, remaining_amount = $4,
            status = $5, remarks = $6, disbursed_at = $7, last_payment_at = $8, updated_at = now()
        WHERE id = $1`,
		id, optionalUUID(l.RepaymentAccountID), l.RemainingTenure, l.RemainingAmount,
		string(l.Status), l.Remarks, l.DisbursedAt, l.LastPaymentAt)
	if err != nil {
		return infra.ClassifyError("update loan", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("loan", l.ID)
	}
	return nil
}

func (r *PostgresRepository) Transition(ctx context.Context, id string, from, to Status, remarks string) (Loan, error) {
	loanID, err := uuid.Parse(id)
	if err != nil {
		return Loan{}, apperrors.NotFound("loan", id)
	}
	l, err := scanLoan(r.q.QueryRow(ctx, `UPDATE loans
        SET status = $3, remarks = CASE WHEN $4 = '' THEN remarks ELSE $4 END, updated_at = now()
        WHERE id = $1 AND status = $2
        RETURNING `+loanColumns, loanID, string(from), string(to), remarks))
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Loan{}, infra.ClassifyError("transition loan", err)
	}
	current, getErr := r.Get(ctx, id)
	if getErr != nil {
		return Loan{}, getErr
	}
	return Loan{}, fmt.Errorf("%w: loan %s is %s", apperrors.ErrAlreadyProcessed, current.LoanNumber, current.Status)
}

func (r *PostgresRepository) SaveInstallments(ctx context.Context, loanID string, installments []Installment) error {
	id, err := uuid.Parse(loanID)
	if err != nil {
		return apperrors.NotFound("loan", loanID)
	}
	batch := &pgx.Batch{}
	for _, inst := range installments {
		batch.Queue(`INSERT INTO loan_installments
            (loan_id, sequence, due_date, amount, principal, interest, status, paid_amount, paid_at, penalty)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
            ON CONFLICT (loan_id, sequence) DO UPDATE
            SET status = EXCLUDED.status, paid_amount = EXCLUDED.paid_amount,
                paid_at = EXCLUDED.paid_at, penalty = EXCLUDED.penalty`,
			id, inst.Sequence, inst.DueDate.UTC(), inst.Amount, inst.Principal, inst.Interest,
			string(inst.Status), inst.PaidAmount, inst.PaidAt, inst.Penalty)
	}
	results := r.q.SendBatch(ctx, batch)
	for range installments {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return infra.ClassifyError("save installments", err)
		}
	}
	return infra.ClassifyError("save installments", results.Close())
}

func (r *PostgresRepository) Installments(ctx context.Context, loanID string) ([]Installment, error) {
	if _, err := r.Get(ctx, loanID); err != nil {
		return nil, err
	}
	rows, err := r.q.Query(ctx, `SELECT loan_id, sequence, due_date, amount, principal, interest,
            status, paid_amount, paid_at, penalty
        FROM loan_installments WHERE loan_id = $1 ORDER BY sequence`, uuid.MustParse(loanID))
	if err != nil {
		return nil, infra.ClassifyError("list installments", err)
	}
	defer rows.Close()
	var out []Installment
	for rows.Next() {
		var (
			inst   Installment
			id     uuid.UUID
			status string
		)
		if err := rows.Scan(&id, &inst.Sequence, &inst.DueDate, &inst.Amount, &inst.Principal, &inst.Interest,
			&status, &inst.PaidAmount, &inst.PaidAt, &inst.Penalty); err != nil {
			return nil, infra.ClassifyError("list installments", err)
		}
		inst.LoanID = id.String()
		inst.Status = InstallmentStatus(status)
		inst.DueDate = inst.DueDate.UTC()
		out = append(out, inst)
	}
	return out, infra.ClassifyError("list installments", rows.Err())
}

func scanLoan(row pgx.Row) (Loan, error) {
	var (
		l           Loan
		id          uuid.UUID
		accountID   uuid.UUID
		repaymentID *uuid.UUID
		status      string
	)
	err := row.Scan(&id, &l.LoanNumber, &l.OwnerID, &accountID, &repaymentID, &l.LoanType,
		&l.Principal, &l.InterestRate, &l.TenureMonths, &l.RemainingTenure, &l.EMIAmount, &l.RemainingAmount,
		&l.Purpose, &status, &l.Remarks, &l.DisbursedAt, &l.LastPaymentAt, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return Loan{}, err
	}
	l.ID = id.String()
	l.AccountID = accountID.String()
	if repaymentID != nil {
		l.RepaymentAccountID = repaymentID.String()
	}
	l.Status = Status(status)
	l.CreatedAt = l.CreatedAt.UTC()
	l.UpdatedAt = l.UpdatedAt.UTC()
	return l, nil
}

func optionalUUID(s string) *uuid.UUID {
	if s == "" {
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}
