package infra

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tsheringkof667-bot/Bank/internal/apperrors"
)

// Postgres SQLSTATE codes the ledger reacts to.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeQueryCanceled        = "57014"
)

// IsUniqueViolation reports whether err is a unique constraint violation, optionally
// restricted to the named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != codeUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// ClassifyError maps a raw pgx error onto the contention/persistence kinds. Errors that
// already carry an application kind are returned unchanged.
func ClassifyError(op string, err error) error {
	if err == nil {
		return nil
	}
	if apperrors.Kind(err) != "Internal" {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Contention(op, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable, codeQueryCanceled:
			return apperrors.Contention(op, err)
		}
	}
	if pgconn.Timeout(err) {
		return apperrors.Contention(op, err)
	}
	return apperrors.Persistence(op, err)
}
