package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation indicates malformed input such as a non-positive amount or an invalid tenure.
	ErrValidation = errors.New("validation error")

	// ErrNotFound indicates that an account, loan or transaction does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientFunds occurs when an account lacks the available balance to cover a hold.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrLimitExceeded indicates a daily transfer or per-transaction withdrawal cap was hit.
	ErrLimitExceeded = errors.New("limit exceeded")

	// ErrDuplicateTransactionID indicates the generated transaction identifier collided.
	// Callers retry with a freshly generated identifier.
	ErrDuplicateTransactionID = errors.New("duplicate transaction id")

	// ErrDuplicate indicates a unique business key (account or loan number) already exists.
	ErrDuplicate = errors.New("already exists")

	// ErrAlreadyProcessed indicates a transaction left the pending state before this call.
	ErrAlreadyProcessed = errors.New("transaction already processed")

	// ErrContention indicates the store did not grant a lock or connection in time. Retryable.
	ErrContention = errors.New("store contention")

	// ErrPersistence indicates a non-retryable store failure.
	ErrPersistence = errors.New("persistence failure")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrValidation, "ValidationError"},
	{ErrNotFound, "NotFound"},
	{ErrInsufficientFunds, "InsufficientFunds"},
	{ErrLimitExceeded, "LimitExceeded"},
	{ErrDuplicateTransactionID, "DuplicateTransactionId"},
	{ErrDuplicate, "Duplicate"},
	{ErrAlreadyProcessed, "AlreadyProcessed"},
	{ErrContention, "Contention"},
	{ErrPersistence, "PersistenceFailure"},
}

// Kind names the error kind carried by err, or "Internal" when err wraps none of the sentinels.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Internal"
}

// Retryable reports whether the caller may safely resubmit the operation.
func Retryable(err error) bool {
	return errors.Is(err, ErrContention)
}

// Validation wraps ErrValidation with a formatted reason.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound wraps ErrNotFound naming the missing entity.
func NotFound(entity, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, entity, id)
}

// Persistence wraps a raw store error so callers can match ErrPersistence while keeping the cause.
func Persistence(op string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, cause)
}

// Contention wraps a raw store error as a retryable contention failure.
func Contention(op string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrContention, op, cause)
}

// IsDomain reports whether err is a business outcome rather than an infrastructure failure.
func IsDomain(err error) bool {
	if err == nil {
		return true
	}
	return !errors.Is(err, ErrContention) && !errors.Is(err, ErrPersistence) && Kind(err) != "Internal"
}
