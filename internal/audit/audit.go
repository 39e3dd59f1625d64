// Package audit records who did what to which entity. Sinks are fire-and-forget:
// the engine logs a failed write and carries on.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	ActionAccountCreated      = "ACCOUNT_CREATED"
	ActionTransferCompleted   = "TRANSFER_COMPLETED"
	ActionDepositCompleted    = "DEPOSIT_COMPLETED"
	ActionWithdrawalCompleted = "WITHDRAWAL_COMPLETED"
	ActionLoanApplied         = "LOAN_APPLIED"
	ActionLoanApproved        = "LOAN_APPROVED"
	ActionLoanRejected        = "LOAN_REJECTED"
	ActionLoanDisbursed       = "LOAN_DISBURSED"
	ActionLoanRepayment       = "LOAN_REPAYMENT"
	ActionLoanDefaulted       = "LOAN_DEFAULTED"
	ActionStatementGenerated  = "STATEMENT_GENERATED"
)

// Event is one audit record.
type Event struct {
	ActorID  string
	Action   string
	Entity   string
	EntityID string
	Details  map[string]string
	At       time.Time
}

// Sink accepts audit events.
type Sink interface {
	Record(ctx context.Context, event Event) error
}

// LoggerSink writes events to the structured logger.
type LoggerSink struct {
	logger *slog.Logger
}

func NewLoggerSink(logger *slog.Logger) *LoggerSink {
	return &LoggerSink{logger: logger}
}

func (s *LoggerSink) Record(_ context.Context, e Event) error {
	attrs := []any{
		slog.String("actor_id", e.ActorID),
		slog.String("action", e.Action),
		slog.String("entity", e.Entity),
		slog.String("entity_id", e.EntityID),
		slog.Time("at", e.At),
	}
	for k, v := range e.Details {
		attrs = append(attrs, slog.String("detail."+k, v))
	}
	s.logger.Info("audit", attrs...)
	return nil
}

// StreamSink appends events to a capped Redis stream.
type StreamSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewStreamSink writes to stream, trimming it to roughly maxLen entries.
func NewStreamSink(client *redis.Client, stream string, maxLen int64) *StreamSink {
	return &StreamSink{client: client, stream: stream, maxLen: maxLen}
}

func (s *StreamSink) Record(ctx context.Context, e Event) error {
	values := map[string]any{
		"actor_id":  e.ActorID,
		"action":    e.Action,
		"entity":    e.Entity,
		"entity_id": e.EntityID,
		"at":        e.At.UTC().Format(time.RFC3339Nano),
	}
	for k, v := range e.Details {
		values["detail."+k] = v
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: s.maxLen > 0,
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}
