package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	KindTransferSent     = "transfer_sent"
	KindTransferReceived = "transfer_received"
	KindDeposit          = "deposit"
	KindWithdrawal       = "withdrawal"
	KindLoanApplied      = "loan_applied"
	KindLoanDisbursed    = "loan_disbursed"
	KindLoanRepaid       = "loan_repaid"
	KindLoanClosed       = "loan_closed"
)

// Message describes a notification payload.
type Message struct {
	Kind        string            `json:"kind"`
	Destination string            `json:"destination"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	Data        map[string]string `json:"data,omitempty"`
}

// Notifier delivers notifications to downstream systems. Callers treat delivery
// as fire-and-forget.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		slog.String("kind", message.Kind),
		slog.String("destination", message.Destination),
		slog.String("title", message.Title),
		slog.String("body", message.Body),
	)
	return nil
}

// RedisNotifier publishes notifications as JSON on a Redis channel for the
// delivery workers to pick up.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	timeout time.Duration
}

// NewRedisNotifier publishes on channel.
func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel, timeout: 2 * time.Second}
}

// Send publishes the message. It uses its own deadline so a finished request
// context does not cut delivery short.
func (n *RedisNotifier) Send(ctx context.Context, message Message) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
