package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/tsheringkof667-bot/Bank/internal/apperrors"
	"github.com/tsheringkof667-bot/Bank/internal/metrics"
)

// BreakerConfig tunes the circuit breaker around units of work.
type BreakerConfig struct {
	Name string
	// MaxFailures is the number of consecutive infrastructure failures that opens the breaker.
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

// Resilient guards Atomic with a circuit breaker. Direct accessors pass straight
// through so that compensating releases still reach the store while the breaker
// is open.
type Resilient struct {
	Store
	cb     *gobreaker.CircuitBreaker
	logger *slog.Logger
}

// NewResilient wraps inner. Only contention and persistence failures count
// against the breaker; business outcomes such as insufficient funds do not.
func NewResilient(inner Store, cfg BreakerConfig, recorder metrics.Recorder, logger *slog.Logger) *Resilient {
	if cfg.Name == "" {
		cfg.Name = "store"
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if recorder == nil {
		recorder = metrics.NoOp{}
	}
	r := &Resilient{Store: inner, logger: logger}
	r.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || apperrors.IsDomain(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			recorder.RecordCircuitState(name, circuitState(to))
		},
	})
	return r
}

func (r *Resilient) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	_, err := r.cb.Execute(func() (any, error) {
		return nil, r.Store.Atomic(ctx, fn)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperrors.Contention("store circuit open", err)
	}
	return err
}

// State reports the breaker position.
func (r *Resilient) State() gobreaker.State {
	return r.cb.State()
}

func circuitState(s gobreaker.State) metrics.CircuitState {
	switch s {
	case gobreaker.StateOpen:
		return metrics.CircuitOpen
	case gobreaker.StateHalfOpen:
		return metrics.CircuitHalfOpen
	default:
		return metrics.CircuitClosed
	}
}
