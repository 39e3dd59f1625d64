package metrics

import "time"

// Recorder collects engine metrics. Implementations must be safe for concurrent use.
type Recorder interface {
	// RecordMovement counts a finished money movement by type and outcome kind.
	RecordMovement(movement, outcome string, duration time.Duration)
	// RecordCompensation counts a compensation run after a failed apply.
	RecordCompensation(movement string, success bool)
	RecordCircuitState(name string, state CircuitState)
}

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// NoOp discards everything.
type NoOp struct{}

func (NoOp) RecordMovement(string, string, time.Duration) {}
func (NoOp) RecordCompensation(string, bool) {}
func (NoOp) RecordCircuitState(string, CircuitState) {}
