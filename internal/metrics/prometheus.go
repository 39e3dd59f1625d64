package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus implements Recorder with client_golang collectors.
type Prometheus struct {
	movements     *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	compensations *prometheus.CounterVec
	circuitState  *prometheus.GaugeVec
	circuitOpens  *prometheus.CounterVec
}

// NewPrometheus creates the collectors under namespace and registers them with reg.
func NewPrometheus(namespace string, reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		movements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "movements_total",
				Help:      "Money movements by type and outcome",
			},
			[]string{"movement", "outcome"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "movement_duration_seconds",
				Help:      "Money movement latency from validation to final status",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"movement"},
		),
		compensations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compensations_total",
				Help:      "Hold releases run after a failed apply",
			},
			[]string{"movement", "success"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_state",
				Help:      "Store circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
		circuitOpens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_opens_total",
				Help:      "Times the store circuit breaker opened",
			},
			[]string{"name"},
		),
	}
	for _, c := range []prometheus.Collector{p.movements, p.latency, p.compensations, p.circuitState, p.circuitOpens} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) RecordMovement(movement, outcome string, duration time.Duration) {
	p.movements.WithLabelValues(movement, outcome).Inc()
	p.latency.WithLabelValues(movement).Observe(duration.Seconds())
}

func (p *Prometheus) RecordCompensation(movement string, success bool) {
	p.compensations.WithLabelValues(movement, strconv.FormatBool(success)).Inc()
}

func (p *Prometheus) RecordCircuitState(name string, state CircuitState) {
	p.circuitState.WithLabelValues(name).Set(float64(state))
	if state == CircuitOpen {
		p.circuitOpens.WithLabelValues(name).Inc()
	}
}
