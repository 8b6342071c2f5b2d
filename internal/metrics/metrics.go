// Package metrics defines the Prometheus collectors exported by the service.
// All methods are safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sambatan"

// Metrics groups the collectors used across the ledger, sweeper, optimizer
// and event bus.
type Metrics struct {
	ledgerOps         *prometheus.CounterVec
	lockWait          prometheus.Histogram
	sweepTransitions  *prometheus.CounterVec
	optimizerDegraded prometheus.Counter
	eventsDropped     prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ledgerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Ledger operations by operation and outcome.",
		}, []string{"op", "outcome"}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for per-record exclusivity.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 2.5},
		}),
		sweepTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "transitions_total",
			Help:      "Group purchases transitioned by the expiration sweeper, by resulting status.",
		}, []string{"status"}),
		optimizerDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "optimizer",
			Name:      "degraded_total",
			Help:      "Shipping plans computed without a consolidated rate.",
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Domain events dropped because the bus buffer was full or closed.",
		}),
	}

	reg.MustRegister(m.ledgerOps, m.lockWait, m.sweepTransitions, m.optimizerDegraded, m.eventsDropped)
	return m
}

// LedgerOp counts one ledger operation with its outcome ("ok" or an error name).
func (m *Metrics) LedgerOp(op, outcome string) {
	if m == nil {
		return
	}
	m.ledgerOps.WithLabelValues(op, outcome).Inc()
}

// LockWait records how long an operation waited for a record lock.
func (m *Metrics) LockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(d.Seconds())
}

// SweepTransition counts one sweeper transition to status.
func (m *Metrics) SweepTransition(status string) {
	if m == nil {
		return
	}
	m.sweepTransitions.WithLabelValues(status).Inc()
}

// OptimizerDegraded counts one degraded shipping plan.
func (m *Metrics) OptimizerDegraded() {
	if m == nil {
		return
	}
	m.optimizerDegraded.Inc()
}

// EventDropped counts one dropped domain event.
func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}
