package observer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vyrodovalexey/statestore/internal/state"
)

// Prometheus metrics.
var (
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statestore_transitions_total",
			Help: "Total number of state transitions by store and action",
		},
		[]string{"store", "action"},
	)

	operationsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "statestore_operations_in_flight",
			Help: "Number of asynchronous operations awaiting their data source",
		},
		[]string{"store", "op"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "statestore_operation_duration_seconds",
			Help:    "Time from pending to resolution of asynchronous operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"store", "op", "outcome"},
	)
)

// Metrics records transitions as Prometheus metrics.
type Metrics struct{}

// Compile-time check that Metrics satisfies state.Observer.
var _ state.Observer = Metrics{}

// NewMetrics creates a metrics observer.
func NewMetrics() Metrics {
	return Metrics{}
}

// Observe records t.
func (Metrics) Observe(t state.Transition) {
	transitionsTotal.WithLabelValues(t.Store, t.Action.Name).Inc()

	if t.Action.Op == "" {
		return
	}

	switch t.Action.Phase {
	case state.PhasePending:
		operationsInFlight.WithLabelValues(t.Store, t.Action.Op).Inc()
	case state.PhaseFulfilled, state.PhaseRejected:
		operationsInFlight.WithLabelValues(t.Store, t.Action.Op).Dec()
		operationDuration.
			WithLabelValues(t.Store, t.Action.Op, string(t.Action.Phase)).
			Observe(t.Action.Elapsed.Seconds())
	}
}
