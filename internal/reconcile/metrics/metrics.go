package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the reconciliation module.
type Metrics struct {
	// Snapshot assembly latencies by source record
	SnapshotLatency *prometheus.HistogramVec

	// Engine outcomes by result
	Outcomes *prometheus.CounterVec

	// Status transitions by from/to pair
	Transitions *prometheus.CounterVec

	// Full reconciliation latency including snapshot assembly
	ReconcileLatency prometheus.Histogram

	// Batch sweep runs and duration
	SweepRuns     prometheus.Counter
	SweepDuration prometheus.Histogram
}

// New creates a Metrics instance with all reconciliation metrics registered.
func New() *Metrics {
	return &Metrics{
		SnapshotLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hemotrack_reconcile_snapshot_duration_seconds",
			Help:    "Duration of snapshot record reads by source",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"source"}), // source: "screening", "exam", "collection", "unit", "medical"

		Outcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hemotrack_reconcile_outcomes_total",
			Help: "Total engine outcomes by result",
		}, []string{"outcome"}),

		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hemotrack_reconcile_transitions_total",
			Help: "Total status transitions by from/to status",
		}, []string{"from", "to"}),

		ReconcileLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "hemotrack_reconcile_duration_seconds",
			Help:    "Duration of a full reconciliation pass including snapshot assembly",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		SweepRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hemotrack_sweep_runs_total",
			Help: "Total batch sweep invocations",
		}),

		SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "hemotrack_sweep_duration_seconds",
			Help:    "Duration of a full batch sweep",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

// ObserveSnapshotLatency records the duration of one snapshot source read.
func (m *Metrics) ObserveSnapshotLatency(source string, d time.Duration) {
	if m != nil {
		m.SnapshotLatency.WithLabelValues(source).Observe(d.Seconds())
	}
}

// IncrementOutcome records an engine outcome.
func (m *Metrics) IncrementOutcome(outcome string) {
	if m != nil {
		m.Outcomes.WithLabelValues(outcome).Inc()
	}
}

// IncrementTransition records a status transition.
func (m *Metrics) IncrementTransition(from, to string) {
	if m != nil {
		m.Transitions.WithLabelValues(from, to).Inc()
	}
}

// ObserveReconcileLatency records the total reconciliation duration.
func (m *Metrics) ObserveReconcileLatency(d time.Duration) {
	if m != nil {
		m.ReconcileLatency.Observe(d.Seconds())
	}
}

// ObserveSweep records one sweep run and its duration.
func (m *Metrics) ObserveSweep(d time.Duration) {
	if m != nil {
		m.SweepRuns.Inc()
		m.SweepDuration.Observe(d.Seconds())
	}
}
