package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the citation module: transition counts,
// capture volume, and critical path durations.
type Metrics struct {
	Transitions      *prometheus.CounterVec
	PaymentsRecorded prometheus.Counter
	AmountCollected  prometheus.Counter
	ConflictRetries  prometheus.Counter
	TransitionDur    prometheus.Histogram
	ListDuration     prometheus.Histogram
}

// New creates a Metrics instance with all citation module metrics registered.
func New() *Metrics {
	return &Metrics{
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "contrava_record_transitions_total",
			Help: "Total number of successful record status transitions",
		}, []string{"event"}),
		PaymentsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "contrava_payments_recorded_total",
			Help: "Total number of payments captured",
		}),
		AmountCollected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "contrava_amount_collected_total",
			Help: "Total amount collected, in the smallest currency unit",
		}),
		ConflictRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "contrava_transition_conflict_retries_total",
			Help: "Total compare-and-swap conflicts retried by the lifecycle engine",
		}),
		TransitionDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "contrava_transition_duration_seconds",
			Help:    "Duration of lifecycle transitions (payment capture critical path)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		ListDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "contrava_list_duration_seconds",
			Help:    "Duration of filtered list queries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementTransition records a successful transition for the given event.
func (m *Metrics) IncrementTransition(event string) {
	m.Transitions.WithLabelValues(event).Inc()
}

// RecordPayment records a captured payment and its amount.
func (m *Metrics) RecordPayment(amount int64) {
	m.PaymentsRecorded.Inc()
	m.AmountCollected.Add(float64(amount))
}

// IncrementConflictRetry records one compare-and-swap retry.
func (m *Metrics) IncrementConflictRetry() {
	m.ConflictRetries.Inc()
}

// ObserveTransition records the duration of a lifecycle transition.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveTransition(start time.Time) {
	m.TransitionDur.Observe(time.Since(start).Seconds())
}

// ObserveList records the duration of a list query.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveList(start time.Time) {
	m.ListDuration.Observe(time.Since(start).Seconds())
}
