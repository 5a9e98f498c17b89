package guard

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation results recorded in Metrics.Operations.
const (
	resultOK           = "ok"
	resultError        = "storage_error"
	resultInvalidState = "invalid_state"
	resultTimeout      = "acquire_timeout"
)

// Metrics holds the Prometheus collectors for an index guard.
// A nil *Metrics records nothing.
type Metrics struct {
	PermitsInUse      prometheus.Gauge
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	Commits           prometheus.Counter
	CloseFailures     *prometheus.CounterVec
}

// NewMetrics creates the guard collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PermitsInUse: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "notesearch",
				Subsystem: "index_writer",
				Name:      "permits_in_use",
				Help:      "Writer permits currently held.",
			},
		),
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notesearch",
				Subsystem: "index_writer",
				Name:      "operations_total",
				Help:      "Guarded writer operations by operation and result.",
			},
			[]string{"op", "result"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "notesearch",
				Subsystem: "index_writer",
				Name:      "operation_duration_seconds",
				Help:      "Time spent in the writer per operation, excluding permit waits.",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"op"},
		),
		Commits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "notesearch",
				Subsystem: "index_writer",
				Name:      "commits_total",
				Help:      "Successful commits.",
			},
		),
		CloseFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notesearch",
				Subsystem: "index_writer",
				Name:      "close_failures_total",
				Help:      "Failures while closing the writer, by step.",
			},
			[]string{"step"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.PermitsInUse,
			m.Operations,
			m.OperationDuration,
			m.Commits,
			m.CloseFailures,
		)
	}

	return m
}

func (m *Metrics) setInUse(n int) {
	if m == nil {
		return
	}
	m.PermitsInUse.Set(float64(n))
}

func (m *Metrics) observe(op, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op, result).Inc()
	if result == resultOK || result == resultError {
		m.OperationDuration.WithLabelValues(op).Observe(d.Seconds())
	}
}

func (m *Metrics) incCommits() {
	if m == nil {
		return
	}
	m.Commits.Inc()
}

func (m *Metrics) incCloseFailure(step string) {
	if m == nil {
		return
	}
	m.CloseFailures.WithLabelValues(step).Inc()
}
