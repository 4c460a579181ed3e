package lock

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ============================================================================
// Prometheus Metrics for Mount Point Locks
// ============================================================================

// Label constants for metrics.
const (
	LabelMode   = "mode"
	LabelResult = "result"
)

// Result constants for lock acquisitions.
const (
	ResultGranted        = "granted"
	ResultReentrant      = "reentrant"
	ResultNeedsWrite     = "needs_write"
	ResultOrderViolation = "order_violation"
	ResultCanceled       = "canceled"
)

// Metrics provides Prometheus metrics for mount point locks. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	acquireTotal     *prometheus.CounterVec
	escalationsTotal prometheus.Counter
	waitDuration     *prometheus.HistogramVec
}

// NewMetrics creates lock metrics and registers them with registry.
// If registry is nil, metrics are created but not registered.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		acquireTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "arcfs",
				Subsystem: "locks",
				Name:      "acquire_total",
				Help:      "Total number of mount point lock acquisitions by outcome",
			},
			[]string{LabelMode, LabelResult},
		),

		escalationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "arcfs",
				Subsystem: "locks",
				Name:      "escalations_total",
				Help:      "Number of operations retried under the write lock",
			},
		),

		waitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "arcfs",
				Subsystem: "locks",
				Name:      "wait_duration_seconds",
				Help:      "Time spent blocked acquiring a mount point lock",
				Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5, 30},
			},
			[]string{LabelMode},
		),
	}

	if registry != nil {
		registry.MustRegister(
			m.acquireTotal,
			m.escalationsTotal,
			m.waitDuration,
		)
	}

	return m
}

// ObserveAcquire records the outcome of an acquisition attempt.
func (m *Metrics) ObserveAcquire(mode Mode, result string) {
	if m == nil {
		return
	}
	m.acquireTotal.WithLabelValues(mode.String(), result).Inc()
}

// ObserveEscalation records a read to write retry.
func (m *Metrics) ObserveEscalation() {
	if m == nil {
		return
	}
	m.escalationsTotal.Inc()
}

// ObserveWait records time spent blocked on the underlying lock.
func (m *Metrics) ObserveWait(mode Mode, d time.Duration) {
	if m == nil {
		return
	}
	m.waitDuration.WithLabelValues(mode.String()).Observe(d.Seconds())
}
