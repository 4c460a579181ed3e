package manager

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/marmos91/arcfs/internal/telemetry"
	"github.com/marmos91/arcfs/pkg/fs/controller"
	"github.com/marmos91/arcfs/pkg/fs/driver"
	"github.com/marmos91/arcfs/pkg/fs/mountpoint"
)

// ============================================================================
// Prometheus Metrics for the Controller Registry
// ============================================================================

// Lookup and sync results.
const (
	ResultHit     = "hit"
	ResultCreated = "created"
	ResultError   = "error"
	ResultSuccess = "success"
)

// Metrics records registry lookups and syncs. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	lookupsTotal *prometheus.CounterVec
	controllers  prometheus.Gauge
	syncTotal    *prometheus.CounterVec
	syncDuration prometheus.Histogram
}

// NewMetrics creates manager metrics and registers them with registry.
// If registry is nil, metrics are created but not registered.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		lookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "arcfs",
				Subsystem: "manager",
				Name:      "lookups_total",
				Help:      "Controller lookups by outcome",
			},
			[]string{"result"},
		),
		controllers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "arcfs",
				Subsystem: "manager",
				Name:      "controllers",
				Help:      "Number of registered controllers",
			},
		),
		syncTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "arcfs",
				Subsystem: "manager",
				Name:      "sync_total",
				Help:      "Manager syncs by outcome",
			},
			[]string{"result"},
		),
		syncDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "arcfs",
				Subsystem: "manager",
				Name:      "sync_duration_seconds",
				Help:      "Duration of manager syncs",
				Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
			},
		),
	}

	if registry != nil {
		registry.MustRegister(m.lookupsTotal, m.controllers, m.syncTotal, m.syncDuration)
	}
	return m
}

func (m *Metrics) observeLookup(result string, size int) {
	if m == nil {
		return
	}
	m.lookupsTotal.WithLabelValues(result).Inc()
	m.controllers.Set(float64(size))
}

func (m *Metrics) observeSync(err error, d time.Duration, size int) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	m.syncTotal.WithLabelValues(result).Inc()
	m.syncDuration.Observe(d.Seconds())
	m.controllers.Set(float64(size))
}

// Instrumented records metrics and traces around another Manager.
type Instrumented struct {
	*Decorating
	metrics *Metrics
}

// NewInstrumented wraps m. metrics may be nil.
func NewInstrumented(m Manager, metrics *Metrics) (*Instrumented, error) {
	d, err := NewDecorating(m)
	if err != nil {
		return nil, err
	}
	return &Instrumented{Decorating: d, metrics: metrics}, nil
}

func (i *Instrumented) isNil() bool { return i == nil || i.Decorating == nil }

func (i *Instrumented) Controller(ctx context.Context, mp mountpoint.MountPoint, d driver.CompositeDriver) (controller.Controller, error) {
	if c, ok := i.Lookup(mp); ok {
		i.metrics.observeLookup(ResultHit, i.Size())
		return c, nil
	}

	ctx, span := telemetry.StartManagerSpan(ctx, telemetry.SpanManagerLookup,
		telemetry.MountPoint(mp.String()), telemetry.Scheme(mp.Scheme()), telemetry.Depth(mp.Depth()))
	defer span.End()

	c, err := i.Decorating.Controller(ctx, mp, d)
	if err != nil {
		telemetry.RecordError(ctx, err)
		i.metrics.observeLookup(ResultError, i.Size())
		return nil, err
	}
	i.metrics.observeLookup(ResultCreated, i.Size())
	return c, nil
}

func (i *Instrumented) Sync(ctx context.Context, opts controller.SyncOptions) error {
	ctx, span := telemetry.StartManagerSpan(ctx, telemetry.SpanManagerSync,
		telemetry.Unmount(opts.Unmount), telemetry.Force(opts.Force), telemetry.Entries(i.Size()))
	defer span.End()

	start := time.Now()
	err := i.Decorating.Sync(ctx, opts)
	i.metrics.observeSync(err, time.Since(start), i.Size())
	telemetry.RecordError(ctx, err)
	return err
}
