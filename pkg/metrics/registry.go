// Package metrics owns the Prometheus registry of the arcfs process and the
// HTTP server exposing it.
//
// Metrics are opt-in. Until InitRegistry is called GetRegistry returns nil,
// and components built with a nil registry record nothing:
//
//	metrics.InitRegistry()
//	lockMetrics := lock.NewMetrics(metrics.GetRegistry())
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	mu       sync.RWMutex
	registry *prometheus.Registry
)

// InitRegistry creates the process registry with the Go runtime and process
// collectors. Calling it again has no effect.
func InitRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()

	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return registry
}

// GetRegistry returns the process registry, or nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return registry
}

// IsEnabled reports whether InitRegistry was called.
func IsEnabled() bool {
	return GetRegistry() != nil
}

// reset drops the registry. Tests only.
func reset() {
	mu.Lock()
	defer mu.Unlock()
	registry = nil
}
