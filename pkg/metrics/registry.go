// Package metrics is the gateway's Prometheus indirection layer: each
// domain package (objectstore, pgs, reconciler, discovery, supervisor)
// declares its own narrow metrics interface, and this package supplies
// a nil-safe constructor plus wrapper functions per interface. The
// actual Prometheus collectors live in pkg/metrics/prometheus, wired in
// through package-level constructor variables; this package itself only
// owns the shared *prometheus.Registry.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu       sync.Mutex
	registry *prometheus.Registry
	enabled  bool
)

// InitRegistry creates the Prometheus registry the gateway's metrics
// collectors register against. Call once at startup before any
// component is constructed, so NewXMetrics calls below see IsEnabled
// return true. Passing enabled=false leaves the registry nil and every
// NewXMetrics constructor returns nil, giving zero-overhead collectors.
func InitRegistry(enabled_ bool) *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()

	enabled = enabled_
	if !enabled {
		registry = nil
		return nil
	}

	registry = prometheus.NewRegistry()
	registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return registry
}

// IsEnabled reports whether InitRegistry was last called with enabled=true.
func IsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// GetRegistry returns the active Prometheus registry, or nil if metrics
// are disabled.
func GetRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	return registry
}
