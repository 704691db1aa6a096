package metrics

import "github.com/marmos91/nvmeof-gateway/pkg/discovery"

// NewDiscoveryMetrics creates a new Prometheus-backed discovery.Metrics
// instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewDiscoveryMetrics() discovery.Metrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusDiscoveryMetrics()
}

var newPrometheusDiscoveryMetrics func() discovery.Metrics

// RegisterDiscoveryMetricsConstructor registers the Prometheus
// implementation's constructor. Called from
// pkg/metrics/prometheus/discovery.go's init.
func RegisterDiscoveryMetricsConstructor(constructor func() discovery.Metrics) {
	newPrometheusDiscoveryMetrics = constructor
}
