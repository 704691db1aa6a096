package metrics

import "github.com/marmos91/nvmeof-gateway/pkg/supervisor"

// NewSupervisorMetrics creates a new Prometheus-backed
// supervisor.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewSupervisorMetrics() supervisor.Metrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusSupervisorMetrics()
}

var newPrometheusSupervisorMetrics func() supervisor.Metrics

// RegisterSupervisorMetricsConstructor registers the Prometheus
// implementation's constructor. Called from
// pkg/metrics/prometheus/supervisor.go's init.
func RegisterSupervisorMetricsConstructor(constructor func() supervisor.Metrics) {
	newPrometheusSupervisorMetrics = constructor
}
