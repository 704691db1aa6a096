package metrics

import (
	"time"

	"github.com/marmos91/nvmeof-gateway/pkg/reconciler"
)

// NewReconcileMetrics creates a new Prometheus-backed
// reconciler.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewReconcileMetrics() reconciler.Metrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusReconcileMetrics()
}

var newPrometheusReconcileMetrics func() reconciler.Metrics

// RegisterReconcileMetricsConstructor registers the Prometheus
// implementation's constructor. Called from
// pkg/metrics/prometheus/reconcile.go's init.
func RegisterReconcileMetricsConstructor(constructor func() reconciler.Metrics) {
	newPrometheusReconcileMetrics = constructor
}

// ObserveCycle records one completed reconcile pass.
func ObserveCycle(m reconciler.Metrics, duration time.Duration, added, removed, changed int) {
	if m != nil {
		m.ObserveCycle(duration, added, removed, changed)
	}
}

// ObserveDispatchError records one failed replay dispatch call.
func ObserveDispatchError(m reconciler.Metrics, prefix string, isAdd bool) {
	if m != nil {
		m.ObserveDispatchError(prefix, isAdd)
	}
}

// ObserveCollapsed records a re-entrant reconcile trigger collapsed.
func ObserveCollapsed(m reconciler.Metrics) {
	if m != nil {
		m.ObserveCollapsed()
	}
}
