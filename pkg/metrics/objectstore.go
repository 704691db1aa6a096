package metrics

import (
	"time"

	"github.com/marmos91/nvmeof-gateway/pkg/objectstore"
)

// NewObjectStoreMetrics creates a new Prometheus-backed
// objectstore.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewObjectStoreMetrics() objectstore.Metrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusObjectStoreMetrics()
}

// newPrometheusObjectStoreMetrics is set by pkg/metrics/prometheus's
// init(), avoiding an import cycle between the two packages.
var newPrometheusObjectStoreMetrics func() objectstore.Metrics

// RegisterObjectStoreMetricsConstructor registers the Prometheus
// implementation's constructor. Called from
// pkg/metrics/prometheus/objectstore.go's init.
func RegisterObjectStoreMetricsConstructor(constructor func() objectstore.Metrics) {
	newPrometheusObjectStoreMetrics = constructor
}

// ObserveOperation records one S3 operation's duration and outcome.
func ObserveOperation(m objectstore.Metrics, operation string, duration time.Duration, err error) {
	if m != nil {
		m.ObserveOperation(operation, duration, err)
	}
}

// ObserveCASAttempt records one WriteCAS/RemoveCAS attempt.
func ObserveCASAttempt(m objectstore.Metrics, operation string, retry bool, err error) {
	if m != nil {
		m.ObserveCASAttempt(operation, retry, err)
	}
}
