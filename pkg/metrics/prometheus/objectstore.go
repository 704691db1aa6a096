package prometheus

import (
	"time"

	"github.com/marmos91/nvmeof-gateway/pkg/metrics"
	"github.com/marmos91/nvmeof-gateway/pkg/objectstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func init() {
	metrics.RegisterObjectStoreMetricsConstructor(NewObjectStoreMetrics)
}

// objectStoreMetrics is the Prometheus implementation of objectstore.Metrics.
type objectStoreMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	casAttemptsTotal  *prometheus.CounterVec
	casRetriesTotal   *prometheus.CounterVec
}

// NewObjectStoreMetrics creates a new Prometheus-backed
// objectstore.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewObjectStoreMetrics() objectstore.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &objectStoreMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nvmeof_objectstore_operations_total",
				Help: "Total number of S3 operations by operation type and status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "nvmeof_objectstore_operation_duration_milliseconds",
				Help: "Duration of S3 operations in milliseconds",
				Buckets: []float64{
					10, 50, 100, 500, 1000, 5000, 10000,
				},
			},
			[]string{"operation"},
		),
		casAttemptsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nvmeof_objectstore_cas_attempts_total",
				Help: "Total number of WriteCAS/RemoveCAS attempts by operation and status",
			},
			[]string{"operation", "status"},
		),
		casRetriesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nvmeof_objectstore_cas_retries_total",
				Help: "Total number of CAS attempts that followed a prior stale-version error",
			},
			[]string{"operation"},
		),
	}
}

func (m *objectStoreMetrics) ObserveOperation(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds() * 1000)
}

func (m *objectStoreMetrics) ObserveCASAttempt(operation string, retry bool, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.casAttemptsTotal.WithLabelValues(operation, status).Inc()
	if retry {
		m.casRetriesTotal.WithLabelValues(operation).Inc()
	}
}
