package prometheus

import (
	"time"

	"github.com/marmos91/nvmeof-gateway/pkg/metrics"
	"github.com/marmos91/nvmeof-gateway/pkg/pgs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func init() {
	metrics.RegisterPGSMetricsConstructor(NewPGSMetrics)
}

// pgsMetrics is the Prometheus implementation of pgs.Metrics.
type pgsMetrics struct {
	writesTotal         *prometheus.CounterVec
	writeDuration       *prometheus.HistogramVec
	leaseAcquiresTotal  *prometheus.CounterVec
	leaseAcquireAttempt prometheus.Histogram
	leaseAcquireWait    prometheus.Histogram
	leaseHeld           prometheus.Gauge
}

// NewPGSMetrics creates a new Prometheus-backed pgs.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewPGSMetrics() pgs.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &pgsMetrics{
		writesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nvmeof_pgs_writes_total",
				Help: "Total number of AddKey/RemoveKey calls by operation and status",
			},
			[]string{"operation", "status"},
		),
		writeDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nvmeof_pgs_write_duration_milliseconds",
				Help:    "Duration of AddKey/RemoveKey calls in milliseconds",
				Buckets: []float64{10, 50, 100, 500, 1000, 5000},
			},
			[]string{"operation"},
		),
		leaseAcquiresTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nvmeof_pgs_lease_acquires_total",
				Help: "Total number of change-lease acquisition attempts by status",
			},
			[]string{"status"},
		),
		leaseAcquireAttempt: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "nvmeof_pgs_lease_acquire_configured_retries",
				Help:    "Configured retry budget observed on each lease acquisition",
				Buckets: []float64{1, 5, 10, 15, 30},
			},
		),
		leaseAcquireWait: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "nvmeof_pgs_lease_acquire_duration_milliseconds",
				Help:    "Duration of lease acquisition in milliseconds",
				Buckets: []float64{10, 50, 100, 500, 1000, 5000, 30000, 75000},
			},
		),
		leaseHeld: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "nvmeof_pgs_lease_held",
				Help: "1 if this peer currently holds the change lease, 0 otherwise",
			},
		),
	}
}

func (m *pgsMetrics) ObserveWrite(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.writesTotal.WithLabelValues(operation, status).Inc()
	m.writeDuration.WithLabelValues(operation).Observe(duration.Seconds() * 1000)
}

func (m *pgsMetrics) ObserveLeaseAcquire(attempts int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.leaseAcquiresTotal.WithLabelValues(status).Inc()
	m.leaseAcquireAttempt.Observe(float64(attempts))
	m.leaseAcquireWait.Observe(duration.Seconds() * 1000)
}

func (m *pgsMetrics) SetLeaseHeld(held bool) {
	if m == nil {
		return
	}
	if held {
		m.leaseHeld.Set(1)
	} else {
		m.leaseHeld.Set(0)
	}
}
