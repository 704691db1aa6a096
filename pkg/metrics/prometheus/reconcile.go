package prometheus

import (
	"time"

	"github.com/marmos91/nvmeof-gateway/pkg/metrics"
	"github.com/marmos91/nvmeof-gateway/pkg/reconciler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func init() {
	metrics.RegisterReconcileMetricsConstructor(NewReconcileMetrics)
}

// reconcileMetrics is the Prometheus implementation of reconciler.Metrics.
type reconcileMetrics struct {
	cyclesTotal      prometheus.Counter
	cycleDuration    prometheus.Histogram
	keysAdded        prometheus.Histogram
	keysRemoved      prometheus.Histogram
	keysChanged      prometheus.Histogram
	dispatchErrors   *prometheus.CounterVec
	collapsedTotal   prometheus.Counter
}

// NewReconcileMetrics creates a new Prometheus-backed
// reconciler.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewReconcileMetrics() reconciler.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &reconcileMetrics{
		cyclesTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "nvmeof_reconcile_cycles_total",
				Help: "Total number of completed reconcile passes",
			},
		),
		cycleDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "nvmeof_reconcile_cycle_duration_milliseconds",
				Help:    "Duration of a reconcile pass in milliseconds",
				Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000},
			},
		),
		keysAdded: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "nvmeof_reconcile_keys_added",
				Help:    "Number of added keys dispatched per reconcile pass",
				Buckets: []float64{0, 1, 5, 10, 50, 100},
			},
		),
		keysRemoved: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "nvmeof_reconcile_keys_removed",
				Help:    "Number of removed keys dispatched per reconcile pass",
				Buckets: []float64{0, 1, 5, 10, 50, 100},
			},
		),
		keysChanged: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "nvmeof_reconcile_keys_changed",
				Help:    "Number of changed keys dispatched per reconcile pass",
				Buckets: []float64{0, 1, 5, 10, 50, 100},
			},
		),
		dispatchErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nvmeof_reconcile_dispatch_errors_total",
				Help: "Total number of failed replay dispatch calls by key prefix and direction",
			},
			[]string{"prefix", "direction"},
		),
		collapsedTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "nvmeof_reconcile_collapsed_triggers_total",
				Help: "Total number of re-entrant reconcile triggers collapsed by the active lock",
			},
		),
	}
}

func (m *reconcileMetrics) ObserveCycle(duration time.Duration, added, removed, changed int) {
	if m == nil {
		return
	}
	m.cyclesTotal.Inc()
	m.cycleDuration.Observe(duration.Seconds() * 1000)
	m.keysAdded.Observe(float64(added))
	m.keysRemoved.Observe(float64(removed))
	m.keysChanged.Observe(float64(changed))
}

func (m *reconcileMetrics) ObserveDispatchError(prefix string, isAdd bool) {
	if m == nil {
		return
	}
	direction := "remove"
	if isAdd {
		direction = "add"
	}
	m.dispatchErrors.WithLabelValues(prefix, direction).Inc()
}

func (m *reconcileMetrics) ObserveCollapsed() {
	if m == nil {
		return
	}
	m.collapsedTotal.Inc()
}
