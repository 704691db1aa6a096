package prometheus

import (
	"github.com/marmos91/nvmeof-gateway/pkg/discovery"
	"github.com/marmos91/nvmeof-gateway/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func init() {
	metrics.RegisterDiscoveryMetricsConstructor(NewDiscoveryMetrics)
}

// discoveryMetrics is the Prometheus implementation of discovery.Metrics.
type discoveryMetrics struct {
	activeSessions    prometheus.Gauge
	sessionsOpened    prometheus.Counter
	sessionsClosed    prometheus.Counter
	rejectedTotal     prometheus.Counter
	idleEvictedTotal  prometheus.Counter
	logPageChangeCQE  prometheus.Counter
}

// NewDiscoveryMetrics creates a new Prometheus-backed discovery.Metrics
// instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewDiscoveryMetrics() discovery.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &discoveryMetrics{
		activeSessions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "nvmeof_discovery_active_sessions",
				Help: "Current number of accepted discovery sessions",
			},
		),
		sessionsOpened: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "nvmeof_discovery_sessions_opened_total",
				Help: "Total number of discovery sessions accepted",
			},
		),
		sessionsClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "nvmeof_discovery_sessions_closed_total",
				Help: "Total number of discovery sessions closed",
			},
		),
		rejectedTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "nvmeof_discovery_connections_rejected_total",
				Help: "Total number of connections refused because MaxConnections was reached",
			},
		),
		idleEvictedTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "nvmeof_discovery_sessions_idle_evicted_total",
				Help: "Total number of sessions closed by the idle scanner",
			},
		),
		logPageChangeCQE: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "nvmeof_discovery_log_page_change_events_total",
				Help: "Total number of log-page-change async events sent to parked sessions",
			},
		),
	}
}

func (m *discoveryMetrics) RecordSessionOpened() {
	if m == nil {
		return
	}
	m.sessionsOpened.Inc()
	m.activeSessions.Inc()
}

func (m *discoveryMetrics) RecordSessionClosed() {
	if m == nil {
		return
	}
	m.sessionsClosed.Inc()
	m.activeSessions.Dec()
}

func (m *discoveryMetrics) RecordRejected() {
	if m == nil {
		return
	}
	m.rejectedTotal.Inc()
}

func (m *discoveryMetrics) RecordIdleEvicted() {
	if m == nil {
		return
	}
	m.idleEvictedTotal.Inc()
}

func (m *discoveryMetrics) RecordLogPageChangeEvent() {
	if m == nil {
		return
	}
	m.logPageChangeCQE.Inc()
}
