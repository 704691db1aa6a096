package prometheus

import (
	"github.com/marmos91/nvmeof-gateway/pkg/metrics"
	"github.com/marmos91/nvmeof-gateway/pkg/supervisor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func init() {
	metrics.RegisterSupervisorMetricsConstructor(NewSupervisorMetrics)
}

// supervisorMetrics is the Prometheus implementation of supervisor.Metrics.
type supervisorMetrics struct {
	pingSuccessTotal       prometheus.Counter
	pingFailureTotal       prometheus.Counter
	consecutivePingFailure prometheus.Gauge
	childExitsTotal        *prometheus.CounterVec
}

// NewSupervisorMetrics creates a new Prometheus-backed
// supervisor.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewSupervisorMetrics() supervisor.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &supervisorMetrics{
		pingSuccessTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "nvmeof_supervisor_ping_success_total",
				Help: "Total number of successful engine liveness probes",
			},
		),
		pingFailureTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "nvmeof_supervisor_ping_failure_total",
				Help: "Total number of failed engine liveness probes",
			},
		),
		consecutivePingFailure: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "nvmeof_supervisor_ping_consecutive_failures",
				Help: "Current consecutive engine liveness probe failure count",
			},
		),
		childExitsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nvmeof_supervisor_child_exits_total",
				Help: "Total number of unexpected managed subprocess exits by process name",
			},
			[]string{"process"},
		),
	}
}

func (m *supervisorMetrics) RecordPingSuccess() {
	if m == nil {
		return
	}
	m.pingSuccessTotal.Inc()
	m.consecutivePingFailure.Set(0)
}

func (m *supervisorMetrics) RecordPingFailure(consecutiveFailures int) {
	if m == nil {
		return
	}
	m.pingFailureTotal.Inc()
	m.consecutivePingFailure.Set(float64(consecutiveFailures))
}

func (m *supervisorMetrics) RecordChildExit(process string) {
	if m == nil {
		return
	}
	m.childExitsTotal.WithLabelValues(process).Inc()
}
