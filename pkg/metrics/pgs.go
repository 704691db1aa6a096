package metrics

import (
	"time"

	"github.com/marmos91/nvmeof-gateway/pkg/pgs"
)

// NewPGSMetrics creates a new Prometheus-backed pgs.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewPGSMetrics() pgs.Metrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusPGSMetrics()
}

var newPrometheusPGSMetrics func() pgs.Metrics

// RegisterPGSMetricsConstructor registers the Prometheus implementation's
// constructor. Called from pkg/metrics/prometheus/pgs.go's init.
func RegisterPGSMetricsConstructor(constructor func() pgs.Metrics) {
	newPrometheusPGSMetrics = constructor
}

// ObserveWrite records one AddKey/RemoveKey call.
func ObserveWrite(m pgs.Metrics, operation string, duration time.Duration, err error) {
	if m != nil {
		m.ObserveWrite(operation, duration, err)
	}
}

// ObserveLeaseAcquire records one Lease.Acquire call.
func ObserveLeaseAcquire(m pgs.Metrics, attempts int, duration time.Duration, err error) {
	if m != nil {
		m.ObserveLeaseAcquire(attempts, duration, err)
	}
}

// SetLeaseHeld reports whether this peer currently holds the lease.
func SetLeaseHeld(m pgs.Metrics, held bool) {
	if m != nil {
		m.SetLeaseHeld(held)
	}
}
