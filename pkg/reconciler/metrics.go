package reconciler

import "time"

// Metrics is the set of observations one Reconcile pass reports.
// Implementations must tolerate a nil receiver exactly as the
// Reconciler itself tolerates a nil Metrics field.
type Metrics interface {
	// ObserveCycle records one completed reconcile pass: its duration
	// and the size of each of the three diff sets.
	ObserveCycle(duration time.Duration, added, removed, changed int)

	// ObserveDispatchError records one failed Handler.Add/Remove call,
	// by key prefix, so a noisy prefix stands out in the failure count.
	ObserveDispatchError(prefix string, isAdd bool)

	// ObserveCollapsed records a re-entrant trigger collapsed because a
	// pass was already running (§4.5.1's active lock).
	ObserveCollapsed()
}

// SetMetrics installs m as the Reconciler's metrics sink. Passing nil
// disables instrumentation.
func (r *Reconciler) SetMetrics(m Metrics) {
	r.metrics = m
}
