package pgs

import "time"

// Metrics is the set of observations a Store and its Lease report.
// Implementations must tolerate being called on a nil receiver exactly
// as the Store itself tolerates a nil Metrics field.
type Metrics interface {
	// ObserveWrite records one AddKey/RemoveKey call. A gwerrors.ErrStale
	// result means the caller's expectedVersion was out of date and it
	// must reconcile and retry.
	ObserveWrite(operation string, duration time.Duration, err error)

	// ObserveLeaseAcquire records one Lease.Acquire call. attempts is the
	// configured retry budget (cfg.Retries), not the number of attempts
	// the call used.
	ObserveLeaseAcquire(attempts int, duration time.Duration, err error)

	// SetLeaseHeld reports whether this peer currently holds the
	// exclusive change lease.
	SetLeaseHeld(held bool)
}

// SetMetrics installs m as the Store's metrics sink. A Lease created
// from this Store via NewLease shares the same sink. Passing nil
// disables instrumentation.
func (s *Store) SetMetrics(m Metrics) {
	s.metrics = m
}

func (s *Store) observeWrite(operation string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveWrite(operation, time.Since(start), err)
}

func (s *Store) leaseMetrics() Metrics {
	return s.metrics
}
