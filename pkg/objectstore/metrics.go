package objectstore

import "time"

// Metrics is the narrow set of observations the Store reports about
// its S3 operations and CAS write protocol. Implementations must treat
// every method as safe to call with a nil receiver, matching how the
// Store itself treats a nil Metrics field.
type Metrics interface {
	// ObserveOperation records one S3 call (GetObject, PutObject,
	// CopyObject, ...) with its outcome and duration.
	ObserveOperation(operation string, duration time.Duration, err error)

	// ObserveCASAttempt records one WriteCAS/RemoveCAS attempt. retry is
	// true when the attempt followed a prior ErrStale on the same call.
	ObserveCASAttempt(operation string, retry bool, err error)
}

// SetMetrics installs m as the Store's metrics sink. Passing nil
// disables instrumentation with zero overhead.
func (s *Store) SetMetrics(m Metrics) {
	s.metrics = m
}

func (s *Store) observeOperation(operation string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveOperation(operation, time.Since(start), err)
}

func (s *Store) observeCASAttempt(operation string, retry bool, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveCASAttempt(operation, retry, err)
}
