package discovery

// Metrics is the set of observations a Responder reports about its
// accepted sessions. Implementations must tolerate a nil receiver
// exactly as the Responder itself tolerates a nil Metrics field.
type Metrics interface {
	// RecordSessionOpened/RecordSessionClosed track concurrent session
	// count; callers pair one RecordSessionOpened with exactly one
	// RecordSessionClosed per accepted connection.
	RecordSessionOpened()
	RecordSessionClosed()

	// RecordRejected counts a connection refused because MaxConnections
	// was already reached.
	RecordRejected()

	// RecordIdleEvicted counts a session closed by the idle scanner.
	RecordIdleEvicted()

	// RecordLogPageChangeEvent counts one async log-page-change CQE sent
	// to a parked session by NotifyChange.
	RecordLogPageChangeEvent()
}

// SetMetrics installs m as the Responder's metrics sink. Passing nil
// disables instrumentation.
func (r *Responder) SetMetrics(m Metrics) {
	r.metrics = m
}
