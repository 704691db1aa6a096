// Package gwerrors defines the sentinel error kinds shared across the
// gateway control plane, so every component reports failures the same way
// instead of inventing its own string-matched errors.
package gwerrors

import "errors"

// ============================================================================
// Standard control-plane errors
// ============================================================================

// These sentinels let callers distinguish failure kinds with errors.Is,
// and let the Resource Service map them onto the errno values its gRPC
// surface reports in `status`.

var (
	// ErrValidation indicates the request failed structural or semantic
	// validation (bad NQN, invalid address, misaligned size, illegal
	// field combination).
	//
	// errno mapping: EINVAL. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates the referenced subsystem, namespace, host or
	// listener does not exist.
	//
	// errno mapping: ENODEV / ENOENT.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a duplicate NQN, serial, UUID, address, or an
	// already-existing backing image of a different size.
	//
	// errno mapping: EEXIST.
	ErrConflict = errors.New("conflict")

	// ErrBusy indicates a deletion was attempted against live dependents
	// without force, or lease/retry contention was exceeded.
	//
	// errno mapping: EBUSY.
	ErrBusy = errors.New("busy")

	// ErrStale indicates a PGS compare-and-set observed a version
	// mismatch. The operation runner reconciles and retries up to the
	// configured reload limit before surfacing this to the caller.
	//
	// errno mapping: none fixed; surfaced as a stale-state error after
	// retries are exhausted.
	ErrStale = errors.New("stale version")

	// ErrTransport indicates an engine RPC timeout or socket disconnect.
	//
	// errno mapping: ETIMEDOUT / EINVAL.
	ErrTransport = errors.New("transport error")

	// ErrFatal indicates an unrecoverable condition — engine crash,
	// monitor-client crash, or a corrupt legacy PGS record — that the
	// Supervisor must treat as a reason to terminate the process.
	//
	// errno mapping: none; causes process exit with a non-zero code.
	ErrFatal = errors.New("fatal")

	// ErrRedirect indicates the operation must be retried against a
	// different peer (e.g. namespace_change_load_balancing_group issued
	// to a peer that does not own the current ANA mapping).
	ErrRedirect = errors.New("redirect to owning peer")
)

// Kind classifies an error for logging and errno translation.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindBusy
	KindStale
	KindTransport
	KindFatal
	KindRedirect
)

// ClassifyKind returns the Kind of a control-plane error, matching via
// errors.Is so wrapped errors are classified the same as their sentinel.
func ClassifyKind(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrBusy):
		return KindBusy
	case errors.Is(err, ErrStale):
		return KindStale
	case errors.Is(err, ErrTransport):
		return KindTransport
	case errors.Is(err, ErrFatal):
		return KindFatal
	case errors.Is(err, ErrRedirect):
		return KindRedirect
	default:
		return KindUnknown
	}
}

// Errno returns the POSIX errno value (as a negative-free int, matching
// the gRPC surface's `status` field convention) for an error's Kind.
// Unknown kinds return EIO.
func Errno(err error) int {
	switch ClassifyKind(err) {
	case KindValidation:
		return 22 // EINVAL
	case KindNotFound:
		return 2 // ENOENT
	case KindConflict:
		return 17 // EEXIST
	case KindBusy:
		return 16 // EBUSY
	case KindTransport:
		return 110 // ETIMEDOUT
	default:
		return 5 // EIO
	}
}
