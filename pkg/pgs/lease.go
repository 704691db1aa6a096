package pgs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/nvmeof-gateway/internal/logger"
	"github.com/marmos91/nvmeof-gateway/pkg/gwerrors"
)

// LeaseConfig holds the §4.4.3 change-lease parameters.
type LeaseConfig struct {
	// Duration is how long an acquired lease is valid before a crashed
	// holder's lease is reclaimable by the next acquirer. Default 60s.
	Duration time.Duration

	// Retries bounds acquisition attempts. Default 15.
	Retries int

	// RetrySleep is the backoff between acquisition attempts. Default 5s.
	RetrySleep time.Duration

	// DisableUnlock is a test-only flag that suppresses LeaseRelease.
	// Must never be set in production; logs a warning if it is.
	DisableUnlock bool
}

// DefaultLeaseConfig returns the spec's stated defaults.
func DefaultLeaseConfig() LeaseConfig {
	return LeaseConfig{Duration: 60 * time.Second, Retries: 15, RetrySleep: 5 * time.Second}
}

// leaseState is the lease handle's local state: a plain enum (idle,
// held, stale) set by Acquire and Release.
type leaseState int

const (
	stateIdle leaseState = iota
	stateHeld
	stateStale
)

// Lease is the change-lease handle acquired around every
// caller-initiated (authoritative) write sequence.
type Lease struct {
	store  *Store
	cfg    LeaseConfig
	holder string
	cookie string

	mu    sync.Mutex
	state leaseState
}

// NewLease returns a Lease bound to store, identified by holder (this
// peer's name) and a unique cookie distinguishing lease instances.
func NewLease(store *Store, holder, cookie string, cfg LeaseConfig) *Lease {
	if cfg.Duration == 0 {
		cfg = DefaultLeaseConfig()
	}
	if cfg.DisableUnlock {
		logger.Warn("pgs: lease release is disabled; this must never be set in production")
	}
	return &Lease{store: store, cfg: cfg, holder: holder, cookie: cookie, state: stateIdle}
}

// Acquire attempts to take the exclusive lease, then validates that the
// caller's view of the PGS version matches the stored version. If it
// does not, the lease is released immediately and Acquire returns
// gwerrors.ErrStale so the caller reconciles before retrying, matching
// OmapLock.lock_omap's stale-then-unlock-then-EAGAIN behavior.
func (l *Lease) Acquire(ctx context.Context, expectedVersion uint64) (err error) {
	start := time.Now()
	defer func() {
		if m := l.store.leaseMetrics(); m != nil {
			m.ObserveLeaseAcquire(l.cfg.Retries, time.Since(start), err)
			m.SetLeaseHeld(err == nil)
		}
	}()

	if err = l.store.object.LeaseAcquire(ctx, l.store.name, l.holder, l.cookie, l.cfg.Duration, l.cfg.Retries, l.cfg.RetrySleep); err != nil {
		return err
	}

	l.mu.Lock()
	l.state = stateHeld
	l.mu.Unlock()

	_, version, err := l.store.GetState(ctx)
	if err != nil {
		_ = l.Release(ctx)
		return err
	}
	if version != expectedVersion {
		_ = l.Release(ctx)
		l.mu.Lock()
		l.state = stateStale
		l.mu.Unlock()
		err = fmt.Errorf("%w: pgs version %d != expected %d at lease acquisition", gwerrors.ErrStale, version, expectedVersion)
		return err
	}
	return nil
}

// Release gives up the lease, unless the test-only DisableUnlock flag
// is set.
func (l *Lease) Release(ctx context.Context) error {
	l.mu.Lock()
	l.state = stateIdle
	disabled := l.cfg.DisableUnlock
	l.mu.Unlock()

	if m := l.store.leaseMetrics(); m != nil {
		m.SetLeaseHeld(false)
	}

	if disabled {
		return nil
	}
	return l.store.object.LeaseRelease(ctx, l.store.name, l.cookie)
}

// Held reports whether this handle currently believes it holds the
// lease. It is advisory only — the authoritative check is always the
// PGS CAS on the next write.
func (l *Lease) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == stateHeld
}
