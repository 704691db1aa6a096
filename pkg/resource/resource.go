// Package resource is the Resource Service (C6): the authoritative
// mutator of subsystems, namespaces, hosts, and listeners. It drives
// the target engine over the Engine RPC Client, persists accepted
// mutations to the PGS, and replays PGS state when invoked by the
// Reconciler. It is grounded on the reference implementation's
// GatewayService (original_source/control/server.py and its
// per-resource RPC handler modules), reimplemented as Go methods on a
// single struct guarded by an RPC lock, per §9's "global mutable
// registries become fields of the Resource Service struct" note.
package resource

import (
	"context"
	"fmt"
	"sync"

	"github.com/marmos91/nvmeof-gateway/internal/logger"
	"github.com/marmos91/nvmeof-gateway/internal/telemetry"
	"github.com/marmos91/nvmeof-gateway/pkg/gwerrors"
	"github.com/marmos91/nvmeof-gateway/pkg/pgs"
	"github.com/marmos91/nvmeof-gateway/pkg/rpcclient"
)

// Mode selects between authoritative (external request, takes the
// change lease and publishes) and replay (Reconciler-driven, skips
// both) operation, per §4.6.1.
type Mode int

const (
	ModeReplay Mode = iota
	ModeAuthoritative
)

func (m Mode) String() string {
	if m == ModeAuthoritative {
		return "authoritative"
	}
	return "replay"
}

// engineCaller is the subset of *rpcclient.Client the Resource Service
// drives, narrowed to an interface so tests can substitute a fake
// engine instead of dialing the real RPC socket.
type engineCaller interface {
	Call(ctx context.Context, method string, params, out any) error
}

// casStore is the subset of *pgs.Store the Resource Service drives.
type casStore interface {
	LocalVersion() uint64
	AddKey(ctx context.Context, expectedVersion uint64, key, value string) (uint64, error)
	RemoveKey(ctx context.Context, expectedVersion uint64, key string) (uint64, error)
}

// changeLease is the subset of *pgs.Lease the Resource Service drives.
type changeLease interface {
	Acquire(ctx context.Context, expectedVersion uint64) error
	Release(ctx context.Context) error
}

// Config holds the Resource Service's fixed parameters.
type Config struct {
	// PeerName is this gateway's name, used for listener gateway_name
	// matching and ANA-ownership comparisons.
	PeerName string

	// GroupID is this peer's position within its group, used to
	// compute its controller-id block: [GroupID*2040+1 .. +2040].
	GroupID int

	// BDevsPerCluster bounds how many backing devices one cluster
	// context may hold before a new one is created (§4.6.4). Default 32.
	BDevsPerCluster int

	// OmapFileUpdateReloads bounds stale-CAS retries before surfacing
	// ErrStale to the caller. Default 10.
	OmapFileUpdateReloads int
}

// DefaultConfig returns the spec's stated defaults for the fields a
// caller commonly leaves zero.
func DefaultConfig(peerName string, groupID int) Config {
	return Config{
		PeerName:              peerName,
		GroupID:               groupID,
		BDevsPerCluster:       32,
		OmapFileUpdateReloads: 10,
	}
}

// Service is the Resource Service. One instance exists per peer
// process; its registries mirror the PGS but are served from memory
// under rpcMu for every authoritative and replay-mode call.
type Service struct {
	cfg    Config
	engine engineCaller
	store  casStore
	lease  changeLease

	// reconcileFn lets a stale-CAS retry trigger an out-of-band
	// reconcile before the next attempt, without pkg/resource importing
	// pkg/reconciler (that dependency runs the other way: the
	// Reconciler's dispatch table calls into this Service).
	reconcileFn func(ctx context.Context) error

	// rpcMu is the RPC lock of §5: it serializes all Engine-RPC traffic
	// on this peer and is always acquired before the change lease.
	rpcMu sync.Mutex

	subsystems map[string]*pgs.Subsystem            // by NQN
	namespaces map[string]map[uint32]*pgs.Namespace  // NQN -> NSID
	qos        map[string]map[uint32]*pgs.NamespaceQoS
	hosts      map[string]map[string]*pgs.Host // NQN -> host NQN (or "*")
	listeners  map[string]map[string]*pgs.Listener // NQN -> listener key suffix

	// anaGroupOwner records which peer currently owns each ANA group's
	// write mapping, for namespace_change_load_balancing_group's
	// ownership check. Populated from configuration at startup (it is
	// not itself part of the PGS data model).
	anaGroupOwner map[int]string

	clusters *clusterRegistry
}

// BindEngine sets the Resource Service's engine RPC client after
// construction, for the startup sequence where the Supervisor's
// subprocess (and its RPC socket) only exist after the Service itself
// has been wired so the Reconciler can run a replay pass ahead of the
// engine coming up.
func (s *Service) BindEngine(engine *rpcclient.Client) {
	s.rpcMu.Lock()
	defer s.rpcMu.Unlock()
	s.engine = engine
}

// New builds a Resource Service bound to the given engine RPC client,
// PGS store, and change lease.
func New(cfg Config, engine *rpcclient.Client, store *pgs.Store, lease *pgs.Lease) *Service {
	if cfg.BDevsPerCluster <= 0 {
		cfg.BDevsPerCluster = 32
	}
	if cfg.OmapFileUpdateReloads <= 0 {
		cfg.OmapFileUpdateReloads = 10
	}
	return &Service{
		cfg:           cfg,
		engine:        engine,
		store:         store,
		lease:         lease,
		subsystems:    map[string]*pgs.Subsystem{},
		namespaces:    map[string]map[uint32]*pgs.Namespace{},
		qos:           map[string]map[uint32]*pgs.NamespaceQoS{},
		hosts:         map[string]map[string]*pgs.Host{},
		listeners:     map[string]map[string]*pgs.Listener{},
		anaGroupOwner: map[int]string{},
		clusters:      newClusterRegistry(cfg.BDevsPerCluster),
	}
}

// SetReconcileFunc wires the Reconciler's entry point for out-of-band
// retries after a stale CAS. Must be called once during startup wiring.
func (s *Service) SetReconcileFunc(fn func(ctx context.Context) error) {
	s.reconcileFn = fn
}

// SetANAGroupOwner records which peer currently owns an ANA group's
// write mapping, used by namespace_change_load_balancing_group's
// ownership check and create_listener's per-group ANA state push.
func (s *Service) SetANAGroupOwner(anaGroupID int, peerName string) {
	s.rpcMu.Lock()
	defer s.rpcMu.Unlock()
	s.anaGroupOwner[anaGroupID] = peerName
}

// cntlidRange returns this peer's allocated controller-id block, per
// §4.6.2: [group_id*2040+1 .. +2040].
func (s *Service) cntlidRange() (min, max int) {
	min = s.cfg.GroupID*2040 + 1
	max = min + 2039
	return
}

// authoritativeWrite runs fn under the RPC lock and, for
// ModeAuthoritative, under the change lease too, retrying on a PGS
// stale-CAS up to cfg.OmapFileUpdateReloads times — reconciling between
// attempts via reconcileFn — per the lock order fixed in §5 and the
// stale-retry policy of §7. fn performs the engine mutation and, on
// success, returns the PGS key/value delta to publish (may be nil for
// a pure replay no-op or a read-only call via a different path).
type mutation struct {
	key      string
	value    string
	remove   bool
	rollback func(ctx context.Context)
}

func (s *Service) authoritativeWrite(ctx context.Context, mode Mode, op string, fn func(ctx context.Context) (*mutation, error)) error {
	s.rpcMu.Lock()
	defer s.rpcMu.Unlock()

	ctx, span := telemetry.StartResourceSpan(ctx, op)
	defer span.End()

	if mode == ModeReplay {
		if _, err := fn(ctx); err != nil {
			logger.Error("resource: replay operation failed, continuing", logger.Op(op), logger.Err(err))
		}
		return nil
	}

	attempts := s.cfg.OmapFileUpdateReloads
	var lastErr error
	for attempt := 0; attempt <= attempts; attempt++ {
		localVer := s.store.LocalVersion()
		if err := s.lease.Acquire(ctx, localVer); err != nil {
			if attempt < attempts && isStale(err) {
				lastErr = err
				s.reconcileBeforeRetry(ctx)
				continue
			}
			return err
		}

		m, err := fn(ctx)
		if err != nil {
			_ = s.lease.Release(ctx)
			return err
		}
		if m == nil {
			_ = s.lease.Release(ctx)
			return nil
		}

		// fn may have made its own interim PGS writes ahead of this call
		// (e.g. the remove half of a replace) — re-read the version here
		// rather than trusting the snapshot taken before fn ran, or this
		// CAS is stale by construction on every single call, not just
		// under real contention.
		casVer := s.store.LocalVersion()
		var casErr error
		if m.remove {
			_, casErr = s.store.RemoveKey(ctx, casVer, m.key)
		} else {
			_, casErr = s.store.AddKey(ctx, casVer, m.key, m.value)
		}
		_ = s.lease.Release(ctx)

		if casErr == nil {
			return nil
		}
		if !isStale(casErr) || attempt == attempts {
			logger.Error("resource: PGS publish failed, rolling back engine mutation",
				logger.Op(op), logger.PGSKey(m.key), "remove", m.remove, logger.Err(casErr))
			if m.rollback != nil {
				m.rollback(ctx)
			}
			return casErr
		}
		lastErr = casErr
		s.reconcileBeforeRetry(ctx)
	}
	return fmt.Errorf("%w: %s exhausted %d stale-CAS retries: %w", gwerrors.ErrStale, op, attempts, lastErr)
}

func (s *Service) reconcileBeforeRetry(ctx context.Context) {
	if s.reconcileFn == nil {
		return
	}
	if err := s.reconcileFn(ctx); err != nil {
		logger.Warn("resource: reconcile-before-retry failed", logger.Err(err))
	}
}

func isStale(err error) bool {
	return gwerrors.ClassifyKind(err) == gwerrors.KindStale
}
