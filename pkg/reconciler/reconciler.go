// Package reconciler is the State Reconciler (C5): it keeps a peer's
// local target engine consistent with the PGS by diffing the remote
// state against the Local State Cache and dispatching ordered add/remove
// operations in replay mode. It is grounded on the reference
// implementation's GatewayStateHandler.update
// (original_source/control/state.py), including its re-entrant-trigger
// collapse and its remove-then-add handling of changed keys.
package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/nvmeof-gateway/internal/logger"
	"github.com/marmos91/nvmeof-gateway/internal/telemetry"
	"github.com/marmos91/nvmeof-gateway/pkg/localcache"
	"github.com/marmos91/nvmeof-gateway/pkg/pgs"
)

// Handler is the pair of replay-mode callbacks a key prefix dispatches
// to. Add is invoked for keys present in the new state (including the
// "add" half of a changed key); Remove is invoked for keys absent from
// the new state (including the "remove" half of a changed key). For a
// removed key, Remove receives the key's last-known local value; for
// the "remove" half of a changed key it receives the new remote value.
// The Resource Service's Remove handlers build their delete request
// from the key itself and do not use the value.
type Handler struct {
	Add    func(ctx context.Context, key, value string) error
	Remove func(ctx context.Context, key, value string) error
}

// Dispatcher routes a reconcile pass's grouped key sets to the Resource
// Service, in replay mode, via a static prefix→Handler table (§9's
// "dynamic dispatch ... collapses to a tagged union keyed by
// key-prefix").
type Dispatcher struct {
	handlers map[string]Handler
}

// NewDispatcher builds a Dispatcher from a prefix→Handler table.
func NewDispatcher(handlers map[string]Handler) *Dispatcher {
	return &Dispatcher{handlers: handlers}
}

// Diff is the result of comparing a local and remote snapshot: three
// key sets, each still flat (not yet grouped by prefix).
type Diff struct {
	Added   map[string]string
	Removed map[string]string
	Changed map[string]string // new values for keys present on both sides
}

// computeDiff implements §4.5.2 exactly: added = R-L, removed = L-R,
// changed = { k in L∩R : L[k] != R[k] }.
func computeDiff(local, remote map[string]string) Diff {
	d := Diff{Added: map[string]string{}, Removed: map[string]string{}, Changed: map[string]string{}}
	for k, rv := range remote {
		if lv, ok := local[k]; !ok {
			d.Added[k] = rv
		} else if lv != rv {
			d.Changed[k] = rv
		}
	}
	for k, lv := range local {
		if _, ok := remote[k]; !ok {
			d.Removed[k] = lv
		}
	}
	return d
}

func groupByPrefix(keys map[string]string, order []string) map[string]map[string]string {
	grouped := make(map[string]map[string]string, len(order))
	for _, prefix := range order {
		grouped[prefix] = map[string]string{}
	}
	for k, v := range keys {
		for _, prefix := range order {
			if hasPrefix(k, prefix) {
				grouped[prefix][k] = v
				break
			}
		}
	}
	return grouped
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// Reconciler drives the diff-and-dispatch loop described in §4.5.
type Reconciler struct {
	pgsStore   *pgs.Store
	cache      *localcache.Cache
	dispatcher *Dispatcher

	// changeHook is invoked after a successful reconcile with the set of
	// keys that changed (added ∪ removed ∪ changed), so the Discovery
	// Responder can scan for subsystem_/listener_ prefixes and fire
	// asynchronous events (§4.7.5).
	changeHook func(changedKeys map[string]string)

	active  sync.Mutex // TryLock guard; collapses re-entrant triggers (§4.5.1)
	metrics Metrics
}

// New builds a Reconciler bound to the given PGS store, local cache,
// and dispatch table.
func New(pgsStore *pgs.Store, cache *localcache.Cache, dispatcher *Dispatcher) *Reconciler {
	return &Reconciler{pgsStore: pgsStore, cache: cache, dispatcher: dispatcher}
}

// OnChange registers the Discovery Responder's async-event hook.
func (r *Reconciler) OnChange(hook func(changedKeys map[string]string)) {
	r.changeHook = hook
}

// Reconcile runs one reconcile pass. It is safe to call concurrently:
// if a pass is already running, the call is collapsed (logged and
// skipped) rather than queued, matching update_is_active_lock.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	if !r.active.TryLock() {
		logger.Warn("reconciler: reconcile already in progress, collapsing re-entrant trigger")
		if r.metrics != nil {
			r.metrics.ObserveCollapsed()
		}
		return nil
	}
	defer r.active.Unlock()

	start := time.Now()
	ctx, span := telemetry.StartReconcileSpan(ctx, "replay")
	defer span.End()

	remoteKeys, remoteVersion, err := r.pgsStore.GetState(ctx)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return err
	}

	localVersion := r.pgsStore.LocalVersion()
	if remoteVersion <= localVersion {
		return nil
	}

	localSnap := r.cache.Snapshot()
	diff := computeDiff(localSnap.Keys, remoteKeys)

	telemetry.SetAttributes(ctx, telemetry.ReconcileCounts(len(diff.Added), len(diff.Removed), len(diff.Changed))...)
	logger.Info("reconciler: reconcile pass",
		"local_version", localVersion, "remote_version", remoteVersion,
		"added", len(diff.Added), "removed", len(diff.Removed), "changed", len(diff.Changed))

	// Changed keys are removed then re-added, bracketing the unchanged
	// removal/addition ordering, matching the reference's merge of
	// grouped_changed into both grouped_removed and grouped_added.
	removeSet := mergeMaps(diff.Removed, diff.Changed)
	addSet := mergeMaps(diff.Added, diff.Changed)

	r.dispatchGroup(ctx, removeSet, false)
	r.dispatchGroup(ctx, addSet, true)

	r.cache.Replace(remoteKeys, remoteVersion)
	r.pgsStore.SetLocalVersion(remoteVersion)

	if r.metrics != nil {
		r.metrics.ObserveCycle(time.Since(start), len(diff.Added), len(diff.Removed), len(diff.Changed))
	}

	if r.changeHook != nil {
		all := mergeMaps(mergeMaps(diff.Added, diff.Removed), diff.Changed)
		if len(all) > 0 {
			r.changeHook(all)
		}
	}

	return nil
}

// dispatchGroup groups keys by prefix and invokes the dispatcher in the
// appropriate order for adds or removes (§4.5.3). Failures are logged
// and skipped — "the next reconciliation retries from authoritative
// state" (§4.5.4) — so one bad key never blocks the rest of the pass.
func (r *Reconciler) dispatchGroup(ctx context.Context, keys map[string]string, isAdd bool) {
	order := pgs.PrefixOrder
	if !isAdd {
		order = pgs.ReversedPrefixOrder()
	}
	grouped := groupByPrefix(keys, order)

	for _, prefix := range order {
		group := grouped[prefix]
		if len(group) == 0 {
			continue
		}
		handler, ok := r.dispatcher.handlers[prefix]
		if !ok {
			logger.Warn("reconciler: no handler registered for prefix", "prefix", prefix)
			continue
		}
		for key, value := range group {
			var err error
			if isAdd {
				err = handler.Add(ctx, key, value)
			} else {
				err = handler.Remove(ctx, key, value)
			}
			if err != nil {
				logger.Error("reconciler: replay dispatch failed", "key", key, "add", isAdd, "error", err)
				if r.metrics != nil {
					r.metrics.ObserveDispatchError(prefix, isAdd)
				}
			}
		}
	}
}

func mergeMaps(a, b map[string]string) map[string]string {
	out := make(map[string]string, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Run drives the reconcile loop on both a periodic tick and a
// notify-triggered signal (§4.5.1), until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context, tickInterval time.Duration, notify <-chan struct{}) {
	if tickInterval <= 0 {
		tickInterval = 5 * time.Second
	}
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Reconcile(ctx); err != nil {
				logger.Error("reconciler: periodic reconcile failed", "error", err)
			}
		case <-notify:
			if err := r.Reconcile(ctx); err != nil {
				logger.Error("reconciler: notify-triggered reconcile failed", "error", err)
			}
		}
	}
}
