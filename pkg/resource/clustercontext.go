package resource

import (
	"fmt"
	"sort"
	"sync"
)

// clusterContext is one "cluster_context_<anagrp>_<n>" handle: a
// per-peer, non-persisted grouping that batches backing-device I/O
// against the object store, per §4.6.4.
type clusterContext struct {
	name    string
	anaGrp  int
	index   int
	devices map[string]struct{} // backing-device names bound to this context
}

// clusterRegistry is the per-ANA-group set of cluster contexts this
// peer has registered with the engine. Grounded on the reference
// implementation's ClusterContextManager (original_source/control/state.py),
// reimplemented as a capacity-bounded bin-packing allocator.
type clusterRegistry struct {
	mu       sync.Mutex
	capacity int
	byGroup  map[int][]*clusterContext
}

func newClusterRegistry(capacity int) *clusterRegistry {
	return &clusterRegistry{capacity: capacity, byGroup: map[int][]*clusterContext{}}
}

// Acquire returns the cluster context a new backing device in anaGrp
// should bind to, creating one if every existing context for that
// group is at capacity. The caller must then register the returned
// context name with the engine if it is new (isNew is true whenever a
// context is created; after Release drops a context, a later Acquire
// can create one again under the same name).
func (r *clusterRegistry) Acquire(anaGrp int, deviceName string) (contextName string, isNew bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contexts := r.byGroup[anaGrp]
	for _, c := range contexts {
		if len(c.devices) < r.capacity {
			c.devices[deviceName] = struct{}{}
			return c.name, false
		}
	}

	idx := len(contexts)
	c := &clusterContext{
		name:    fmt.Sprintf("cluster_context_%d_%d", anaGrp, idx),
		anaGrp:  anaGrp,
		index:   idx,
		devices: map[string]struct{}{deviceName: {}},
	}
	r.byGroup[anaGrp] = append(contexts, c)
	return c.name, true
}

// Release removes deviceName from its cluster context, returning
// (contextName, unregistered) where unregistered is true if that was
// the context's last device — the caller must then unregister it with
// the engine, per §4.6.4's "deallocation on the last device's removal".
func (r *clusterRegistry) Release(anaGrp int, deviceName string) (contextName string, unregistered bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contexts := r.byGroup[anaGrp]
	for i, c := range contexts {
		if _, ok := c.devices[deviceName]; !ok {
			continue
		}
		delete(c.devices, deviceName)
		if len(c.devices) == 0 {
			r.byGroup[anaGrp] = append(contexts[:i], contexts[i+1:]...)
			return c.name, true
		}
		return c.name, false
	}
	return "", false
}

// Refcount returns the number of live devices bound to anaGrp's
// contexts combined, for the §8 testable property "cluster-context
// refcount equals the number of live backing devices bound to it".
func (r *clusterRegistry) Refcount(anaGrp int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, c := range r.byGroup[anaGrp] {
		total += len(c.devices)
	}
	return total
}

// Snapshot returns a deterministic, sorted view of registered context
// names, for diagnostics and tests.
func (r *clusterRegistry) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var names []string
	for _, contexts := range r.byGroup {
		for _, c := range contexts {
			names = append(names, c.name)
		}
	}
	sort.Strings(names)
	return names
}
