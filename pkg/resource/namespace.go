package resource

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/marmos91/nvmeof-gateway/internal/logger"
	"github.com/marmos91/nvmeof-gateway/pkg/gwerrors"
	"github.com/marmos91/nvmeof-gateway/pkg/pgs"
)

// NamespaceAddRequest is the namespace_add contract of §4.6.2.
type NamespaceAddRequest struct {
	NQN         string `mapstructure:"nqn"`
	NSID        uint32 `mapstructure:"nsid"` // 0 means auto-allocate
	UUID        string `mapstructure:"uuid"` // "" means auto-generate
	Pool        string `mapstructure:"rbd_pool_name"`
	Image       string `mapstructure:"rbd_image_name"`
	BlockSize   int    `mapstructure:"block_size"`
	SizeMiB     int64  `mapstructure:"size_mib"`
	CreateImage bool   `mapstructure:"create_image"`
	ANAGroupID  int    `mapstructure:"anagrpid"`
	Force       bool   `mapstructure:"force"`
}

// NamespaceAdd creates (idempotently, if CreateImage) the backing
// image, allocates a backing device through the engine bound to a
// per-ANA cluster context, and assigns the namespace.
func (s *Service) NamespaceAdd(ctx context.Context, mode Mode, req NamespaceAddRequest) (pgs.Namespace, error) {
	if err := validateNQN(req.NQN); err != nil {
		return pgs.Namespace{}, err
	}
	if req.BlockSize == 0 {
		req.BlockSize = 512
	}
	if err := validateSizeAlignment(req.SizeMiB); err != nil {
		return pgs.Namespace{}, err
	}

	var created pgs.Namespace
	err := s.authoritativeWrite(ctx, mode, "namespace_add", func(ctx context.Context) (*mutation, error) {
		sub, ok := s.subsystems[req.NQN]
		if !ok {
			return nil, fmt.Errorf("%w: subsystem %s", gwerrors.ErrNotFound, req.NQN)
		}

		nsid := req.NSID
		if nsid == 0 {
			nsid = s.nextFreeNSID(req.NQN, sub.MaxNamespaces)
		}
		if err := validateNSID(nsid, sub.MaxNamespaces); err != nil {
			return nil, err
		}
		if _, exists := s.namespaces[req.NQN][nsid]; exists {
			return nil, fmt.Errorf("%w: nsid %d already assigned on %s", gwerrors.ErrConflict, nsid, req.NQN)
		}
		if len(s.namespaces[req.NQN]) >= sub.MaxNamespaces {
			return nil, fmt.Errorf("%w: subsystem %s at max_namespaces %d", gwerrors.ErrConflict, req.NQN, sub.MaxNamespaces)
		}

		nsUUID := req.UUID
		if nsUUID == "" {
			nsUUID = uuid.NewString()
		}

		if req.CreateImage {
			if err := s.ensureImage(ctx, req.Pool, req.Image, req.SizeMiB); err != nil {
				return nil, err
			}
		}

		backingName := fmt.Sprintf("%s_%s_%d", req.Pool, req.Image, nsid)
		clusterName, isNewCluster := s.clusters.Acquire(req.ANAGroupID, backingName)
		if isNewCluster {
			if err := s.engine.Call(ctx, "bdev_rbd_register_cluster", map[string]any{"name": clusterName}, nil); err != nil {
				s.clusters.Release(req.ANAGroupID, backingName)
				return nil, err
			}
		}

		if err := s.engine.Call(ctx, "bdev_rbd_create", map[string]any{
			"name": backingName, "pool_name": req.Pool, "rbd_name": req.Image,
			"block_size": req.BlockSize, "cluster_name": clusterName,
		}, nil); err != nil {
			s.clusters.Release(req.ANAGroupID, backingName)
			return nil, err
		}

		if err := s.engine.Call(ctx, "nvmf_subsystem_add_ns", map[string]any{
			"nqn": req.NQN, "nsid": nsid, "bdev_name": backingName, "uuid": nsUUID,
		}, nil); err != nil {
			_ = s.engine.Call(ctx, "bdev_rbd_delete", map[string]any{"name": backingName}, nil)
			s.clusters.Release(req.ANAGroupID, backingName)
			return nil, err
		}

		ns := &pgs.Namespace{
			NQN: req.NQN, NSID: nsid, UUID: nsUUID, Pool: req.Pool, Image: req.Image,
			BlockSize: req.BlockSize, SizeMiB: req.SizeMiB, ANAGroupID: req.ANAGroupID,
			BackingName: backingName,
		}
		s.namespaces[req.NQN][nsid] = ns
		created = *ns

		value, err := json.Marshal(ns)
		if err != nil {
			return nil, err
		}
		return &mutation{
			key: pgs.BuildNamespaceKey(req.NQN, nsid), value: string(value),
			rollback: func(ctx context.Context) {
				_ = s.engine.Call(ctx, "nvmf_subsystem_remove_ns", map[string]any{"nqn": req.NQN, "nsid": nsid}, nil)
				_ = s.engine.Call(ctx, "bdev_rbd_delete", map[string]any{"name": backingName}, nil)
				s.clusters.Release(req.ANAGroupID, backingName)
				delete(s.namespaces[req.NQN], nsid)
			},
		}, nil
	})
	return created, err
}

func (s *Service) nextFreeNSID(nqn string, maxNamespaces int) uint32 {
	used := s.namespaces[nqn]
	for candidate := uint32(1); int(candidate) <= maxNamespaces; candidate++ {
		if _, taken := used[candidate]; !taken {
			return candidate
		}
	}
	return uint32(maxNamespaces) + 1 // out of range; validateNSID rejects it
}

// ensureImage creates the backing image if it does not exist. A
// same-size existing image is accepted idempotently; a different-size
// existing image is EEXIST, per §4.6.2. bdev_rbd_image_stat always
// succeeds with exists=false rather than erroring, so a fresh image is
// the ordinary path through this function, not an error branch.
func (s *Service) ensureImage(ctx context.Context, pool, image string, sizeMiB int64) error {
	var existing struct {
		Exists  bool  `json:"exists"`
		SizeMiB int64 `json:"size_mib"`
	}
	if err := s.engine.Call(ctx, "bdev_rbd_image_stat", map[string]any{"pool_name": pool, "image_name": image}, &existing); err != nil {
		return err
	}
	if existing.Exists {
		if existing.SizeMiB != sizeMiB {
			return fmt.Errorf("%w: image %s/%s exists with size %d MiB, requested %d MiB", gwerrors.ErrConflict, pool, image, existing.SizeMiB, sizeMiB)
		}
		return nil
	}
	return s.engine.Call(ctx, "bdev_rbd_image_create", map[string]any{"pool_name": pool, "image_name": image, "size_mib": sizeMiB}, nil)
}

// NamespaceDelete removes the namespace from the engine, then its
// backing device, then its QoS record if present.
func (s *Service) NamespaceDelete(ctx context.Context, mode Mode, nqn string, nsid uint32) error {
	return s.authoritativeWrite(ctx, mode, "namespace_delete", func(ctx context.Context) (*mutation, error) {
		if err := s.deleteNamespaceLocked(ctx, mode, nqn, nsid); err != nil {
			return nil, err
		}
		return nil, nil
	})
}

// deleteNamespaceLocked performs the engine-side and PGS-side removal
// of one namespace (and its QoS record), assuming the caller already
// holds rpcMu and, for ModeAuthoritative, the change lease. It is used
// both by NamespaceDelete directly and by DeleteSubsystem's cascade.
func (s *Service) deleteNamespaceLocked(ctx context.Context, mode Mode, nqn string, nsid uint32) error {
	ns, ok := s.namespaces[nqn][nsid]
	if !ok {
		return fmt.Errorf("%w: namespace %s/%d", gwerrors.ErrNotFound, nqn, nsid)
	}

	if err := s.engine.Call(ctx, "nvmf_subsystem_remove_ns", map[string]any{"nqn": nqn, "nsid": nsid}, nil); err != nil {
		return err
	}
	if err := s.engine.Call(ctx, "bdev_rbd_delete", map[string]any{"name": ns.BackingName}, nil); err != nil {
		logger.Error("resource: backing device delete failed after ns removal", logger.BackingName(ns.BackingName), logger.Err(err))
	}
	if name, unregistered := s.clusters.Release(ns.ANAGroupID, ns.BackingName); unregistered {
		if err := s.engine.Call(ctx, "bdev_rbd_unregister_cluster", map[string]any{"name": name}, nil); err != nil {
			logger.Error("resource: cluster context unregister failed", "name", name, logger.Err(err))
		}
	}

	delete(s.namespaces[nqn], nsid)
	_, hadQoS := s.qos[nqn][nsid]
	delete(s.qos[nqn], nsid)

	if mode != ModeAuthoritative {
		return nil
	}

	if _, err := s.store.RemoveKey(ctx, s.store.LocalVersion(), pgs.BuildNamespaceKey(nqn, nsid)); err != nil {
		return err
	}
	if hadQoS {
		if _, err := s.store.RemoveKey(ctx, s.store.LocalVersion(), pgs.BuildNamespaceQoSKey(nqn, nsid)); err != nil {
			return err
		}
	}
	return nil
}

// NamespaceResize issues an engine-side resize; new size must be
// MiB-aligned.
func (s *Service) NamespaceResize(ctx context.Context, mode Mode, nqn string, nsid uint32, newSizeMiB int64) error {
	if err := validateSizeAlignment(newSizeMiB); err != nil {
		return err
	}
	return s.authoritativeWrite(ctx, mode, "namespace_resize", func(ctx context.Context) (*mutation, error) {
		ns, ok := s.namespaces[nqn][nsid]
		if !ok {
			return nil, fmt.Errorf("%w: namespace %s/%d", gwerrors.ErrNotFound, nqn, nsid)
		}
		if err := s.engine.Call(ctx, "bdev_rbd_resize", map[string]any{"name": ns.BackingName, "new_size_mib": newSizeMiB}, nil); err != nil {
			return nil, err
		}
		ns.SizeMiB = newSizeMiB

		value, err := json.Marshal(ns)
		if err != nil {
			return nil, err
		}
		return &mutation{key: pgs.BuildNamespaceKey(nqn, nsid), value: string(value)}, nil
	})
}

// NamespaceChangeLoadBalancingGroup reassigns a namespace's ANA group
// by remove-then-re-add with the same NSID/UUID/backing device. Must
// be issued to the peer owning the current ANA mapping; otherwise
// returns ErrRedirect naming the owning peer.
func (s *Service) NamespaceChangeLoadBalancingGroup(ctx context.Context, mode Mode, nqn string, nsid uint32, newANAGroup int) error {
	return s.authoritativeWrite(ctx, mode, "namespace_change_load_balancing_group", func(ctx context.Context) (*mutation, error) {
		ns, ok := s.namespaces[nqn][nsid]
		if !ok {
			return nil, fmt.Errorf("%w: namespace %s/%d", gwerrors.ErrNotFound, nqn, nsid)
		}

		if ns.ANAGroupID == newANAGroup {
			// A prior invocation of this same closure already carried out
			// the engine and cluster-refcount move: authoritativeWrite
			// re-invokes fn on a stale-CAS retry, and this fn is not safe
			// to run twice against the engine. Republish the namespace as
			// it already stands instead of repeating remove_ns/add_ns.
			value, err := json.Marshal(ns)
			if err != nil {
				return nil, err
			}
			return &mutation{key: pgs.BuildNamespaceKey(nqn, nsid), value: string(value)}, nil
		}

		if owner, tracked := s.anaGroupOwner[ns.ANAGroupID]; tracked && owner != s.cfg.PeerName {
			return nil, fmt.Errorf("%w: ana group %d owned by %s", gwerrors.ErrRedirect, ns.ANAGroupID, owner)
		}

		oldANAGroup := ns.ANAGroupID

		// Remove, then re-add with the same NSID/UUID/backing device. The
		// reference implementation's sequence briefly leaves the
		// namespace absent between these two steps; §9 directs us to
		// preserve that window rather than attempt an atomic swap.
		if err := s.engine.Call(ctx, "nvmf_subsystem_remove_ns", map[string]any{"nqn": nqn, "nsid": nsid}, nil); err != nil {
			return nil, err
		}
		if mode == ModeAuthoritative {
			if _, err := s.store.RemoveKey(ctx, s.store.LocalVersion(), pgs.BuildNamespaceKey(nqn, nsid)); err != nil {
				return nil, err
			}
		}

		newName, isNewCluster := s.clusters.Acquire(newANAGroup, ns.BackingName)
		if isNewCluster {
			if err := s.engine.Call(ctx, "bdev_rbd_register_cluster", map[string]any{"name": newName}, nil); err != nil {
				return nil, err
			}
		}
		if err := s.engine.Call(ctx, "nvmf_subsystem_add_ns", map[string]any{
			"nqn": nqn, "nsid": nsid, "bdev_name": ns.BackingName, "uuid": ns.UUID,
		}, nil); err != nil {
			return nil, err
		}
		// Only this, the state-transitioning invocation, releases the old
		// cluster context; a republish on retry (handled above) must not
		// release it a second time.
		s.clusters.Release(oldANAGroup, ns.BackingName)
		ns.ANAGroupID = newANAGroup

		value, err := json.Marshal(ns)
		if err != nil {
			return nil, err
		}
		return &mutation{key: pgs.BuildNamespaceKey(nqn, nsid), value: string(value)}, nil
	})
}

// NamespaceSetQoSLimits merges a new QoS record with any prior one:
// omitted fields are preserved, zero means unlimited, and rw_ios is
// rounded up to the next multiple of 1000 with a warning.
func (s *Service) NamespaceSetQoSLimits(ctx context.Context, mode Mode, nqn string, nsid uint32, rwIOs, rwMB, rMB, wMB *int64) error {
	return s.authoritativeWrite(ctx, mode, "namespace_set_qos_limits", func(ctx context.Context) (*mutation, error) {
		if _, ok := s.namespaces[nqn][nsid]; !ok {
			return nil, fmt.Errorf("%w: namespace %s/%d", gwerrors.ErrNotFound, nqn, nsid)
		}

		prior, ok := s.qos[nqn][nsid]
		if !ok {
			prior = &pgs.NamespaceQoS{NQN: nqn, NSID: nsid}
		}
		merged := *prior
		if rwIOs != nil {
			merged.RWIOs = roundUpToThousand(*rwIOs)
		}
		if rwMB != nil {
			merged.RWMBytes = *rwMB
		}
		if rMB != nil {
			merged.RMBytes = *rMB
		}
		if wMB != nil {
			merged.WMBytes = *wMB
		}

		if err := s.engine.Call(ctx, "bdev_rbd_set_qos", map[string]any{
			"nqn": nqn, "nsid": nsid, "rw_ios_per_sec": merged.RWIOs, "rw_mbytes_per_sec": merged.RWMBytes,
			"r_mbytes_per_sec": merged.RMBytes, "w_mbytes_per_sec": merged.WMBytes,
		}, nil); err != nil {
			return nil, err
		}

		s.qos[nqn][nsid] = &merged
		value, err := json.Marshal(merged)
		if err != nil {
			return nil, err
		}
		return &mutation{key: pgs.BuildNamespaceQoSKey(nqn, nsid), value: string(value)}, nil
	})
}

func roundUpToThousand(v int64) int64 {
	if v <= 0 || v%1000 == 0 {
		return v
	}
	rounded := ((v / 1000) + 1) * 1000
	logger.Warn("resource: rw_ios rounded up to nearest 1000", "requested", v, "rounded", rounded)
	return rounded
}

// ListNamespacesFilter narrows list_namespaces.
type ListNamespacesFilter struct {
	NQN  string
	NSID uint32
	UUID string
}

// ListNamespaces is read-only and never locks PGS.
func (s *Service) ListNamespaces(filter ListNamespacesFilter) []pgs.Namespace {
	s.rpcMu.Lock()
	defer s.rpcMu.Unlock()

	var out []pgs.Namespace
	for nqn, byNSID := range s.namespaces {
		if filter.NQN != "" && nqn != filter.NQN {
			continue
		}
		for nsid, ns := range byNSID {
			if filter.NSID != 0 && nsid != filter.NSID {
				continue
			}
			if filter.UUID != "" && ns.UUID != filter.UUID {
				continue
			}
			out = append(out, *ns)
		}
	}
	return out
}
