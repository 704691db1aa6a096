package resource

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/marmos91/nvmeof-gateway/pkg/gwerrors"
	"github.com/marmos91/nvmeof-gateway/pkg/pgs"
)

const defaultMaxNamespaces = 32

// CreateSubsystemRequest is the create_subsystem contract of §4.6.2.
type CreateSubsystemRequest struct {
	NQN      string `mapstructure:"nqn"`
	Serial   string `mapstructure:"serial"`
	MaxNS    int    `mapstructure:"max_namespaces"`
	EnableHA bool   `mapstructure:"enable_ha"`
}

// CreateSubsystem allocates this peer's controller-id block and
// records a new subsystem, failing EEXIST if the NQN or serial is
// already in use.
func (s *Service) CreateSubsystem(ctx context.Context, mode Mode, req CreateSubsystemRequest) (pgs.Subsystem, error) {
	if err := validateNQN(req.NQN); err != nil {
		return pgs.Subsystem{}, err
	}
	if req.MaxNS <= 0 {
		req.MaxNS = defaultMaxNamespaces
	}

	var created pgs.Subsystem
	err := s.authoritativeWrite(ctx, mode, "create_subsystem", func(ctx context.Context) (*mutation, error) {
		if _, exists := s.subsystems[req.NQN]; exists {
			return nil, fmt.Errorf("%w: subsystem %s already exists", gwerrors.ErrConflict, req.NQN)
		}
		for _, existing := range s.subsystems {
			if req.Serial != "" && existing.Serial == req.Serial {
				return nil, fmt.Errorf("%w: serial %s already in use", gwerrors.ErrConflict, req.Serial)
			}
		}

		minC, maxC := s.cntlidRange()
		sub := &pgs.Subsystem{
			NQN: req.NQN, Serial: req.Serial, MaxNamespaces: req.MaxNS,
			EnableHA: req.EnableHA, MinCntlID: minC, MaxCntlID: maxC,
		}

		if err := s.engine.Call(ctx, "nvmf_create_subsystem", map[string]any{
			"nqn": sub.NQN, "serial_number": sub.Serial, "max_namespaces": sub.MaxNamespaces,
			"min_cntlid": sub.MinCntlID, "max_cntlid": sub.MaxCntlID,
		}, nil); err != nil {
			return nil, err
		}

		s.subsystems[req.NQN] = sub
		s.namespaces[req.NQN] = map[uint32]*pgs.Namespace{}
		s.qos[req.NQN] = map[uint32]*pgs.NamespaceQoS{}
		s.hosts[req.NQN] = map[string]*pgs.Host{}
		s.listeners[req.NQN] = map[string]*pgs.Listener{}
		created = *sub

		value, err := json.Marshal(sub)
		if err != nil {
			return nil, err
		}
		return &mutation{
			key: pgs.BuildSubsystemKey(req.NQN), value: string(value),
			rollback: func(ctx context.Context) {
				_ = s.engine.Call(ctx, "nvmf_delete_subsystem", map[string]any{"nqn": sub.NQN}, nil)
				delete(s.subsystems, req.NQN)
			},
		}, nil
	})
	return created, err
}

// DeleteSubsystem removes a subsystem, cascading namespace deletion
// when force is set; without force, any remaining namespace is EBUSY.
// DeleteSubsystem cascades by issuing its own sequence of single-key
// PGS removals while the outer call's change lease is held (the object
// store forbids multi-key CAS, per §4.2), rather than one combined
// mutation: each namespace, host, and listener key is removed with its
// own version bump before the subsystem key itself is removed last.
func (s *Service) DeleteSubsystem(ctx context.Context, mode Mode, nqn string, force bool) error {
	return s.authoritativeWrite(ctx, mode, "delete_subsystem", func(ctx context.Context) (*mutation, error) {
		_, ok := s.subsystems[nqn]
		if !ok {
			return nil, fmt.Errorf("%w: subsystem %s", gwerrors.ErrNotFound, nqn)
		}
		if !force && len(s.namespaces[nqn]) > 0 {
			return nil, fmt.Errorf("%w: subsystem %s has namespaces, force required", gwerrors.ErrBusy, nqn)
		}

		for nsid := range s.namespaces[nqn] {
			if err := s.deleteNamespaceLocked(ctx, mode, nqn, nsid); err != nil {
				return nil, err
			}
		}
		for hostNQN := range s.hosts[nqn] {
			if err := s.removeHostKeyLocked(ctx, mode, nqn, hostNQN); err != nil {
				return nil, err
			}
		}
		for key := range s.listeners[nqn] {
			if err := s.removeListenerKeyLocked(ctx, mode, nqn, key); err != nil {
				return nil, err
			}
		}

		if err := s.engine.Call(ctx, "nvmf_delete_subsystem", map[string]any{"nqn": nqn}, nil); err != nil {
			return nil, err
		}

		delete(s.subsystems, nqn)
		delete(s.namespaces, nqn)
		delete(s.qos, nqn)
		delete(s.hosts, nqn)
		delete(s.listeners, nqn)

		if mode == ModeReplay {
			return nil, nil
		}

		localVer := s.store.LocalVersion()
		if _, err := s.store.RemoveKey(ctx, localVer, pgs.BuildSubsystemKey(nqn)); err != nil {
			return nil, err
		}
		return nil, nil
	})
}

// removeHostKeyLocked removes one host_ key's PGS entry directly,
// assuming the caller already holds the change lease (when mode is
// authoritative) as part of a larger cascade.
func (s *Service) removeHostKeyLocked(ctx context.Context, mode Mode, nqn, hostKey string) error {
	delete(s.hosts[nqn], hostKey)
	if mode != ModeAuthoritative {
		return nil
	}
	_, err := s.store.RemoveKey(ctx, s.store.LocalVersion(), pgs.BuildHostKey(nqn, hostKey))
	return err
}

// removeListenerKeyLocked removes one listener_ key's PGS entry
// directly, as part of a delete_subsystem cascade.
func (s *Service) removeListenerKeyLocked(ctx context.Context, mode Mode, nqn, listenerKeySuffix string) error {
	delete(s.listeners[nqn], listenerKeySuffix)
	if mode != ModeAuthoritative {
		return nil
	}
	_, err := s.store.RemoveKey(ctx, s.store.LocalVersion(), pgs.ListenerPrefix+nqn+pgs.KeyDelimiter+listenerKeySuffix)
	return err
}

// ListSubsystemsFilter narrows list_subsystems, per §4.6.2's "honours
// optional filters".
type ListSubsystemsFilter struct {
	NQN    string
	Serial string
}

// ListSubsystems is read-only and never locks PGS.
func (s *Service) ListSubsystems(filter ListSubsystemsFilter) []pgs.Subsystem {
	s.rpcMu.Lock()
	defer s.rpcMu.Unlock()

	var out []pgs.Subsystem
	for _, sub := range s.subsystems {
		if filter.NQN != "" && sub.NQN != filter.NQN {
			continue
		}
		if filter.Serial != "" && sub.Serial != filter.Serial {
			continue
		}
		out = append(out, *sub)
	}
	return out
}
