package resource

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/marmos91/nvmeof-gateway/internal/logger"
	"github.com/marmos91/nvmeof-gateway/pkg/gwerrors"
	"github.com/marmos91/nvmeof-gateway/pkg/pgs"
)

// CreateListenerRequest is the create_listener contract of §4.6.2.
type CreateListenerRequest struct {
	NQN         string `mapstructure:"nqn"`
	GatewayName string `mapstructure:"gateway_name"`
	Address     string `mapstructure:"traddr"`
	Port        int    `mapstructure:"trsvcid"`
	AdrFam      string `mapstructure:"adrfam"`
	Secure      bool   `mapstructure:"secure"`
}

// CreateListenerResult reports whether the operation actually ran or
// was silently skipped, per §4.6.2's "gateway_name must equal this
// peer's name, else returns a non-error skipped result in replay".
type CreateListenerResult struct {
	Listener pgs.Listener
	Skipped  bool
}

// CreateListener adds a listener to the engine and immediately issues
// a per-ANA-group set_ana_state for every configured group — optimized
// where this peer is primary per the ANA map, inaccessible otherwise.
func (s *Service) CreateListener(ctx context.Context, mode Mode, req CreateListenerRequest) (CreateListenerResult, error) {
	if err := validateNQN(req.NQN); err != nil {
		return CreateListenerResult{}, err
	}
	if err := validatePort(req.Port); err != nil {
		return CreateListenerResult{}, err
	}

	var result CreateListenerResult
	err := s.authoritativeWrite(ctx, mode, "create_listener", func(ctx context.Context) (*mutation, error) {
		if req.GatewayName != s.cfg.PeerName {
			if mode == ModeReplay {
				result = CreateListenerResult{Skipped: true}
				return nil, nil
			}
			return nil, fmt.Errorf("%w: listener gateway_name %s does not match this peer %s", gwerrors.ErrValidation, req.GatewayName, s.cfg.PeerName)
		}
		if _, ok := s.subsystems[req.NQN]; !ok {
			return nil, fmt.Errorf("%w: subsystem %s", gwerrors.ErrNotFound, req.NQN)
		}

		trAddr := normalizeAddress(req.Address)
		suffix := pgs.BuildListenerKeySuffix(req.GatewayName, "TCP", trAddr, fmt.Sprintf("%d", req.Port))
		if _, exists := s.listeners[req.NQN][suffix]; exists {
			return nil, fmt.Errorf("%w: listener %s:%d already exists on %s", gwerrors.ErrConflict, req.Address, req.Port, req.NQN)
		}
		if req.Secure {
			if _, anyHost := s.hosts[req.NQN][anyHostNQN]; anyHost {
				return nil, fmt.Errorf("%w: subsystem %s allows any-host, secure listener is forbidden", gwerrors.ErrValidation, req.NQN)
			}
		}

		if err := s.engine.Call(ctx, "nvmf_subsystem_add_listener", map[string]any{
			"nqn": req.NQN, "trtype": "TCP", "traddr": trAddr, "trsvcid": req.Port,
			"adrfam": req.AdrFam, "secure": req.Secure,
		}, nil); err != nil {
			return nil, err
		}

		listener := &pgs.Listener{
			NQN: req.NQN, Gateway: req.GatewayName, TrType: "TCP", TrAddr: trAddr,
			TrSvcID: fmt.Sprintf("%d", req.Port), AdrFam: req.AdrFam, Secure: req.Secure,
		}
		s.listeners[req.NQN][suffix] = listener
		s.pushANAStates(ctx, req.NQN)
		result = CreateListenerResult{Listener: *listener}

		value, err := json.Marshal(listener)
		if err != nil {
			return nil, err
		}
		return &mutation{
			key: pgs.BuildListenerKey(req.NQN, req.GatewayName, "TCP", trAddr, fmt.Sprintf("%d", req.Port)), value: string(value),
			rollback: func(ctx context.Context) {
				_ = s.engine.Call(ctx, "nvmf_subsystem_remove_listener", map[string]any{"nqn": req.NQN, "trtype": "TCP", "traddr": trAddr, "trsvcid": req.Port}, nil)
				delete(s.listeners[req.NQN], suffix)
			},
		}, nil
	})
	return result, err
}

// pushANAStates issues set_ana_state for every ANA group this peer
// knows an ownership assignment for, so the listener's map reflects
// optimized/inaccessible correctly from the moment it is created.
func (s *Service) pushANAStates(ctx context.Context, nqn string) {
	for group, owner := range s.anaGroupOwner {
		state := "INACCESSIBLE"
		if owner == s.cfg.PeerName {
			state = "OPTIMIZED"
		}
		if err := s.engine.Call(ctx, "nvmf_subsystem_listener_set_ana_state", map[string]any{
			"nqn": nqn, "ana_group_id": group, "ana_state": state,
		}, nil); err != nil {
			logger.Error("resource: set_ana_state failed", logger.NQN(nqn), logger.ANAGroupID(group), logger.Err(err))
		}
	}
}

// DeleteListener removes a listener. force is required if host_name is
// "*" or active connections exist.
func (s *Service) DeleteListener(ctx context.Context, mode Mode, nqn, gatewayName, address string, port int, force, anyHostBound, hasActiveConnections bool) error {
	return s.authoritativeWrite(ctx, mode, "delete_listener", func(ctx context.Context) (*mutation, error) {
		trAddr := normalizeAddress(address)
		suffix := pgs.BuildListenerKeySuffix(gatewayName, "TCP", trAddr, fmt.Sprintf("%d", port))
		if _, ok := s.listeners[nqn][suffix]; !ok {
			return nil, fmt.Errorf("%w: listener %s:%d on %s", gwerrors.ErrNotFound, address, port, nqn)
		}
		if !force && (anyHostBound || hasActiveConnections) {
			return nil, fmt.Errorf("%w: listener %s:%d on %s has dependents, force required", gwerrors.ErrBusy, address, port, nqn)
		}

		if err := s.engine.Call(ctx, "nvmf_subsystem_remove_listener", map[string]any{
			"nqn": nqn, "trtype": "TCP", "traddr": trAddr, "trsvcid": port,
		}, nil); err != nil {
			return nil, err
		}

		delete(s.listeners[nqn], suffix)
		return &mutation{key: pgs.BuildListenerKey(nqn, gatewayName, "TCP", trAddr, fmt.Sprintf("%d", port)), remove: true}, nil
	})
}

// ListListeners is read-only and never locks PGS.
func (s *Service) ListListeners(nqn string) []pgs.Listener {
	s.rpcMu.Lock()
	defer s.rpcMu.Unlock()
	var out []pgs.Listener
	for _, l := range s.listeners[nqn] {
		out = append(out, *l)
	}
	return out
}
