package resource

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/marmos91/nvmeof-gateway/pkg/gwerrors"
	"github.com/marmos91/nvmeof-gateway/pkg/pgs"
)

const anyHostNQN = "*"

// AddHostRequest is the add_host contract of §4.6.2. HostNQN of "*"
// allows any host; PSK/DHCHAP fields are forbidden in that case.
type AddHostRequest struct {
	NQN        string `mapstructure:"nqn"`
	HostNQN    string `mapstructure:"host_nqn"`
	PSK        string `mapstructure:"psk"`
	DHCHAPKey  string `mapstructure:"dhchap_key"`
	DHCHAPCtrl string `mapstructure:"dhchap_ctrl_key"`

	// GenerateDHCHAPKey requests in-process key generation when the
	// caller supplies dhchap=true and no dhchap_key, per SPEC_FULL.md
	// §9.1's supplemented add_host behavior.
	GenerateDHCHAPKey bool `mapstructure:"dhchap"`
	// Bidirectional additionally derives and sets a controller key
	// alongside the generated host key. Ignored if GenerateDHCHAPKey is
	// false or DHCHAPKey is already set.
	Bidirectional bool `mapstructure:"dhchap_ctrl"`
}

// AddHost adds one host entry (or enables any-host access), enforcing
// the mutual exclusions of §4.6.2: "*" forbids any key, dhchap_ctrl
// requires dhchap, and secure-channel listeners are incompatible with
// any-host access on the same subsystem.
func (s *Service) AddHost(ctx context.Context, mode Mode, req AddHostRequest) error {
	if err := validateNQN(req.NQN); err != nil {
		return err
	}
	if req.HostNQN != anyHostNQN {
		if err := validateNQN(req.HostNQN); err != nil {
			return err
		}
	}
	if req.HostNQN == anyHostNQN && (req.PSK != "" || req.DHCHAPKey != "" || req.DHCHAPCtrl != "") {
		return fmt.Errorf("%w: any-host access forbids PSK/DH-HMAC-CHAP keys", gwerrors.ErrValidation)
	}
	if req.DHCHAPCtrl != "" && req.DHCHAPKey == "" {
		return fmt.Errorf("%w: dhchap_ctrl_key requires dhchap_key", gwerrors.ErrValidation)
	}

	if req.GenerateDHCHAPKey && req.DHCHAPKey == "" {
		hostKey, ctrlKey, err := GenerateDHCHAPKeyPair(req.Bidirectional)
		if err != nil {
			return err
		}
		req.DHCHAPKey = hostKey
		req.DHCHAPCtrl = ctrlKey
	}

	return s.authoritativeWrite(ctx, mode, "add_host", func(ctx context.Context) (*mutation, error) {
		if _, ok := s.subsystems[req.NQN]; !ok {
			return nil, fmt.Errorf("%w: subsystem %s", gwerrors.ErrNotFound, req.NQN)
		}
		if req.HostNQN == anyHostNQN {
			if s.hasSecureListener(req.NQN) {
				return nil, fmt.Errorf("%w: subsystem %s has a secure listener, any-host access is forbidden", gwerrors.ErrValidation, req.NQN)
			}
		}
		if _, exists := s.hosts[req.NQN][req.HostNQN]; exists {
			return nil, fmt.Errorf("%w: host %s already allowed on %s", gwerrors.ErrConflict, req.HostNQN, req.NQN)
		}

		if err := s.engine.Call(ctx, "nvmf_subsystem_add_host", map[string]any{
			"nqn": req.NQN, "host": req.HostNQN, "psk": req.PSK,
			"dhchap_key": req.DHCHAPKey, "dhchap_ctrlr_key": req.DHCHAPCtrl,
		}, nil); err != nil {
			return nil, err
		}

		host := &pgs.Host{NQN: req.NQN, HostNQN: req.HostNQN, PSK: req.PSK, DHCHAPKey: req.DHCHAPKey, DHCHAPCtrl: req.DHCHAPCtrl}
		s.hosts[req.NQN][req.HostNQN] = host

		value, err := json.Marshal(host)
		if err != nil {
			return nil, err
		}
		return &mutation{
			key: pgs.BuildHostKey(req.NQN, req.HostNQN), value: string(value),
			rollback: func(ctx context.Context) {
				_ = s.engine.Call(ctx, "nvmf_subsystem_remove_host", map[string]any{"nqn": req.NQN, "host": req.HostNQN}, nil)
				delete(s.hosts[req.NQN], req.HostNQN)
			},
		}, nil
	})
}

// RemoveHost disables any-host access or removes one host entry.
func (s *Service) RemoveHost(ctx context.Context, mode Mode, nqn, hostNQN string) error {
	return s.authoritativeWrite(ctx, mode, "remove_host", func(ctx context.Context) (*mutation, error) {
		if _, ok := s.hosts[nqn][hostNQN]; !ok {
			return nil, fmt.Errorf("%w: host %s on %s", gwerrors.ErrNotFound, hostNQN, nqn)
		}
		if err := s.engine.Call(ctx, "nvmf_subsystem_remove_host", map[string]any{"nqn": nqn, "host": hostNQN}, nil); err != nil {
			return nil, err
		}
		delete(s.hosts[nqn], hostNQN)
		return &mutation{key: pgs.BuildHostKey(nqn, hostNQN), remove: true}, nil
	})
}

func (s *Service) hasSecureListener(nqn string) bool {
	for _, l := range s.listeners[nqn] {
		if l.Secure {
			return true
		}
	}
	return false
}

// ListHosts is read-only and never locks PGS.
func (s *Service) ListHosts(nqn string) []pgs.Host {
	s.rpcMu.Lock()
	defer s.rpcMu.Unlock()
	var out []pgs.Host
	for _, h := range s.hosts[nqn] {
		out = append(out, *h)
	}
	return out
}
