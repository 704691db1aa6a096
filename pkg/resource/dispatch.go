package resource

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/marmos91/nvmeof-gateway/internal/logger"
	"github.com/marmos91/nvmeof-gateway/pkg/pgs"
	"github.com/marmos91/nvmeof-gateway/pkg/reconciler"
)

// BuildReplayDispatcher wires this Service's operations into the
// Reconciler's prefix-keyed replay handler table (§9: "the Reconciler's
// dispatch table is a static map from prefix to handler pair").
func BuildReplayDispatcher(svc *Service) *reconciler.Dispatcher {
	return reconciler.NewDispatcher(map[string]reconciler.Handler{
		pgs.SubsystemPrefix:    subsystemHandler(svc),
		pgs.NamespacePrefix:    namespaceHandler(svc),
		pgs.NamespaceQoSPrefix: qosHandler(svc),
		pgs.HostPrefix:         hostHandler(svc),
		pgs.ListenerPrefix:     listenerHandler(svc),
	})
}

func subsystemHandler(svc *Service) reconciler.Handler {
	return reconciler.Handler{
		Add: func(ctx context.Context, key, value string) error {
			sub, err := pgs.DecodeSubsystem(value)
			if err != nil {
				return err
			}
			_, err = svc.CreateSubsystem(ctx, ModeReplay, CreateSubsystemRequest{
				NQN: sub.NQN, Serial: sub.Serial, MaxNS: sub.MaxNamespaces, EnableHA: sub.EnableHA,
			})
			return err
		},
		Remove: func(ctx context.Context, key, value string) error {
			nqn := strings.TrimPrefix(key, pgs.SubsystemPrefix)
			return svc.DeleteSubsystem(ctx, ModeReplay, nqn, true)
		},
	}
}

func namespaceHandler(svc *Service) reconciler.Handler {
	return reconciler.Handler{
		Add: func(ctx context.Context, key, value string) error {
			ns, err := pgs.DecodeNamespace(value)
			if err != nil {
				return err
			}
			_, err = svc.NamespaceAdd(ctx, ModeReplay, NamespaceAddRequest{
				NQN: ns.NQN, NSID: ns.NSID, UUID: ns.UUID, Pool: ns.Pool, Image: ns.Image,
				BlockSize: ns.BlockSize, SizeMiB: ns.SizeMiB, CreateImage: false, ANAGroupID: ns.ANAGroupID,
			})
			return err
		},
		Remove: func(ctx context.Context, key, value string) error {
			nqn, nsid, err := splitNamespaceKey(key)
			if err != nil {
				return err
			}
			return svc.NamespaceDelete(ctx, ModeReplay, nqn, nsid)
		},
	}
}

func qosHandler(svc *Service) reconciler.Handler {
	return reconciler.Handler{
		Add: func(ctx context.Context, key, value string) error {
			q, err := pgs.DecodeNamespaceQoS(value)
			if err != nil {
				return err
			}
			return svc.NamespaceSetQoSLimits(ctx, ModeReplay, q.NQN, q.NSID, &q.RWIOs, &q.RWMBytes, &q.RMBytes, &q.WMBytes)
		},
		Remove: func(ctx context.Context, key, value string) error {
			// QoS records are removed as part of namespace_delete's
			// cascade; a standalone qos_ removal issues no engine call
			// and leaves the namespace's current limits in place.
			logger.Debug("resource: qos key removed independently of its namespace", logger.PGSKey(key))
			return nil
		},
	}
}

func hostHandler(svc *Service) reconciler.Handler {
	return reconciler.Handler{
		Add: func(ctx context.Context, key, value string) error {
			h, err := pgs.DecodeHost(value)
			if err != nil {
				return err
			}
			return svc.AddHost(ctx, ModeReplay, AddHostRequest{
				NQN: h.NQN, HostNQN: h.HostNQN, PSK: h.PSK, DHCHAPKey: h.DHCHAPKey, DHCHAPCtrl: h.DHCHAPCtrl,
			})
		},
		Remove: func(ctx context.Context, key, value string) error {
			nqn, hostNQN, err := splitHostKey(key)
			if err != nil {
				return err
			}
			return svc.RemoveHost(ctx, ModeReplay, nqn, hostNQN)
		},
	}
}

func listenerHandler(svc *Service) reconciler.Handler {
	return reconciler.Handler{
		Add: func(ctx context.Context, key, value string) error {
			l, err := pgs.DecodeListener(value)
			if err != nil {
				return err
			}
			port, err := strconv.Atoi(l.TrSvcID)
			if err != nil {
				return fmt.Errorf("resource: invalid listener trsvcid %q: %w", l.TrSvcID, err)
			}
			_, err = svc.CreateListener(ctx, ModeReplay, CreateListenerRequest{
				NQN: l.NQN, GatewayName: l.Gateway, Address: l.TrAddr, Port: port, AdrFam: l.AdrFam, Secure: l.Secure,
			})
			return err
		},
		Remove: func(ctx context.Context, key, value string) error {
			nqn, gateway, trAddr, trSvcID, err := splitListenerKey(key)
			if err != nil {
				return err
			}
			port, err := strconv.Atoi(trSvcID)
			if err != nil {
				return fmt.Errorf("resource: invalid listener trsvcid %q: %w", trSvcID, err)
			}
			return svc.DeleteListener(ctx, ModeReplay, nqn, gateway, trAddr, port, true, false, false)
		},
	}
}

func splitNamespaceKey(key string) (nqn string, nsid uint32, err error) {
	rest := strings.TrimPrefix(key, pgs.NamespacePrefix)
	idx := strings.LastIndex(rest, pgs.KeyDelimiter)
	if idx < 0 {
		return "", 0, fmt.Errorf("resource: malformed namespace key %q", key)
	}
	n, err := strconv.ParseUint(rest[idx+1:], 10, 32)
	if err != nil {
		return "", 0, fmt.Errorf("resource: malformed namespace key %q: %w", key, err)
	}
	return rest[:idx], uint32(n), nil
}

func splitHostKey(key string) (nqn, hostNQN string, err error) {
	rest := strings.TrimPrefix(key, pgs.HostPrefix)
	idx := strings.Index(rest, pgs.KeyDelimiter)
	if idx < 0 {
		return "", "", fmt.Errorf("resource: malformed host key %q", key)
	}
	return rest[:idx], rest[idx+1:], nil
}

// splitListenerKey parses "<nqn>_<gateway>_<trtype>_<traddr>_<trsvcid>".
// trtype is discarded: every listener this gateway manages is TCP, per
// §4.7.1, and DeleteListener always rebuilds the key with "TCP".
func splitListenerKey(key string) (nqn, gateway, trAddr, trSvcID string, err error) {
	rest := strings.TrimPrefix(key, pgs.ListenerPrefix)
	parts := strings.Split(rest, pgs.KeyDelimiter)
	if len(parts) < 5 {
		return "", "", "", "", fmt.Errorf("resource: malformed listener key %q", key)
	}
	trSvcID = parts[len(parts)-1]
	trAddr = parts[len(parts)-2]
	gateway = parts[len(parts)-4]
	nqn = strings.Join(parts[:len(parts)-4], pgs.KeyDelimiter)
	return nqn, gateway, trAddr, trSvcID, nil
}
