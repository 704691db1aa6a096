package resource

import (
	"context"

	"github.com/marmos91/nvmeof-gateway/internal/logger"
)

// SetSpdkNVMfLogs enables the engine's SPDK nvmf log flags.
func (s *Service) SetSpdkNVMfLogs(ctx context.Context, logLevel, printLevel string) error {
	s.rpcMu.Lock()
	defer s.rpcMu.Unlock()
	return s.engine.Call(ctx, "log_set_flag", map[string]any{"flag": "nvmf", "level": logLevel, "print_level": printLevel}, nil)
}

// DisableSpdkNVMfLogs disables the engine's SPDK nvmf log flags.
func (s *Service) DisableSpdkNVMfLogs(ctx context.Context) error {
	s.rpcMu.Lock()
	defer s.rpcMu.Unlock()
	return s.engine.Call(ctx, "log_clear_flag", map[string]any{"flag": "nvmf"}, nil)
}

// GetSpdkNVMfLogLevel returns the engine's current nvmf log level.
func (s *Service) GetSpdkNVMfLogLevel(ctx context.Context) (string, error) {
	s.rpcMu.Lock()
	defer s.rpcMu.Unlock()
	var out struct {
		Level string `json:"level"`
	}
	if err := s.engine.Call(ctx, "log_get_flag_level", map[string]any{"flag": "nvmf"}, &out); err != nil {
		return "", err
	}
	return out.Level, nil
}

// SetGatewayLogLevel reconfigures this process's own log level, not
// the engine's — a pass-through to internal/logger rather than an
// Engine RPC call.
func (s *Service) SetGatewayLogLevel(level string) {
	logger.SetLevel(level)
}

// GatewayInfo is the get_gateway_info result of §6.1: identity and
// load figures an operator or CLI can display without enumerating
// every subsystem.
type GatewayInfo struct {
	GatewayName    string
	GroupID        int
	SubsystemCount int
	ListenerCount  int
}

// GetGatewayInfo is read-only: it holds the RPC mutex while counting
// and never writes the PGS.
func (s *Service) GetGatewayInfo() GatewayInfo {
	s.rpcMu.Lock()
	defer s.rpcMu.Unlock()
	listenerCount := 0
	for _, byKey := range s.listeners {
		listenerCount += len(byKey)
	}
	return GatewayInfo{
		GatewayName:    s.cfg.PeerName,
		GroupID:        s.cfg.GroupID,
		SubsystemCount: len(s.subsystems),
		ListenerCount:  listenerCount,
	}
}
