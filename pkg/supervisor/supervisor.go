// Package supervisor is the process lifecycle owner (C8): it starts,
// health-checks, and shuts down the co-located target-engine and
// monitor-client subprocesses, owns this peer's log file, and
// registers the peer in the object store's service map. Grounded on
// the teacher's cmd/dittofs/commands/start.go daemonization sequence
// and commands/logs.go's rotation/tail conventions, generalized from
// one self-contained server process to three cooperating processes.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/marmos91/nvmeof-gateway/internal/logger"
	"github.com/marmos91/nvmeof-gateway/pkg/objectstore"
	"github.com/marmos91/nvmeof-gateway/pkg/rpcclient"
)

// Config describes everything the Supervisor needs to bring a peer up.
type Config struct {
	PeerName string

	LogDir           string
	MaxLogFileSizeMB int
	MaxLogFiles      int

	EnginePath string
	EngineArgs []string
	CPUMask    uint64 // 0 means auto-derive via DeriveCPUMask

	MonitorPath string
	MonitorArgs []string

	RPCSocketDir         string
	RPCSocketName        string
	PingSocketName       string
	SubsystemsSocketName string

	GatewayAddr     string
	DiscoveryAddr   string
	RendezvousAddr  string // gateway port − 1, per §6
	ShutdownTimeout time.Duration

	Ping PingConfig
}

// Supervisor owns the engine and monitor-client subprocesses, the
// three control sockets to the engine, and this peer's log file.
type Supervisor struct {
	cfg   Config
	log   *RotatingFile
	store *objectstore.Store

	engine  *managedProcess
	monitor *managedProcess

	primary    *rpcclient.Client
	ping       *rpcclient.Client
	subsystems *rpcclient.Client

	expectedExit chan struct{}
	metrics      Metrics
}

// New constructs a Supervisor; Start does the actual process launch.
func New(cfg Config, store *objectstore.Store) *Supervisor {
	return &Supervisor{cfg: cfg, store: store, expectedExit: make(chan struct{})}
}

// EngineClient exposes the primary control socket for the Resource
// Service to issue engine RPCs over.
func (s *Supervisor) EngineClient() *rpcclient.Client { return s.primary }

// Start runs §4.8's full startup sequence and blocks until the
// monitor-rendezvous latch resolves this peer's group_id, which it
// returns.
func (s *Supervisor) Start(ctx context.Context) (groupID int32, err error) {
	logDir := filepath.Join(s.cfg.LogDir, fmt.Sprintf("nvmeof-%s", s.cfg.PeerName))
	logFile, err := Open(logDir, "nvmeof-log", s.cfg.MaxLogFileSizeMB, s.cfg.MaxLogFiles)
	if err != nil {
		return 0, err
	}
	s.log = logFile

	monitor, err := startProcess("monitor-client", s.cfg.MonitorPath, s.cfg.MonitorArgs, nil, s.log)
	if err != nil {
		return 0, err
	}
	s.monitor = monitor

	gid, stopRendezvous, err := runRendezvousServer(ctx, s.cfg.RendezvousAddr)
	if err != nil {
		return 0, fmt.Errorf("supervisor: rendezvous: %w", err)
	}
	defer stopRendezvous()

	cpuMask := s.cfg.CPUMask
	if cpuMask == 0 {
		cpuMask = DeriveCPUMask()
	}
	engineArgs := append([]string{fmt.Sprintf("--cpumask=0x%x", cpuMask)}, s.cfg.EngineArgs...)
	engine, err := startProcess("target-engine", s.cfg.EnginePath, engineArgs, nil, s.log)
	if err != nil {
		return 0, err
	}
	s.engine = engine

	watchChildren(ctx, []*managedProcess{s.engine, s.monitor}, s.expectedExit, func(name string, err error) {
		logger.Error("supervisor: unexpected child exit, aborting", "process", name, "error", err)
		if s.metrics != nil {
			s.metrics.RecordChildExit(name)
		}
		os.Exit(1)
	})

	primarySocket := filepath.Join(s.cfg.RPCSocketDir, s.cfg.RPCSocketName)
	s.primary, err = rpcclient.Dial(ctx, rpcclient.DefaultConfig(primarySocket))
	if err != nil {
		return 0, fmt.Errorf("supervisor: dial primary socket: %w", err)
	}
	s.ping, err = rpcclient.Dial(ctx, rpcclient.DefaultConfig(filepath.Join(s.cfg.RPCSocketDir, s.cfg.PingSocketName)))
	if err != nil {
		return 0, fmt.Errorf("supervisor: dial ping socket: %w", err)
	}
	s.subsystems, err = rpcclient.Dial(ctx, rpcclient.DefaultConfig(filepath.Join(s.cfg.RPCSocketDir, s.cfg.SubsystemsSocketName)))
	if err != nil {
		return 0, fmt.Errorf("supervisor: dial subsystems socket: %w", err)
	}

	var versionResult struct {
		Version string `json:"version"`
	}
	if err := s.primary.Call(ctx, "spdk_get_version", nil, &versionResult); err != nil {
		return 0, fmt.Errorf("supervisor: resolve engine version: %w", err)
	}
	logger.Info("supervisor: engine ready", "version", versionResult.Version, "cpu_mask", cpuMask)

	if err := RegisterPeer(ctx, s.store, ServiceEntry{
		Name:          s.cfg.PeerName,
		GroupID:       int(gid),
		GatewayAddr:   s.cfg.GatewayAddr,
		DiscoveryAddr: s.cfg.DiscoveryAddr,
		EngineVersion: versionResult.Version,
	}); err != nil {
		return 0, fmt.Errorf("supervisor: register peer: %w", err)
	}

	go runPingLoop(ctx, s.ping, s.cfg.Ping, s.metrics, func(err error) {
		logger.Error("supervisor: engine ping exhausted retries, aborting", "error", err)
		os.Exit(1)
	})

	return gid, nil
}

// Shutdown runs §4.8's shutdown sequence: terminate monitor client
// then engine with timeouts (then kill), unlink the RPC socket,
// compress the current log file.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	close(s.expectedExit)

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	if s.monitor != nil {
		if err := s.monitor.terminate(timeout); err != nil {
			logger.Warn("supervisor: monitor client exited with error", "error", err)
		}
	}
	if s.engine != nil {
		if err := s.engine.terminate(timeout); err != nil {
			logger.Warn("supervisor: engine exited with error", "error", err)
		}
	}

	for _, c := range []*rpcclient.Client{s.primary, s.ping, s.subsystems} {
		if c != nil {
			_ = c.Close()
		}
	}

	primarySocket := filepath.Join(s.cfg.RPCSocketDir, s.cfg.RPCSocketName)
	if err := os.Remove(primarySocket); err != nil && !os.IsNotExist(err) {
		logger.Warn("supervisor: unlink rpc socket failed", "error", err)
	}

	if s.log != nil {
		if err := s.log.Rotate(); err != nil {
			logger.Warn("supervisor: final log rotation failed", "error", err)
		}
		return s.log.Close()
	}
	return nil
}
