package commands

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/marmos91/nvmeof-gateway/internal/logger"
	"github.com/marmos91/nvmeof-gateway/internal/telemetry"
	"github.com/marmos91/nvmeof-gateway/pkg/config"
	"github.com/marmos91/nvmeof-gateway/pkg/dispatch"
	"github.com/marmos91/nvmeof-gateway/pkg/metrics"
	"github.com/marmos91/nvmeof-gateway/pkg/pgs"
	"github.com/spf13/cobra"

	// Import prometheus metrics to register init() functions
	_ "github.com/marmos91/nvmeof-gateway/pkg/metrics/prometheus"
)

var (
	foreground bool
	pidFile    string
	logFile    string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the gateway peer",
	Long: `Start this nvmeof-gatewayd peer: bring up the target-engine and
monitor-client subprocesses, open (or join) the group's object store,
run an initial reconcile pass, then serve Discovery and the Resource
Service gRPC surface.

By default, the process runs in the background (daemon mode). Use
--foreground to run in the foreground for debugging or when managed by
a process supervisor (systemd, a container runtime).

Examples:
  # Start in background (default)
  nvmeof-gatewayd start

  # Start in foreground
  nvmeof-gatewayd start --foreground

  # Start with custom config file
  nvmeof-gatewayd start --config /etc/nvmeof-gatewayd/config.yaml

  # Start with environment variable overrides
  NVMEOF_LOGGING_LEVEL=debug nvmeof-gatewayd start --foreground`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (default: background/daemon mode)")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/nvmeof-gatewayd/nvmeof-gatewayd.pid)")
	startCmd.Flags().StringVar(&logFile, "log-file", "", "Path to log file for daemon mode (default: $XDG_STATE_HOME/nvmeof-gatewayd/nvmeof-gatewayd.log)")
}

func runStart(cmd *cobra.Command, args []string) error {
	if !foreground {
		return startDaemon()
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryCfg := telemetry.Config{
		Enabled:                     cfg.Telemetry.Enabled,
		ServiceName:                 "nvmeof-gatewayd",
		ServiceVersion:              Version,
		Endpoint:                    cfg.Telemetry.Endpoint,
		Insecure:                    cfg.Telemetry.Insecure,
		SampleRate:                  cfg.Telemetry.SampleRate,
		AlwaysSampleTopologyChanges: cfg.Telemetry.AlwaysSampleTopologyChanges,
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	profilingCfg := telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "nvmeof-gatewayd",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	}
	profilingShutdown, err := telemetry.InitProfiling(profilingCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	metrics.InitRegistry(cfg.Telemetry.MetricsEnabled)

	logger.Info("nvmeof-gatewayd starting", "peer", cfg.Gateway.PeerName, "group", cfg.Gateway.GroupName)
	logger.Info("configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("telemetry disabled")
	}
	if metrics.IsEnabled() {
		logger.Info("metrics enabled")
	} else {
		logger.Info("metrics disabled")
	}

	gw, err := config.InitializeGateway(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize gateway: %w", err)
	}

	if err := gw.Start(ctx); err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}
	logger.Info("supervisor started", "group_id", cfg.Gateway.GroupID)

	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	dispatchServer := dispatch.NewServer(gw.Resource)

	serveErrs := make(chan error, 3)
	go func() {
		serveErrs <- gw.Discovery.Serve(ctx)
	}()
	go func() {
		serveErrs <- dispatch.Serve(ctx, cfg.Dispatch.ListenAddress, dispatchServer)
	}()

	notifyCh := make(chan struct{}, 1)
	go gw.Object.Watch(ctx, pgs.ObjectName(cfg.Gateway.GroupName), cfg.ObjectStore.WatchPoll, func() {
		select {
		case notifyCh <- struct{}{}:
		default:
		}
	})
	go gw.Reconciler.Run(ctx, cfg.Reconcile.Interval, notifyCh)

	logger.Info("gateway is running",
		"discovery_addr", cfg.Discovery.ListenAddress,
		"dispatch_addr", cfg.Dispatch.ListenAddress)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, initiating graceful shutdown")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := gw.Shutdown(shutdownCtx); err != nil {
			logger.Error("gateway shutdown error", "error", err)
			return err
		}
		logger.Info("gateway stopped gracefully")

	case err := <-serveErrs:
		signal.Stop(sigChan)
		cancel()
		if err != nil {
			logger.Error("gateway serve error", "error", err)
			_ = gw.Shutdown(context.Background())
			return err
		}
	}

	return nil
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}

// startDaemon starts the gateway as a background daemon process.
func startDaemon() error {
	stateDir := os.Getenv("XDG_STATE_HOME")
	if stateDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		stateDir = filepath.Join(homeDir, ".local", "state")
	}
	gatewayStateDir := filepath.Join(stateDir, "nvmeof-gatewayd")

	if err := os.MkdirAll(gatewayStateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	pidPath := pidFile
	if pidPath == "" {
		pidPath = filepath.Join(gatewayStateDir, "nvmeof-gatewayd.pid")
	}

	if _, err := os.Stat(pidPath); err == nil {
		pidData, err := os.ReadFile(pidPath)
		if err == nil {
			var pid int
			if _, err := fmt.Sscanf(string(pidData), "%d", &pid); err == nil {
				if process, err := os.FindProcess(pid); err == nil {
					if err := process.Signal(syscall.Signal(0)); err == nil {
						return fmt.Errorf("nvmeof-gatewayd is already running (PID %d)\nUse 'nvmeof-gatewayd stop' to stop the running instance", pid)
					}
				}
			}
		}
		_ = os.Remove(pidPath)
	}

	logPath := logFile
	if logPath == "" {
		logPath = filepath.Join(gatewayStateDir, "nvmeof-gatewayd.log")
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	daemonArgs := []string{"start", "--foreground", "--pid-file", pidPath}
	if GetConfigFile() != "" {
		daemonArgs = append(daemonArgs, "--config", GetConfigFile())
	}

	cmd := exec.Command(executable, daemonArgs...)

	logFileHandle, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	cmd.Stdout = logFileHandle
	cmd.Stderr = logFileHandle
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		_ = logFileHandle.Close()
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	_ = logFileHandle.Close()

	fmt.Printf("nvmeof-gatewayd started in background (PID %d)\n", cmd.Process.Pid)
	fmt.Printf("  PID file: %s\n", pidPath)
	fmt.Printf("  Log file: %s\n", logPath)
	fmt.Println("\nUse 'nvmeof-gatewayd stop' to stop the gateway")
	fmt.Println("Use 'nvmeof-gatewayd status' to check gateway status")

	return nil
}
