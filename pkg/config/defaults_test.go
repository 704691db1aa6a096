package config

import (
	"testing"
	"time"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_ShutdownTimeout(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("expected default shutdown timeout 30s, got %v", cfg.ShutdownTimeout)
	}
}

func TestApplyDefaults_PGS(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.PGS.BDevsPerCluster != 32 {
		t.Errorf("expected default bdevs-per-cluster 32, got %d", cfg.PGS.BDevsPerCluster)
	}
	if cfg.PGS.OmapFileUpdateReloads != 10 {
		t.Errorf("expected default stale-CAS retries 10, got %d", cfg.PGS.OmapFileUpdateReloads)
	}
}

func TestApplyDefaults_Lease(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Lease.Duration != 60*time.Second {
		t.Errorf("expected default lease duration 60s, got %v", cfg.Lease.Duration)
	}
	if cfg.Lease.Retries != 15 {
		t.Errorf("expected default lease retries 15, got %d", cfg.Lease.Retries)
	}
	if cfg.Lease.RetrySleep != 5*time.Second {
		t.Errorf("expected default lease retry sleep 5s, got %v", cfg.Lease.RetrySleep)
	}
}

func TestApplyDefaults_Reconcile(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Reconcile.Interval != 5*time.Second {
		t.Errorf("expected default reconcile interval 5s, got %v", cfg.Reconcile.Interval)
	}
}

func TestApplyDefaults_Supervisor(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Supervisor.MaxLogFileSizeMB != 100 {
		t.Errorf("expected default max log file size 100MB, got %d", cfg.Supervisor.MaxLogFileSizeMB)
	}
	if cfg.Supervisor.MaxLogFiles != 5 {
		t.Errorf("expected default max log files 5, got %d", cfg.Supervisor.MaxLogFiles)
	}
	if cfg.Supervisor.RPCSocketName != "spdk.sock" {
		t.Errorf("expected default RPC socket name 'spdk.sock', got %q", cfg.Supervisor.RPCSocketName)
	}
	if cfg.Supervisor.PingSocketName != "spdk-ping.sock" {
		t.Errorf("expected default ping socket name 'spdk-ping.sock', got %q", cfg.Supervisor.PingSocketName)
	}
	if cfg.Supervisor.SubsystemsSocketName != "spdk-subsystems.sock" {
		t.Errorf("expected default subsystems socket name 'spdk-subsystems.sock', got %q", cfg.Supervisor.SubsystemsSocketName)
	}
	if cfg.Supervisor.Ping.Interval != 2*time.Second {
		t.Errorf("expected default ping interval 2s, got %v", cfg.Supervisor.Ping.Interval)
	}
	if cfg.Supervisor.Ping.AllowedConsecutiveFailures != 1 {
		t.Errorf("expected default allowed consecutive ping failures 1, got %d", cfg.Supervisor.Ping.AllowedConsecutiveFailures)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{
			Level:  "DEBUG",
			Format: "json",
			Output: "/var/log/nvmeof-gatewayd.log",
		},
		ShutdownTimeout: 60 * time.Second,
		PGS:             PGSConfig{BDevsPerCluster: 64},
	}

	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("expected explicit level 'DEBUG' to be preserved, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("expected explicit format 'json' to be preserved, got %q", cfg.Logging.Format)
	}
	if cfg.ShutdownTimeout != 60*time.Second {
		t.Errorf("expected explicit timeout 60s to be preserved, got %v", cfg.ShutdownTimeout)
	}
	if cfg.PGS.BDevsPerCluster != 64 {
		t.Errorf("expected explicit bdevs-per-cluster to be preserved, got %d", cfg.PGS.BDevsPerCluster)
	}
}

// validMinimalConfig returns a Config with every field that has no safe
// default (peer identity, storage backend, listen addresses, subprocess
// paths) filled in, then defaulted — the shape InitConfig produces.
func validMinimalConfig() *Config {
	cfg := GetDefaultConfig()
	cfg.Gateway.PeerName = "gw1"
	cfg.Gateway.GroupName = "group1"
	cfg.ObjectStore.Bucket = "nvmeof-gateway-state"
	cfg.Discovery.ListenAddress = "0.0.0.0:8009"
	cfg.Dispatch.ListenAddress = "0.0.0.0:5500"
	cfg.Supervisor.LogDir = "/var/log/nvmeof-gatewayd"
	cfg.Supervisor.EnginePath = "/usr/local/bin/nvmf_tgt"
	cfg.Supervisor.MonitorPath = "/usr/local/bin/nvmeof-monitor-client"
	cfg.Supervisor.RPCSocketDir = "/var/tmp"
	cfg.Supervisor.RendezvousAddr = "127.0.0.1:5499"
	return cfg
}

func TestGetDefaultConfig_FilledInIsValid(t *testing.T) {
	cfg := validMinimalConfig()
	if err := Validate(cfg); err != nil {
		t.Errorf("filled-in default config should be valid, got error: %v", err)
	}
}

func TestGetDefaultConfig_LeavesPeerIdentityBlank(t *testing.T) {
	cfg := GetDefaultConfig()
	if cfg.Gateway.PeerName != "" || cfg.Gateway.GroupName != "" {
		t.Error("GetDefaultConfig should not invent a peer identity")
	}
	if cfg.ObjectStore.Bucket != "" {
		t.Error("GetDefaultConfig should not invent an object-store bucket")
	}
}
