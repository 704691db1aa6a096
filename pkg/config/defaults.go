package config

import (
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields, after loading from file and environment but before validation.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	applyObjectStoreDefaults(&cfg.ObjectStore)
	applyPGSDefaults(&cfg.PGS)
	applyLeaseDefaults(&cfg.Lease)
	applyReconcileDefaults(&cfg.Reconcile)
	applySupervisorDefaults(&cfg.Supervisor)

	// No defaults for Gateway.PeerName/GroupName, ObjectStore.Bucket,
	// Discovery.ListenAddress, Dispatch.ListenAddress, or the
	// Supervisor's subprocess paths: these identify this peer and its
	// environment and have no safe default value.
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{"cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space", "goroutines"}
	}
}

func applyObjectStoreDefaults(cfg *ObjectStoreConfig) {
	if cfg.WatchPoll == 0 {
		cfg.WatchPoll = 5 * time.Second
	}
}

// applyPGSDefaults sets the cluster-context and stale-retry defaults
// of §4.6.4/§4.2: 32 backing devices per cluster context, 10 stale-CAS
// retries before a write surfaces ErrStale.
func applyPGSDefaults(cfg *PGSConfig) {
	if cfg.BDevsPerCluster == 0 {
		cfg.BDevsPerCluster = 32
	}
	if cfg.OmapFileUpdateReloads == 0 {
		cfg.OmapFileUpdateReloads = 10
	}
}

// applyLeaseDefaults mirrors pkg/pgs.DefaultLeaseConfig.
func applyLeaseDefaults(cfg *LeaseConfigYAML) {
	if cfg.Duration == 0 {
		cfg.Duration = 60 * time.Second
	}
	if cfg.Retries == 0 {
		cfg.Retries = 15
	}
	if cfg.RetrySleep == 0 {
		cfg.RetrySleep = 5 * time.Second
	}
}

func applyReconcileDefaults(cfg *ReconcileConfig) {
	if cfg.Interval == 0 {
		cfg.Interval = 5 * time.Second
	}
}

// applySupervisorDefaults sets the subprocess socket-name and
// health-ping defaults of §6/§9's Supervisor description.
func applySupervisorDefaults(cfg *SupervisorConfig) {
	if cfg.MaxLogFileSizeMB == 0 {
		cfg.MaxLogFileSizeMB = 100
	}
	if cfg.MaxLogFiles == 0 {
		cfg.MaxLogFiles = 5
	}
	if cfg.RPCSocketName == "" {
		cfg.RPCSocketName = "spdk.sock"
	}
	if cfg.PingSocketName == "" {
		cfg.PingSocketName = "spdk-ping.sock"
	}
	if cfg.SubsystemsSocketName == "" {
		cfg.SubsystemsSocketName = "spdk-subsystems.sock"
	}
	if cfg.Ping.Interval == 0 {
		cfg.Ping.Interval = 2 * time.Second
	}
	if cfg.Ping.AllowedConsecutiveFailures == 0 {
		cfg.Ping.AllowedConsecutiveFailures = 1
	}
}

// GetDefaultConfig returns a Config populated entirely with defaults,
// used when no config file is found at the default location.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
