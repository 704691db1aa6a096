package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the nvmeof-gatewayd process configuration.
//
// It captures every static aspect of one gateway peer: its identity
// within the group, the object store and local cache it shares PGS
// state through, the SPDK target engine and monitor-client subprocess
// it supervises, the Discovery Responder's listen address, the
// Resource Service's gRPC surface, and the ambient logging/telemetry
// stack. Dynamic state (subsystems, namespaces, hosts, listeners) lives
// in PGS, not here.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (NVMEOF_*) (highest priority)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
//
// CLI flags do not override individual values; --config only selects
// the file.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout bounds how long Supervisor.Shutdown waits for the
	// monitor-client and target-engine subprocesses to exit cleanly
	// before escalating to SIGKILL.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	Gateway     GatewayConfig     `mapstructure:"gateway" yaml:"gateway"`
	ObjectStore ObjectStoreConfig `mapstructure:"object_store" yaml:"object_store"`
	PGS         PGSConfig         `mapstructure:"pgs" yaml:"pgs"`
	Lease       LeaseConfigYAML   `mapstructure:"lease" yaml:"lease"`
	Reconcile   ReconcileConfig   `mapstructure:"reconcile" yaml:"reconcile"`
	Discovery   DiscoveryConfig   `mapstructure:"discovery" yaml:"discovery"`
	Dispatch    DispatchConfig    `mapstructure:"dispatch" yaml:"dispatch"`
	Supervisor  SupervisorConfig  `mapstructure:"supervisor" yaml:"supervisor"`
}

// GatewayConfig identifies this peer within its gateway group.
type GatewayConfig struct {
	// PeerName is this gateway's name, used for listener gateway_name
	// matching, ANA-ownership comparisons, and object-store service
	// registration.
	PeerName string `mapstructure:"peer_name" validate:"required" yaml:"peer_name"`

	// GroupName identifies the set of peers sharing one PGS object.
	GroupName string `mapstructure:"group_name" validate:"required" yaml:"group_name"`

	// GroupID is this peer's position within its group, used to compute
	// its controller-id block ([GroupID*2040+1 .. +2040]). At startup it
	// is replaced by the group id the monitor-client delivers through the
	// rendezvous server.
	GroupID int `mapstructure:"group_id" validate:"gte=0" yaml:"group_id"`
}

// ObjectStoreConfig configures the S3-backed PGS object store.
type ObjectStoreConfig struct {
	Bucket         string        `mapstructure:"bucket" validate:"required" yaml:"bucket"`
	Region         string        `mapstructure:"region" yaml:"region"`
	Endpoint       string        `mapstructure:"endpoint" yaml:"endpoint"`
	KeyPrefix      string        `mapstructure:"key_prefix" yaml:"key_prefix"`
	ForcePathStyle bool          `mapstructure:"force_path_style" yaml:"force_path_style"`
	WatchPoll      time.Duration `mapstructure:"watch_poll_interval" yaml:"watch_poll_interval"`
}

// PGSConfig controls the Resource Service's in-memory PGS mirror and
// cluster-context allocator.
type PGSConfig struct {
	// BDevsPerCluster bounds how many backing devices one cluster
	// context may hold before a new one is created. Default 32.
	BDevsPerCluster int `mapstructure:"bdevs_per_cluster" validate:"omitempty,gt=0" yaml:"bdevs_per_cluster"`

	// OmapFileUpdateReloads bounds stale-CAS retries before a write
	// surfaces ErrStale to its caller. Default 10.
	OmapFileUpdateReloads int `mapstructure:"omap_file_update_reloads" validate:"omitempty,gt=0" yaml:"omap_file_update_reloads"`
}

// LeaseConfigYAML mirrors pkg/pgs.LeaseConfig with mapstructure/yaml
// tags; pkg/pgs itself carries no serialization tags since it is
// constructed in-process, never unmarshalled directly.
type LeaseConfigYAML struct {
	Duration      time.Duration `mapstructure:"duration" yaml:"duration"`
	Retries       int           `mapstructure:"retries" validate:"omitempty,gt=0" yaml:"retries"`
	RetrySleep    time.Duration `mapstructure:"retry_sleep" yaml:"retry_sleep"`
	DisableUnlock bool          `mapstructure:"disable_unlock" yaml:"disable_unlock"`
}

// ReconcileConfig controls the State Reconciler's polling cadence.
type ReconcileConfig struct {
	// Interval is the fallback poll period used when no faster
	// object-store notify arrives. Default 5s.
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// DiscoveryConfig configures the NVMe/TCP Discovery Responder.
type DiscoveryConfig struct {
	// ListenAddress is the TCP address the Discovery Responder accepts
	// connections on, e.g. "0.0.0.0:8009" (the standard discovery port).
	ListenAddress string `mapstructure:"listen_address" validate:"required" yaml:"listen_address"`
}

// DispatchConfig configures the external Resource Service gRPC server.
type DispatchConfig struct {
	// ListenAddress is the TCP address the Resource Service gRPC server
	// binds to, e.g. "0.0.0.0:5500".
	ListenAddress string `mapstructure:"listen_address" validate:"required" yaml:"listen_address"`
}

// SupervisorConfig configures the target-engine and monitor-client
// subprocess lifecycle.
type SupervisorConfig struct {
	LogDir           string `mapstructure:"log_dir" validate:"required" yaml:"log_dir"`
	MaxLogFileSizeMB int    `mapstructure:"max_log_file_size_mb" validate:"omitempty,gt=0" yaml:"max_log_file_size_mb"`
	MaxLogFiles      int    `mapstructure:"max_log_files" validate:"omitempty,gt=0" yaml:"max_log_files"`

	EnginePath string   `mapstructure:"engine_path" validate:"required" yaml:"engine_path"`
	EngineArgs []string `mapstructure:"engine_args" yaml:"engine_args"`

	MonitorPath string   `mapstructure:"monitor_path" validate:"required" yaml:"monitor_path"`
	MonitorArgs []string `mapstructure:"monitor_args" yaml:"monitor_args"`

	RPCSocketDir         string `mapstructure:"rpc_socket_dir" validate:"required" yaml:"rpc_socket_dir"`
	RPCSocketName        string `mapstructure:"rpc_socket_name" yaml:"rpc_socket_name"`
	PingSocketName       string `mapstructure:"ping_socket_name" yaml:"ping_socket_name"`
	SubsystemsSocketName string `mapstructure:"subsystems_socket_name" yaml:"subsystems_socket_name"`

	RendezvousAddr string `mapstructure:"rendezvous_address" validate:"required" yaml:"rendezvous_address"`

	Ping PingConfig `mapstructure:"ping" yaml:"ping"`
}

// PingConfig mirrors pkg/supervisor.PingConfig with serialization tags.
type PingConfig struct {
	Interval                   time.Duration `mapstructure:"interval" yaml:"interval"`
	AllowedConsecutiveFailures int           `mapstructure:"allowed_consecutive_failures" validate:"omitempty,gt=0" yaml:"allowed_consecutive_failures"`
}

// LoggingConfig controls logging behavior, mirroring internal/logger.Config.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format is the log output format: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is where logs are written: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry tracing, mirroring
// internal/telemetry.Config.
type TelemetryConfig struct {
	Enabled    bool            `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string          `mapstructure:"endpoint" validate:"required_if=Enabled true" yaml:"endpoint"`
	Insecure   bool            `mapstructure:"insecure" yaml:"insecure"`
	SampleRate float64         `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`
	Profiling  ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`

	// MetricsEnabled toggles the Prometheus metrics registry
	// independently of trace export (Enabled above).
	MetricsEnabled bool `mapstructure:"metrics_enabled" yaml:"metrics_enabled"`

	// AlwaysSampleTopologyChanges forces a trace for topology-mutating
	// Resource Service operations regardless of SampleRate.
	AlwaysSampleTopologyChanges bool `mapstructure:"always_sample_topology_changes" yaml:"always_sample_topology_changes"`
}

// ProfilingConfig controls Pyroscope continuous profiling, mirroring
// internal/telemetry.ProfilingConfig.
type ProfilingConfig struct {
	Enabled      bool     `mapstructure:"enabled" yaml:"enabled"`
	Endpoint     string   `mapstructure:"endpoint" yaml:"endpoint"`
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest): environment variables
// (NVMEOF_*), configuration file, default values.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when the
// file is missing, mirroring the teacher's "dittofs init" guidance.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please create a configuration file first, or specify one with:\n"+
				"  nvmeof-gatewayd <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// Validate runs go-playground/validator struct-tag validation over cfg.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}

// SaveConfig saves the configuration to path in YAML format.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("NVMEOF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns the combined decode hook for time.Duration
// parsing from human-readable strings like "30s", "5m".
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(durationDecodeHook())
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "nvmeof-gatewayd")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "nvmeof-gatewayd")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
