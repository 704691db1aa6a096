package config

import (
	"fmt"
	"os"
)

// InitConfig writes a sample configuration file to the default
// location (creating the config directory if needed), refusing to
// overwrite an existing file unless force is set. It mirrors the
// teacher's "dittofs init" command, retargeted at one gateway peer's
// settings instead of a DittoServer's shares/stores.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	return path, InitConfigToPath(path, force)
}

// InitConfigToPath writes a sample configuration file to path.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
		}
	}

	cfg := sampleConfig()
	return SaveConfig(cfg, path)
}

// sampleConfig returns a Config populated with representative,
// non-production values a new peer's operator is expected to edit:
// the gateway identity and storage backend have no safe default, so
// InitConfig still seeds something rather than leaving them blank.
func sampleConfig() *Config {
	cfg := GetDefaultConfig()
	cfg.Gateway.PeerName = "gw1"
	cfg.Gateway.GroupName = "group1"
	cfg.ObjectStore.Bucket = "nvmeof-gateway-state"
	cfg.ObjectStore.Region = "us-east-1"
	cfg.Discovery.ListenAddress = "0.0.0.0:8009"
	cfg.Dispatch.ListenAddress = "0.0.0.0:5500"
	cfg.Supervisor.LogDir = "/var/log/nvmeof-gatewayd"
	cfg.Supervisor.EnginePath = "/usr/local/bin/nvmf_tgt"
	cfg.Supervisor.MonitorPath = "/usr/local/bin/nvmeof-monitor-client"
	cfg.Supervisor.RPCSocketDir = "/var/tmp"
	cfg.Supervisor.RendezvousAddr = "127.0.0.1:5499"
	return cfg
}
