package config

import (
	"strings"
	"testing"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validMinimalConfig()

	if err := Validate(cfg); err != nil {
		t.Errorf("expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := validMinimalConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := validMinimalConfig()
	cfg.Logging.Format = "xml"

	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for invalid log format")
	}
}

func TestValidate_MissingPeerName(t *testing.T) {
	cfg := validMinimalConfig()
	cfg.Gateway.PeerName = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error for missing gateway peer name")
	}
	if !strings.Contains(strings.ToLower(err.Error()), "peername") {
		t.Errorf("expected error mentioning PeerName, got: %v", err)
	}
}

func TestValidate_MissingObjectStoreBucket(t *testing.T) {
	cfg := validMinimalConfig()
	cfg.ObjectStore.Bucket = ""

	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for missing object store bucket")
	}
}

func TestValidate_NegativeGroupID(t *testing.T) {
	cfg := validMinimalConfig()
	cfg.Gateway.GroupID = -1

	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for negative group id")
	}
}

func TestValidate_MissingDiscoveryListenAddress(t *testing.T) {
	cfg := validMinimalConfig()
	cfg.Discovery.ListenAddress = ""

	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for missing discovery listen address")
	}
}

func TestValidate_TelemetryEnabledWithoutEndpoint(t *testing.T) {
	cfg := validMinimalConfig()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Endpoint = ""

	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for telemetry enabled without endpoint")
	}
}

func TestValidate_TelemetrySampleRateOutOfRange(t *testing.T) {
	cfg := validMinimalConfig()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Endpoint = "localhost:4317"
	cfg.Telemetry.SampleRate = 1.5

	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for sample rate out of range")
	}
}

func TestValidate_ShutdownTimeoutMustBePositive(t *testing.T) {
	cfg := validMinimalConfig()
	cfg.ShutdownTimeout = 0

	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for zero shutdown timeout")
	}
}

func TestValidate_LogLevelNormalization(t *testing.T) {
	for _, level := range []string{"info", "INFO", "debug", "DEBUG", "warn", "WARN", "error", "ERROR"} {
		cfg := validMinimalConfig()
		cfg.Logging.Level = level

		if err := Validate(cfg); err != nil {
			t.Errorf("validation failed for level %q: %v", level, err)
		}
		if cfg.Logging.Level != level {
			t.Errorf("expected level to remain %q after validation, got %q", level, cfg.Logging.Level)
		}
	}

	cfg := &Config{Logging: LoggingConfig{Level: "info"}}
	ApplyDefaults(cfg)
	if cfg.Logging.Level != "INFO" {
		t.Errorf("expected ApplyDefaults to normalize 'info' to 'INFO', got %q", cfg.Logging.Level)
	}
}
