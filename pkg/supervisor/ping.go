package supervisor

import (
	"context"
	"time"

	"github.com/marmos91/nvmeof-gateway/internal/logger"
	"github.com/marmos91/nvmeof-gateway/pkg/rpcclient"
)

// PingConfig controls the engine liveness probe, per §4.8.
type PingConfig struct {
	Interval                   time.Duration // default 2s
	AllowedConsecutiveFailures int           // default 1
}

// DefaultPingConfig returns the spec's stated defaults.
func DefaultPingConfig() PingConfig {
	return PingConfig{Interval: 2 * time.Second, AllowedConsecutiveFailures: 1}
}

// runPingLoop issues spdk_get_version on the dedicated ping socket
// every cfg.Interval; after cfg.AllowedConsecutiveFailures consecutive
// failures it calls onFatal once and returns.
func runPingLoop(ctx context.Context, client *rpcclient.Client, cfg PingConfig, metrics Metrics, onFatal func(error)) {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultPingConfig().Interval
	}
	allowed := cfg.AllowedConsecutiveFailures
	if allowed <= 0 {
		allowed = 1
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			callCtx, cancel := context.WithTimeout(ctx, interval)
			var version struct {
				Version string `json:"version"`
			}
			err := client.Call(callCtx, "spdk_get_version", nil, &version)
			cancel()

			if err != nil {
				failures++
				logger.Warn("supervisor: ping failed", "consecutive_failures", failures, "error", err)
				if metrics != nil {
					metrics.RecordPingFailure(failures)
				}
				if failures >= allowed {
					onFatal(err)
					return
				}
				continue
			}
			failures = 0
			if metrics != nil {
				metrics.RecordPingSuccess()
			}
		}
	}
}
