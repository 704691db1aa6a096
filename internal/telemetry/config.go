package telemetry

// Config holds OpenTelemetry configuration
type Config struct {
	// Enabled indicates whether tracing is enabled
	Enabled bool

	// ServiceName is the name of the service reported to the trace backend
	ServiceName string

	// ServiceVersion is the version of the service
	ServiceVersion string

	// Endpoint is the OTLP endpoint (e.g., "localhost:4317")
	Endpoint string

	// Insecure indicates whether to use insecure connection (no TLS)
	Insecure bool

	// SampleRate is the trace sampling rate (0.0 to 1.0)
	// 1.0 means sample all traces, 0.5 means sample 50%
	SampleRate float64

	// AlwaysSampleTopologyChanges forces a trace for every span whose
	// name matches one of the topology-mutating Resource Service spans
	// (create_subsystem, delete_subsystem, namespace_add/delete,
	// add_host/remove_host, create_listener/delete_listener), regardless
	// of SampleRate. These are low-frequency, high-value-to-debug
	// operations — a 1% sample rate tuned for discovery traffic volume
	// would otherwise drop almost all of them.
	AlwaysSampleTopologyChanges bool
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Enabled:                     false,
		ServiceName:                 "nvmeof-gatewayd",
		ServiceVersion:              "dev",
		Endpoint:                    "localhost:4317",
		Insecure:                    true,
		SampleRate:                  1.0,
		AlwaysSampleTopologyChanges: true,
	}
}
