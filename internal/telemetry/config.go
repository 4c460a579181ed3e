package telemetry

// Config configures OTLP tracing.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string

	// Endpoint is the OTLP/gRPC collector address, host:port.
	Endpoint string

	// Insecure disables TLS towards the collector.
	Insecure bool

	// SampleRate is the fraction of traces kept, clamped to [0, 1].
	SampleRate float64
}

// DefaultConfig returns a disabled configuration pointing at a local
// collector.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "arcfs",
		ServiceVersion: "dev",
		Endpoint:       "localhost:4317",
		Insecure:       true,
		SampleRate:     1.0,
	}
}

// ProfilingConfig configures Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string

	// Endpoint is the Pyroscope server URL.
	Endpoint string

	// ProfileTypes lists the profiles to collect, see ProfileTypes.
	ProfileTypes []string
}
