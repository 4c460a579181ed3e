package config

import (
	"strings"
	"time"

	"github.com/marmos91/arcfs/internal/bytesize"
	"github.com/marmos91/arcfs/pkg/fs/driver/tar"
	"github.com/marmos91/arcfs/pkg/fs/filter/raes"
	"github.com/marmos91/arcfs/pkg/keys"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
// Zero values are replaced with defaults; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	applyMetricsDefaults(&cfg.Metrics)
	applyArchiveDefaults(&cfg.Archive)
	applyCryptoDefaults(&cfg.Crypto)
	applySyncDefaults(&cfg.Sync)
	applyWatchDefaults(&cfg.Watch)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
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
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyMetricsDefaults leaves metrics disabled; the port only matters once
// they are enabled.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyArchiveDefaults(cfg *ArchiveConfig) {
	if cfg.MaxSize == 0 {
		cfg.MaxSize = bytesize.ByteSize(tar.DefaultMaxSize)
	}
	if cfg.AutoCreate == nil {
		cfg.AutoCreate = boolPtr(true)
	}
}

func applyCryptoDefaults(cfg *CryptoConfig) {
	if cfg.KeyStrength == 0 {
		cfg.KeyStrength = keys.DefaultKeyStrength.Bits()
	}
	if cfg.KDFIterations == 0 {
		cfg.KDFIterations = raes.DefaultIterations
	}
	if cfg.MaxPasswordAttempts == 0 {
		cfg.MaxPasswordAttempts = keys.DefaultMaxAttempts
	}
}

func applySyncDefaults(cfg *SyncConfig) {
	if cfg.Interval == 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.UnmountOnShutdown == nil {
		cfg.UnmountOnShutdown = boolPtr(true)
	}
}

func applyWatchDefaults(cfg *WatchConfig) {
	if cfg.Enabled == nil {
		cfg.Enabled = boolPtr(true)
	}
}

func boolPtr(v bool) *bool { return &v }

// GetDefaultConfig returns a Config with all default values applied. It is
// what 'arcfs config init' writes.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Telemetry: TelemetryConfig{Insecure: true},
	}
	ApplyDefaults(cfg)
	return cfg
}
