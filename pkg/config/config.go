package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/arcfs/internal/bytesize"
)

// Config represents the arcfs configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (ARCFS_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout bounds the final sync of 'arcfs watch' on exit
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Archive controls how archives are decoded and created
	Archive ArchiveConfig `mapstructure:"archive" yaml:"archive"`

	// Crypto controls encrypted (RAES) archives
	Crypto CryptoConfig `mapstructure:"crypto" yaml:"crypto"`

	// Sync controls when changes are written back to the backing files
	Sync SyncConfig `mapstructure:"sync" yaml:"sync"`

	// Watch controls invalidation on external changes
	Watch WatchConfig `mapstructure:"watch" yaml:"watch"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317"
	Endpoint string `mapstructure:"endpoint" validate:"required_if=Enabled true" yaml:"endpoint"`

	// Insecure disables TLS towards the collector
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	// Default: "http://localhost:4040"
	Endpoint string `mapstructure:"endpoint" validate:"required_if=Enabled true" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server of
// 'arcfs watch'. When Enabled is false, no metrics are collected.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// ArchiveConfig controls archive decoding and creation.
type ArchiveConfig struct {
	// MaxSize bounds the decoded payload of a single archive
	// Supports human-readable formats: "256MiB", "1GB"
	// Default: 256MiB
	MaxSize bytesize.ByteSize `mapstructure:"max_size" yaml:"max_size"`

	// CompressionLevel is passed to the gzip, zstd and lz4 filters.
	// 0 selects each codec's default.
	CompressionLevel int `mapstructure:"compression_level" validate:"gte=0,lte=9" yaml:"compression_level"`

	// AutoCreate lets 'arcfs put' and 'arcfs mkdir' create missing archives
	// Default: true
	AutoCreate *bool `mapstructure:"auto_create" yaml:"auto_create"`
}

// CreateMissing reports whether missing archives are created on write.
func (c ArchiveConfig) CreateMissing() bool {
	return c.AutoCreate == nil || *c.AutoCreate
}

// CryptoConfig controls RAES archives.
type CryptoConfig struct {
	// KeyStrength is used for newly written encrypted archives
	// Valid values: 128, 192, 256
	// Default: 256
	KeyStrength int `mapstructure:"key_strength" validate:"oneof=128 192 256" yaml:"key_strength"`

	// KDFIterations is the PBKDF2 round count for new archives
	// Default: 210000
	KDFIterations int `mapstructure:"kdf_iterations" validate:"gte=1000" yaml:"kdf_iterations"`

	// MaxPasswordAttempts bounds interactive password prompts per archive
	// Default: 3
	MaxPasswordAttempts int `mapstructure:"max_password_attempts" validate:"gte=1,lte=10" yaml:"max_password_attempts"`
}

// SyncConfig controls periodic sync in 'arcfs watch'.
type SyncConfig struct {
	// Interval between automatic syncs
	// Default: 30s
	Interval time.Duration `mapstructure:"interval" validate:"gt=0" yaml:"interval"`

	// UnmountOnShutdown unmounts every archive after the final sync
	// Default: true
	UnmountOnShutdown *bool `mapstructure:"unmount_on_shutdown" yaml:"unmount_on_shutdown"`
}

// Unmount reports whether the final sync unmounts.
func (c SyncConfig) Unmount() bool {
	return c.UnmountOnShutdown == nil || *c.UnmountOnShutdown
}

// WatchConfig controls fsnotify based invalidation in 'arcfs watch'.
type WatchConfig struct {
	// Enabled invalidates controllers when their host file changes
	// Default: true
	Enabled *bool `mapstructure:"enabled" yaml:"enabled"`
}

// IsEnabled reports whether external changes are watched.
func (c WatchConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (ARCFS_*)
//  2. Configuration file
//  3. Default values
//
// An empty configPath uses the default location. A missing file is not an
// error and yields the defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		cfg := GetDefaultConfig()
		applyEnvOverrides(v, cfg)
		if err := Validate(cfg); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
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

// MustLoad loads configuration and fails with instructions when the file
// does not exist.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  arcfs config init\n\n"+
				"Or specify a custom config file:\n"+
				"  arcfs <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  arcfs config init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to path in YAML format.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
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

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: ARCFS_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("ARCFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(getConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// applyEnvOverrides applies the environment variables viper knows about to
// a config built from defaults. AutomaticEnv only takes effect for keys viper
// has seen, so without a file the keys are bound explicitly.
func applyEnvOverrides(v *viper.Viper, cfg *Config) {
	for _, key := range []string{
		"logging.level", "logging.format", "logging.output",
		"metrics.enabled", "metrics.port",
		"sync.interval", "archive.max_size",
	} {
		_ = v.BindEnv(key)
	}

	if s := v.GetString("logging.level"); s != "" {
		cfg.Logging.Level = strings.ToUpper(s)
	}
	if s := v.GetString("logging.format"); s != "" {
		cfg.Logging.Format = s
	}
	if s := v.GetString("logging.output"); s != "" {
		cfg.Logging.Output = s
	}
	if v.IsSet("metrics.enabled") {
		cfg.Metrics.Enabled = v.GetBool("metrics.enabled")
	}
	if p := v.GetInt("metrics.port"); p != 0 {
		cfg.Metrics.Port = p
	}
	if d := v.GetDuration("sync.interval"); d != 0 {
		cfg.Sync.Interval = d
	}
	if s := v.GetString("archive.max_size"); s != "" {
		if size, err := bytesize.ParseByteSize(s); err == nil {
			cfg.Archive.MaxSize = size
		}
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
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

// configDecodeHooks returns a combined decode hook for ByteSize and
// time.Duration fields.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings like "256MiB" and plain numbers to
// bytesize.ByteSize.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings like "30s" to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
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

// getConfigDir returns $XDG_CONFIG_HOME/arcfs, ~/.config/arcfs, or "." when
// the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "arcfs")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "arcfs")
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
