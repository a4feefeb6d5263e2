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

	"github.com/marmos91/dittobox/internal/bytesize"
	"github.com/marmos91/dittobox/pkg/api"
)

// EnvPrefix is the prefix of environment variable overrides.
// Example: DITTOBOX_PIPELINE_STORAGE_WORKERS=8
const EnvPrefix = "DITTOBOX"

// Config represents the complete DittoBox server configuration.
//
// The configuration is loaded from a YAML file, environment variables and
// built-in defaults, in that order of precedence (environment wins).
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout bounds the graceful shutdown sequence
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Server configures the dropbox protocol listener
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Pipeline sizes the connection queue, task queue and the two pools
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`

	// Storage configures the on-disk file tree and quota
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Metrics enables Prometheus metrics collection
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// API configures the HTTP health/stats/metrics endpoints
	API api.APIConfig `mapstructure:"api" yaml:"api"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format.
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written.
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	// Enabled controls whether tracing is active.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector endpoint.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure disables TLS towards the collector.
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate is the fraction of traces to sample, between 0 and 1.
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling configures continuous profiling via Pyroscope.
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server URL.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes lists the profiles to collect (cpu, alloc_space, goroutines, ...).
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// ServerConfig configures the dropbox protocol listener and sessions.
type ServerConfig struct {
	// BindAddress is the IP address to listen on. Empty means all interfaces.
	BindAddress string `mapstructure:"bind_address" validate:"omitempty,ip" yaml:"bind_address"`

	// Port is the TCP port for the line protocol. 0 picks a free port.
	Port int `mapstructure:"port" validate:"min=0,max=65535" yaml:"port"`

	// MaxLineLength bounds a single command line, including the newline.
	MaxLineLength int `mapstructure:"max_line_length" validate:"omitempty,min=16" yaml:"max_line_length"`

	// IdleTimeout closes sessions that send nothing for this long. 0 disables it.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"gte=0" yaml:"idle_timeout"`

	// MetricsLogInterval emits a periodic pipeline stats log line. 0 disables it.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" validate:"gte=0" yaml:"metrics_log_interval"`
}

// PipelineConfig sizes the two bounded queues and the pools draining them.
type PipelineConfig struct {
	ConnectionQueueSize int `mapstructure:"connection_queue_size" validate:"required,min=1" yaml:"connection_queue_size"`
	SessionHandlers     int `mapstructure:"session_handlers" validate:"required,min=1" yaml:"session_handlers"`
	TaskQueueSize       int `mapstructure:"task_queue_size" validate:"required,min=1" yaml:"task_queue_size"`
	StorageWorkers      int `mapstructure:"storage_workers" validate:"required,min=1" yaml:"storage_workers"`

	// RejectWhenFull replies SERVER BUSY instead of blocking when the task
	// queue is full.
	RejectWhenFull bool `mapstructure:"reject_when_full" yaml:"reject_when_full"`
}

// StorageConfig configures the per-user file tree.
type StorageConfig struct {
	// Root is the directory holding one subdirectory per user.
	Root string `mapstructure:"root" validate:"required" yaml:"root"`

	// Quota is the per-user storage limit.
	// Supports human-readable formats: "10MiB", "500KB", "1GB"
	Quota bytesize.ByteSize `mapstructure:"quota" validate:"required" yaml:"quota"`

	// MaxUploadSize caps the declared size of a single upload. Larger
	// uploads are discarded by the session without reaching a worker.
	MaxUploadSize bytesize.ByteSize `mapstructure:"max_upload_size" validate:"required" yaml:"max_upload_size"`

	// SerializeUserUploads makes concurrent uploads for one user run one at
	// a time so the quota check and the write are atomic together.
	SerializeUserUploads bool `mapstructure:"serialize_user_uploads" yaml:"serialize_user_uploads"`
}

// MetricsConfig controls Prometheus metrics collection. When enabled the
// metrics are served on the API server at /metrics.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DITTOBOX_*)
//  2. Configuration file
//  3. Default values
//
// An empty configPath searches the default location. A missing file is
// not an error; defaults and environment still apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := bindDefaults(v); err != nil {
		return nil, err
	}

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	return decode(v)
}

// MustLoad loads configuration but fails with instructions when no
// configuration file exists.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  dittobox init\n\n"+
				"Or specify a custom config file:\n"+
				"  dittobox <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  dittobox init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path as YAML, creating parent directories.
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return writeConfigFile(path, data)
}

func writeConfigFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// decode unmarshals the merged viper state, fills gaps and validates.
func decode(v *viper.Viper) (*Config, error) {
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

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// DITTOBOX_STORAGE_QUOTA overrides storage.quota
	v.SetEnvPrefix(EnvPrefix)
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

// bindDefaults registers every default as a viper key. AutomaticEnv only
// consults keys viper knows about, so this is what lets environment
// variables override settings absent from the file.
func bindDefaults(v *viper.Viper) error {
	data, err := yaml.Marshal(GetDefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal defaults: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("failed to load defaults: %w", err)
	}
	setDefaults(v, "", tree)
	return nil
}

func setDefaults(v *viper.Viper, prefix string, tree map[string]any) {
	for key, value := range tree {
		if prefix != "" {
			key = prefix + "." + key
		}
		if sub, ok := value.(map[string]any); ok {
			setDefaults(v, key, sub)
			continue
		}
		v.SetDefault(key, value)
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

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// byteSizeDecodeHook converts strings and numbers to bytesize.ByteSize so
// config files can say "10MiB", "500KB" or a plain byte count.
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

// durationDecodeHook converts strings like "30s" or "5m" to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Raw integers are nanoseconds
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

// getConfigDir returns $XDG_CONFIG_HOME/dittobox, ~/.config/dittobox, or
// the current directory when no home directory can be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittobox")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "dittobox")
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
