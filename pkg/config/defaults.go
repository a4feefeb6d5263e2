package config

import (
	"strings"
	"time"

	"github.com/marmos91/dittobox/internal/protocol"
	"github.com/marmos91/dittobox/internal/telemetry"
	"github.com/marmos91/dittobox/pkg/adapter"
	"github.com/marmos91/dittobox/pkg/api"
	"github.com/marmos91/dittobox/pkg/storage"
	"github.com/marmos91/dittobox/pkg/worker"
)

// Pipeline defaults.
const (
	DefaultConnectionQueueSize = adapter.DefaultConnQueueSize
	DefaultSessionHandlers     = adapter.DefaultHandlers
	DefaultTaskQueueSize       = 128
	DefaultStorageWorkers      = worker.DefaultWorkers
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values are replaced with defaults, explicit values are preserved.
// Booleans are left alone: their defaults come from GetDefaultConfig when
// loading through viper.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	applyServerDefaults(&cfg.Server)
	applyPipelineDefaults(&cfg.Pipeline)
	applyStorageDefaults(&cfg.Storage)
	cfg.API.ApplyDefaults()
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
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Standard OTLP gRPC port
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
		cfg.ProfileTypes = append([]string(nil), telemetry.DefaultProfileTypes...)
	}
}

func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.MaxLineLength == 0 {
		cfg.MaxLineLength = protocol.DefaultMaxLineLength
	}
}

func applyPipelineDefaults(cfg *PipelineConfig) {
	if cfg.ConnectionQueueSize == 0 {
		cfg.ConnectionQueueSize = DefaultConnectionQueueSize
	}
	if cfg.SessionHandlers == 0 {
		cfg.SessionHandlers = DefaultSessionHandlers
	}
	if cfg.TaskQueueSize == 0 {
		cfg.TaskQueueSize = DefaultTaskQueueSize
	}
	if cfg.StorageWorkers == 0 {
		cfg.StorageWorkers = DefaultStorageWorkers
	}
}

func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Root == "" {
		cfg.Root = storage.DefaultRoot
	}
	if cfg.Quota == 0 {
		cfg.Quota = storage.DefaultQuota
	}
	if cfg.MaxUploadSize == 0 {
		cfg.MaxUploadSize = cfg.Quota
	}
}

// GetDefaultConfig returns a Config with all default values applied.
//
// The protocol listens on 0.0.0.0:9000 and the API on :8080. Metrics,
// telemetry and profiling are disabled.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{
			BindAddress: "0.0.0.0",
			Port:        protocol.DefaultPort,
		},
		Telemetry: TelemetryConfig{
			Insecure: true,
		},
		API: APIDefaults(),
	}
	ApplyDefaults(cfg)
	return cfg
}

// APIDefaults returns the API section with the server enabled.
func APIDefaults() api.APIConfig {
	c := api.APIConfig{Enabled: true}
	c.ApplyDefaults()
	return c
}
