package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittobox/internal/logger"
	"github.com/marmos91/dittobox/internal/telemetry"
	"github.com/marmos91/dittobox/pkg/config"
	"github.com/marmos91/dittobox/pkg/server"
)

var startPort int

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the DittoBox server",
	Long: `Start the DittoBox server in the foreground.

The server runs until it receives SIGINT or SIGTERM, then stops accepting
connections, lets queued work finish and exits.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/dittobox/config.yaml. Without a
configuration file the built-in defaults are used.

Examples:
  # Start with defaults on port 9000
  dittobox start

  # Start on another port
  dittobox start --port 9100

  # Start with custom config file
  dittobox start --config /etc/dittobox/config.yaml

  # Start with environment variable overrides
  DITTOBOX_LOGGING_LEVEL=DEBUG dittobox start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().IntVarP(&startPort, "port", "p", 0, "TCP port for the file protocol (overrides server.port)")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = startPort
		if err := config.Validate(cfg); err != nil {
			return err
		}
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "dittobox",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", logger.Err(err))
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "dittobox",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.Err(err))
		}
	}()

	fmt.Println("DittoBox - per-user file drop server")
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("Telemetry disabled")
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint, "profile_types", cfg.Telemetry.Profiling.ProfileTypes)
	} else {
		logger.Info("Profiling disabled")
	}

	srv, err := server.New(cfg)
	if err != nil {
		return err
	}

	if path, ok := resolveConfigPath(GetConfigFile()); ok {
		go watchLogLevel(ctx, path)
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx)
	}()

	go func() {
		if addr := srv.Addr(); addr != "" {
			logger.Info("Accepting connections", logger.Address(addr))
		}
		if cfg.API.Enabled {
			if addr := srv.APIAddr(); addr != "" {
				logger.Info("API listening", logger.Address(addr), "metrics", cfg.Metrics.Enabled)
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("Received signal, shutting down", "signal", sig.String())
		cancel()
		if err := <-serverDone; err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		logger.Info("Server stopped gracefully")
		return nil

	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}
}

// watchLogLevel applies logging.level edits without a restart. Every other
// setting needs one.
func watchLogLevel(ctx context.Context, path string) {
	err := config.Watch(ctx, path, func(cfg *config.Config) {
		logger.SetLevel(cfg.Logging.Level)
		logger.Info("Log level updated", "level", cfg.Logging.Level)
	})
	if err != nil {
		logger.Warn("Configuration watcher stopped", logger.Err(err))
	}
}
