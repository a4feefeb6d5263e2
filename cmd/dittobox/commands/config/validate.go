package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittobox/internal/cli/output"
	"github.com/marmos91/dittobox/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the DittoBox configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  dittobox config validate

  # Validate specific config file
  dittobox config validate --config /etc/dittobox/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	var warnings []string
	if cfg.Pipeline.RejectWhenFull && cfg.Pipeline.TaskQueueSize < cfg.Pipeline.SessionHandlers {
		warnings = append(warnings, "task_queue_size is smaller than session_handlers; sessions will see SERVER BUSY under load")
	}
	if cfg.Metrics.Enabled && !cfg.API.Enabled {
		warnings = append(warnings, "metrics are enabled but the API is disabled; /metrics will not be served")
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n", displayPath)
	_, _ = fmt.Fprintln(out, "Validation: OK")

	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			_, _ = fmt.Fprintf(out, "  - %s\n", w)
		}
	}

	_, _ = fmt.Fprintf(out, "\nConfiguration summary:\n")
	_, _ = fmt.Fprintf(out, "  Listen:          %s:%d\n", cfg.Server.BindAddress, cfg.Server.Port)
	_, _ = fmt.Fprintf(out, "  Storage root:    %s\n", cfg.Storage.Root)
	_, _ = fmt.Fprintf(out, "  Quota:           %s\n", output.HumanBytes(cfg.Storage.Quota.Int64()))
	_, _ = fmt.Fprintf(out, "  Pipeline:        %d handlers, %d workers\n", cfg.Pipeline.SessionHandlers, cfg.Pipeline.StorageWorkers)
	_, _ = fmt.Fprintf(out, "  Log level:       %s\n", cfg.Logging.Level)

	return nil
}
