package config

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/dittobox/internal/cli/output"
	"github.com/marmos91/dittobox/pkg/config"
)

var showOutput string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	Long: `Display the effective DittoBox configuration: the file, environment
overrides and defaults merged together.

By default outputs YAML format. Use --output to change format.

Examples:
  # Show effective config as YAML
  dittobox config show

  # Show as JSON
  dittobox config show --output json

  # Show specific config file
  dittobox config show --config /etc/dittobox/config.yaml`,
	RunE: runConfigShow,
}

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "yaml", "Output format (yaml|json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(showOutput)
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(cmd.OutOrStdout(), cfg)
	default:
		data, err := config.Render(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
}
