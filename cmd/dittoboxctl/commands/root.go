// Package commands implements the dittoboxctl client CLI.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/dittobox/cmd/dittoboxctl/cmdutil"
	"github.com/marmos91/dittobox/pkg/client"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "dittoboxctl",
	Short: "DittoBox client",
	Long: `dittoboxctl uploads, downloads, deletes and lists files on a DittoBox
server. Every command opens one session as --user and closes it with BYE.

Use "dittoboxctl shell" for an interactive session.

Use "dittoboxctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cmdutil.Flags.Server, _ = cmd.Flags().GetString("server")
		cmdutil.Flags.User, _ = cmd.Flags().GetString("user")
		cmdutil.Flags.Output, _ = cmd.Flags().GetString("output")
		cmdutil.Flags.Timeout, _ = cmd.Flags().GetDuration("timeout")
		cmdutil.Flags.NoColor, _ = cmd.Flags().GetBool("no-color")
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringP("server", "s", cmdutil.DefaultServer, "Server address (host:port)")
	rootCmd.PersistentFlags().StringP("user", "u", "", "Username (default: $"+cmdutil.EnvUser+")")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "Output format (table|json|yaml)")
	rootCmd.PersistentFlags().Duration("timeout", client.DefaultTimeout, "Per-request timeout")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(shellCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
