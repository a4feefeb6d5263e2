package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittobox/cmd/dittoboxctl/cmdutil"
)

var deleteCmd = &cobra.Command{
	Use:     "delete <remote>",
	Aliases: []string{"rm"},
	Short:   "Delete a file",
	Long: `Delete one of your files from the server.

Examples:
  dittoboxctl delete report.pdf --user alice`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func runDelete(cmd *cobra.Command, args []string) error {
	c, err := cmdutil.Connect(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	if err := c.Delete(args[0]); err != nil {
		return err
	}

	return cmdutil.PrintResourceWithSuccess(cmd.OutOrStdout(),
		map[string]string{"deleted": args[0]},
		fmt.Sprintf("Deleted %s", args[0]))
}
