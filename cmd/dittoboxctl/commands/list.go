package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/dittobox/cmd/dittoboxctl/cmdutil"
	"github.com/marmos91/dittobox/internal/cli/output"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List your files",
	Long: `List the files stored in your directory on the server.

Examples:
  dittoboxctl list --user alice
  dittoboxctl list --user alice --output json`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func runList(cmd *cobra.Command, args []string) error {
	c, err := cmdutil.Connect(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	names, err := c.List()
	if err != nil {
		return err
	}

	list := output.FileList{User: c.Username(), Files: names}
	if list.Files == nil {
		list.Files = []string{}
	}
	return cmdutil.PrintOutput(cmd.OutOrStdout(), list, len(names) == 0, "No files.", list)
}
