package commands

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/marmos91/dittobox/cmd/dittoboxctl/cmdutil"
	"github.com/marmos91/dittobox/internal/cli/output"
)

var downloadCmd = &cobra.Command{
	Use:   "download <remote> [local]",
	Short: "Download a file",
	Long: `Download one of your files from the server.

The local path defaults to the remote name in the current directory.
Use "-" to write the contents to stdout.

Examples:
  # Download report.pdf into ./report.pdf
  dittoboxctl download report.pdf --user alice

  # Print a text file
  dittoboxctl download notes.txt - --user alice`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runDownload,
}

func runDownload(cmd *cobra.Command, args []string) error {
	remote := args[0]
	local := remote
	if len(args) == 2 {
		local = args[1]
	}

	c, err := cmdutil.Connect(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	if local == "-" {
		return c.DownloadTo(remote, cmd.OutOrStdout())
	}

	n, err := downloadFile(c, remote, local)
	if err != nil {
		return err
	}

	return cmdutil.PrintResourceWithSuccess(cmd.OutOrStdout(),
		output.Transfer{Direction: "download", Remote: remote, Local: local, Bytes: n},
		fmt.Sprintf("Downloaded %s to %s (%s)", remote, local, output.HumanBytes(n)))
}

// downloadFile fetches remote into memory first so a failed download never
// truncates an existing local file.
func downloadFile(c session, remote, local string) (int64, error) {
	data, err := c.Download(remote)
	if err != nil {
		return 0, err
	}
	if err := afero.WriteFile(cmdutil.LocalFs, local, data, 0644); err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", local, err)
	}
	return int64(len(data)), nil
}
