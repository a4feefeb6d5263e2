package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittobox/cmd/dittoboxctl/cmdutil"
	"github.com/marmos91/dittobox/internal/cli/output"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <local> [remote]",
	Short: "Upload a local file",
	Long: `Upload a local file to your directory on the server.

The remote name defaults to the base name of the local file. An existing
remote file with the same name is replaced.

Examples:
  # Upload report.pdf as report.pdf
  dittoboxctl upload ./report.pdf --user alice

  # Upload under another name
  dittoboxctl upload ./report.pdf q3.pdf --user alice`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runUpload,
}

func runUpload(cmd *cobra.Command, args []string) error {
	local := args[0]
	remote := filepath.Base(local)
	if len(args) == 2 {
		remote = args[1]
	}

	c, err := cmdutil.Connect(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	n, err := uploadFile(c, local, remote)
	if err != nil {
		return err
	}

	return cmdutil.PrintResourceWithSuccess(cmd.OutOrStdout(),
		output.Transfer{Direction: "upload", Remote: remote, Local: local, Bytes: n},
		fmt.Sprintf("Uploaded %s as %s (%s)", local, remote, output.HumanBytes(n)))
}

// uploadFile streams a local file to the server and returns its size.
func uploadFile(c session, local, remote string) (int64, error) {
	f, err := cmdutil.LocalFs.Open(local)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", local, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", local, err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%s is a directory", local)
	}

	if err := c.UploadFrom(remote, f, info.Size()); err != nil {
		return 0, err
	}
	return info.Size(), nil
}
