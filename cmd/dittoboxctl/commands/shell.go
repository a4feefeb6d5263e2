package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittobox/cmd/dittoboxctl/cmdutil"
	"github.com/marmos91/dittobox/internal/cli/output"
	"github.com/marmos91/dittobox/internal/protocol"
	"github.com/marmos91/dittobox/pkg/client"
)

// session is the part of *client.Client the commands use.
type session interface {
	UploadFrom(name string, r io.Reader, size int64) error
	Download(name string) ([]byte, error)
	DownloadTo(name string, w io.Writer) error
	Delete(name string) error
	List() ([]string, error)
}

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive session",
	Long: `Open one session and read commands from stdin until BYE or end of input.

Commands:
  UPLOAD <local> [remote]    upload a local file
  DOWNLOAD <remote> [local]  print a file, or save it to a local path
  DELETE <remote>            delete a file
  LIST                       list your files
  BYE                        end the session

Examples:
  dittoboxctl shell --user alice
  printf 'UPLOAD a.txt\nLIST\nBYE\n' | dittoboxctl shell --user alice`,
	Args: cobra.NoArgs,
	RunE: runShellCmd,
}

func runShellCmd(cmd *cobra.Command, args []string) error {
	c, err := cmdutil.Connect(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Connected to %s as %s\n", cmdutil.Flags.Server, c.Username())
	err = runShell(c, cmd.InOrStdin(), out)
	_, _ = fmt.Fprintln(out, "Disconnected.")
	return err
}

// runShell executes commands read from in until BYE, end of input or a
// broken connection.
func runShell(c session, in io.Reader, out io.Writer) error {
	_, _ = fmt.Fprintln(out, "Type commands (UPLOAD, DOWNLOAD, DELETE, LIST, BYE)")

	scanner := bufio.NewScanner(in)
	for {
		_, _ = fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			_, _ = fmt.Fprintln(out)
			return scanner.Err()
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		cmd := strings.ToUpper(fields[0])
		if cmd == protocol.CmdBye {
			return nil
		}

		err := shellExec(c, out, cmd, fields[1:])
		if err == nil {
			continue
		}
		_, _ = fmt.Fprintf(out, "Error: %v\n", err)
		if errors.Is(err, client.ErrClosed) {
			return err
		}
	}
}

func shellExec(c session, out io.Writer, cmd string, args []string) error {
	switch cmd {
	case protocol.CmdUpload:
		if len(args) < 1 || len(args) > 2 {
			return errors.New("usage: UPLOAD <local> [remote]")
		}
		remote := filepath.Base(args[0])
		if len(args) == 2 {
			remote = args[1]
		}
		n, err := uploadFile(c, args[0], remote)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "Uploaded %s (%s)\n", remote, output.HumanBytes(n))

	case protocol.CmdDownload:
		if len(args) < 1 || len(args) > 2 {
			return errors.New("usage: DOWNLOAD <remote> [local]")
		}
		if len(args) == 1 {
			if err := c.DownloadTo(args[0], out); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(out)
			return nil
		}
		n, err := downloadFile(c, args[0], args[1])
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "Saved %s to %s (%s)\n", args[0], args[1], output.HumanBytes(n))

	case protocol.CmdDelete:
		if len(args) != 1 {
			return errors.New("usage: DELETE <remote>")
		}
		if err := c.Delete(args[0]); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "Deleted %s\n", args[0])

	case protocol.CmdList:
		names, err := c.List()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			_, _ = fmt.Fprintln(out, protocol.NoFilesPlaceholder)
		}
		for _, name := range names {
			_, _ = fmt.Fprintln(out, name)
		}

	default:
		_, _ = fmt.Fprintln(out, "Unknown command.")
	}
	return nil
}
