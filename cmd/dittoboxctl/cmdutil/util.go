// Package cmdutil provides shared utilities for dittoboxctl commands.
package cmdutil

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/spf13/afero"

	"github.com/marmos91/dittobox/internal/cli/output"
	"github.com/marmos91/dittobox/internal/protocol"
	"github.com/marmos91/dittobox/pkg/client"
)

// EnvUser names the user when --user is not given.
const EnvUser = "DITTOBOX_USER"

// DefaultServer is the address dialed when --server is not given.
var DefaultServer = net.JoinHostPort("localhost", strconv.Itoa(protocol.DefaultPort))

// Flags stores global flag values accessible by subcommands.
var Flags = &GlobalFlags{}

// LocalFs is where local files are read from and written to.
var LocalFs afero.Fs = afero.NewOsFs()

// GlobalFlags holds the global flag values.
type GlobalFlags struct {
	Server  string
	User    string
	Output  string
	Timeout time.Duration
	NoColor bool
}

// ResolveUser returns the --user flag, falling back to $DITTOBOX_USER.
func ResolveUser() (string, error) {
	if Flags.User != "" {
		return Flags.User, nil
	}
	if u := os.Getenv(EnvUser); u != "" {
		return u, nil
	}
	return "", fmt.Errorf("no user given: pass --user or set %s", EnvUser)
}

// Connect dials the server and authenticates as the resolved user.
func Connect(ctx context.Context) (*client.Client, error) {
	user, err := ResolveUser()
	if err != nil {
		return nil, err
	}

	server := Flags.Server
	if server == "" {
		server = DefaultServer
	}

	timeout := Flags.Timeout
	if timeout <= 0 {
		timeout = client.DefaultTimeout
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return client.Dial(dialCtx, server, user, client.WithTimeout(timeout))
}

// GetOutputFormatParsed returns the parsed output format.
func GetOutputFormatParsed() (output.Format, error) {
	return output.ParseFormat(Flags.Output)
}

// PrintOutput prints data in the selected format. For table format it
// prints emptyMsg when isEmpty is set, otherwise it uses tableRenderer.
func PrintOutput(w io.Writer, data any, isEmpty bool, emptyMsg string, tableRenderer output.TableRenderer) error {
	format, err := GetOutputFormatParsed()
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(w, data)
	case output.FormatYAML:
		return output.PrintYAML(w, data)
	default:
		if isEmpty {
			_, _ = fmt.Fprintln(w, emptyMsg)
			return nil
		}
		return output.PrintTable(w, tableRenderer)
	}
}

// PrintResourceWithSuccess prints data for JSON/YAML output, or a success
// message for table output.
func PrintResourceWithSuccess(w io.Writer, data any, successMsg string) error {
	format, err := GetOutputFormatParsed()
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(w, data)
	case output.FormatYAML:
		return output.PrintYAML(w, data)
	default:
		output.NewPrinter(w, format, !Flags.NoColor).Success(successMsg)
		return nil
	}
}
