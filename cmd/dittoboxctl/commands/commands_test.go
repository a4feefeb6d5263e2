package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittobox/internal/cli/output"
	"github.com/marmos91/dittobox/pkg/config"
	"github.com/marmos91/dittobox/pkg/server"
)

func startServer(t *testing.T) (string, afero.Fs) {
	t.Helper()
	cfg := config.GetDefaultConfig()
	cfg.Server.BindAddress = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Storage.Root = "/storage"
	cfg.API.Enabled = false
	cfg.ShutdownTimeout = 2 * time.Second

	fs := afero.NewMemMapFs()
	srv, err := server.New(cfg, server.WithFs(fs))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	addr := srv.Addr()
	require.NotEmpty(t, addr)
	return addr, fs
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommandsAgainstServer(t *testing.T) {
	addr, remote := startServer(t)
	local := useMemFs(t)
	require.NoError(t, afero.WriteFile(local, "/work/report.txt", []byte("quarterly"), 0644))

	common := []string{"--server", addr, "--user", "alice", "--no-color"}

	out, err := execute(t, append([]string{"upload", "/work/report.txt"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Uploaded /work/report.txt as report.txt (9 B)")

	stored, err := afero.ReadFile(remote, "/storage/alice/report.txt")
	require.NoError(t, err)
	assert.Equal(t, "quarterly", string(stored))

	out, err = execute(t, append([]string{"list", "--output", "json"}, common...)...)
	require.NoError(t, err)
	var list output.FileList
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	assert.Equal(t, "alice", list.User)
	assert.Equal(t, []string{"report.txt"}, list.Files)

	_, err = execute(t, append([]string{"download", "report.txt", "/work/copy.txt", "--output", "table"}, common...)...)
	require.NoError(t, err)
	copied, err := afero.ReadFile(local, "/work/copy.txt")
	require.NoError(t, err)
	assert.Equal(t, "quarterly", string(copied))

	out, err = execute(t, append([]string{"download", "report.txt", "-"}, common...)...)
	require.NoError(t, err)
	assert.Equal(t, "quarterly", out)

	_, err = execute(t, append([]string{"delete", "report.txt"}, common...)...)
	require.NoError(t, err)

	out, err = execute(t, append([]string{"list"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "No files.")

	_, err = execute(t, append([]string{"delete", "report.txt"}, common...)...)
	assert.Error(t, err)
}

func TestCommandsRequireUser(t *testing.T) {
	t.Setenv("DITTOBOX_USER", "")
	_, err := execute(t, "list", "--server", "127.0.0.1:1", "--user", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--user")
}
