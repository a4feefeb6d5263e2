package dropbox

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittobox/internal/bytesize"
	"github.com/marmos91/dittobox/internal/protocol"
	"github.com/marmos91/dittobox/internal/queue"
	"github.com/marmos91/dittobox/pkg/adapter"
	"github.com/marmos91/dittobox/pkg/storage"
	"github.com/marmos91/dittobox/pkg/task"
	"github.com/marmos91/dittobox/pkg/worker"
)

type harness struct {
	addr  string
	tasks *queue.BoundedQueue[*task.Task]
	pool  *worker.Pool
	fs    afero.Fs
	a     *Adapter
}

type harnessOpts struct {
	cfg         Config
	quota       bytesize.ByteSize
	queueSize   int
	noWorkers   bool
	users       UserDirs
	submitterFn func(*queue.BoundedQueue[*task.Task]) Submitter
}

func newHarness(t *testing.T, opts harnessOpts) *harness {
	t.Helper()

	if opts.quota == 0 {
		opts.quota = storage.DefaultQuota
	}
	if opts.queueSize == 0 {
		opts.queueSize = 8
	}
	fs := afero.NewMemMapFs()
	store, err := storage.New(fs, storage.Config{Root: "/storage", Quota: opts.quota})
	require.NoError(t, err)

	tasks := queue.New[*task.Task](opts.queueSize)
	pool := worker.New(store, tasks, worker.Config{Workers: 2}, nil)
	if !opts.noWorkers {
		pool.Start(context.Background())
	}

	cfg := opts.cfg
	cfg.BindAddress = "127.0.0.1"
	cfg.Port = 0
	if cfg.Handlers == 0 {
		cfg.Handlers = 4
	}
	cfg.ShutdownTimeout = 2 * time.Second

	var users UserDirs = store
	if opts.users != nil {
		users = opts.users
	}
	var sub Submitter = tasks
	if opts.submitterFn != nil {
		sub = opts.submitterFn(tasks)
	}

	a := New(cfg, sub, users, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.Serve(ctx)
	}()

	h := &harness{addr: a.GetListenerAddr(), tasks: tasks, pool: pool, fs: fs, a: a}
	require.NotEmpty(t, h.addr)

	t.Cleanup(func() {
		cancel()
		tasks.Close()
		pool.Start(context.Background())
		<-done
		wctx, wcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer wcancel()
		_ = pool.Wait(wctx)
	})
	return h
}

type testClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func (h *harness) dial(t *testing.T) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", h.addr)
	require.NoError(t, err)
	require.NoError(t, conn.SetDeadline(time.Now().Add(10*time.Second)))
	t.Cleanup(func() { _ = conn.Close() })
	return &testClient{t: t, conn: conn, r: bufio.NewReader(conn)}
}

// login dials, checks the banner and authenticates.
func (h *harness) login(t *testing.T, user string) *testClient {
	t.Helper()
	c := h.dial(t)
	c.expect("SIMPLE-DROPBOX-SERVER v1")
	c.expect("Send: HELLO <username>")
	c.send("HELLO " + user + "\n")
	c.expect("AUTH OK")
	return c
}

func (c *testClient) send(s string) {
	c.t.Helper()
	_, err := io.WriteString(c.conn, s)
	require.NoError(c.t, err)
}

func (c *testClient) expect(line string) {
	c.t.Helper()
	got, err := c.r.ReadString('\n')
	require.NoError(c.t, err)
	require.Equal(c.t, line+"\n", got)
}

func (c *testClient) readN(n int) string {
	c.t.Helper()
	buf := make([]byte, n)
	_, err := io.ReadFull(c.r, buf)
	require.NoError(c.t, err)
	return string(buf)
}

func (c *testClient) expectClosed() {
	c.t.Helper()
	_, err := c.r.ReadByte()
	require.Error(c.t, err)
}

func (c *testClient) list() []string {
	c.t.Helper()
	c.send("LIST\n")
	c.expect("LIST OK")
	var names []string
	for {
		line, err := c.r.ReadString('\n')
		require.NoError(c.t, err)
		if line == "\n" {
			return names
		}
		names = append(names, strings.TrimSuffix(line, "\n"))
	}
}

func TestAliceScenario(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	c := h.login(t, "alice")

	c.send("UPLOAD a.txt 5\nhello")
	c.expect("UPLOAD OK")

	assert.Equal(t, []string{"a.txt"}, c.list())

	c.send("DOWNLOAD a.txt\n")
	c.expect("DOWNLOAD 5")
	assert.Equal(t, "hello", c.readN(5))

	c.send("DELETE a.txt\n")
	c.expect("DELETE OK")

	assert.Empty(t, c.list())

	c.send("BYE\n")
	c.expectClosed()
}

func TestQuotaScenario(t *testing.T) {
	t.Run("RejectedByWorker", func(t *testing.T) {
		h := newHarness(t, harnessOpts{quota: 16, cfg: Config{MaxUploadSize: 1024}})
		c := h.login(t, "bob")

		c.send("UPLOAD big.bin 17\n" + strings.Repeat("x", 17))
		c.expect("UPLOAD FAILED: QUOTA EXCEEDED")

		exists, err := afero.Exists(h.fs, "/storage/bob/big.bin")
		require.NoError(t, err)
		assert.False(t, exists)

		// The stream stays in sync.
		assert.Empty(t, c.list())
	})

	t.Run("DiscardedBySession", func(t *testing.T) {
		h := newHarness(t, harnessOpts{quota: 16, cfg: Config{MaxUploadSize: 16}})
		c := h.login(t, "bob")

		c.send("UPLOAD big.bin 17\n" + strings.Repeat("x", 17))
		c.expect("UPLOAD FAILED: QUOTA EXCEEDED")
		assert.Zero(t, h.tasks.Len())

		c.send("UPLOAD ok.bin 16\n" + strings.Repeat("y", 16))
		c.expect("UPLOAD OK")
	})
}

func TestHandshake(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	cases := []struct {
		name string
		line string
	}{
		{"WrongCommand", "LIST\n"},
		{"MissingUsername", "HELLO\n"},
		{"PathUsername", "HELLO ../etc\n"},
		{"LowercaseHello", "hello alice\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := h.dial(t)
			c.expect("SIMPLE-DROPBOX-SERVER v1")
			c.expect("Send: HELLO <username>")
			c.send(tc.line)
			c.expect("Expected: HELLO <username>")
			c.expectClosed()
		})
	}

	t.Run("CRLF", func(t *testing.T) {
		c := h.dial(t)
		c.expect("SIMPLE-DROPBOX-SERVER v1")
		c.expect("Send: HELLO <username>")
		c.send("HELLO carol\r\n")
		c.expect("AUTH OK")
		c.send("LIST\r\n")
		c.expect("LIST OK")
		c.expect("")
	})

	t.Run("CreatesUserDirectory", func(t *testing.T) {
		h.login(t, "dave")
		assert.Eventually(t, func() bool {
			ok, _ := afero.DirExists(h.fs, "/storage/dave")
			return ok
		}, time.Second, 5*time.Millisecond)
	})
}

type brokenUsers struct{}

func (brokenUsers) EnsureUserDir(string) error { return errors.New("read-only filesystem") }

func TestAuthFailed(t *testing.T) {
	h := newHarness(t, harnessOpts{users: brokenUsers{}})
	c := h.dial(t)
	c.expect("SIMPLE-DROPBOX-SERVER v1")
	c.expect("Send: HELLO <username>")
	c.send("HELLO erin\n")
	c.expect("AUTH FAILED")
	c.expectClosed()
}

func TestSyntaxReplies(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	c := h.login(t, "frank")

	cases := []struct {
		send string
		want string
	}{
		{"UPLOAD\n", protocol.UploadSyntax},
		{"UPLOAD a.txt\n", protocol.UploadSyntax},
		{"UPLOAD a.txt -1\n", protocol.UploadSyntax},
		{"UPLOAD a.txt five\n", protocol.UploadSyntax},
		{"UPLOAD ../x 1\nX", protocol.UploadSyntax},
		{"DOWNLOAD\n", protocol.DownloadSyntax},
		{"DOWNLOAD a/b\n", protocol.DownloadSyntax},
		{"DELETE\n", protocol.DeleteSyntax},
		{"DELETE ..\n", protocol.DeleteSyntax},
		{"FOO\n", protocol.UnknownCommand},
		{"list\n", protocol.UnknownCommand},
		{"\n", protocol.UnknownCommand},
	}
	for _, tc := range cases {
		c.send(tc.send)
		c.expect(strings.TrimSuffix(tc.want, "\n"))
	}

	// Still authenticated and in sync.
	c.send("  UPLOAD z 1 trailing tokens\nZ")
	c.expect("UPLOAD OK")
}

func TestRejectedUploadNameSkipsBody(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	c := h.login(t, "mallory")

	c.send("UPLOAD keep.txt 4\nkeep")
	c.expect("UPLOAD OK")

	long := strings.Repeat("n", protocol.MaxFilenameLen+1)
	for _, name := range []string{"../evil", `a\b`, long} {
		// The body looks like a command but must be consumed as data.
		body := "DELETE keep.txt\n"
		c.send(fmt.Sprintf("UPLOAD %s %d\n%s", name, len(body), body))
		c.expect(strings.TrimSuffix(protocol.UploadSyntax, "\n"))
	}

	assert.Equal(t, []string{"keep.txt"}, c.list())

	c.send("DOWNLOAD keep.txt\n")
	c.expect("DOWNLOAD 4")
	assert.Equal(t, "keep", c.readN(4))
}

func TestFailures(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	c := h.login(t, "gina")

	c.send("DOWNLOAD missing\n")
	c.expect("DOWNLOAD FAILED")

	c.send("DELETE missing\n")
	c.expect("DELETE FAILED")

	c.send("UPLOAD empty 0\n")
	c.expect("UPLOAD OK")
	c.send("DOWNLOAD empty\n")
	c.expect("DOWNLOAD 0")

	assert.Equal(t, []string{"empty"}, c.list())
}

func TestShortUploadClosesSession(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	c := h.login(t, "hank")

	c.send("UPLOAD a 10\nabc")
	require.NoError(t, c.conn.(*net.TCPConn).CloseWrite())
	c.expect("UPLOAD FAILED")
	c.expectClosed()
}

func TestLineTooLongClosesSession(t *testing.T) {
	h := newHarness(t, harnessOpts{cfg: Config{MaxLineLength: 32}})
	c := h.login(t, "ivan")

	c.send("DOWNLOAD " + strings.Repeat("a", 64) + "\n")
	c.expectClosed()
}

func TestIdleTimeout(t *testing.T) {
	h := newHarness(t, harnessOpts{cfg: Config{IdleTimeout: 50 * time.Millisecond}})
	c := h.login(t, "jane")
	c.expectClosed()
}

func TestServerBusy(t *testing.T) {
	t.Run("QueueFull", func(t *testing.T) {
		h := newHarness(t, harnessOpts{
			queueSize: 1,
			noWorkers: true,
			cfg:       Config{RejectWhenFull: true},
		})

		first := h.login(t, "kate")
		first.send("LIST\n")
		require.Eventually(t, func() bool { return h.tasks.Len() == 1 }, time.Second, 5*time.Millisecond)

		second := h.login(t, "leo")
		second.send("UPLOAD f 3\nabc")
		second.expect("SERVER BUSY")

		h.pool.Start(context.Background())
		first.expect("LIST OK")
		first.expect("")

		second.send("UPLOAD f 3\nabc")
		second.expect("UPLOAD OK")
	})

	t.Run("QueueClosed", func(t *testing.T) {
		h := newHarness(t, harnessOpts{})
		c := h.login(t, "mia")
		h.tasks.Close()

		c.send("LIST\n")
		c.expect("SERVER BUSY")
		c.send("DOWNLOAD x\n")
		c.expect("SERVER BUSY")
	})
}

// countingSubmitter records payload ownership on rejected uploads.
type countingSubmitter struct {
	mu       sync.Mutex
	rejected []*task.Task
}

func (c *countingSubmitter) Push(t *task.Task) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejected = append(c.rejected, t)
	return queue.ErrClosed
}

func (c *countingSubmitter) TryPush(t *task.Task) error { return c.Push(t) }

func TestRejectedUploadReleasesPayload(t *testing.T) {
	sub := &countingSubmitter{}
	h := newHarness(t, harnessOpts{submitterFn: func(*queue.BoundedQueue[*task.Task]) Submitter { return sub }})
	c := h.login(t, "ned")

	c.send("UPLOAD f 3\nabc")
	c.expect("SERVER BUSY")

	sub.mu.Lock()
	defer sub.mu.Unlock()
	require.Len(t, sub.rejected, 1)
	assert.Nil(t, sub.rejected[0].Payload)
}

func TestShutdownEndsIdleSessions(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	c := h.login(t, "olga")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.a.Stop(ctx))
	c.expectClosed()
	assert.Zero(t, h.a.Stats().ActiveConnections)
}

func TestAdapterDefaults(t *testing.T) {
	a := New(Config{}, queue.New[*task.Task](1), brokenUsers{}, nil)
	assert.Equal(t, ProtocolName, a.Protocol())
	assert.Equal(t, protocol.DefaultMaxLineLength, a.config.MaxLineLength)
	assert.Equal(t, storage.DefaultQuota.Int64(), a.config.MaxUploadSize)
	assert.Equal(t, adapter.DefaultHandlers, a.Config.Handlers)
}
