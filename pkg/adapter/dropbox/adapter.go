// Package dropbox implements the DittoBox line protocol on top of the shared
// adapter front end. Each session authenticates with HELLO, then turns
// UPLOAD, DOWNLOAD, DELETE and LIST commands into storage Tasks and relays
// the worker's answer to the client.
package dropbox

import (
	"context"
	"net"

	"github.com/marmos91/dittobox/pkg/adapter"
	"github.com/marmos91/dittobox/pkg/metrics"
	"github.com/marmos91/dittobox/pkg/task"
)

// ProtocolName identifies the adapter in logs and metrics.
const ProtocolName = "DROPBOX"

// Submitter accepts tasks for the storage workers. Push blocks while the
// queue is full; TryPush fails immediately instead. Both fail once the
// queue is closed.
type Submitter interface {
	Push(t *task.Task) error
	TryPush(t *task.Task) error
}

// UserDirs prepares a user's storage directory at HELLO time.
type UserDirs interface {
	EnsureUserDir(username string) error
}

// Adapter serves the dropbox protocol.
type Adapter struct {
	*adapter.BaseAdapter

	config  Config
	tasks   Submitter
	users   UserDirs
	metrics metrics.ServerMetrics
}

var _ adapter.Adapter = (*Adapter)(nil)

// New creates an adapter that submits work to tasks. m may be nil.
func New(cfg Config, tasks Submitter, users UserDirs, m metrics.ServerMetrics) *Adapter {
	cfg.applyDefaults()
	return &Adapter{
		BaseAdapter: adapter.NewBaseAdapter(cfg.BaseConfig, ProtocolName, m),
		config:      cfg,
		tasks:       tasks,
		users:       users,
		metrics:     m,
	}
}

// Serve listens and serves sessions until ctx is canceled.
func (a *Adapter) Serve(ctx context.Context) error {
	return a.ServeWithFactory(ctx, a)
}

// NewConnection implements adapter.ConnectionFactory.
func (a *Adapter) NewConnection(conn net.Conn) adapter.ConnectionHandler {
	return newSession(a, conn)
}
