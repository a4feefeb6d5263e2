package dropbox

import (
	"time"

	"github.com/marmos91/dittobox/internal/protocol"
	"github.com/marmos91/dittobox/pkg/adapter"
	"github.com/marmos91/dittobox/pkg/storage"
)

// Config configures the dropbox protocol adapter.
type Config struct {
	adapter.BaseConfig

	// MaxLineLength bounds a command line including its '\n'. Longer lines
	// end the session.
	MaxLineLength int

	// IdleTimeout closes a session that sends nothing for this long while
	// the server waits for a command. 0 disables it.
	IdleTimeout time.Duration

	// MaxUploadSize is the largest declared UPLOAD size that is buffered and
	// submitted. Larger uploads are discarded and answered with the quota
	// reply.
	MaxUploadSize int64

	// RejectWhenFull answers SERVER BUSY when the task queue is full instead
	// of waiting for room.
	RejectWhenFull bool
}

func (c *Config) applyDefaults() {
	if c.MaxLineLength <= 0 {
		c.MaxLineLength = protocol.DefaultMaxLineLength
	}
	if c.MaxUploadSize <= 0 {
		c.MaxUploadSize = storage.DefaultQuota.Int64()
	}
}
