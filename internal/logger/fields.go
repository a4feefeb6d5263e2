package logger

import (
	"log/slog"
	"time"
)

// Standard field keys. Use them consistently so log lines can be queried
// across the acceptor, session handlers and storage workers.
const (
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// Session & connection
	KeySessionID  = "session_id"
	KeyClientIP   = "client_ip"
	KeyRemoteAddr = "remote_addr"
	KeyUsername   = "username"
	KeyActive     = "active_connections"

	// Protocol
	KeyCommand = "command"
	KeyReply   = "reply"
	KeyLine    = "line"

	// Storage
	KeyFilename = "filename"
	KeyPath     = "path"
	KeySize     = "size"
	KeyUsage    = "usage"
	KeyQuota    = "quota"
	KeyEntries  = "entries"

	// Pipeline
	KeyTaskKind   = "task_kind"
	KeyWorkerID   = "worker_id"
	KeyHandlerID  = "handler_id"
	KeyQueue      = "queue"
	KeyQueueDepth = "queue_depth"

	// Operation metadata
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyAddress    = "address"
)

// SessionID returns a slog.Attr for the per-connection identifier
func SessionID(id string) slog.Attr {
	return slog.String(KeySessionID, id)
}

// ClientIP returns a slog.Attr for client IP address
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// RemoteAddr returns a slog.Attr for a remote host:port
func RemoteAddr(addr string) slog.Attr {
	return slog.String(KeyRemoteAddr, addr)
}

// Username returns a slog.Attr for username
func Username(name string) slog.Attr {
	return slog.String(KeyUsername, name)
}

// Active returns a slog.Attr for the number of open connections.
func Active(n int32) slog.Attr {
	return slog.Int(KeyActive, int(n))
}

// Command returns a slog.Attr for a protocol command name
func Command(name string) slog.Attr {
	return slog.String(KeyCommand, name)
}

// Reply returns a slog.Attr for the status line sent back to the client.
func Reply(line string) slog.Attr {
	return slog.String(KeyReply, line)
}

// Line returns a slog.Attr for a raw (possibly malformed) command line.
func Line(line string) slog.Attr {
	const max = 128
	if len(line) > max {
		line = line[:max] + "..."
	}
	return slog.String(KeyLine, line)
}

// Filename returns a slog.Attr for filename
func Filename(name string) slog.Attr {
	return slog.String(KeyFilename, name)
}

// Path returns a slog.Attr for a filesystem path
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Size returns a slog.Attr for a size in bytes
func Size(s int64) slog.Attr {
	return slog.Int64(KeySize, s)
}

// Usage returns a slog.Attr for a user's current storage usage in bytes.
func Usage(n int64) slog.Attr {
	return slog.Int64(KeyUsage, n)
}

// Quota returns a slog.Attr for a quota in bytes.
func Quota(n int64) slog.Attr {
	return slog.Int64(KeyQuota, n)
}

// Entries returns a slog.Attr for number of directory entries
func Entries(n int) slog.Attr {
	return slog.Int(KeyEntries, n)
}

// TaskKind returns a slog.Attr for a storage task kind
func TaskKind(kind string) slog.Attr {
	return slog.String(KeyTaskKind, kind)
}

// WorkerID returns a slog.Attr for a storage worker index
func WorkerID(id int) slog.Attr {
	return slog.Int(KeyWorkerID, id)
}

// HandlerID returns a slog.Attr for a session handler index
func HandlerID(id int) slog.Attr {
	return slog.Int(KeyHandlerID, id)
}

// Queue returns a slog.Attr naming a pipeline queue.
func Queue(name string) slog.Attr {
	return slog.String(KeyQueue, name)
}

// QueueDepth returns a slog.Attr for queued item count
func QueueDepth(n int) slog.Attr {
	return slog.Int(KeyQueueDepth, n)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Elapsed returns a duration_ms attr measured from start.
func Elapsed(start time.Time) slog.Attr {
	return DurationMs(Duration(start))
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Address returns a slog.Attr for a listen address.
func Address(addr string) slog.Attr {
	return slog.String(KeyAddress, addr)
}
