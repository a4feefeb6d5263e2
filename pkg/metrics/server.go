package metrics

import "time"

// Command status labels.
const (
	StatusOK          = "ok"
	StatusFailed      = "failed"
	StatusSyntax      = "syntax"
	StatusBusy        = "busy"
	StatusQuota       = "quota_exceeded"
	StatusUnknown     = "unknown"
	DirectionUpload   = "upload"
	DirectionDownload = "download"
)

// ServerMetrics records pipeline and protocol activity. Implementations
// must be safe for concurrent use. A nil ServerMetrics is valid and means
// metrics are disabled; use the package helpers rather than calling
// methods on a possibly nil value.
type ServerMetrics interface {
	// ConnectionAccepted counts an accepted connection and bumps the active gauge.
	ConnectionAccepted()

	// ConnectionClosed decrements the active gauge.
	ConnectionClosed()

	// ConnectionRejected counts connections dropped because the connection
	// queue was closed.
	ConnectionRejected()

	// ObserveCommand records one handled protocol command.
	ObserveCommand(command, status string, duration time.Duration)

	// ObserveTask records a storage task: time spent queued and executing.
	ObserveTask(kind, status string, queued, exec time.Duration)

	// AddBytes counts payload bytes moved in the given direction.
	AddBytes(direction string, n int64)

	// RegisterQueue exports the depth and capacity of a pipeline queue.
	RegisterQueue(name string, capacity int, depth func() int)
}

// ConnectionAccepted is a nil-safe wrapper.
func ConnectionAccepted(m ServerMetrics) {
	if m != nil {
		m.ConnectionAccepted()
	}
}

// ConnectionClosed is a nil-safe wrapper.
func ConnectionClosed(m ServerMetrics) {
	if m != nil {
		m.ConnectionClosed()
	}
}

// ConnectionRejected is a nil-safe wrapper.
func ConnectionRejected(m ServerMetrics) {
	if m != nil {
		m.ConnectionRejected()
	}
}

// ObserveCommand is a nil-safe wrapper.
func ObserveCommand(m ServerMetrics, command, status string, duration time.Duration) {
	if m != nil {
		m.ObserveCommand(command, status, duration)
	}
}

// ObserveTask is a nil-safe wrapper.
func ObserveTask(m ServerMetrics, kind, status string, queued, exec time.Duration) {
	if m != nil {
		m.ObserveTask(kind, status, queued, exec)
	}
}

// AddBytes is a nil-safe wrapper.
func AddBytes(m ServerMetrics, direction string, n int64) {
	if m != nil && n > 0 {
		m.AddBytes(direction, n)
	}
}

// RegisterQueue is a nil-safe wrapper.
func RegisterQueue(m ServerMetrics, name string, capacity int, depth func() int) {
	if m != nil {
		m.RegisterQueue(name, capacity, depth)
	}
}
