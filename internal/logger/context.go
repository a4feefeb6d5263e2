package logger

import (
	"context"
	"time"
)

type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds session-scoped logging fields. A LogContext attached to a
// context.Context is treated as immutable; use the With* helpers to derive one.
type LogContext struct {
	TraceID   string    // OpenTelemetry trace ID
	SpanID    string    // OpenTelemetry span ID
	SessionID string    // Per-connection identifier
	ClientIP  string    // Remote address without port
	Username  string    // Set after a successful HELLO
	Command   string    // UPLOAD, DOWNLOAD, DELETE, LIST, ...
	StartTime time.Time // Start of the current command
}

// WithContext returns a new context carrying lc.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from ctx, or nil if none is present.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a LogContext for a freshly accepted connection.
func NewLogContext(clientIP, sessionID string) *LogContext {
	return &LogContext{
		SessionID: sessionID,
		ClientIP:  clientIP,
		StartTime: time.Now(),
	}
}

// Clone returns a shallow copy of lc.
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	c := *lc
	return &c
}

// WithUsername returns a copy bound to the authenticated user.
func (lc *LogContext) WithUsername(username string) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.Username = username
	}
	return c
}

// WithCommand returns a copy for a single command, resetting the start time.
func (lc *LogContext) WithCommand(command string) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.Command = command
		c.StartTime = time.Now()
	}
	return c
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.TraceID = traceID
		c.SpanID = spanID
	}
	return c
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return Duration(lc.StartTime)
}
