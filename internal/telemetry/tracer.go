package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used on session and storage spans.
const (
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"
	AttrSessionID  = "session.id"

	AttrCommand  = "dropbox.command"
	AttrUsername = "dropbox.username"
	AttrFilename = "dropbox.filename"
	AttrSize     = "dropbox.size"
	AttrReply    = "dropbox.reply"

	AttrTaskKind = "task.kind"
	AttrWorkerID = "task.worker_id"
	AttrQueueMs  = "task.queue_ms"
	AttrSuccess  = "task.success"
)

func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

func SessionID(id string) attribute.KeyValue {
	return attribute.String(AttrSessionID, id)
}

func Command(name string) attribute.KeyValue {
	return attribute.String(AttrCommand, name)
}

func Username(name string) attribute.KeyValue {
	return attribute.String(AttrUsername, name)
}

func Filename(name string) attribute.KeyValue {
	return attribute.String(AttrFilename, name)
}

func Size(n int64) attribute.KeyValue {
	return attribute.Int64(AttrSize, n)
}

// Reply records the status line sent to the client.
func Reply(line string) attribute.KeyValue {
	return attribute.String(AttrReply, line)
}

func TaskKind(kind string) attribute.KeyValue {
	return attribute.String(AttrTaskKind, kind)
}

func WorkerID(id int) attribute.KeyValue {
	return attribute.Int(AttrWorkerID, id)
}

func QueueMs(ms float64) attribute.KeyValue {
	return attribute.Float64(AttrQueueMs, ms)
}

func Success(ok bool) attribute.KeyValue {
	return attribute.Bool(AttrSuccess, ok)
}

// StartSessionSpan starts the root span covering one client connection.
func StartSessionSpan(ctx context.Context, sessionID, clientAddr string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		SessionID(sessionID),
		ClientAddr(clientAddr),
	}
	allAttrs = append(allAttrs, attrs...)

	return startSpan(ctx, "dropbox.session",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(allAttrs...))
}

// StartCommandSpan starts a span for one protocol command, e.g. "dropbox.UPLOAD".
func StartCommandSpan(ctx context.Context, command, username string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Command(command),
	}
	if username != "" {
		allAttrs = append(allAttrs, Username(username))
	}
	allAttrs = append(allAttrs, attrs...)

	return startSpan(ctx, "dropbox."+command, trace.WithAttributes(allAttrs...))
}

// StartTaskSpan starts a span for a storage task executed by a worker.
// The task context links it to the command span that submitted it.
func StartTaskSpan(ctx context.Context, kind, username, filename string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		TaskKind(kind),
		Username(username),
	}
	if filename != "" {
		allAttrs = append(allAttrs, Filename(filename))
	}
	allAttrs = append(allAttrs, attrs...)

	return startSpan(ctx, "storage."+kind,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(allAttrs...))
}
