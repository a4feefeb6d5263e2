// Package task defines the unit of work passed from session handlers to
// storage workers, together with its single-use Response rendezvous.
package task

import (
	"context"
	"time"

	"github.com/marmos91/dittobox/pkg/bufpool"
)

// Kind identifies the storage operation a Task requests.
type Kind int

const (
	KindUpload Kind = iota + 1
	KindDownload
	KindDelete
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindUpload:
		return "upload"
	case KindDownload:
		return "download"
	case KindDelete:
		return "delete"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// Task is one storage operation requested by one session.
//
// The session creates the Task and its Response, submits it, and then only
// touches the Response. Exactly one worker executes the Task, completes the
// Response and calls Release. Payload ownership therefore moves with the
// Task: if submission fails the session must Release instead.
type Task struct {
	Kind     Kind
	Username string
	Filename string          // empty for KindList
	Payload  *bufpool.Buffer // KindUpload only
	Response *Response

	// Submitted is set when the task is handed to the queue, for latency metrics.
	Submitted time.Time

	ctx context.Context
}

func newTask(ctx context.Context, kind Kind, username, filename string) *Task {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Task{
		Kind:     kind,
		Username: username,
		Filename: filename,
		Response: NewResponse(),
		ctx:      ctx,
	}
}

// NewUpload creates an Upload task that takes ownership of payload.
func NewUpload(ctx context.Context, username, filename string, payload *bufpool.Buffer) *Task {
	t := newTask(ctx, KindUpload, username, filename)
	t.Payload = payload
	return t
}

// NewDownload creates a Download task.
func NewDownload(ctx context.Context, username, filename string) *Task {
	return newTask(ctx, KindDownload, username, filename)
}

// NewDelete creates a Delete task.
func NewDelete(ctx context.Context, username, filename string) *Task {
	return newTask(ctx, KindDelete, username, filename)
}

// NewList creates a List task.
func NewList(ctx context.Context, username string) *Task {
	return newTask(ctx, KindList, username, "")
}

// Context returns the submitting session's context. It carries logging and
// tracing fields only; workers do not abandon a task when it is canceled.
func (t *Task) Context() context.Context {
	return t.ctx
}

// PayloadBytes returns the upload payload, or nil for other kinds.
func (t *Task) PayloadBytes() []byte {
	return t.Payload.Bytes()
}

// Release frees every task-owned resource except the Response.
func (t *Task) Release() {
	t.Payload.Release()
	t.Payload = nil
}
