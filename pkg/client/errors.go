package client

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrQuotaExceeded is returned when an upload would exceed the user's quota.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrServerBusy is returned when the server could not queue the request.
	ErrServerBusy = errors.New("server busy")

	// ErrFailed is returned when the server reports a failed operation.
	ErrFailed = errors.New("operation failed")

	// ErrAuth is returned when the server rejects the handshake.
	ErrAuth = errors.New("authentication failed")

	// ErrClosed is returned by operations on a closed client.
	ErrClosed = errors.New("client closed")
)

// ReplyError carries the raw server reply behind one of the sentinel errors.
type ReplyError struct {
	Op    string
	Reply string
	Err   error
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("%s: %s (%q)", e.Op, e.Err, strings.TrimRight(e.Reply, "\r\n"))
}

func (e *ReplyError) Unwrap() error { return e.Err }

func replyError(op, reply string, err error) error {
	return &ReplyError{Op: op, Reply: reply, Err: err}
}
