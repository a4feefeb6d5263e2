package task

import (
	"errors"
	"sync/atomic"
)

// ErrAlreadyCompleted is returned when a Response is completed twice.
var ErrAlreadyCompleted = errors.New("task: response already completed")

// Result is the outcome a worker hands back to the waiting session.
type Result struct {
	Success bool
	Message string // status line sent to the client, including '\n'
	Data    []byte // Download contents or List body on success
}

// Response is a one-shot rendezvous between exactly one worker (Complete)
// and exactly one session handler (Wait). The result is written before done
// is closed, so it is safe to read without locks once Wait returns and is
// never modified afterwards.
type Response struct {
	completed atomic.Bool
	done      chan struct{}
	result    Result
}

// NewResponse creates a pending Response.
func NewResponse() *Response {
	return &Response{done: make(chan struct{})}
}

// Complete publishes res and wakes the waiter. Only the first call has an
// effect; later calls return ErrAlreadyCompleted and leave the result intact.
func (r *Response) Complete(res Result) error {
	if !r.completed.CompareAndSwap(false, true) {
		return ErrAlreadyCompleted
	}
	r.result = res
	close(r.done)
	return nil
}

// Wait blocks until the Response is completed and returns the result. There
// is no timeout.
func (r *Response) Wait() Result {
	<-r.done
	return r.result
}

// Done returns a channel that is closed once the result is available.
func (r *Response) Done() <-chan struct{} {
	return r.done
}

// IsDone reports whether the result has been published.
func (r *Response) IsDone() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}
