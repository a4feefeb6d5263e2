package adapter

import "fmt"

// ProtocolError is a session-ending protocol violation. Reply is the line
// sent to the client before the connection is closed; Err is the cause.
type ProtocolError struct {
	Reply string
	Err   error
}

// NewProtocolError wraps err with the reply to send.
func NewProtocolError(reply string, err error) *ProtocolError {
	return &ProtocolError{Reply: reply, Err: err}
}

func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("protocol error: %q", e.Reply)
	}
	return fmt.Sprintf("protocol error: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
