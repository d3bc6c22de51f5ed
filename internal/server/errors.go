package server

import "fmt"

// BindError means the listen address could not be bound. It is fatal.
type BindError struct {
	Address string
	Err     error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to bind %s: %v", e.Address, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// ReadError ends a session; the server goes back to accepting
type ReadError struct {
	SessionID string
	Err       error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("session %s: read failed: %v", e.SessionID, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// WriteError means one outbound snapshot was dropped. Partial is set when
// some bytes of the frame were written and the connection had to be closed.
type WriteError struct {
	SessionID string
	Partial   bool
	Err       error
}

func (e *WriteError) Error() string {
	if e.Partial {
		return fmt.Sprintf("session %s: partial write, connection closed: %v", e.SessionID, e.Err)
	}
	return fmt.Sprintf("session %s: write failed: %v", e.SessionID, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
