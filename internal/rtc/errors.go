package rtc

import (
	"errors"
	"fmt"
)

var (
	ErrSessionClosed    = errors.New("session closed")
	ErrSessionActive    = errors.New("session already active")
	ErrMediaUnavailable = errors.New("local media unavailable")
)

// CallError annotates an error with the operation and, when relevant,
// the peer it concerned.
type CallError struct {
	Op   string
	Peer string
	Err  error
}

func (e *CallError) Error() string {
	if e.Peer != "" {
		return fmt.Sprintf("%s (peer %s): %v", e.Op, e.Peer, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

func newError(op string, err error) *CallError {
	return &CallError{Op: op, Err: err}
}

func newPeerError(op, peer string, err error) *CallError {
	return &CallError{Op: op, Peer: peer, Err: err}
}
