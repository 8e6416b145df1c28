package session

import (
	"errors"
	"fmt"
)

var (
	ErrRoomFull        = errors.New("room is full")
	ErrPeerLeft        = errors.New("peer left the room")
	ErrSignalingClosed = errors.New("signaling connection closed")
	ErrTransportFailed = errors.New("media connection failed")
	ErrRelayRejected   = errors.New("relay rejected the request")
	// ErrHangup ends a call normally: the peer hung up.
	ErrHangup = errors.New("peer hung up")
)

// ConnectionError is a session-fatal failure. The call is over once one is
// returned; nothing is retried.
type ConnectionError struct {
	Op      string
	Err     error
	Details string
}

func (e *ConnectionError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *ConnectionError {
	return &ConnectionError{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *ConnectionError {
	return &ConnectionError{Op: op, Err: err, Details: details}
}
