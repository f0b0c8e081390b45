package core

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected = errors.New("core not connected")
	ErrDisposed     = errors.New("core client disposed")
)

// ConnectionError is a transport failure. The reconnect loop recovers from it.
type ConnectionError struct {
	Op  string // "dial", "read" or "write"
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("core %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// DecodeError is a frame that is not valid JSON for the protocol. The frame
// is dropped and the connection stays up.
type DecodeError struct {
	Frame []byte
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode core frame: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
