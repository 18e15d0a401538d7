package transport

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected     = errors.New("transport: session not connected")
	ErrNotActive        = errors.New("transport: session not active")
	ErrClosed           = errors.New("transport: session closed")
	ErrPeerClosed       = errors.New("transport: peer closed connection")
	ErrConnectRejected  = errors.New("transport: connect rejected by peer")
	ErrReadinessChanged = errors.New("transport: socket handle changed")
	ErrQueueFull        = errors.New("transport: write queue limit exceeded")
	ErrUnexpectedFrame  = errors.New("transport: unexpected frame kind")
	ErrNoConverter      = errors.New("transport: json sub-protocol without converter")
	ErrUnsupported      = errors.New("transport: platform not supported")
)

// ConnectError reports a connect step that failed before any bytes
// were exchanged.
type ConnectError struct {
	Op   string
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("transport: %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }
