// Package poll is the readiness multiplexer every session registers its
// socket with. Wait is the only call in the stack that blocks.
package poll

import (
	"errors"
	"strings"
)

// Interest is the set of readiness conditions registered for a handle.
type Interest uint8

const (
	Readable Interest = 1 << iota
	Writable
)

func (i Interest) String() string {
	if i == 0 {
		return "none"
	}
	var parts []string
	if i&Readable != 0 {
		parts = append(parts, "read")
	}
	if i&Writable != 0 {
		parts = append(parts, "write")
	}
	return strings.Join(parts, "|")
}

// Event reports one ready handle. Hangup is set for peer close and socket
// errors; the owner discovers the cause on its next read.
type Event struct {
	FD       int
	Readable bool
	Writable bool
	Hangup   bool
}

var (
	ErrClosed        = errors.New("poll: poller closed")
	ErrNotRegistered = errors.New("poll: fd not registered")
	ErrRegistered    = errors.New("poll: fd already registered")
	ErrUnsupported   = errors.New("poll: platform not supported")
)

const defaultEventBatch = 64
