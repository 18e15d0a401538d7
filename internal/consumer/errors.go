package consumer

import (
	"errors"
	"fmt"

	"github.com/danmuck/rdmsession/internal/protocol/codec"
)

var (
	ErrCapabilityNotAdvertised = errors.New("consumer: service does not advertise capability")
	ErrServiceUnavailable      = errors.New("consumer: requested service not in directory")
	ErrUnsolicitedRefresh      = errors.New("consumer: unsolicited login refresh")
	ErrUnexpectedClass         = errors.New("consumer: unexpected message class")
	ErrUnknownStream           = errors.New("consumer: message for unknown stream")
	ErrUnknownDomain           = errors.New("consumer: unsupported domain")
	ErrLoginClosed             = errors.New("consumer: login stream closed by provider")
	ErrStartupStreamClosed     = errors.New("consumer: startup stream closed by provider")
)

// ProtocolError scopes a decode or sequencing failure to one stream. The
// connection stays usable.
type ProtocolError struct {
	StreamID int32
	Domain   codec.DomainType
	Class    codec.MsgClass
	Err      error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("consumer: stream %d %s %s: %v", e.StreamID, e.Domain, e.Class, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func protocolError(m codec.Msg, err error) *ProtocolError {
	return &ProtocolError{StreamID: m.StreamID(), Domain: m.Domain(), Class: m.Class(), Err: err}
}

func unexpected(m codec.Msg) *ProtocolError {
	return protocolError(m, fmt.Errorf("%w: %s", ErrUnexpectedClass, m.Class()))
}

// LogicalError reports a directory change that contradicts state still in
// use, such as deleting a service that open item streams reference.
// Processing of later messages continues.
type LogicalError struct {
	ServiceID   uint16
	OpenStreams int
	Reason      string
}

func (e *LogicalError) Error() string {
	return fmt.Sprintf("consumer: service %d: %s (%d open streams)", e.ServiceID, e.Reason, e.OpenStreams)
}
