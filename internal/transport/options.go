package transport

import (
	"fmt"
	"time"

	"github.com/danmuck/rdmsession/internal/protocol/frame"
)

// State is the connection lifecycle state.
type State uint8

const (
	StateDisconnected State = iota
	StateConnecting
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateActive:
		return "Active"
	case StateClosed:
		return "Closed"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// InitResult is what one Initialize step produced.
type InitResult uint8

const (
	InitInProgress InitResult = iota
	InitFdChanged
	InitActive
	InitFailure
)

func (r InitResult) String() string {
	switch r {
	case InitInProgress:
		return "InProgress"
	case InitFdChanged:
		return "FdChanged"
	case InitActive:
		return "Active"
	case InitFailure:
		return "Failure"
	default:
		return fmt.Sprintf("InitResult(%d)", uint8(r))
	}
}

// SubProtocol is the message encoding negotiated at connect time.
type SubProtocol uint8

const (
	SubProtocolBinary SubProtocol = 0
	SubProtocolJSON   SubProtocol = 1
)

func (p SubProtocol) String() string {
	switch p {
	case SubProtocolBinary:
		return "binary"
	case SubProtocolJSON:
		return "json"
	default:
		return fmt.Sprintf("SubProtocol(%d)", uint8(p))
	}
}

// ParseSubProtocol accepts "binary" or "json".
func ParseSubProtocol(s string) (SubProtocol, error) {
	switch s {
	case "", "binary", "rwf":
		return SubProtocolBinary, nil
	case "json":
		return SubProtocolJSON, nil
	default:
		return 0, fmt.Errorf("transport: unknown sub-protocol %q", s)
	}
}

// BackoffConfig paces reconnect attempts made by the owning loop.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Options configure one session. Zero durations take the defaults from
// DefaultOptions when passed through WithDefaults.
type Options struct {
	Address       string
	BackupAddress string

	// PingTimeout is proposed to the peer; the negotiated value is the
	// smaller of both sides.
	PingTimeout time.Duration

	// PingInterval overrides PingTimeout/3 when non-zero.
	PingInterval time.Duration

	SubProtocol SubProtocol
	Converter   Converter

	MaxMsgSize      uint32
	ReadBufferSize  int
	MaxQueuedBytes  int
	MaxWriteRetries int

	Backoff BackoffConfig
}

const (
	defaultPingTimeout     = 60 * time.Second
	defaultReadBufferSize  = 64 * 1024
	defaultMaxQueuedBytes  = 8 * 1024 * 1024
	defaultMaxWriteRetries = 3
)

// DefaultOptions returns the baseline timing and sizing.
func DefaultOptions() Options {
	return Options{
		PingTimeout:     defaultPingTimeout,
		MaxMsgSize:      frame.DefaultLimits().MaxPayloadBytes,
		ReadBufferSize:  defaultReadBufferSize,
		MaxQueuedBytes:  defaultMaxQueuedBytes,
		MaxWriteRetries: defaultMaxWriteRetries,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills every unset field from DefaultOptions.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.PingTimeout <= 0 {
		o.PingTimeout = d.PingTimeout
	}
	if o.MaxMsgSize == 0 {
		o.MaxMsgSize = d.MaxMsgSize
	}
	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = d.ReadBufferSize
	}
	if o.MaxQueuedBytes <= 0 {
		o.MaxQueuedBytes = d.MaxQueuedBytes
	}
	if o.MaxWriteRetries <= 0 {
		o.MaxWriteRetries = d.MaxWriteRetries
	}
	if o.Backoff.InitialDelay <= 0 {
		o.Backoff = d.Backoff
	}
	return o
}

func (o Options) limits() frame.Limits {
	return frame.Limits{MaxPayloadBytes: o.MaxMsgSize}
}
