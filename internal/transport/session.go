// Package transport owns one physical connection per Session: the
// non-blocking connect and connect handshake, framed reads, flow
// controlled writes, liveness timing and the recovery path.
package transport

import (
	"errors"
	"fmt"
	"io"
	"time"

	"code.hybscloud.com/iox"
	"github.com/danmuck/rdmsession/internal/observability"
	"github.com/danmuck/rdmsession/internal/poll"
	"github.com/danmuck/rdmsession/internal/protocol/frame"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
)

// Multiplexer is the part of *poll.Poller a session drives.
type Multiplexer interface {
	Register(fd int, interest poll.Interest) error
	Modify(fd int, interest poll.Interest) error
	Deregister(fd int) error
}

// Converter translates between the binary message encoding and JSON
// documents when the JSON sub-protocol is negotiated.
type Converter interface {
	ToJSON(msg []byte) ([]byte, error)
	FromJSON(doc []byte) ([]byte, error)
}

// Session is not safe for concurrent use; it belongs to the polling loop
// that owns its multiplexer.
type Session struct {
	id     string
	opts   Options
	mux    Multiplexer
	log    zerolog.Logger
	server bool

	state       State
	fd          int
	oldFD       int
	addr        string
	usingBackup bool
	tcpUp       bool
	requestSent bool

	rbuf          []byte
	scratch       []byte
	wq            []byte
	writeInterest bool

	pingTimeout   time.Duration
	pingInterval  time.Duration
	subProtocol   SubProtocol
	maxMsgSize    uint32
	lastActivity  time.Time
	lastSent      time.Time
	shouldRecover bool
}

// New creates a disconnected client session.
func New(mux Multiplexer, opts Options) *Session {
	opts = opts.WithDefaults()
	id := uuid.NewString()
	return &Session{
		id:          id,
		opts:        opts,
		mux:         mux,
		log:         log.With().Str("session", id).Logger(),
		fd:          -1,
		oldFD:       -1,
		pingTimeout: opts.PingTimeout,
		subProtocol: opts.SubProtocol,
		maxMsgSize:  opts.MaxMsgSize,
		scratch:     make([]byte, opts.ReadBufferSize),
	}
}

func (s *Session) ID() string                  { return s.id }
func (s *Session) State() State                { return s.state }
func (s *Session) FD() int                     { return s.fd }
func (s *Session) OldFD() int                  { return s.oldFD }
func (s *Session) Addr() string                { return s.addr }
func (s *Session) ShouldRecover() bool         { return s.shouldRecover }
func (s *Session) PendingWrite() bool          { return len(s.wq) > 0 }
func (s *Session) PingTimeout() time.Duration  { return s.pingTimeout }
func (s *Session) PingInterval() time.Duration { return s.pingInterval }
func (s *Session) SubProtocol() SubProtocol    { return s.subProtocol }
func (s *Session) MaxMsgSize() uint32          { return s.maxMsgSize }
func (s *Session) LastActivity() time.Time     { return s.lastActivity }

// Connect opens a non-blocking socket to the configured address and
// registers it for read and write readiness. It never retries; on error
// the caller schedules a new attempt.
func (s *Session) Connect() error {
	if s.server {
		return fmt.Errorf("transport: connect on accepted session")
	}
	if s.state == StateConnecting || s.state == StateActive {
		return fmt.Errorf("transport: connect while %s", s.state)
	}
	s.shouldRecover = false
	s.usingBackup = false
	s.oldFD = -1

	err := s.dial(s.opts.Address)
	if err != nil && s.opts.BackupAddress != "" {
		s.log.Warn().Err(err).Str("backup", s.opts.BackupAddress).Msg("transport.Connect primary failed")
		s.usingBackup = true
		err = s.dial(s.opts.BackupAddress)
	}
	if err != nil {
		s.state = StateDisconnected
		s.shouldRecover = true
		s.log.Warn().Err(err).Msg("transport.Connect failed")
		return err
	}
	s.log.Info().Str("addr", s.addr).Int("fd", s.fd).Msg("transport.Connect")
	return nil
}

func (s *Session) dial(addr string) error {
	fd, err := dialNonblock(addr)
	if err != nil {
		return err
	}
	if err := s.mux.Register(fd, poll.Readable|poll.Writable); err != nil {
		_ = sockClose(fd)
		return &ConnectError{Op: "register", Addr: addr, Err: err}
	}
	s.fd = fd
	s.addr = addr
	s.state = StateConnecting
	s.tcpUp = false
	s.requestSent = false
	s.writeInterest = true
	s.rbuf = s.rbuf[:0]
	s.wq = nil
	s.pingTimeout = s.opts.PingTimeout
	s.subProtocol = s.opts.SubProtocol
	s.maxMsgSize = s.opts.MaxMsgSize
	s.lastActivity = time.Now()
	return nil
}

// Initialize advances the connect handshake by one step. Call it on every
// readiness event until it returns InitActive. InitFdChanged means the
// socket was replaced: the new handle is already registered and the old
// one released, and the caller must re-key any fd based routing from
// OldFD to FD.
func (s *Session) Initialize() (InitResult, error) {
	switch s.state {
	case StateActive:
		return InitActive, nil
	case StateConnecting:
	default:
		return InitFailure, ErrNotConnected
	}
	if s.server {
		return s.initializeServer()
	}

	if !s.tcpUp {
		err := connectResult(s.fd)
		if iox.IsWouldBlock(err) {
			return InitInProgress, nil
		}
		if err != nil {
			if s.opts.BackupAddress != "" && !s.usingBackup {
				return s.failover(err)
			}
			s.recover("connect", err)
			return InitFailure, &ConnectError{Op: "connect", Addr: s.addr, Err: err}
		}
		s.tcpUp = true
		s.log.Debug().Str("addr", s.addr).Msg("transport.Initialize tcp established")
	}

	if !s.requestSent {
		req := connectParams{
			PingTimeout: s.opts.PingTimeout,
			SubProtocol: s.opts.SubProtocol,
			MaxMsgSize:  s.opts.MaxMsgSize,
			SessionID:   s.id,
		}
		if err := s.sendFrame(frame.KindConnectRequest, 0, req.encode()); err != nil {
			return InitFailure, err
		}
		s.requestSent = true
	}
	if s.PendingWrite() {
		if _, err := s.Flush(); err != nil {
			return InitFailure, err
		}
	} else if err := s.setWriteInterest(false); err != nil {
		s.recover("register", err)
		return InitFailure, err
	}

	readErr := s.fill()
	f, ok, err := s.nextFrame()
	if err != nil || !ok {
		return s.progressOr(err, readErr)
	}
	switch f.Header.Kind {
	case frame.KindConnectAck:
		agreed, err := decodeConnectParams(f.Payload)
		if err != nil {
			s.recover("handshake", err)
			return InitFailure, err
		}
		s.activate(agreed)
		return InitActive, nil
	case frame.KindConnectNak:
		reason := decodeText(f.Payload, fieldReason)
		s.recover("nak", ErrConnectRejected)
		return InitFailure, fmt.Errorf("%w: %s", ErrConnectRejected, reason)
	default:
		err := fmt.Errorf("%w: %s during connect", ErrUnexpectedFrame, f.Header.Kind)
		s.recover("handshake", err)
		return InitFailure, err
	}
}

func (s *Session) initializeServer() (InitResult, error) {
	readErr := s.fill()
	f, ok, err := s.nextFrame()
	if err != nil || !ok {
		return s.progressOr(err, readErr)
	}
	if f.Header.Kind != frame.KindConnectRequest {
		err := fmt.Errorf("%w: %s before connect request", ErrUnexpectedFrame, f.Header.Kind)
		_ = s.sendFrame(frame.KindConnectNak, 0, encodeText(fieldReason, "expected connect request"))
		s.recover("handshake", err)
		return InitFailure, err
	}
	proposed, err := decodeConnectParams(f.Payload)
	if err != nil {
		_ = s.sendFrame(frame.KindConnectNak, 0, encodeText(fieldReason, err.Error()))
		s.recover("handshake", err)
		return InitFailure, err
	}
	agreed := negotiate(proposed, s.opts)
	if proposed.SessionID != "" {
		s.log = s.log.With().Str("peer_session", proposed.SessionID).Logger()
	}
	if err := s.sendFrame(frame.KindConnectAck, 0, agreed.encode()); err != nil {
		return InitFailure, err
	}
	s.activate(agreed)
	return InitActive, nil
}

// progressOr settles a handshake step that found no complete frame.
func (s *Session) progressOr(frameErr, readErr error) (InitResult, error) {
	if frameErr != nil {
		s.recover("frame", frameErr)
		return InitFailure, frameErr
	}
	if readErr != nil {
		s.readFailed(readErr)
		return InitFailure, readErr
	}
	return InitInProgress, nil
}

func (s *Session) activate(agreed connectParams) {
	s.pingTimeout = agreed.PingTimeout
	s.pingInterval = pingIntervalFor(agreed.PingTimeout, s.opts.PingInterval)
	s.subProtocol = agreed.SubProtocol
	if agreed.MaxMsgSize > 0 {
		s.maxMsgSize = agreed.MaxMsgSize
	}
	s.state = StateActive
	now := time.Now()
	s.lastActivity = now
	s.lastSent = now
	s.log.Info().
		Str("addr", s.addr).
		Dur("ping_timeout", s.pingTimeout).
		Dur("ping_interval", s.pingInterval).
		Stringer("sub_protocol", s.subProtocol).
		Msg("transport.Initialize active")
}

// failover swaps the refused primary socket for one to the backup address.
func (s *Session) failover(cause error) (InitResult, error) {
	old := s.fd
	_ = s.mux.Deregister(old)
	_ = sockClose(old)
	s.fd = -1
	s.usingBackup = true
	s.log.Warn().Err(cause).Str("backup", s.opts.BackupAddress).Msg("transport.Initialize failover")
	if err := s.dial(s.opts.BackupAddress); err != nil {
		s.oldFD = old
		s.recover("connect", err)
		return InitFailure, err
	}
	s.oldFD = old
	return InitFdChanged, nil
}

// Read drains the socket until it would block, then dispatches every
// complete frame in arrival order. Handler errors are collected and
// returned after the drain. A socket failure runs the recovery path.
// ErrReadinessChanged means the peer redirected the session and the
// caller must re-key routing and resume calling Initialize.
func (s *Session) Read(onMessage func([]byte) error, onPing func()) error {
	if s.state != StateActive {
		return ErrNotActive
	}
	readErr := s.fill()
	var errs error
	for {
		f, ok, err := s.nextFrame()
		if err != nil {
			s.recover("frame", err)
			return multierr.Append(errs, err)
		}
		if !ok {
			break
		}
		switch f.Header.Kind {
		case frame.KindPing:
			if onPing != nil {
				onPing()
			}
		case frame.KindData:
			payload := f.Payload
			if f.Header.Flags&frame.FlagJSON != 0 {
				if payload, err = s.fromJSON(payload); err != nil {
					errs = multierr.Append(errs, err)
					continue
				}
			}
			if onMessage != nil {
				errs = multierr.Append(errs, onMessage(payload))
			}
		case frame.KindRedirect:
			target := decodeText(f.Payload, fieldAddress)
			return multierr.Append(errs, s.redirectTo(target))
		default:
			errs = multierr.Append(errs, fmt.Errorf("%w: %s", ErrUnexpectedFrame, f.Header.Kind))
		}
	}
	if readErr != nil {
		s.readFailed(readErr)
		return multierr.Append(errs, readErr)
	}
	return errs
}

// maxDrainFrames bounds one drain to this many maximum-size frames. The
// multiplexer is level triggered, so bytes left in the socket wake the
// next Wait.
const maxDrainFrames = 4

// fill reads until the socket would block or one drain's worth of bytes
// is buffered. A socket error is returned without running recovery so
// the frames buffered ahead of it can still be dispatched.
func (s *Session) fill() error {
	limit := maxDrainFrames * (frame.HeaderLen + int(s.opts.limits().MaxPayloadBytes))
	for len(s.rbuf) < limit {
		n, err := sockRead(s.fd, s.scratch)
		if n > 0 {
			s.rbuf = append(s.rbuf, s.scratch[:n]...)
			s.lastActivity = time.Now()
			observability.RecordBytes(observability.DirectionIn, n)
		}
		switch {
		case err == nil:
		case iox.IsWouldBlock(err):
			return nil
		case errors.Is(err, io.EOF):
			return ErrPeerClosed
		default:
			return fmt.Errorf("transport: read: %w", err)
		}
	}
	return nil
}

// readFailed runs recovery for an error fill returned, unless a handler
// already tore the connection down.
func (s *Session) readFailed(err error) {
	if s.state == StateClosed {
		return
	}
	if errors.Is(err, ErrPeerClosed) {
		s.recover("eof", err)
		return
	}
	s.recover("read", err)
}

// nextFrame pops one complete frame off the read buffer.
func (s *Session) nextFrame() (frame.Frame, bool, error) {
	f, n, err := frame.Split(s.rbuf, s.opts.limits())
	if errors.Is(err, frame.ErrIncomplete) {
		return frame.Frame{}, false, nil
	}
	if err != nil {
		return frame.Frame{}, false, err
	}
	rest := copy(s.rbuf, s.rbuf[n:])
	s.rbuf = s.rbuf[:rest]
	observability.RecordFrame(observability.DirectionIn, f.Header.Kind.String())
	return f, true, nil
}

func (s *Session) redirectTo(addr string) error {
	if addr == "" {
		return fmt.Errorf("%w: redirect without address", ErrUnexpectedFrame)
	}
	old := s.fd
	_ = s.mux.Deregister(old)
	_ = sockClose(old)
	s.fd = -1
	s.log.Info().Str("from", s.addr).Str("to", addr).Msg("transport.Read redirected")
	if err := s.dial(addr); err != nil {
		s.oldFD = old
		s.recover("redirect", err)
		return err
	}
	s.oldFD = old
	return ErrReadinessChanged
}

// Write frames msg and sends it. A partial send queues the remainder and
// registers write interest. A would-block send retries a bounded number
// of times, flushing first, and queues the frame if still blocked. Any
// other failure runs the recovery path. A frame that would push the queue
// past MaxQueuedBytes is refused with ErrQueueFull; owners treat that as a
// failed connection.
func (s *Session) Write(msg []byte) error {
	if s.state != StateActive {
		return ErrNotActive
	}
	var flags uint8
	if s.subProtocol == SubProtocolJSON {
		doc, err := s.toJSON(msg)
		if err != nil {
			return err
		}
		msg = doc
		flags |= frame.FlagJSON
	}
	return s.sendFrame(frame.KindData, flags, msg)
}

// SendPing sends an empty liveness frame.
func (s *Session) SendPing() error {
	if s.state != StateActive {
		return ErrNotActive
	}
	return s.sendFrame(frame.KindPing, 0, nil)
}

// Redirect tells the peer to reconnect to addr.
func (s *Session) Redirect(addr string) error {
	if s.state != StateActive {
		return ErrNotActive
	}
	return s.sendFrame(frame.KindRedirect, 0, encodeText(fieldAddress, addr))
}

func (s *Session) sendFrame(kind frame.Kind, flags uint8, payload []byte) error {
	if s.fd < 0 {
		return ErrNotConnected
	}
	out, err := frame.AppendFrame(nil, kind, flags, payload, frame.Limits{MaxPayloadBytes: s.maxMsgSize})
	if err != nil {
		return err
	}
	observability.RecordFrame(observability.DirectionOut, kind.String())
	s.lastSent = time.Now()

	if s.PendingWrite() {
		if len(s.wq)+len(out) > s.opts.MaxQueuedBytes {
			return ErrQueueFull
		}
		s.enqueue(out)
		_, err := s.Flush()
		return err
	}

	for attempt := 0; ; attempt++ {
		n, err := sockWrite(s.fd, out)
		observability.RecordBytes(observability.DirectionOut, n)
		out = out[n:]
		switch {
		case err == nil && len(out) == 0:
			return nil
		case err == nil:
			s.enqueue(out)
			return s.setWriteInterest(true)
		case !iox.IsWouldBlock(err):
			s.recover("write", err)
			return fmt.Errorf("transport: write: %w", err)
		}
		if attempt >= s.opts.MaxWriteRetries {
			s.enqueue(out)
			return s.setWriteInterest(true)
		}
		if _, err := s.Flush(); err != nil {
			return err
		}
	}
}

func (s *Session) enqueue(b []byte) {
	s.wq = append(s.wq, b...)
	observability.RecordQueuedWrite()
}

// Flush pushes queued bytes. more is true while bytes remain queued;
// once the queue drains, write interest is dropped.
func (s *Session) Flush() (more bool, err error) {
	if s.fd < 0 {
		return false, ErrNotConnected
	}
	for len(s.wq) > 0 {
		n, err := sockWrite(s.fd, s.wq)
		observability.RecordBytes(observability.DirectionOut, n)
		if n > 0 {
			rest := copy(s.wq, s.wq[n:])
			s.wq = s.wq[:rest]
		}
		if err == nil {
			continue
		}
		if iox.IsWouldBlock(err) {
			return true, s.setWriteInterest(true)
		}
		s.recover("flush", err)
		return false, fmt.Errorf("transport: flush: %w", err)
	}
	if s.state == StateConnecting && !s.tcpUp {
		return false, nil
	}
	return false, s.setWriteInterest(false)
}

func (s *Session) setWriteInterest(on bool) error {
	if s.writeInterest == on || s.fd < 0 {
		return nil
	}
	interest := poll.Readable
	if on {
		interest |= poll.Writable
	}
	if err := s.mux.Modify(s.fd, interest); err != nil {
		return err
	}
	s.writeInterest = on
	return nil
}

// PingDue reports whether a ping should be sent to keep the peer's
// liveness check satisfied.
func (s *Session) PingDue(now time.Time) bool {
	return s.state == StateActive && s.pingInterval > 0 && now.Sub(s.lastSent) >= s.pingInterval
}

// Expired reports whether nothing was received within the ping timeout.
func (s *Session) Expired(now time.Time) bool {
	return s.state == StateActive && now.Sub(s.lastActivity) > s.pingTimeout
}

// Recover tears the connection down after an error the owner detected,
// such as an expired liveness timer.
func (s *Session) Recover(reason string) {
	s.recover(reason, nil)
}

func (s *Session) recover(reason string, cause error) {
	s.shouldRecover = true
	if s.fd >= 0 {
		_ = s.mux.Deregister(s.fd)
		if len(s.wq) > 0 {
			_, _ = sockWrite(s.fd, s.wq)
		}
		_ = sockClose(s.fd)
		s.fd = -1
	}
	s.wq = nil
	s.rbuf = s.rbuf[:0]
	s.writeInterest = false
	s.state = StateClosed
	observability.RecordRecovery(reason)
	s.log.Warn().Err(cause).Str("reason", reason).Str("addr", s.addr).Msg("transport.recover")
}

// Close releases the connection without marking it for reconnect.
func (s *Session) Close() error {
	if s.fd < 0 {
		s.state = StateClosed
		return nil
	}
	var err error
	if len(s.wq) > 0 {
		_, _ = sockWrite(s.fd, s.wq)
	}
	err = multierr.Append(err, s.mux.Deregister(s.fd))
	err = multierr.Append(err, sockClose(s.fd))
	s.fd = -1
	s.wq = nil
	s.rbuf = s.rbuf[:0]
	s.writeInterest = false
	s.state = StateClosed
	s.log.Info().Str("addr", s.addr).Msg("transport.Close")
	return err
}

func (s *Session) toJSON(msg []byte) ([]byte, error) {
	if s.opts.Converter == nil {
		return nil, ErrNoConverter
	}
	return s.opts.Converter.ToJSON(msg)
}

func (s *Session) fromJSON(doc []byte) ([]byte, error) {
	if s.opts.Converter == nil {
		return nil, ErrNoConverter
	}
	return s.opts.Converter.FromJSON(doc)
}
