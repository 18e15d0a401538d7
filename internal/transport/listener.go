package transport

import (
	"fmt"
	"time"

	"code.hybscloud.com/iox"
	"github.com/danmuck/rdmsession/internal/poll"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
)

// Listener accepts provider-side sessions on a non-blocking socket.
type Listener struct {
	mux  Multiplexer
	fd   int
	addr string
	opts Options
}

// Listen binds addr and registers the listening socket for readability.
func Listen(mux Multiplexer, addr string, opts Options) (*Listener, error) {
	fd, bound, err := listenTCP(addr)
	if err != nil {
		return nil, &ConnectError{Op: "listen", Addr: addr, Err: err}
	}
	if err := mux.Register(fd, poll.Readable); err != nil {
		_ = sockClose(fd)
		return nil, &ConnectError{Op: "register", Addr: addr, Err: err}
	}
	log.Info().Str("addr", bound).Int("fd", fd).Msg("transport.Listen")
	return &Listener{mux: mux, fd: fd, addr: bound, opts: opts.WithDefaults()}, nil
}

func (l *Listener) FD() int      { return l.fd }
func (l *Listener) Addr() string { return l.addr }

// Accept returns the next pending connection as a Connecting session, or
// nil with no error when none is pending.
func (l *Listener) Accept() (*Session, error) {
	if l.fd < 0 {
		return nil, ErrClosed
	}
	fd, peer, err := acceptConn(l.fd)
	if iox.IsWouldBlock(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("transport: accept: %w", err)
	}
	if err := l.mux.Register(fd, poll.Readable); err != nil {
		_ = sockClose(fd)
		return nil, fmt.Errorf("transport: accept register: %w", err)
	}
	id := uuid.NewString()
	s := &Session{
		id:           id,
		opts:         l.opts,
		mux:          l.mux,
		log:          log.With().Str("session", id).Str("peer", peer).Logger(),
		server:       true,
		state:        StateConnecting,
		fd:           fd,
		oldFD:        -1,
		addr:         peer,
		tcpUp:        true,
		pingTimeout:  l.opts.PingTimeout,
		subProtocol:  SubProtocolBinary,
		maxMsgSize:   l.opts.MaxMsgSize,
		scratch:      make([]byte, l.opts.ReadBufferSize),
		lastActivity: time.Now(),
	}
	s.log.Info().Int("fd", fd).Msg("transport.Accept")
	return s, nil
}

func (l *Listener) Close() error {
	if l.fd < 0 {
		return nil
	}
	err := multierr.Combine(l.mux.Deregister(l.fd), sockClose(l.fd))
	l.fd = -1
	return err
}
