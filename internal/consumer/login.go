package consumer

import (
	"time"

	"github.com/danmuck/rdmsession/internal/observability"
	"github.com/danmuck/rdmsession/internal/protocol/codec"
	"github.com/danmuck/rdmsession/internal/rdm"
	"github.com/danmuck/rdmsession/internal/watchlist"
	"github.com/rs/zerolog/log"
)

// RTTInterval is the minimum spacing between round-trip probes.
const RTTInterval = 5 * time.Second

// LoginConfig is the identity a consumer presents.
type LoginConfig struct {
	UserName        string
	ApplicationID   string
	ApplicationName string
	Position        string
	Role            uint8
	SupportRTT      bool
}

// LoginInfo is what the provider accepted.
type LoginInfo struct {
	UserName        string
	ApplicationID   string
	ApplicationName string
	Position        string
	Features        rdm.LoginFeatures
	LastLatency     time.Duration
	HasTCPRetrans   bool
	TCPRetrans      uint64
}

// Login drives the login stream.
type Login struct {
	cfg     LoginConfig
	streams *watchlist.WatchList
	info    LoginInfo
	open    bool

	lastProbe  time.Time
	probeTicks uint64
	clock      func() time.Time
}

func NewLogin(streams *watchlist.WatchList, cfg LoginConfig) *Login {
	return &Login{cfg: cfg, streams: streams, clock: time.Now}
}

// SendRequest tracks the login stream and writes the request.
func (l *Login) SendRequest(w rdm.Writer) error {
	if err := l.streams.Track(rdm.LoginStreamID, codec.DomainLogin, l.cfg.UserName, false); err != nil {
		return err
	}
	l.open = true
	req := rdm.LoginRequest{
		StreamID:        rdm.LoginStreamID,
		UserName:        l.cfg.UserName,
		UserNameType:    rdm.UserNameTypeName,
		ApplicationID:   l.cfg.ApplicationID,
		ApplicationName: l.cfg.ApplicationName,
		Position:        l.cfg.Position,
		Role:            l.cfg.Role,
		SupportRTT:      l.cfg.SupportRTT,
	}
	log.Debug().Str("user", l.cfg.UserName).Msg("consumer.Login request")
	return rdm.Send(w, req.Msg())
}

func (l *Login) OnMessage(w rdm.Writer, m codec.Msg) error {
	if m.StreamID() != rdm.LoginStreamID {
		return protocolError(m, ErrUnknownStream)
	}
	switch msg := m.(type) {
	case *codec.RefreshMsg:
		refresh, err := rdm.DecodeLoginRefresh(msg)
		if err != nil {
			return protocolError(m, err)
		}
		if !refresh.Solicited {
			return protocolError(m, ErrUnsolicitedRefresh)
		}
		l.streams.SetState(rdm.LoginStreamID, refresh.State)
		l.info.UserName = refresh.UserName
		l.info.ApplicationID = refresh.ApplicationID
		l.info.ApplicationName = refresh.ApplicationName
		l.info.Position = refresh.Position
		l.info.Features = refresh.Features
		log.Info().
			Str("user", refresh.UserName).
			Stringer("state", refresh.State).
			Bool("rtt", refresh.Features.SupportRTT).
			Msg("consumer.Login refresh")
		return nil
	case *codec.StatusMsg:
		if msg.State != nil {
			l.streams.SetState(rdm.LoginStreamID, *msg.State)
			log.Info().Stringer("state", *msg.State).Msg("consumer.Login status")
		}
		return nil
	case *codec.GenericMsg:
		return l.onRTT(w, msg)
	default:
		return unexpected(m)
	}
}

func (l *Login) onRTT(w rdm.Writer, m *codec.GenericMsg) error {
	rtt, err := rdm.DecodeLoginRTT(m)
	if err != nil {
		return protocolError(m, err)
	}
	if rtt.HasTCPRetrans {
		l.info.HasTCPRetrans = true
		l.info.TCPRetrans = rtt.TCPRetrans
	}
	if !rtt.Echo {
		rtt.Echo = true
		rtt.LastLatency = uint64(l.info.LastLatency)
		rtt.HasTCPRetrans = false
		return rdm.Send(w, rtt.Msg())
	}
	if rtt.Ticks != l.probeTicks {
		log.Debug().Uint64("ticks", rtt.Ticks).Msg("consumer.Login stale rtt echo")
		return nil
	}
	latency := l.clock().Sub(time.Unix(0, int64(rtt.Ticks)))
	if latency < 0 {
		latency = 0
	}
	l.info.LastLatency = latency
	observability.ObserveRTT(latency)
	return nil
}

// ProbeRTT sends a round-trip probe when RTT was negotiated and the last
// probe is at least RTTInterval old. It reports whether a probe was sent.
func (l *Login) ProbeRTT(w rdm.Writer, now time.Time) (bool, error) {
	if !l.IsOpenOk() || !l.cfg.SupportRTT || !l.info.Features.SupportRTT {
		return false, nil
	}
	if !l.lastProbe.IsZero() && now.Sub(l.lastProbe) < RTTInterval {
		return false, nil
	}
	l.lastProbe = now
	l.probeTicks = uint64(now.UnixNano())
	probe := rdm.LoginRTT{
		StreamID:    rdm.LoginStreamID,
		Ticks:       l.probeTicks,
		LastLatency: uint64(l.info.LastLatency),
	}
	return true, rdm.Send(w, probe.Msg())
}

func (l *Login) State() codec.State {
	e, ok := l.streams.Get(rdm.LoginStreamID)
	if !ok {
		return codec.State{}
	}
	return e.State
}

func (l *Login) IsOpenOk() bool { return l.open && l.State().IsOpenOk() }

func (l *Login) Info() LoginInfo { return l.info }

// Close sends a login close unless the stream is already final. Local
// state is cleared whether or not the write succeeds.
func (l *Login) Close(w rdm.Writer) error {
	if !l.open {
		return nil
	}
	final := l.State().IsFinal()
	l.reset()
	l.streams.Remove(rdm.LoginStreamID)
	if final {
		return nil
	}
	return rdm.Send(w, rdm.Close(rdm.LoginStreamID, codec.DomainLogin))
}

func (l *Login) reset() {
	l.open = false
	l.info = LoginInfo{}
	l.lastProbe = time.Time{}
	l.probeTicks = 0
}
