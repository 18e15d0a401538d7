package node

import (
	"errors"
	"math/rand"
	"time"

	"github.com/danmuck/rdmsession/internal/config"
	"github.com/danmuck/rdmsession/internal/consumer"
	"github.com/danmuck/rdmsession/internal/poll"
	"github.com/danmuck/rdmsession/internal/server"
	"github.com/danmuck/rdmsession/internal/transport"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
)

// ConsumerNode keeps one consumer connection alive: it connects, runs
// the startup handshakes, reconnects with backoff and replays them after
// every recovery.
type ConsumerNode struct {
	name  string
	mux   *poll.Poller
	sess  *transport.Session
	cons  *consumer.Consumer
	recon *transport.Reconnector
	admin *server.Server
	clock func() time.Time
}

func NewConsumer(cfg config.ConsumerConfig) (*ConsumerNode, error) {
	mux, err := poll.New()
	if err != nil {
		return nil, err
	}
	opts := cfg.TransportOptions()
	n := &ConsumerNode{
		name:  cfg.Name,
		mux:   mux,
		sess:  transport.New(mux, opts),
		cons:  consumer.New(cfg.Consumer()),
		recon: transport.NewReconnector(opts.Backoff, rand.New(rand.NewSource(time.Now().UnixNano()))),
		clock: time.Now,
	}
	if cfg.AdminAddr != "" {
		n.admin = server.New(cfg.Name, cfg.AdminAddr)
	}
	return n, nil
}

func (n *ConsumerNode) NodeID() string                      { return n.name }
func (n *ConsumerNode) Kind() string                        { return "consumer" }
func (n *ConsumerNode) Admin() *server.Server               { return n.admin }
func (n *ConsumerNode) Consumer() *consumer.Consumer        { return n.cons }
func (n *ConsumerNode) Session() *transport.Session         { return n.sess }
func (n *ConsumerNode) Reconnector() *transport.Reconnector { return n.recon }

// Tick runs one loop iteration. Only a login the provider refused for
// good is returned; connection failures are retried.
func (n *ConsumerNode) Tick(timeout time.Duration) error {
	n.connectIfDue(n.clock())

	events, err := n.mux.Wait(timeout)
	if err != nil {
		return err
	}
	for _, ev := range events {
		if ev.FD == n.sess.FD() {
			n.handle(ev)
		}
	}
	if err := n.service(n.clock()); err != nil {
		return err
	}
	n.publish()
	return nil
}

func (n *ConsumerNode) connectIfDue(now time.Time) {
	switch n.sess.State() {
	case transport.StateDisconnected, transport.StateClosed:
	default:
		return
	}
	if !n.recon.Due(now) {
		return
	}
	if err := n.sess.Connect(); err != nil {
		next := n.recon.Schedule(now)
		log.Warn().Err(err).Time("next", next).Int("attempt", n.recon.Attempts()).Msg("node.Consumer connect")
	}
}

func (n *ConsumerNode) handle(ev poll.Event) {
	switch n.sess.State() {
	case transport.StateConnecting:
		n.initialize()
	case transport.StateActive:
		if ev.Writable && n.sess.PendingWrite() {
			if _, err := n.sess.Flush(); err != nil {
				n.lost(err)
				return
			}
		}
		if ev.Readable || ev.Hangup {
			n.read()
		}
	}
}

func (n *ConsumerNode) initialize() {
	res, err := n.sess.Initialize()
	switch res {
	case transport.InitActive:
		n.recon.Reset()
	case transport.InitFdChanged:
		log.Info().Int("old_fd", n.sess.OldFD()).Int("fd", n.sess.FD()).Msg("node.Consumer failover")
	case transport.InitFailure:
		n.lost(err)
	}
}

func (n *ConsumerNode) read() {
	err := n.sess.Read(func(b []byte) error { return n.cons.OnFrame(n.sess, b) }, nil)
	switch {
	case err == nil:
	case errors.Is(err, transport.ErrReadinessChanged):
		log.Info().Str("addr", n.sess.Addr()).Int("fd", n.sess.FD()).Msg("node.Consumer redirected")
		n.cons.Reset()
	case n.sess.ShouldRecover():
		n.lost(err)
	default:
		for _, e := range multierr.Errors(err) {
			log.Warn().Err(e).Msg("node.Consumer message")
		}
	}
}

// lost resets every stream after the connection went away and schedules
// the reconnect.
func (n *ConsumerNode) lost(cause error) {
	n.cons.Reset()
	next := n.recon.Schedule(n.clock())
	log.Warn().Err(cause).Time("next", next).Msg("node.Consumer connection lost")
}

func (n *ConsumerNode) service(now time.Time) error {
	if n.sess.State() == transport.StateConnecting {
		n.initialize()
	}
	if n.sess.State() != transport.StateActive {
		return nil
	}
	if n.sess.Expired(now) {
		n.sess.Recover("ping timeout")
		n.lost(errors.New("no traffic within ping timeout"))
		return nil
	}
	if err := n.cons.Step(n.sess, now); err != nil {
		switch {
		case errors.Is(err, consumer.ErrLoginClosed):
			return err
		case errors.Is(err, consumer.ErrStartupStreamClosed), errors.Is(err, transport.ErrQueueFull):
			// Start over on a fresh connection after the backoff.
			n.sess.Recover(err.Error())
			n.lost(err)
			return nil
		case n.sess.ShouldRecover():
			n.lost(err)
			return nil
		default:
			log.Warn().Err(err).Stringer("stage", n.cons.Stage()).Msg("node.Consumer step")
		}
	}
	if n.sess.PingDue(now) {
		if err := n.sess.SendPing(); err != nil && n.sess.ShouldRecover() {
			n.lost(err)
		}
	}
	return nil
}

func (n *ConsumerNode) publish() {
	if n.admin == nil {
		return
	}
	view := sessionView(n.sess)
	view.Stage = n.cons.Stage().String()
	view.User = n.cons.Login().Info().UserName
	view.Streams = n.cons.Streams()
	n.admin.Publish(Snapshot{Node: n.name, Kind: n.Kind(), Sessions: []SessionView{view}})
}

// Close sends close messages for every open stream while the connection
// is up, then releases it.
func (n *ConsumerNode) Close() error {
	var errs error
	if n.sess.State() == transport.StateActive {
		errs = multierr.Append(errs, n.cons.Close(n.sess))
		_, err := n.sess.Flush()
		errs = multierr.Append(errs, err)
	}
	errs = multierr.Append(errs, n.sess.Close())
	return multierr.Append(errs, n.mux.Close())
}
