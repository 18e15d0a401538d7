package node

import (
	"errors"
	"sort"
	"time"

	"github.com/danmuck/rdmsession/internal/config"
	"github.com/danmuck/rdmsession/internal/poll"
	"github.com/danmuck/rdmsession/internal/provider"
	"github.com/danmuck/rdmsession/internal/rdm"
	"github.com/danmuck/rdmsession/internal/server"
	"github.com/danmuck/rdmsession/internal/transport"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
)

const (
	providerRTTInterval = 5 * time.Second
	publishInterval     = time.Second
)

type peer struct {
	sess *transport.Session
	prov *provider.Provider
}

// ProviderNode accepts consumer connections and serves each with its own
// Provider. Peers are keyed by socket handle.
type ProviderNode struct {
	name  string
	cfg   provider.Config
	mux   *poll.Poller
	ln    *transport.Listener
	peers map[int]*peer
	admin *server.Server
	clock func() time.Time

	lastPublish time.Time
}

func NewProvider(cfg config.ProviderConfig) (*ProviderNode, error) {
	mux, err := poll.New()
	if err != nil {
		return nil, err
	}
	ln, err := transport.Listen(mux, cfg.Listen, cfg.TransportOptions())
	if err != nil {
		_ = mux.Close()
		return nil, err
	}
	n := &ProviderNode{
		name:  cfg.Name,
		cfg:   cfg.Provider(),
		mux:   mux,
		ln:    ln,
		peers: make(map[int]*peer),
		clock: time.Now,
	}
	if cfg.AdminAddr != "" {
		n.admin = server.New(cfg.Name, cfg.AdminAddr)
	}
	return n, nil
}

func (n *ProviderNode) NodeID() string        { return n.name }
func (n *ProviderNode) Kind() string          { return "provider" }
func (n *ProviderNode) Admin() *server.Server { return n.admin }
func (n *ProviderNode) Addr() string          { return n.ln.Addr() }
func (n *ProviderNode) Peers() int            { return len(n.peers) }

func (n *ProviderNode) Tick(timeout time.Duration) error {
	events, err := n.mux.Wait(timeout)
	if err != nil {
		return err
	}
	for _, ev := range events {
		if ev.FD == n.ln.FD() {
			n.accept()
			continue
		}
		if p, ok := n.peers[ev.FD]; ok {
			n.handle(ev.FD, p, ev)
		}
	}
	n.service(n.clock())
	n.publish()
	return nil
}

func (n *ProviderNode) accept() {
	for {
		sess, err := n.ln.Accept()
		if err != nil {
			log.Warn().Err(err).Msg("node.Provider accept")
			return
		}
		if sess == nil {
			return
		}
		n.peers[sess.FD()] = &peer{sess: sess, prov: provider.New(n.cfg)}
	}
}

func (n *ProviderNode) handle(fd int, p *peer, ev poll.Event) {
	switch p.sess.State() {
	case transport.StateConnecting:
		if res, err := p.sess.Initialize(); res == transport.InitFailure {
			n.drop(fd, err)
		}
	case transport.StateActive:
		if ev.Writable && p.sess.PendingWrite() {
			if _, err := p.sess.Flush(); err != nil {
				n.drop(fd, err)
				return
			}
		}
		if ev.Readable || ev.Hangup {
			err := p.sess.Read(func(b []byte) error { return p.prov.OnFrame(p.sess, b) }, nil)
			if err == nil {
				return
			}
			if p.sess.State() != transport.StateActive {
				n.drop(fd, err)
				return
			}
			for _, e := range multierr.Errors(err) {
				log.Warn().Err(e).Str("session", p.sess.ID()).Msg("node.Provider message")
			}
		}
	}
}

func (n *ProviderNode) drop(fd int, cause error) {
	p, ok := n.peers[fd]
	if !ok {
		return
	}
	delete(n.peers, fd)
	if p.sess.State() != transport.StateClosed {
		_ = p.sess.Close()
	}
	log.Info().Err(cause).Str("session", p.sess.ID()).Str("user", p.prov.User()).Msg("node.Provider peer gone")
}

func (n *ProviderNode) service(now time.Time) {
	publish := now.Sub(n.lastPublish) >= publishInterval
	if publish {
		n.lastPublish = now
	}
	for fd, p := range n.peers {
		if p.sess.State() != transport.StateActive {
			continue
		}
		if p.sess.Expired(now) {
			n.drop(fd, errors.New("no traffic within ping timeout"))
			continue
		}
		var errs error
		if p.prov.Pending() > 0 {
			errs = multierr.Append(errs, p.prov.Pump(p.sess))
		}
		_, err := p.prov.ProbeRTT(p.sess, now, providerRTTInterval)
		errs = multierr.Append(errs, err)
		if publish {
			errs = multierr.Append(errs, n.publishImages(p))
		}
		if p.sess.PingDue(now) {
			errs = multierr.Append(errs, p.sess.SendPing())
		}
		if p.sess.State() != transport.StateActive || errors.Is(errs, transport.ErrQueueFull) {
			n.drop(fd, errs)
		}
	}
}

// publishImages resends every configured image to the streams open on p.
func (n *ProviderNode) publishImages(p *peer) error {
	names := make([]string, 0, len(n.cfg.Items))
	for name := range n.cfg.Items {
		names = append(names, name)
	}
	sort.Strings(names)
	var errs error
	for _, name := range names {
		errs = multierr.Append(errs, p.prov.Publish(p.sess, name, n.cfg.Items[name]))
	}
	return errs
}

func (n *ProviderNode) publish() {
	if n.admin == nil {
		return
	}
	fds := make([]int, 0, len(n.peers))
	for fd := range n.peers {
		fds = append(fds, fd)
	}
	sort.Ints(fds)
	snap := Snapshot{Node: n.name, Kind: n.Kind(), Sessions: make([]SessionView, 0, len(fds))}
	for _, fd := range fds {
		p := n.peers[fd]
		view := sessionView(p.sess)
		view.User = p.prov.User()
		view.Streams = p.prov.Streams()
		snap.Sessions = append(snap.Sessions, view)
	}
	n.admin.Publish(snap)
}

// Redirect asks every connected consumer to reconnect to addr.
func (n *ProviderNode) Redirect(addr string) error {
	var errs error
	for _, p := range n.peers {
		if p.sess.State() == transport.StateActive {
			errs = multierr.Append(errs, p.sess.Redirect(addr))
		}
	}
	return errs
}

// Close drops every consumer connection. Consumers see a lost connection
// and recover from it.
func (n *ProviderNode) Close() error {
	var errs error
	for fd, p := range n.peers {
		if p.sess.PendingWrite() {
			_, err := p.sess.Flush()
			errs = multierr.Append(errs, err)
		}
		errs = multierr.Append(errs, p.sess.Close())
		delete(n.peers, fd)
	}
	errs = multierr.Append(errs, n.ln.Close())
	return multierr.Append(errs, n.mux.Close())
}

var _ rdm.Writer = (*transport.Session)(nil)
