// Package node runs the consumer and provider roles on a single polling
// loop each. Every socket, handshake and stream of a node is touched only
// from that loop; the admin server sees published snapshots.
package node

import (
	"context"
	"time"

	"github.com/danmuck/rdmsession/internal/server"
	"github.com/danmuck/rdmsession/internal/transport"
	"github.com/danmuck/rdmsession/internal/watchlist"
	"github.com/rs/zerolog/log"
)

// PollTimeout bounds one Wait so timers run even when sockets are idle.
const PollTimeout = 100 * time.Millisecond

type Node interface {
	NodeID() string
	Kind() string
	Tick(timeout time.Duration) error
	Close() error
}

// SessionView is the admin snapshot of one connection.
type SessionView struct {
	ID      string            `json:"id"`
	Addr    string            `json:"addr"`
	State   string            `json:"state"`
	Stage   string            `json:"stage,omitempty"`
	User    string            `json:"user,omitempty"`
	Streams []watchlist.Entry `json:"streams"`
}

type Snapshot struct {
	Node     string        `json:"node"`
	Kind     string        `json:"kind"`
	Sessions []SessionView `json:"sessions"`
}

func sessionView(s *transport.Session) SessionView {
	return SessionView{ID: s.ID(), Addr: s.Addr(), State: s.State().String()}
}

// Run ticks n until ctx is done. A nil admin runs without the HTTP
// surface.
func Run(ctx context.Context, n Node, admin *server.Server) error {
	if admin != nil {
		admin.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := admin.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("node.Run admin shutdown")
			}
		}()
	}
	log.Info().Str("node", n.NodeID()).Str("kind", n.Kind()).Msg("node.Run")
	defer func() {
		if err := n.Close(); err != nil {
			log.Warn().Err(err).Str("node", n.NodeID()).Msg("node.Run close")
		}
	}()
	for ctx.Err() == nil {
		if err := n.Tick(PollTimeout); err != nil {
			return err
		}
	}
	return nil
}
