package consumer

import (
	"fmt"

	"github.com/danmuck/rdmsession/internal/protocol/codec"
	"github.com/danmuck/rdmsession/internal/rdm"
	"github.com/danmuck/rdmsession/internal/watchlist"
	"github.com/rs/zerolog/log"
)

// SymbolList follows one symbol list stream and keeps its symbols in
// arrival order.
type SymbolList struct {
	streams *watchlist.WatchList
	cache   *ServiceCache

	streamID int32
	name     string
	symbols  []string
	index    map[string]int
}

func NewSymbolList(streams *watchlist.WatchList, cache *ServiceCache) *SymbolList {
	return &SymbolList{streams: streams, cache: cache, index: make(map[string]int)}
}

// SendRequest opens name on the watched service. Nothing is written when
// the service does not advertise the symbol list domain.
func (s *SymbolList) SendRequest(w rdm.Writer, name string) error {
	if !s.cache.HasCapability(codec.DomainSymbolList) {
		return fmt.Errorf("%w: %s on %q", ErrCapabilityNotAdvertised, codec.DomainSymbolList, s.cache.Name())
	}
	serviceID, _ := s.cache.ID()
	if s.streamID != 0 {
		s.streams.Remove(s.streamID)
	}
	s.reset()
	s.streamID = s.streams.Allocate(codec.DomainSymbolList, name, false)
	s.name = name
	req := rdm.SymbolListRequest{
		StreamID:  s.streamID,
		ServiceID: serviceID,
		Name:      name,
		Streaming: true,
	}
	return rdm.Send(w, req.Msg())
}

func (s *SymbolList) StreamID() int32 { return s.streamID }

func (s *SymbolList) OnMessage(_ rdm.Writer, m codec.Msg) error {
	if s.streamID == 0 || m.StreamID() != s.streamID {
		return protocolError(m, ErrUnknownStream)
	}
	switch msg := m.(type) {
	case *codec.RefreshMsg:
		refresh, err := rdm.DecodeSymbolListRefresh(msg)
		if err != nil {
			return protocolError(m, err)
		}
		s.streams.SetState(s.streamID, refresh.State)
		if refresh.ClearCache {
			s.clearSymbols()
		}
		s.apply(refresh.Entries)
		return nil
	case *codec.UpdateMsg:
		update, err := rdm.DecodeSymbolListUpdate(msg)
		if err != nil {
			return protocolError(m, err)
		}
		s.apply(update.Entries)
		return nil
	case *codec.StatusMsg:
		if msg.State != nil {
			s.streams.SetState(s.streamID, *msg.State)
		}
		return nil
	default:
		return unexpected(m)
	}
}

func (s *SymbolList) apply(entries []rdm.SymbolEntry) {
	for _, e := range entries {
		switch e.Action {
		case rdm.SymbolAdd, rdm.SymbolUpdate:
			if _, ok := s.index[e.Symbol]; !ok {
				s.index[e.Symbol] = len(s.symbols)
				s.symbols = append(s.symbols, e.Symbol)
			}
		case rdm.SymbolDelete:
			s.remove(e.Symbol)
		default:
			log.Warn().Str("symbol", e.Symbol).Stringer("action", e.Action).Msg("consumer.SymbolList unknown action")
		}
	}
}

func (s *SymbolList) remove(symbol string) {
	i, ok := s.index[symbol]
	if !ok {
		return
	}
	s.symbols = append(s.symbols[:i], s.symbols[i+1:]...)
	delete(s.index, symbol)
	for j := i; j < len(s.symbols); j++ {
		s.index[s.symbols[j]] = j
	}
}

// Symbols returns the current symbols in the order they were added.
func (s *SymbolList) Symbols() []string {
	return append([]string(nil), s.symbols...)
}

func (s *SymbolList) Close(w rdm.Writer) error {
	if s.streamID == 0 {
		return nil
	}
	id := s.streamID
	e, _ := s.streams.Get(id)
	s.streams.Remove(id)
	s.reset()
	if e.State.IsFinal() {
		return nil
	}
	return rdm.Send(w, rdm.Close(id, codec.DomainSymbolList))
}

func (s *SymbolList) clearSymbols() {
	s.symbols = nil
	s.index = make(map[string]int)
}

func (s *SymbolList) reset() {
	s.streamID = 0
	s.name = ""
	s.clearSymbols()
}
