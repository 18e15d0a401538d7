package consumer

import (
	"github.com/danmuck/rdmsession/internal/protocol/codec"
	"github.com/danmuck/rdmsession/internal/rdm"
	"github.com/danmuck/rdmsession/internal/watchlist"
	"github.com/rs/zerolog/log"
)

// Item is the latest image of one market price stream.
type Item struct {
	StreamID int32
	Name     string
	Private  bool
	State    codec.State
	Fields   map[int16]string
	Updates  int
}

// Items opens market price streams on the watched service.
type Items struct {
	streams *watchlist.WatchList
	cache   *ServiceCache
	items   map[int32]*Item
}

func NewItems(streams *watchlist.WatchList, cache *ServiceCache) *Items {
	return &Items{streams: streams, cache: cache, items: make(map[int32]*Item)}
}

// Request allocates a stream for name and sends the request.
func (it *Items) Request(w rdm.Writer, name string, private bool) (int32, error) {
	serviceID, ok := it.cache.ID()
	if !ok {
		return 0, ErrServiceUnavailable
	}
	id := it.streams.Allocate(codec.DomainMarketPrice, name, private)
	it.items[id] = &Item{StreamID: id, Name: name, Private: private, Fields: make(map[int16]string)}
	req := rdm.ItemRequest{
		StreamID:  id,
		Domain:    codec.DomainMarketPrice,
		ServiceID: serviceID,
		Name:      name,
		Streaming: true,
		Private:   private,
	}
	if err := rdm.Send(w, req.Msg()); err != nil {
		it.drop(id)
		return 0, err
	}
	log.Debug().Int32("stream", id).Str("name", name).Msg("consumer.Items request")
	return id, nil
}

func (it *Items) Get(id int32) (Item, bool) {
	item, ok := it.items[id]
	if !ok {
		return Item{}, false
	}
	out := *item
	out.Fields = make(map[int16]string, len(item.Fields))
	for k, v := range item.Fields {
		out.Fields[k] = v
	}
	return out, true
}

func (it *Items) Len() int { return len(it.items) }

func (it *Items) OnMessage(_ rdm.Writer, m codec.Msg) error {
	item, ok := it.items[m.StreamID()]
	if !ok {
		return protocolError(m, ErrUnknownStream)
	}
	switch msg := m.(type) {
	case *codec.RefreshMsg:
		refresh, err := rdm.DecodeMarketPriceRefresh(msg)
		if err != nil {
			return protocolError(m, err)
		}
		item.Fields = make(map[int16]string, len(refresh.Fields))
		for _, f := range refresh.Fields {
			item.Fields[f.FID] = f.Value
		}
		it.setState(item, refresh.State)
		return nil
	case *codec.UpdateMsg:
		update, err := rdm.DecodeMarketPriceUpdate(msg)
		if err != nil {
			return protocolError(m, err)
		}
		for _, f := range update.Fields {
			item.Fields[f.FID] = f.Value
		}
		item.Updates++
		return nil
	case *codec.StatusMsg:
		if msg.State != nil {
			it.setState(item, *msg.State)
		}
		return nil
	default:
		return unexpected(m)
	}
}

// setState records state and forgets the item once the provider closed it.
func (it *Items) setState(item *Item, state codec.State) {
	item.State = state
	it.streams.SetState(item.StreamID, state)
	if state.IsFinal() {
		log.Info().Int32("stream", item.StreamID).Str("name", item.Name).Stringer("state", state).Msg("consumer.Items closed")
		it.drop(item.StreamID)
	}
}

// Close sends a close for id unless it already reached a final state.
func (it *Items) Close(w rdm.Writer, id int32) error {
	item, ok := it.items[id]
	if !ok {
		return nil
	}
	final := item.State.IsFinal()
	it.drop(id)
	if final {
		return nil
	}
	return rdm.Send(w, rdm.Close(id, codec.DomainMarketPrice))
}

func (it *Items) drop(id int32) {
	delete(it.items, id)
	it.streams.Remove(id)
}

func (it *Items) reset() {
	it.items = make(map[int32]*Item)
}
