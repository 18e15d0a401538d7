package consumer

import (
	"github.com/danmuck/rdmsession/internal/protocol/codec"
	"github.com/danmuck/rdmsession/internal/rdm"
	"github.com/danmuck/rdmsession/internal/watchlist"
	"github.com/rs/zerolog/log"
)

// ServiceCache holds the one directory service a consumer watches,
// selected by name. Other services in directory messages are logged and
// otherwise ignored.
type ServiceCache struct {
	name       string
	known      bool
	service    rdm.Service
	lastAction rdm.ServiceAction
}

func NewServiceCache(name string) *ServiceCache {
	return &ServiceCache{name: name}
}

func (c *ServiceCache) Name() string { return c.name }

// ID returns the cached service id once the service has been seen.
func (c *ServiceCache) ID() (uint16, bool) { return c.service.ID, c.known }

// Service returns a copy of the cached service.
func (c *ServiceCache) Service() (rdm.Service, bool) {
	if !c.known {
		return rdm.Service{}, false
	}
	s := c.service
	s.Info.Capabilities = append([]codec.DomainType(nil), s.Info.Capabilities...)
	return s, true
}

func (c *ServiceCache) LastAction() rdm.ServiceAction { return c.lastAction }

// IsRequestedServiceUp reports whether the watched service is cached, up
// and accepting requests.
func (c *ServiceCache) IsRequestedServiceUp() bool {
	return c.known &&
		c.lastAction != rdm.ServiceActionDelete &&
		c.service.HasState &&
		c.service.State.ServiceState == rdm.ServiceUp &&
		c.service.State.AcceptingRequests
}

func (c *ServiceCache) HasCapability(domain codec.DomainType) bool {
	return c.known && c.service.HasInfo && c.service.Info.HasCapability(domain)
}

func (c *ServiceCache) Reset() {
	c.known = false
	c.service = rdm.Service{}
	c.lastAction = 0
}

// Replace seeds the cache from a refresh, dropping whatever it held.
func (c *ServiceCache) Replace(services []rdm.Service) {
	c.Reset()
	c.Apply(services)
}

// Apply folds directory map entries into the cache in order and reports
// whether one of them deleted the watched service.
func (c *ServiceCache) Apply(services []rdm.Service) (deleted bool) {
	for _, s := range services {
		if c.known && s.ID == c.service.ID {
			c.lastAction = s.Action
			if s.Action == rdm.ServiceActionDelete {
				c.known = false
				deleted = true
				continue
			}
			merge(&c.service, s)
			continue
		}
		if !c.known && s.Action != rdm.ServiceActionDelete && s.HasInfo && s.Info.Name == c.name {
			c.known = true
			c.lastAction = s.Action
			c.service = rdm.Service{ID: s.ID}
			merge(&c.service, s)
			continue
		}
		log.Debug().
			Uint16("service_id", s.ID).
			Str("name", s.Info.Name).
			Stringer("action", s.Action).
			Msg("consumer.Directory ignored service")
	}
	return deleted
}

func merge(dst *rdm.Service, src rdm.Service) {
	dst.Action = src.Action
	if src.HasInfo {
		dst.HasInfo = true
		dst.Info = src.Info
	}
	if src.HasState {
		dst.HasState = true
		dst.State = src.State
	}
	if src.Groups != nil {
		dst.Groups = append([]uint16(nil), src.Groups...)
	}
}

// Directory drives the source directory stream.
type Directory struct {
	streams *watchlist.WatchList
	cache   *ServiceCache
	filter  rdm.Filter
	open    bool
}

func NewDirectory(streams *watchlist.WatchList, cache *ServiceCache) *Directory {
	return &Directory{
		streams: streams,
		cache:   cache,
		filter:  rdm.FilterInfo | rdm.FilterState | rdm.FilterGroup,
	}
}

func (d *Directory) SendRequest(w rdm.Writer) error {
	if err := d.streams.Track(rdm.DirectoryStreamID, codec.DomainSource, "", false); err != nil {
		return err
	}
	d.open = true
	req := rdm.DirectoryRequest{
		StreamID:  rdm.DirectoryStreamID,
		Filter:    d.filter,
		Streaming: true,
	}
	return rdm.Send(w, req.Msg())
}

func (d *Directory) OnMessage(_ rdm.Writer, m codec.Msg) error {
	if m.StreamID() != rdm.DirectoryStreamID {
		return protocolError(m, ErrUnknownStream)
	}
	switch msg := m.(type) {
	case *codec.RefreshMsg:
		refresh, err := rdm.DecodeDirectoryRefresh(msg)
		if err != nil {
			return protocolError(m, err)
		}
		d.streams.SetState(rdm.DirectoryStreamID, refresh.State)
		d.cache.Replace(refresh.Services)
		id, ok := d.cache.ID()
		log.Info().
			Int("services", len(refresh.Services)).
			Str("watched", d.cache.Name()).
			Bool("found", ok).
			Uint16("service_id", id).
			Msg("consumer.Directory refresh")
		return nil
	case *codec.UpdateMsg:
		update, err := rdm.DecodeDirectoryUpdate(msg)
		if err != nil {
			return protocolError(m, err)
		}
		return d.applyUpdate(update.Services)
	case *codec.StatusMsg:
		if msg.State != nil {
			d.streams.SetState(rdm.DirectoryStreamID, *msg.State)
		}
		return nil
	default:
		return unexpected(m)
	}
}

func (d *Directory) applyUpdate(services []rdm.Service) error {
	id, _ := d.cache.ID()
	if !d.cache.Apply(services) {
		return nil
	}
	log.Warn().Uint16("service_id", id).Msg("consumer.Directory watched service deleted")
	if n := openItemStreams(d.streams); n > 0 {
		return &LogicalError{ServiceID: id, OpenStreams: n, Reason: "deleted while referenced"}
	}
	return nil
}

func (d *Directory) State() codec.State {
	e, ok := d.streams.Get(rdm.DirectoryStreamID)
	if !ok {
		return codec.State{}
	}
	return e.State
}

func (d *Directory) Close(w rdm.Writer) error {
	if !d.open {
		return nil
	}
	final := d.State().IsFinal()
	d.open = false
	d.cache.Reset()
	d.streams.Remove(rdm.DirectoryStreamID)
	if final {
		return nil
	}
	return rdm.Send(w, rdm.Close(rdm.DirectoryStreamID, codec.DomainSource))
}

// openItemStreams counts allocated streams that have not reached a final
// state. Every item stream is opened against the watched service.
func openItemStreams(streams *watchlist.WatchList) int {
	n := 0
	for _, e := range streams.Snapshot() {
		if e.Dynamic && !e.State.IsFinal() {
			n++
		}
	}
	return n
}
