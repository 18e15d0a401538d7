// Package provider answers consumer requests on one accepted connection:
// login, source directory, dictionary transfers, symbol lists and market
// price items. Requests it cannot serve are rejected with a status whose
// state is chosen by Reject.
package provider

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/danmuck/rdmsession/internal/auth"
	"github.com/danmuck/rdmsession/internal/dictionary"
	"github.com/danmuck/rdmsession/internal/observability"
	"github.com/danmuck/rdmsession/internal/protocol/codec"
	"github.com/danmuck/rdmsession/internal/rdm"
	"github.com/danmuck/rdmsession/internal/watchlist"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
)

var ErrUnexpectedMessage = errors.New("provider: unexpected message")

const (
	DefaultMaxLoginStreams       = 1
	DefaultMaxDictionaryRequests = 2
	DefaultMaxItems              = 100
)

// Config describes the single service a provider publishes.
type Config struct {
	ServiceID    uint16
	ServiceName  string
	Vendor       string
	Capabilities []codec.DomainType
	QoS          rdm.QoS

	MaxLoginStreams       int
	MaxDictionaryRequests int
	MaxItems              int

	// PartBytes bounds the entries of one dictionary refresh part.
	PartBytes int

	SupportRTT bool
	Validator  auth.Validator

	// Dictionary is served to consumers; nil serves dictionary.Builtin.
	Dictionary *dictionary.Dictionary

	// Items are the market price images by item name.
	Items map[string][]rdm.MarketField

	// SymbolLists are the symbol lists by list name.
	SymbolLists map[string][]string
}

func (c Config) withDefaults() Config {
	if c.MaxLoginStreams <= 0 {
		c.MaxLoginStreams = DefaultMaxLoginStreams
	}
	if c.MaxDictionaryRequests <= 0 {
		c.MaxDictionaryRequests = DefaultMaxDictionaryRequests
	}
	if c.MaxItems <= 0 {
		c.MaxItems = DefaultMaxItems
	}
	if c.PartBytes <= 0 {
		c.PartBytes = rdm.DefaultPartBytes
	}
	if c.Validator == nil {
		c.Validator = auth.AllowAll{}
	}
	if c.Dictionary == nil {
		c.Dictionary = dictionary.Builtin()
	}
	if len(c.Capabilities) == 0 {
		c.Capabilities = []codec.DomainType{codec.DomainDictionary, codec.DomainMarketPrice}
		if len(c.SymbolLists) > 0 {
			c.Capabilities = append(c.Capabilities, codec.DomainSymbolList)
		}
	}
	return c
}

type stream struct {
	domain codec.DomainType
	name   string
	state  codec.State
}

// dictTransfer is a dictionary being sent one part per Pump.
type dictTransfer struct {
	streamID  int32
	name      string
	typ       dictionary.Type
	cursor    dictionary.Cursor
	solicited bool
}

// Provider is not safe for concurrent use.
type Provider struct {
	cfg       Config
	user      string
	loginRTT  bool
	streams   map[int32]*stream
	transfers []*dictTransfer

	lastProbe  time.Time
	probeTicks uint64
}

func New(cfg Config) *Provider {
	return &Provider{cfg: cfg.withDefaults(), streams: make(map[int32]*stream)}
}

// OnFrame decodes one consumer message and answers it.
func (p *Provider) OnFrame(w rdm.Writer, payload []byte) error {
	m, err := codec.Decode(payload)
	if err != nil {
		return fmt.Errorf("provider: decode: %w", err)
	}
	switch msg := m.(type) {
	case *codec.RequestMsg:
		return p.onRequest(w, msg)
	case *codec.CloseMsg:
		p.onClose(msg)
		return nil
	case *codec.GenericMsg:
		return p.onGeneric(w, msg)
	default:
		return fmt.Errorf("%w: %s on stream %d", ErrUnexpectedMessage, m.Class(), m.StreamID())
	}
}

func (p *Provider) onRequest(w rdm.Writer, m *codec.RequestMsg) error {
	if m.Domain() == codec.DomainLogin {
		return p.onLogin(w, m)
	}
	if !p.loggedIn() {
		return CloseStream(w, m.ID, m.Domain(), "login required")
	}
	switch m.Domain() {
	case codec.DomainSource:
		return p.onDirectory(w, m)
	case codec.DomainDictionary:
		return p.onDictionary(w, m)
	case codec.DomainMarketPrice:
		return p.onItem(w, m)
	case codec.DomainSymbolList:
		return p.onSymbolList(w, m)
	default:
		return Reject(w, m.ID, m.Domain(), ItemDomainNotSupported)
	}
}

func (p *Provider) loggedIn() bool { return p.user != "" }

func (p *Provider) countOpen(domain codec.DomainType) int {
	n := 0
	for _, s := range p.streams {
		if s.domain == domain {
			n++
		}
	}
	return n
}

func (p *Provider) onLogin(w rdm.Writer, m *codec.RequestMsg) error {
	req, err := rdm.DecodeLoginRequest(m)
	if err != nil {
		log.Warn().Err(err).Int32("stream", m.ID).Msg("provider.Login decode")
		return Reject(w, m.ID, codec.DomainLogin, LoginDecodeFailed)
	}
	existing, reissue := p.streams[m.ID]
	if reissue && existing.domain != codec.DomainLogin {
		return Reject(w, m.ID, codec.DomainLogin, LoginDecodeFailed)
	}
	if !reissue && p.countOpen(codec.DomainLogin) >= p.cfg.MaxLoginStreams {
		return Reject(w, m.ID, codec.DomainLogin, LoginMaxRequestsReached)
	}
	id := auth.Identity{UserName: req.UserName, ApplicationID: req.ApplicationID, Position: req.Position}
	if err := p.cfg.Validator.Validate(id); err != nil {
		log.Warn().Err(err).Str("user", req.UserName).Msg("provider.Login refused")
		return Reject(w, m.ID, codec.DomainLogin, LoginNotAuthorized)
	}
	refresh := rdm.LoginRefresh{
		StreamID:        m.ID,
		State:           codec.State{Stream: codec.StreamOpen, Data: codec.DataOk, Text: "Login accepted"},
		Solicited:       true,
		UserName:        req.UserName,
		ApplicationID:   req.ApplicationID,
		ApplicationName: req.ApplicationName,
		Position:        req.Position,
		Features: rdm.LoginFeatures{
			SupportBatchRequests: true,
			SupportSingleOpen:    true,
			SupportRTT:           p.cfg.SupportRTT && req.SupportRTT,
		},
	}
	if err := rdm.Send(w, refresh.Msg()); err != nil {
		return err
	}
	p.streams[m.ID] = &stream{domain: codec.DomainLogin, name: req.UserName, state: refresh.State}
	p.user = req.UserName
	p.loginRTT = refresh.Features.SupportRTT
	log.Info().Str("user", req.UserName).Int32("stream", m.ID).Bool("rtt", p.loginRTT).Msg("provider.Login accepted")
	return nil
}

func (p *Provider) service(filter rdm.Filter) rdm.Service {
	s := rdm.Service{ID: p.cfg.ServiceID, Action: rdm.ServiceActionAdd}
	if filter&rdm.FilterInfo != 0 {
		s.HasInfo = true
		s.Info = rdm.ServiceInfo{
			Name:                 p.cfg.ServiceName,
			Vendor:               p.cfg.Vendor,
			Capabilities:         p.cfg.Capabilities,
			DictionariesProvided: []string{dictionary.FieldDictionaryName, dictionary.EnumDictionaryName},
			DictionariesUsed:     []string{dictionary.FieldDictionaryName, dictionary.EnumDictionaryName},
			QoS:                  []rdm.QoS{p.cfg.QoS},
		}
	}
	if filter&rdm.FilterState != 0 {
		s.HasState = true
		s.State = rdm.ServiceState{ServiceState: rdm.ServiceUp, AcceptingRequests: true}
	}
	return s
}

func (p *Provider) onDirectory(w rdm.Writer, m *codec.RequestMsg) error {
	req, err := rdm.DecodeDirectoryRequest(m)
	if err != nil {
		return CloseStream(w, m.ID, codec.DomainSource, err.Error())
	}
	var services []rdm.Service
	if !req.HasServiceID || req.ServiceID == p.cfg.ServiceID {
		services = append(services, p.service(req.Filter))
	}
	state := codec.State{Stream: codec.StreamOpen, Data: codec.DataOk}
	if !req.Streaming {
		state.Stream = codec.StreamNonStreaming
	}
	refresh := rdm.DirectoryRefresh{
		StreamID:   m.ID,
		State:      state,
		Solicited:  true,
		ClearCache: true,
		Filter:     req.Filter,
		Services:   services,
	}
	if err := rdm.Send(w, refresh.Msg()); err != nil {
		return err
	}
	if req.Streaming {
		p.streams[m.ID] = &stream{domain: codec.DomainSource, state: state}
	}
	return nil
}

func (p *Provider) onDictionary(w rdm.Writer, m *codec.RequestMsg) error {
	req, err := rdm.DecodeDictionaryRequest(m)
	if err != nil {
		return Reject(w, m.ID, codec.DomainDictionary, DictionaryDecodeFailed)
	}
	typ, err := dictionary.TypeForName(req.Name)
	if err != nil {
		return Reject(w, m.ID, codec.DomainDictionary, DictionaryUnknownName)
	}
	p.dropTransfer(m.ID)
	if len(p.transfers) >= p.cfg.MaxDictionaryRequests {
		return Reject(w, m.ID, codec.DomainDictionary, DictionaryMaxRequestsReached)
	}
	p.streams[m.ID] = &stream{
		domain: codec.DomainDictionary,
		name:   req.Name,
		state:  codec.State{Stream: codec.StreamOpen, Data: codec.DataOk},
	}
	t := &dictTransfer{streamID: m.ID, name: req.Name, typ: typ, solicited: true}
	p.transfers = append(p.transfers, t)
	log.Debug().Str("name", req.Name).Int32("stream", m.ID).Msg("provider.Dictionary transfer started")
	_, err = p.sendPart(w, t)
	return err
}

// sendPart writes the next part of t and reports whether it was the last.
func (p *Provider) sendPart(w rdm.Writer, t *dictTransfer) (bool, error) {
	part := rdm.NextDictionaryPart(p.cfg.Dictionary, t.typ, &t.cursor, rdm.DictionaryPart{
		StreamID:  t.streamID,
		ServiceID: p.cfg.ServiceID,
		Name:      t.name,
		Solicited: t.solicited,
		Budget:    p.cfg.PartBytes,
	})
	if err := rdm.Send(w, part.Msg()); err != nil {
		return false, err
	}
	observability.RecordDictionaryPart(t.name, observability.DirectionOut)
	if part.Complete {
		p.dropTransfer(t.streamID)
		log.Debug().Str("name", t.name).Int("parts", t.cursor.Parts()).Msg("provider.Dictionary transfer complete")
	}
	return part.Complete, nil
}

// Pump sends one more part of every dictionary transfer still in flight.
func (p *Provider) Pump(w rdm.Writer) error {
	var errs error
	for _, t := range append([]*dictTransfer(nil), p.transfers...) {
		_, err := p.sendPart(w, t)
		errs = multierr.Append(errs, err)
	}
	return errs
}

// Pending reports how many dictionary transfers are in flight.
func (p *Provider) Pending() int { return len(p.transfers) }

func (p *Provider) dropTransfer(id int32) {
	for i, t := range p.transfers {
		if t.streamID == id {
			p.transfers = append(p.transfers[:i], p.transfers[i+1:]...)
			return
		}
	}
}

func (p *Provider) onItem(w rdm.Writer, m *codec.RequestMsg) error {
	req, err := rdm.DecodeItemRequest(m)
	if err != nil {
		return Reject(w, m.ID, m.Domain(), ItemDecodeFailed)
	}
	if req.ServiceID != p.cfg.ServiceID {
		return Reject(w, m.ID, m.Domain(), ItemInvalidServiceID)
	}
	existing, reissue := p.streams[m.ID]
	if reissue && (existing.domain != m.Domain() || existing.name != req.Name) {
		return Reject(w, m.ID, m.Domain(), ItemAlreadyOpen)
	}
	if !reissue && p.countOpen(codec.DomainMarketPrice) >= p.cfg.MaxItems {
		return Reject(w, m.ID, m.Domain(), ItemCountReached)
	}
	fields, ok := p.cfg.Items[req.Name]
	if !ok {
		return Reject(w, m.ID, m.Domain(), ItemUnknownName)
	}
	state := codec.State{Stream: codec.StreamOpen, Data: codec.DataOk}
	if !req.Streaming {
		state.Stream = codec.StreamNonStreaming
	}
	refresh := rdm.MarketPriceRefresh{
		StreamID:  m.ID,
		State:     state,
		Solicited: true,
		Private:   req.Private,
		ServiceID: p.cfg.ServiceID,
		Name:      req.Name,
		Fields:    fields,
	}
	if err := rdm.Send(w, refresh.Msg()); err != nil {
		return err
	}
	if req.Streaming {
		p.streams[m.ID] = &stream{domain: codec.DomainMarketPrice, name: req.Name, state: state}
	}
	return nil
}

func (p *Provider) onSymbolList(w rdm.Writer, m *codec.RequestMsg) error {
	req, err := rdm.DecodeSymbolListRequest(m)
	if err != nil {
		return Reject(w, m.ID, codec.DomainSymbolList, ItemDecodeFailed)
	}
	symbols, ok := p.cfg.SymbolLists[req.Name]
	if !ok {
		return Reject(w, m.ID, codec.DomainSymbolList, ItemUnknownName)
	}
	entries := make([]rdm.SymbolEntry, 0, len(symbols))
	for _, s := range symbols {
		entries = append(entries, rdm.SymbolEntry{Symbol: s, Action: rdm.SymbolAdd})
	}
	state := codec.State{Stream: codec.StreamOpen, Data: codec.DataOk}
	refresh := rdm.SymbolListRefresh{
		StreamID:   m.ID,
		State:      state,
		Solicited:  true,
		Complete:   true,
		ClearCache: true,
		Name:       req.Name,
		Entries:    entries,
	}
	if err := rdm.Send(w, refresh.Msg()); err != nil {
		return err
	}
	p.streams[m.ID] = &stream{domain: codec.DomainSymbolList, name: req.Name, state: state}
	return nil
}

func (p *Provider) onClose(m *codec.CloseMsg) {
	s, ok := p.streams[m.ID]
	if !ok {
		log.Debug().Int32("stream", m.ID).Msg("provider.Close unknown stream")
		return
	}
	delete(p.streams, m.ID)
	p.dropTransfer(m.ID)
	if s.domain == codec.DomainLogin {
		p.Reset()
	}
	log.Debug().Int32("stream", m.ID).Stringer("domain", s.domain).Msg("provider.Close")
}

func (p *Provider) onGeneric(w rdm.Writer, m *codec.GenericMsg) error {
	if m.Domain() != codec.DomainLogin {
		return fmt.Errorf("%w: generic on %s", ErrUnexpectedMessage, m.Domain())
	}
	rtt, err := rdm.DecodeLoginRTT(m)
	if err != nil {
		return err
	}
	if !rtt.Echo {
		rtt.Echo = true
		return rdm.Send(w, rtt.Msg())
	}
	if rtt.Ticks == p.probeTicks && p.probeTicks != 0 {
		observability.ObserveRTT(time.Since(time.Unix(0, int64(rtt.Ticks))))
	}
	return nil
}

// ProbeRTT sends a round-trip probe on the login stream at most once per
// interval when the consumer negotiated RTT.
func (p *Provider) ProbeRTT(w rdm.Writer, now time.Time, interval time.Duration) (bool, error) {
	if !p.loginRTT {
		return false, nil
	}
	if !p.lastProbe.IsZero() && now.Sub(p.lastProbe) < interval {
		return false, nil
	}
	var loginID int32
	for id, s := range p.streams {
		if s.domain == codec.DomainLogin {
			loginID = id
		}
	}
	p.lastProbe = now
	p.probeTicks = uint64(now.UnixNano())
	probe := rdm.LoginRTT{StreamID: loginID, Ticks: p.probeTicks}
	return true, rdm.Send(w, probe.Msg())
}

// Publish sends an update to every open stream of item name.
func (p *Provider) Publish(w rdm.Writer, name string, fields []rdm.MarketField) error {
	var errs error
	for _, id := range p.openIDs() {
		s := p.streams[id]
		if s.domain != codec.DomainMarketPrice || s.name != name {
			continue
		}
		errs = multierr.Append(errs, rdm.Send(w, rdm.MarketPriceUpdate{StreamID: id, Fields: fields}.Msg()))
	}
	return errs
}

func (p *Provider) openIDs() []int32 {
	ids := make([]int32, 0, len(p.streams))
	for id := range p.streams {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Streams lists the open streams ordered by id.
func (p *Provider) Streams() []watchlist.Entry {
	out := make([]watchlist.Entry, 0, len(p.streams))
	for _, id := range p.openIDs() {
		s := p.streams[id]
		out = append(out, watchlist.Entry{StreamID: id, Domain: s.domain, Name: s.name, State: s.state})
	}
	return out
}

func (p *Provider) User() string { return p.user }

// Reset forgets the login and every stream.
func (p *Provider) Reset() {
	p.user = ""
	p.loginRTT = false
	p.streams = make(map[int32]*stream)
	p.transfers = nil
	p.lastProbe = time.Time{}
	p.probeTicks = 0
}
