// Package consumer implements the consumer side of the domain handshakes:
// login, source directory, dictionary download, symbol list and market
// price items. Each handler sends its request through an rdm.Writer and
// folds the provider's responses into state owned by one connection.
//
// Handlers share one watchlist.WatchList. Nothing here is safe for
// concurrent use; the polling loop that owns the transport session owns
// the Consumer too.
package consumer

import (
	"fmt"
	"time"

	"github.com/danmuck/rdmsession/internal/dictionary"
	"github.com/danmuck/rdmsession/internal/protocol/codec"
	"github.com/danmuck/rdmsession/internal/rdm"
	"github.com/danmuck/rdmsession/internal/watchlist"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
)

// Stage is how far the startup sequence got.
type Stage uint8

const (
	StageLogin Stage = iota
	StageDirectory
	StageDictionary
	StageItems
	StageReady
)

func (s Stage) String() string {
	switch s {
	case StageLogin:
		return "login"
	case StageDirectory:
		return "directory"
	case StageDictionary:
		return "dictionary"
	case StageItems:
		return "items"
	case StageReady:
		return "ready"
	default:
		return fmt.Sprintf("stage(%d)", uint8(s))
	}
}

type Config struct {
	Login       LoginConfig
	ServiceName string
	Items       []string
	SymbolList  string

	// DownloadDictionary requests both dictionaries from the provider.
	// Otherwise the built-in dictionary is used and that stage is skipped.
	DownloadDictionary bool
}

// Consumer owns the streams, caches and handlers of one connection.
type Consumer struct {
	cfg     Config
	streams *watchlist.WatchList
	cache   *ServiceCache
	dict    *dictionary.Dictionary

	login      *Login
	directory  *Directory
	dicts      *Dictionary
	symbolList *SymbolList
	items      *Items

	stage Stage
	sent  bool
}

func New(cfg Config) *Consumer {
	streams := watchlist.New()
	cache := NewServiceCache(cfg.ServiceName)
	dict := dictionary.New()
	if !cfg.DownloadDictionary {
		dict = dictionary.Builtin()
	}
	return &Consumer{
		cfg:        cfg,
		streams:    streams,
		cache:      cache,
		dict:       dict,
		login:      NewLogin(streams, cfg.Login),
		directory:  NewDirectory(streams, cache),
		dicts:      NewDictionary(streams, dict),
		symbolList: NewSymbolList(streams, cache),
		items:      NewItems(streams, cache),
	}
}

func (c *Consumer) Login() *Login                           { return c.login }
func (c *Consumer) Directory() *Directory                   { return c.directory }
func (c *Consumer) Dictionary() *Dictionary                 { return c.dicts }
func (c *Consumer) SymbolList() *SymbolList                 { return c.symbolList }
func (c *Consumer) Items() *Items                           { return c.items }
func (c *Consumer) Services() *ServiceCache                 { return c.cache }
func (c *Consumer) FieldDictionary() *dictionary.Dictionary { return c.dict }
func (c *Consumer) Stage() Stage                            { return c.stage }
func (c *Consumer) Streams() []watchlist.Entry              { return c.streams.Snapshot() }

// OnFrame decodes one message and hands it to the handler of its domain.
func (c *Consumer) OnFrame(w rdm.Writer, payload []byte) error {
	m, err := codec.Decode(payload)
	if err != nil {
		return &ProtocolError{Err: err}
	}
	switch m.Domain() {
	case codec.DomainLogin:
		return c.login.OnMessage(w, m)
	case codec.DomainSource:
		return c.directory.OnMessage(w, m)
	case codec.DomainDictionary:
		return c.dicts.OnMessage(w, m)
	case codec.DomainSymbolList:
		return c.symbolList.OnMessage(w, m)
	case codec.DomainMarketPrice:
		return c.items.OnMessage(w, m)
	default:
		return protocolError(m, ErrUnknownDomain)
	}
}

// Step sends the next startup request once the previous stage finished,
// and probes round-trip time once the sequence is done.
func (c *Consumer) Step(w rdm.Writer, now time.Time) error {
	for {
		switch c.stage {
		case StageLogin:
			if !c.sent {
				return c.send(c.login.SendRequest(w))
			}
			if st := c.login.State(); st.IsFinal() {
				return fmt.Errorf("%w: %s", ErrLoginClosed, st)
			}
			if !c.login.IsOpenOk() {
				return nil
			}
			c.advance(StageDirectory)
		case StageDirectory:
			if !c.sent {
				return c.send(c.directory.SendRequest(w))
			}
			if _, ok := c.cache.ID(); !ok {
				if st := c.directory.State(); st.IsFinal() {
					return fmt.Errorf("%w: directory %s", ErrStartupStreamClosed, st)
				}
				return nil
			}
			if c.cfg.DownloadDictionary {
				c.advance(StageDictionary)
			} else {
				c.advance(StageItems)
			}
		case StageDictionary:
			if !c.sent {
				id, _ := c.cache.ID()
				return c.send(c.dicts.SendRequest(w, id))
			}
			if name, st, closed := c.dicts.Closed(); closed {
				return fmt.Errorf("%w: %s %s", ErrStartupStreamClosed, name, st)
			}
			if !c.dicts.Complete() {
				return nil
			}
			c.advance(StageItems)
		case StageItems:
			var errs error
			for _, name := range c.cfg.Items {
				_, err := c.items.Request(w, name, false)
				errs = multierr.Append(errs, err)
			}
			if c.cfg.SymbolList != "" {
				errs = multierr.Append(errs, c.symbolList.SendRequest(w, c.cfg.SymbolList))
			}
			c.advance(StageReady)
			return errs
		default:
			_, err := c.login.ProbeRTT(w, now)
			return err
		}
	}
}

// send marks the stage request sent only once it was written, so a failed
// write is retried on the next Step.
func (c *Consumer) send(err error) error {
	c.sent = err == nil
	return err
}

func (c *Consumer) advance(next Stage) {
	log.Info().Stringer("from", c.stage).Stringer("to", next).Msg("consumer.Step")
	c.stage = next
	c.sent = false
}

// Reset forgets every stream and cache after the connection dropped. No
// close messages are sent.
func (c *Consumer) Reset() {
	c.streams.Clear()
	c.cache.Reset()
	if c.cfg.DownloadDictionary {
		c.dict.Clear()
	}
	c.login.reset()
	c.directory.open = false
	c.dicts.reset()
	c.symbolList.reset()
	c.items.reset()
	c.stage = StageLogin
	c.sent = false
}

// Close closes every open stream, items first and login last.
func (c *Consumer) Close(w rdm.Writer) error {
	var errs error
	for _, e := range c.streams.Snapshot() {
		if e.Domain == codec.DomainMarketPrice {
			errs = multierr.Append(errs, c.items.Close(w, e.StreamID))
		}
	}
	errs = multierr.Append(errs, c.symbolList.Close(w))
	if c.cfg.DownloadDictionary {
		errs = multierr.Append(errs, c.dicts.Close(w))
	}
	errs = multierr.Append(errs, c.directory.Close(w))
	errs = multierr.Append(errs, c.login.Close(w))
	return errs
}
