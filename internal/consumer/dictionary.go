package consumer

import (
	"fmt"

	"github.com/danmuck/rdmsession/internal/dictionary"
	"github.com/danmuck/rdmsession/internal/observability"
	"github.com/danmuck/rdmsession/internal/protocol/codec"
	"github.com/danmuck/rdmsession/internal/rdm"
	"github.com/danmuck/rdmsession/internal/watchlist"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
)

// transfer is the progress of one dictionary stream.
type transfer struct {
	streamID int32
	name     string
	typ      dictionary.Type
	open     bool
	parts    int
	sawInfo  bool
	sawFinal bool
}

func (t *transfer) complete() bool { return t.sawInfo && t.sawFinal }

func (t *transfer) restart() {
	t.parts = 0
	t.sawInfo = false
	t.sawFinal = false
}

// Dictionary downloads the field and enum dictionaries into dict over
// two fixed streams.
type Dictionary struct {
	streams   *watchlist.WatchList
	dict      *dictionary.Dictionary
	verbosity uint32
	field     transfer
	enum      transfer
}

func NewDictionary(streams *watchlist.WatchList, dict *dictionary.Dictionary) *Dictionary {
	return &Dictionary{
		streams:   streams,
		dict:      dict,
		verbosity: rdm.VerbosityNormal,
		field: transfer{
			streamID: rdm.FieldDictionaryStreamID,
			name:     dictionary.FieldDictionaryName,
			typ:      dictionary.TypeFieldDefinitions,
		},
		enum: transfer{
			streamID: rdm.EnumDictionaryStreamID,
			name:     dictionary.EnumDictionaryName,
			typ:      dictionary.TypeEnumTables,
		},
	}
}

// SendRequest opens both dictionary streams against serviceID.
func (d *Dictionary) SendRequest(w rdm.Writer, serviceID uint16) error {
	for _, t := range []*transfer{&d.field, &d.enum} {
		if err := d.streams.Track(t.streamID, codec.DomainDictionary, t.name, false); err != nil {
			return err
		}
		t.open = true
		t.restart()
		req := rdm.DictionaryRequest{
			StreamID:  t.streamID,
			ServiceID: serviceID,
			Name:      t.name,
			Verbosity: d.verbosity,
			Streaming: true,
		}
		if err := rdm.Send(w, req.Msg()); err != nil {
			return err
		}
		log.Debug().Str("name", t.name).Uint16("service_id", serviceID).Msg("consumer.Dictionary request")
	}
	return nil
}

func (d *Dictionary) transfer(id int32) *transfer {
	switch id {
	case d.field.streamID:
		return &d.field
	case d.enum.streamID:
		return &d.enum
	default:
		return nil
	}
}

func (d *Dictionary) OnMessage(_ rdm.Writer, m codec.Msg) error {
	t := d.transfer(m.StreamID())
	if t == nil || !t.open {
		return protocolError(m, ErrUnknownStream)
	}
	switch msg := m.(type) {
	case *codec.RefreshMsg:
		part, err := rdm.DecodeDictionaryRefresh(msg)
		if err != nil {
			return protocolError(m, err)
		}
		if err := d.applyPart(t, part); err != nil {
			return protocolError(m, err)
		}
		d.streams.SetState(t.streamID, part.State)
		return nil
	case *codec.StatusMsg:
		if msg.State != nil {
			d.streams.SetState(t.streamID, *msg.State)
			if msg.State.IsFinal() && !t.complete() {
				log.Warn().Str("name", t.name).Stringer("state", *msg.State).Msg("consumer.Dictionary closed before complete")
			}
		}
		return nil
	default:
		return unexpected(m)
	}
}

func (d *Dictionary) applyPart(t *transfer, part rdm.DictionaryRefresh) error {
	if part.Type != 0 && part.Type != t.typ {
		return fmt.Errorf("dictionary %s carried %s entries", t.name, part.Type)
	}
	if part.ClearCache {
		t.restart()
		switch t.typ {
		case dictionary.TypeEnumTables:
			d.dict.ClearEnums()
		default:
			d.dict.ClearFields()
		}
	}
	if part.HasInfo {
		t.sawInfo = true
		d.dict.Info.DictionaryID = part.DictionaryID
		switch t.typ {
		case dictionary.TypeEnumTables:
			d.dict.Info.EnumVersion = part.Version
		default:
			d.dict.Info.FieldVersion = part.Version
		}
	}
	for _, def := range part.Fields {
		if err := d.dict.AddField(def); err != nil {
			return err
		}
	}
	for _, table := range part.Enums {
		d.dict.AddEnumTable(table)
	}
	t.parts++
	if part.Complete {
		t.sawFinal = true
	}
	observability.RecordDictionaryPart(t.name, observability.DirectionIn)
	log.Debug().
		Str("name", t.name).
		Int("part", t.parts).
		Int("fields", len(part.Fields)).
		Int("enums", len(part.Enums)).
		Bool("complete", t.complete()).
		Msg("consumer.Dictionary part")
	return nil
}

// IsComplete reports whether the transfer of typ has seen both its info
// part and a part flagged complete.
func (d *Dictionary) IsComplete(typ dictionary.Type) bool {
	switch typ {
	case dictionary.TypeFieldDefinitions:
		return d.field.complete()
	case dictionary.TypeEnumTables:
		return d.enum.complete()
	default:
		return false
	}
}

func (d *Dictionary) Complete() bool { return d.field.complete() && d.enum.complete() }

// Closed returns the final state of the first open transfer the provider
// closed before it completed.
func (d *Dictionary) Closed() (string, codec.State, bool) {
	for _, t := range []*transfer{&d.field, &d.enum} {
		if !t.open || t.complete() {
			continue
		}
		if e, ok := d.streams.Get(t.streamID); ok && e.State.IsFinal() {
			return t.name, e.State, true
		}
	}
	return "", codec.State{}, false
}

func (d *Dictionary) Dictionary() *dictionary.Dictionary { return d.dict }

// Close closes both dictionary streams and clears the downloaded content.
func (d *Dictionary) Close(w rdm.Writer) error {
	var errs error
	for _, t := range []*transfer{&d.field, &d.enum} {
		if !t.open {
			continue
		}
		e, _ := d.streams.Get(t.streamID)
		t.open = false
		t.restart()
		d.streams.Remove(t.streamID)
		if e.State.IsFinal() {
			continue
		}
		errs = multierr.Append(errs, rdm.Send(w, rdm.Close(t.streamID, codec.DomainDictionary)))
	}
	d.dict.Clear()
	return errs
}

func (d *Dictionary) reset() {
	d.field.open, d.enum.open = false, false
	d.field.restart()
	d.enum.restart()
}
