package rdm

import (
	"github.com/danmuck/rdmsession/internal/dictionary"
	"github.com/danmuck/rdmsession/internal/protocol/codec"
	"github.com/danmuck/rdmsession/internal/protocol/schema"
	"github.com/danmuck/rdmsession/internal/protocol/tlv"
)

// Dictionary verbosity filters.
const (
	VerbosityInfo    uint32 = 0x00
	VerbosityMinimal uint32 = 0x03
	VerbosityNormal  uint32 = 0x07
	VerbosityVerbose uint32 = 0x0F
)

// DefaultPartBytes bounds the entry bytes of one dictionary refresh part.
const DefaultPartBytes = 4096

type DictionaryRequest struct {
	StreamID  int32
	ServiceID uint16
	Name      string
	Verbosity uint32
	Streaming bool
}

func (r DictionaryRequest) Msg() *codec.RequestMsg {
	return &codec.RequestMsg{
		Base: codec.Base{ID: r.StreamID, DomainType: codec.DomainDictionary},
		Key: codec.Key{
			Name:         r.Name,
			HasServiceID: true,
			ServiceID:    r.ServiceID,
			HasFilter:    true,
			Filter:       r.Verbosity,
		},
		Streaming: r.Streaming,
	}
}

func DecodeDictionaryRequest(m *codec.RequestMsg) (DictionaryRequest, error) {
	if err := checkDomain(m, codec.DomainDictionary); err != nil {
		return DictionaryRequest{}, err
	}
	if m.Key.Name == "" {
		return DictionaryRequest{}, MissingFieldError{Domain: codec.DomainDictionary, Field: "name"}
	}
	return DictionaryRequest{
		StreamID:  m.ID,
		ServiceID: m.Key.ServiceID,
		Name:      m.Key.Name,
		Verbosity: m.Key.Filter,
		Streaming: m.Streaming,
	}, nil
}

// DictionaryRefresh is one part of a dictionary transfer. The first part
// sets ClearCache and carries the info block (HasInfo); the last part
// sets Complete.
type DictionaryRefresh struct {
	StreamID     int32
	State        codec.State
	Solicited    bool
	ClearCache   bool
	Complete     bool
	ServiceID    uint16
	Name         string
	HasInfo      bool
	Type         dictionary.Type
	DictionaryID int32
	Version      string
	Fields       []dictionary.FieldDef
	Enums        []dictionary.EnumTable
}

func (r DictionaryRefresh) Msg() *codec.RefreshMsg {
	var payload []tlv.Field
	if r.HasInfo {
		payload = append(payload,
			tlv.U8(schema.FieldDictionaryType, uint8(r.Type)),
			tlv.I32(schema.FieldDictionaryID, r.DictionaryID),
			tlv.String(schema.FieldDictionaryVersion, r.Version),
		)
	}
	for _, def := range r.Fields {
		payload = append(payload, dictionary.EncodeFieldDef(def))
	}
	for _, table := range r.Enums {
		payload = append(payload, dictionary.EncodeEnumTable(table))
	}
	key := codec.Key{Name: r.Name, HasServiceID: true, ServiceID: r.ServiceID}
	return &codec.RefreshMsg{
		Base:       codec.Base{ID: r.StreamID, DomainType: codec.DomainDictionary},
		State:      r.State,
		Key:        &key,
		Solicited:  r.Solicited,
		Complete:   r.Complete,
		ClearCache: r.ClearCache,
		Payload:    payload,
	}
}

func DecodeDictionaryRefresh(m *codec.RefreshMsg) (DictionaryRefresh, error) {
	if err := checkDomain(m, codec.DomainDictionary); err != nil {
		return DictionaryRefresh{}, err
	}
	out := DictionaryRefresh{
		StreamID:   m.ID,
		State:      m.State,
		Solicited:  m.Solicited,
		ClearCache: m.ClearCache,
		Complete:   m.Complete,
	}
	if m.Key != nil {
		out.Name = m.Key.Name
		out.ServiceID = m.Key.ServiceID
	}
	if _, ok := tlv.GetField(m.Payload, schema.FieldDictionaryType); ok {
		if err := schema.Validate(schema.MsgDictionaryInfo, m.Payload); err != nil {
			return DictionaryRefresh{}, err
		}
		out.HasInfo = true
		out.Type = dictionary.Type(u8Field(m.Payload, schema.FieldDictionaryType))
		id, _ := tlv.GetField(m.Payload, schema.FieldDictionaryID)
		out.DictionaryID, _ = id.AsI32()
		out.Version = stringField(m.Payload, schema.FieldDictionaryVersion)
	} else if typ, err := dictionary.TypeForName(out.Name); err == nil {
		out.Type = typ
	}
	for _, f := range tlv.All(m.Payload, schema.FieldFieldDef) {
		def, err := dictionary.DecodeFieldDef(f)
		if err != nil {
			return DictionaryRefresh{}, err
		}
		out.Fields = append(out.Fields, def)
	}
	for _, f := range tlv.All(m.Payload, schema.FieldEnumTable) {
		table, err := dictionary.DecodeEnumTable(f)
		if err != nil {
			return DictionaryRefresh{}, err
		}
		out.Enums = append(out.Enums, table)
	}
	return out, nil
}

// DictionaryPart addresses the parts NextDictionaryPart produces.
type DictionaryPart struct {
	StreamID  int32
	ServiceID uint16
	Name      string
	Solicited bool

	// Budget is the entry byte budget of one part; zero means DefaultPartBytes.
	Budget int
}

// NextDictionaryPart encodes the next part of d starting at c. Callers
// send the result and call again until the returned refresh is Complete.
func NextDictionaryPart(d *dictionary.Dictionary, typ dictionary.Type, c *dictionary.Cursor, p DictionaryPart) DictionaryRefresh {
	budget := p.Budget
	if budget <= 0 {
		budget = DefaultPartBytes
	}
	out := DictionaryRefresh{
		StreamID:  p.StreamID,
		State:     codec.State{Stream: codec.StreamOpen, Data: codec.DataOk},
		Solicited: p.Solicited,
		ServiceID: p.ServiceID,
		Name:      p.Name,
		Type:      typ,
	}
	if c.First() {
		out.ClearCache = true
		out.HasInfo = true
		out.DictionaryID = d.Info.DictionaryID
		out.Version = d.Info.FieldVersion
		if typ == dictionary.TypeEnumTables {
			out.Version = d.Info.EnumVersion
		}
	}
	var remaining int
	switch typ {
	case dictionary.TypeEnumTables:
		out.Enums, remaining = d.EnumPart(c, budget)
	default:
		out.Fields, remaining = d.FieldPart(c, budget)
	}
	out.Complete = remaining == 0
	return out
}
