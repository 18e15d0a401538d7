package rdm

import (
	"fmt"

	"github.com/danmuck/rdmsession/internal/protocol/codec"
	"github.com/danmuck/rdmsession/internal/protocol/schema"
	"github.com/danmuck/rdmsession/internal/protocol/tlv"
)

// SymbolAction shares the map action values of ServiceAction.
type SymbolAction uint8

const (
	SymbolUpdate SymbolAction = 1
	SymbolAdd    SymbolAction = 2
	SymbolDelete SymbolAction = 3
)

func (a SymbolAction) String() string {
	switch a {
	case SymbolUpdate:
		return "Update"
	case SymbolAdd:
		return "Add"
	case SymbolDelete:
		return "Delete"
	default:
		return fmt.Sprintf("SymbolAction(%d)", uint8(a))
	}
}

type SymbolEntry struct {
	Symbol string
	Action SymbolAction
}

type SymbolListRequest struct {
	StreamID  int32
	ServiceID uint16
	Name      string
	Streaming bool
}

func (r SymbolListRequest) Msg() *codec.RequestMsg {
	return &codec.RequestMsg{
		Base: codec.Base{ID: r.StreamID, DomainType: codec.DomainSymbolList},
		Key: codec.Key{
			Name:         r.Name,
			HasServiceID: true,
			ServiceID:    r.ServiceID,
		},
		Streaming: r.Streaming,
	}
}

func DecodeSymbolListRequest(m *codec.RequestMsg) (SymbolListRequest, error) {
	if err := checkDomain(m, codec.DomainSymbolList); err != nil {
		return SymbolListRequest{}, err
	}
	if m.Key.Name == "" {
		return SymbolListRequest{}, MissingFieldError{Domain: codec.DomainSymbolList, Field: "name"}
	}
	return SymbolListRequest{
		StreamID:  m.ID,
		ServiceID: m.Key.ServiceID,
		Name:      m.Key.Name,
		Streaming: m.Streaming,
	}, nil
}

type SymbolListRefresh struct {
	StreamID   int32
	State      codec.State
	Solicited  bool
	Complete   bool
	ClearCache bool
	Name       string
	Entries    []SymbolEntry
}

func (r SymbolListRefresh) Msg() *codec.RefreshMsg {
	key := codec.Key{Name: r.Name}
	return &codec.RefreshMsg{
		Base:       codec.Base{ID: r.StreamID, DomainType: codec.DomainSymbolList},
		State:      r.State,
		Key:        &key,
		Solicited:  r.Solicited,
		Complete:   r.Complete,
		ClearCache: r.ClearCache,
		Payload:    encodeSymbols(r.Entries),
	}
}

func DecodeSymbolListRefresh(m *codec.RefreshMsg) (SymbolListRefresh, error) {
	if err := checkDomain(m, codec.DomainSymbolList); err != nil {
		return SymbolListRefresh{}, err
	}
	entries, err := decodeSymbols(m.Payload)
	if err != nil {
		return SymbolListRefresh{}, err
	}
	out := SymbolListRefresh{
		StreamID:   m.ID,
		State:      m.State,
		Solicited:  m.Solicited,
		Complete:   m.Complete,
		ClearCache: m.ClearCache,
		Entries:    entries,
	}
	if m.Key != nil {
		out.Name = m.Key.Name
	}
	return out, nil
}

type SymbolListUpdate struct {
	StreamID int32
	Entries  []SymbolEntry
}

func (u SymbolListUpdate) Msg() *codec.UpdateMsg {
	return &codec.UpdateMsg{
		Base:    codec.Base{ID: u.StreamID, DomainType: codec.DomainSymbolList},
		Payload: encodeSymbols(u.Entries),
	}
}

func DecodeSymbolListUpdate(m *codec.UpdateMsg) (SymbolListUpdate, error) {
	if err := checkDomain(m, codec.DomainSymbolList); err != nil {
		return SymbolListUpdate{}, err
	}
	entries, err := decodeSymbols(m.Payload)
	if err != nil {
		return SymbolListUpdate{}, err
	}
	return SymbolListUpdate{StreamID: m.ID, Entries: entries}, nil
}

func encodeSymbols(entries []SymbolEntry) []tlv.Field {
	out := make([]tlv.Field, 0, len(entries))
	for _, e := range entries {
		out = append(out, tlv.Group(schema.FieldSymbolEntry, []tlv.Field{
			tlv.String(schema.FieldSymbol, e.Symbol),
			tlv.U8(schema.FieldSymbolAction, uint8(e.Action)),
		}))
	}
	return out
}

func decodeSymbols(payload []tlv.Field) ([]SymbolEntry, error) {
	groups := tlv.All(payload, schema.FieldSymbolEntry)
	out := make([]SymbolEntry, 0, len(groups))
	for _, g := range groups {
		inner, err := g.AsGroup()
		if err != nil {
			return nil, err
		}
		if err := schema.Validate(schema.MsgSymbolEntry, inner); err != nil {
			return nil, err
		}
		out = append(out, SymbolEntry{
			Symbol: stringField(inner, schema.FieldSymbol),
			Action: SymbolAction(u8Field(inner, schema.FieldSymbolAction)),
		})
	}
	return out, nil
}
