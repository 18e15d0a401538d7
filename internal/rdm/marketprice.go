package rdm

import (
	"github.com/danmuck/rdmsession/internal/protocol/codec"
	"github.com/danmuck/rdmsession/internal/protocol/schema"
	"github.com/danmuck/rdmsession/internal/protocol/tlv"
)

// MarketField is one field entry of a market price payload. Values stay
// in their display form; typed field decoding is out of scope here.
type MarketField struct {
	FID   int16
	Value string
}

// ItemRequest opens a market price (or other item domain) stream.
type ItemRequest struct {
	StreamID  int32
	Domain    codec.DomainType
	ServiceID uint16
	Name      string
	Streaming bool
	Private   bool
}

func (r ItemRequest) Msg() *codec.RequestMsg {
	domain := r.Domain
	if domain == 0 {
		domain = codec.DomainMarketPrice
	}
	return &codec.RequestMsg{
		Base: codec.Base{ID: r.StreamID, DomainType: domain},
		Key: codec.Key{
			Name:         r.Name,
			HasServiceID: true,
			ServiceID:    r.ServiceID,
		},
		Streaming: r.Streaming,
		Private:   r.Private,
	}
}

func DecodeItemRequest(m *codec.RequestMsg) (ItemRequest, error) {
	if m.Key.Name == "" {
		return ItemRequest{}, MissingFieldError{Domain: m.Domain(), Field: "name"}
	}
	return ItemRequest{
		StreamID:  m.ID,
		Domain:    m.Domain(),
		ServiceID: m.Key.ServiceID,
		Name:      m.Key.Name,
		Streaming: m.Streaming,
		Private:   m.Private,
	}, nil
}

type MarketPriceRefresh struct {
	StreamID  int32
	State     codec.State
	Solicited bool
	Private   bool
	ServiceID uint16
	Name      string
	Fields    []MarketField
}

func (r MarketPriceRefresh) Msg() *codec.RefreshMsg {
	key := codec.Key{Name: r.Name, HasServiceID: true, ServiceID: r.ServiceID}
	return &codec.RefreshMsg{
		Base:       codec.Base{ID: r.StreamID, DomainType: codec.DomainMarketPrice},
		State:      r.State,
		Key:        &key,
		Solicited:  r.Solicited,
		Complete:   true,
		ClearCache: true,
		Private:    r.Private,
		Payload:    EncodeMarketFields(r.Fields),
	}
}

func DecodeMarketPriceRefresh(m *codec.RefreshMsg) (MarketPriceRefresh, error) {
	if err := checkDomain(m, codec.DomainMarketPrice); err != nil {
		return MarketPriceRefresh{}, err
	}
	fields, err := DecodeMarketFields(m.Payload)
	if err != nil {
		return MarketPriceRefresh{}, err
	}
	out := MarketPriceRefresh{
		StreamID:  m.ID,
		State:     m.State,
		Solicited: m.Solicited,
		Private:   m.Private,
		Fields:    fields,
	}
	if m.Key != nil {
		out.Name = m.Key.Name
		out.ServiceID = m.Key.ServiceID
	}
	return out, nil
}

type MarketPriceUpdate struct {
	StreamID int32
	Fields   []MarketField
}

func (u MarketPriceUpdate) Msg() *codec.UpdateMsg {
	return &codec.UpdateMsg{
		Base:    codec.Base{ID: u.StreamID, DomainType: codec.DomainMarketPrice},
		Payload: EncodeMarketFields(u.Fields),
	}
}

func DecodeMarketPriceUpdate(m *codec.UpdateMsg) (MarketPriceUpdate, error) {
	if err := checkDomain(m, codec.DomainMarketPrice); err != nil {
		return MarketPriceUpdate{}, err
	}
	fields, err := DecodeMarketFields(m.Payload)
	if err != nil {
		return MarketPriceUpdate{}, err
	}
	return MarketPriceUpdate{StreamID: m.ID, Fields: fields}, nil
}

func EncodeMarketFields(fields []MarketField) []tlv.Field {
	out := make([]tlv.Field, 0, len(fields))
	for _, f := range fields {
		out = append(out, tlv.Group(schema.FieldMarketField, []tlv.Field{
			tlv.I32(schema.FieldFID, int32(f.FID)),
			tlv.String(schema.FieldFieldValue, f.Value),
		}))
	}
	return out
}

func DecodeMarketFields(payload []tlv.Field) ([]MarketField, error) {
	groups := tlv.All(payload, schema.FieldMarketField)
	out := make([]MarketField, 0, len(groups))
	for _, g := range groups {
		inner, err := g.AsGroup()
		if err != nil {
			return nil, err
		}
		if err := schema.Validate(schema.MsgMarketField, inner); err != nil {
			return nil, err
		}
		fid, _ := tlv.GetField(inner, schema.FieldFID)
		v, _ := fid.AsI32()
		out = append(out, MarketField{FID: int16(v), Value: stringField(inner, schema.FieldFieldValue)})
	}
	return out, nil
}
