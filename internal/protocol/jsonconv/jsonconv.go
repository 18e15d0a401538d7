// Package jsonconv maps binary messages to JSON documents and back for
// sessions that negotiated the JSON sub-protocol.
package jsonconv

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/danmuck/rdmsession/internal/protocol/codec"
	"github.com/danmuck/rdmsession/internal/protocol/tlv"
)

var (
	ErrUnknownName  = errors.New("jsonconv: unknown enumeration name")
	ErrFieldType    = errors.New("jsonconv: unsupported field type")
	ErrMissingState = errors.New("jsonconv: refresh without state")
)

type keyDoc struct {
	Name      string  `json:"name,omitempty"`
	ServiceID *uint16 `json:"serviceId,omitempty"`
	Filter    *uint32 `json:"filter,omitempty"`
}

type stateDoc struct {
	Stream string `json:"stream"`
	Data   string `json:"data"`
	Code   string `json:"code,omitempty"`
	Text   string `json:"text,omitempty"`
}

type fieldDoc struct {
	ID    uint16          `json:"id"`
	Type  uint8           `json:"type"`
	Value json.RawMessage `json:"value"`
}

type document struct {
	Class      string     `json:"class"`
	Domain     string     `json:"domain"`
	StreamID   int32      `json:"streamId"`
	Streaming  bool       `json:"streaming,omitempty"`
	Private    bool       `json:"private,omitempty"`
	Solicited  bool       `json:"solicited,omitempty"`
	Complete   bool       `json:"complete,omitempty"`
	ClearCache bool       `json:"clearCache,omitempty"`
	Key        *keyDoc    `json:"key,omitempty"`
	State      *stateDoc  `json:"state,omitempty"`
	Fields     []fieldDoc `json:"fields,omitempty"`
}

// Converter satisfies transport.Converter.
type Converter struct{}

func (Converter) ToJSON(msg []byte) ([]byte, error) {
	m, err := codec.Decode(msg)
	if err != nil {
		return nil, err
	}
	doc, err := toDocument(m)
	if err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

func (Converter) FromJSON(b []byte) ([]byte, error) {
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("jsonconv: %w", err)
	}
	m, err := fromDocument(doc)
	if err != nil {
		return nil, err
	}
	return codec.Encode(m)
}

func toDocument(m codec.Msg) (document, error) {
	doc := document{Class: m.Class().String(), Domain: m.Domain().String(), StreamID: m.StreamID()}
	var (
		payload []tlv.Field
		key     *codec.Key
		state   *codec.State
	)
	switch msg := m.(type) {
	case *codec.RequestMsg:
		doc.Streaming, doc.Private = msg.Streaming, msg.Private
		k := msg.Key
		key, payload = &k, msg.Payload
	case *codec.RefreshMsg:
		doc.Solicited, doc.Complete, doc.ClearCache, doc.Private = msg.Solicited, msg.Complete, msg.ClearCache, msg.Private
		s := msg.State
		key, state, payload = msg.Key, &s, msg.Payload
	case *codec.StatusMsg:
		doc.Private = msg.Private
		key, state, payload = msg.Key, msg.State, msg.Payload
	case *codec.UpdateMsg:
		key, payload = msg.Key, msg.Payload
	case *codec.GenericMsg:
		doc.Complete = msg.Complete
		key, payload = msg.Key, msg.Payload
	case *codec.CloseMsg:
	}
	if key != nil {
		doc.Key = encodeKey(*key)
	}
	if state != nil {
		doc.State = &stateDoc{
			Stream: state.Stream.String(),
			Data:   state.Data.String(),
			Code:   state.Code.String(),
			Text:   state.Text,
		}
	}
	fields, err := encodeFields(payload)
	if err != nil {
		return document{}, err
	}
	doc.Fields = fields
	return doc, nil
}

func encodeKey(k codec.Key) *keyDoc {
	out := &keyDoc{Name: k.Name}
	if k.HasServiceID {
		id := k.ServiceID
		out.ServiceID = &id
	}
	if k.HasFilter {
		f := k.Filter
		out.Filter = &f
	}
	return out
}

func decodeKey(k *keyDoc) codec.Key {
	if k == nil {
		return codec.Key{}
	}
	out := codec.Key{Name: k.Name}
	if k.ServiceID != nil {
		out.HasServiceID, out.ServiceID = true, *k.ServiceID
	}
	if k.Filter != nil {
		out.HasFilter, out.Filter = true, *k.Filter
	}
	return out
}

func keyPtr(k *keyDoc) *codec.Key {
	if k == nil {
		return nil
	}
	out := decodeKey(k)
	return &out
}

func fromDocument(doc document) (codec.Msg, error) {
	class, err := parseName[codec.MsgClass](doc.Class)
	if err != nil {
		return nil, err
	}
	domain, err := parseName[codec.DomainType](doc.Domain)
	if err != nil {
		return nil, err
	}
	payload, err := decodeFields(doc.Fields)
	if err != nil {
		return nil, err
	}
	var state *codec.State
	if doc.State != nil {
		s, err := decodeState(*doc.State)
		if err != nil {
			return nil, err
		}
		state = &s
	}
	base := codec.Base{ID: doc.StreamID, DomainType: domain}
	switch class {
	case codec.ClassRequest:
		return &codec.RequestMsg{Base: base, Key: decodeKey(doc.Key), Streaming: doc.Streaming, Private: doc.Private, Payload: payload}, nil
	case codec.ClassRefresh:
		if state == nil {
			return nil, ErrMissingState
		}
		return &codec.RefreshMsg{
			Base:       base,
			State:      *state,
			Key:        keyPtr(doc.Key),
			Solicited:  doc.Solicited,
			Complete:   doc.Complete,
			ClearCache: doc.ClearCache,
			Private:    doc.Private,
			Payload:    payload,
		}, nil
	case codec.ClassStatus:
		return &codec.StatusMsg{Base: base, State: state, Key: keyPtr(doc.Key), Private: doc.Private, Payload: payload}, nil
	case codec.ClassUpdate:
		return &codec.UpdateMsg{Base: base, Key: keyPtr(doc.Key), Payload: payload}, nil
	case codec.ClassGeneric:
		return &codec.GenericMsg{Base: base, Key: keyPtr(doc.Key), Complete: doc.Complete, Payload: payload}, nil
	case codec.ClassClose:
		return &codec.CloseMsg{Base: base}, nil
	default:
		return nil, fmt.Errorf("%w: class %q", ErrUnknownName, doc.Class)
	}
}

func decodeState(s stateDoc) (codec.State, error) {
	var (
		out codec.State
		err error
	)
	if out.Stream, err = parseName[codec.StreamState](s.Stream); err != nil {
		return out, err
	}
	if out.Data, err = parseName[codec.DataState](s.Data); err != nil {
		return out, err
	}
	if s.Code != "" {
		if out.Code, err = parseName[codec.StateCode](s.Code); err != nil {
			return out, err
		}
	}
	out.Text = s.Text
	return out, nil
}

type named interface {
	~uint8
	String() string
}

// parseName inverts String for the small wire enumerations.
func parseName[T named](s string) (T, error) {
	for i := 0; i <= 0xFF; i++ {
		if v := T(i); v.String() == s {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownName, s)
}

func encodeFields(fields []tlv.Field) ([]fieldDoc, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	out := make([]fieldDoc, 0, len(fields))
	for _, f := range fields {
		v, err := encodeValue(f)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out = append(out, fieldDoc{ID: f.ID, Type: f.Type, Value: raw})
	}
	return out, nil
}

func encodeValue(f tlv.Field) (any, error) {
	switch f.Type {
	case tlv.TypeU8:
		return f.AsU8()
	case tlv.TypeU16:
		return f.AsU16()
	case tlv.TypeU32:
		return f.AsU32()
	case tlv.TypeU64:
		return f.AsU64()
	case tlv.TypeI32:
		return f.AsI32()
	case tlv.TypeBool:
		return f.AsBool()
	case tlv.TypeString:
		return f.AsString()
	case tlv.TypeBytes:
		return base64.StdEncoding.EncodeToString(f.Value), nil
	case tlv.TypeGroup:
		inner, err := f.AsGroup()
		if err != nil {
			return nil, err
		}
		return encodeFields(inner)
	default:
		return nil, fmt.Errorf("%w: %d on field %d", ErrFieldType, f.Type, f.ID)
	}
}

func decodeFields(docs []fieldDoc) ([]tlv.Field, error) {
	out := make([]tlv.Field, 0, len(docs))
	for _, d := range docs {
		f, err := decodeField(d)
		if err != nil {
			return nil, fmt.Errorf("jsonconv: field %d: %w", d.ID, err)
		}
		out = append(out, f)
	}
	return out, nil
}

func decodeField(d fieldDoc) (tlv.Field, error) {
	switch d.Type {
	case tlv.TypeU8:
		var v uint8
		err := json.Unmarshal(d.Value, &v)
		return tlv.U8(d.ID, v), err
	case tlv.TypeU16:
		var v uint16
		err := json.Unmarshal(d.Value, &v)
		return tlv.U16(d.ID, v), err
	case tlv.TypeU32:
		var v uint32
		err := json.Unmarshal(d.Value, &v)
		return tlv.U32(d.ID, v), err
	case tlv.TypeU64:
		var v uint64
		err := json.Unmarshal(d.Value, &v)
		return tlv.U64(d.ID, v), err
	case tlv.TypeI32:
		var v int32
		err := json.Unmarshal(d.Value, &v)
		return tlv.I32(d.ID, v), err
	case tlv.TypeBool:
		var v bool
		err := json.Unmarshal(d.Value, &v)
		return tlv.Bool(d.ID, v), err
	case tlv.TypeString:
		var v string
		err := json.Unmarshal(d.Value, &v)
		return tlv.String(d.ID, v), err
	case tlv.TypeBytes:
		var s string
		if err := json.Unmarshal(d.Value, &s); err != nil {
			return tlv.Field{}, err
		}
		v, err := base64.StdEncoding.DecodeString(s)
		return tlv.Bytes(d.ID, v), err
	case tlv.TypeGroup:
		var inner []fieldDoc
		if err := json.Unmarshal(d.Value, &inner); err != nil {
			return tlv.Field{}, err
		}
		fields, err := decodeFields(inner)
		return tlv.Group(d.ID, fields), err
	default:
		return tlv.Field{}, fmt.Errorf("%w: %d", ErrFieldType, d.Type)
	}
}
