package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/danmuck/rdmsession/internal/protocol/tlv"
)

// HeaderLen is the size of the message header that precedes the TLV fields.
const HeaderLen = 8

// ReservedFieldBase is the first field id owned by the codec itself.
// Domain payload fields must stay below it.
const ReservedFieldBase uint16 = 0xFF00

const (
	fieldKeyName      uint16 = 0xFF01
	fieldKeyServiceID uint16 = 0xFF02
	fieldKeyFilter    uint16 = 0xFF03
	fieldStateStream  uint16 = 0xFF10
	fieldStateData    uint16 = 0xFF11
	fieldStateCode    uint16 = 0xFF12
	fieldStateText    uint16 = 0xFF13
)

type flags uint16

const (
	flagStreaming flags = 1 << iota
	flagPrivate
	flagSolicited
	flagComplete
	flagClearCache
	flagHasState
	flagHasKey
)

var (
	ErrShortHeader   = errors.New("codec: short message header")
	ErrUnknownClass  = errors.New("codec: unknown message class")
	ErrReservedField = errors.New("codec: payload uses reserved field id")
	ErrMissingState  = errors.New("codec: refresh without state")
	ErrNilMessage    = errors.New("codec: nil message")
)

// Msg is one decoded message. The concrete type is one of *RequestMsg,
// *RefreshMsg, *StatusMsg, *UpdateMsg, *CloseMsg or *GenericMsg.
type Msg interface {
	StreamID() int32
	Domain() DomainType
	Class() MsgClass
}

// Base carries the addressing every message class shares.
type Base struct {
	ID         int32
	DomainType DomainType
}

func (b Base) StreamID() int32    { return b.ID }
func (b Base) Domain() DomainType { return b.DomainType }

type RequestMsg struct {
	Base
	Key       Key
	Streaming bool
	Private   bool
	Payload   []tlv.Field
}

func (*RequestMsg) Class() MsgClass { return ClassRequest }

type RefreshMsg struct {
	Base
	State      State
	Key        *Key
	Solicited  bool
	Complete   bool
	ClearCache bool
	Private    bool
	Payload    []tlv.Field
}

func (*RefreshMsg) Class() MsgClass { return ClassRefresh }

type StatusMsg struct {
	Base
	State   *State
	Key     *Key
	Private bool
	Payload []tlv.Field
}

func (*StatusMsg) Class() MsgClass { return ClassStatus }

type UpdateMsg struct {
	Base
	Key     *Key
	Payload []tlv.Field
}

func (*UpdateMsg) Class() MsgClass { return ClassUpdate }

type CloseMsg struct {
	Base
}

func (*CloseMsg) Class() MsgClass { return ClassClose }

type GenericMsg struct {
	Base
	Key      *Key
	Complete bool
	Payload  []tlv.Field
}

func (*GenericMsg) Class() MsgClass { return ClassGeneric }

// Encode serializes m into its binary wire form.
func Encode(m Msg) ([]byte, error) {
	if m == nil {
		return nil, ErrNilMessage
	}
	var (
		f       flags
		fields  []tlv.Field
		payload []tlv.Field
	)
	switch v := m.(type) {
	case *RequestMsg:
		f |= flagHasKey
		f |= boolFlag(v.Streaming, flagStreaming) | boolFlag(v.Private, flagPrivate)
		fields = appendKey(fields, v.Key)
		payload = v.Payload
	case *RefreshMsg:
		f |= flagHasState
		f |= boolFlag(v.Solicited, flagSolicited) | boolFlag(v.Complete, flagComplete)
		f |= boolFlag(v.ClearCache, flagClearCache) | boolFlag(v.Private, flagPrivate)
		fields = appendState(fields, v.State)
		if v.Key != nil {
			f |= flagHasKey
			fields = appendKey(fields, *v.Key)
		}
		payload = v.Payload
	case *StatusMsg:
		f |= boolFlag(v.Private, flagPrivate)
		if v.State != nil {
			f |= flagHasState
			fields = appendState(fields, *v.State)
		}
		if v.Key != nil {
			f |= flagHasKey
			fields = appendKey(fields, *v.Key)
		}
		payload = v.Payload
	case *UpdateMsg:
		if v.Key != nil {
			f |= flagHasKey
			fields = appendKey(fields, *v.Key)
		}
		payload = v.Payload
	case *CloseMsg:
	case *GenericMsg:
		f |= boolFlag(v.Complete, flagComplete)
		if v.Key != nil {
			f |= flagHasKey
			fields = appendKey(fields, *v.Key)
		}
		payload = v.Payload
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownClass, m)
	}
	for _, p := range payload {
		if p.ID >= ReservedFieldBase {
			return nil, fmt.Errorf("%w: %#x", ErrReservedField, p.ID)
		}
	}
	fields = append(fields, payload...)

	body := tlv.EncodeFields(fields)
	out := make([]byte, HeaderLen, HeaderLen+len(body))
	out[0] = byte(m.Class())
	out[1] = byte(m.Domain())
	binary.BigEndian.PutUint16(out[2:4], uint16(f))
	binary.BigEndian.PutUint32(out[4:8], uint32(m.StreamID()))
	return append(out, body...), nil
}

// Decode parses one binary message. The returned value is decoded once
// and is safe to dispatch on with a type switch.
func Decode(b []byte) (Msg, error) {
	if len(b) < HeaderLen {
		return nil, ErrShortHeader
	}
	class := MsgClass(b[0])
	base := Base{
		DomainType: DomainType(b[1]),
		ID:         int32(binary.BigEndian.Uint32(b[4:8])),
	}
	f := flags(binary.BigEndian.Uint16(b[2:4]))
	fields, err := tlv.DecodeFields(b[HeaderLen:])
	if err != nil {
		return nil, fmt.Errorf("codec: %s stream=%d: %w", class, base.ID, err)
	}

	var (
		key      Key
		hasKey   bool
		state    State
		hasState bool
		payload  []tlv.Field
	)
	for _, field := range fields {
		if field.ID < ReservedFieldBase {
			payload = append(payload, field)
			continue
		}
		if err := applyReserved(field, &key, &state); err != nil {
			return nil, err
		}
		switch field.ID {
		case fieldKeyName, fieldKeyServiceID, fieldKeyFilter:
			hasKey = true
		case fieldStateStream, fieldStateData, fieldStateCode, fieldStateText:
			hasState = true
		}
	}
	hasKey = hasKey || f&flagHasKey != 0
	hasState = hasState && f&flagHasState != 0

	switch class {
	case ClassRequest:
		return &RequestMsg{
			Base:      base,
			Key:       key,
			Streaming: f&flagStreaming != 0,
			Private:   f&flagPrivate != 0,
			Payload:   payload,
		}, nil
	case ClassRefresh:
		if !hasState {
			return nil, ErrMissingState
		}
		return &RefreshMsg{
			Base:       base,
			State:      state,
			Key:        keyPtr(key, hasKey),
			Solicited:  f&flagSolicited != 0,
			Complete:   f&flagComplete != 0,
			ClearCache: f&flagClearCache != 0,
			Private:    f&flagPrivate != 0,
			Payload:    payload,
		}, nil
	case ClassStatus:
		m := &StatusMsg{
			Base:    base,
			Key:     keyPtr(key, hasKey),
			Private: f&flagPrivate != 0,
			Payload: payload,
		}
		if hasState {
			m.State = &state
		}
		return m, nil
	case ClassUpdate:
		return &UpdateMsg{Base: base, Key: keyPtr(key, hasKey), Payload: payload}, nil
	case ClassClose:
		return &CloseMsg{Base: base}, nil
	case ClassGeneric:
		return &GenericMsg{
			Base:     base,
			Key:      keyPtr(key, hasKey),
			Complete: f&flagComplete != 0,
			Payload:  payload,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownClass, uint8(class))
	}
}

func applyReserved(field tlv.Field, key *Key, state *State) error {
	var err error
	switch field.ID {
	case fieldKeyName:
		key.Name, err = field.AsString()
	case fieldKeyServiceID:
		key.ServiceID, err = field.AsU16()
		key.HasServiceID = err == nil
	case fieldKeyFilter:
		key.Filter, err = field.AsU32()
		key.HasFilter = err == nil
	case fieldStateStream:
		var v uint8
		v, err = field.AsU8()
		state.Stream = StreamState(v)
	case fieldStateData:
		var v uint8
		v, err = field.AsU8()
		state.Data = DataState(v)
	case fieldStateCode:
		var v uint8
		v, err = field.AsU8()
		state.Code = StateCode(v)
	case fieldStateText:
		state.Text, err = field.AsString()
	}
	if err != nil {
		return fmt.Errorf("codec: reserved field %#x: %w", field.ID, err)
	}
	return nil
}

func appendKey(fields []tlv.Field, k Key) []tlv.Field {
	if k.Name != "" {
		fields = append(fields, tlv.String(fieldKeyName, k.Name))
	}
	if k.HasServiceID {
		fields = append(fields, tlv.U16(fieldKeyServiceID, k.ServiceID))
	}
	if k.HasFilter {
		fields = append(fields, tlv.U32(fieldKeyFilter, k.Filter))
	}
	return fields
}

func appendState(fields []tlv.Field, s State) []tlv.Field {
	fields = append(fields,
		tlv.U8(fieldStateStream, uint8(s.Stream)),
		tlv.U8(fieldStateData, uint8(s.Data)),
		tlv.U8(fieldStateCode, uint8(s.Code)),
	)
	if s.Text != "" {
		fields = append(fields, tlv.String(fieldStateText, s.Text))
	}
	return fields
}

func keyPtr(k Key, ok bool) *Key {
	if !ok {
		return nil
	}
	return &k
}

func boolFlag(v bool, f flags) flags {
	if v {
		return f
	}
	return 0
}
