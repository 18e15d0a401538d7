package rdm

import (
	"github.com/danmuck/rdmsession/internal/protocol/codec"
	"github.com/danmuck/rdmsession/internal/protocol/schema"
	"github.com/danmuck/rdmsession/internal/protocol/tlv"
)

// Login user name types.
const (
	UserNameTypeName  uint8 = 1
	UserNameTypeEmail uint8 = 2
	UserNameTypeToken uint8 = 3
)

// Login roles.
const (
	RoleConsumer uint8 = 0
	RoleProvider uint8 = 1
)

// LoginFeatures are the optional behaviors a provider accepts.
type LoginFeatures struct {
	SupportBatchRequests bool
	SupportPost          bool
	SupportSingleOpen    bool
	SupportRTT           bool
}

type LoginRequest struct {
	StreamID        int32
	UserName        string
	UserNameType    uint8
	ApplicationID   string
	ApplicationName string
	Position        string
	Role            uint8
	SupportRTT      bool
	NoStreaming     bool
}

func (r LoginRequest) Msg() *codec.RequestMsg {
	payload := []tlv.Field{tlv.String(schema.FieldUserName, r.UserName)}
	if r.UserNameType != 0 {
		payload = append(payload, tlv.U8(schema.FieldUserNameType, r.UserNameType))
	}
	payload = appendString(payload, schema.FieldApplicationID, r.ApplicationID)
	payload = appendString(payload, schema.FieldApplicationName, r.ApplicationName)
	payload = appendString(payload, schema.FieldPosition, r.Position)
	payload = append(payload, tlv.U8(schema.FieldRole, r.Role))
	if r.SupportRTT {
		payload = append(payload, tlv.Bool(schema.FieldSupportRTT, true))
	}
	return &codec.RequestMsg{
		Base:      codec.Base{ID: r.StreamID, DomainType: codec.DomainLogin},
		Key:       codec.Key{Name: r.UserName},
		Streaming: !r.NoStreaming,
		Payload:   payload,
	}
}

func DecodeLoginRequest(m *codec.RequestMsg) (LoginRequest, error) {
	if err := checkDomain(m, codec.DomainLogin); err != nil {
		return LoginRequest{}, err
	}
	if err := schema.Validate(schema.MsgLoginRequest, m.Payload); err != nil {
		return LoginRequest{}, err
	}
	return LoginRequest{
		StreamID:        m.ID,
		UserName:        stringField(m.Payload, schema.FieldUserName),
		UserNameType:    u8Field(m.Payload, schema.FieldUserNameType),
		ApplicationID:   stringField(m.Payload, schema.FieldApplicationID),
		ApplicationName: stringField(m.Payload, schema.FieldApplicationName),
		Position:        stringField(m.Payload, schema.FieldPosition),
		Role:            u8Field(m.Payload, schema.FieldRole),
		SupportRTT:      boolField(m.Payload, schema.FieldSupportRTT),
		NoStreaming:     !m.Streaming,
	}, nil
}

type LoginRefresh struct {
	StreamID        int32
	State           codec.State
	Solicited       bool
	UserName        string
	ApplicationID   string
	ApplicationName string
	Position        string
	Features        LoginFeatures
}

func (r LoginRefresh) Msg() *codec.RefreshMsg {
	payload := []tlv.Field{tlv.String(schema.FieldUserName, r.UserName)}
	payload = appendString(payload, schema.FieldApplicationID, r.ApplicationID)
	payload = appendString(payload, schema.FieldApplicationName, r.ApplicationName)
	payload = appendString(payload, schema.FieldPosition, r.Position)
	payload = append(payload,
		tlv.Bool(schema.FieldSupportBatch, r.Features.SupportBatchRequests),
		tlv.Bool(schema.FieldSupportPost, r.Features.SupportPost),
		tlv.Bool(schema.FieldSupportSingleOpen, r.Features.SupportSingleOpen),
		tlv.Bool(schema.FieldSupportRTT, r.Features.SupportRTT),
	)
	key := codec.Key{Name: r.UserName}
	return &codec.RefreshMsg{
		Base:      codec.Base{ID: r.StreamID, DomainType: codec.DomainLogin},
		State:     r.State,
		Key:       &key,
		Solicited: r.Solicited,
		Complete:  true,
		Payload:   payload,
	}
}

func DecodeLoginRefresh(m *codec.RefreshMsg) (LoginRefresh, error) {
	if err := checkDomain(m, codec.DomainLogin); err != nil {
		return LoginRefresh{}, err
	}
	if err := schema.Validate(schema.MsgLoginRefresh, m.Payload); err != nil {
		return LoginRefresh{}, err
	}
	return LoginRefresh{
		StreamID:        m.ID,
		State:           m.State,
		Solicited:       m.Solicited,
		UserName:        stringField(m.Payload, schema.FieldUserName),
		ApplicationID:   stringField(m.Payload, schema.FieldApplicationID),
		ApplicationName: stringField(m.Payload, schema.FieldApplicationName),
		Position:        stringField(m.Payload, schema.FieldPosition),
		Features: LoginFeatures{
			SupportBatchRequests: boolField(m.Payload, schema.FieldSupportBatch),
			SupportPost:          boolField(m.Payload, schema.FieldSupportPost),
			SupportSingleOpen:    boolField(m.Payload, schema.FieldSupportSingleOpen),
			SupportRTT:           boolField(m.Payload, schema.FieldSupportRTT),
		},
	}, nil
}

// LoginRTT is the round-trip probe carried as a generic message on the
// login stream. Ticks is the sender's clock in nanoseconds; the receiver
// echoes the probe back with Echo set and the same Ticks.
type LoginRTT struct {
	StreamID      int32
	Ticks         uint64
	Echo          bool
	LastLatency   uint64
	HasTCPRetrans bool
	TCPRetrans    uint64
}

func (r LoginRTT) Msg() *codec.GenericMsg {
	payload := []tlv.Field{tlv.U64(schema.FieldRTTTicks, r.Ticks)}
	if r.Echo {
		payload = append(payload, tlv.Bool(schema.FieldRTTEcho, true))
	}
	if r.LastLatency != 0 {
		payload = append(payload, tlv.U64(schema.FieldRTTLatency, r.LastLatency))
	}
	if r.HasTCPRetrans {
		payload = append(payload, tlv.U64(schema.FieldRTTTCPRetrans, r.TCPRetrans))
	}
	return &codec.GenericMsg{
		Base:     codec.Base{ID: r.StreamID, DomainType: codec.DomainLogin},
		Complete: true,
		Payload:  payload,
	}
}

func DecodeLoginRTT(m *codec.GenericMsg) (LoginRTT, error) {
	if err := checkDomain(m, codec.DomainLogin); err != nil {
		return LoginRTT{}, err
	}
	if err := schema.Validate(schema.MsgLoginRTT, m.Payload); err != nil {
		return LoginRTT{}, err
	}
	out := LoginRTT{
		StreamID: m.ID,
		Echo:     boolField(m.Payload, schema.FieldRTTEcho),
	}
	ticks, _ := tlv.GetField(m.Payload, schema.FieldRTTTicks)
	out.Ticks, _ = ticks.AsU64()
	if f, ok := tlv.GetField(m.Payload, schema.FieldRTTLatency); ok {
		out.LastLatency, _ = f.AsU64()
	}
	if f, ok := tlv.GetField(m.Payload, schema.FieldRTTTCPRetrans); ok {
		v, err := f.AsU64()
		if err != nil {
			return LoginRTT{}, err
		}
		out.HasTCPRetrans = true
		out.TCPRetrans = v
	}
	return out, nil
}
