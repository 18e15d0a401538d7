package rdm

import (
	"fmt"

	"github.com/danmuck/rdmsession/internal/protocol/codec"
	"github.com/danmuck/rdmsession/internal/protocol/schema"
	"github.com/danmuck/rdmsession/internal/protocol/tlv"
)

// Filter selects which directory filter entries a request wants.
type Filter uint32

const (
	FilterInfo  Filter = 0x1
	FilterState Filter = 0x2
	FilterGroup Filter = 0x4
)

// ServiceAction is the per-service map action. Values travel unchanged.
type ServiceAction uint8

const (
	ServiceActionUpdate ServiceAction = 1
	ServiceActionAdd    ServiceAction = 2
	ServiceActionDelete ServiceAction = 3
)

func (a ServiceAction) String() string {
	switch a {
	case ServiceActionUpdate:
		return "Update"
	case ServiceActionAdd:
		return "Add"
	case ServiceActionDelete:
		return "Delete"
	default:
		return fmt.Sprintf("ServiceAction(%d)", uint8(a))
	}
}

// QoS timeliness and rate values.
const (
	TimelinessRealtime      uint8 = 1
	TimelinessDelayed       uint8 = 2
	RateTickByTick          uint8 = 1
	RateJustInTimeConflated uint8 = 2
)

type QoS struct {
	Timeliness uint8
	Rate       uint8
}

type ServiceInfo struct {
	Name                 string
	Vendor               string
	Capabilities         []codec.DomainType
	DictionariesProvided []string
	DictionariesUsed     []string
	QoS                  []QoS
}

// HasCapability reports whether the service advertises domain.
func (i ServiceInfo) HasCapability(domain codec.DomainType) bool {
	for _, c := range i.Capabilities {
		if c == domain {
			return true
		}
	}
	return false
}

// Service states.
const (
	ServiceDown uint8 = 0
	ServiceUp   uint8 = 1
)

type ServiceState struct {
	ServiceState      uint8
	AcceptingRequests bool
}

// Service is one directory map entry. Info and State are present only
// when the corresponding Has flag is set.
type Service struct {
	ID       uint16
	Action   ServiceAction
	HasInfo  bool
	Info     ServiceInfo
	HasState bool
	State    ServiceState
	Groups   []uint16
}

// DirectoryRequest asks for the filter entries of every service, or of
// ServiceID alone when HasServiceID is set.
type DirectoryRequest struct {
	StreamID     int32
	Filter       Filter
	Streaming    bool
	HasServiceID bool
	ServiceID    uint16
}

func (r DirectoryRequest) Msg() *codec.RequestMsg {
	return &codec.RequestMsg{
		Base: codec.Base{ID: r.StreamID, DomainType: codec.DomainSource},
		Key: codec.Key{
			HasFilter:    true,
			Filter:       uint32(r.Filter),
			HasServiceID: r.HasServiceID,
			ServiceID:    r.ServiceID,
		},
		Streaming: r.Streaming,
	}
}

func DecodeDirectoryRequest(m *codec.RequestMsg) (DirectoryRequest, error) {
	if err := checkDomain(m, codec.DomainSource); err != nil {
		return DirectoryRequest{}, err
	}
	if !m.Key.HasFilter {
		return DirectoryRequest{}, MissingFieldError{Domain: codec.DomainSource, Field: "filter"}
	}
	return DirectoryRequest{
		StreamID:     m.ID,
		Filter:       Filter(m.Key.Filter),
		Streaming:    m.Streaming,
		HasServiceID: m.Key.HasServiceID,
		ServiceID:    m.Key.ServiceID,
	}, nil
}

type DirectoryRefresh struct {
	StreamID   int32
	State      codec.State
	Solicited  bool
	ClearCache bool
	Filter     Filter
	Services   []Service
}

func (r DirectoryRefresh) Msg() *codec.RefreshMsg {
	key := codec.Key{HasFilter: true, Filter: uint32(r.Filter)}
	return &codec.RefreshMsg{
		Base:       codec.Base{ID: r.StreamID, DomainType: codec.DomainSource},
		State:      r.State,
		Key:        &key,
		Solicited:  r.Solicited,
		Complete:   true,
		ClearCache: r.ClearCache,
		Payload:    encodeServices(r.Services),
	}
}

func DecodeDirectoryRefresh(m *codec.RefreshMsg) (DirectoryRefresh, error) {
	if err := checkDomain(m, codec.DomainSource); err != nil {
		return DirectoryRefresh{}, err
	}
	services, err := decodeServices(m.Payload)
	if err != nil {
		return DirectoryRefresh{}, err
	}
	out := DirectoryRefresh{
		StreamID:   m.ID,
		State:      m.State,
		Solicited:  m.Solicited,
		ClearCache: m.ClearCache,
		Services:   services,
	}
	if m.Key != nil {
		out.Filter = Filter(m.Key.Filter)
	}
	return out, nil
}

type DirectoryUpdate struct {
	StreamID int32
	Filter   Filter
	Services []Service
}

func (u DirectoryUpdate) Msg() *codec.UpdateMsg {
	var key *codec.Key
	if u.Filter != 0 {
		key = &codec.Key{HasFilter: true, Filter: uint32(u.Filter)}
	}
	return &codec.UpdateMsg{
		Base:    codec.Base{ID: u.StreamID, DomainType: codec.DomainSource},
		Key:     key,
		Payload: encodeServices(u.Services),
	}
}

func DecodeDirectoryUpdate(m *codec.UpdateMsg) (DirectoryUpdate, error) {
	if err := checkDomain(m, codec.DomainSource); err != nil {
		return DirectoryUpdate{}, err
	}
	services, err := decodeServices(m.Payload)
	if err != nil {
		return DirectoryUpdate{}, err
	}
	out := DirectoryUpdate{StreamID: m.ID, Services: services}
	if m.Key != nil {
		out.Filter = Filter(m.Key.Filter)
	}
	return out, nil
}

func encodeServices(services []Service) []tlv.Field {
	out := make([]tlv.Field, 0, len(services))
	for _, s := range services {
		out = append(out, EncodeService(s))
	}
	return out
}

func decodeServices(payload []tlv.Field) ([]Service, error) {
	entries := tlv.All(payload, schema.FieldService)
	out := make([]Service, 0, len(entries))
	for _, e := range entries {
		s, err := DecodeService(e)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func EncodeService(s Service) tlv.Field {
	fields := []tlv.Field{
		tlv.U16(schema.FieldServiceID, s.ID),
		tlv.U8(schema.FieldServiceAction, uint8(s.Action)),
	}
	if s.HasInfo {
		fields = append(fields, tlv.Group(schema.FieldInfo, encodeInfo(s.Info)))
	}
	if s.HasState {
		fields = append(fields, tlv.Group(schema.FieldState, []tlv.Field{
			tlv.U8(schema.FieldServiceState, s.State.ServiceState),
			tlv.Bool(schema.FieldAcceptingRequests, s.State.AcceptingRequests),
		}))
	}
	if len(s.Groups) > 0 {
		groups := make([]tlv.Field, 0, len(s.Groups))
		for _, g := range s.Groups {
			groups = append(groups, tlv.U16(schema.FieldGroupID, g))
		}
		fields = append(fields, tlv.Group(schema.FieldGroup, groups))
	}
	return tlv.Group(schema.FieldService, fields)
}

func DecodeService(f tlv.Field) (Service, error) {
	fields, err := f.AsGroup()
	if err != nil {
		return Service{}, err
	}
	if err := schema.Validate(schema.MsgService, fields); err != nil {
		return Service{}, err
	}
	var s Service
	id, _ := tlv.GetField(fields, schema.FieldServiceID)
	s.ID, _ = id.AsU16()
	s.Action = ServiceAction(u8Field(fields, schema.FieldServiceAction))

	if info, ok := tlv.GetField(fields, schema.FieldInfo); ok {
		inner, err := info.AsGroup()
		if err != nil {
			return Service{}, fmt.Errorf("rdm: service %d info: %w", s.ID, err)
		}
		s.Info, err = decodeInfo(inner)
		if err != nil {
			return Service{}, fmt.Errorf("rdm: service %d info: %w", s.ID, err)
		}
		s.HasInfo = true
	}
	if state, ok := tlv.GetField(fields, schema.FieldState); ok {
		inner, err := state.AsGroup()
		if err != nil {
			return Service{}, fmt.Errorf("rdm: service %d state: %w", s.ID, err)
		}
		s.State = ServiceState{
			ServiceState:      u8Field(inner, schema.FieldServiceState),
			AcceptingRequests: boolField(inner, schema.FieldAcceptingRequests),
		}
		s.HasState = true
	}
	if group, ok := tlv.GetField(fields, schema.FieldGroup); ok {
		inner, err := group.AsGroup()
		if err != nil {
			return Service{}, fmt.Errorf("rdm: service %d group: %w", s.ID, err)
		}
		for _, g := range tlv.All(inner, schema.FieldGroupID) {
			v, err := g.AsU16()
			if err != nil {
				return Service{}, err
			}
			s.Groups = append(s.Groups, v)
		}
	}
	return s, nil
}

func encodeInfo(info ServiceInfo) []tlv.Field {
	var fields []tlv.Field
	fields = appendString(fields, schema.FieldServiceName, info.Name)
	fields = appendString(fields, schema.FieldVendor, info.Vendor)
	for _, c := range info.Capabilities {
		fields = append(fields, tlv.U8(schema.FieldCapability, uint8(c)))
	}
	for _, name := range info.DictionariesProvided {
		fields = append(fields, tlv.String(schema.FieldDictionaryProvide, name))
	}
	for _, name := range info.DictionariesUsed {
		fields = append(fields, tlv.String(schema.FieldDictionaryUse, name))
	}
	for _, q := range info.QoS {
		fields = append(fields, tlv.Group(schema.FieldQoS, []tlv.Field{
			tlv.U8(schema.FieldTimeliness, q.Timeliness),
			tlv.U8(schema.FieldRate, q.Rate),
		}))
	}
	return fields
}

func decodeInfo(fields []tlv.Field) (ServiceInfo, error) {
	info := ServiceInfo{
		Name:   stringField(fields, schema.FieldServiceName),
		Vendor: stringField(fields, schema.FieldVendor),
	}
	for _, f := range tlv.All(fields, schema.FieldCapability) {
		v, err := f.AsU8()
		if err != nil {
			return ServiceInfo{}, err
		}
		info.Capabilities = append(info.Capabilities, codec.DomainType(v))
	}
	for _, f := range tlv.All(fields, schema.FieldDictionaryProvide) {
		v, err := f.AsString()
		if err != nil {
			return ServiceInfo{}, err
		}
		info.DictionariesProvided = append(info.DictionariesProvided, v)
	}
	for _, f := range tlv.All(fields, schema.FieldDictionaryUse) {
		v, err := f.AsString()
		if err != nil {
			return ServiceInfo{}, err
		}
		info.DictionariesUsed = append(info.DictionariesUsed, v)
	}
	for _, f := range tlv.All(fields, schema.FieldQoS) {
		inner, err := f.AsGroup()
		if err != nil {
			return ServiceInfo{}, err
		}
		if err := schema.Validate(schema.MsgQoS, inner); err != nil {
			return ServiceInfo{}, err
		}
		info.QoS = append(info.QoS, QoS{
			Timeliness: u8Field(inner, schema.FieldTimeliness),
			Rate:       u8Field(inner, schema.FieldRate),
		})
	}
	return info, nil
}
