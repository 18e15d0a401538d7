package schema

import (
	"fmt"

	"github.com/danmuck/rdmsession/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

// Payload shape IDs validated by this package. They name a TLV field list
// (a message payload or a nested group), not a wire message class.
const (
	MsgLoginRequest   uint32 = 1
	MsgLoginRefresh   uint32 = 2
	MsgLoginRTT       uint32 = 3
	MsgService        uint32 = 4
	MsgDictionaryInfo uint32 = 5
	MsgFieldDef       uint32 = 6
	MsgEnumTable      uint32 = 7
	MsgEnumValue      uint32 = 8
	MsgSymbolEntry    uint32 = 9
	MsgMarketField    uint32 = 10
	MsgQoS            uint32 = 11
)

// Field IDs from the domain payload contract.
const (
	FieldUserName          uint16 = 1
	FieldUserNameType      uint16 = 2
	FieldApplicationID     uint16 = 3
	FieldApplicationName   uint16 = 4
	FieldPosition          uint16 = 5
	FieldRole              uint16 = 6
	FieldSupportBatch      uint16 = 7
	FieldSupportPost       uint16 = 8
	FieldSupportSingleOpen uint16 = 9
	FieldSupportRTT        uint16 = 10

	FieldRTTTicks      uint16 = 20
	FieldRTTLatency    uint16 = 21
	FieldRTTTCPRetrans uint16 = 22
	FieldRTTEcho       uint16 = 23

	FieldService           uint16 = 100
	FieldServiceID         uint16 = 101
	FieldServiceAction     uint16 = 102
	FieldServiceName       uint16 = 103
	FieldVendor            uint16 = 104
	FieldCapability        uint16 = 105
	FieldDictionaryProvide uint16 = 106
	FieldDictionaryUse     uint16 = 107
	FieldQoS               uint16 = 108
	FieldTimeliness        uint16 = 109
	FieldRate              uint16 = 110
	FieldServiceState      uint16 = 111
	FieldAcceptingRequests uint16 = 112
	FieldInfo              uint16 = 120
	FieldState             uint16 = 121
	FieldGroup             uint16 = 122
	FieldGroupID           uint16 = 123

	FieldDictionaryType    uint16 = 200
	FieldDictionaryID      uint16 = 201
	FieldDictionaryVersion uint16 = 202
	FieldVerbosity         uint16 = 203
	FieldFieldDef          uint16 = 210
	FieldFID               uint16 = 211
	FieldAcronym           uint16 = 212
	FieldDDEAcronym        uint16 = 213
	FieldRipplesTo         uint16 = 214
	FieldFieldType         uint16 = 215
	FieldLength            uint16 = 216
	FieldEnumLength        uint16 = 217
	FieldEnumTable         uint16 = 220
	FieldEnumValue         uint16 = 222
	FieldEnumCode          uint16 = 223
	FieldEnumDisplay       uint16 = 224

	FieldSymbolEntry  uint16 = 300
	FieldSymbol       uint16 = 301
	FieldSymbolAction uint16 = 302

	FieldMarketField uint16 = 400
	FieldFieldValue  uint16 = 402
)

type Requirement struct {
	ID   uint16
	Type uint8
}

type ValidationError struct {
	MessageType uint32
	FieldID     uint16
	Reason      string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: message_type=%d: %s", e.MessageType, e.Reason)
	}
	return fmt.Sprintf("schema: message_type=%d field=%d: %s", e.MessageType, e.FieldID, e.Reason)
}

var requirements = map[uint32][]Requirement{
	MsgLoginRequest: {
		{FieldUserName, tlv.TypeString},
	},
	MsgLoginRefresh: {
		{FieldUserName, tlv.TypeString},
	},
	MsgLoginRTT: {
		{FieldRTTTicks, tlv.TypeU64},
	},
	MsgService: {
		{FieldServiceID, tlv.TypeU16},
		{FieldServiceAction, tlv.TypeU8},
	},
	MsgDictionaryInfo: {
		{FieldDictionaryType, tlv.TypeU8},
		{FieldDictionaryID, tlv.TypeI32},
		{FieldDictionaryVersion, tlv.TypeString},
	},
	MsgFieldDef: {
		{FieldFID, tlv.TypeI32},
		{FieldAcronym, tlv.TypeString},
		{FieldFieldType, tlv.TypeU8},
	},
	MsgEnumTable: {
		{FieldFID, tlv.TypeI32},
	},
	MsgEnumValue: {
		{FieldEnumCode, tlv.TypeU16},
		{FieldEnumDisplay, tlv.TypeString},
	},
	MsgSymbolEntry: {
		{FieldSymbol, tlv.TypeString},
		{FieldSymbolAction, tlv.TypeU8},
	},
	MsgMarketField: {
		{FieldFID, tlv.TypeI32},
		{FieldFieldValue, tlv.TypeString},
	},
	MsgQoS: {
		{FieldTimeliness, tlv.TypeU8},
		{FieldRate, tlv.TypeU8},
	},
}

// Validate enforces required fields and required field types for a payload shape.
// Unknown fields are ignored.
func Validate(messageType uint32, fields []tlv.Field) error {
	reqs, ok := requirements[messageType]
	if !ok {
		log.Error().Uint32("message_type", messageType).Msg("schema.Validate unknown message_type")
		return ValidationError{MessageType: messageType, Reason: "unknown message_type"}
	}
	for _, req := range reqs {
		f, found := tlv.GetField(fields, req.ID)
		if !found {
			log.Debug().
				Uint32("message_type", messageType).
				Uint16("field_id", req.ID).
				Msg("schema.Validate missing field")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "missing required field"}
		}
		if f.Type != req.Type {
			log.Debug().
				Uint32("message_type", messageType).
				Uint16("field_id", req.ID).
				Uint8("got", f.Type).
				Uint8("want", req.Type).
				Msg("schema.Validate type mismatch")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "type mismatch"}
		}
	}
	return nil
}
