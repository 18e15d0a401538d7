package schema

import (
	"testing"

	"github.com/danmuck/rdmsession/internal/protocol/tlv"
	"github.com/danmuck/rdmsession/internal/testutil/testlog"
)

func TestValidateServiceRequiredFields(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{
		tlv.U16(FieldServiceID, 3),
		tlv.U8(FieldServiceAction, 2),
	}
	if err := Validate(MsgService, fields); err != nil {
		t.Fatalf("validate service: %v", err)
	}
}

func TestValidateUnknownFieldsIgnored(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{
		tlv.String(FieldUserName, "alice"),
		{ID: 9999, Type: tlv.TypeBytes, Value: []byte{0x01}},
	}
	if err := Validate(MsgLoginRequest, fields); err != nil {
		t.Fatalf("validate with unknown field: %v", err)
	}
}

func TestValidateMissingRequiredDeterministic(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{tlv.I32(FieldDictionaryID, 1)}
	err := Validate(MsgDictionaryInfo, fields)
	if err == nil {
		t.Fatalf("expected error")
	}
	ve, ok := err.(ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if ve.FieldID != FieldDictionaryType || ve.Reason != "missing required field" {
		t.Fatalf("unexpected validation error: %+v", ve)
	}
}

func TestValidateTypeMismatchDeterministic(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{
		tlv.String(FieldSymbol, "TRI.N"),
		tlv.U32(FieldSymbolAction, 1),
	}
	err := Validate(MsgSymbolEntry, fields)
	if err == nil {
		t.Fatalf("expected error")
	}
	ve, ok := err.(ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if ve.FieldID != FieldSymbolAction || ve.Reason != "type mismatch" {
		t.Fatalf("unexpected validation error: %+v", ve)
	}
}

func TestValidateUnknownMessageType(t *testing.T) {
	testlog.Start(t)
	err := Validate(9999, nil)
	ve, ok := err.(ValidationError)
	if !ok || ve.Reason != "unknown message_type" {
		t.Fatalf("expected unknown message_type error, got %v", err)
	}
}
