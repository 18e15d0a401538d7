package tlv

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeFieldsRoundTripPreservesUnknown(t *testing.T) {
	in := []Field{
		String(1, "RWFFld"),
		{ID: 9999, Type: TypeBytes, Value: []byte{0xAA, 0xBB}}, // unknown field id
	}
	b := EncodeFields(in)
	out, err := DecodeFields(b)
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(out))
	}
	if out[1].ID != 9999 || out[1].Type != TypeBytes || !bytes.Equal(out[1].Value, []byte{0xAA, 0xBB}) {
		t.Fatalf("unknown field not preserved: %+v", out[1])
	}
}

func TestDecodeFieldsMalformedHeaderIsDeterministic(t *testing.T) {
	_, err := DecodeFields([]byte{1, 2, 3})
	if !errors.Is(err, ErrShortFieldHeader) {
		t.Fatalf("expected ErrShortFieldHeader, got %v", err)
	}
}

func TestDecodeFieldsMalformedLengthIsDeterministic(t *testing.T) {
	// id=1, type=string, len=5, value only 2 bytes
	payload := []byte{0, 1, TypeString, 0, 0, 0, 5, 'a', 'b'}
	_, err := DecodeFields(payload)
	if !errors.Is(err, ErrShortFieldValue) {
		t.Fatalf("expected ErrShortFieldValue, got %v", err)
	}
}

func TestTypedAccessors(t *testing.T) {
	if v, err := I32(1, -2).AsI32(); err != nil || v != -2 {
		t.Fatalf("i32 got=%d err=%v", v, err)
	}
	if v, err := U16(1, 300).AsU16(); err != nil || v != 300 {
		t.Fatalf("u16 got=%d err=%v", v, err)
	}
	if v, err := U64(1, 1<<40).AsU64(); err != nil || v != 1<<40 {
		t.Fatalf("u64 got=%d err=%v", v, err)
	}
	if v, err := Bool(1, true).AsBool(); err != nil || !v {
		t.Fatalf("bool got=%v err=%v", v, err)
	}
	if _, err := String(1, "x").AsU32(); err == nil {
		t.Fatalf("expected type mismatch")
	}
	if _, err := (Field{ID: 1, Type: TypeBool, Value: []byte{7}}).AsBool(); err == nil {
		t.Fatalf("expected invalid bool error")
	}
}

func TestGroupNesting(t *testing.T) {
	g := Group(10, []Field{U16(1, 3), String(2, "DIRECT_FEED")})
	inner, err := g.AsGroup()
	if err != nil {
		t.Fatalf("group decode: %v", err)
	}
	name, ok := GetField(inner, 2)
	if !ok {
		t.Fatalf("missing nested field")
	}
	if s, _ := name.AsString(); s != "DIRECT_FEED" {
		t.Fatalf("unexpected nested value %q", s)
	}
	if got := EncodedLen(g); got != HeaderLen+len(g.Value) {
		t.Fatalf("encoded len got=%d", got)
	}
	if n := len(All([]Field{g, g, U8(3, 1)}, 10)); n != 2 {
		t.Fatalf("expected 2 groups, got %d", n)
	}
}
