package frame

import (
	"bytes"
	"errors"
	"testing"
)

func TestReadWriteFrameRoundTrip(t *testing.T) {
	in := Frame{
		Header:  Header{Kind: KindData, Flags: FlagJSON},
		Payload: []byte(`{"Type":"Refresh"}`),
	}
	var buf bytes.Buffer
	if err := WriteFrame(&buf, in, DefaultLimits()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	out, err := ReadFrame(&buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if out.Header.Kind != KindData || out.Header.Flags != FlagJSON || out.Header.Magic != Magic {
		t.Fatalf("header mismatch: got=%+v", out.Header)
	}
	if !bytes.Equal(out.Payload, in.Payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestReadFrameMalformedHeaderIsDeterministic(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{1, 2, 3}), DefaultLimits())
	if !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
}

func TestSplitReassemblesAcrossPartialReads(t *testing.T) {
	first, err := AppendFrame(nil, KindData, 0, []byte("alpha"), DefaultLimits())
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	stream, err := AppendFrame(first, KindPing, 0, nil, DefaultLimits())
	if err != nil {
		t.Fatalf("append ping: %v", err)
	}

	if _, _, err := Split(stream[:HeaderLen-1], DefaultLimits()); !errors.Is(err, ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete for short header, got %v", err)
	}
	if _, _, err := Split(stream[:HeaderLen+2], DefaultLimits()); !errors.Is(err, ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete for short payload, got %v", err)
	}

	f, n, err := Split(stream, DefaultLimits())
	if err != nil {
		t.Fatalf("split first: %v", err)
	}
	if string(f.Payload) != "alpha" || n != HeaderLen+5 {
		t.Fatalf("unexpected first frame payload=%q n=%d", f.Payload, n)
	}
	ping, n2, err := Split(stream[n:], DefaultLimits())
	if err != nil {
		t.Fatalf("split ping: %v", err)
	}
	if !ping.IsPing() || n2 != HeaderLen {
		t.Fatalf("expected ping frame, got %+v n=%d", ping.Header, n2)
	}
}

func TestSplitRejectsBadMagicAndOversize(t *testing.T) {
	buf := EncodeHeader(Header{Magic: 1, Version: Version, Kind: KindData})
	if _, _, err := Split(buf, DefaultLimits()); !errors.Is(err, ErrInvalidMagic) {
		t.Fatalf("expected ErrInvalidMagic, got %v", err)
	}

	big := EncodeHeader(Header{Magic: Magic, Version: Version, Kind: KindData, PayloadLen: 10})
	if _, _, err := Split(big, Limits{MaxPayloadBytes: 4}); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	if _, err := AppendFrame(nil, KindData, 0, make([]byte, 5), Limits{MaxPayloadBytes: 4}); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected append ErrPayloadTooLarge, got %v", err)
	}
}
