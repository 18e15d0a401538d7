package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	Magic     uint32 = 0x52444D31
	Version   uint16 = 1
	HeaderLen        = 12
)

// Kind identifies the transport-level purpose of a frame.
type Kind uint8

const (
	KindData           Kind = 1
	KindPing           Kind = 2
	KindConnectRequest Kind = 3
	KindConnectAck     Kind = 4
	KindConnectNak     Kind = 5
	KindRedirect       Kind = 6
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindPing:
		return "ping"
	case KindConnectRequest:
		return "connect_request"
	case KindConnectAck:
		return "connect_ack"
	case KindConnectNak:
		return "connect_nak"
	case KindRedirect:
		return "redirect"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

const (
	// FlagJSON marks a data frame whose payload is a JSON document.
	FlagJSON uint8 = 0x01
)

var (
	ErrShortHeader        = errors.New("frame: short fixed header")
	ErrIncomplete         = errors.New("frame: incomplete frame")
	ErrInvalidMagic       = errors.New("frame: invalid magic")
	ErrUnsupportedVersion = errors.New("frame: unsupported version")
	ErrPayloadTooLarge    = errors.New("frame: payload too large")
)

// Header is the fixed wire header.
type Header struct {
	Magic      uint32
	Version    uint16
	Kind       Kind
	Flags      uint8
	PayloadLen uint32
}

// Frame is one complete wire message.
type Frame struct {
	Header  Header
	Payload []byte
}

// IsPing reports whether f is a liveness ping with no payload.
func (f Frame) IsPing() bool {
	return f.Header.Kind == KindPing && len(f.Payload) == 0
}

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadBytes uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxPayloadBytes: 1024 * 1024,
	}
}

// AppendFrame appends the encoded frame to dst.
func AppendFrame(dst []byte, kind Kind, flags uint8, payload []byte, limits Limits) ([]byte, error) {
	if uint64(len(payload)) > uint64(limits.MaxPayloadBytes) {
		return dst, ErrPayloadTooLarge
	}
	dst = append(dst, EncodeHeader(Header{
		Magic:      Magic,
		Version:    Version,
		Kind:       kind,
		Flags:      flags,
		PayloadLen: uint32(len(payload)),
	})...)
	return append(dst, payload...), nil
}

// Split decodes the first complete frame held in buf and returns the
// number of bytes it occupied. ErrIncomplete means more bytes are needed.
func Split(buf []byte, limits Limits) (Frame, int, error) {
	if len(buf) < HeaderLen {
		return Frame{}, 0, ErrIncomplete
	}
	h, err := DecodeHeader(buf[:HeaderLen])
	if err != nil {
		return Frame{}, 0, err
	}
	if err := validate(h, limits); err != nil {
		return Frame{}, 0, err
	}
	total := HeaderLen + int(h.PayloadLen)
	if len(buf) < total {
		return Frame{}, 0, ErrIncomplete
	}
	payload := make([]byte, h.PayloadLen)
	copy(payload, buf[HeaderLen:total])
	return Frame{Header: h, Payload: payload}, total, nil
}

func ReadFrame(r io.Reader, limits Limits) (Frame, error) {
	var fixed [HeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return Frame{}, ErrShortHeader
		}
		return Frame{}, err
	}

	h, err := DecodeHeader(fixed[:])
	if err != nil {
		return Frame{}, err
	}
	if err := validate(h, limits); err != nil {
		return Frame{}, err
	}

	payload := make([]byte, h.PayloadLen)
	if h.PayloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Header: h, Payload: payload}, nil
}

func WriteFrame(w io.Writer, f Frame, limits Limits) error {
	buf, err := AppendFrame(nil, f.Header.Kind, f.Header.Flags, f.Payload, limits)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

func validate(h Header, limits Limits) error {
	if h.Magic != Magic {
		return ErrInvalidMagic
	}
	if h.Version != Version {
		return ErrUnsupportedVersion
	}
	if h.PayloadLen > limits.MaxPayloadBytes {
		return ErrPayloadTooLarge
	}
	return nil
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderLen)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	buf[6] = byte(h.Kind)
	buf[7] = h.Flags
	binary.BigEndian.PutUint32(buf[8:12], h.PayloadLen)
	return buf
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) != HeaderLen {
		return Header{}, fmt.Errorf("frame: invalid fixed header length: %d", len(b))
	}
	return Header{
		Magic:      binary.BigEndian.Uint32(b[0:4]),
		Version:    binary.BigEndian.Uint16(b[4:6]),
		Kind:       Kind(b[6]),
		Flags:      b[7],
		PayloadLen: binary.BigEndian.Uint32(b[8:12]),
	}, nil
}
