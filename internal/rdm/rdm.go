// Package rdm maps the domain messages a session exchanges (login,
// source directory, dictionary, symbol list and market price) onto the
// generic codec messages. Every typed message offers a Msg method that
// builds the codec variant and a Decode function that reads it back.
package rdm

import (
	"errors"
	"fmt"

	"github.com/danmuck/rdmsession/internal/protocol/codec"
	"github.com/danmuck/rdmsession/internal/protocol/tlv"
)

// Stream ids shared by consumer and provider. Dynamic item streams are
// allocated at or above watchlist.StartStreamID.
const (
	LoginStreamID           int32 = 1
	DirectoryStreamID       int32 = 2
	FieldDictionaryStreamID int32 = -1
	EnumDictionaryStreamID  int32 = -2
)

var (
	ErrWrongDomain = errors.New("rdm: message domain mismatch")
	ErrWrongClass  = errors.New("rdm: unexpected message class")
)

// MissingFieldError reports a message whose key or payload lacks an
// element the domain requires.
type MissingFieldError struct {
	Domain codec.DomainType
	Field  string
}

func (e MissingFieldError) Error() string {
	return fmt.Sprintf("rdm: %s message missing %s", e.Domain, e.Field)
}

// Writer accepts one encoded message. *transport.Session implements it.
type Writer interface {
	Write(msg []byte) error
}

// Send encodes m and writes it to w.
func Send(w Writer, m codec.Msg) error {
	b, err := codec.Encode(m)
	if err != nil {
		return err
	}
	return w.Write(b)
}

// Status builds a status message carrying only a state.
func Status(streamID int32, domain codec.DomainType, state codec.State) *codec.StatusMsg {
	return &codec.StatusMsg{
		Base:  codec.Base{ID: streamID, DomainType: domain},
		State: &state,
	}
}

// Close builds a consumer close for streamID.
func Close(streamID int32, domain codec.DomainType) *codec.CloseMsg {
	return &codec.CloseMsg{Base: codec.Base{ID: streamID, DomainType: domain}}
}

func checkDomain(m codec.Msg, want codec.DomainType) error {
	if m.Domain() != want {
		return fmt.Errorf("%w: got %s want %s", ErrWrongDomain, m.Domain(), want)
	}
	return nil
}

func stringField(fields []tlv.Field, id uint16) string {
	f, ok := tlv.GetField(fields, id)
	if !ok {
		return ""
	}
	v, _ := f.AsString()
	return v
}

func boolField(fields []tlv.Field, id uint16) bool {
	f, ok := tlv.GetField(fields, id)
	if !ok {
		return false
	}
	v, _ := f.AsBool()
	return v
}

func u8Field(fields []tlv.Field, id uint16) uint8 {
	f, ok := tlv.GetField(fields, id)
	if !ok {
		return 0
	}
	v, _ := f.AsU8()
	return v
}

func appendString(fields []tlv.Field, id uint16, v string) []tlv.Field {
	if v == "" {
		return fields
	}
	return append(fields, tlv.String(id, v))
}
