package provider

import (
	"fmt"

	"github.com/danmuck/rdmsession/internal/observability"
	"github.com/danmuck/rdmsession/internal/protocol/codec"
	"github.com/danmuck/rdmsession/internal/rdm"
	"github.com/rs/zerolog/log"
)

// RejectReason determines the status a rejected request receives.
type RejectReason interface {
	State() codec.State
	String() string
}

var (
	capacity    = codec.State{Stream: codec.StreamClosedRecover, Data: codec.DataSuspect, Code: codec.CodeTooManyItems}
	notFound    = codec.State{Stream: codec.StreamClosed, Data: codec.DataSuspect, Code: codec.CodeNotFound}
	usage       = codec.State{Stream: codec.StreamClosed, Data: codec.DataSuspect, Code: codec.CodeUsageError}
	notEntitled = codec.State{Stream: codec.StreamClosed, Data: codec.DataSuspect, Code: codec.CodeNotEntitled}
)

func withText(s codec.State, text string) codec.State {
	s.Text = text
	return s
}

type LoginRejectReason uint8

const (
	LoginMaxRequestsReached LoginRejectReason = iota + 1
	LoginNotAuthorized
	LoginDecodeFailed
)

func (r LoginRejectReason) String() string {
	switch r {
	case LoginMaxRequestsReached:
		return "login request rejected: max request count reached"
	case LoginNotAuthorized:
		return "login request rejected: not authorized"
	case LoginDecodeFailed:
		return "login request rejected: decode failed"
	default:
		return fmt.Sprintf("LoginRejectReason(%d)", uint8(r))
	}
}

func (r LoginRejectReason) State() codec.State {
	switch r {
	case LoginMaxRequestsReached:
		return withText(capacity, r.String())
	case LoginNotAuthorized:
		return withText(notEntitled, r.String())
	default:
		return withText(usage, r.String())
	}
}

type DictionaryRejectReason uint8

const (
	DictionaryMaxRequestsReached DictionaryRejectReason = iota + 1
	DictionaryUnknownName
	DictionaryDecodeFailed
)

func (r DictionaryRejectReason) String() string {
	switch r {
	case DictionaryMaxRequestsReached:
		return "dictionary request rejected: max request count reached"
	case DictionaryUnknownName:
		return "dictionary request rejected: unknown dictionary name"
	case DictionaryDecodeFailed:
		return "dictionary request rejected: decode failed"
	default:
		return fmt.Sprintf("DictionaryRejectReason(%d)", uint8(r))
	}
}

func (r DictionaryRejectReason) State() codec.State {
	switch r {
	case DictionaryMaxRequestsReached:
		return withText(capacity, r.String())
	case DictionaryUnknownName:
		return withText(notFound, r.String())
	default:
		return withText(usage, r.String())
	}
}

type ItemRejectReason uint8

const (
	ItemCountReached ItemRejectReason = iota + 1
	ItemUnknownName
	ItemInvalidServiceID
	ItemDomainNotSupported
	ItemAlreadyOpen
	ItemDecodeFailed
)

func (r ItemRejectReason) String() string {
	switch r {
	case ItemCountReached:
		return "item request rejected: item count reached"
	case ItemUnknownName:
		return "item request rejected: unknown item"
	case ItemInvalidServiceID:
		return "item request rejected: invalid service id"
	case ItemDomainNotSupported:
		return "item request rejected: domain not supported"
	case ItemAlreadyOpen:
		return "item request rejected: stream already open"
	case ItemDecodeFailed:
		return "item request rejected: decode failed"
	default:
		return fmt.Sprintf("ItemRejectReason(%d)", uint8(r))
	}
}

func (r ItemRejectReason) State() codec.State {
	switch r {
	case ItemCountReached:
		return withText(capacity, r.String())
	case ItemUnknownName:
		return withText(notFound, r.String())
	case ItemAlreadyOpen:
		s := withText(usage, r.String())
		s.Code = codec.CodeAlreadyOpen
		return s
	default:
		return withText(usage, r.String())
	}
}

// Reject answers a request with the status reason maps to. It never
// touches stream bookkeeping; callers decide whether an entry exists.
func Reject(w rdm.Writer, streamID int32, domain codec.DomainType, reason RejectReason) error {
	state := reason.State()
	observability.RecordReject(domain.String(), state.Code.String())
	log.Warn().
		Int32("stream", streamID).
		Stringer("domain", domain).
		Stringer("state", state).
		Msg("provider.Reject")
	return rdm.Send(w, rdm.Status(streamID, domain, state))
}

// CloseStream tells the consumer a stream is closed for good.
func CloseStream(w rdm.Writer, streamID int32, domain codec.DomainType, text string) error {
	state := codec.State{Stream: codec.StreamClosed, Data: codec.DataSuspect, Text: text}
	log.Info().Int32("stream", streamID).Stringer("domain", domain).Str("text", text).Msg("provider.CloseStream")
	return rdm.Send(w, rdm.Status(streamID, domain, state))
}
