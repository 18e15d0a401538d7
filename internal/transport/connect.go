package transport

import (
	"fmt"
	"time"

	"github.com/danmuck/rdmsession/internal/protocol/tlv"
)

const (
	fieldPingTimeoutMs uint16 = 1
	fieldSubProtocol   uint16 = 2
	fieldMaxMsgSize    uint16 = 3
	fieldSessionID     uint16 = 4
	fieldReason        uint16 = 5
	fieldAddress       uint16 = 6
)

// connectParams travel in ConnectRequest and ConnectAck frames. The
// request carries what the client proposes, the ack what was agreed.
type connectParams struct {
	PingTimeout time.Duration
	SubProtocol SubProtocol
	MaxMsgSize  uint32
	SessionID   string
}

func (p connectParams) encode() []byte {
	return tlv.EncodeFields([]tlv.Field{
		tlv.U32(fieldPingTimeoutMs, uint32(p.PingTimeout/time.Millisecond)),
		tlv.U8(fieldSubProtocol, uint8(p.SubProtocol)),
		tlv.U32(fieldMaxMsgSize, p.MaxMsgSize),
		tlv.String(fieldSessionID, p.SessionID),
	})
}

func decodeConnectParams(payload []byte) (connectParams, error) {
	fields, err := tlv.DecodeFields(payload)
	if err != nil {
		return connectParams{}, err
	}
	var p connectParams
	for _, f := range fields {
		switch f.ID {
		case fieldPingTimeoutMs:
			ms, err := f.AsU32()
			if err != nil {
				return connectParams{}, fmt.Errorf("transport: ping timeout: %w", err)
			}
			p.PingTimeout = time.Duration(ms) * time.Millisecond
		case fieldSubProtocol:
			v, err := f.AsU8()
			if err != nil {
				return connectParams{}, fmt.Errorf("transport: sub-protocol: %w", err)
			}
			p.SubProtocol = SubProtocol(v)
		case fieldMaxMsgSize:
			v, err := f.AsU32()
			if err != nil {
				return connectParams{}, fmt.Errorf("transport: max message size: %w", err)
			}
			p.MaxMsgSize = v
		case fieldSessionID:
			p.SessionID, _ = f.AsString()
		}
	}
	if p.PingTimeout <= 0 {
		return connectParams{}, fmt.Errorf("transport: connect params without ping timeout")
	}
	return p, nil
}

func encodeText(id uint16, text string) []byte {
	return tlv.EncodeFields([]tlv.Field{tlv.String(id, text)})
}

func decodeText(payload []byte, id uint16) string {
	fields, err := tlv.DecodeFields(payload)
	if err != nil {
		return ""
	}
	f, ok := tlv.GetField(fields, id)
	if !ok {
		return ""
	}
	s, _ := f.AsString()
	return s
}

// negotiate merges a client proposal with the server's options.
func negotiate(client connectParams, server Options) connectParams {
	out := client
	if server.PingTimeout > 0 && server.PingTimeout < out.PingTimeout {
		out.PingTimeout = server.PingTimeout
	}
	if server.MaxMsgSize > 0 && (out.MaxMsgSize == 0 || server.MaxMsgSize < out.MaxMsgSize) {
		out.MaxMsgSize = server.MaxMsgSize
	}
	if out.SubProtocol == SubProtocolJSON && server.Converter == nil {
		out.SubProtocol = SubProtocolBinary
	}
	return out
}

// pingIntervalFor derives the liveness interval from the negotiated
// timeout unless an override was configured.
func pingIntervalFor(timeout, override time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	return timeout / 3
}
