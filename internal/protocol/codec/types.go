package codec

import "fmt"

// MsgClass is the wire message class.
type MsgClass uint8

const (
	ClassRequest MsgClass = 1
	ClassRefresh MsgClass = 2
	ClassStatus  MsgClass = 3
	ClassUpdate  MsgClass = 4
	ClassClose   MsgClass = 5
	ClassGeneric MsgClass = 7
)

func (c MsgClass) String() string {
	switch c {
	case ClassRequest:
		return "request"
	case ClassRefresh:
		return "refresh"
	case ClassStatus:
		return "status"
	case ClassUpdate:
		return "update"
	case ClassClose:
		return "close"
	case ClassGeneric:
		return "generic"
	default:
		return fmt.Sprintf("class(%d)", uint8(c))
	}
}

// DomainType values are peer-agreed constants.
type DomainType uint8

const (
	DomainLogin         DomainType = 1
	DomainSource        DomainType = 4
	DomainDictionary    DomainType = 5
	DomainMarketPrice   DomainType = 6
	DomainMarketByOrder DomainType = 7
	DomainSymbolList    DomainType = 10
)

func (d DomainType) String() string {
	switch d {
	case DomainLogin:
		return "login"
	case DomainSource:
		return "source"
	case DomainDictionary:
		return "dictionary"
	case DomainMarketPrice:
		return "market_price"
	case DomainMarketByOrder:
		return "market_by_order"
	case DomainSymbolList:
		return "symbol_list"
	default:
		return fmt.Sprintf("domain(%d)", uint8(d))
	}
}

type StreamState uint8

const (
	StreamUnspecified   StreamState = 0
	StreamOpen          StreamState = 1
	StreamNonStreaming  StreamState = 2
	StreamClosedRecover StreamState = 3
	StreamClosed        StreamState = 4
	StreamRedirected    StreamState = 5
)

func (s StreamState) String() string {
	switch s {
	case StreamUnspecified:
		return "Unspecified"
	case StreamOpen:
		return "Open"
	case StreamNonStreaming:
		return "NonStreaming"
	case StreamClosedRecover:
		return "ClosedRecover"
	case StreamClosed:
		return "Closed"
	case StreamRedirected:
		return "Redirected"
	default:
		return fmt.Sprintf("StreamState(%d)", uint8(s))
	}
}

type DataState uint8

const (
	DataNoChange DataState = 0
	DataOk       DataState = 1
	DataSuspect  DataState = 2
)

func (s DataState) String() string {
	switch s {
	case DataNoChange:
		return "NoChange"
	case DataOk:
		return "Ok"
	case DataSuspect:
		return "Suspect"
	default:
		return fmt.Sprintf("DataState(%d)", uint8(s))
	}
}

type StateCode uint8

const (
	CodeNone              StateCode = 0
	CodeNotFound          StateCode = 1
	CodeTimeout           StateCode = 2
	CodeNotEntitled       StateCode = 3
	CodeInvalidArgument   StateCode = 4
	CodeUsageError        StateCode = 5
	CodePreempted         StateCode = 6
	CodeFailoverStarted   StateCode = 9
	CodeFailoverCompleted StateCode = 10
	CodeNoResources       StateCode = 12
	CodeTooManyItems      StateCode = 13
	CodeAlreadyOpen       StateCode = 14
	CodeSourceUnknown     StateCode = 15
	CodeNotOpen           StateCode = 16
	CodeUnsupportedView   StateCode = 20
	CodeError             StateCode = 23
)

func (c StateCode) String() string {
	switch c {
	case CodeNone:
		return "None"
	case CodeNotFound:
		return "NotFound"
	case CodeTimeout:
		return "Timeout"
	case CodeNotEntitled:
		return "NotEntitled"
	case CodeInvalidArgument:
		return "InvalidArgument"
	case CodeUsageError:
		return "UsageError"
	case CodePreempted:
		return "Preempted"
	case CodeFailoverStarted:
		return "FailoverStarted"
	case CodeFailoverCompleted:
		return "FailoverCompleted"
	case CodeNoResources:
		return "NoResources"
	case CodeTooManyItems:
		return "TooManyItems"
	case CodeAlreadyOpen:
		return "AlreadyOpen"
	case CodeSourceUnknown:
		return "SourceUnknown"
	case CodeNotOpen:
		return "NotOpen"
	case CodeUnsupportedView:
		return "UnsupportedViewType"
	case CodeError:
		return "Error"
	default:
		return fmt.Sprintf("StateCode(%d)", uint8(c))
	}
}

// State is the {stream, data, code} triple every refresh and most status
// messages carry.
type State struct {
	Stream StreamState
	Data   DataState
	Code   StateCode
	Text   string
}

// IsFinal reports whether no further messages are expected on the stream.
func (s State) IsFinal() bool {
	switch s.Stream {
	case StreamClosed, StreamClosedRecover, StreamRedirected, StreamNonStreaming:
		return true
	default:
		return false
	}
}

// IsOpenOk reports {Open, Ok}.
func (s State) IsOpenOk() bool {
	return s.Stream == StreamOpen && s.Data == DataOk
}

func (s State) String() string {
	if s.Text == "" {
		return fmt.Sprintf("%s/%s/%s", s.Stream, s.Data, s.Code)
	}
	return fmt.Sprintf("%s/%s/%s %q", s.Stream, s.Data, s.Code, s.Text)
}

// Key identifies the item a stream carries.
type Key struct {
	Name         string
	HasServiceID bool
	ServiceID    uint16
	HasFilter    bool
	Filter       uint32
}
