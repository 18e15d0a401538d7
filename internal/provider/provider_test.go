package provider

import (
	"testing"
	"time"

	"github.com/danmuck/rdmsession/internal/auth"
	"github.com/danmuck/rdmsession/internal/consumer"
	"github.com/danmuck/rdmsession/internal/dictionary"
	"github.com/danmuck/rdmsession/internal/protocol/codec"
	"github.com/danmuck/rdmsession/internal/rdm"
	"github.com/danmuck/rdmsession/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

type captureWriter struct {
	frames [][]byte
}

func (w *captureWriter) Write(b []byte) error {
	w.frames = append(w.frames, append([]byte(nil), b...))
	return nil
}

func (w *captureWriter) take(t *testing.T) []codec.Msg {
	t.Helper()
	out := make([]codec.Msg, 0, len(w.frames))
	for _, b := range w.frames {
		m, err := codec.Decode(b)
		require.NoError(t, err)
		out = append(out, m)
	}
	w.frames = nil
	return out
}

func send(t *testing.T, p *Provider, w rdm.Writer, m codec.Msg) error {
	t.Helper()
	b, err := codec.Encode(m)
	require.NoError(t, err)
	return p.OnFrame(w, b)
}

func sampleConfig() Config {
	return Config{
		ServiceID:   3,
		ServiceName: "DIRECT_FEED",
		Vendor:      "rdmsession",
		QoS:         rdm.QoS{Timeliness: rdm.TimelinessRealtime, Rate: rdm.RateTickByTick},
		SupportRTT:  true,
		Items: map[string][]rdm.MarketField{
			"IBM.N": {{FID: 22, Value: "184.10"}, {FID: 25, Value: "184.12"}},
			"TRI.N": {{FID: 22, Value: "98.50"}},
		},
		SymbolLists: map[string][]string{"0#.DJI": {"IBM.N", "TRI.N"}},
	}
}

func loginRequest(id int32, user string) *codec.RequestMsg {
	return rdm.LoginRequest{StreamID: id, UserName: user, ApplicationID: "256", Position: "127.0.0.1", SupportRTT: true}.Msg()
}

func statusOf(t *testing.T, m codec.Msg) codec.State {
	t.Helper()
	status, ok := m.(*codec.StatusMsg)
	require.Truef(t, ok, "got %T", m)
	require.NotNil(t, status.State)
	return *status.State
}

func loggedInProvider(t *testing.T, cfg Config) (*Provider, *captureWriter) {
	t.Helper()
	p := New(cfg)
	w := &captureWriter{}
	require.NoError(t, send(t, p, w, loginRequest(1, "alice")))
	w.take(t)
	return p, w
}

func TestLoginAccepted(t *testing.T) {
	testlog.Start(t)
	p := New(sampleConfig())
	w := &captureWriter{}
	require.NoError(t, send(t, p, w, loginRequest(1, "alice")))

	msgs := w.take(t)
	require.Len(t, msgs, 1)
	refresh, err := rdm.DecodeLoginRefresh(msgs[0].(*codec.RefreshMsg))
	require.NoError(t, err)
	require.True(t, refresh.Solicited)
	require.True(t, refresh.State.IsOpenOk())
	require.Equal(t, "alice", refresh.UserName)
	require.True(t, refresh.Features.SupportRTT)
	require.Equal(t, "alice", p.User())
	require.Len(t, p.Streams(), 1)
}

func TestLoginRejectsDoNotCreateStreams(t *testing.T) {
	testlog.Start(t)
	cfg := sampleConfig()
	cfg.Validator = auth.UserList{Users: []string{"alice"}}
	p := New(cfg)
	w := &captureWriter{}

	require.NoError(t, send(t, p, w, loginRequest(1, "mallory")))
	st := statusOf(t, w.take(t)[0])
	require.Equal(t, codec.CodeNotEntitled, st.Code)
	require.Empty(t, p.Streams())
	require.Empty(t, p.User())

	require.NoError(t, send(t, p, w, loginRequest(1, "alice")))
	w.take(t)
	require.NoError(t, send(t, p, w, loginRequest(4, "alice")))
	st = statusOf(t, w.take(t)[0])
	require.Equal(t, LoginMaxRequestsReached.State(), st)
	require.Len(t, p.Streams(), 1)

	require.NoError(t, send(t, p, w, loginRequest(1, "alice")))
	_, reissued := w.take(t)[0].(*codec.RefreshMsg)
	require.True(t, reissued, "reissue on the open login stream is answered")
}

func TestRequestsBeforeLoginAreClosed(t *testing.T) {
	testlog.Start(t)
	p := New(sampleConfig())
	w := &captureWriter{}
	req := rdm.DirectoryRequest{StreamID: 2, Filter: rdm.FilterInfo, Streaming: true}
	require.NoError(t, send(t, p, w, req.Msg()))
	require.True(t, statusOf(t, w.take(t)[0]).IsFinal())
	require.Empty(t, p.Streams())
}

func TestDirectoryAdvertisesService(t *testing.T) {
	testlog.Start(t)
	p, w := loggedInProvider(t, sampleConfig())
	req := rdm.DirectoryRequest{StreamID: 2, Filter: rdm.FilterInfo | rdm.FilterState, Streaming: true}
	require.NoError(t, send(t, p, w, req.Msg()))

	refresh, err := rdm.DecodeDirectoryRefresh(w.take(t)[0].(*codec.RefreshMsg))
	require.NoError(t, err)
	require.Len(t, refresh.Services, 1)
	svc := refresh.Services[0]
	require.Equal(t, uint16(3), svc.ID)
	require.Equal(t, "DIRECT_FEED", svc.Info.Name)
	require.True(t, svc.Info.HasCapability(codec.DomainSymbolList))
	require.True(t, svc.HasState)
	require.Equal(t, rdm.ServiceUp, svc.State.ServiceState)
}

func TestDictionaryRejects(t *testing.T) {
	testlog.Start(t)
	cfg := sampleConfig()
	cfg.MaxDictionaryRequests = 1
	cfg.PartBytes = 200
	p, w := loggedInProvider(t, cfg)

	unknown := rdm.DictionaryRequest{StreamID: -1, ServiceID: 3, Name: "NoSuchDict", Streaming: true}
	require.NoError(t, send(t, p, w, unknown.Msg()))
	require.Equal(t, DictionaryUnknownName.State(), statusOf(t, w.take(t)[0]))
	require.Len(t, p.Streams(), 1, "reject must not create a stream")

	field := rdm.DictionaryRequest{StreamID: -1, ServiceID: 3, Name: dictionary.FieldDictionaryName, Streaming: true}
	require.NoError(t, send(t, p, w, field.Msg()))
	first := w.take(t)
	require.Len(t, first, 1)
	require.False(t, first[0].(*codec.RefreshMsg).Complete)
	require.Equal(t, 1, p.Pending())

	enum := rdm.DictionaryRequest{StreamID: -2, ServiceID: 3, Name: dictionary.EnumDictionaryName, Streaming: true}
	require.NoError(t, send(t, p, w, enum.Msg()))
	require.Equal(t, DictionaryMaxRequestsReached.State(), statusOf(t, w.take(t)[0]))
	for _, e := range p.Streams() {
		require.NotEqual(t, int32(-2), e.StreamID)
	}
}

func TestPumpFinishesDictionaryTransfer(t *testing.T) {
	testlog.Start(t)
	cfg := sampleConfig()
	cfg.PartBytes = 300
	p, w := loggedInProvider(t, cfg)

	field := rdm.DictionaryRequest{StreamID: -1, ServiceID: 3, Name: dictionary.FieldDictionaryName, Streaming: true}
	require.NoError(t, send(t, p, w, field.Msg()))
	parts := 1
	for p.Pending() > 0 {
		require.NoError(t, p.Pump(w))
		parts++
		require.Less(t, parts, 100)
	}
	msgs := w.take(t)
	require.Len(t, msgs, parts)

	got := dictionary.New()
	for i, m := range msgs {
		part, err := rdm.DecodeDictionaryRefresh(m.(*codec.RefreshMsg))
		require.NoError(t, err)
		require.Equal(t, i == 0, part.ClearCache)
		require.Equal(t, i == len(msgs)-1, part.Complete)
		for _, def := range part.Fields {
			require.NoError(t, got.AddField(def))
		}
	}
	require.Equal(t, dictionary.Builtin().NumFields(), got.NumFields())
	require.NoError(t, p.Pump(w))
	require.Empty(t, w.frames)
}

func TestItemRequests(t *testing.T) {
	testlog.Start(t)
	cfg := sampleConfig()
	cfg.MaxItems = 1
	p, w := loggedInProvider(t, cfg)

	ibm := rdm.ItemRequest{StreamID: 5, ServiceID: 3, Name: "IBM.N", Streaming: true}
	require.NoError(t, send(t, p, w, ibm.Msg()))
	refresh, err := rdm.DecodeMarketPriceRefresh(w.take(t)[0].(*codec.RefreshMsg))
	require.NoError(t, err)
	require.Equal(t, "IBM.N", refresh.Name)
	require.Len(t, refresh.Fields, 2)

	tri := rdm.ItemRequest{StreamID: 6, ServiceID: 3, Name: "TRI.N", Streaming: true}
	require.NoError(t, send(t, p, w, tri.Msg()))
	require.Equal(t, ItemCountReached.State(), statusOf(t, w.take(t)[0]))

	wrongService := rdm.ItemRequest{StreamID: 7, ServiceID: 9, Name: "IBM.N", Streaming: true}
	require.NoError(t, send(t, p, w, wrongService.Msg()))
	require.Equal(t, ItemInvalidServiceID.State(), statusOf(t, w.take(t)[0]))

	mbo := rdm.ItemRequest{StreamID: 8, Domain: codec.DomainMarketByOrder, ServiceID: 3, Name: "IBM.N", Streaming: true}
	require.NoError(t, send(t, p, w, mbo.Msg()))
	require.Equal(t, ItemDomainNotSupported.State(), statusOf(t, w.take(t)[0]))

	require.NoError(t, p.Publish(w, "IBM.N", []rdm.MarketField{{FID: 22, Value: "184.20"}}))
	update, ok := w.take(t)[0].(*codec.UpdateMsg)
	require.True(t, ok)
	require.Equal(t, int32(5), update.ID)

	require.NoError(t, send(t, p, w, rdm.Close(5, codec.DomainMarketPrice)))
	require.NoError(t, send(t, p, w, tri.Msg()))
	_, ok = w.take(t)[0].(*codec.RefreshMsg)
	require.True(t, ok, "closing an item frees capacity")

	unknown := rdm.ItemRequest{StreamID: 9, ServiceID: 3, Name: "NOPE.N", Streaming: true}
	require.NoError(t, send(t, p, w, rdm.Close(6, codec.DomainMarketPrice)))
	require.NoError(t, send(t, p, w, unknown.Msg()))
	require.Equal(t, ItemUnknownName.State(), statusOf(t, w.take(t)[0]))
}

func TestLoginCloseReleasesEverything(t *testing.T) {
	testlog.Start(t)
	p, w := loggedInProvider(t, sampleConfig())
	require.NoError(t, send(t, p, w, rdm.ItemRequest{StreamID: 5, ServiceID: 3, Name: "IBM.N", Streaming: true}.Msg()))
	require.Len(t, p.Streams(), 2)
	require.NoError(t, send(t, p, w, rdm.Close(1, codec.DomainLogin)))
	require.Empty(t, p.Streams())
	require.Empty(t, p.User())
}

func TestProviderRTTProbeAndEcho(t *testing.T) {
	testlog.Start(t)
	p, w := loggedInProvider(t, sampleConfig())
	now := time.Now()

	sent, err := p.ProbeRTT(w, now, time.Second)
	require.NoError(t, err)
	require.True(t, sent)
	sent, err = p.ProbeRTT(w, now.Add(500*time.Millisecond), time.Second)
	require.NoError(t, err)
	require.False(t, sent)
	probe, err := rdm.DecodeLoginRTT(w.take(t)[0].(*codec.GenericMsg))
	require.NoError(t, err)
	require.Equal(t, int32(1), probe.StreamID)

	peer := rdm.LoginRTT{StreamID: 1, Ticks: 99}
	require.NoError(t, send(t, p, w, peer.Msg()))
	echo, err := rdm.DecodeLoginRTT(w.take(t)[0].(*codec.GenericMsg))
	require.NoError(t, err)
	require.True(t, echo.Echo)
	require.Equal(t, uint64(99), echo.Ticks)
}

// pipe delivers frames written by one side to the other.
type pipe struct {
	queue [][]byte
}

func (p *pipe) Write(b []byte) error {
	p.queue = append(p.queue, append([]byte(nil), b...))
	return nil
}

func (p *pipe) drain() [][]byte {
	out := p.queue
	p.queue = nil
	return out
}

func TestConsumerAgainstProvider(t *testing.T) {
	testlog.Start(t)
	cfg := sampleConfig()
	cfg.PartBytes = 256
	prov := New(cfg)
	cons := consumer.New(consumer.Config{
		Login:              consumer.LoginConfig{UserName: "alice", ApplicationID: "256", SupportRTT: true},
		ServiceName:        "DIRECT_FEED",
		Items:              []string{"IBM.N", "TRI.N"},
		SymbolList:         "0#.DJI",
		DownloadDictionary: true,
	})
	toProvider, toConsumer := &pipe{}, &pipe{}

	for i := 0; i < 200 && cons.Stage() != consumer.StageReady; i++ {
		require.NoError(t, cons.Step(toProvider, time.Now()))
		for _, b := range toProvider.drain() {
			require.NoError(t, prov.OnFrame(toConsumer, b))
		}
		require.NoError(t, prov.Pump(toConsumer))
		for _, b := range toConsumer.drain() {
			require.NoError(t, cons.OnFrame(toProvider, b))
		}
	}
	require.Equal(t, consumer.StageReady, cons.Stage())
	require.True(t, cons.Dictionary().Complete())
	require.Equal(t, dictionary.Builtin().NumFields(), cons.FieldDictionary().NumFields())

	for _, b := range toProvider.drain() {
		require.NoError(t, prov.OnFrame(toConsumer, b))
	}
	for _, b := range toConsumer.drain() {
		require.NoError(t, cons.OnFrame(toProvider, b))
	}
	require.Equal(t, 2, cons.Items().Len())
	require.Equal(t, []string{"IBM.N", "TRI.N"}, cons.SymbolList().Symbols())
	require.True(t, cons.Services().IsRequestedServiceUp())
	require.True(t, cons.Login().Info().Features.SupportRTT)
}
