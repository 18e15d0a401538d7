//go:build linux

package node

import (
	"testing"
	"time"

	"github.com/danmuck/rdmsession/internal/config"
	"github.com/danmuck/rdmsession/internal/consumer"
	"github.com/danmuck/rdmsession/internal/protocol/codec"
	"github.com/danmuck/rdmsession/internal/testutil/testlog"
	"github.com/danmuck/rdmsession/internal/transport"
)

const tick = 2 * time.Millisecond

func providerConfig() config.ProviderConfig {
	cfg := config.DefaultProviderConfig()
	cfg.Listen = "127.0.0.1:0"
	cfg.DictionaryPartBytes = 512
	cfg.Items = []config.ItemConfig{
		{Name: "IBM.N", Fields: map[string]string{"22": "184.10", "25": "184.12"}},
		{Name: "TRI.N", Fields: map[string]string{"22": "98.50"}},
	}
	cfg.SymbolLists = []config.SymbolListConfig{{Name: "0#.DJI", Symbols: []string{"IBM.N", "TRI.N"}}}
	return cfg
}

func consumerConfig(addr string) config.ConsumerConfig {
	cfg := config.DefaultConsumerConfig()
	cfg.Address = addr
	cfg.User = "alice"
	cfg.Items = []string{"IBM.N", "TRI.N"}
	cfg.SymbolList = "0#.DJI"
	cfg.DownloadDictionary = true
	return cfg
}

func newPair(t *testing.T, pcfg config.ProviderConfig) (*ProviderNode, *ConsumerNode) {
	t.Helper()
	prov, err := NewProvider(pcfg)
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	t.Cleanup(func() { _ = prov.Close() })
	cons, err := NewConsumer(consumerConfig(prov.Addr()))
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}
	t.Cleanup(func() { _ = cons.Close() })
	return prov, cons
}

func runUntil(t *testing.T, nodes []Node, cond func() bool) {
	t.Helper()
	for i := 0; i < 5000; i++ {
		for _, n := range nodes {
			if err := n.Tick(tick); err != nil {
				t.Fatalf("%s tick: %v", n.Kind(), err)
			}
		}
		if cond() {
			return
		}
	}
	t.Fatalf("condition not reached")
}

func openItems(c *consumer.Consumer) int {
	n := 0
	for _, e := range c.Streams() {
		if e.Domain == codec.DomainMarketPrice && e.State.IsOpenOk() {
			n++
		}
	}
	return n
}

func TestConsumerReachesReadyAgainstProvider(t *testing.T) {
	testlog.Start(t)
	prov, cons := newPair(t, providerConfig())

	runUntil(t, []Node{cons, prov}, func() bool {
		c := cons.Consumer()
		return c.Stage() == consumer.StageReady && openItems(c) == 2 && len(c.SymbolList().Symbols()) == 2
	})

	c := cons.Consumer()
	if !c.Dictionary().Complete() {
		t.Fatalf("dictionary incomplete at ready")
	}
	if cons.Session().State() != transport.StateActive {
		t.Fatalf("unexpected session state: %s", cons.Session().State())
	}
	if prov.Peers() != 1 {
		t.Fatalf("expected one peer, got %d", prov.Peers())
	}
}

func TestConsumerReplaysHandshakesAfterProviderRestart(t *testing.T) {
	testlog.Start(t)
	pcfg := providerConfig()
	prov, cons := newPair(t, pcfg)
	runUntil(t, []Node{cons, prov}, func() bool { return cons.Consumer().Stage() == consumer.StageReady })

	addr := prov.Addr()
	if err := prov.Close(); err != nil {
		t.Fatalf("close provider: %v", err)
	}
	runUntil(t, []Node{cons}, func() bool { return cons.Session().ShouldRecover() })
	if cons.Consumer().Stage() != consumer.StageLogin {
		t.Fatalf("expected reset to login stage, got %s", cons.Consumer().Stage())
	}

	pcfg.Listen = addr
	restarted, err := NewProvider(pcfg)
	if err != nil {
		t.Fatalf("restart provider: %v", err)
	}
	t.Cleanup(func() { _ = restarted.Close() })
	cons.Reconnector().Reset()
	runUntil(t, []Node{cons, restarted}, func() bool {
		return cons.Consumer().Stage() == consumer.StageReady && openItems(cons.Consumer()) == 2
	})
}

func TestRejectedLoginStopsConsumer(t *testing.T) {
	testlog.Start(t)
	pcfg := providerConfig()
	pcfg.Users = []string{"bob"}
	prov, cons := newPair(t, pcfg)

	var err error
	for i := 0; i < 5000 && err == nil; i++ {
		if err = prov.Tick(tick); err != nil {
			t.Fatalf("provider tick: %v", err)
		}
		err = cons.Tick(tick)
	}
	if err == nil {
		t.Fatalf("expected login refusal")
	}
	if st := cons.Consumer().Login().State(); st.Code != codec.CodeNotEntitled {
		t.Fatalf("unexpected login state: %s", st)
	}
}

func TestRefusedDictionaryRestartsConnection(t *testing.T) {
	testlog.Start(t)
	pcfg := providerConfig()
	pcfg.MaxDictionaryRequests = 1
	prov, cons := newPair(t, pcfg)

	runUntil(t, []Node{cons, prov}, func() bool {
		return cons.Reconnector().Attempts() > 0
	})
	if cons.Consumer().Stage() != consumer.StageLogin {
		t.Fatalf("expected reset to login stage, got %s", cons.Consumer().Stage())
	}
	if !cons.Session().ShouldRecover() {
		t.Fatalf("session not marked for recovery")
	}
}
