package transport

import (
	"math/rand"
	"testing"
	"time"

	"github.com/danmuck/rdmsession/internal/testutil/testlog"
)

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	}
	if got := NextBackoffDelay(cfg, 1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
}

func TestNextBackoffDelayJitterRange(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       true,
	}
	rng := rand.New(rand.NewSource(7))
	got := NextBackoffDelay(cfg, 3, rng)
	if got < 500*time.Millisecond || got > 1500*time.Millisecond {
		t.Fatalf("jitter out of range: %v", got)
	}
}

func TestReconnectorSchedulesAndResets(t *testing.T) {
	testlog.Start(t)
	r := NewReconnector(BackoffConfig{InitialDelay: time.Second, Multiplier: 2}, nil)
	now := time.Unix(1700000000, 0)
	if !r.Due(now) {
		t.Fatalf("fresh reconnector should be due")
	}
	due := r.Schedule(now)
	if due != now.Add(time.Second) {
		t.Fatalf("first due=%v", due)
	}
	if r.Due(now.Add(500 * time.Millisecond)) {
		t.Fatalf("due too early")
	}
	due = r.Schedule(due)
	if due != now.Add(3*time.Second) {
		t.Fatalf("second due=%v", due)
	}
	if r.Attempts() != 2 {
		t.Fatalf("attempts=%d", r.Attempts())
	}
	r.Reset()
	if r.Attempts() != 0 || !r.Due(now) {
		t.Fatalf("reset did not clear state")
	}
}

func TestNegotiateTakesSmallerPingTimeout(t *testing.T) {
	testlog.Start(t)
	client := connectParams{PingTimeout: 30 * time.Second, SubProtocol: SubProtocolJSON, MaxMsgSize: 1 << 20}
	got := negotiate(client, Options{PingTimeout: 60 * time.Second, MaxMsgSize: 1 << 16})
	if got.PingTimeout != 30*time.Second {
		t.Fatalf("ping timeout=%v", got.PingTimeout)
	}
	if got.MaxMsgSize != 1<<16 {
		t.Fatalf("max msg size=%d", got.MaxMsgSize)
	}
	if got.SubProtocol != SubProtocolBinary {
		t.Fatalf("json without converter should fall back, got %s", got.SubProtocol)
	}

	got = negotiate(client, Options{PingTimeout: 9 * time.Second})
	if got.PingTimeout != 9*time.Second {
		t.Fatalf("ping timeout=%v", got.PingTimeout)
	}
}

func TestPingIntervalIsThirdOfTimeoutUnlessOverridden(t *testing.T) {
	testlog.Start(t)
	if got := pingIntervalFor(30*time.Second, 0); got != 10*time.Second {
		t.Fatalf("derived interval=%v", got)
	}
	if got := pingIntervalFor(30*time.Second, 2*time.Second); got != 2*time.Second {
		t.Fatalf("override interval=%v", got)
	}
}

func TestConnectParamsRoundTrip(t *testing.T) {
	testlog.Start(t)
	in := connectParams{PingTimeout: 45 * time.Second, SubProtocol: SubProtocolJSON, MaxMsgSize: 4096, SessionID: "abc"}
	out, err := decodeConnectParams(in.encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out != in {
		t.Fatalf("got %+v want %+v", out, in)
	}
	if _, err := decodeConnectParams(nil); err == nil {
		t.Fatalf("expected error for missing ping timeout")
	}
}
