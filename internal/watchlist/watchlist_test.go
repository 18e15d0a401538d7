package watchlist

import (
	"errors"
	"testing"

	"github.com/danmuck/rdmsession/internal/protocol/codec"
	"github.com/danmuck/rdmsession/internal/testutil/testlog"
)

var openOk = codec.State{Stream: codec.StreamOpen, Data: codec.DataOk}

func TestAllocateIsMonotonicAndNeverReused(t *testing.T) {
	testlog.Start(t)
	w := New()
	seen := make(map[int32]bool)
	last := StartStreamID - 1
	for i := 0; i < 50; i++ {
		id := w.Allocate(codec.DomainMarketPrice, "IBM.N", false)
		if id < StartStreamID {
			t.Fatalf("allocated reserved id %d", id)
		}
		if id <= last || seen[id] {
			t.Fatalf("id %d not increasing after %d", id, last)
		}
		seen[id] = true
		last = id
		if i%3 == 0 {
			w.Remove(id)
		}
	}
	w.Clear()
	if id := w.Allocate(codec.DomainMarketPrice, "IBM.N", false); id <= last {
		t.Fatalf("clear reset the counter: got %d after %d", id, last)
	}
}

func TestTrackFixedIDs(t *testing.T) {
	testlog.Start(t)
	w := New()
	if err := w.Track(1, codec.DomainLogin, "alice", false); err != nil {
		t.Fatalf("track: %v", err)
	}
	w.SetState(1, openOk)
	if err := w.Track(1, codec.DomainLogin, "bob", false); err != nil {
		t.Fatalf("retrack: %v", err)
	}
	e, ok := w.Get(1)
	if !ok || e.Name != "bob" || e.State.Stream != codec.StreamUnspecified || e.Dynamic {
		t.Fatalf("entry=%+v ok=%v", e, ok)
	}
	if w.Len() != 1 {
		t.Fatalf("len=%d", w.Len())
	}
	if err := w.Track(StartStreamID, codec.DomainLogin, "x", false); !errors.Is(err, ErrReservedStreamID) {
		t.Fatalf("expected ErrReservedStreamID, got %v", err)
	}
}

func TestSetStateExactIDOnly(t *testing.T) {
	testlog.Start(t)
	w := New()
	id := w.Allocate(codec.DomainMarketPrice, "TRI.N", false)
	if w.SetState(id+1, openOk) {
		t.Fatalf("set state on unknown id succeeded")
	}
	if !w.SetState(id, openOk) {
		t.Fatalf("set state failed")
	}
	if e, _ := w.Get(id); !e.State.IsOpenOk() {
		t.Fatalf("state=%s", e.State)
	}
}

func TestFirstOpenItemUsesInsertionOrder(t *testing.T) {
	testlog.Start(t)
	w := New()
	_ = w.Track(1, codec.DomainLogin, "alice", false)
	w.SetState(1, openOk)
	a := w.Allocate(codec.DomainMarketPrice, "A", false)
	b := w.Allocate(codec.DomainMarketPrice, "B", false)
	c := w.Allocate(codec.DomainMarketPrice, "C", false)

	if _, _, ok := w.FirstOpenItem(); ok {
		t.Fatalf("fixed login stream reported as item")
	}
	w.SetState(c, openOk)
	w.SetState(b, openOk)
	id, name, ok := w.FirstOpenItem()
	if !ok || id != b || name != "B" {
		t.Fatalf("first open=%d %q %v", id, name, ok)
	}
	w.SetState(a, codec.State{Stream: codec.StreamOpen, Data: codec.DataSuspect})
	if id, _, _ := w.FirstOpenItem(); id != b {
		t.Fatalf("suspect item chosen: %d", id)
	}
	w.Remove(b)
	if id, _, _ := w.FirstOpenItem(); id != c {
		t.Fatalf("after remove got %d", id)
	}
}

func TestSnapshotAndRemove(t *testing.T) {
	testlog.Start(t)
	w := New()
	_ = w.Track(2, codec.DomainSource, "", false)
	id := w.Allocate(codec.DomainSymbolList, "0#.INDEX", true)
	snap := w.Snapshot()
	if len(snap) != 2 || snap[0].StreamID != 2 || snap[1].StreamID != id || !snap[1].Private {
		t.Fatalf("snapshot=%+v", snap)
	}
	snap[0].Name = "mutated"
	if e, _ := w.Get(2); e.Name != "" {
		t.Fatalf("snapshot aliases registry")
	}
	if !w.Remove(id) || w.Remove(id) {
		t.Fatalf("remove not idempotent")
	}
	if _, ok := w.Get(id); ok {
		t.Fatalf("removed entry still present")
	}
}
