// Package watchlist tracks the streams open on one connection: the fixed
// well-known handshake streams and the item streams allocated on demand.
//
// A WatchList belongs to the goroutine that owns the connection and is not
// safe for concurrent use.
package watchlist

import (
	"errors"
	"fmt"

	"github.com/danmuck/rdmsession/internal/protocol/codec"
)

// StartStreamID is the first id Allocate hands out. Lower ids are reserved
// for the login, directory and dictionary streams.
const StartStreamID int32 = 5

var ErrReservedStreamID = errors.New("watchlist: stream id reserved for allocation")

// Entry is one tracked stream.
type Entry struct {
	StreamID int32
	Domain   codec.DomainType
	Name     string
	Private  bool
	State    codec.State

	// Dynamic marks entries created by Allocate.
	Dynamic bool
}

// WatchList maps stream ids to entries and remembers insertion order.
type WatchList struct {
	next    int32
	entries map[int32]*Entry
	order   []int32
}

// New creates an empty registry whose first allocation is StartStreamID.
func New() *WatchList {
	return &WatchList{
		next:    StartStreamID,
		entries: make(map[int32]*Entry),
	}
}

// Allocate registers a new item stream and returns its id. Ids are never
// reused for the life of the WatchList, Clear included.
func (w *WatchList) Allocate(domain codec.DomainType, name string, private bool) int32 {
	id := w.next
	w.next++
	w.insert(&Entry{
		StreamID: id,
		Domain:   domain,
		Name:     name,
		Private:  private,
		State:    initialState(),
		Dynamic:  true,
	})
	return id
}

// Track registers or resets a stream with a fixed id such as the login
// stream. Ids in the allocation range are refused.
func (w *WatchList) Track(id int32, domain codec.DomainType, name string, private bool) error {
	if id >= StartStreamID {
		return fmt.Errorf("%w: %d", ErrReservedStreamID, id)
	}
	if e, ok := w.entries[id]; ok {
		e.Domain = domain
		e.Name = name
		e.Private = private
		e.State = initialState()
		return nil
	}
	w.insert(&Entry{
		StreamID: id,
		Domain:   domain,
		Name:     name,
		Private:  private,
		State:    initialState(),
	})
	return nil
}

func (w *WatchList) insert(e *Entry) {
	w.entries[e.StreamID] = e
	w.order = append(w.order, e.StreamID)
}

// Get returns a copy of the entry for id.
func (w *WatchList) Get(id int32) (Entry, bool) {
	e, ok := w.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Remove drops id and reports whether it was present.
func (w *WatchList) Remove(id int32) bool {
	if _, ok := w.entries[id]; !ok {
		return false
	}
	delete(w.entries, id)
	for i, v := range w.order {
		if v == id {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
	return true
}

// Clear drops every entry. The allocation counter keeps counting.
func (w *WatchList) Clear() {
	w.entries = make(map[int32]*Entry)
	w.order = nil
}

func (w *WatchList) Len() int { return len(w.entries) }

// SetState records the stream and data state of id. Unknown ids are
// ignored and reported as false.
func (w *WatchList) SetState(id int32, state codec.State) bool {
	e, ok := w.entries[id]
	if !ok {
		return false
	}
	e.State = state
	return true
}

// FirstOpenItem returns the earliest allocated stream that is Open/Ok.
// It is a linear scan; the list is bounded by open item count.
func (w *WatchList) FirstOpenItem() (int32, string, bool) {
	for _, id := range w.order {
		e := w.entries[id]
		if e.Dynamic && e.State.IsOpenOk() {
			return id, e.Name, true
		}
	}
	return 0, "", false
}

// Snapshot copies the entries in insertion order.
func (w *WatchList) Snapshot() []Entry {
	out := make([]Entry, 0, len(w.order))
	for _, id := range w.order {
		out = append(out, *w.entries[id])
	}
	return out
}

func initialState() codec.State {
	return codec.State{Stream: codec.StreamUnspecified, Data: codec.DataNoChange}
}
