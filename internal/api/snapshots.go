package api

import (
	"sort"
	"sync"
	"time"

	"chartscan/internal/instrument"
	"chartscan/internal/model"
)

// View is what the API knows about one instrument: its latest snapshot and
// the orders still pending on it.
type View struct {
	Snapshot  instrument.Snapshot `json:"snapshot"`
	Orders    []model.Order       `json:"orders"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// SnapshotStore keeps the latest View per symbol. Instrument goroutines
// write, HTTP handlers read; stored values are never mutated in place.
type SnapshotStore struct {
	mu    sync.RWMutex
	views map[string]View
	now   func() time.Time
}

// NewSnapshotStore creates an empty store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{views: make(map[string]View), now: time.Now}
}

// Put replaces the view of snap.Symbol. The caller hands over ownership of
// snap and orders.
func (s *SnapshotStore) Put(snap instrument.Snapshot, orders []model.Order) {
	v := View{Snapshot: snap, Orders: orders, UpdatedAt: s.now().UTC()}
	s.mu.Lock()
	s.views[snap.Symbol] = v
	s.mu.Unlock()
}

// Get returns the view of symbol.
func (s *SnapshotStore) Get(symbol string) (View, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.views[symbol]
	return v, ok
}

// Symbols lists the stored symbols, sorted.
func (s *SnapshotStore) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.views))
	for sym := range s.views {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of stored instruments.
func (s *SnapshotStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.views)
}
