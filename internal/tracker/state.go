package tracker

import (
	"sync"
	"time"

	"github.com/banshee-data/marvelmind/internal/roster"
)

// DefaultHistory is how many fixes State keeps per device.
const DefaultHistory = 1024

// Fix is one accepted position of a device.
type Fix struct {
	At      time.Time       `json:"t"`
	Pos     roster.Position `json:"pos"`
	Quality uint8           `json:"q"`
}

// State is the read side shared with the HTTP and gRPC servers: the latest
// snapshot plus a bounded per-device history.
type State struct {
	mu      sync.RWMutex
	snap    Snapshot
	limit   int
	history map[uint8][]Fix
	open    bool
}

// NewState keeps at most limit fixes per device (DefaultHistory if <= 0).
func NewState(limit int) *State {
	if limit <= 0 {
		limit = DefaultHistory
	}
	return &State{limit: limit, history: make(map[uint8][]Fix)}
}

// Set replaces the latest snapshot without touching history.
func (s *State) Set(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
}

// Record stores snap as the latest and appends fresh to the history.
func (s *State) Record(snap Snapshot, fresh []roster.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	for _, d := range fresh {
		h := append(s.history[d.Address()], Fix{At: d.UpdatedAt(), Pos: d.Position(), Quality: d.Quality()})
		if len(h) > s.limit {
			h = append(h[:0:0], h[len(h)-s.limit:]...)
		}
		s.history[d.Address()] = h
	}
}

// Latest returns the most recent snapshot. Its roster is shared; callers
// must treat it as read-only.
func (s *State) Latest() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Devices returns the devices of the latest snapshot.
func (s *State) Devices() []roster.Device {
	return s.Latest().Devices()
}

// History returns a copy of the fixes recorded for address, oldest first.
func (s *State) History(address uint8) []Fix {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := s.history[address]
	out := make([]Fix, len(h))
	copy(out, h)
	return out
}

// SetOpen records whether the modem session is up.
func (s *State) SetOpen(open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = open
}

// Open reports whether the modem session is up.
func (s *State) Open() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.open
}
