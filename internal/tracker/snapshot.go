// Package tracker runs the acquisition loop: a single Poller owns the session
// and the roster, and hands cloned snapshots to a Dispatcher that filters
// them per device and fans them out to sinks.
package tracker

import (
	"time"

	"github.com/banshee-data/marvelmind/internal/roster"
)

// Snapshot is an owned copy of the roster taken right after a merge changed it.
type Snapshot struct {
	Seq     uint64
	At      time.Time
	Roster  *roster.Roster
	Updated []uint8 // addresses advanced by this merge
}

// Devices is shorthand for s.Roster.Devices(); it tolerates an empty snapshot.
func (s Snapshot) Devices() []roster.Device {
	if s.Roster == nil {
		return nil
	}
	return s.Roster.Devices()
}
