package tracker

import (
	"sync/atomic"
	"time"

	"github.com/banshee-data/marvelmind/internal/roster"
)

// Sink receives the devices of a snapshot that carry a fix newer than the
// last one the dispatcher delivered for their address.
type Sink interface {
	Consume(devices []roster.Device) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(devices []roster.Device) error

func (f SinkFunc) Consume(devices []roster.Device) error { return f(devices) }

// Dispatcher is the consumer side of the Poller channel.
type Dispatcher struct {
	state    *State
	sinks    []Sink
	lastSeen map[uint8]time.Time // owned by the Run goroutine
	failures atomic.Int64
}

// NewDispatcher fans fresh devices out to sinks. state may be nil.
func NewDispatcher(state *State, sinks ...Sink) *Dispatcher {
	return &Dispatcher{state: state, sinks: sinks, lastSeen: make(map[uint8]time.Time)}
}

// Fresh returns the devices in snap whose update time is strictly after the
// last one seen for that address, and remembers the new times. Devices that
// were never updated are never fresh.
func (d *Dispatcher) Fresh(snap Snapshot) []roster.Device {
	var fresh []roster.Device
	for _, dev := range snap.Devices() {
		prev := d.lastSeen[dev.Address()]
		if !dev.UpdatedAt().After(prev) {
			continue
		}
		d.lastSeen[dev.Address()] = dev.UpdatedAt()
		fresh = append(fresh, dev)
	}
	return fresh
}

// Handle filters one snapshot and delivers it. Sink errors are logged and
// counted; they do not stop delivery to the other sinks.
func (d *Dispatcher) Handle(snap Snapshot) []roster.Device {
	fresh := d.Fresh(snap)
	if d.state != nil {
		d.state.Record(snap, fresh)
	}
	if len(fresh) == 0 {
		return nil
	}
	for i, s := range d.sinks {
		if err := s.Consume(fresh); err != nil {
			d.failures.Add(1)
			logf("sink %d failed on snapshot %d: %v", i, snap.Seq, err)
		}
	}
	return fresh
}

// Failures returns how many sink deliveries have failed.
func (d *Dispatcher) Failures() int64 { return d.failures.Load() }

// Run handles snapshots until in is closed. It does not watch a context: the
// Poller closes in when it stops, and every snapshot queued before that is
// delivered.
func (d *Dispatcher) Run(in <-chan Snapshot) {
	for snap := range in {
		d.Handle(snap)
	}
}
