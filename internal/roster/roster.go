// Package roster holds the set of Marvelmind devices known to a session and
// folds coordinate snapshots into it.
package roster

import (
	"fmt"

	"github.com/banshee-data/marvelmind/internal/wire"
)

// Roster is the ordered device list built from one device list snapshot.
// It is not safe for concurrent use; callers hand Clone()s across goroutines.
type Roster struct {
	layout  wire.Layout
	devices []Device
	index   map[uint8][]int // address -> positions in devices, roster order
}

type buildOptions struct {
	layout wire.Layout
	policy TypePolicy
}

// Option configures Build.
type Option func(*buildOptions)

// WithLayout overrides the buffer geometry (default wire.DefaultLayout).
// The same layout is used to decode coordinate snapshots in Merge.
func WithLayout(l wire.Layout) Option {
	return func(o *buildOptions) { o.layout = l }
}

// WithTypePolicy selects how unknown hardware codes are handled (default StrictTypes).
func WithTypePolicy(p TypePolicy) Option {
	return func(o *buildOptions) { o.policy = p }
}

// Build decodes a device list buffer into a Roster. Devices keep buffer order
// and start in the never-updated state.
func Build(buf []byte, opts ...Option) (*Roster, error) {
	o := buildOptions{layout: wire.DefaultLayout, policy: StrictTypes}
	for _, opt := range opts {
		opt(&o)
	}

	snap, err := o.layout.DecodeRoster(buf)
	if err != nil {
		return nil, err
	}

	r := &Roster{
		layout:  o.layout,
		devices: make([]Device, 0, len(snap.Entries)),
		index:   make(map[uint8][]int, len(snap.Entries)),
	}

	for i, e := range snap.Entries {
		dtype, err := ClassifyType(e.TypeCode)
		if err != nil && o.policy == StrictTypes {
			return nil, fmt.Errorf("roster entry %d (address %d): %w", i, e.Address, err)
		}

		r.devices = append(r.devices, Device{
			address:    e.Address,
			Duplicated: e.Duplicated,
			Sleeping:   e.Sleeping,
			FwMajor:    e.FwMajor,
			FwMinor:    e.FwMinor,
			FwSecond:   e.FwSecond,
			Type:       dtype,
			TypeCode:   e.TypeCode,
			Connected:  e.Connected(),
		})
		r.index[e.Address] = append(r.index[e.Address], len(r.devices)-1)
	}

	return r, nil
}

// Len returns the number of devices.
func (r *Roster) Len() int { return len(r.devices) }

// Devices returns a copy of the devices in roster order.
func (r *Roster) Devices() []Device {
	out := make([]Device, len(r.devices))
	copy(out, r.devices)
	return out
}

// Lookup returns the first device with the given address.
func (r *Roster) Lookup(address uint8) (Device, bool) {
	idx := r.index[address]
	if len(idx) == 0 {
		return Device{}, false
	}
	return r.devices[idx[0]], true
}

// Clone returns an independent copy that shares no mutable state with r.
func (r *Roster) Clone() *Roster {
	c := &Roster{
		layout:  r.layout,
		devices: r.Devices(),
		index:   make(map[uint8][]int, len(r.index)),
	}
	for addr, idx := range r.index {
		c.index[addr] = append([]int(nil), idx...)
	}
	return c
}
