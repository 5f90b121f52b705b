package roster

import (
	"time"
)

// MaxQuality is the highest meaningful quality value. Anything above it is a
// sentinel from the modem and is rejected, not clamped.
const MaxQuality = 100

// MergeResult reports what one coordinate snapshot did to the roster.
type MergeResult struct {
	Updated        []uint8 // address of every device whose fix advanced, in slot then roster order
	Unmatched      int     // slots whose address is not in the roster
	InvalidQuality int     // matched slots rejected for quality > MaxQuality
	Stale          int     // device updates skipped because the fix was not newer
}

// Changed reports whether any device advanced.
func (m MergeResult) Changed() bool { return len(m.Updated) > 0 }

// Merge folds a last-locations buffer observed at observedAt into the roster and
// reports whether any device changed.
func (r *Roster) Merge(buf []byte, observedAt time.Time) (bool, error) {
	res, err := r.MergeDetailed(buf, observedAt)
	if err != nil {
		return false, err
	}
	return res.Changed(), nil
}

// MergeDetailed is Merge with per-slot accounting.
//
// A slot is applied only if its address is in the roster, its quality is at
// most MaxQuality and observedAt is strictly after the device's last update.
// A slot applies to every device sharing its address, each checked against its
// own last update. Every other slot is skipped without error. Devices are never added or
// removed, and replaying a snapshot at the same or an earlier time is a no-op.
func (r *Roster) MergeDetailed(buf []byte, observedAt time.Time) (MergeResult, error) {
	snap, err := r.layout.DecodeLocations(buf)
	if err != nil {
		return MergeResult{}, err
	}

	var res MergeResult
	for _, c := range snap.Coordinates {
		idx := r.index[c.Address]
		if len(idx) == 0 {
			res.Unmatched++
			continue
		}
		if c.Quality > MaxQuality {
			res.InvalidQuality++
			continue
		}
		for _, i := range idx {
			dev := &r.devices[i]
			if !observedAt.After(dev.updatedAt) {
				res.Stale++
				continue
			}
			dev.apply(Position{X: c.X, Y: c.Y, Z: c.Z}, c.Quality, observedAt)
			res.Updated = append(res.Updated, c.Address)
		}
	}
	return res, nil
}
