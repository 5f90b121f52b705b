package roster

import (
	"fmt"
	"time"
)

// Position is a fix in millimetres.
type Position struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
	Z int32 `json:"z"`
}

// Device is one member of the roster. Address is fixed at build time; the
// position, quality and update time only move together through Merge.
type Device struct {
	address    uint8
	Duplicated bool
	Sleeping   bool
	FwMajor    uint8
	FwMinor    uint8
	FwSecond   uint8
	Type       DeviceType
	TypeCode   uint8
	Connected  bool

	pos       Position
	quality   uint8
	updatedAt time.Time
}

// Address is the device's address within the session.
func (d Device) Address() uint8 { return d.address }

// Position returns the last accepted fix, or the zero position if none yet.
func (d Device) Position() Position { return d.pos }

// X, Y and Z are the last accepted coordinates in millimetres.
func (d Device) X() int32 { return d.pos.X }
func (d Device) Y() int32 { return d.pos.Y }
func (d Device) Z() int32 { return d.pos.Z }

// Quality is the last accepted quality, 0-100.
func (d Device) Quality() uint8 { return d.quality }

// UpdatedAt is the observation time of the last accepted fix. The zero time
// means the device has never been updated.
func (d Device) UpdatedAt() time.Time { return d.updatedAt }

// Tracking reports whether at least one fix has been accepted.
func (d Device) Tracking() bool { return !d.updatedAt.IsZero() }

// Firmware renders the firmware triplet, e.g. "6.7.1".
func (d Device) Firmware() string {
	return fmt.Sprintf("%d.%d.%d", d.FwMajor, d.FwMinor, d.FwSecond)
}

func (d Device) String() string {
	return fmt.Sprintf("address #%03d %s x %d y %d z %d q %d",
		d.address, d.Type, d.pos.X, d.pos.Y, d.pos.Z, d.quality)
}

// apply overwrites the fix as one group.
func (d *Device) apply(pos Position, quality uint8, at time.Time) {
	d.pos = pos
	d.quality = quality
	d.updatedAt = at
}
