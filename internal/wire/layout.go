// Package wire decodes the fixed-layout buffers filled by the Marvelmind
// dashboard API (libdashapi) into plain Go values.
//
// Two buffers are understood:
//
// DEVICE LIST (mm_get_devices_list, 2305 bytes by default):
// ├── Count (1 byte) - number of leading records that are valid
// └── Records (256 × 9 bytes)
//     └── address, duplicated, sleeping, fw major, fw minor, fw second,
//         type code, firmware option [reserved], flags (bit 0 = connected)
//
// LAST LOCATIONS (mm_get_last_locations2, 383 bytes by default):
// ├── Coordinates (6 × 20 bytes)
// │   └── address, head index [reserved], x/y/z int32 LE (mm),
// │       status flag [reserved], quality, 5 bytes [reserved]
// └── Trailer (263 bytes) - is-new flag, 5 bytes tbd, payload size, payload [not parsed]
//
// All multi-byte fields are little-endian and the records are packed, so the
// decoder reads field by field at fixed offsets and copies every scalar out.
// Nothing here validates meaning (quality bounds, type codes); that belongs to
// the roster package.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Record geometry. These values are fixed by the dashapi ABI.
const (
	RosterHeaderSize     = 1  // active-count byte
	RosterRecordSize     = 9  // packed MMDevice record
	CoordinateRecordSize = 20 // packed MMCoordinate record
	LocationsTrailerSize = 7  // is-new (1) + tbd (5) + payload size (1), payload follows

	DefaultRosterCapacity  = 256 // u8::MAX + 1 records
	DefaultCoordinateSlots = 6
	DefaultPayloadSize     = 256

	// StatusConnected is bit 0 of the roster flags byte.
	StatusConnected = 0x01
)

// Field offsets inside a roster record.
const (
	rosterOffAddress    = 0
	rosterOffDuplicated = 1
	rosterOffSleeping   = 2
	rosterOffFwMajor    = 3
	rosterOffFwMinor    = 4
	rosterOffFwSecond   = 5
	rosterOffTypeCode   = 6
	// offset 7: firmware option, reserved
	rosterOffFlags = 8
)

// Field offsets inside a coordinate record.
const (
	coordOffAddress = 0
	// offset 1: head index, reserved
	coordOffX = 2
	coordOffY = 6
	coordOffZ = 10
	// offset 14: status flag, reserved
	coordOffQuality = 15
	// offsets 16-19: tbd0, tbd1, tbd2 (u16), reserved
)

// ErrMalformedBuffer is matched (via errors.Is) by every decode failure caused
// by a buffer of the wrong size or an impossible active count.
var ErrMalformedBuffer = errors.New("malformed buffer")

// MalformedBufferError describes why a buffer was rejected.
type MalformedBufferError struct {
	Kind   string // "roster" or "locations"
	Reason string
}

func (e *MalformedBufferError) Error() string {
	return fmt.Sprintf("malformed %s buffer: %s", e.Kind, e.Reason)
}

func (e *MalformedBufferError) Is(target error) bool {
	return target == ErrMalformedBuffer
}

// Layout describes the static geometry of both buffers.
type Layout struct {
	RosterCapacity  int // number of roster records in the device list buffer
	CoordinateSlots int // number of coordinate records in the locations buffer
	PayloadSize     int // size of the opaque payload trailing the locations buffer
}

// DefaultLayout is the geometry used by libdashapi.
var DefaultLayout = Layout{
	RosterCapacity:  DefaultRosterCapacity,
	CoordinateSlots: DefaultCoordinateSlots,
	PayloadSize:     DefaultPayloadSize,
}

// check rejects geometries with a negative dimension, which no buffer can match.
func (l Layout) check(kind string) error {
	if l.RosterCapacity < 0 || l.CoordinateSlots < 0 || l.PayloadSize < 0 {
		return &MalformedBufferError{
			Kind:   kind,
			Reason: fmt.Sprintf("invalid layout %+v", l),
		}
	}
	return nil
}

// RosterSize returns the exact byte length of a device list buffer.
func (l Layout) RosterSize() int {
	return RosterHeaderSize + l.RosterCapacity*RosterRecordSize
}

// LocationsSize returns the exact byte length of a last-locations buffer.
func (l Layout) LocationsSize() int {
	return l.CoordinateSlots*CoordinateRecordSize + LocationsTrailerSize + l.PayloadSize
}

// RosterEntry is one decoded device list record.
type RosterEntry struct {
	Address    uint8
	Duplicated bool
	Sleeping   bool
	FwMajor    uint8
	FwMinor    uint8
	FwSecond   uint8
	TypeCode   uint8
	Flags      uint8
}

// Connected reports bit 0 of the status flags.
func (e RosterEntry) Connected() bool {
	return e.Flags&StatusConnected != 0
}

// RosterSnapshot holds the active records of a device list buffer, in buffer order.
type RosterSnapshot struct {
	Entries []RosterEntry
}

// CoordinateEntry is one decoded coordinate slot. Positions are in millimetres.
type CoordinateEntry struct {
	Address uint8
	X       int32
	Y       int32
	Z       int32
	Quality uint8
}

// LocationsSnapshot holds every coordinate slot of a last-locations buffer.
// Slots carry no count: each one is meaningful only if its address is known.
type LocationsSnapshot struct {
	Coordinates []CoordinateEntry
}

// DecodeRoster decodes a device list buffer using DefaultLayout.
func DecodeRoster(buf []byte) (RosterSnapshot, error) {
	return DefaultLayout.DecodeRoster(buf)
}

// DecodeLocations decodes a last-locations buffer using DefaultLayout.
func DecodeLocations(buf []byte) (LocationsSnapshot, error) {
	return DefaultLayout.DecodeLocations(buf)
}

// DecodeRoster validates the buffer size and active count, then decodes the
// first Count records. Records past the count are never read.
func (l Layout) DecodeRoster(buf []byte) (RosterSnapshot, error) {
	if err := l.check("roster"); err != nil {
		return RosterSnapshot{}, err
	}
	if len(buf) != l.RosterSize() {
		return RosterSnapshot{}, &MalformedBufferError{
			Kind:   "roster",
			Reason: fmt.Sprintf("expected %d bytes, got %d", l.RosterSize(), len(buf)),
		}
	}

	count := int(buf[0])
	if count > l.RosterCapacity {
		return RosterSnapshot{}, &MalformedBufferError{
			Kind:   "roster",
			Reason: fmt.Sprintf("active count %d exceeds capacity %d", count, l.RosterCapacity),
		}
	}

	entries := make([]RosterEntry, 0, count)
	for i := 0; i < count; i++ {
		off := RosterHeaderSize + i*RosterRecordSize
		entries = append(entries, decodeRosterRecord(buf[off:off+RosterRecordSize]))
	}
	return RosterSnapshot{Entries: entries}, nil
}

// DecodeLocations validates the buffer size and decodes every coordinate slot.
// The trailer (is-new flag, tbd bytes and payload) is not interpreted.
func (l Layout) DecodeLocations(buf []byte) (LocationsSnapshot, error) {
	if err := l.check("locations"); err != nil {
		return LocationsSnapshot{}, err
	}
	if len(buf) != l.LocationsSize() {
		return LocationsSnapshot{}, &MalformedBufferError{
			Kind:   "locations",
			Reason: fmt.Sprintf("expected %d bytes, got %d", l.LocationsSize(), len(buf)),
		}
	}

	coords := make([]CoordinateEntry, 0, l.CoordinateSlots)
	for i := 0; i < l.CoordinateSlots; i++ {
		off := i * CoordinateRecordSize
		coords = append(coords, decodeCoordinateRecord(buf[off:off+CoordinateRecordSize]))
	}
	return LocationsSnapshot{Coordinates: coords}, nil
}

func decodeRosterRecord(rec []byte) RosterEntry {
	return RosterEntry{
		Address:    rec[rosterOffAddress],
		Duplicated: rec[rosterOffDuplicated] != 0,
		Sleeping:   rec[rosterOffSleeping] != 0,
		FwMajor:    rec[rosterOffFwMajor],
		FwMinor:    rec[rosterOffFwMinor],
		FwSecond:   rec[rosterOffFwSecond],
		TypeCode:   rec[rosterOffTypeCode],
		Flags:      rec[rosterOffFlags],
	}
}

func decodeCoordinateRecord(rec []byte) CoordinateEntry {
	return CoordinateEntry{
		Address: rec[coordOffAddress],
		X:       int32(binary.LittleEndian.Uint32(rec[coordOffX : coordOffX+4])),
		Y:       int32(binary.LittleEndian.Uint32(rec[coordOffY : coordOffY+4])),
		Z:       int32(binary.LittleEndian.Uint32(rec[coordOffZ : coordOffZ+4])),
		Quality: rec[coordOffQuality],
	}
}
