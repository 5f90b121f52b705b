// Package testutil builds device list and last-locations buffers for tests
// across packages.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/marvelmind/internal/wire"
)

// RosterBuf encodes entries into a device list buffer with the default layout.
func RosterBuf(t testing.TB, entries ...wire.RosterEntry) []byte {
	t.Helper()
	buf, err := wire.EncodeRoster(entries)
	require.NoError(t, err)
	return buf
}

// LocationsBuf encodes coords into a last-locations buffer with the default
// layout. Unused slots read as invalid.
func LocationsBuf(t testing.TB, coords ...wire.CoordinateEntry) []byte {
	t.Helper()
	buf, err := wire.EncodeLocations(coords)
	require.NoError(t, err)
	return buf
}

// Beacon is a connected stationary beacon (HW v4.9) at address.
func Beacon(address uint8) wire.RosterEntry {
	return wire.RosterEntry{Address: address, TypeCode: 30, FwMajor: 7, FwMinor: 2, Flags: wire.StatusConnected}
}

// Hedgehog is a connected mobile beacon (HW v4.9 hedgehog) at address.
func Hedgehog(address uint8) wire.RosterEntry {
	return wire.RosterEntry{Address: address, TypeCode: 31, FwMajor: 7, FwMinor: 2, Flags: wire.StatusConnected}
}

// Fix is a coordinate slot for address with the given position in
// millimetres and quality.
func Fix(address uint8, x, y, z int32, quality uint8) wire.CoordinateEntry {
	return wire.CoordinateEntry{Address: address, X: x, Y: y, Z: z, Quality: quality}
}
