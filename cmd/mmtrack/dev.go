package main

import (
	"math"

	"github.com/banshee-data/marvelmind/internal/dashapi"
	"github.com/banshee-data/marvelmind/internal/wire"
)

const (
	devHedgehog    = 11
	devEvery       = 64   // polls between simulated fixes
	devRevolutions = 4000 // polls per lap
	devRadius      = 2000 // mm
)

// devSource simulates a modem, four stationary beacons and a hedgehog
// circling the room. Beacons report once; the hedgehog every devEvery polls.
func devSource() *dashapi.MockSource {
	m := dashapi.NewMockSource(
		wire.RosterEntry{Address: 1, TypeCode: 48, FwMajor: 7, FwMinor: 200, Flags: wire.StatusConnected},
		wire.RosterEntry{Address: 2, TypeCode: 42, FwMajor: 7, FwMinor: 200, Flags: wire.StatusConnected},
		wire.RosterEntry{Address: 3, TypeCode: 42, FwMajor: 7, FwMinor: 200, Flags: wire.StatusConnected},
		wire.RosterEntry{Address: 4, TypeCode: 42, FwMajor: 7, FwMinor: 200, Flags: wire.StatusConnected},
		wire.RosterEntry{Address: 5, TypeCode: 42, FwMajor: 7, FwMinor: 200, Flags: wire.StatusConnected},
		wire.RosterEntry{Address: devHedgehog, TypeCode: 43, FwMajor: 7, FwMinor: 200, Flags: wire.StatusConnected},
	)
	m.SetVersion(7)
	m.PushLocations(
		wire.CoordinateEntry{Address: 2, X: 0, Y: 0, Z: 2500, Quality: 100},
		wire.CoordinateEntry{Address: 3, X: 6000, Y: 0, Z: 2500, Quality: 100},
		wire.CoordinateEntry{Address: 4, X: 6000, Y: 6000, Z: 2500, Quality: 100},
		wire.CoordinateEntry{Address: 5, X: 0, Y: 6000, Z: 2500, Quality: 100},
	)
	m.Generator = devHedgehogPath
	return m
}

func devHedgehogPath(n int) []wire.CoordinateEntry {
	if n%devEvery != 0 {
		return nil
	}
	return []wire.CoordinateEntry{devHedgehogAt(n)}
}

// devHedgehogAt is the hedgehog's position on poll n.
func devHedgehogAt(n int) wire.CoordinateEntry {
	a := 2 * math.Pi * float64(n%devRevolutions) / devRevolutions
	return wire.CoordinateEntry{
		Address: devHedgehog,
		X:       3000 + int32(math.Round(devRadius*math.Cos(a))),
		Y:       3000 + int32(math.Round(devRadius*math.Sin(a))),
		Z:       500,
		Quality: 90,
	}
}
