package wire

import (
	"encoding/binary"
	"fmt"
)

// QualityInvalid is written into unused coordinate slots so that they can never
// be accepted by a merge.
const QualityInvalid = 0xFF

// EncodeRoster builds a device list buffer holding entries as the active records.
// It is the inverse of DecodeRoster and is used by mock and replay sources.
func (l Layout) EncodeRoster(entries []RosterEntry) ([]byte, error) {
	if err := l.check("roster"); err != nil {
		return nil, err
	}
	if len(entries) > l.RosterCapacity || len(entries) > 0xFF {
		return nil, fmt.Errorf("too many roster entries: %d (capacity %d)", len(entries), l.RosterCapacity)
	}

	buf := make([]byte, l.RosterSize())
	buf[0] = uint8(len(entries))
	for i, e := range entries {
		rec := buf[RosterHeaderSize+i*RosterRecordSize:]
		rec[rosterOffAddress] = e.Address
		rec[rosterOffDuplicated] = boolByte(e.Duplicated)
		rec[rosterOffSleeping] = boolByte(e.Sleeping)
		rec[rosterOffFwMajor] = e.FwMajor
		rec[rosterOffFwMinor] = e.FwMinor
		rec[rosterOffFwSecond] = e.FwSecond
		rec[rosterOffTypeCode] = e.TypeCode
		rec[rosterOffFlags] = e.Flags
	}
	return buf, nil
}

// EncodeLocations builds a last-locations buffer. Slots beyond len(coords) are
// left with address 0 and QualityInvalid.
func (l Layout) EncodeLocations(coords []CoordinateEntry) ([]byte, error) {
	if err := l.check("locations"); err != nil {
		return nil, err
	}
	if len(coords) > l.CoordinateSlots {
		return nil, fmt.Errorf("too many coordinates: %d (slots %d)", len(coords), l.CoordinateSlots)
	}

	buf := make([]byte, l.LocationsSize())
	for i := 0; i < l.CoordinateSlots; i++ {
		rec := buf[i*CoordinateRecordSize : (i+1)*CoordinateRecordSize]
		if i >= len(coords) {
			rec[coordOffQuality] = QualityInvalid
			continue
		}
		c := coords[i]
		rec[coordOffAddress] = c.Address
		binary.LittleEndian.PutUint32(rec[coordOffX:], uint32(c.X))
		binary.LittleEndian.PutUint32(rec[coordOffY:], uint32(c.Y))
		binary.LittleEndian.PutUint32(rec[coordOffZ:], uint32(c.Z))
		rec[coordOffQuality] = c.Quality
	}
	return buf, nil
}

// EncodeRoster encodes entries using DefaultLayout.
func EncodeRoster(entries []RosterEntry) ([]byte, error) {
	return DefaultLayout.EncodeRoster(entries)
}

// EncodeLocations encodes coords using DefaultLayout.
func EncodeLocations(coords []CoordinateEntry) ([]byte, error) {
	return DefaultLayout.EncodeLocations(coords)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
