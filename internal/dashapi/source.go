// Package dashapi talks to the Marvelmind dashboard library (libdashapi) and
// turns its boolean-returning calls into a scoped Session with classified
// errors.
//
// The library fills caller-provided buffers whose layout is described by the
// wire package. A Source is anything that can fill them: the native library
// (build tag dashapi), a scripted MockSource, or a ReplaySource reading a
// capture file.
package dashapi

// Source is the acquisition contract of libdashapi. Every call returns false on
// failure, after which LastError reports the raw error code.
type Source interface {
	// APIVersion returns the library version.
	APIVersion() (uint32, bool)
	// OpenPort tries once to open the modem's serial port.
	OpenPort() bool
	// ClosePort closes the modem's serial port.
	ClosePort() bool
	// DeviceList fills buf with a device list snapshot. len(buf) must equal
	// the layout's RosterSize.
	DeviceList(buf []byte) bool
	// LastLocations fills buf with the most recent coordinate snapshot.
	// len(buf) must equal the layout's LocationsSize.
	LastLocations(buf []byte) bool
	// LastError returns the code of the last failure. ok is false when the
	// lookup itself failed.
	LastError() (code uint32, ok bool)
}
