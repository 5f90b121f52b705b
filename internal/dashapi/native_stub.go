//go:build !dashapi

package dashapi

import "fmt"

// NativeSource is unavailable without the dashapi build tag. Every call fails.
type NativeSource struct{}

// NewNativeSource is a stub that returns an error when libdashapi support is
// not compiled in.
func NewNativeSource() (*NativeSource, error) {
	return nil, fmt.Errorf("libdashapi support not compiled in: rebuild with -tags=dashapi")
}

func (NativeSource) APIVersion() (uint32, bool)    { return 0, false }
func (NativeSource) OpenPort() bool                { return false }
func (NativeSource) ClosePort() bool               { return false }
func (NativeSource) DeviceList(buf []byte) bool    { return false }
func (NativeSource) LastLocations(buf []byte) bool { return false }
func (NativeSource) LastError() (uint32, bool)     { return 0, false }
