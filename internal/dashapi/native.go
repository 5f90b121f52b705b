//go:build dashapi

package dashapi

/*
#cgo LDFLAGS: -ldashapi
#include <stdbool.h>
#include <stdint.h>
#include <stdlib.h>

bool mm_get_last_error(void *pdata);
bool mm_api_version(void *pdata);
bool mm_open_port(void);
bool mm_close_port(void);
bool mm_get_devices_list(void *pdata);
bool mm_get_last_locations2(void *pdata);
*/
import "C"

import (
	"unsafe"
)

// NativeSource calls libdashapi through cgo. The library keeps global state,
// so a process should hold at most one open Session on it.
type NativeSource struct{}

// NewNativeSource returns the cgo-backed Source.
func NewNativeSource() (*NativeSource, error) {
	return &NativeSource{}, nil
}

func (NativeSource) APIVersion() (uint32, bool) {
	var v C.uint32_t
	ok := C.mm_api_version(unsafe.Pointer(&v))
	return uint32(v), bool(ok)
}

func (NativeSource) OpenPort() bool  { return bool(C.mm_open_port()) }
func (NativeSource) ClosePort() bool { return bool(C.mm_close_port()) }

func (NativeSource) DeviceList(buf []byte) bool {
	if len(buf) == 0 {
		return false
	}
	// the library writes into C memory; buf is copied afterwards so no Go
	// pointer is retained across the call
	cbuf := C.malloc(C.size_t(len(buf)))
	defer C.free(cbuf)
	ok := bool(C.mm_get_devices_list(cbuf))
	if ok {
		copy(buf, unsafe.Slice((*byte)(cbuf), len(buf)))
	}
	return ok
}

func (NativeSource) LastLocations(buf []byte) bool {
	if len(buf) == 0 {
		return false
	}
	cbuf := C.malloc(C.size_t(len(buf)))
	defer C.free(cbuf)
	ok := bool(C.mm_get_last_locations2(cbuf))
	if ok {
		copy(buf, unsafe.Slice((*byte)(cbuf), len(buf)))
	}
	return ok
}

func (NativeSource) LastError() (uint32, bool) {
	var code C.uint32_t
	ok := C.mm_get_last_error(unsafe.Pointer(&code))
	return uint32(code), bool(ok)
}
