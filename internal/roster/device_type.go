package roster

import (
	"errors"
	"fmt"
)

// DeviceType is the hardware model of a Marvelmind device.
type DeviceType int

const (
	DeviceTypeUnknown DeviceType = iota // only produced under RelaxedTypes
	BeaconHwV45
	BeaconHwV45Hedgehog
	ModemHwV49
	BeaconHwV49
	BeaconHwV49Hedgehog
	BeaconMiniRx
	BeaconMiniTx
	BeaconTxIp67
	BeaconIndustrialRx
	SuperBeacon
	SuperBeaconHedgehog
	IndustrialSuperBeacon
	IndustrialSuperBeaconHedgehog
	SuperModem
	ModemHwV51
)

// typeCodes maps the one-byte hardware id reported in the device list to a model.
var typeCodes = map[byte]DeviceType{
	22: BeaconHwV45,
	23: BeaconHwV45Hedgehog,
	24: ModemHwV49,
	30: BeaconHwV49,
	31: BeaconHwV49Hedgehog,
	32: BeaconMiniRx,
	36: BeaconMiniTx,
	37: BeaconTxIp67,
	41: BeaconIndustrialRx,
	42: SuperBeacon,
	43: SuperBeaconHedgehog,
	44: IndustrialSuperBeacon,
	45: IndustrialSuperBeaconHedgehog,
	46: SuperModem,
	48: ModemHwV51,
}

var typeNames = map[DeviceType]string{
	DeviceTypeUnknown:             "Unknown",
	BeaconHwV45:                   "Beacon HW V4.5",
	BeaconHwV45Hedgehog:           "Beacon HW V4.5 (hedgehog mode)",
	ModemHwV49:                    "Modem HW V4.9",
	BeaconHwV49:                   "Beacon HW V4.9",
	BeaconHwV49Hedgehog:           "Beacon HW V4.9 (hedgehog mode)",
	BeaconMiniRx:                  "Beacon Mini-RX",
	BeaconMiniTx:                  "Beacon Mini-TX",
	BeaconTxIp67:                  "Beacon-TX-IP67",
	BeaconIndustrialRx:            "Beacon industrial-RX",
	SuperBeacon:                   "Super-Beacon",
	SuperBeaconHedgehog:           "Super-Beacon (hedgehog mode)",
	IndustrialSuperBeacon:         "Industrial Super-Beacon",
	IndustrialSuperBeaconHedgehog: "Industrial Super-Beacon (hedgehog mode)",
	SuperModem:                    "Super-Modem",
	ModemHwV51:                    "Modem HW V5.1",
}

func (t DeviceType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("DeviceType(%d)", int(t))
}

// IsModem reports whether the model is a modem rather than a beacon.
func (t DeviceType) IsModem() bool {
	return t == ModemHwV49 || t == ModemHwV51 || t == SuperModem
}

// ErrUnknownDeviceType is matched by every UnknownDeviceTypeError.
var ErrUnknownDeviceType = errors.New("unknown device type")

// UnknownDeviceTypeError carries the unrecognised hardware code.
type UnknownDeviceTypeError struct {
	Code byte
}

func (e *UnknownDeviceTypeError) Error() string {
	return fmt.Sprintf("unknown device type id: %d", e.Code)
}

func (e *UnknownDeviceTypeError) Is(target error) bool {
	return target == ErrUnknownDeviceType
}

// ClassifyType resolves a hardware code. Unknown codes are returned as an
// *UnknownDeviceTypeError, never defaulted.
func ClassifyType(code byte) (DeviceType, error) {
	if t, ok := typeCodes[code]; ok {
		return t, nil
	}
	return DeviceTypeUnknown, &UnknownDeviceTypeError{Code: code}
}

// TypePolicy decides what a roster build does with an unrecognised type code.
type TypePolicy int

const (
	// StrictTypes aborts the build on the first unknown code.
	StrictTypes TypePolicy = iota
	// RelaxedTypes keeps the device as DeviceTypeUnknown with its raw code.
	RelaxedTypes
)

func (p TypePolicy) String() string {
	switch p {
	case StrictTypes:
		return "strict"
	case RelaxedTypes:
		return "relaxed"
	default:
		return fmt.Sprintf("TypePolicy(%d)", int(p))
	}
}
