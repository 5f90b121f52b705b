// Package units converts Marvelmind coordinates, which are always integer
// millimetres, into display units.
package units

import (
	"fmt"
	"strings"
)

// Distance unit names accepted in configuration and query strings.
const (
	MM = "mm"
	CM = "cm"
	M  = "m"
	IN = "in"
	FT = "ft"
)

// ValidUnits lists every accepted unit.
var ValidUnits = []string{MM, CM, M, IN, FT}

var perMillimetre = map[string]float64{
	MM: 1,
	CM: 0.1,
	M:  0.001,
	IN: 1 / 25.4,
	FT: 1 / 304.8,
}

// IsValid reports whether unit is a known distance unit.
func IsValid(unit string) bool {
	_, ok := perMillimetre[unit]
	return ok
}

// GetValidUnitsString returns the accepted units for error messages.
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// FromMillimetres converts mm to unit. Unknown units fall back to metres,
// which is what the console output uses.
func FromMillimetres(mm int32, unit string) float64 {
	f, ok := perMillimetre[unit]
	if !ok {
		f = perMillimetre[M]
	}
	return float64(mm) * f
}

// Format renders a coordinate in unit with a precision suited to it.
func Format(mm int32, unit string) string {
	v := FromMillimetres(mm, unit)
	switch unit {
	case MM:
		return fmt.Sprintf("%.0f", v)
	case CM:
		return fmt.Sprintf("%.1f", v)
	case IN, FT:
		return fmt.Sprintf("%.2f", v)
	default:
		return fmt.Sprintf("%.3f", v)
	}
}
