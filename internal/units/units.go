// Package units provides speed unit validation and conversion. The engine
// and the store work in metres per second; other units exist for display and
// for flag input only.
package units

import "fmt"

const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// ValidUnits lists every accepted unit value.
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

// IsValid reports whether unit is an accepted unit value.
func IsValid(unit string) bool {
	for _, v := range ValidUnits {
		if unit == v {
			return true
		}
	}
	return false
}

// FromMPS converts a speed in metres per second to the target units.
func FromMPS(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return speedMPS * 2.2369362920544
	case KMPH, KPH:
		return speedMPS * 3.6
	default:
		return speedMPS
	}
}

// ToMPS converts a speed in the given units to metres per second.
func ToMPS(speed float64, fromUnits string) float64 {
	switch fromUnits {
	case MPH:
		return speed / 2.2369362920544
	case KMPH, KPH:
		return speed / 3.6
	default:
		return speed
	}
}

// Validate returns a descriptive error for an unaccepted unit value.
func Validate(unit string) error {
	if !IsValid(unit) {
		return fmt.Errorf("invalid units %q (valid: mps, mph, kmph, kph)", unit)
	}
	return nil
}
