// Package units provides shared constants and conversion for speed units.
// The engine and store work in metres per second; conversion happens at
// the API boundary.
package units

// Unit constants accepted by the API's units query parameter.
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// ValidUnits contains all accepted unit values.
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

// IsValid reports whether unit is one of the accepted unit values.
func IsValid(unit string) bool {
	for _, v := range ValidUnits {
		if unit == v {
			return true
		}
	}
	return false
}

// ValidUnitsString returns a comma-separated list of accepted units for
// error messages.
func ValidUnitsString() string {
	return "mps, mph, kmph, kph"
}

// ConvertSpeed converts a speed in metres per second to the target
// units. Unknown units fall back to m/s.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return speedMPS * 2.23694
	case KMPH, KPH:
		return speedMPS * 3.6
	case MPS:
		return speedMPS
	default:
		return speedMPS
	}
}
