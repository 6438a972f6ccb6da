package activity

import (
	"time"

	"github.com/golang/geo/s2"
)

// earthRadiusMeters converts s2 angles to ground distance.
const earthRadiusMeters = 6371010.0

// LocationFix is a single location sample from the location subsystem. The
// engine consumes only Speed and Timestamp for the drive override; the
// coordinate is carried for speed derivation and telemetry correlation.
type LocationFix struct {
	Coordinate s2.LatLng
	// Speed in metres per second. Negative when the fix carries no speed.
	Speed          float64
	AccuracyMeters float64
	Timestamp      time.Time
}

// HasSpeed reports whether the fix carries a usable reported speed.
func (f LocationFix) HasSpeed() bool {
	return f.Speed >= 0
}

// DerivedSpeed computes ground speed between two fixes from their coordinates
// and timestamps, for fixes whose reported speed is missing. Returns -1 when
// the pair cannot produce a speed.
func DerivedSpeed(from, to LocationFix) float64 {
	dt := to.Timestamp.Sub(from.Timestamp).Seconds()
	if dt <= 0 {
		return -1
	}
	meters := from.Coordinate.Distance(to.Coordinate).Radians() * earthRadiusMeters
	return meters / dt
}
