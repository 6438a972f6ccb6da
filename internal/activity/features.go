package activity

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// motionFeatures summarises an accelerometer window for diagnostics attached
// to confirmation decisions.
type motionFeatures struct {
	MagnitudeMean   float64
	MagnitudeStdDev float64
	Count           int
}

func computeMotionFeatures(samples []AccelSample) motionFeatures {
	if len(samples) == 0 {
		return motionFeatures{}
	}
	mags := make([]float64, len(samples))
	for i, s := range samples {
		mags[i] = math.Sqrt(s.X*s.X + s.Y*s.Y + s.Z*s.Z)
	}
	mean, std := stat.MeanStdDev(mags, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return motionFeatures{
		MagnitudeMean:   mean,
		MagnitudeStdDev: std,
		Count:           len(mags),
	}
}

func (f motionFeatures) String() string {
	return fmt.Sprintf("n=%d mag_mean=%.3f mag_std=%.3f", f.Count, f.MagnitudeMean, f.MagnitudeStdDev)
}
