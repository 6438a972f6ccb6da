package activity

import (
	"math"
	"sync"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/tracksense/activitykit/internal/monitoring"
)

// HelperConfig holds the sampling windows and score thresholds for raw-sensor
// confirmation.
type HelperConfig struct {
	SampleRateHz int

	// Drive confirmation: long accelerometer window, high movement threshold.
	DriveWindow         time.Duration
	DriveScoreSamples   int
	DriveScoreThreshold float64

	// Walk/stop confirmation: short accelerometer window plus one gyroscope
	// orientation reading.
	WalkWindow         time.Duration
	WalkScoreSamples   int
	WalkScoreThreshold float64

	// NoiseFloor excludes near-zero readings from the movement score.
	NoiseFloor float64
}

// DefaultHelperConfig returns the production sensor-confirmation thresholds.
func DefaultHelperConfig() HelperConfig {
	return HelperConfig{
		SampleRateHz:        10,
		DriveWindow:         60 * time.Second,
		DriveScoreSamples:   500,
		DriveScoreThreshold: 50.0,
		WalkWindow:          20 * time.Second,
		WalkScoreSamples:    50,
		WalkScoreThreshold:  40.0,
		NoiseFloor:          0.1,
	}
}

// ConfirmationHelper derives a candidate activity type from raw accelerometer
// and gyroscope readings. It is the fallback when the analyzer's statistical
// pass is inconclusive. One sampling request may be in flight per helper; a
// request made while sampling degrades to no confirmation rather than
// queueing.
type ConfirmationHelper struct {
	sampler SensorSampler
	config  HelperConfig

	mu       sync.Mutex
	sampling bool
}

// NewConfirmationHelper creates a helper over the given sampler.
func NewConfirmationHelper(sampler SensorSampler, config HelperConfig) *ConfirmationHelper {
	return &ConfirmationHelper{sampler: sampler, config: config}
}

func (h *ConfirmationHelper) beginSampling() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sampling {
		return false
	}
	h.sampling = true
	return true
}

func (h *ConfirmationHelper) endSampling() {
	h.mu.Lock()
	h.sampling = false
	h.mu.Unlock()
}

// ConfirmDrive requests a long accelerometer window and reports drive through
// confirm when the movement score clears the drive threshold. Sensor
// failures and sub-threshold scores produce no confirmation.
func (h *ConfirmationHelper) ConfirmDrive(confirm func(Type)) {
	if !h.beginSampling() {
		return
	}
	h.sampler.SampleAccelerometer(h.config.SampleRateHz, h.config.DriveWindow, func(samples []AccelSample, err error) {
		defer h.endSampling()
		if err != nil {
			monitoring.Logf("drive confirmation: sampling failed: %v", err)
			return
		}
		score := h.movementScore(samples, h.config.DriveScoreSamples)
		monitoring.Logf("drive confirmation: score=%.2f threshold=%.2f %s",
			score, h.config.DriveScoreThreshold, computeMotionFeatures(samples))
		if score > h.config.DriveScoreThreshold {
			confirm(TypeDrive)
		}
	})
}

// ConfirmWalkOrStop requests a short accelerometer window plus one gyroscope
// orientation reading and reports walk or stop through confirm. Missing
// sensor readings produce no confirmation.
func (h *ConfirmationHelper) ConfirmWalkOrStop(confirm func(Type)) {
	if !h.beginSampling() {
		return
	}
	h.sampler.SampleAccelerometer(h.config.SampleRateHz, h.config.WalkWindow, func(samples []AccelSample, err error) {
		if err != nil {
			h.endSampling()
			monitoring.Logf("walk/stop confirmation: sampling failed: %v", err)
			return
		}
		score := h.movementScore(samples, h.config.WalkScoreSamples)
		h.sampler.ReadGyroscope(func(r GyroReading, gerr error) {
			defer h.endSampling()
			if gerr != nil {
				monitoring.Logf("walk/stop confirmation: gyroscope failed: %v", gerr)
				return
			}
			result := classifyWalkOrStop(r, score, h.config.WalkScoreThreshold)
			monitoring.Logf("walk/stop confirmation: score=%.2f gyro=(%.1f,%.1f,%.1f) -> %s %s",
				score, r.X, r.Y, r.Z, result, computeMotionFeatures(samples))
			confirm(result)
		})
	})
}

// movementScore is a recency-weighted, rectified aggregate of per-axis
// accelerometer readings over the most recent n samples: sample weight decays
// linearly with age, readings below the noise floor are excluded, each axis
// sum is scaled by 100/n, and the final score is the mean across the three
// axes.
func (h *ConfirmationHelper) movementScore(samples []AccelSample, n int) float64 {
	if len(samples) == 0 || n <= 0 {
		return 0
	}
	window := samples
	if len(window) > n {
		window = window[len(window)-n:]
	}

	var sums [3]float64
	count := len(window)
	for i, s := range window {
		// Newest sample carries full weight, oldest 1/count.
		weight := float64(i+1) / float64(count)
		for axis, v := range [3]float64{s.X, s.Y, s.Z} {
			if math.Abs(v) < h.config.NoiseFloor {
				continue
			}
			sums[axis] += weight * math.Abs(v)
		}
	}

	scale := 100.0 / float64(n)
	score, err := stats.Mean(stats.Float64Data{sums[0] * scale, sums[1] * scale, sums[2] * scale})
	if err != nil {
		return 0
	}
	return score
}

// classifyWalkOrStop applies the gyroscope orientation rule ladder. Rules are
// evaluated strictly in order; m is the movement score.
func classifyWalkOrStop(r GyroReading, m, threshold float64) Type {
	walkOrStop := func() Type {
		if m > threshold {
			return TypeWalk
		}
		return TypeStop
	}
	y, z := r.Y, r.Z
	switch {
	case math.Abs(z) > 70:
		return TypeStop
	case math.Abs(y) > 160:
		return TypeStop
	case y >= 30 && y < 95:
		return walkOrStop()
	case y >= 95 && y < 120:
		return TypeStop
	case math.Round(z) == 0 && math.Round(y) == 0:
		return TypeStop
	default:
		return walkOrStop()
	}
}
