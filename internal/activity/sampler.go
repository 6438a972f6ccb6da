package activity

import (
	"errors"
	"time"
)

// ErrSensorUnavailable is delivered when the requested sensor cannot produce
// readings (missing hardware or denied permission). Callers treat it the same
// as an empty sampling window.
var ErrSensorUnavailable = errors.New("sensor unavailable")

// AccelSample is one three-axis accelerometer reading.
type AccelSample struct {
	X, Y, Z float64
	At      time.Time
}

// GyroReading is one gyroscope orientation reading, per-axis in degrees.
type GyroReading struct {
	X, Y, Z float64
	At      time.Time
}

// SensorSampler wraps the device motion sensors behind time-bounded,
// fixed-frequency sampling requests. Requests complete exactly once: deliver
// is invoked with the collected window (or an error) and the request ends.
// There is no continuous subscription and no cancellation; a window always
// runs to completion once started.
type SensorSampler interface {
	// SampleAccelerometer collects accelerometer samples at hz for the given
	// window and delivers the batch when the window closes.
	SampleAccelerometer(hz int, window time.Duration, deliver func([]AccelSample, error))

	// ReadGyroscope delivers a single orientation reading.
	ReadGyroscope(deliver func(GyroReading, error))
}

// UnavailableSampler is a SensorSampler for environments without motion
// hardware. Every request fails softly with ErrSensorUnavailable.
type UnavailableSampler struct{}

func (UnavailableSampler) SampleAccelerometer(hz int, window time.Duration, deliver func([]AccelSample, error)) {
	deliver(nil, ErrSensorUnavailable)
}

func (UnavailableSampler) ReadGyroscope(deliver func(GyroReading, error)) {
	deliver(GyroReading{}, ErrSensorUnavailable)
}
