package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/golang/geo/s2"

	"github.com/tracksense/activitykit/internal/activity"
)

// feedEvent is one NDJSON line on the UDP feed. Kind selects which of the
// remaining fields apply.
type feedEvent struct {
	Kind string `json:"kind"`

	// kind=motion
	Type       string  `json:"type,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`

	// kind=location
	Lat      float64  `json:"lat,omitempty"`
	Lng      float64  `json:"lng,omitempty"`
	Speed    *float64 `json:"speed,omitempty"`
	Accuracy float64  `json:"accuracy,omitempty"`
	Time     string   `json:"time,omitempty"`

	// kind=accel / kind=gyro
	X float64 `json:"x,omitempty"`
	Y float64 `json:"y,omitempty"`
	Z float64 `json:"z,omitempty"`

	// kind=lifecycle
	State string `json:"state,omitempty"`

	// kind=steps
	Count    int64   `json:"count,omitempty"`
	Distance float64 `json:"distance,omitempty"`

	// kind=conditions
	LocationServices   *bool `json:"location_services,omitempty"`
	LocationPermission *bool `json:"location_permission,omitempty"`
	MotionPermission   *bool `json:"motion_permission,omitempty"`
}

// feed consumes sensor and lifecycle events over UDP and routes them into
// the manager. Malformed lines are logged and skipped.
type feed struct {
	manager *activity.Manager
	sampler *feedSampler
	conds   *feedConditions
	steps   *feedSteps
	stop    func()
}

func newFeed(manager *activity.Manager, sampler *feedSampler, conds *feedConditions, steps *feedSteps, stop func()) *feed {
	return &feed{manager: manager, sampler: sampler, conds: conds, steps: steps, stop: stop}
}

// listen reads NDJSON datagrams from conn until it is closed.
func (f *feed) listen(conn net.PacketConn) {
	buf := make([]byte, 64*1024)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			log.Printf("feed listener stopped: %v", err)
			return
		}
		for _, line := range splitLines(buf[:n]) {
			if err := f.handleLine(line); err != nil {
				log.Printf("feed: skipping line: %v", err)
			}
		}
	}
}

func splitLines(b []byte) [][]byte {
	var out [][]byte
	start := 0
	for i, c := range b {
		if c == '\n' {
			if i > start {
				out = append(out, b[start:i])
			}
			start = i + 1
		}
	}
	if start < len(b) {
		out = append(out, b[start:])
	}
	return out
}

func (f *feed) handleLine(line []byte) error {
	var e feedEvent
	if err := json.Unmarshal(line, &e); err != nil {
		return fmt.Errorf("parse event: %w", err)
	}

	switch e.Kind {
	case "motion":
		t := activity.Type(e.Type)
		if !t.Valid() {
			return fmt.Errorf("unknown motion type %q", e.Type)
		}
		f.manager.OnMotionUpdate(t, e.Confidence)

	case "location":
		fix := activity.LocationFix{
			Coordinate:     s2.LatLngFromDegrees(e.Lat, e.Lng),
			Speed:          -1,
			AccuracyMeters: e.Accuracy,
			Timestamp:      time.Now(),
		}
		if e.Speed != nil {
			fix.Speed = *e.Speed
		}
		if e.Time != "" {
			ts, err := time.Parse(time.RFC3339Nano, e.Time)
			if err != nil {
				return fmt.Errorf("parse location time: %w", err)
			}
			fix.Timestamp = ts
		}
		f.manager.OnLocationUpdate(fix)

	case "accel":
		f.sampler.addAccel(activity.AccelSample{X: e.X, Y: e.Y, Z: e.Z, At: time.Now()})

	case "gyro":
		f.sampler.setGyro(activity.GyroReading{X: e.X, Y: e.Y, Z: e.Z, At: time.Now()})

	case "steps":
		if e.Count < 0 {
			return fmt.Errorf("negative step count %d", e.Count)
		}
		f.steps.add(stepRecord{count: e.Count, distance: e.Distance, at: time.Now()})

	case "lifecycle":
		switch e.State {
		case "foreground":
			f.manager.OnAppForeground()
		case "background":
			f.manager.OnAppBackground()
		case "terminate":
			f.stop()
		default:
			return fmt.Errorf("unknown lifecycle state %q", e.State)
		}

	case "conditions":
		f.conds.update(e)
		f.manager.Recheck()

	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return nil
}

// feedSampler adapts the UDP accelerometer/gyroscope events to the engine's
// one-shot sampling requests: a request waits out its window and then
// delivers whatever arrived during it.
type feedSampler struct {
	mu      sync.Mutex
	accel   []activity.AccelSample
	gyro    activity.GyroReading
	hasGyro bool
}

// maxBufferedAccel bounds the accelerometer buffer between requests.
const maxBufferedAccel = 8192

// gyroFreshness is how recent a gyro event must be to satisfy a read.
const gyroFreshness = 30 * time.Second

func newFeedSampler() *feedSampler {
	return &feedSampler{}
}

func (s *feedSampler) addAccel(sample activity.AccelSample) {
	s.mu.Lock()
	s.accel = append(s.accel, sample)
	if len(s.accel) > maxBufferedAccel {
		s.accel = append(s.accel[:0], s.accel[len(s.accel)-maxBufferedAccel:]...)
	}
	s.mu.Unlock()
}

func (s *feedSampler) setGyro(r activity.GyroReading) {
	s.mu.Lock()
	s.gyro = r
	s.hasGyro = true
	s.mu.Unlock()
}

func (s *feedSampler) SampleAccelerometer(hz int, window time.Duration, deliver func([]activity.AccelSample, error)) {
	start := time.Now()
	go func() {
		time.Sleep(window)
		s.mu.Lock()
		var collected []activity.AccelSample
		for _, sample := range s.accel {
			if !sample.At.Before(start) {
				collected = append(collected, sample)
			}
		}
		s.mu.Unlock()
		if len(collected) == 0 {
			deliver(nil, activity.ErrSensorUnavailable)
			return
		}
		deliver(collected, nil)
	}()
}

func (s *feedSampler) ReadGyroscope(deliver func(activity.GyroReading, error)) {
	s.mu.Lock()
	r, ok := s.gyro, s.hasGyro
	s.mu.Unlock()
	if !ok || time.Since(r.At) > gyroFreshness {
		deliver(activity.GyroReading{}, activity.ErrSensorUnavailable)
		return
	}
	deliver(r, nil)
}

// feedSteps accumulates incremental pedometer reports from the feed and
// serves the engine's step enrichment queries by summing the reports that
// fall inside a closed segment's interval.
type feedSteps struct {
	mu      sync.Mutex
	records []stepRecord
}

type stepRecord struct {
	count    int64
	distance float64
	at       time.Time
}

// maxBufferedSteps bounds the pedometer report buffer.
const maxBufferedSteps = 4096

func newFeedSteps() *feedSteps {
	return &feedSteps{}
}

func (p *feedSteps) add(rec stepRecord) {
	p.mu.Lock()
	p.records = append(p.records, rec)
	if len(p.records) > maxBufferedSteps {
		p.records = append(p.records[:0], p.records[len(p.records)-maxBufferedSteps:]...)
	}
	p.mu.Unlock()
}

func (p *feedSteps) Steps(ctx context.Context, start, end time.Time) (int64, float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.records) == 0 {
		return 0, 0, errors.New("no pedometer reports on the feed")
	}
	var count int64
	var distance float64
	for _, rec := range p.records {
		if rec.at.Before(start) || rec.at.After(end) {
			continue
		}
		count += rec.count
		distance += rec.distance
	}
	return count, distance, nil
}

// feedConditions holds the live permission/service state reported on the
// feed. Everything defaults to enabled.
type feedConditions struct {
	mu                 sync.Mutex
	locationServices   bool
	locationPermission bool
	motionPermission   bool
}

func newFeedConditions() *feedConditions {
	return &feedConditions{
		locationServices:   true,
		locationPermission: true,
		motionPermission:   true,
	}
}

func (c *feedConditions) update(e feedEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e.LocationServices != nil {
		c.locationServices = *e.LocationServices
	}
	if e.LocationPermission != nil {
		c.locationPermission = *e.LocationPermission
	}
	if e.MotionPermission != nil {
		c.motionPermission = *e.MotionPermission
	}
}

func (c *feedConditions) LocationServicesEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.locationServices
}

func (c *feedConditions) LocationPermissionGranted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.locationPermission
}

func (c *feedConditions) MotionPermissionGranted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.motionPermission
}
