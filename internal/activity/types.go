// Package activity implements the activity detection and classification
// engine: it turns noisy asynchronous motion-sensor observations into a
// non-overlapping timeline of semantic activity segments.
package activity

import (
	"time"

	"github.com/google/uuid"
)

// Type classifies what the device's carrier is doing during a segment.
type Type string

const (
	TypeWalk  Type = "walk"
	TypeRun   Type = "run"
	TypeStop  Type = "stop"
	TypeDrive Type = "drive"
	TypeCycle Type = "cycle"

	// TypeMoving is a transient raw classification meaning "in motion, mode
	// unclear". It is never persisted standalone: it resolves to the previous
	// confirmed type when that type is itself a moving type, and is discarded
	// otherwise.
	TypeMoving Type = "moving"

	// TypeUnknown marks timeline gaps caused by disabled services, denied
	// permissions, or the SDK not running. Always paired with an
	// UnknownReason.
	TypeUnknown Type = "unknown"
)

// IsMoving reports whether t is one of the locomotion types.
func (t Type) IsMoving() bool {
	switch t {
	case TypeWalk, TypeRun, TypeDrive, TypeCycle:
		return true
	}
	return false
}

// Valid reports whether t is a member of the closed enumeration.
func (t Type) Valid() bool {
	switch t {
	case TypeWalk, TypeRun, TypeStop, TypeDrive, TypeCycle, TypeMoving, TypeUnknown:
		return true
	}
	return false
}

// UnknownReason records why a segment is unknown rather than a real activity.
type UnknownReason string

const (
	ReasonLocationServicesDisabled UnknownReason = "location_services_disabled"
	ReasonLocationPermissionDenied UnknownReason = "location_permission_denied"
	ReasonMotionPermissionDenied   UnknownReason = "motion_permission_denied"
	ReasonDeviceOff                UnknownReason = "device_off"
	ReasonSdkInactive              UnknownReason = "sdk_inactive"
)

// reasonRank is the fixed priority table used to tie-break between two
// unknown segments. A higher rank pre-empts a lower one; equal ranks never
// pre-empt.
var reasonRank = map[UnknownReason]int{
	ReasonLocationServicesDisabled: 5,
	ReasonLocationPermissionDenied: 4,
	ReasonMotionPermissionDenied:   3,
	ReasonDeviceOff:                2,
	ReasonSdkInactive:              1,
}

// Outranks reports whether r has strictly higher priority than other.
func (r UnknownReason) Outranks(other UnknownReason) bool {
	return reasonRank[r] > reasonRank[other]
}

// Observation is a single raw classification delivered by the OS motion
// subsystem. Observations are ephemeral and never persisted.
type Observation struct {
	Type       Type
	Confidence float64
	ObservedAt time.Time
}

// Session identifies the tracking session and device that own the segments
// recorded while it is active.
type Session struct {
	SessionID string
	DeviceID  string
}

// Segment is one contiguous interval of the activity timeline. At most one
// segment is open (zero EndTime) at a time.
type Segment struct {
	// LookupID is the immutable primary key, assigned at creation.
	LookupID  string
	SessionID string
	DeviceID  string

	Type Type
	// UnknownReason is set iff Type is TypeUnknown.
	UnknownReason UnknownReason

	StartTime time.Time
	// EndTime is zero while the segment is open and set exactly once when the
	// segment is superseded.
	EndTime time.Time
	// RecordedAt is bumped on creation, on close, and on step enrichment.
	RecordedAt time.Time

	// Step enrichment, populated asynchronously for closed walk/stop segments.
	StepCount    *int64
	StepDistance *float64
}

// NewSegment returns an open segment of type t owned by session. StartTime is
// left zero; the manager stamps it at transition time.
func NewSegment(t Type, session Session) *Segment {
	return &Segment{
		LookupID:  uuid.NewString(),
		SessionID: session.SessionID,
		DeviceID:  session.DeviceID,
		Type:      t,
	}
}

// NewUnknownSegment returns an open unknown segment carrying reason.
func NewUnknownSegment(reason UnknownReason, session Session) *Segment {
	s := NewSegment(TypeUnknown, session)
	s.UnknownReason = reason
	return s
}

// Open reports whether the segment has not been closed yet.
func (s *Segment) Open() bool {
	return s.EndTime.IsZero()
}

// Contains reports whether t falls inside the segment's interval. An open
// segment matches any instant at or after its start.
func (s *Segment) Contains(t time.Time) bool {
	if t.Before(s.StartTime) {
		return false
	}
	return s.Open() || t.Before(s.EndTime)
}

// Clone returns a copy of the segment, including enrichment values.
func (s *Segment) Clone() *Segment {
	if s == nil {
		return nil
	}
	out := *s
	if s.StepCount != nil {
		v := *s.StepCount
		out.StepCount = &v
	}
	if s.StepDistance != nil {
		v := *s.StepDistance
		out.StepDistance = &v
	}
	return &out
}
