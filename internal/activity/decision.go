package activity

// Conditions exposes the live permission and service state consulted when
// deciding whether an unknown segment's cause has cleared.
type Conditions interface {
	LocationServicesEnabled() bool
	LocationPermissionGranted() bool
	MotionPermissionGranted() bool
}

// Decision is the outcome of evaluating a candidate segment against the
// current one.
type Decision struct {
	Transition bool
	Reason     string
}

func transition(reason string) Decision { return Decision{Transition: true, Reason: reason} }
func drop(reason string) Decision       { return Decision{Transition: false, Reason: reason} }

// Decide applies the transition-gating rules to the (current, candidate)
// pair. It is pure apart from the live condition checks used for the
// unknown-to-normal recovery rule, so it can be exercised without sensors or
// persistence.
func Decide(current, candidate *Segment, conds Conditions) Decision {
	if current == nil {
		return transition("no current segment")
	}
	if current.SessionID != candidate.SessionID {
		return transition("session rollover")
	}

	curUnknown := current.Type == TypeUnknown
	candUnknown := candidate.Type == TypeUnknown

	switch {
	case !curUnknown && candUnknown:
		// Anomalies always pre-empt normal activity.
		return transition("unknown pre-empts " + string(current.Type))

	case curUnknown && !candUnknown:
		if reasonStillActive(current.UnknownReason, conds) {
			return drop("unknown cause still active: " + string(current.UnknownReason))
		}
		return transition("unknown cause cleared: " + string(current.UnknownReason))

	case curUnknown && candUnknown:
		if candidate.UnknownReason.Outranks(current.UnknownReason) {
			return transition("unknown reason outranked: " + string(candidate.UnknownReason))
		}
		return drop("unknown reason does not outrank current")

	default:
		if candidate.Type != current.Type {
			return transition(string(current.Type) + " -> " + string(candidate.Type))
		}
		return drop("same type as current")
	}
}

// reasonStillActive re-checks whether the condition behind an unknown reason
// still holds. DeviceOff and SdkInactive are considered resolved the moment a
// new candidate arrives; the remaining reasons are verified live.
func reasonStillActive(reason UnknownReason, conds Conditions) bool {
	if conds == nil {
		return false
	}
	switch reason {
	case ReasonLocationServicesDisabled:
		return !conds.LocationServicesEnabled()
	case ReasonLocationPermissionDenied:
		return !conds.LocationPermissionGranted()
	case ReasonMotionPermissionDenied:
		return !conds.MotionPermissionGranted()
	}
	return false
}
