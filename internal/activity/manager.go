package activity

import (
	"context"
	"sync"
	"time"

	"github.com/tracksense/activitykit/internal/monitoring"
	"github.com/tracksense/activitykit/internal/timeutil"
)

// ManagerConfig holds the orchestration thresholds for the manager.
type ManagerConfig struct {
	// SpeedThresholdMps is the location speed above which drive is confirmed
	// immediately, bypassing the statistical pipeline.
	SpeedThresholdMps float64
	// MaxFixAge is how old a location fix may be and still trigger the
	// speed override.
	MaxFixAge time.Duration

	// WatchdogInterval is the liveness ticker period.
	WatchdogInterval time.Duration
	// WatchdogStale is the tick gap beyond which the process is assumed to
	// have been suspended and an sdk-inactive segment covers the gap.
	WatchdogStale time.Duration

	// MaxHistory bounds the in-memory observation history.
	MaxHistory int
}

// DefaultManagerConfig returns the production manager thresholds.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		SpeedThresholdMps: 6.0,
		MaxFixAge:         120 * time.Second,
		WatchdogInterval:  300 * time.Second,
		WatchdogStale:     600 * time.Second,
		MaxHistory:        512,
	}
}

// Events carries the callbacks emitted by the manager. Callbacks run on the
// goroutine performing the transition and must not call back into the
// manager. Nil callbacks are skipped.
type Events struct {
	// ActivityChanged fires after a transition, with the new current segment
	// and the just-closed one (nil on the very first transition).
	ActivityChanged func(current, previous *Segment)
	// ActivityUpdated fires when a closed segment gains step enrichment.
	ActivityUpdated func(seg *Segment)
	// TrackingStopped fires when StopTracking closes the current segment.
	TrackingStopped func(seg *Segment)
}

// ManagerDeps are the collaborators injected into a Manager. Clock defaults
// to the real clock; a nil Helper is replaced by one over an unavailable
// sampler so sensor confirmation degrades softly.
type ManagerDeps struct {
	Clock      timeutil.Clock
	Store      SegmentStore
	Analyzer   *Analyzer
	Helper     *ConfirmationHelper
	Conditions Conditions
	Steps      StepProvider
	Events     Events
}

// Manager owns the current-activity state machine. It reacts to OS motion
// updates, location fixes, app lifecycle signals, and a periodic liveness
// watchdog, and emits segment change/update/end events. All mutations of the
// current segment are funnelled through one mutex so a transition runs to
// completion without interleaving with another.
type Manager struct {
	clock    timeutil.Clock
	store    SegmentStore
	analyzer *Analyzer
	helper   *ConfirmationHelper
	conds    Conditions
	steps    StepProvider
	config   ManagerConfig
	events   Events

	// mu serializes transitions and guards current, session, running and the
	// watchdog bookkeeping.
	mu       sync.RWMutex
	current  *Segment
	session  Session
	running  bool
	lastTick time.Time
	ticker   timeutil.Ticker
	stopCh   chan struct{}

	// obsMu guards the observation history, the analyzer, and the last fix.
	obsMu   sync.Mutex
	history []Observation
	lastFix LocationFix
	hasFix  bool
}

// NewManager wires a manager from its collaborators.
func NewManager(deps ManagerDeps, config ManagerConfig) *Manager {
	clock := deps.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	analyzer := deps.Analyzer
	if analyzer == nil {
		analyzer = NewAnalyzer(clock, DefaultAnalyzerConfig())
	}
	helper := deps.Helper
	if helper == nil {
		helper = NewConfirmationHelper(UnavailableSampler{}, DefaultHelperConfig())
	}
	return &Manager{
		clock:    clock,
		store:    deps.Store,
		analyzer: analyzer,
		helper:   helper,
		conds:    deps.Conditions,
		steps:    deps.Steps,
		config:   config,
		events:   deps.Events,
	}
}

// StartTracking begins a tracking session: segments confirmed from here on
// carry the session's ids, and the liveness watchdog starts ticking.
func (m *Manager) StartTracking(session Session) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.session = session
	m.running = true
	m.lastTick = m.clock.Now()
	m.ticker = m.clock.NewTicker(m.config.WatchdogInterval)
	m.stopCh = make(chan struct{})
	ticker, stopCh := m.ticker, m.stopCh
	m.mu.Unlock()

	go m.watchdogLoop(ticker, stopCh)
	m.Recheck()
}

// StopTracking cancels the watchdog and forces a segment-ended transition:
// the current segment is closed without opening a successor. In-flight
// sensor sampling windows run to completion; confirmations they deliver
// after the stop are dropped by the tracking-stopped gate.
func (m *Manager) StopTracking() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.ticker.Stop()
	close(m.stopCh)

	closed := m.current
	if closed != nil {
		now := m.clock.Now()
		closed.EndTime = now
		closed.RecordedAt = now
		if err := m.store.Update(closed); err != nil {
			monitoring.Logf("segment close not persisted on stop: %v", err)
		}
		m.current = nil
	}
	m.mu.Unlock()

	if closed != nil {
		if m.events.TrackingStopped != nil {
			m.events.TrackingStopped(closed.Clone())
		}
		if closed.Type == TypeWalk || closed.Type == TypeStop {
			go m.enrichSteps(closed.Clone())
		}
	}
}

// OnMotionUpdate ingests one raw classification from the OS motion
// subsystem and dispatches the confirmation pipeline: continuity check, then
// weighted vote, then raw-sensor confirmation, short-circuiting on the first
// success.
func (m *Manager) OnMotionUpdate(raw Type, confidence float64) {
	if raw == TypeUnknown || !raw.Valid() {
		return
	}

	curType, hasCur := m.currentType()
	if raw == TypeMoving {
		// Moving resolves against the current type or not at all.
		if !hasCur || !curType.IsMoving() {
			return
		}
		raw = curType
	}

	obs := Observation{Type: raw, Confidence: confidence, ObservedAt: m.clock.Now()}

	m.obsMu.Lock()
	m.history = append(m.history, obs)
	if max := m.config.MaxHistory; max > 0 && len(m.history) > max {
		m.history = append(m.history[:0], m.history[len(m.history)-max:]...)
	}
	snap := make([]Observation, len(m.history))
	copy(snap, m.history)

	if hasCur && raw == curType {
		m.obsMu.Unlock()
		return
	}

	if first, ok := m.analyzer.CheckContinuity(snap, raw); ok {
		m.obsMu.Unlock()
		monitoring.Logf("continuity confirmed %s (run began %s)", raw, first.ObservedAt.Format(time.RFC3339))
		m.confirmType(raw)
		return
	}
	winner, voted := m.analyzer.CheckWeightedVote(obs, snap)
	m.obsMu.Unlock()

	if voted && winner == raw {
		monitoring.Logf("weighted vote confirmed %s", winner)
		m.confirmType(winner)
		return
	}

	switch {
	case raw == TypeDrive:
		m.helper.ConfirmDrive(m.confirmType)
	case (raw == TypeWalk || raw == TypeStop) && curType != TypeDrive:
		m.helper.ConfirmWalkOrStop(m.confirmType)
	}
}

// OnLocationUpdate applies the speed override: a fresh fix moving faster
// than the drive threshold confirms drive immediately, independent of the
// motion pipeline. Fixes without a reported speed fall back to the speed
// derived from the previous fix.
func (m *Manager) OnLocationUpdate(fix LocationFix) {
	m.obsMu.Lock()
	if !fix.HasSpeed() && m.hasFix {
		fix.Speed = DerivedSpeed(m.lastFix, fix)
	}
	m.lastFix = fix
	m.hasFix = true
	m.obsMu.Unlock()

	if m.clock.Since(fix.Timestamp) >= m.config.MaxFixAge {
		return
	}
	if !fix.HasSpeed() || fix.Speed <= m.config.SpeedThresholdMps {
		return
	}
	if t, ok := m.currentType(); ok && t == TypeDrive {
		return
	}
	monitoring.Logf("speed override: %.1f m/s exceeds %.1f m/s, confirming drive", fix.Speed, m.config.SpeedThresholdMps)
	m.confirmType(TypeDrive)
}

// OnAppForeground handles the app returning to the foreground.
func (m *Manager) OnAppForeground() {
	m.refreshWatchdog()
	m.Recheck()
}

// OnAppBackground handles the app moving to the background.
func (m *Manager) OnAppBackground() {
	m.refreshWatchdog()
	m.Recheck()
}

// ReportDeviceOff records that the device was powered down, opening an
// unknown segment with the device-off reason.
func (m *Manager) ReportDeviceOff() {
	m.confirmUnknown(ReasonDeviceOff)
}

// Recheck re-evaluates the live permission and service state and opens an
// unknown segment when a degraded condition is found. Degraded states are
// data, not errors: the timeline stays continuous through them.
func (m *Manager) Recheck() {
	if m.conds == nil {
		return
	}
	switch {
	case !m.conds.LocationServicesEnabled():
		m.confirmUnknown(ReasonLocationServicesDisabled)
	case !m.conds.LocationPermissionGranted():
		m.confirmUnknown(ReasonLocationPermissionDenied)
	case !m.conds.MotionPermissionGranted():
		m.confirmUnknown(ReasonMotionPermissionDenied)
	}
}

// OnActivityConfirmation feeds a candidate segment into the transition gate.
// The decision and the resulting mutation happen inside one critical section
// so racing confirmations are absorbed by the no-op check rather than
// double-opening. Candidates arriving after StopTracking are dropped: a
// sensor window that outlives the session must not restart the timeline.
func (m *Manager) OnActivityConfirmation(candidate *Segment) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		monitoring.Logf("confirmation %s dropped: tracking stopped", candidate.Type)
		return
	}

	d := Decide(m.current, candidate, m.conds)
	if !d.Transition {
		monitoring.Logf("confirmation %s dropped: %s", candidate.Type, d.Reason)
		return
	}
	m.changeActivityLocked(candidate, d.Reason)
}

// ChangeActivityTo forces a transition to next, applying only the no-op
// check and none of the gating rules.
func (m *Manager) ChangeActivityTo(next *Segment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changeActivityLocked(next, "forced")
}

// changeActivityLocked closes the current segment, opens next, persists
// both, and emits the change event. Caller holds mu.
func (m *Manager) changeActivityLocked(next *Segment, why string) {
	if m.current != nil && m.current.Type == next.Type && m.current.UnknownReason == next.UnknownReason {
		return
	}
	now := m.clock.Now()

	old := m.current
	if old != nil {
		old.EndTime = now
		old.RecordedAt = now
		if err := m.store.Update(old); err != nil {
			monitoring.Logf("segment close not persisted: %v", err)
		}
		if old.Type == TypeWalk || old.Type == TypeStop {
			go m.enrichSteps(old.Clone())
		}
	}

	if next.StartTime.IsZero() {
		next.StartTime = now
	}
	next.RecordedAt = now
	if err := m.store.Insert(next); err != nil {
		monitoring.Logf("segment open not persisted: %v", err)
	}

	oldType := Type("none")
	if old != nil {
		oldType = old.Type
	}
	monitoring.Logf("activity changed: %s -> %s (%s)", oldType, next.Type, why)

	if m.events.ActivityChanged != nil {
		m.events.ActivityChanged(next.Clone(), old.Clone())
	}
	m.current = next
}

// CurrentSegment returns a copy of the open segment, or nil before the first
// transition.
func (m *Manager) CurrentSegment() *Segment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Clone()
}

// SegmentAt returns the persisted segment in effect at t.
func (m *Manager) SegmentAt(t time.Time) (*Segment, error) {
	return m.store.FindAt(t)
}

// SegmentByLookupID returns the persisted segment with the given lookup id.
func (m *Manager) SegmentByLookupID(id string) (*Segment, error) {
	return m.store.FindByLookupID(id)
}

// RecentSegments returns the n most recently started segments.
func (m *Manager) RecentSegments(n int) ([]*Segment, error) {
	return m.store.MostRecent(n)
}

// LastSpeed returns the speed of the most recent location fix in metres per
// second. The second return is false until a fix with a usable speed
// (reported or derived) has been seen.
func (m *Manager) LastSpeed() (float64, bool) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	if !m.hasFix || !m.lastFix.HasSpeed() {
		return 0, false
	}
	return m.lastFix.Speed, true
}

func (m *Manager) currentType() (Type, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return "", false
	}
	return m.current.Type, true
}

func (m *Manager) confirmType(t Type) {
	m.mu.RLock()
	session := m.session
	m.mu.RUnlock()
	m.OnActivityConfirmation(NewSegment(t, session))
}

func (m *Manager) confirmUnknown(reason UnknownReason) {
	m.mu.RLock()
	session := m.session
	m.mu.RUnlock()
	m.OnActivityConfirmation(NewUnknownSegment(reason, session))
}

func (m *Manager) refreshWatchdog() {
	m.mu.Lock()
	m.lastTick = m.clock.Now()
	m.mu.Unlock()
}

func (m *Manager) watchdogLoop(ticker timeutil.Ticker, stopCh chan struct{}) {
	for {
		select {
		case <-ticker.C():
			m.watchdogTick()
		case <-stopCh:
			return
		}
	}
}

// watchdogTick detects the process having been suspended: a tick gap beyond
// the staleness threshold synthesizes an sdk-inactive segment covering the
// gap, then live conditions are re-checked either way.
func (m *Manager) watchdogTick() {
	now := m.clock.Now()

	m.mu.Lock()
	last := m.lastTick
	session := m.session
	m.mu.Unlock()

	if now.Sub(last) > m.config.WatchdogStale {
		monitoring.Logf("watchdog: %s since last tick, recording sdk-inactive gap", now.Sub(last))
		gap := NewUnknownSegment(ReasonSdkInactive, session)
		gap.StartTime = last
		m.OnActivityConfirmation(gap)
	}
	m.Recheck()

	m.mu.Lock()
	m.lastTick = now
	m.mu.Unlock()
}

// enrichSteps queries the pedometer for a just-closed walk/stop segment and
// writes the one-time step enrichment. Failures never affect the closed
// segment or subsequent transitions.
func (m *Manager) enrichSteps(seg *Segment) {
	if m.steps == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	count, distance, err := m.steps.Steps(ctx, seg.StartTime, seg.EndTime)
	if err != nil {
		monitoring.Logf("step enrichment skipped for %s: %v", seg.LookupID, err)
		return
	}
	seg.StepCount = &count
	seg.StepDistance = &distance
	seg.RecordedAt = m.clock.Now()
	if err := m.store.UpdateStepData(seg); err != nil {
		monitoring.Logf("step enrichment not persisted for %s: %v", seg.LookupID, err)
		return
	}
	if m.events.ActivityUpdated != nil {
		m.events.ActivityUpdated(seg.Clone())
	}
}
