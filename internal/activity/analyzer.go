package activity

import (
	"time"

	"github.com/tracksense/activitykit/internal/timeutil"
)

// AnalyzerConfig holds the statistical thresholds for the analyzer.
type AnalyzerConfig struct {
	// RunLengths maps each confirmable type to the number of consecutive
	// identical observations that confirm it outright.
	RunLengths map[Type]int
	// VoteWindow is how many trailing observations the weighted vote scans.
	VoteWindow int
	// VoteCooldown is the minimum wall-clock spacing between votes.
	VoteCooldown time.Duration
}

// DefaultAnalyzerConfig returns the production analyzer thresholds.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		RunLengths: map[Type]int{
			TypeWalk:  4,
			TypeDrive: 4,
			TypeRun:   2,
			TypeCycle: 2,
			TypeStop:  4,
		},
		VoteWindow:   20,
		VoteCooldown: 15 * time.Second,
	}
}

// Analyzer decides when a run of observations is long enough to confirm a
// type outright, and which type carries the most accumulated confidence. Its
// only mutable state is the vote cooldown timestamp and the per-type weight
// accumulators.
type Analyzer struct {
	clock   timeutil.Clock
	config  AnalyzerConfig
	weights map[Type]float64

	lastVote    time.Time
	hasLastVote bool
}

// NewAnalyzer creates an analyzer with the given clock and thresholds.
func NewAnalyzer(clock timeutil.Clock, config AnalyzerConfig) *Analyzer {
	return &Analyzer{
		clock:   clock,
		config:  config,
		weights: make(map[Type]float64),
	}
}

// CheckContinuity confirms candidate iff the trailing run of identical
// observations in history is at least the required length for that type. On
// success it returns the earliest observation of the run, which marks where
// the confirmed activity conceptually began. Unknown and moving observations
// have no continuity fast-path.
func (a *Analyzer) CheckContinuity(history []Observation, candidate Type) (Observation, bool) {
	need, ok := a.config.RunLengths[candidate]
	if !ok || len(history) < need {
		return Observation{}, false
	}
	run := history[len(history)-need:]
	for _, obs := range run {
		if obs.Type != candidate {
			return Observation{}, false
		}
	}
	return run[0], true
}

// CheckWeightedVote scans the trailing vote window and returns the type with
// the highest accumulated confidence, provided that type agrees with the
// triggering latest observation. Later observations win accumulator ties, so
// a fresh trend is never beaten by an equally weighted stale one. Calls
// inside the cooldown window are no-ops.
func (a *Analyzer) CheckWeightedVote(latest Observation, history []Observation) (Type, bool) {
	if a.hasLastVote && a.clock.Since(a.lastVote) < a.config.VoteCooldown {
		return "", false
	}
	if len(history) < a.config.VoteWindow {
		return "", false
	}
	a.lastVote = a.clock.Now()
	a.hasLastVote = true

	for t := range a.weights {
		a.weights[t] = 0
	}

	window := history[len(history)-a.config.VoteWindow:]
	var maxType Type
	var maxWeight float64
	for i, obs := range window {
		a.weights[obs.Type] += obs.Confidence
		if i == 0 || a.weights[obs.Type] >= maxWeight {
			maxWeight = a.weights[obs.Type]
			maxType = obs.Type
		}
	}

	if maxType != latest.Type {
		return "", false
	}
	return maxType, true
}
