package activity

import (
	"testing"
	"time"

	"github.com/tracksense/activitykit/internal/timeutil"
)

func obsRun(t Type, n int, confidence float64, start time.Time) []Observation {
	out := make([]Observation, n)
	for i := range out {
		out[i] = Observation{Type: t, Confidence: confidence, ObservedAt: start.Add(time.Duration(i) * time.Second)}
	}
	return out
}

func testAnalyzer(t *testing.T) (*Analyzer, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	return NewAnalyzer(clock, DefaultAnalyzerConfig()), clock
}

func TestCheckContinuity_ConfirmsFullRun(t *testing.T) {
	a, clock := testAnalyzer(t)
	start := clock.Now()

	history := append(obsRun(TypeStop, 3, 0.9, start), obsRun(TypeWalk, 4, 0.8, start.Add(10*time.Second))...)
	first, ok := a.CheckContinuity(history, TypeWalk)
	if !ok {
		t.Fatal("expected 4 consecutive walk observations to confirm walk")
	}
	if first.ObservedAt != start.Add(10*time.Second) {
		t.Errorf("expected earliest observation of the run, got %v", first.ObservedAt)
	}
}

func TestCheckContinuity_ShortRunDoesNotConfirm(t *testing.T) {
	a, clock := testAnalyzer(t)
	history := append(obsRun(TypeStop, 5, 0.9, clock.Now()), obsRun(TypeWalk, 3, 0.8, clock.Now().Add(time.Minute))...)

	if _, ok := a.CheckContinuity(history, TypeWalk); ok {
		t.Error("3 consecutive walk observations must not confirm walk")
	}
}

func TestCheckContinuity_RunLengthsPerType(t *testing.T) {
	a, clock := testAnalyzer(t)

	tests := []struct {
		activityType Type
		need         int
	}{
		{TypeWalk, 4},
		{TypeDrive, 4},
		{TypeStop, 4},
		{TypeRun, 2},
		{TypeCycle, 2},
	}
	for _, tt := range tests {
		exact := obsRun(tt.activityType, tt.need, 0.7, clock.Now())
		if _, ok := a.CheckContinuity(exact, tt.activityType); !ok {
			t.Errorf("%s: run of %d should confirm", tt.activityType, tt.need)
		}
		short := obsRun(tt.activityType, tt.need-1, 0.7, clock.Now())
		if _, ok := a.CheckContinuity(short, tt.activityType); ok {
			t.Errorf("%s: run of %d should not confirm", tt.activityType, tt.need-1)
		}
	}
}

func TestCheckContinuity_NoFastPathForUnknownOrMoving(t *testing.T) {
	a, clock := testAnalyzer(t)

	if _, ok := a.CheckContinuity(obsRun(TypeUnknown, 10, 0.9, clock.Now()), TypeUnknown); ok {
		t.Error("unknown must have no continuity fast-path")
	}
	if _, ok := a.CheckContinuity(obsRun(TypeMoving, 10, 0.9, clock.Now()), TypeMoving); ok {
		t.Error("moving must have no continuity fast-path")
	}
}

func TestCheckContinuity_InterruptedRun(t *testing.T) {
	a, clock := testAnalyzer(t)

	history := obsRun(TypeWalk, 3, 0.8, clock.Now())
	history = append(history, Observation{Type: TypeStop, Confidence: 0.9, ObservedAt: clock.Now()})
	history = append(history, obsRun(TypeWalk, 3, 0.8, clock.Now())...)

	if _, ok := a.CheckContinuity(history, TypeWalk); ok {
		t.Error("interrupted run must not confirm")
	}
}

func TestCheckWeightedVote_RecencyWinsTies(t *testing.T) {
	a, clock := testAnalyzer(t)

	// Drive and walk accumulate equal total confidence; walk arrives last.
	history := append(obsRun(TypeDrive, 10, 0.5, clock.Now()), obsRun(TypeWalk, 10, 0.5, clock.Now().Add(time.Minute))...)
	latest := history[len(history)-1]

	winner, ok := a.CheckWeightedVote(latest, history)
	if !ok {
		t.Fatal("expected a vote result")
	}
	if winner != TypeWalk {
		t.Errorf("expected walk to win the tie on recency, got %s", winner)
	}
}

func TestCheckWeightedVote_Cooldown(t *testing.T) {
	a, clock := testAnalyzer(t)

	history := obsRun(TypeWalk, 20, 0.8, clock.Now())
	latest := history[len(history)-1]

	if _, ok := a.CheckWeightedVote(latest, history); !ok {
		t.Fatal("first vote should produce a result")
	}

	clock.Advance(10 * time.Second)
	if _, ok := a.CheckWeightedVote(latest, history); ok {
		t.Error("vote inside the 15s cooldown must be a no-op")
	}

	clock.Advance(6 * time.Second)
	if _, ok := a.CheckWeightedVote(latest, history); !ok {
		t.Error("vote after the cooldown should produce a result")
	}
}

func TestCheckWeightedVote_RequiresFullWindow(t *testing.T) {
	a, clock := testAnalyzer(t)

	history := obsRun(TypeWalk, 19, 0.8, clock.Now())
	if _, ok := a.CheckWeightedVote(history[len(history)-1], history); ok {
		t.Error("vote with fewer than 20 observations must return nothing")
	}
}

func TestCheckWeightedVote_WinnerMustMatchLatest(t *testing.T) {
	a, clock := testAnalyzer(t)

	// Drive dominates the window but the latest observation is a lone stop.
	history := obsRun(TypeDrive, 19, 0.9, clock.Now())
	latest := Observation{Type: TypeStop, Confidence: 0.1, ObservedAt: clock.Now().Add(time.Minute)}
	history = append(history, latest)

	if winner, ok := a.CheckWeightedVote(latest, history); ok {
		t.Errorf("stale trend must not confirm against a disagreeing latest sample, got %s", winner)
	}
}

func TestCheckWeightedVote_AccumulatorsResetBetweenVotes(t *testing.T) {
	a, clock := testAnalyzer(t)

	driveHeavy := obsRun(TypeDrive, 20, 0.9, clock.Now())
	if winner, ok := a.CheckWeightedVote(driveHeavy[19], driveHeavy); !ok || winner != TypeDrive {
		t.Fatalf("expected drive vote, got %s ok=%v", winner, ok)
	}

	clock.Advance(20 * time.Second)

	// A fresh walk-only window must not be contaminated by drive's earlier
	// accumulated weight.
	walkHeavy := obsRun(TypeWalk, 20, 0.1, clock.Now())
	winner, ok := a.CheckWeightedVote(walkHeavy[19], walkHeavy)
	if !ok || winner != TypeWalk {
		t.Errorf("expected walk vote after reset, got %s ok=%v", winner, ok)
	}
}
