package timeutil

import (
	"testing"
	"time"
)

func TestMockClock_NowAndAdvance(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	if !clock.Now().Equal(start) {
		t.Errorf("Now() = %v, want %v", clock.Now(), start)
	}

	clock.Advance(90 * time.Second)
	if got := clock.Since(start); got != 90*time.Second {
		t.Errorf("Since(start) = %v, want 90s", got)
	}

	clock.Set(start.Add(time.Hour))
	if !clock.Now().Equal(start.Add(time.Hour)) {
		t.Errorf("Set did not pin the clock: %v", clock.Now())
	}
}

func TestMockClock_After(t *testing.T) {
	clock := NewMockClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	ch := clock.After(time.Minute)

	clock.Advance(30 * time.Second)
	select {
	case <-ch:
		t.Fatal("timer fired before its deadline")
	default:
	}

	clock.Advance(30 * time.Second)
	select {
	case <-ch:
	default:
		t.Fatal("timer did not fire at its deadline")
	}

	// A timer fires once.
	clock.Advance(time.Hour)
	select {
	case <-ch:
		t.Fatal("timer fired twice")
	default:
	}
}

func TestMockClock_Ticker(t *testing.T) {
	clock := NewMockClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	ticker := clock.NewTicker(time.Minute)

	clock.Advance(time.Minute)
	select {
	case <-ticker.C():
	default:
		t.Fatal("ticker did not fire after one interval")
	}

	clock.Advance(time.Minute)
	select {
	case <-ticker.C():
	default:
		t.Fatal("ticker did not fire after the next interval")
	}

	ticker.Stop()
	clock.Advance(time.Hour)
	select {
	case <-ticker.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestMockTicker_Trigger(t *testing.T) {
	clock := NewMockClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	ticker := clock.NewTicker(time.Hour).(*MockTicker)

	now := clock.Now()
	ticker.Trigger(now)
	select {
	case got := <-ticker.C():
		if !got.Equal(now) {
			t.Errorf("tick carried %v, want %v", got, now)
		}
	default:
		t.Fatal("Trigger did not deliver a tick")
	}
}

func TestRealClock(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	if clock.Now().Before(before) {
		t.Error("RealClock.Now went backwards")
	}
	if clock.Since(before) < 0 {
		t.Error("RealClock.Since returned a negative duration")
	}
}
