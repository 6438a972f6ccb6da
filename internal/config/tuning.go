// Package config loads the engine tuning file. Every field is optional:
// values omitted from the JSON fall back to the built-in defaults, so
// partial configs are safe.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tracksense/activitykit/internal/activity"
)

// TuningConfig is the root tuning document. Pointer fields distinguish
// "omitted" from "set to zero".
type TuningConfig struct {
	// Analyzer params
	WalkRunLength  *int    `json:"walk_run_length,omitempty"`
	RunRunLength   *int    `json:"run_run_length,omitempty"`
	StopRunLength  *int    `json:"stop_run_length,omitempty"`
	DriveRunLength *int    `json:"drive_run_length,omitempty"`
	CycleRunLength *int    `json:"cycle_run_length,omitempty"`
	VoteWindow     *int    `json:"vote_window,omitempty"`
	VoteCooldown   *string `json:"vote_cooldown,omitempty"` // duration string like "15s"

	// Sensor confirmation params
	SampleRateHz        *int     `json:"sample_rate_hz,omitempty"`
	DriveWindow         *string  `json:"drive_window,omitempty"`
	DriveScoreSamples   *int     `json:"drive_score_samples,omitempty"`
	DriveScoreThreshold *float64 `json:"drive_score_threshold,omitempty"`
	WalkWindow          *string  `json:"walk_window,omitempty"`
	WalkScoreSamples    *int     `json:"walk_score_samples,omitempty"`
	WalkScoreThreshold  *float64 `json:"walk_score_threshold,omitempty"`
	NoiseFloor          *float64 `json:"noise_floor,omitempty"`

	// Manager params
	SpeedThresholdMps *float64 `json:"speed_threshold_mps,omitempty"`
	MaxFixAge         *string  `json:"max_fix_age,omitempty"`
	WatchdogInterval  *string  `json:"watchdog_interval,omitempty"`
	WatchdogStale     *string  `json:"watchdog_stale,omitempty"`
}

// LoadTuningConfig loads and validates a tuning file.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &TuningConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that every provided value is usable.
func (c *TuningConfig) Validate() error {
	for name, v := range map[string]*int{
		"walk_run_length":     c.WalkRunLength,
		"run_run_length":      c.RunRunLength,
		"stop_run_length":     c.StopRunLength,
		"drive_run_length":    c.DriveRunLength,
		"cycle_run_length":    c.CycleRunLength,
		"vote_window":         c.VoteWindow,
		"sample_rate_hz":      c.SampleRateHz,
		"drive_score_samples": c.DriveScoreSamples,
		"walk_score_samples":  c.WalkScoreSamples,
	} {
		if v != nil && *v < 1 {
			return fmt.Errorf("%s must be >= 1, got %d", name, *v)
		}
	}
	for name, v := range map[string]*float64{
		"drive_score_threshold": c.DriveScoreThreshold,
		"walk_score_threshold":  c.WalkScoreThreshold,
		"speed_threshold_mps":   c.SpeedThresholdMps,
	} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, *v)
		}
	}
	if c.NoiseFloor != nil && *c.NoiseFloor < 0 {
		return fmt.Errorf("noise_floor must be >= 0, got %v", *c.NoiseFloor)
	}
	for name, v := range map[string]*string{
		"vote_cooldown":     c.VoteCooldown,
		"drive_window":      c.DriveWindow,
		"walk_window":       c.WalkWindow,
		"max_fix_age":       c.MaxFixAge,
		"watchdog_interval": c.WatchdogInterval,
		"watchdog_stale":    c.WatchdogStale,
	} {
		if v == nil {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("%s is not a valid duration: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, d)
		}
	}
	return nil
}

// AnalyzerConfig returns the analyzer thresholds with overrides applied.
func (c *TuningConfig) AnalyzerConfig() activity.AnalyzerConfig {
	out := activity.DefaultAnalyzerConfig()
	applyInt(c.WalkRunLength, func(v int) { out.RunLengths[activity.TypeWalk] = v })
	applyInt(c.RunRunLength, func(v int) { out.RunLengths[activity.TypeRun] = v })
	applyInt(c.StopRunLength, func(v int) { out.RunLengths[activity.TypeStop] = v })
	applyInt(c.DriveRunLength, func(v int) { out.RunLengths[activity.TypeDrive] = v })
	applyInt(c.CycleRunLength, func(v int) { out.RunLengths[activity.TypeCycle] = v })
	applyInt(c.VoteWindow, func(v int) { out.VoteWindow = v })
	applyDuration(c.VoteCooldown, func(v time.Duration) { out.VoteCooldown = v })
	return out
}

// HelperConfig returns the sensor-confirmation thresholds with overrides
// applied.
func (c *TuningConfig) HelperConfig() activity.HelperConfig {
	out := activity.DefaultHelperConfig()
	applyInt(c.SampleRateHz, func(v int) { out.SampleRateHz = v })
	applyDuration(c.DriveWindow, func(v time.Duration) { out.DriveWindow = v })
	applyInt(c.DriveScoreSamples, func(v int) { out.DriveScoreSamples = v })
	applyFloat(c.DriveScoreThreshold, func(v float64) { out.DriveScoreThreshold = v })
	applyDuration(c.WalkWindow, func(v time.Duration) { out.WalkWindow = v })
	applyInt(c.WalkScoreSamples, func(v int) { out.WalkScoreSamples = v })
	applyFloat(c.WalkScoreThreshold, func(v float64) { out.WalkScoreThreshold = v })
	applyFloat(c.NoiseFloor, func(v float64) { out.NoiseFloor = v })
	return out
}

// ManagerConfig returns the manager thresholds with overrides applied.
func (c *TuningConfig) ManagerConfig() activity.ManagerConfig {
	out := activity.DefaultManagerConfig()
	applyFloat(c.SpeedThresholdMps, func(v float64) { out.SpeedThresholdMps = v })
	applyDuration(c.MaxFixAge, func(v time.Duration) { out.MaxFixAge = v })
	applyDuration(c.WatchdogInterval, func(v time.Duration) { out.WatchdogInterval = v })
	applyDuration(c.WatchdogStale, func(v time.Duration) { out.WatchdogStale = v })
	return out
}

func applyInt(v *int, set func(int)) {
	if v != nil {
		set(*v)
	}
}

func applyFloat(v *float64, set func(float64)) {
	if v != nil {
		set(*v)
	}
}

func applyDuration(v *string, set func(time.Duration)) {
	if v == nil {
		return
	}
	// Validate() already rejected malformed durations.
	if d, err := time.ParseDuration(*v); err == nil {
		set(d)
	}
}
