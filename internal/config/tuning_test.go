package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tracksense/activitykit/internal/activity"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadTuningConfig_PartialOverrides(t *testing.T) {
	path := writeConfig(t, "tuning.json", `{
		"walk_run_length": 6,
		"vote_cooldown": "30s",
		"drive_score_threshold": 75.5,
		"watchdog_stale": "15m"
	}`)

	cfg, err := LoadTuningConfig(path)
	if err != nil {
		t.Fatalf("LoadTuningConfig: %v", err)
	}

	analyzer := cfg.AnalyzerConfig()
	if got := analyzer.RunLengths[activity.TypeWalk]; got != 6 {
		t.Errorf("walk run length override not applied: %d", got)
	}
	if got := analyzer.RunLengths[activity.TypeDrive]; got != 4 {
		t.Errorf("untouched run length must keep its default: %d", got)
	}
	if analyzer.VoteCooldown != 30*time.Second {
		t.Errorf("vote cooldown override not applied: %v", analyzer.VoteCooldown)
	}
	if analyzer.VoteWindow != 20 {
		t.Errorf("untouched vote window must keep its default: %d", analyzer.VoteWindow)
	}

	helper := cfg.HelperConfig()
	if helper.DriveScoreThreshold != 75.5 {
		t.Errorf("drive threshold override not applied: %v", helper.DriveScoreThreshold)
	}
	if helper.WalkScoreThreshold != 40.0 {
		t.Errorf("untouched walk threshold must keep its default: %v", helper.WalkScoreThreshold)
	}

	manager := cfg.ManagerConfig()
	if manager.WatchdogStale != 15*time.Minute {
		t.Errorf("watchdog staleness override not applied: %v", manager.WatchdogStale)
	}
	if manager.SpeedThresholdMps != 6.0 {
		t.Errorf("untouched speed threshold must keep its default: %v", manager.SpeedThresholdMps)
	}
}

func TestLoadTuningConfig_EmptyDocumentKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "tuning.json", `{}`)
	cfg, err := LoadTuningConfig(path)
	if err != nil {
		t.Fatalf("LoadTuningConfig: %v", err)
	}

	helper := cfg.HelperConfig()
	if helper.SampleRateHz != 10 || helper.DriveScoreSamples != 500 || helper.NoiseFloor != 0.1 {
		t.Errorf("defaults not preserved: %+v", helper)
	}
	manager := cfg.ManagerConfig()
	if manager.MaxFixAge != 120*time.Second || manager.WatchdogInterval != 300*time.Second {
		t.Errorf("defaults not preserved: %+v", manager)
	}
}

func TestLoadTuningConfig_RejectsNonJSONExtension(t *testing.T) {
	path := writeConfig(t, "tuning.yaml", `{}`)
	if _, err := LoadTuningConfig(path); err == nil {
		t.Error("expected an error for a non-.json path")
	}
}

func TestLoadTuningConfig_MissingFile(t *testing.T) {
	_, err := LoadTuningConfig(filepath.Join(t.TempDir(), "absent.json"))
	if err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestLoadTuningConfig_MalformedJSON(t *testing.T) {
	path := writeConfig(t, "tuning.json", `{"vote_window": `)
	if _, err := LoadTuningConfig(path); err == nil {
		t.Error("expected a parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr string
	}{
		{"zero run length", `{"walk_run_length": 0}`, "walk_run_length"},
		{"negative vote window", `{"vote_window": -3}`, "vote_window"},
		{"zero threshold", `{"drive_score_threshold": 0}`, "drive_score_threshold"},
		{"negative noise floor", `{"noise_floor": -0.5}`, "noise_floor"},
		{"bad duration", `{"vote_cooldown": "soonish"}`, "vote_cooldown"},
		{"negative duration", `{"walk_window": "-20s"}`, "walk_window"},
		{"zero noise floor is allowed", `{"noise_floor": 0}`, ""},
	}
	for _, tt := range tests {
		path := writeConfig(t, "tuning.json", tt.json)
		_, err := LoadTuningConfig(path)
		if tt.wantErr == "" {
			if err != nil {
				t.Errorf("%s: unexpected error: %v", tt.name, err)
			}
			continue
		}
		if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
			t.Errorf("%s: expected error mentioning %q, got %v", tt.name, tt.wantErr, err)
		}
	}
}
