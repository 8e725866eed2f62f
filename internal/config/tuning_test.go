package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	if got := cfg.GetWindowDuration(); got != 5*time.Second {
		t.Errorf("GetWindowDuration() = %v, want 5s", got)
	}
	if got := cfg.GetWarmupWindows(); got != 20 {
		t.Errorf("GetWarmupWindows() = %d, want 20", got)
	}
	if got := cfg.GetFlowWeight(); got != 0.5 {
		t.Errorf("GetFlowWeight() = %f, want 0.5", got)
	}
	if got := cfg.GetSpeedVarWeight(); got != 0.25 {
		t.Errorf("GetSpeedVarWeight() = %f, want 0.25", got)
	}
	if got := cfg.GetAnomalyWeight(); got != 0.25 {
		t.Errorf("GetAnomalyWeight() = %f, want 0.25", got)
	}
	if got := cfg.GetDeclineThreshold(); got != -0.15 {
		t.Errorf("GetDeclineThreshold() = %f, want -0.15", got)
	}
	if got := cfg.GetWarningBandLow(); got != -0.3 {
		t.Errorf("GetWarningBandLow() = %f, want -0.3", got)
	}
	if got := cfg.GetWarningBandHigh(); got != 0.2 {
		t.Errorf("GetWarningBandHigh() = %f, want 0.2", got)
	}
	if got := cfg.GetCriticalThreshold(); got != -0.5 {
		t.Errorf("GetCriticalThreshold() = %f, want -0.5", got)
	}
	if got := cfg.GetEpisodeOpenSeverity(); got != 4 {
		t.Errorf("GetEpisodeOpenSeverity() = %d, want 4", got)
	}
	if got := cfg.GetEpisodeCloseSeverity(); got != 1 {
		t.Errorf("GetEpisodeCloseSeverity() = %d, want 1", got)
	}
	if got := cfg.GetEpisodeSustainCount(); got != 2 {
		t.Errorf("GetEpisodeSustainCount() = %d, want 2", got)
	}
	if got := cfg.GetBaselinePercentile(); got != 0.95 {
		t.Errorf("GetBaselinePercentile() = %f, want 0.95", got)
	}
	if got := cfg.GetBaselineBlendAlpha(); got != 0.2 {
		t.Errorf("GetBaselineBlendAlpha() = %f, want 0.2", got)
	}
	if got := cfg.GetSpeedSmoothingWindows(); got != 3 {
		t.Errorf("GetSpeedSmoothingWindows() = %d, want 3", got)
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "tuning.json")

	testJSON := `{
  "window_duration": "10s",
  "warmup_windows": 12,
  "flow_weight": 0.6,
  "decline_threshold": -0.2,
  "episode_sustain_count": 3
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("LoadTuningConfig: %v", err)
	}

	if got := cfg.GetWindowDuration(); got != 10*time.Second {
		t.Errorf("GetWindowDuration() = %v, want 10s", got)
	}
	if got := cfg.GetWarmupWindows(); got != 12 {
		t.Errorf("GetWarmupWindows() = %d, want 12", got)
	}
	if got := cfg.GetFlowWeight(); got != 0.6 {
		t.Errorf("GetFlowWeight() = %f, want 0.6", got)
	}
	if got := cfg.GetDeclineThreshold(); got != -0.2 {
		t.Errorf("GetDeclineThreshold() = %f, want -0.2", got)
	}
	if got := cfg.GetEpisodeSustainCount(); got != 3 {
		t.Errorf("GetEpisodeSustainCount() = %d, want 3", got)
	}

	// Omitted fields keep defaults.
	if got := cfg.GetSpeedVarWeight(); got != 0.25 {
		t.Errorf("GetSpeedVarWeight() = %f, want default 0.25", got)
	}
}

func TestLoadTuningConfigRejectsNonJSON(t *testing.T) {
	if _, err := LoadTuningConfig("tuning.yaml"); err == nil {
		t.Error("expected error for non-.json extension")
	}
}

func TestValidate(t *testing.T) {
	bad := func(mutate func(c *TuningConfig)) *TuningConfig {
		c := EmptyTuningConfig()
		mutate(c)
		return c
	}

	f := func(v float64) *float64 { return &v }
	i := func(v int) *int { return &v }
	s := func(v string) *string { return &v }

	tests := []struct {
		name    string
		cfg     *TuningConfig
		wantErr bool
	}{
		{"empty is valid", EmptyTuningConfig(), false},
		{"bad duration", bad(func(c *TuningConfig) { c.WindowDuration = s("soon") }), true},
		{"negative duration", bad(func(c *TuningConfig) { c.WindowDuration = s("-5s") }), true},
		{"zero warmup", bad(func(c *TuningConfig) { c.WarmupWindows = i(0) }), true},
		{"weight above one", bad(func(c *TuningConfig) { c.FlowWeight = f(1.5) }), true},
		{"unordered thresholds", bad(func(c *TuningConfig) { c.NormalAbove = f(0.4) }), true},
		{"positive decline threshold", bad(func(c *TuningConfig) { c.DeclineThreshold = f(0.1) }), true},
		{"inverted warning band", bad(func(c *TuningConfig) { c.WarningBandLow = f(0.5) }), true},
		{"close at open severity", bad(func(c *TuningConfig) { c.EpisodeCloseSeverity = i(4) }), true},
		{"zero sustain", bad(func(c *TuningConfig) { c.EpisodeSustainCount = i(0) }), true},
		{"alpha zero", bad(func(c *TuningConfig) { c.BaselineBlendAlpha = f(0) }), true},
		{"epsilon zero", bad(func(c *TuningConfig) { c.BaselineEpsilon = f(0) }), true},
		{"percentile one", bad(func(c *TuningConfig) { c.BaselinePercentile = f(1.0) }), true},
		{"valid overrides", bad(func(c *TuningConfig) {
			c.WindowDuration = s("2s")
			c.DeclineThreshold = f(-0.1)
			c.EpisodeSustainCount = i(4)
		}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
