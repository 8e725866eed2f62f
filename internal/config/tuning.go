// Package config loads and validates engine tuning parameters.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the full tuning surface of the reasoning
// engine. All fields are pointers so that partial JSON files are safe:
// omitted fields fall back to the defaults served by the Get* accessors.
type TuningConfig struct {
	// Windowing params
	WindowDuration *string `json:"window_duration,omitempty"` // duration string like "5s"
	WarmupWindows  *int    `json:"warmup_windows,omitempty"`

	// Fusion weights
	FlowWeight     *float64 `json:"flow_weight,omitempty"`
	SpeedVarWeight *float64 `json:"speed_var_weight,omitempty"`
	AnomalyWeight  *float64 `json:"anomaly_weight,omitempty"`

	// State classifier thresholds (right-closed upper bounds on TVSI)
	OptimalAbove *float64 `json:"optimal_above,omitempty"`
	NormalAbove  *float64 `json:"normal_above,omitempty"`
	CautionAbove *float64 `json:"caution_above,omitempty"`
	WarningAbove *float64 `json:"warning_above,omitempty"`
	SevereAbove  *float64 `json:"severe_above,omitempty"`

	// Early-warning detector params
	DeclineThreshold  *float64 `json:"decline_threshold,omitempty"` // per window, negative
	WarningBandLow    *float64 `json:"warning_band_low,omitempty"`
	WarningBandHigh   *float64 `json:"warning_band_high,omitempty"`
	CriticalThreshold *float64 `json:"critical_threshold,omitempty"`

	// Episode tracker params
	EpisodeOpenSeverity  *int `json:"episode_open_severity,omitempty"`
	EpisodeCloseSeverity *int `json:"episode_close_severity,omitempty"`
	EpisodeSustainCount  *int `json:"episode_sustain_count,omitempty"`

	// Baseline calibrator params
	RecalibrationWindows *int     `json:"recalibration_windows,omitempty"`
	BaselineBlendAlpha   *float64 `json:"baseline_blend_alpha,omitempty"`
	BaselineEpsilon      *float64 `json:"baseline_epsilon,omitempty"`
	BaselinePercentile   *float64 `json:"baseline_percentile,omitempty"`

	// Aggregator params
	SpeedSmoothingWindows *int `json:"speed_smoothing_windows,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields unset.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must
// have a .json extension and stay under the size cap. Fields omitted
// from the JSON retain their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are internally
// consistent. Only set fields are checked; unset fields use known-good
// defaults.
func (c *TuningConfig) Validate() error {
	if c.WindowDuration != nil && *c.WindowDuration != "" {
		d, err := time.ParseDuration(*c.WindowDuration)
		if err != nil {
			return fmt.Errorf("invalid window_duration '%s': %w", *c.WindowDuration, err)
		}
		if d <= 0 {
			return fmt.Errorf("window_duration must be positive, got %s", d)
		}
	}

	if c.WarmupWindows != nil && *c.WarmupWindows < 1 {
		return fmt.Errorf("warmup_windows must be at least 1, got %d", *c.WarmupWindows)
	}

	for _, w := range []struct {
		name string
		val  *float64
	}{
		{"flow_weight", c.FlowWeight},
		{"speed_var_weight", c.SpeedVarWeight},
		{"anomaly_weight", c.AnomalyWeight},
	} {
		if w.val != nil && (*w.val < 0 || *w.val > 1) {
			return fmt.Errorf("%s must be between 0 and 1, got %f", w.name, *w.val)
		}
	}

	// Classifier thresholds must remain strictly ordered so the state
	// bands stay non-overlapping and exhaustive.
	thresholds := []struct {
		name string
		val  float64
	}{
		{"optimal_above", c.GetOptimalAbove()},
		{"normal_above", c.GetNormalAbove()},
		{"caution_above", c.GetCautionAbove()},
		{"warning_above", c.GetWarningAbove()},
		{"severe_above", c.GetSevereAbove()},
	}
	for i := 1; i < len(thresholds); i++ {
		if thresholds[i].val >= thresholds[i-1].val {
			return fmt.Errorf("%s (%f) must be below %s (%f)",
				thresholds[i].name, thresholds[i].val, thresholds[i-1].name, thresholds[i-1].val)
		}
	}

	if c.DeclineThreshold != nil && *c.DeclineThreshold >= 0 {
		return fmt.Errorf("decline_threshold must be negative, got %f", *c.DeclineThreshold)
	}

	if c.GetWarningBandLow() >= c.GetWarningBandHigh() {
		return fmt.Errorf("warning_band_low (%f) must be below warning_band_high (%f)",
			c.GetWarningBandLow(), c.GetWarningBandHigh())
	}

	if open, close := c.GetEpisodeOpenSeverity(), c.GetEpisodeCloseSeverity(); close >= open {
		return fmt.Errorf("episode_close_severity (%d) must be below episode_open_severity (%d)", close, open)
	}
	if c.EpisodeSustainCount != nil && *c.EpisodeSustainCount < 1 {
		return fmt.Errorf("episode_sustain_count must be at least 1, got %d", *c.EpisodeSustainCount)
	}

	if c.BaselineBlendAlpha != nil && (*c.BaselineBlendAlpha <= 0 || *c.BaselineBlendAlpha > 1) {
		return fmt.Errorf("baseline_blend_alpha must be in (0, 1], got %f", *c.BaselineBlendAlpha)
	}
	if c.BaselineEpsilon != nil && *c.BaselineEpsilon <= 0 {
		return fmt.Errorf("baseline_epsilon must be positive, got %f", *c.BaselineEpsilon)
	}
	if c.BaselinePercentile != nil && (*c.BaselinePercentile <= 0 || *c.BaselinePercentile >= 1) {
		return fmt.Errorf("baseline_percentile must be in (0, 1), got %f", *c.BaselinePercentile)
	}

	return nil
}

// GetWindowDuration parses and returns the window duration.
func (c *TuningConfig) GetWindowDuration() time.Duration {
	if c.WindowDuration == nil || *c.WindowDuration == "" {
		return 5 * time.Second
	}
	d, err := time.ParseDuration(*c.WindowDuration)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// GetWarmupWindows returns the number of warm-up windows before the
// calibrator is usable.
func (c *TuningConfig) GetWarmupWindows() int {
	if c.WarmupWindows == nil {
		return 20
	}
	return *c.WarmupWindows
}

// GetFlowWeight returns the TFSI fusion weight (w1).
func (c *TuningConfig) GetFlowWeight() float64 {
	if c.FlowWeight == nil {
		return 0.5
	}
	return *c.FlowWeight
}

// GetSpeedVarWeight returns the speed-variance fusion weight (w2).
func (c *TuningConfig) GetSpeedVarWeight() float64 {
	if c.SpeedVarWeight == nil {
		return 0.25
	}
	return *c.SpeedVarWeight
}

// GetAnomalyWeight returns the anomaly fusion weight (w3).
func (c *TuningConfig) GetAnomalyWeight() float64 {
	if c.AnomalyWeight == nil {
		return 0.25
	}
	return *c.AnomalyWeight
}

// GetOptimalAbove returns the TVSI value above which the state is Optimal.
func (c *TuningConfig) GetOptimalAbove() float64 {
	if c.OptimalAbove == nil {
		return 0.3
	}
	return *c.OptimalAbove
}

// GetNormalAbove returns the TVSI value above which the state is Normal.
func (c *TuningConfig) GetNormalAbove() float64 {
	if c.NormalAbove == nil {
		return 0.0
	}
	return *c.NormalAbove
}

// GetCautionAbove returns the TVSI value above which the state is Caution.
func (c *TuningConfig) GetCautionAbove() float64 {
	if c.CautionAbove == nil {
		return -0.2
	}
	return *c.CautionAbove
}

// GetWarningAbove returns the TVSI value above which the state is Warning.
func (c *TuningConfig) GetWarningAbove() float64 {
	if c.WarningAbove == nil {
		return -0.35
	}
	return *c.WarningAbove
}

// GetSevereAbove returns the TVSI value above which the state is Severe.
// At or below this value the state is Critical.
func (c *TuningConfig) GetSevereAbove() float64 {
	if c.SevereAbove == nil {
		return -0.5
	}
	return *c.SevereAbove
}

// GetDeclineThreshold returns the per-window TVSI decline below which
// the early-warning trigger arms.
func (c *TuningConfig) GetDeclineThreshold() float64 {
	if c.DeclineThreshold == nil {
		return -0.15
	}
	return *c.DeclineThreshold
}

// GetWarningBandLow returns the lower bound of the early-warning band.
func (c *TuningConfig) GetWarningBandLow() float64 {
	if c.WarningBandLow == nil {
		return -0.3
	}
	return *c.WarningBandLow
}

// GetWarningBandHigh returns the upper bound of the early-warning band.
func (c *TuningConfig) GetWarningBandHigh() float64 {
	if c.WarningBandHigh == nil {
		return 0.2
	}
	return *c.WarningBandHigh
}

// GetCriticalThreshold returns the TVSI level used for time-to-critical
// extrapolation.
func (c *TuningConfig) GetCriticalThreshold() float64 {
	if c.CriticalThreshold == nil {
		return -0.5
	}
	return *c.CriticalThreshold
}

// GetEpisodeOpenSeverity returns the severity at or above which a
// congestion episode opens.
func (c *TuningConfig) GetEpisodeOpenSeverity() int {
	if c.EpisodeOpenSeverity == nil {
		return 4
	}
	return *c.EpisodeOpenSeverity
}

// GetEpisodeCloseSeverity returns the severity at or below which an
// open episode starts counting toward close.
func (c *TuningConfig) GetEpisodeCloseSeverity() int {
	if c.EpisodeCloseSeverity == nil {
		return 1
	}
	return *c.EpisodeCloseSeverity
}

// GetEpisodeSustainCount returns how many consecutive recovered windows
// are required before an open episode closes.
func (c *TuningConfig) GetEpisodeSustainCount() int {
	if c.EpisodeSustainCount == nil {
		return 2
	}
	return *c.EpisodeSustainCount
}

// GetRecalibrationWindows returns the size of the trailing buffer used
// for rolling baseline recalibration.
func (c *TuningConfig) GetRecalibrationWindows() int {
	if c.RecalibrationWindows == nil {
		return 60
	}
	return *c.RecalibrationWindows
}

// GetBaselineBlendAlpha returns the exponential blend factor applied
// when a recalibrated baseline replaces the previous one.
func (c *TuningConfig) GetBaselineBlendAlpha() float64 {
	if c.BaselineBlendAlpha == nil {
		return 0.2
	}
	return *c.BaselineBlendAlpha
}

// GetBaselineEpsilon returns the floor applied to baselines so
// normalization never divides by zero.
func (c *TuningConfig) GetBaselineEpsilon() float64 {
	if c.BaselineEpsilon == nil {
		return 1e-6
	}
	return *c.BaselineEpsilon
}

// GetBaselinePercentile returns the percentile of observed flow and
// density used as their baselines.
func (c *TuningConfig) GetBaselinePercentile() float64 {
	if c.BaselinePercentile == nil {
		return 0.95
	}
	return *c.BaselinePercentile
}

// GetSpeedSmoothingWindows returns how many recent window variances are
// averaged before normalization.
func (c *TuningConfig) GetSpeedSmoothingWindows() int {
	if c.SpeedSmoothingWindows == nil {
		return 3
	}
	return *c.SpeedSmoothingWindows
}
