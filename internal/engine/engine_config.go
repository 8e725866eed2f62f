package engine

import (
	"time"

	"github.com/trafficvitals/tvsi/internal/config"
)

// Weights are the fusion weights applied by ComputeIndex. They need not
// sum to 1, though the defaults do.
type Weights struct {
	Flow     float64 // w1, applied to TFSI
	SpeedVar float64 // w2, applied to normalized speed variance
	Anomaly  float64 // w3, applied to the anomaly score
}

// DefaultWeights returns the production-default fusion weights.
func DefaultWeights() Weights {
	return Weights{Flow: 0.5, SpeedVar: 0.25, Anomaly: 0.25}
}

// Config holds all engine parameters for one stream.
type Config struct {
	WindowDuration time.Duration
	WarmupWindows  int

	Weights    Weights
	Thresholds Thresholds

	// Early-warning detector.
	DeclineThreshold  float64 // TVSI units per second, negative
	WarningBandLow    float64
	WarningBandHigh   float64
	CriticalThreshold float64

	// Episode tracker.
	EpisodeOpenSeverity  int
	EpisodeCloseSeverity int
	EpisodeSustainCount  int

	// Baseline calibrator.
	RecalibrationWindows int
	BaselineBlendAlpha   float64
	BaselineEpsilon      float64
	BaselinePercentile   float64

	// Aggregator.
	SpeedSmoothingWindows int
}

// DefaultConfig returns production-default engine parameters.
func DefaultConfig() Config {
	return Config{
		WindowDuration:        5 * time.Second,
		WarmupWindows:         20,
		Weights:               DefaultWeights(),
		Thresholds:            DefaultThresholds(),
		DeclineThreshold:      -0.15,
		WarningBandLow:        -0.3,
		WarningBandHigh:       0.2,
		CriticalThreshold:     -0.5,
		EpisodeOpenSeverity:   4,
		EpisodeCloseSeverity:  1,
		EpisodeSustainCount:   2,
		RecalibrationWindows:  60,
		BaselineBlendAlpha:    0.2,
		BaselineEpsilon:       1e-6,
		BaselinePercentile:    0.95,
		SpeedSmoothingWindows: 3,
	}
}

// ConfigFromTuning derives engine parameters from a loaded tuning file.
func ConfigFromTuning(t *config.TuningConfig) Config {
	if t == nil {
		return DefaultConfig()
	}
	return Config{
		WindowDuration: t.GetWindowDuration(),
		WarmupWindows:  t.GetWarmupWindows(),
		Weights: Weights{
			Flow:     t.GetFlowWeight(),
			SpeedVar: t.GetSpeedVarWeight(),
			Anomaly:  t.GetAnomalyWeight(),
		},
		Thresholds: Thresholds{
			OptimalAbove: t.GetOptimalAbove(),
			NormalAbove:  t.GetNormalAbove(),
			CautionAbove: t.GetCautionAbove(),
			WarningAbove: t.GetWarningAbove(),
			SevereAbove:  t.GetSevereAbove(),
		},
		DeclineThreshold:      t.GetDeclineThreshold(),
		WarningBandLow:        t.GetWarningBandLow(),
		WarningBandHigh:       t.GetWarningBandHigh(),
		CriticalThreshold:     t.GetCriticalThreshold(),
		EpisodeOpenSeverity:   t.GetEpisodeOpenSeverity(),
		EpisodeCloseSeverity:  t.GetEpisodeCloseSeverity(),
		EpisodeSustainCount:   t.GetEpisodeSustainCount(),
		RecalibrationWindows:  t.GetRecalibrationWindows(),
		BaselineBlendAlpha:    t.GetBaselineBlendAlpha(),
		BaselineEpsilon:       t.GetBaselineEpsilon(),
		BaselinePercentile:    t.GetBaselinePercentile(),
		SpeedSmoothingWindows: t.GetSpeedSmoothingWindows(),
	}
}
