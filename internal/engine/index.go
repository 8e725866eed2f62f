package engine

import (
	"math"

	"github.com/trafficvitals/tvsi/internal/monitoring"
)

// preClampWarnLimit is how far outside the expected range the raw fused
// index may fall before clamping is reported as an upstream anomaly.
const preClampWarnLimit = 1.5

// ComputeIndex fuses a window summary into an IndexSample. It is a pure
// function of its inputs: identical (summary, baseline, anomaly,
// weights) always produce the identical sample.
//
// speedVar is the (possibly smoothed) speed variance to normalize; the
// stream pipeline passes a short moving average rather than the raw
// per-window value to damp single-window spikes.
//
// The result's State, Severity, and Trend fields are left for the
// caller to fill; TVSI is clamped to [-1, 1].
func ComputeIndex(sum WindowSummary, speedVar float64, b Baseline, anomaly float64, w Weights) IndexSample {
	flowNorm := b.Normalize(float64(sum.Flow), DimFlow)
	densityNorm := b.Normalize(float64(sum.Density), DimDensity)
	speedVarNorm := b.Normalize(speedVar, DimSpeedVariance)
	anomaly = clamp(anomaly, 0, 1)

	// Higher flow is good, higher density is bad.
	tfsi := flowNorm - 2*densityNorm

	raw := w.Flow*tfsi - w.SpeedVar*speedVarNorm - w.Anomaly*anomaly
	if math.Abs(raw) > preClampWarnLimit {
		monitoring.Warnf("stream %s: fused index %.3f outside expected range before clamping",
			sum.StreamID, raw)
	}

	return IndexSample{
		StreamID:     sum.StreamID,
		WindowStart:  sum.WindowStart,
		Timestamp:    sum.WindowEnd,
		TVSI:         clamp(raw, -1, 1),
		TFSI:         tfsi,
		FlowNorm:     flowNorm,
		DensityNorm:  densityNorm,
		SpeedVarNorm: speedVarNorm,
		Anomaly:      anomaly,
		Flow:         sum.Flow,
		Density:      sum.Density,
		MeanSpeed:    sum.MeanSpeed,
	}
}

// WarmupSample returns the distinguished non-actionable placeholder
// emitted while the calibrator is not ready. The engine never
// fabricates a numeric index during warm-up.
func WarmupSample(sum WindowSummary) IndexSample {
	return IndexSample{
		StreamID:    sum.StreamID,
		WindowStart: sum.WindowStart,
		Timestamp:   sum.WindowEnd,
		State:       StateWarmup,
		Trend:       TrendStable,
		WarmingUp:   true,
		Flow:        sum.Flow,
		Density:     sum.Density,
		MeanSpeed:   sum.MeanSpeed,
	}
}
