// Package engine implements the traffic stability reasoning core:
// windowed aggregation of per-vehicle detections, adaptive baseline
// calibration, index fusion, state classification, early-warning
// detection, and congestion episode tracking.
//
// Detections flow strictly downstream. Each completed window produces
// exactly one IndexSample, at most one AlertEvent, and at most one
// closed CongestionEpisode, in window order. Each stream owns its own
// state; streams never share mutable data.
package engine

import (
	"math"
	"time"
)

// DetectionSample is a single per-frame vehicle observation produced by
// the external perception pipeline. Speeds are metres per second.
type DetectionSample struct {
	StreamID   string  `json:"stream_id"`
	FrameIndex int64   `json:"frame_index"`
	TrackID    string  `json:"track_id"`
	Class      string  `json:"class"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	SpeedMPS   float64 `json:"speed_mps"`
}

// Valid reports whether the sample carries usable position and track
// identity. Samples failing this check are excluded from aggregation
// but never abort a window.
func (s DetectionSample) Valid() bool {
	if s.TrackID == "" {
		return false
	}
	if math.IsNaN(s.X) || math.IsInf(s.X, 0) || math.IsNaN(s.Y) || math.IsInf(s.Y, 0) {
		return false
	}
	return true
}

// HasSpeed reports whether the sample's speed observation is usable for
// window speed statistics.
func (s DetectionSample) HasSpeed() bool {
	return !math.IsNaN(s.SpeedMPS) && !math.IsInf(s.SpeedMPS, 0) && s.SpeedMPS >= 0
}

// WindowSummary is the aggregate of one completed window. It is
// immutable once emitted by the aggregator.
type WindowSummary struct {
	StreamID    string    `json:"stream_id"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`

	// Flow is the count of distinct tracks that entered the region of
	// interest during the window.
	Flow int `json:"flow"`

	// Density is the time-averaged count of distinct tracks
	// concurrently present, sampled per frame across the window.
	Density int `json:"density"`

	MeanSpeed     float64 `json:"mean_speed"`
	SpeedVariance float64 `json:"speed_variance"`

	// Malformed counts detection samples excluded from the statistics.
	Malformed int `json:"malformed,omitempty"`
}

// Seconds returns the window length in seconds.
func (w WindowSummary) Seconds() float64 {
	return w.WindowEnd.Sub(w.WindowStart).Seconds()
}

// TrafficState is the ordered health classification of a TVSI value.
type TrafficState string

const (
	StateWarmup   TrafficState = "warmup" // calibrator not ready; non-actionable
	StateOptimal  TrafficState = "optimal"
	StateNormal   TrafficState = "normal"
	StateCaution  TrafficState = "caution"
	StateWarning  TrafficState = "warning"
	StateSevere   TrafficState = "severe"
	StateCritical TrafficState = "critical"
)

// Trend describes the direction of the recent TVSI series.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDegrading Trend = "degrading"
	TrendStable    Trend = "stable"
)

// IndexSample is the per-window output of the reasoning engine.
// Immutable once produced; forms the time series consumed by the
// early-warning detector and the episode tracker.
type IndexSample struct {
	StreamID    string    `json:"stream_id"`
	WindowStart time.Time `json:"window_start"`
	Timestamp   time.Time `json:"timestamp"` // window end

	TVSI         float64 `json:"tvsi"`
	TFSI         float64 `json:"tfsi"`
	FlowNorm     float64 `json:"flow_norm"`
	DensityNorm  float64 `json:"density_norm"`
	SpeedVarNorm float64 `json:"speed_var_norm"`
	Anomaly      float64 `json:"anomaly"`

	State    TrafficState `json:"state"`
	Severity int          `json:"severity"`
	Trend    Trend        `json:"trend"`

	// WarmingUp marks a placeholder sample emitted before the
	// calibrator is ready. Numeric fields are zero and downstream
	// components must not act on it.
	WarmingUp bool `json:"warming_up,omitempty"`

	// Raw window values carried through for the detector and tracker.
	Flow      int     `json:"flow"`
	Density   int     `json:"density"`
	MeanSpeed float64 `json:"mean_speed"`
}

// AlertEvent is an early-warning event raised while intervention is
// still possible. Append-only; at most one per window.
type AlertEvent struct {
	ID          string    `json:"id"`
	StreamID    string    `json:"stream_id"`
	TriggerTime time.Time `json:"trigger_time"`

	TVSI        float64 `json:"tvsi"`
	DeclineRate float64 `json:"decline_rate"` // TVSI units per second

	// SecondsToCritical is the linear extrapolation of the current
	// decline to the critical threshold. Nil when the index is not
	// declining. An estimate, not a guarantee.
	SecondsToCritical *float64 `json:"seconds_to_critical,omitempty"`

	// Confirmatory flags recorded at trigger time.
	DensityRising bool `json:"density_rising"`
	SpeedFalling  bool `json:"speed_falling"`
}

// CongestionEpisode is a bounded interval during which severity stayed
// at or above the opening threshold. Mutated while open; finalized on
// close.
type CongestionEpisode struct {
	ID       string `json:"id"`
	StreamID string `json:"stream_id"`

	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"` // zero while open
	Duration  time.Duration `json:"duration"`

	PeakDensity int     `json:"peak_density"`
	MinTVSI     float64 `json:"min_tvsi"`
	AlertCount  int     `json:"alert_count"`
}

// Open reports whether the episode has not been finalized yet.
func (e CongestionEpisode) Open() bool {
	return e.EndTime.IsZero()
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
