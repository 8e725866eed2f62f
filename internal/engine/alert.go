package engine

import (
	"github.com/google/uuid"
)

// Detector is the early-warning rate-of-change detector. It keeps only
// the previous index sample per stream, so its state is O(1). Alerts
// are idempotent per window: one evaluation produces at most one event,
// and consecutive qualifying windows each produce their own event —
// deduplicating an ongoing decline is deliberately left to whatever
// consumes the alert stream.
type Detector struct {
	declineThreshold  float64 // TVSI units per second, negative
	warningBandLow    float64
	warningBandHigh   float64
	criticalThreshold float64

	prev *IndexSample
}

// NewDetector creates a detector with the given engine parameters.
func NewDetector(cfg Config) *Detector {
	return &Detector{
		declineThreshold:  cfg.DeclineThreshold,
		warningBandLow:    cfg.WarningBandLow,
		warningBandHigh:   cfg.WarningBandHigh,
		criticalThreshold: cfg.CriticalThreshold,
	}
}

// Evaluate inspects a new index sample and returns an AlertEvent when
// the multi-factor trigger holds, nil otherwise. Warm-up samples are
// skipped entirely, and no alert is possible before two consecutive
// real samples exist — the detector never fabricates a previous value.
func (d *Detector) Evaluate(cur IndexSample) *AlertEvent {
	if cur.WarmingUp {
		// Do not retain warm-up placeholders as the prior sample.
		return nil
	}

	prev := d.prev
	d.prev = &cur
	if prev == nil {
		return nil
	}

	windowSeconds := cur.Timestamp.Sub(prev.Timestamp).Seconds()
	if windowSeconds <= 0 {
		return nil
	}
	rate := (cur.TVSI - prev.TVSI) / windowSeconds

	trigger := rate < d.declineThreshold &&
		cur.TVSI > d.warningBandLow && cur.TVSI < d.warningBandHigh &&
		cur.Density > prev.Density &&
		cur.MeanSpeed < prev.MeanSpeed

	if !trigger {
		return nil
	}

	return &AlertEvent{
		ID:                uuid.NewString(),
		StreamID:          cur.StreamID,
		TriggerTime:       cur.Timestamp,
		TVSI:              cur.TVSI,
		DeclineRate:       rate,
		SecondsToCritical: TimeToCritical(cur.TVSI, rate, d.criticalThreshold),
		DensityRising:     true,
		SpeedFalling:      true,
	}
}

// Reset forgets the prior sample, e.g. after a stream is cancelled.
func (d *Detector) Reset() {
	d.prev = nil
}

// TimeToCritical linearly extrapolates the current decline rate to the
// critical threshold. When the index is not declining the result is nil
// (the system is not heading toward critical). The value is an
// estimate, not a guarantee.
func TimeToCritical(tvsi, ratePerSecond, criticalThreshold float64) *float64 {
	if ratePerSecond >= 0 {
		return nil
	}
	seconds := (criticalThreshold - tvsi) / ratePerSecond
	if seconds < 0 {
		seconds = 0
	}
	return &seconds
}
