package engine

import (
	"github.com/google/uuid"

	"github.com/trafficvitals/tvsi/internal/monitoring"
)

// EpisodeTracker is the hysteresis state machine that opens and closes
// congestion incidents for one stream. It holds at most one open
// episode: severity spikes while already open simply continue updating
// the same episode. An episode closes only after severity has recovered
// to the close threshold for a sustained number of consecutive windows,
// so noisy single-window recoveries do not flap the state.
type EpisodeTracker struct {
	openSeverity  int
	closeSeverity int
	sustainCount  int

	current   *CongestionEpisode
	recovered int // consecutive windows at or below closeSeverity
}

// NewEpisodeTracker creates a tracker with the given engine parameters.
func NewEpisodeTracker(cfg Config) *EpisodeTracker {
	return &EpisodeTracker{
		openSeverity:  cfg.EpisodeOpenSeverity,
		closeSeverity: cfg.EpisodeCloseSeverity,
		sustainCount:  cfg.EpisodeSustainCount,
	}
}

// Observe feeds one index sample through the state machine. It returns
// the completed episode when this sample closes one, nil otherwise.
// Warm-up samples are non-actionable and ignored.
func (t *EpisodeTracker) Observe(s IndexSample) *CongestionEpisode {
	if s.WarmingUp {
		return nil
	}

	if t.current == nil {
		if s.Severity >= t.openSeverity {
			t.current = &CongestionEpisode{
				ID:          uuid.NewString(),
				StreamID:    s.StreamID,
				StartTime:   s.Timestamp,
				PeakDensity: s.Density,
				MinTVSI:     s.TVSI,
			}
			t.recovered = 0
			monitoring.Logf("stream %s: congestion episode %s opened (severity %d, tvsi %.3f)",
				s.StreamID, t.current.ID, s.Severity, s.TVSI)
		}
		return nil
	}

	if s.Density > t.current.PeakDensity {
		t.current.PeakDensity = s.Density
	}
	if s.TVSI < t.current.MinTVSI {
		t.current.MinTVSI = s.TVSI
	}

	if s.Severity <= t.closeSeverity {
		t.recovered++
	} else {
		t.recovered = 0
	}

	if t.recovered < t.sustainCount {
		return nil
	}

	done := t.current
	done.EndTime = s.Timestamp
	done.Duration = done.EndTime.Sub(done.StartTime)
	t.current = nil
	t.recovered = 0
	monitoring.Logf("stream %s: congestion episode %s closed after %s (peak density %d, min tvsi %.3f, %d alerts)",
		s.StreamID, done.ID, done.Duration, done.PeakDensity, done.MinTVSI, done.AlertCount)
	return done
}

// RecordAlert increments the open episode's alert count. Alerts raised
// outside an episode are not attributed to any episode.
func (t *EpisodeTracker) RecordAlert() {
	if t.current != nil {
		t.current.AlertCount++
	}
}

// Current returns a copy of the open episode, if any.
func (t *EpisodeTracker) Current() *CongestionEpisode {
	if t.current == nil {
		return nil
	}
	cp := *t.current
	return &cp
}
