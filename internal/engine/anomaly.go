package engine

import (
	"math"

	"github.com/trafficvitals/tvsi/internal/monitoring"
)

// Scorer produces a bounded anomaly value in [0, 1] for a completed
// window, where 0 is nominal traffic. The engine treats the scorer as
// an injected capability: the default is the heuristic below, but an
// externally supplied implementation (e.g. backed by a trained
// spatio-temporal model) can be substituted without changing any other
// component.
type Scorer interface {
	Score(sum WindowSummary, history []WindowSummary) (float64, error)
}

// ScorerFunc adapts a plain function to the Scorer interface.
type ScorerFunc func(sum WindowSummary, history []WindowSummary) (float64, error)

// Score calls f.
func (f ScorerFunc) Score(sum WindowSummary, history []WindowSummary) (float64, error) {
	return f(sum, history)
}

// HeuristicScorer derives an anomaly value from co-occurring speed
// variance and density trends: rising variance together with rising
// density is the signature of a degrading pattern.
type HeuristicScorer struct{}

// Score compares the current window against the recent history means.
// With no history the window is assumed nominal.
func (HeuristicScorer) Score(sum WindowSummary, history []WindowSummary) (float64, error) {
	if len(history) == 0 {
		return 0, nil
	}

	var meanVar, meanDensity float64
	for _, h := range history {
		meanVar += h.SpeedVariance
		meanDensity += float64(h.Density)
	}
	meanVar /= float64(len(history))
	meanDensity /= float64(len(history))

	varRising := relativeRise(sum.SpeedVariance, meanVar)
	densityRising := relativeRise(float64(sum.Density), meanDensity)

	// Both trends must be present; either alone is ordinary churn.
	score := math.Sqrt(varRising * densityRising)
	return clamp(score, 0, 1), nil
}

// relativeRise returns how far current exceeds the reference, as a
// fraction of the reference, clamped to [0, 1].
func relativeRise(current, reference float64) float64 {
	if reference <= 0 {
		if current > 0 {
			return 1
		}
		return 0
	}
	return clamp((current-reference)/reference, 0, 1)
}

// guardedScorer wraps an injected scorer so that a failing external
// collaborator can never take down the pipeline: panics and invalid
// values are caught at this boundary, the default heuristic value is
// substituted for the window, and the substitution is logged as a
// recoverable warning.
type guardedScorer struct {
	scorer   Scorer
	fallback Scorer
}

func newGuardedScorer(s Scorer) *guardedScorer {
	if s == nil {
		s = HeuristicScorer{}
	}
	return &guardedScorer{scorer: s, fallback: HeuristicScorer{}}
}

func (g *guardedScorer) Score(sum WindowSummary, history []WindowSummary) (score float64, err error) {
	score, ok := g.tryScore(sum, history)
	if ok {
		return score, nil
	}
	score, _ = g.fallback.Score(sum, history)
	return score, nil
}

func (g *guardedScorer) tryScore(sum WindowSummary, history []WindowSummary) (score float64, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			monitoring.Warnf("stream %s: anomaly scorer panicked (%v); using heuristic for window at %s",
				sum.StreamID, r, sum.WindowEnd.Format("15:04:05"))
			ok = false
		}
	}()

	score, err := g.scorer.Score(sum, history)
	if err != nil {
		monitoring.Warnf("stream %s: anomaly scorer failed (%v); using heuristic", sum.StreamID, err)
		return 0, false
	}
	if math.IsNaN(score) || math.IsInf(score, 0) || score < 0 || score > 1 {
		monitoring.Warnf("stream %s: anomaly scorer returned out-of-range value %v; using heuristic",
			sum.StreamID, score)
		return 0, false
	}
	return score, true
}
