package engine

import (
	"errors"
	"math"
	"testing"
)

func historyOf(n int, density int, speedVar float64) []WindowSummary {
	out := make([]WindowSummary, n)
	for i := range out {
		out[i] = summaryWith(10, density, speedVar)
	}
	return out
}

func TestHeuristicScorerNominal(t *testing.T) {
	s := HeuristicScorer{}

	// No history: nominal.
	got, err := s.Score(summaryWith(10, 20, 100), nil)
	if err != nil || got != 0 {
		t.Errorf("Score with no history = (%f, %v), want (0, nil)", got, err)
	}

	// Current matches the recent means: nominal.
	got, _ = s.Score(summaryWith(10, 10, 50), historyOf(3, 10, 50))
	if got != 0 {
		t.Errorf("Score at historical means = %f, want 0", got)
	}
}

func TestHeuristicScorerCoRisingTrends(t *testing.T) {
	s := HeuristicScorer{}

	// Variance and density both doubled against history: maximal.
	got, _ := s.Score(summaryWith(10, 20, 100), historyOf(3, 10, 50))
	if got != 1 {
		t.Errorf("Score with both trends doubled = %f, want 1", got)
	}

	// Only variance rising: ordinary churn, not an anomaly.
	got, _ = s.Score(summaryWith(10, 10, 100), historyOf(3, 10, 50))
	if got != 0 {
		t.Errorf("Score with variance alone rising = %f, want 0", got)
	}

	// Bounded regardless of how extreme the rise is.
	got, _ = s.Score(summaryWith(10, 900, 9000), historyOf(3, 10, 50))
	if got < 0 || got > 1 {
		t.Errorf("Score = %f outside [0,1]", got)
	}
}

func TestGuardedScorerPassesValidValues(t *testing.T) {
	g := newGuardedScorer(ScorerFunc(func(WindowSummary, []WindowSummary) (float64, error) {
		return 0.42, nil
	}))
	got, err := g.Score(summaryWith(10, 10, 50), nil)
	if err != nil || got != 0.42 {
		t.Errorf("Score = (%f, %v), want (0.42, nil)", got, err)
	}
}

func TestGuardedScorerSubstitutesOnFailure(t *testing.T) {
	tests := []struct {
		name   string
		scorer Scorer
	}{
		{"error", ScorerFunc(func(WindowSummary, []WindowSummary) (float64, error) {
			return 0, errors.New("model backend unavailable")
		})},
		{"panic", ScorerFunc(func(WindowSummary, []WindowSummary) (float64, error) {
			panic("index out of range")
		})},
		{"nan", ScorerFunc(func(WindowSummary, []WindowSummary) (float64, error) {
			return math.NaN(), nil
		})},
		{"out of range", ScorerFunc(func(WindowSummary, []WindowSummary) (float64, error) {
			return 7.5, nil
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGuardedScorer(tt.scorer)
			// History at the current level: the heuristic fallback
			// yields 0 here, so any failure mode must surface 0 and
			// never an error or a panic.
			got, err := g.Score(summaryWith(10, 10, 50), historyOf(3, 10, 50))
			if err != nil {
				t.Fatalf("guarded scorer returned error: %v", err)
			}
			if got != 0 {
				t.Errorf("substituted score = %f, want heuristic 0", got)
			}
		})
	}
}

func TestGuardedScorerNilUsesHeuristic(t *testing.T) {
	g := newGuardedScorer(nil)
	got, err := g.Score(summaryWith(10, 20, 100), historyOf(3, 10, 50))
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if got != 1 {
		t.Errorf("Score = %f, want heuristic value 1", got)
	}
}
