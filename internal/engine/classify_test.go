package engine

import "testing"

func TestClassifyBands(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		tvsi     float64
		state    TrafficState
		severity int
	}{
		{1.0, StateOptimal, 0},
		{0.31, StateOptimal, 0},
		{0.3, StateNormal, 1}, // boundary belongs to the lower band
		{0.1, StateNormal, 1},
		{0.0, StateCaution, 2},
		{-0.1, StateCaution, 2},
		{-0.2, StateWarning, 3},
		{-0.3, StateWarning, 3},
		{-0.35, StateSevere, 4},
		{-0.45, StateSevere, 4},
		{-0.5, StateCritical, 5}, // boundary belongs to critical
		{-1.0, StateCritical, 5},
	}
	for _, tt := range tests {
		state, severity := th.Classify(tt.tvsi)
		if state != tt.state || severity != tt.severity {
			t.Errorf("Classify(%v) = (%q, %d), want (%q, %d)",
				tt.tvsi, state, severity, tt.state, tt.severity)
		}
	}
}

func TestClassifyCustomThresholds(t *testing.T) {
	th := Thresholds{
		OptimalAbove: 0.5,
		NormalAbove:  0.2,
		CautionAbove: 0.0,
		WarningAbove: -0.2,
		SevereAbove:  -0.4,
	}
	if state, _ := th.Classify(0.4); state != StateNormal {
		t.Errorf("Classify(0.4) = %q, want normal with retuned bands", state)
	}
	if state, sev := th.Classify(-0.4); state != StateCritical || sev != 5 {
		t.Errorf("Classify(-0.4) = %q/%d, want critical/5", state, sev)
	}
}
