package engine

// Thresholds are the ordered, right-closed TVSI boundaries of the state
// classifier. They are configuration, not constants, so deployments can
// retune the bands; each bound must stay strictly below the previous
// one.
type Thresholds struct {
	OptimalAbove float64 // tvsi > OptimalAbove           -> Optimal
	NormalAbove  float64 // NormalAbove  < tvsi <= Optimal -> Normal
	CautionAbove float64 // CautionAbove < tvsi <= Normal  -> Caution
	WarningAbove float64 // WarningAbove < tvsi <= Caution -> Warning
	SevereAbove  float64 // SevereAbove  < tvsi <= Warning -> Severe
	//                      tvsi <= SevereAbove            -> Critical
}

// DefaultThresholds returns the production-default classifier bands.
func DefaultThresholds() Thresholds {
	return Thresholds{
		OptimalAbove: 0.3,
		NormalAbove:  0.0,
		CautionAbove: -0.2,
		WarningAbove: -0.35,
		SevereAbove:  -0.5,
	}
}

// Classify maps a TVSI value to its health state and severity. The
// mapping is exhaustive and non-overlapping; boundaries belong to the
// lower (worse) band, so tvsi == OptimalAbove classifies as Normal and
// tvsi == SevereAbove as Critical.
func (t Thresholds) Classify(tvsi float64) (TrafficState, int) {
	switch {
	case tvsi > t.OptimalAbove:
		return StateOptimal, 0
	case tvsi > t.NormalAbove:
		return StateNormal, 1
	case tvsi > t.CautionAbove:
		return StateCaution, 2
	case tvsi > t.WarningAbove:
		return StateWarning, 3
	case tvsi > t.SevereAbove:
		return StateSevere, 4
	default:
		return StateCritical, 5
	}
}
