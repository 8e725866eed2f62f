package engine

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/trafficvitals/tvsi/internal/monitoring"
)

// Dimension identifies a normalizable window metric.
type Dimension string

const (
	DimFlow          Dimension = "flow"
	DimDensity       Dimension = "density"
	DimSpeedVariance Dimension = "speed_variance"
)

// Baseline holds the adaptive reference values used to normalize raw
// window metrics into [-1, 1]. Values are strictly positive once set.
type Baseline struct {
	Flow          float64 `json:"flow"`
	Density       float64 `json:"density"`
	SpeedVariance float64 `json:"speed_variance"`
}

// Normalize maps a raw value against the baseline for the given
// dimension: a value equal to the baseline maps to exactly 1, zero maps
// to -1, and everything is clamped to [-1, 1].
func (b Baseline) Normalize(raw float64, dim Dimension) float64 {
	var ref float64
	switch dim {
	case DimFlow:
		ref = b.Flow
	case DimDensity:
		ref = b.Density
	case DimSpeedVariance:
		ref = b.SpeedVariance
	default:
		return 0
	}
	return clamp(raw/ref*2-1, -1, 1)
}

// Calibrator learns per-stream baselines from early window summaries
// and keeps them current with rolling recalibration. Normalization is
// undefined until Ready returns true. Owned by one stream; not safe for
// concurrent use.
type Calibrator struct {
	warmupWindows int
	recalWindows  int
	blendAlpha    float64
	epsilon       float64
	percentile    float64

	flows     []float64
	densities []float64
	speedVars []float64

	baseline Baseline
	ready    bool
}

// NewCalibrator creates a calibrator with the given engine parameters.
func NewCalibrator(cfg Config) *Calibrator {
	return &Calibrator{
		warmupWindows: cfg.WarmupWindows,
		recalWindows:  cfg.RecalibrationWindows,
		blendAlpha:    cfg.BaselineBlendAlpha,
		epsilon:       cfg.BaselineEpsilon,
		percentile:    cfg.BaselinePercentile,
	}
}

// Ready reports whether warm-up has completed and Normalize is usable.
func (c *Calibrator) Ready() bool {
	return c.ready
}

// Baseline returns the current baseline snapshot. Zero until Ready.
func (c *Calibrator) Baseline() Baseline {
	return c.baseline
}

// Observe accumulates a window summary. During warm-up it only
// collects; the first baselines are computed when the warm-up set is
// complete. After warm-up it feeds the trailing recalibration buffer
// and periodically blends a freshly computed baseline into the current
// one, so baselines drift with traffic rather than freezing to startup
// conditions.
func (c *Calibrator) Observe(sum WindowSummary) {
	c.flows = append(c.flows, float64(sum.Flow))
	c.densities = append(c.densities, float64(sum.Density))
	c.speedVars = append(c.speedVars, sum.SpeedVariance)

	if !c.ready {
		if len(c.flows) >= c.warmupWindows {
			c.baseline = c.computeBaseline()
			c.ready = true
			c.trim()
			monitoring.Logf("stream %s: baseline calibrated flow=%.2f density=%.2f speed_var=%.2f",
				sum.StreamID, c.baseline.Flow, c.baseline.Density, c.baseline.SpeedVariance)
		}
		return
	}

	c.trim()
	if len(c.flows) >= c.recalWindows {
		fresh := c.computeBaseline()
		c.baseline = Baseline{
			Flow:          blend(c.baseline.Flow, fresh.Flow, c.blendAlpha),
			Density:       blend(c.baseline.Density, fresh.Density, c.blendAlpha),
			SpeedVariance: blend(c.baseline.SpeedVariance, fresh.SpeedVariance, c.blendAlpha),
		}
		c.flows = c.flows[:0]
		c.densities = c.densities[:0]
		c.speedVars = c.speedVars[:0]
	}
}

// Normalize maps a raw metric to [-1, 1] against the current baseline.
// Callers must check Ready first; before warm-up completes the result
// is meaningless.
func (c *Calibrator) Normalize(raw float64, dim Dimension) float64 {
	return c.baseline.Normalize(raw, dim)
}

// computeBaseline derives a baseline candidate from the buffered
// summaries: the configured percentile of flow and density, the mean of
// speed variance. Every value is floored to epsilon so near-empty
// warm-up traffic can never produce a zero divisor.
func (c *Calibrator) computeBaseline() Baseline {
	return Baseline{
		Flow:          c.floor(quantile(c.flows, c.percentile)),
		Density:       c.floor(quantile(c.densities, c.percentile)),
		SpeedVariance: c.floor(stat.Mean(c.speedVars, nil)),
	}
}

func (c *Calibrator) floor(v float64) float64 {
	if v < c.epsilon {
		return c.epsilon
	}
	return v
}

// trim keeps only the trailing recalibration buffer.
func (c *Calibrator) trim() {
	if n := len(c.flows); n > c.recalWindows {
		c.flows = c.flows[n-c.recalWindows:]
		c.densities = c.densities[n-c.recalWindows:]
		c.speedVars = c.speedVars[n-c.recalWindows:]
	}
}

func blend(old, fresh, alpha float64) float64 {
	return (1-alpha)*old + alpha*fresh
}

// quantile computes the empirical quantile of values without mutating
// the input.
func quantile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}
