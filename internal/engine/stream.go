package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/trafficvitals/tvsi/internal/monitoring"
)

// historyWindows is how many recent summaries are retained for the
// anomaly scorer's history argument.
const historyWindows = 12

// trendWindows is how many recent TVSI values feed the trend
// classification.
const trendWindows = 3

// trendBand is the TVSI movement below which the trend reads stable.
const trendBand = 0.1

// Sink receives the engine's per-window outputs. Implementations that
// share a sink across streams own their own concurrency discipline; the
// engine calls a sink from one goroutine per stream.
type Sink interface {
	EmitIndex(s IndexSample) error
	EmitAlert(a AlertEvent) error
	EmitEpisode(e CongestionEpisode) error
}

// Stream is the per-stream pipeline context. It owns every piece of
// mutable state for one camera/stream — aggregator buffer, calibrator
// baseline, detector prior, episode machine — so multiple streams can
// run in parallel with nothing shared.
type Stream struct {
	mu sync.Mutex

	id  string
	cfg Config

	agg      *WindowAggregator
	cal      *Calibrator
	scorer   *guardedScorer
	detector *Detector
	episodes *EpisodeTracker
	sink     Sink

	history    []WindowSummary // recent summaries handed to the scorer
	tvsiRecent []float64       // recent TVSI values for trend
	varRecent  []float64       // recent speed variances for smoothing

	lastWindowStart time.Time
	hasProcessed    bool
	latest          IndexSample
	hasLatest       bool
}

// NewStream creates a pipeline for one stream. scorer may be nil to use
// the default heuristic; start is the opening time of the first window.
func NewStream(id string, cfg Config, scorer Scorer, sink Sink, start time.Time) *Stream {
	return &Stream{
		id:       id,
		cfg:      cfg,
		agg:      NewWindowAggregator(id, start),
		cal:      NewCalibrator(cfg),
		scorer:   newGuardedScorer(scorer),
		detector: NewDetector(cfg),
		episodes: NewEpisodeTracker(cfg),
		sink:     sink,
	}
}

// ID returns the stream identifier.
func (st *Stream) ID() string { return st.id }

// Ingest appends a detection sample to the current window.
func (st *Stream) Ingest(s DetectionSample) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.agg.Ingest(s)
}

// Tick closes the current window at windowEnd and runs the full
// per-window evaluation. Called by the flush timer; an empty window
// still produces a summary with flow and density zero.
func (st *Stream) Tick(windowEnd time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()

	sum := st.agg.Flush(windowEnd)
	if err := st.processSummary(sum); err != nil {
		monitoring.Warnf("stream %s: %v", st.id, err)
	}
}

// ProcessSummary runs one already-aggregated window summary through the
// reasoning pipeline. Tick goes through here; callers replaying stored
// summaries can use it directly. Window ticks must arrive strictly
// ordered: a summary whose window_start is not beyond the previous
// processed one is rejected.
func (st *Stream) ProcessSummary(sum WindowSummary) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.processSummary(sum)
}

func (st *Stream) processSummary(sum WindowSummary) error {
	if st.hasProcessed && !sum.WindowStart.After(st.lastWindowStart) {
		return fmt.Errorf("out-of-order window tick rejected: window_start %s not after %s",
			sum.WindowStart.Format(time.RFC3339), st.lastWindowStart.Format(time.RFC3339))
	}
	st.lastWindowStart = sum.WindowStart
	st.hasProcessed = true

	if sum.Malformed > 0 {
		monitoring.Logf("stream %s: excluded %d malformed detections from window at %s",
			st.id, sum.Malformed, sum.WindowEnd.Format("15:04:05"))
	}

	st.cal.Observe(sum)

	var sample IndexSample
	if !st.cal.Ready() {
		sample = WarmupSample(sum)
	} else {
		anomaly, _ := st.scorer.Score(sum, st.history)
		sample = ComputeIndex(sum, st.smoothedVariance(sum.SpeedVariance), st.cal.Baseline(), anomaly, st.cfg.Weights)
		sample.State, sample.Severity = st.cfg.Thresholds.Classify(sample.TVSI)
		sample.Trend = st.trend(sample.TVSI)
	}

	st.pushHistory(sum)
	st.latest = sample
	st.hasLatest = true

	alert := st.detector.Evaluate(sample)
	episode := st.episodes.Observe(sample)
	if alert != nil {
		st.episodes.RecordAlert()
		monitoring.Warnf("stream %s: amber alert: tvsi=%.3f declining %.4f/s, ttc=%s",
			st.id, alert.TVSI, alert.DeclineRate, formatTTC(alert.SecondsToCritical))
	}

	st.emit(sample, alert, episode)
	return nil
}

// emit hands window outputs to the sink. Sink errors are recoverable:
// they are logged and the pipeline moves on.
func (st *Stream) emit(sample IndexSample, alert *AlertEvent, episode *CongestionEpisode) {
	if st.sink == nil {
		return
	}
	if err := st.sink.EmitIndex(sample); err != nil {
		monitoring.Warnf("stream %s: index sink: %v", st.id, err)
	}
	if alert != nil {
		if err := st.sink.EmitAlert(*alert); err != nil {
			monitoring.Warnf("stream %s: alert sink: %v", st.id, err)
		}
	}
	if episode != nil {
		if err := st.sink.EmitEpisode(*episode); err != nil {
			monitoring.Warnf("stream %s: episode sink: %v", st.id, err)
		}
	}
}

func formatTTC(seconds *float64) string {
	if seconds == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.0fs", *seconds)
}

// smoothedVariance returns the mean of the last few window variances
// including the current one, damping single-window spikes before
// normalization.
func (st *Stream) smoothedVariance(current float64) float64 {
	st.varRecent = append(st.varRecent, current)
	if n := st.cfg.SpeedSmoothingWindows; n > 0 && len(st.varRecent) > n {
		st.varRecent = st.varRecent[len(st.varRecent)-n:]
	}
	total := 0.0
	for _, v := range st.varRecent {
		total += v
	}
	return total / float64(len(st.varRecent))
}

// trend classifies the direction of the recent TVSI series.
func (st *Stream) trend(tvsi float64) Trend {
	st.tvsiRecent = append(st.tvsiRecent, tvsi)
	if len(st.tvsiRecent) > trendWindows {
		st.tvsiRecent = st.tvsiRecent[len(st.tvsiRecent)-trendWindows:]
	}
	if len(st.tvsiRecent) < trendWindows {
		return TrendStable
	}
	diff := st.tvsiRecent[len(st.tvsiRecent)-1] - st.tvsiRecent[0]
	switch {
	case diff > trendBand:
		return TrendImproving
	case diff < -trendBand:
		return TrendDegrading
	default:
		return TrendStable
	}
}

func (st *Stream) pushHistory(sum WindowSummary) {
	st.history = append(st.history, sum)
	if len(st.history) > historyWindows {
		st.history = st.history[len(st.history)-historyWindows:]
	}
}

// Latest returns the most recently emitted index sample, if any.
func (st *Stream) Latest() (IndexSample, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.latest, st.hasLatest
}

// Discard drops the in-flight window buffer without emitting anything.
// Used when a stream is cancelled; other streams are unaffected.
func (st *Stream) Discard() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.agg = NewWindowAggregator(st.id, st.agg.WindowStart())
}
