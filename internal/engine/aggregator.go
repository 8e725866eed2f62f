package engine

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// WindowAggregator turns a stream of per-frame detections into
// fixed-duration window summaries. Flushing is driven by a timer, not
// by sample volume, so the aggregator is decoupled from perception
// throughput. Not safe for concurrent use; each stream owns one
// aggregator and feeds it sequentially.
type WindowAggregator struct {
	streamID    string
	windowStart time.Time

	// prevPresent holds the tracks observed in the previous window.
	// A track not in this set counts toward flow when first seen, so
	// tracks spanning a window boundary are not re-counted as entries.
	prevPresent map[string]struct{}

	seen      map[string]struct{} // tracks observed this window
	entered   map[string]struct{} // tracks that entered this window
	lastFrame map[string]int64    // last frame each track was counted in

	frames      map[int64]int // distinct tracks per frame
	speeds      []float64
	speedIdx    map[sampleKey]int // coalesces duplicate (track, frame) speeds
	malformed   int
}

type sampleKey struct {
	track string
	frame int64
}

// NewWindowAggregator creates an aggregator whose first window opens at
// start.
func NewWindowAggregator(streamID string, start time.Time) *WindowAggregator {
	w := &WindowAggregator{
		streamID:    streamID,
		windowStart: start,
		prevPresent: make(map[string]struct{}),
	}
	w.reset()
	return w
}

// Ingest appends a detection to the current window's working set.
// Malformed samples are counted and skipped; a duplicate observation
// for the same track and frame replaces the earlier one rather than
// growing the buffer.
func (w *WindowAggregator) Ingest(s DetectionSample) {
	if !s.Valid() {
		w.malformed++
		return
	}

	w.seen[s.TrackID] = struct{}{}
	if _, carried := w.prevPresent[s.TrackID]; !carried {
		w.entered[s.TrackID] = struct{}{}
	}

	if last, ok := w.lastFrame[s.TrackID]; !ok || last != s.FrameIndex {
		w.frames[s.FrameIndex]++
		w.lastFrame[s.TrackID] = s.FrameIndex
	}

	if !s.HasSpeed() {
		w.malformed++
		return
	}

	key := sampleKey{track: s.TrackID, frame: s.FrameIndex}
	if i, ok := w.speedIdx[key]; ok {
		w.speeds[i] = s.SpeedMPS
		return
	}
	w.speedIdx[key] = len(w.speeds)
	w.speeds = append(w.speeds, s.SpeedMPS)
}

// Flush closes the current window at windowEnd, emits its summary, and
// opens the next window. No samples leak across the boundary. An empty
// window still produces a summary with flow and density zero.
func (w *WindowAggregator) Flush(windowEnd time.Time) WindowSummary {
	sum := WindowSummary{
		StreamID:    w.streamID,
		WindowStart: w.windowStart,
		WindowEnd:   windowEnd,
		Flow:        len(w.entered),
		Density:     w.timeAveragedDensity(),
		Malformed:   w.malformed,
	}

	if len(w.speeds) > 0 {
		sum.MeanSpeed = stat.Mean(w.speeds, nil)
	}
	if len(w.speeds) >= 2 {
		sum.SpeedVariance = stat.Variance(w.speeds, nil)
	}

	w.prevPresent = w.seen
	w.windowStart = windowEnd
	w.reset()
	return sum
}

// timeAveragedDensity averages the distinct concurrent track count over
// the frames observed in the window. Density is defined as this time
// average rather than the instantaneous end-of-window count; under
// fluctuating traffic the average is the more stable normalization
// input.
func (w *WindowAggregator) timeAveragedDensity() int {
	if len(w.frames) == 0 {
		return 0
	}
	total := 0
	for _, n := range w.frames {
		total += n
	}
	return total / len(w.frames)
}

// WindowStart returns the opening time of the current window.
func (w *WindowAggregator) WindowStart() time.Time {
	return w.windowStart
}

func (w *WindowAggregator) reset() {
	w.seen = make(map[string]struct{})
	w.entered = make(map[string]struct{})
	w.lastFrame = make(map[string]int64)
	w.frames = make(map[int64]int)
	w.speeds = w.speeds[:0]
	w.speedIdx = make(map[sampleKey]int)
	w.malformed = 0
}
