package engine

import (
	"testing"
	"time"

	"github.com/trafficvitals/tvsi/internal/timeutil"
)

// advanceUntilIndex steps the mock clock one window at a time until the
// sink delivers an index sample for the wanted stream. The runner's
// ticker is registered asynchronously, so the first advances may land
// before it exists.
func advanceUntilIndex(t *testing.T, clock *timeutil.MockClock, sink *captureSink, window time.Duration, streamID string) IndexSample {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		clock.Advance(window)
		select {
		case s := <-sink.indexCh:
			if s.StreamID == streamID {
				return s
			}
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatalf("no index sample for %s", streamID)
		}
	}
}

func TestManagerCreatesStreamOnIngest(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	sink := newCaptureSink()
	m := NewManager(DefaultConfig(), clock, sink, nil)
	defer m.Stop()

	m.Ingest(sample("a", 1, 12))

	if ids := m.StreamIDs(); len(ids) != 1 || ids[0] != "cam-1" {
		t.Fatalf("StreamIDs = %v, want [cam-1]", ids)
	}

	got := advanceUntilIndex(t, clock, sink, DefaultConfig().WindowDuration, "cam-1")
	if !got.WarmingUp {
		t.Error("first window of a new stream should be a warm-up placeholder")
	}

	latest, ok := m.Latest("cam-1")
	if !ok || latest.StreamID != "cam-1" {
		t.Error("Latest() missing after first window")
	}
}

func TestManagerDropsEmptyStreamID(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	m := NewManager(DefaultConfig(), clock, newCaptureSink(), nil)
	defer m.Stop()

	s := sample("a", 1, 12)
	s.StreamID = ""
	m.Ingest(s)

	if ids := m.StreamIDs(); len(ids) != 0 {
		t.Errorf("StreamIDs = %v, want none", ids)
	}
}

func TestManagerStreamsAreIsolated(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	sink := newCaptureSink()
	m := NewManager(DefaultConfig(), clock, sink, nil)
	defer m.Stop()

	a := sample("a", 1, 12)
	b := sample("b", 1, 9)
	b.StreamID = "cam-2"
	m.Ingest(a)
	m.Ingest(b)

	if ids := m.StreamIDs(); len(ids) != 2 {
		t.Fatalf("StreamIDs = %v, want two streams", ids)
	}

	m.StopStream("cam-1")
	if ids := m.StreamIDs(); len(ids) != 1 || ids[0] != "cam-2" {
		t.Fatalf("StreamIDs after StopStream = %v, want [cam-2]", ids)
	}
	if _, ok := m.Latest("cam-1"); ok {
		t.Error("stopped stream still reachable")
	}

	// The surviving stream keeps producing windows.
	got := advanceUntilIndex(t, clock, sink, DefaultConfig().WindowDuration, "cam-2")
	if got.StreamID != "cam-2" {
		t.Errorf("StreamID = %q, want cam-2", got.StreamID)
	}
}

func TestManagerStopShutsDownAllStreams(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	m := NewManager(DefaultConfig(), clock, newCaptureSink(), nil)

	m.Ingest(sample("a", 1, 12))
	m.Stop()

	if ids := m.StreamIDs(); len(ids) != 0 {
		t.Errorf("StreamIDs after Stop = %v, want none", ids)
	}
	if _, ok := m.Latest("cam-1"); ok {
		t.Error("Latest() available after Stop")
	}
}

func TestManagerLatestAllOrdered(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	sink := newCaptureSink()
	m := NewManager(DefaultConfig(), clock, sink, nil)
	defer m.Stop()

	b := sample("b", 1, 9)
	b.StreamID = "cam-2"
	m.Ingest(b)
	m.Ingest(sample("a", 1, 12))

	advanceUntilIndex(t, clock, sink, DefaultConfig().WindowDuration, "cam-1")
	advanceUntilIndex(t, clock, sink, DefaultConfig().WindowDuration, "cam-2")

	all := m.LatestAll()
	if len(all) != 2 {
		t.Fatalf("LatestAll returned %d samples, want 2", len(all))
	}
	if all[0].StreamID != "cam-1" || all[1].StreamID != "cam-2" {
		t.Errorf("LatestAll order = [%s %s], want [cam-1 cam-2]", all[0].StreamID, all[1].StreamID)
	}
}
