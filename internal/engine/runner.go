package engine

import (
	"context"
	"sort"
	"sync"

	"github.com/trafficvitals/tvsi/internal/monitoring"
	"github.com/trafficvitals/tvsi/internal/timeutil"
)

// Manager runs one independent pipeline per stream. Streams are created
// on first sight of a detection and each is driven by its own flush
// ticker goroutine, so window ticks stay strictly ordered within a
// stream while streams proceed in parallel with no shared mutable
// state.
type Manager struct {
	mu sync.RWMutex

	cfg       Config
	clock     timeutil.Clock
	sink      Sink
	newScorer func() Scorer

	streams map[string]*managedStream
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type managedStream struct {
	stream *Stream
	cancel context.CancelFunc
}

// NewManager creates a stream manager. newScorer may be nil, in which
// case every stream uses the default heuristic scorer; otherwise it is
// called once per stream so stateful scorers are never shared.
func NewManager(cfg Config, clock timeutil.Clock, sink Sink, newScorer func() Scorer) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	if newScorer == nil {
		newScorer = func() Scorer { return HeuristicScorer{} }
	}
	return &Manager{
		cfg:       cfg,
		clock:     clock,
		sink:      sink,
		newScorer: newScorer,
		streams:   make(map[string]*managedStream),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Ingest routes a detection sample to its stream's pipeline, creating
// the stream on first sight.
func (m *Manager) Ingest(s DetectionSample) {
	if s.StreamID == "" {
		monitoring.Warnf("dropping detection with empty stream_id (track %s)", s.TrackID)
		return
	}
	m.lookup(s.StreamID).Ingest(s)
}

// lookup returns the pipeline for id, creating and starting it if
// needed.
func (m *Manager) lookup(id string) *Stream {
	m.mu.RLock()
	ms, ok := m.streams[id]
	m.mu.RUnlock()
	if ok {
		return ms.stream
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if ms, ok := m.streams[id]; ok {
		return ms.stream
	}

	st := NewStream(id, m.cfg, m.newScorer(), m.sink, m.clock.Now())
	ctx, cancel := context.WithCancel(m.ctx)
	m.streams[id] = &managedStream{stream: st, cancel: cancel}

	m.wg.Add(1)
	go m.run(ctx, st)
	monitoring.Logf("stream %s: pipeline started (window %s, warmup %d windows)",
		id, m.cfg.WindowDuration, m.cfg.WarmupWindows)
	return st
}

// run drives one stream's window flush ticker until cancellation.
func (m *Manager) run(ctx context.Context, st *Stream) {
	defer m.wg.Done()
	tick := m.clock.NewTicker(m.cfg.WindowDuration)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			// In-flight window state is discarded, never emitted as a
			// partial window.
			st.Discard()
			monitoring.Logf("stream %s: pipeline stopped", st.ID())
			return
		case now := <-tick.C():
			st.Tick(now)
		}
	}
}

// StopStream cancels one stream's pipeline, discarding its in-flight
// window. Other streams are unaffected.
func (m *Manager) StopStream(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ms, ok := m.streams[id]; ok {
		ms.cancel()
		delete(m.streams, id)
	}
}

// Stop cancels all stream pipelines and waits for them to exit.
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
	m.mu.Lock()
	m.streams = make(map[string]*managedStream)
	m.mu.Unlock()
}

// StreamIDs returns the identifiers of all running streams, sorted.
func (m *Manager) StreamIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.streams))
	for id := range m.streams {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Latest returns the most recent index sample for one stream.
func (m *Manager) Latest(id string) (IndexSample, bool) {
	m.mu.RLock()
	ms, ok := m.streams[id]
	m.mu.RUnlock()
	if !ok {
		return IndexSample{}, false
	}
	return ms.stream.Latest()
}

// LatestAll returns the most recent index sample of every stream that
// has produced one, ordered by stream ID.
func (m *Manager) LatestAll() []IndexSample {
	ids := m.StreamIDs()
	out := make([]IndexSample, 0, len(ids))
	for _, id := range ids {
		if s, ok := m.Latest(id); ok {
			out = append(out, s)
		}
	}
	return out
}
