package api

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/trafficvitals/tvsi/internal/db"
	"github.com/trafficvitals/tvsi/internal/engine"
	"github.com/trafficvitals/tvsi/internal/units"
)

// fakeLive is a LiveIndex stub backed by a fixed sample set.
type fakeLive struct {
	samples []engine.IndexSample
}

func (f *fakeLive) StreamIDs() []string {
	ids := make([]string, 0, len(f.samples))
	for _, s := range f.samples {
		ids = append(ids, s.StreamID)
	}
	return ids
}

func (f *fakeLive) Latest(id string) (engine.IndexSample, bool) {
	for _, s := range f.samples {
		if s.StreamID == id {
			return s, true
		}
	}
	return engine.IndexSample{}, false
}

func (f *fakeLive) LatestAll() []engine.IndexSample {
	out := make([]engine.IndexSample, len(f.samples))
	copy(out, f.samples)
	return out
}

func setupTestServer(t *testing.T, live LiveIndex) (*Server, *db.DB) {
	t.Helper()
	database, err := db.NewDB(filepath.Join(t.TempDir(), "tvsi.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewServer(database, live, units.MPS), database
}

func recordedSample(streamID string, age time.Duration, tvsi float64) engine.IndexSample {
	end := time.Now().Add(-age)
	state, severity := engine.DefaultThresholds().Classify(tvsi)
	return engine.IndexSample{
		StreamID:    streamID,
		WindowStart: end.Add(-5 * time.Second),
		Timestamp:   end,
		TVSI:        tvsi,
		State:       state,
		Severity:    severity,
		Trend:       engine.TrendStable,
		Flow:        10,
		Density:     3,
		MeanSpeed:   10.0,
	}
}

func TestListIndexSamples(t *testing.T) {
	server, database := setupTestServer(t, nil)

	if err := database.RecordIndexSample(recordedSample("cam-1", 2*time.Minute, 0.4)); err != nil {
		t.Fatal(err)
	}
	if err := database.RecordIndexSample(recordedSample("cam-1", time.Minute, 0.2)); err != nil {
		t.Fatal(err)
	}
	// Out of the default 60-minute window.
	if err := database.RecordIndexSample(recordedSample("cam-1", 2*time.Hour, 0.1)); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/index?stream=cam-1", nil)
	w := httptest.NewRecorder()
	server.listIndexSamples(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var samples []engine.IndexSample
	if err := json.NewDecoder(w.Body).Decode(&samples); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("got %d samples, want 2 (old window excluded)", len(samples))
	}
	if samples[0].TVSI != 0.4 || samples[1].TVSI != 0.2 {
		t.Errorf("samples out of order or wrong: %+v", samples)
	}
}

func TestListIndexSamplesUnitsConversion(t *testing.T) {
	server, database := setupTestServer(t, nil)

	if err := database.RecordIndexSample(recordedSample("cam-1", time.Minute, 0.3)); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/index?stream=cam-1&units=mph", nil)
	w := httptest.NewRecorder()
	server.listIndexSamples(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var samples []engine.IndexSample
	if err := json.NewDecoder(w.Body).Decode(&samples); err != nil {
		t.Fatal(err)
	}
	if len(samples) != 1 {
		t.Fatalf("got %d samples, want 1", len(samples))
	}
	if math.Abs(samples[0].MeanSpeed-22.3694) > 0.01 {
		t.Errorf("MeanSpeed = %f, want 22.3694 mph", samples[0].MeanSpeed)
	}
}

func TestListIndexSamplesValidation(t *testing.T) {
	server, _ := setupTestServer(t, nil)

	tests := []struct {
		name string
		url  string
		want int
	}{
		{"missing stream", "/api/index", http.StatusBadRequest},
		{"bad units", "/api/index?stream=cam-1&units=furlongs", http.StatusBadRequest},
		{"bad minutes", "/api/index?stream=cam-1&minutes=0", http.StatusBadRequest},
		{"bad limit", "/api/index?stream=cam-1&limit=-1", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			w := httptest.NewRecorder()
			server.listIndexSamples(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/index?stream=cam-1", strings.NewReader(""))
	w := httptest.NewRecorder()
	server.listIndexSamples(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want 405", w.Code)
	}
}

func TestListAlerts(t *testing.T) {
	server, database := setupTestServer(t, nil)

	ttc := 38.1
	err := database.RecordAlert(engine.AlertEvent{
		ID:                "a1",
		StreamID:          "cam-1",
		TriggerTime:       time.Now().Add(-time.Minute),
		TVSI:              -0.1,
		DeclineRate:       -0.04,
		SecondsToCritical: &ttc,
		DensityRising:     true,
		SpeedFalling:      true,
	})
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/alerts?stream=cam-1", nil)
	w := httptest.NewRecorder()
	server.listAlerts(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var alerts []engine.AlertEvent
	if err := json.NewDecoder(w.Body).Decode(&alerts); err != nil {
		t.Fatal(err)
	}
	if len(alerts) != 1 || alerts[0].ID != "a1" {
		t.Fatalf("unexpected alerts: %+v", alerts)
	}
	if alerts[0].SecondsToCritical == nil || *alerts[0].SecondsToCritical != 38.1 {
		t.Error("seconds_to_critical lost in API round trip")
	}
}

func TestListEpisodesEmptyIsArray(t *testing.T) {
	server, _ := setupTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/episodes?stream=cam-1", nil)
	w := httptest.NewRecorder()
	server.listEpisodes(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("empty episode list encoded as %q, want []", got)
	}
}

func TestShowHealthRollup(t *testing.T) {
	live := &fakeLive{samples: []engine.IndexSample{
		recordedSample("cam-1", time.Minute, 0.4),   // optimal
		recordedSample("cam-2", time.Minute, -0.45), // severe
		{StreamID: "cam-3", Timestamp: time.Now(), State: engine.StateWarmup, WarmingUp: true},
	}}
	server, _ := setupTestServer(t, live)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	server.showHealth(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var rollup HealthRollup
	if err := json.NewDecoder(w.Body).Decode(&rollup); err != nil {
		t.Fatal(err)
	}
	if len(rollup.Streams) != 3 {
		t.Fatalf("got %d streams, want 3", len(rollup.Streams))
	}
	if rollup.Worst != engine.StateSevere {
		t.Errorf("Worst = %q, want severe (warm-up streams excluded)", rollup.Worst)
	}
}

func TestShowLatestConvertsUnits(t *testing.T) {
	live := &fakeLive{samples: []engine.IndexSample{
		recordedSample("cam-1", time.Minute, 0.4),
	}}
	server, _ := setupTestServer(t, live)

	req := httptest.NewRequest(http.MethodGet, "/api/latest?units=kmph", nil)
	w := httptest.NewRecorder()
	server.showLatest(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var samples []engine.IndexSample
	if err := json.NewDecoder(w.Body).Decode(&samples); err != nil {
		t.Fatal(err)
	}
	if len(samples) != 1 {
		t.Fatalf("got %d samples, want 1", len(samples))
	}
	if math.Abs(samples[0].MeanSpeed-36.0) > 0.01 {
		t.Errorf("MeanSpeed = %f, want 36 km/h", samples[0].MeanSpeed)
	}
}

func TestIndexChartRendersHTML(t *testing.T) {
	server, database := setupTestServer(t, nil)

	for i := 0; i < 5; i++ {
		sample := recordedSample("cam-1", time.Duration(5-i)*time.Minute, 0.1*float64(i))
		if err := database.RecordIndexSample(sample); err != nil {
			t.Fatal(err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/charts/index?stream=cam-1", nil)
	w := httptest.NewRecorder()
	server.indexChart(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
	if !strings.Contains(w.Body.String(), "echarts") {
		t.Error("chart response does not embed echarts")
	}
}

func TestIndexChartNoData(t *testing.T) {
	server, _ := setupTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/charts/index?stream=cam-9", nil)
	w := httptest.NewRecorder()
	server.indexChart(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	server, _ := setupTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Errorf("healthz = %d %q", w.Code, w.Body.String())
	}
}

func TestShowStats(t *testing.T) {
	s, database := setupTestServer(t, nil)

	database.RecordIndexSample(recordedSample("cam-1", time.Minute, 0.4))
	database.RecordIndexSample(recordedSample("cam-1", 2*time.Minute, 0.4))
	database.RecordIndexSample(recordedSample("cam-1", 3*time.Minute, -0.4))
	database.RecordIndexSample(recordedSample("cam-2", time.Minute, -0.4))

	req := httptest.NewRequest(http.MethodGet, "/api/stats?stream=cam-1&minutes=30", nil)
	rec := httptest.NewRecorder()
	s.showStats(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var stats StateStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Windows != 3 {
		t.Errorf("Windows = %d, want 3", stats.Windows)
	}
	if stats.Counts[engine.StateOptimal] != 2 || stats.Counts[engine.StateSevere] != 1 {
		t.Errorf("Counts = %v, want optimal:2 severe:1", stats.Counts)
	}
	if got := stats.Shares[engine.StateOptimal]; math.Abs(got-2.0/3.0) > 1e-9 {
		t.Errorf("optimal share = %v, want 2/3", got)
	}
}

func TestShowStatsRequiresStream(t *testing.T) {
	s, _ := setupTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	s.showStats(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
