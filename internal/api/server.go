// Package api exposes the engine's outputs over HTTP: per-window index
// series, alerts, episodes, live stream health, and rendered charts.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/trafficvitals/tvsi/internal/db"
	"github.com/trafficvitals/tvsi/internal/engine"
	"github.com/trafficvitals/tvsi/internal/monitoring"
	"github.com/trafficvitals/tvsi/internal/units"
	"github.com/trafficvitals/tvsi/internal/version"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

const defaultListLimit = 500

// LiveIndex is the subset of Manager behaviour the API needs.
type LiveIndex interface {
	StreamIDs() []string
	Latest(id string) (engine.IndexSample, bool)
	LatestAll() []engine.IndexSample
}

type Server struct {
	db    *db.DB
	live  LiveIndex
	units string
}

// NewServer creates an API server. live may be nil when serving from a
// recorded database only; the live endpoints then return empty results.
func NewServer(database *db.DB, live LiveIndex, speedUnits string) *Server {
	return &Server{
		db:    database,
		live:  live,
		units: speedUnits,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	default:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	}
}

// LoggingMiddleware logs method, path, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.healthz)
	mux.HandleFunc("/api/index", s.listIndexSamples)
	mux.HandleFunc("/api/latest", s.showLatest)
	mux.HandleFunc("/api/alerts", s.listAlerts)
	mux.HandleFunc("/api/episodes", s.listEpisodes)
	mux.HandleFunc("/api/health", s.showHealth)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/charts/index", s.indexChart)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// requestUnits returns the speed units for a request: the units query
// parameter when present and valid, the server default otherwise.
func (s *Server) requestUnits(r *http.Request) (string, error) {
	u := r.URL.Query().Get("units")
	if u == "" {
		return s.units, nil
	}
	if !units.IsValid(u) {
		return "", fmt.Errorf("invalid 'units' parameter (accepted: %s)", units.ValidUnitsString())
	}
	return u, nil
}

func (s *Server) convertSampleSpeed(sample engine.IndexSample, targetUnits string) engine.IndexSample {
	sample.MeanSpeed = units.ConvertSpeed(sample.MeanSpeed, targetUnits)
	return sample
}

func (s *Server) listIndexSamples(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	streamID := r.URL.Query().Get("stream")
	if streamID == "" {
		s.writeJSONError(w, http.StatusBadRequest, "Missing 'stream' parameter")
		return
	}

	speedUnits, err := s.requestUnits(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	minutes := 60
	if m := r.URL.Query().Get("minutes"); m != "" {
		parsed, err := strconv.Atoi(m)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'minutes' parameter")
			return
		}
		minutes = parsed
	}

	limit := defaultListLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	since := time.Now().Add(-time.Duration(minutes) * time.Minute)
	samples, err := s.db.IndexSamples(streamID, since, limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve index samples: %v", err))
		return
	}

	for i := range samples {
		samples[i] = s.convertSampleSpeed(samples[i], speedUnits)
	}
	if samples == nil {
		samples = []engine.IndexSample{}
	}

	if err := json.NewEncoder(w).Encode(samples); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write index samples")
	}
}

func (s *Server) showLatest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	speedUnits, err := s.requestUnits(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	var latest []engine.IndexSample
	if s.live != nil {
		latest = s.live.LatestAll()
	}
	for i := range latest {
		latest[i] = s.convertSampleSpeed(latest[i], speedUnits)
	}
	if latest == nil {
		latest = []engine.IndexSample{}
	}

	if err := json.NewEncoder(w).Encode(latest); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write latest samples")
	}
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	streamID := r.URL.Query().Get("stream")
	if streamID == "" {
		s.writeJSONError(w, http.StatusBadRequest, "Missing 'stream' parameter")
		return
	}

	limit := defaultListLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	alerts, err := s.db.Alerts(streamID, limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve alerts: %v", err))
		return
	}
	if alerts == nil {
		alerts = []engine.AlertEvent{}
	}

	if err := json.NewEncoder(w).Encode(alerts); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write alerts")
	}
}

func (s *Server) listEpisodes(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	streamID := r.URL.Query().Get("stream")
	if streamID == "" {
		s.writeJSONError(w, http.StatusBadRequest, "Missing 'stream' parameter")
		return
	}

	limit := defaultListLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	episodes, err := s.db.Episodes(streamID, limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve episodes: %v", err))
		return
	}
	if episodes == nil {
		episodes = []engine.CongestionEpisode{}
	}

	if err := json.NewEncoder(w).Encode(episodes); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write episodes")
	}
}

// StreamHealth is one stream's entry in the health rollup.
type StreamHealth struct {
	StreamID  string              `json:"stream_id"`
	State     engine.TrafficState `json:"state"`
	Severity  int                 `json:"severity"`
	Trend     engine.Trend        `json:"trend"`
	TVSI      float64             `json:"tvsi"`
	WarmingUp bool                `json:"warming_up"`
	AsOf      time.Time           `json:"as_of"`
}

// HealthRollup summarizes all live streams; Worst carries the state of
// the stream with the highest severity currently observed.
type HealthRollup struct {
	Streams []StreamHealth      `json:"streams"`
	Worst   engine.TrafficState `json:"worst"`
}

func (s *Server) showHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	rollup := HealthRollup{Streams: []StreamHealth{}, Worst: engine.StateWarmup}
	worstSeverity := -1

	var latest []engine.IndexSample
	if s.live != nil {
		latest = s.live.LatestAll()
	}
	for _, sample := range latest {
		rollup.Streams = append(rollup.Streams, StreamHealth{
			StreamID:  sample.StreamID,
			State:     sample.State,
			Severity:  sample.Severity,
			Trend:     sample.Trend,
			TVSI:      sample.TVSI,
			WarmingUp: sample.WarmingUp,
			AsOf:      sample.Timestamp,
		})
		if !sample.WarmingUp && sample.Severity > worstSeverity {
			worstSeverity = sample.Severity
			rollup.Worst = sample.State
		}
	}

	if err := json.NewEncoder(w).Encode(rollup); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write health rollup")
	}
}

// StateStats reports how a stream's windows were distributed across
// traffic states over a period.
type StateStats struct {
	StreamID string                         `json:"stream_id"`
	Minutes  int                            `json:"minutes"`
	Windows  int                            `json:"windows"`
	Counts   map[engine.TrafficState]int    `json:"counts"`
	Shares   map[engine.TrafficState]float64 `json:"shares"`
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	streamID := r.URL.Query().Get("stream")
	if streamID == "" {
		s.writeJSONError(w, http.StatusBadRequest, "Missing 'stream' parameter")
		return
	}

	minutes := 60
	if m := r.URL.Query().Get("minutes"); m != "" {
		parsed, err := strconv.Atoi(m)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'minutes' parameter")
			return
		}
		minutes = parsed
	}

	since := time.Now().Add(-time.Duration(minutes) * time.Minute)
	counts, err := s.db.StateCounts(streamID, since)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve state counts: %v", err))
		return
	}

	stats := StateStats{
		StreamID: streamID,
		Minutes:  minutes,
		Counts:   counts,
		Shares:   map[engine.TrafficState]float64{},
	}
	for _, n := range counts {
		stats.Windows += n
	}
	for state, n := range counts {
		stats.Shares[state] = float64(n) / float64(stats.Windows)
	}

	if err := json.NewEncoder(w).Encode(stats); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write state stats")
	}
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	config := map[string]interface{}{
		"units":   s.units,
		"version": version.Version,
	}

	if err := json.NewEncoder(w).Encode(config); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write config")
	}
}
