// Package db persists the engine's per-window outputs to sqlite. Times
// are stored as unix milliseconds so sub-second window configurations
// survive a round trip.
package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/trafficvitals/tvsi/internal/engine"
)

type DB struct {
	*sql.DB
}

// OpenDB opens the database without touching the schema. Used by the
// migrate subcommand, which manages the schema itself.
func OpenDB(path string) (*DB, error) {
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL lets the HTTP handlers read while stream sinks write;
	// busy_timeout covers the occasional writer overlap.
	if _, err := sqldb.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("failed to set pragmas: %w", err)
	}
	return &DB{sqldb}, nil
}

// NewDB opens the database and ensures the schema exists.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS index_samples (
			stream_id         TEXT NOT NULL,
			window_start      BIGINT NOT NULL,
			timestamp         BIGINT NOT NULL,
			tvsi              DOUBLE,
			tfsi              DOUBLE,
			flow_norm         DOUBLE,
			density_norm      DOUBLE,
			speed_var_norm    DOUBLE,
			anomaly           DOUBLE,
			state             TEXT,
			severity          BIGINT,
			trend             TEXT,
			warming_up        BIGINT NOT NULL DEFAULT 0,
			flow              BIGINT,
			density           BIGINT,
			mean_speed        DOUBLE
		);
		CREATE INDEX IF NOT EXISTS idx_index_samples_stream_time
			ON index_samples (stream_id, timestamp);
		CREATE TABLE IF NOT EXISTS alert_events (
			id                  TEXT PRIMARY KEY,
			stream_id           TEXT NOT NULL,
			trigger_time        BIGINT NOT NULL,
			tvsi                DOUBLE,
			decline_rate        DOUBLE,
			seconds_to_critical DOUBLE,
			density_rising      BIGINT NOT NULL DEFAULT 0,
			speed_falling       BIGINT NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS congestion_episodes (
			id           TEXT PRIMARY KEY,
			stream_id    TEXT NOT NULL,
			start_time   BIGINT NOT NULL,
			end_time     BIGINT NOT NULL,
			duration_ms  BIGINT,
			peak_density BIGINT,
			min_tvsi     DOUBLE,
			alert_count  BIGINT
		);
	`)
	if err != nil {
		return nil, err
	}

	return db, nil
}

// RecordIndexSample appends one per-window index sample.
func (db *DB) RecordIndexSample(s engine.IndexSample) error {
	_, err := db.Exec(
		`INSERT INTO index_samples (
			stream_id, window_start, timestamp, tvsi, tfsi, flow_norm,
			density_norm, speed_var_norm, anomaly, state, severity, trend,
			warming_up, flow, density, mean_speed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.StreamID, s.WindowStart.UnixMilli(), s.Timestamp.UnixMilli(),
		s.TVSI, s.TFSI, s.FlowNorm, s.DensityNorm, s.SpeedVarNorm, s.Anomaly,
		string(s.State), s.Severity, string(s.Trend),
		boolInt(s.WarmingUp), s.Flow, s.Density, s.MeanSpeed,
	)
	if err != nil {
		return fmt.Errorf("failed to record index sample: %w", err)
	}
	return nil
}

// IndexSamples returns samples for a stream at or after since, oldest
// first, capped at limit rows.
func (db *DB) IndexSamples(streamID string, since time.Time, limit int) ([]engine.IndexSample, error) {
	rows, err := db.Query(
		`SELECT stream_id, window_start, timestamp, tvsi, tfsi, flow_norm,
			density_norm, speed_var_norm, anomaly, state, severity, trend,
			warming_up, flow, density, mean_speed
		FROM index_samples
		WHERE stream_id = ? AND timestamp >= ?
		ORDER BY timestamp ASC
		LIMIT ?`,
		streamID, since.UnixMilli(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query index samples: %w", err)
	}
	defer rows.Close()

	var samples []engine.IndexSample
	for rows.Next() {
		var (
			s            engine.IndexSample
			windowStart  int64
			timestamp    int64
			state, trend string
			warmingUp    int
		)
		if err := rows.Scan(
			&s.StreamID, &windowStart, &timestamp, &s.TVSI, &s.TFSI,
			&s.FlowNorm, &s.DensityNorm, &s.SpeedVarNorm, &s.Anomaly,
			&state, &s.Severity, &trend, &warmingUp,
			&s.Flow, &s.Density, &s.MeanSpeed,
		); err != nil {
			return nil, fmt.Errorf("failed to scan index sample: %w", err)
		}
		s.WindowStart = time.UnixMilli(windowStart).UTC()
		s.Timestamp = time.UnixMilli(timestamp).UTC()
		s.State = engine.TrafficState(state)
		s.Trend = engine.Trend(trend)
		s.WarmingUp = warmingUp == 1
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}

// RecordAlert appends one early-warning alert event.
func (db *DB) RecordAlert(a engine.AlertEvent) error {
	_, err := db.Exec(
		`INSERT INTO alert_events (
			id, stream_id, trigger_time, tvsi, decline_rate,
			seconds_to_critical, density_rising, speed_falling
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.StreamID, a.TriggerTime.UnixMilli(), a.TVSI, a.DeclineRate,
		a.SecondsToCritical, boolInt(a.DensityRising), boolInt(a.SpeedFalling),
	)
	if err != nil {
		return fmt.Errorf("failed to record alert: %w", err)
	}
	return nil
}

// Alerts returns the most recent alerts for a stream, newest first.
func (db *DB) Alerts(streamID string, limit int) ([]engine.AlertEvent, error) {
	rows, err := db.Query(
		`SELECT id, stream_id, trigger_time, tvsi, decline_rate,
			seconds_to_critical, density_rising, speed_falling
		FROM alert_events
		WHERE stream_id = ?
		ORDER BY trigger_time DESC
		LIMIT ?`,
		streamID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []engine.AlertEvent
	for rows.Next() {
		var (
			a           engine.AlertEvent
			triggerTime int64
			ttc         sql.NullFloat64
			rising      int
			falling     int
		)
		if err := rows.Scan(
			&a.ID, &a.StreamID, &triggerTime, &a.TVSI, &a.DeclineRate,
			&ttc, &rising, &falling,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.TriggerTime = time.UnixMilli(triggerTime).UTC()
		if ttc.Valid {
			v := ttc.Float64
			a.SecondsToCritical = &v
		}
		a.DensityRising = rising == 1
		a.SpeedFalling = falling == 1
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return alerts, nil
}

// RecordEpisode appends one closed congestion episode.
func (db *DB) RecordEpisode(e engine.CongestionEpisode) error {
	_, err := db.Exec(
		`INSERT INTO congestion_episodes (
			id, stream_id, start_time, end_time, duration_ms,
			peak_density, min_tvsi, alert_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.StreamID, e.StartTime.UnixMilli(), e.EndTime.UnixMilli(),
		e.Duration.Milliseconds(), e.PeakDensity, e.MinTVSI, e.AlertCount,
	)
	if err != nil {
		return fmt.Errorf("failed to record episode: %w", err)
	}
	return nil
}

// Episodes returns the most recent closed episodes for a stream, newest
// first.
func (db *DB) Episodes(streamID string, limit int) ([]engine.CongestionEpisode, error) {
	rows, err := db.Query(
		`SELECT id, stream_id, start_time, end_time, duration_ms,
			peak_density, min_tvsi, alert_count
		FROM congestion_episodes
		WHERE stream_id = ?
		ORDER BY end_time DESC
		LIMIT ?`,
		streamID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query episodes: %w", err)
	}
	defer rows.Close()

	var episodes []engine.CongestionEpisode
	for rows.Next() {
		var (
			e          engine.CongestionEpisode
			startTime  int64
			endTime    int64
			durationMs int64
		)
		if err := rows.Scan(
			&e.ID, &e.StreamID, &startTime, &endTime, &durationMs,
			&e.PeakDensity, &e.MinTVSI, &e.AlertCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan episode: %w", err)
		}
		e.StartTime = time.UnixMilli(startTime).UTC()
		e.EndTime = time.UnixMilli(endTime).UTC()
		e.Duration = time.Duration(durationMs) * time.Millisecond
		episodes = append(episodes, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return episodes, nil
}

// StateCounts returns how many windows a stream spent in each traffic
// state since the given time. Warm-up placeholders are excluded.
func (db *DB) StateCounts(streamID string, since time.Time) (map[engine.TrafficState]int, error) {
	rows, err := db.Query(
		`SELECT state, COUNT(*)
		FROM index_samples
		WHERE stream_id = ? AND timestamp >= ? AND warming_up = 0
		GROUP BY state`,
		streamID, since.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query state counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[engine.TrafficState]int)
	for rows.Next() {
		var (
			state string
			n     int
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		counts[engine.TrafficState(state)] = n
	}
	return counts, rows.Err()
}

// StreamIDs returns the distinct stream identifiers present in the
// index_samples table, sorted.
func (db *DB) StreamIDs() ([]string, error) {
	rows, err := db.Query(`SELECT DISTINCT stream_id FROM index_samples ORDER BY stream_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stream ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
