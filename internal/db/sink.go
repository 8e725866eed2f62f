package db

import "github.com/trafficvitals/tvsi/internal/engine"

// The database doubles as the engine's sink: every stream pipeline
// writes its windows straight to sqlite. modernc sqlite serializes
// writers internally, so concurrent streams can share one DB.
var _ engine.Sink = (*DB)(nil)

func (db *DB) EmitIndex(s engine.IndexSample) error {
	return db.RecordIndexSample(s)
}

func (db *DB) EmitAlert(a engine.AlertEvent) error {
	return db.RecordAlert(a)
}

func (db *DB) EmitEpisode(e engine.CongestionEpisode) error {
	return db.RecordEpisode(e)
}
