package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/racetrail/ingest-cli/internal/model"
	"github.com/racetrail/ingest-cli/internal/units"
)

// SQLiteStore implements Store using modernc.org/sqlite. It is meant for
// local development and small crawls; production runs use PostgresStore.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sources (
	id          INTEGER PRIMARY KEY,
	source_name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS distance_units (
	id         INTEGER PRIMARY KEY,
	unit_name  TEXT NOT NULL UNIQUE,
	unit_type  TEXT NOT NULL,
	unit_to_km REAL
);

CREATE TABLE IF NOT EXISTS events (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	source_id        INTEGER NOT NULL REFERENCES sources(id),
	name             TEXT NOT NULL,
	event_foreign_id TEXT NOT NULL,
	start_date       TEXT NOT NULL,
	city             TEXT,
	state            TEXT,
	country          TEXT,
	url              TEXT,
	virtual          INTEGER NOT NULL DEFAULT 0,
	latitude         REAL,
	longitude        REAL,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS event_distances (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id         INTEGER NOT NULL REFERENCES events(id),
	distance         REAL NOT NULL,
	distance_unit_id INTEGER NOT NULL REFERENCES distance_units(id),
	is_relay         INTEGER NOT NULL DEFAULT 0,
	is_multiday      INTEGER NOT NULL DEFAULT 0,
	is_virtual       INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS ingest_runs (
	id                TEXT PRIMARY KEY,
	source            TEXT NOT NULL,
	status            TEXT NOT NULL,
	new_events        INTEGER NOT NULL DEFAULT 0,
	new_distances     INTEGER NOT NULL DEFAULT 0,
	skipped_events    INTEGER NOT NULL DEFAULT 0,
	skipped_distances INTEGER NOT NULL DEFAULT 0,
	batches           INTEGER NOT NULL DEFAULT 0,
	error             TEXT NOT NULL DEFAULT '',
	started_at        TEXT NOT NULL,
	finished_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_dedup_country ON events(name, start_date, city, country);
CREATE INDEX IF NOT EXISTS idx_events_dedup_state ON events(name, start_date, city, state);
CREATE INDEX IF NOT EXISTS idx_event_distances_event_id ON event_distances(event_id);
CREATE INDEX IF NOT EXISTS idx_ingest_runs_started_at ON ingest_runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SeedTaxonomy(ctx context.Context) error {
	// Hour is a time unit and carries no km conversion factor.
	unitRows := []struct {
		id       int
		name     string
		unitType string
		toKM     any
	}{
		{1, string(units.Mile), "distance", 1.609344},
		{2, string(units.Kilometer), "distance", 1.0},
		{3, string(units.Hour), "time", nil},
	}
	for _, row := range unitRows {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO distance_units (id, unit_name, unit_type, unit_to_km) VALUES (?, ?, ?, ?) ON CONFLICT (id) DO UPDATE SET unit_name = excluded.unit_name, unit_type = excluded.unit_type, unit_to_km = excluded.unit_to_km`,
			row.id, row.name, row.unitType, row.toKM,
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: seed distance_units")
		}
	}

	for id, name := range map[int]string{1: "UltraSignup", 2: "Ahotu"} {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO sources (id, source_name) VALUES (?, ?) ON CONFLICT (id) DO UPDATE SET source_name = excluded.source_name`,
			id, name,
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: seed sources")
		}
	}
	return nil
}

func (s *SQLiteStore) FindEventID(ctx context.Context, key model.DedupKey) (int64, bool, error) {
	regionCol := "country"
	if key.Region == model.RegionState {
		regionCol = "state"
	}
	// SQLite's IS operator compares NULLs as equal, the counterpart of
	// Postgres IS NOT DISTINCT FROM.
	query := fmt.Sprintf(
		`SELECT id FROM events WHERE name = ? AND start_date = ? AND city IS ? AND %s IS ? LIMIT 1`,
		regionCol,
	)

	var id int64
	err := s.db.QueryRowContext(ctx, query, key.Name, key.StartDate, key.City, key.RegionVal).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrapf(err, "sqlite: find event %q", key.Name)
	}
	return id, true, nil
}

func (s *SQLiteStore) InsertEvent(ctx context.Context, e model.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (source_id, name, event_foreign_id, start_date, city, state, country, url, virtual, latitude, longitude) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SourceID, e.Name, e.EventForeignID, e.StartDate,
		e.City, e.State, e.Country, e.URL, e.Virtual, e.Latitude, e.Longitude,
	)
	return eris.Wrapf(err, "sqlite: insert event %q", e.Name)
}

func (s *SQLiteStore) FindUnitID(ctx context.Context, unit units.Unit) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM distance_units WHERE unit_name = ?`,
		string(unit),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrapf(err, "sqlite: find unit %s", unit)
	}
	return id, true, nil
}

func (s *SQLiteStore) DistanceExists(ctx context.Context, eventID, unitID int64, length float64) (bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM event_distances WHERE event_id = ? AND distance_unit_id = ? AND distance = ? LIMIT 1`,
		eventID, unitID, length,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: distance exists for event %d", eventID)
	}
	return true, nil
}

func (s *SQLiteStore) InsertDistance(ctx context.Context, rec model.DistanceRecord, unitID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO event_distances (event_id, distance, distance_unit_id, is_relay, is_multiday, is_virtual) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.EventID, rec.Length, unitID, rec.IsRelay, rec.IsMultiday, rec.IsVirtual,
	)
	return eris.Wrapf(err, "sqlite: insert distance for event %d", rec.EventID)
}

func (s *SQLiteStore) RecordRun(ctx context.Context, run RunSummary) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ingest_runs (id, source, status, new_events, new_distances, skipped_events, skipped_distances, batches, error, started_at, finished_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source, run.Status,
		run.NewEvents, run.NewDistances, run.SkippedEvents, run.SkippedDistances,
		run.Batches, run.Error,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	return eris.Wrapf(err, "sqlite: record run %s", run.ID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, status, new_events, new_distances, skipped_events, skipped_distances, batches, error, started_at, finished_at FROM ingest_runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		var started, finished string
		err := rows.Scan(&r.ID, &r.Source, &r.Status,
			&r.NewEvents, &r.NewDistances, &r.SkippedEvents, &r.SkippedDistances,
			&r.Batches, &r.Error, &started, &finished)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse started_at for run %s", r.ID)
		}
		if r.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse finished_at for run %s", r.ID)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	return runs, nil
}
