package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/racetrail/ingest-cli/internal/config"
	"github.com/racetrail/ingest-cli/internal/db"
	"github.com/racetrail/ingest-cli/internal/model"
	"github.com/racetrail/ingest-cli/internal/units"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool. Statement
// preparation is left to pgx's per-connection statement cache, which
// prepares each query text on first use.
func NewPostgres(ctx context.Context, cfg config.StoreConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if cfg.MaxConns > 0 {
		maxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		minConns = cfg.MinConns
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sources (
	id          INTEGER PRIMARY KEY,
	source_name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS distance_units (
	id         INTEGER PRIMARY KEY,
	unit_name  TEXT NOT NULL UNIQUE,
	unit_type  TEXT NOT NULL,
	unit_to_km DOUBLE PRECISION
);

CREATE TABLE IF NOT EXISTS events (
	id               BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	source_id        INTEGER NOT NULL REFERENCES sources(id),
	name             TEXT NOT NULL,
	event_foreign_id TEXT NOT NULL,
	start_date       TEXT NOT NULL,
	city             TEXT,
	state            TEXT,
	country          TEXT,
	url              TEXT,
	virtual          BOOLEAN NOT NULL DEFAULT FALSE,
	latitude         DOUBLE PRECISION,
	longitude        DOUBLE PRECISION,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS event_distances (
	id               BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	event_id         BIGINT NOT NULL REFERENCES events(id),
	distance         DOUBLE PRECISION NOT NULL,
	distance_unit_id BIGINT NOT NULL REFERENCES distance_units(id),
	is_relay         BOOLEAN NOT NULL DEFAULT FALSE,
	is_multiday      BOOLEAN NOT NULL DEFAULT FALSE,
	is_virtual       BOOLEAN NOT NULL DEFAULT FALSE
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
	started_at        TIMESTAMPTZ NOT NULL,
	finished_at       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_dedup_country ON events(name, start_date, city, country);
CREATE INDEX IF NOT EXISTS idx_events_dedup_state ON events(name, start_date, city, state);
CREATE INDEX IF NOT EXISTS idx_event_distances_event_id ON event_distances(event_id);
CREATE INDEX IF NOT EXISTS idx_ingest_runs_started_at ON ingest_runs(started_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// SeedTaxonomy upserts the closed unit taxonomy and the known sources.
// Row ids are fixed so they stay stable across environments.
func (s *PostgresStore) SeedTaxonomy(ctx context.Context) error {
	// Hour is a time unit and carries no km conversion factor.
	unitRows := [][]any{
		{1, string(units.Mile), "distance", 1.609344},
		{2, string(units.Kilometer), "distance", 1.0},
		{3, string(units.Hour), "time", nil},
	}
	for _, row := range unitRows {
		err := db.UpsertRow(ctx, s.pool, "distance_units",
			[]string{"id", "unit_name", "unit_type", "unit_to_km"}, []string{"id"}, row)
		if err != nil {
			return eris.Wrap(err, "postgres: seed distance_units")
		}
	}

	sourceRows := [][]any{
		{1, "UltraSignup"},
		{2, "Ahotu"},
	}
	for _, row := range sourceRows {
		err := db.UpsertRow(ctx, s.pool, "sources",
			[]string{"id", "source_name"}, []string{"id"}, row)
		if err != nil {
			return eris.Wrap(err, "postgres: seed sources")
		}
	}
	return nil
}

func (s *PostgresStore) FindEventID(ctx context.Context, key model.DedupKey) (int64, bool, error) {
	regionCol := "country"
	if key.Region == model.RegionState {
		regionCol = "state"
	}
	// IS NOT DISTINCT FROM treats NULL city/region as equal, matching the
	// dedup key semantics for events with missing location fields.
	query := fmt.Sprintf(
		`SELECT id FROM events WHERE name = $1 AND start_date = $2 AND city IS NOT DISTINCT FROM $3 AND %s IS NOT DISTINCT FROM $4 LIMIT 1`,
		regionCol,
	)

	var id int64
	err := s.pool.QueryRow(ctx, query, key.Name, key.StartDate, key.City, key.RegionVal).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrapf(err, "postgres: find event %q", key.Name)
	}
	return id, true, nil
}

func (s *PostgresStore) InsertEvent(ctx context.Context, e model.Event) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO events (source_id, name, event_foreign_id, start_date, city, state, country, url, virtual, latitude, longitude) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.SourceID, e.Name, e.EventForeignID, e.StartDate,
		e.City, e.State, e.Country, e.URL, e.Virtual, e.Latitude, e.Longitude,
	)
	return eris.Wrapf(err, "postgres: insert event %q", e.Name)
}

func (s *PostgresStore) FindUnitID(ctx context.Context, unit units.Unit) (int64, bool, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM distance_units WHERE unit_name = $1`,
		string(unit),
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrapf(err, "postgres: find unit %s", unit)
	}
	return id, true, nil
}

func (s *PostgresStore) DistanceExists(ctx context.Context, eventID, unitID int64, length float64) (bool, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM event_distances WHERE event_id = $1 AND distance_unit_id = $2 AND distance = $3 LIMIT 1`,
		eventID, unitID, length,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "postgres: distance exists for event %d", eventID)
	}
	return true, nil
}

func (s *PostgresStore) InsertDistance(ctx context.Context, rec model.DistanceRecord, unitID int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO event_distances (event_id, distance, distance_unit_id, is_relay, is_multiday, is_virtual) VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.EventID, rec.Length, unitID, rec.IsRelay, rec.IsMultiday, rec.IsVirtual,
	)
	return eris.Wrapf(err, "postgres: insert distance for event %d", rec.EventID)
}

func (s *PostgresStore) RecordRun(ctx context.Context, run RunSummary) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ingest_runs (id, source, status, new_events, new_distances, skipped_events, skipped_distances, batches, error, started_at, finished_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		run.ID, run.Source, run.Status,
		run.NewEvents, run.NewDistances, run.SkippedEvents, run.SkippedDistances,
		run.Batches, run.Error, run.StartedAt, run.FinishedAt,
	)
	return eris.Wrapf(err, "postgres: record run %s", run.ID)
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, source, status, new_events, new_distances, skipped_events, skipped_distances, batches, error, started_at, finished_at FROM ingest_runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		err := rows.Scan(&r.ID, &r.Source, &r.Status,
			&r.NewEvents, &r.NewDistances, &r.SkippedEvents, &r.SkippedDistances,
			&r.Batches, &r.Error, &r.StartedAt, &r.FinishedAt)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	return runs, nil
}
