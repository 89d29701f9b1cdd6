// Package store persists canonical events, their distance rows, and ingest
// run summaries behind a driver-agnostic interface.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/racetrail/ingest-cli/internal/config"
	"github.com/racetrail/ingest-cli/internal/model"
	"github.com/racetrail/ingest-cli/internal/units"
)

// RunSummary is one ingest run's outcome, kept for the status API.
type RunSummary struct {
	ID               string    `json:"id"`
	Source           string    `json:"source"`
	Status           string    `json:"status"`
	NewEvents        int       `json:"new_events"`
	NewDistances     int       `json:"new_distances"`
	SkippedEvents    int       `json:"skipped_events"`
	SkippedDistances int       `json:"skipped_distances"`
	Batches          int       `json:"batches"`
	Error            string    `json:"error,omitempty"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
}

// Run statuses.
const (
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Store is the persistence interface for the ingestion pipeline. All writes
// are guarded by existence checks in the uploader, so implementations only
// need plain select and insert primitives.
type Store interface {
	// FindEventID resolves an event row id by its dedup key.
	FindEventID(ctx context.Context, key model.DedupKey) (int64, bool, error)

	// InsertEvent inserts the canonical fields of one event. The generated
	// id is not returned; callers re-resolve it via FindEventID.
	InsertEvent(ctx context.Context, e model.Event) error

	// FindUnitID resolves a canonical unit to its seeded taxonomy row id.
	FindUnitID(ctx context.Context, unit units.Unit) (int64, bool, error)

	// DistanceExists checks for a distance row keyed by event, unit and length.
	DistanceExists(ctx context.Context, eventID, unitID int64, length float64) (bool, error)

	// InsertDistance inserts one distance row for rec.EventID.
	InsertDistance(ctx context.Context, rec model.DistanceRecord, unitID int64) error

	// RecordRun stores an ingest run summary.
	RecordRun(ctx context.Context, run RunSummary) error

	// ListRuns returns the most recent run summaries, newest first.
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)

	// Migrate creates the schema if needed.
	Migrate(ctx context.Context) error

	// SeedTaxonomy idempotently seeds the distance_units and sources tables.
	SeedTaxonomy(ctx context.Context) error

	Close() error
}

// Open builds a Store from config: "postgres" or "sqlite".
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgres(ctx, cfg)
	case "sqlite":
		return NewSQLite(cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
