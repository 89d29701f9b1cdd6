// Package source holds one adapter per event provider. Each adapter knows
// how to partition its provider's query space into independently fetchable
// units and carries the field-mapping table for that provider's schema.
package source

import (
	"context"
	"net/url"

	"github.com/racetrail/ingest-cli/internal/mapping"
	"github.com/racetrail/ingest-cli/internal/model"
)

// FetchUnit is a self-contained, serializable description of one provider
// fetch. It can be shipped to a remote worker and re-executed without any
// shared state.
type FetchUnit struct {
	Source string     `json:"source"`
	URL    string     `json:"url"`
	Params url.Values `json:"params"`

	// Window labels the slice of the query space this unit covers
	// ("page=3", "month=11 dist=6"); used in logs and integrity errors.
	Window string `json:"window"`
}

// Source is a provider adapter.
type Source interface {
	// Name returns the provider's registry name ("ultrasignup", "ahotu").
	Name() string

	// ID returns the provider's seeded sources-table id.
	ID() int

	// Region returns which column completes this provider's dedup key.
	Region() model.Region

	// EnumerateRequests partitions the provider's query space into fetch
	// units. Each unit is independently complete; no ordering between
	// units is guaranteed or required.
	EnumerateRequests(ctx context.Context) ([]FetchUnit, error)

	// Fetch executes one unit and returns the decoded raw batch. Result
	// integrity violations (capped windows overflowing) are fatal here.
	Fetch(ctx context.Context, unit FetchUnit) (model.RawBatch, error)

	// Mapper returns the field-mapping table for this provider.
	Mapper() *mapping.Mapper
}
