package source

import (
	"context"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/racetrail/ingest-cli/internal/config"
	"github.com/racetrail/ingest-cli/internal/fetcher"
	"github.com/racetrail/ingest-cli/internal/mapping"
	"github.com/racetrail/ingest-cli/internal/model"
	"github.com/racetrail/ingest-cli/internal/resilience"
)

// UltraSignup lists North American ultra events. Its search endpoint caps
// every response at cfg.ResultCap rows and offers no pagination, so the
// query space is windowed over month x distance-category, with each window
// assumed to stay under the cap.
type UltraSignup struct {
	cfg     config.UltraSignupConfig
	fetcher fetcher.Fetcher
	mapper  *mapping.Mapper
}

// NewUltraSignup builds the UltraSignup adapter. The source URL is required.
func NewUltraSignup(cfg config.UltraSignupConfig, f fetcher.Fetcher) (*UltraSignup, error) {
	if cfg.URL == "" {
		return nil, eris.New("ultrasignup: source url is not configured")
	}
	if cfg.ResultCap <= 0 {
		cfg.ResultCap = 100
	}
	return &UltraSignup{
		cfg:     cfg,
		fetcher: f,
		mapper: mapping.New("ultrasignup", []mapping.FieldSpec{
			{Field: "source_id", Default: SourceIDUltraSignup},
			{Field: "name", SourceKey: "EventName"},
			{Field: "event_foreign_id", SourceKey: "EventId"},
			{Field: "url", SourceKey: "EventWebsite"},
			{Field: "start_date", SourceKey: "EventDate"},
			{Field: "distances", SourceKey: "Distances", Transform: mapping.SplitDistances},
			{Field: "country", Default: "USA"},
			{Field: "city", SourceKey: "City"},
			{Field: "state", SourceKey: "State"},
			{Field: "latitude", SourceKey: "Latitude"},
			{Field: "longitude", SourceKey: "Longitude"},
			{Field: "virtual", SourceKey: "VirtualEvent"},
		}),
	}, nil
}

func (s *UltraSignup) Name() string         { return "ultrasignup" }
func (s *UltraSignup) ID() int              { return SourceIDUltraSignup }
func (s *UltraSignup) Region() model.Region { return model.RegionState }

// Mapper returns the UltraSignup field table.
func (s *UltraSignup) Mapper() *mapping.Mapper { return s.mapper }

// EnumerateRequests emits one fetch unit per month x distance-category
// window. No probe request is needed; the window grid is fixed by config.
func (s *UltraSignup) EnumerateRequests(ctx context.Context) ([]FetchUnit, error) {
	units := make([]FetchUnit, 0, len(s.cfg.Months)*len(s.cfg.DistanceCategories))
	for _, month := range s.cfg.Months {
		for _, dist := range s.cfg.DistanceCategories {
			params := url.Values{
				"virtual": {"0"},
				"open":    {"1"},
				"lat":     {"30"},
				"lng":     {"-100"},
				"mi":      {"50000"},
				"m":       {strconv.Itoa(month)},
				"dist":    {strconv.Itoa(dist)},
			}
			units = append(units, FetchUnit{
				Source: s.Name(),
				URL:    s.cfg.URL,
				Params: params,
				Window: "month=" + strconv.Itoa(month) + " dist=" + strconv.Itoa(dist),
			})
		}
	}
	return units, nil
}

// Fetch executes one window. A window returning exactly the result cap is a
// fatal integrity violation: the API would have silently truncated it.
func (s *UltraSignup) Fetch(ctx context.Context, unit FetchUnit) (model.RawBatch, error) {
	var batch model.RawBatch
	if err := s.fetcher.GetJSON(ctx, unit.URL, unit.Params, &batch); err != nil {
		return nil, eris.Wrapf(err, "ultrasignup: fetch %s", unit.Window)
	}

	if len(batch) >= s.cfg.ResultCap {
		return nil, resilience.NewIntegrityError(s.Name(),
			"window %s returned %d results at the cap; results were likely truncated",
			unit.Window, len(batch))
	}

	zap.L().Debug("ultrasignup: window fetched",
		zap.String("window", unit.Window),
		zap.Int("results", len(batch)),
	)
	return batch, nil
}
