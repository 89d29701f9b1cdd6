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
)

// Seeded sources-table ids; see store.SeedTaxonomy.
const (
	SourceIDUltraSignup = 1
	SourceIDAhotu       = 2
)

// Ahotu is a worldwide race calendar with conventional pagination: a probe
// request reports total_pages, then one fetch unit per page.
type Ahotu struct {
	cfg     config.AhotuConfig
	fetcher fetcher.Fetcher
	mapper  *mapping.Mapper
}

// NewAhotu builds the Ahotu adapter. The source URL is required.
func NewAhotu(cfg config.AhotuConfig, f fetcher.Fetcher) (*Ahotu, error) {
	if cfg.URL == "" {
		return nil, eris.New("ahotu: source url is not configured")
	}
	return &Ahotu{
		cfg:     cfg,
		fetcher: f,
		mapper: mapping.New("ahotu", []mapping.FieldSpec{
			{Field: "source_id", Default: SourceIDAhotu},
			{Field: "name", SourceKey: "event_name_en"},
			{Field: "event_foreign_id", SourceKey: "id"},
			{Field: "url", SourceKey: "registration_url"},
			{Field: "start_date", SourceKey: "start_date"},
			{Field: "distances", SourceKey: "activities", Transform: activityDistances},
			{Field: "country", SourceKey: "country"},
			{Field: "city", SourceKey: "city"},
			{Field: "state", Default: nil}, // not exposed by the API
			{Field: "latitude", SourceKey: "lonlat", Transform: mapping.GeoLatitude},
			{Field: "longitude", SourceKey: "lonlat", Transform: mapping.GeoLongitude},
			{Field: "virtual", SourceKey: "tags", Transform: mapping.HasTag("virtual")},
		}),
	}, nil
}

func (s *Ahotu) Name() string         { return "ahotu" }
func (s *Ahotu) ID() int              { return SourceIDAhotu }
func (s *Ahotu) Region() model.Region { return model.RegionCountry }

// Mapper returns the Ahotu field table.
func (s *Ahotu) Mapper() *mapping.Mapper { return s.mapper }

func (s *Ahotu) baseParams() url.Values {
	params := url.Values{"language": {s.cfg.Language}}
	for _, z := range s.cfg.Zoom {
		params.Add("zoom", strconv.FormatFloat(z, 'f', -1, 64))
	}
	for _, a := range s.cfg.Activities {
		params.Add("activity", a)
	}
	return params
}

// EnumerateRequests probes the endpoint for total_pages and emits one fetch
// unit per page.
func (s *Ahotu) EnumerateRequests(ctx context.Context) ([]FetchUnit, error) {
	var probe struct {
		TotalPages int `json:"total_pages"`
	}
	if err := s.fetcher.GetJSON(ctx, s.cfg.URL, s.baseParams(), &probe); err != nil {
		return nil, eris.Wrap(err, "ahotu: probe total pages")
	}

	zap.L().Info("ahotu: enumerated pages", zap.Int("total_pages", probe.TotalPages))

	units := make([]FetchUnit, 0, probe.TotalPages)
	for page := 1; page <= probe.TotalPages; page++ {
		params := s.baseParams()
		params.Set("page", strconv.Itoa(page))
		units = append(units, FetchUnit{
			Source: s.Name(),
			URL:    s.cfg.URL,
			Params: params,
			Window: "page=" + strconv.Itoa(page),
		})
	}
	return units, nil
}

// Fetch executes one page request.
func (s *Ahotu) Fetch(ctx context.Context, unit FetchUnit) (model.RawBatch, error) {
	var resp struct {
		Races model.RawBatch `json:"races"`
	}
	if err := s.fetcher.GetJSON(ctx, unit.URL, unit.Params, &resp); err != nil {
		return nil, eris.Wrapf(err, "ahotu: fetch %s", unit.Window)
	}
	return resp.Races, nil
}

// ahotuUnitNames maps Ahotu's numeric distance_unit_id onto unit names the
// distance parser recognizes. Meters are not in the taxonomy and are
// converted to kilometers instead.
var ahotuUnitNames = map[int]string{
	1: "km",
	2: "meters",
	3: "miles",
	5: "hour",
}

// activityDistances converts Ahotu's structured activity entry into the
// free-text distance format the unit parser consumes, keeping one textual
// pipeline for all providers. Exactly one activity entry is expected; more
// means the provider schema drifted.
func activityDistances(v any) (any, error) {
	activities, ok := v.([]any)
	if !ok {
		return nil, eris.Errorf("expected activity list, got %T", v)
	}
	if len(activities) != 1 {
		return nil, eris.Errorf("expected exactly one activity, got %d", len(activities))
	}
	entry, ok := activities[0].(map[string]any)
	if !ok {
		return nil, eris.Errorf("expected activity object, got %T", activities[0])
	}

	unitID, ok := toIntLoose(entry["distance_unit_id"])
	if !ok {
		return nil, eris.New("activity missing distance_unit_id")
	}
	length, ok := toFloatLoose(entry["distance"])
	if !ok {
		return nil, eris.New("activity missing distance")
	}

	// Meters to kilometers; the stored taxonomy has no meter unit.
	if unitID == 2 {
		unitID = 1
		length = length / 1000.0
	}

	name, ok := ahotuUnitNames[unitID]
	if !ok {
		// Unknown unit ids yield no distances rather than failing the batch.
		return nil, nil
	}
	return []string{strconv.FormatFloat(length, 'f', -1, 64) + " " + name}, nil
}

func toIntLoose(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case int:
		return t, true
	}
	return 0, false
}

func toFloatLoose(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	}
	return 0, false
}
