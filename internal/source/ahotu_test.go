package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/racetrail/ingest-cli/internal/config"
	"github.com/racetrail/ingest-cli/internal/fetcher"
	"github.com/racetrail/ingest-cli/internal/resilience"
)

func testAhotuConfig(url string) config.AhotuConfig {
	return config.AhotuConfig{
		URL:        url,
		Zoom:       []float64{68.0, 52.0, 1.2, -140.0},
		Language:   "en",
		Activities: []string{"run"},
	}
}

func newAhotu(t *testing.T, url string) *Ahotu {
	t.Helper()
	s, err := NewAhotu(testAhotuConfig(url), fetcher.NewHTTPFetcher(fetcher.HTTPOptions{MaxRetries: 1}))
	require.NoError(t, err)
	return s
}

func TestAhotuRequiresURL(t *testing.T) {
	_, err := NewAhotu(config.AhotuConfig{}, nil)
	require.Error(t, err)
}

func TestAhotuEnumeratesPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "en", r.URL.Query().Get("language"))
		json.NewEncoder(w).Encode(map[string]any{"total_pages": 3, "races": []any{}})
	}))
	defer srv.Close()

	s := newAhotu(t, srv.URL)
	units, err := s.EnumerateRequests(context.Background())
	require.NoError(t, err)
	require.Len(t, units, 3)

	assert.Equal(t, "1", units[0].Params.Get("page"))
	assert.Equal(t, "3", units[2].Params.Get("page"))
	assert.Equal(t, "page=2", units[1].Window)
	for _, u := range units {
		assert.Equal(t, "ahotu", u.Source)
	}
}

func TestAhotuFetchDecodesRaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"total_pages": 1,
			"races": []map[string]any{
				{"event_name_en": "Mont Blanc Trail", "country": "France"},
			},
		})
	}))
	defer srv.Close()

	s := newAhotu(t, srv.URL)
	batch, err := s.Fetch(context.Background(), FetchUnit{Source: "ahotu", URL: srv.URL, Window: "page=1"})
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "Mont Blanc Trail", batch[0]["event_name_en"])
}

func TestActivityDistancesMetersToKilometers(t *testing.T) {
	out, err := activityDistances([]any{
		map[string]any{"distance_unit_id": float64(2), "distance": float64(50000)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"50 km"}, out)
}

func TestActivityDistancesPassthroughUnits(t *testing.T) {
	out, err := activityDistances([]any{
		map[string]any{"distance_unit_id": float64(3), "distance": float64(100)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"100 miles"}, out)

	out, err = activityDistances([]any{
		map[string]any{"distance_unit_id": float64(5), "distance": float64(24)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"24 hour"}, out)
}

func TestActivityDistancesUnknownUnitYieldsNil(t *testing.T) {
	out, err := activityDistances([]any{
		map[string]any{"distance_unit_id": float64(9), "distance": float64(10)},
	})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestActivityDistancesMultipleActivitiesIsSchemaDrift(t *testing.T) {
	_, err := activityDistances([]any{
		map[string]any{"distance_unit_id": float64(1), "distance": float64(10)},
		map[string]any{"distance_unit_id": float64(1), "distance": float64(20)},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one activity")
}

func TestAhotuEndToEndMapping(t *testing.T) {
	s := newAhotu(t, "https://example.com/races")

	events, err := s.Mapper().Parse([]map[string]any{{
		"event_name_en":    "Vallee Verte Ultra",
		"id":               float64(90210),
		"registration_url": "https://register.example.com",
		"start_date":       "2024-07-15",
		"activities": []any{
			map[string]any{"distance_unit_id": float64(2), "distance": float64(42195)},
		},
		"country": "France",
		"city":    "Annecy",
		"lonlat":  map[string]any{"type": "Point", "coordinates": []any{6.13, 45.9}},
		"tags":    []any{"trail", "virtual"},
	}})
	require.NoError(t, err)
	require.Len(t, events, 1)

	e := events[0]
	assert.Equal(t, SourceIDAhotu, e.SourceID)
	assert.Equal(t, "90210", e.EventForeignID)
	assert.Equal(t, []string{"42.195 km"}, e.Distances)
	assert.Nil(t, e.State)
	require.NotNil(t, e.Latitude)
	assert.Equal(t, 45.9, *e.Latitude)
	require.NotNil(t, e.Longitude)
	assert.Equal(t, 6.13, *e.Longitude)
	assert.True(t, e.Virtual)
}

func TestAhotuParseSchemaDriftSurfacesAsIntegrity(t *testing.T) {
	s := newAhotu(t, "https://example.com/races")

	_, err := s.Mapper().Parse([]map[string]any{{
		"event_name_en": "Drifted",
		"start_date":    "2024-07-15",
		"activities": []any{
			map[string]any{"distance_unit_id": float64(1), "distance": float64(10)},
			map[string]any{"distance_unit_id": float64(1), "distance": float64(20)},
		},
		"tags": []any{},
	}})
	require.Error(t, err)
	assert.True(t, resilience.IsIntegrity(err))
}
