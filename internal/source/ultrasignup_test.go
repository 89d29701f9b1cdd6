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

func testUltraSignupConfig(url string) config.UltraSignupConfig {
	return config.UltraSignupConfig{
		URL:                url,
		Months:             []int{11, 12},
		DistanceCategories: []int{6, 7, 8},
		ResultCap:          100,
	}
}

func newUltraSignup(t *testing.T, url string) *UltraSignup {
	t.Helper()
	s, err := NewUltraSignup(testUltraSignupConfig(url), fetcher.NewHTTPFetcher(fetcher.HTTPOptions{MaxRetries: 1}))
	require.NoError(t, err)
	return s
}

func TestUltraSignupRequiresURL(t *testing.T) {
	_, err := NewUltraSignup(config.UltraSignupConfig{}, nil)
	require.Error(t, err)
}

func TestUltraSignupEnumeratesWindowGrid(t *testing.T) {
	s := newUltraSignup(t, "https://example.com/events")

	units, err := s.EnumerateRequests(context.Background())
	require.NoError(t, err)
	require.Len(t, units, 6, "2 months x 3 distance categories")

	seen := make(map[string]bool)
	for _, u := range units {
		assert.Equal(t, "ultrasignup", u.Source)
		assert.Equal(t, "https://example.com/events", u.URL)
		assert.NotEmpty(t, u.Params.Get("m"))
		assert.NotEmpty(t, u.Params.Get("dist"))
		seen[u.Window] = true
	}
	assert.Len(t, seen, 6, "every window is distinct")
	assert.True(t, seen["month=11 dist=6"])
	assert.True(t, seen["month=12 dist=8"])
}

func TestUltraSignupFetchUnitRoundTrips(t *testing.T) {
	s := newUltraSignup(t, "https://example.com/events")
	units, err := s.EnumerateRequests(context.Background())
	require.NoError(t, err)

	data, err := json.Marshal(units[0])
	require.NoError(t, err)

	var back FetchUnit
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, units[0], back)
}

func TestUltraSignupFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "11", r.URL.Query().Get("m"))
		json.NewEncoder(w).Encode([]map[string]any{
			{"EventName": "Frosty 50", "EventDate": "2024-11-02"},
		})
	}))
	defer srv.Close()

	s := newUltraSignup(t, srv.URL)
	units, err := s.EnumerateRequests(context.Background())
	require.NoError(t, err)

	batch, err := s.Fetch(context.Background(), units[0])
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "Frosty 50", batch[0]["EventName"])
}

func TestUltraSignupFetchCapOverflowIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		full := make([]map[string]any, 100)
		for i := range full {
			full[i] = map[string]any{"EventName": "X"}
		}
		json.NewEncoder(w).Encode(full)
	}))
	defer srv.Close()

	s := newUltraSignup(t, srv.URL)
	units, err := s.EnumerateRequests(context.Background())
	require.NoError(t, err)

	_, err = s.Fetch(context.Background(), units[0])
	require.Error(t, err)
	assert.True(t, resilience.IsIntegrity(err), "capped window must be an integrity violation")
	assert.False(t, resilience.IsTransient(err), "and must not be retried")
}

func TestUltraSignupEndToEndMapping(t *testing.T) {
	s := newUltraSignup(t, "https://example.com/events")

	events, err := s.Mapper().Parse([]map[string]any{{
		"EventName":    "Test 50K",
		"EventId":      float64(7001),
		"EventDate":    "2024-05-01",
		"EventWebsite": "https://test50k.example.com",
		"Distances":    "50K, 10 Mile",
		"City":         "Bend",
		"State":        "OR",
		"Latitude":     44.05,
		"Longitude":    -121.3,
		"VirtualEvent": false,
	}})
	require.NoError(t, err)
	require.Len(t, events, 1)

	e := events[0]
	assert.Equal(t, SourceIDUltraSignup, e.SourceID)
	assert.Equal(t, "Test 50K", e.Name)
	assert.Equal(t, []string{"50K", "10 Mile"}, e.Distances)
	require.NotNil(t, e.Country)
	assert.Equal(t, "USA", *e.Country)
	require.NotNil(t, e.State)
	assert.Equal(t, "OR", *e.State)
}
