package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }

func newTestEvent(t *testing.T, overrides map[string]any) Event {
	t.Helper()
	fields := map[string]any{
		"source_id":        1,
		"name":             "Test Race",
		"event_foreign_id": "ev-1",
		"start_date":       "2024-05-01",
		"city":             "Bend",
		"state":            "OR",
		"country":          "USA",
		"url":              "https://example.com/race",
		"virtual":          false,
		"latitude":         44.05,
		"longitude":        -121.3,
		"distances":        []any{"50K", "10 Mile"},
	}
	for k, v := range overrides {
		fields[k] = v
	}
	e, err := NewEvent(fields)
	require.NoError(t, err)
	return e
}

func TestNewEventCoercions(t *testing.T) {
	// Provider ids arrive as JSON numbers; they must survive as digits.
	e := newTestEvent(t, map[string]any{"event_foreign_id": float64(1234567)})
	assert.Equal(t, "1234567", e.EventForeignID)

	assert.Equal(t, 1, e.SourceID)
	require.NotNil(t, e.City)
	assert.Equal(t, "Bend", *e.City)
	assert.Equal(t, []string{"50K", "10 Mile"}, e.Distances)
}

func TestNewEventNilOptionals(t *testing.T) {
	e := newTestEvent(t, map[string]any{
		"city": nil, "state": nil, "country": nil, "url": nil,
		"latitude": nil, "longitude": nil, "distances": nil,
	})
	assert.Nil(t, e.City)
	assert.Nil(t, e.Latitude)
	assert.Nil(t, e.Distances)
}

func TestCoordinateFolding(t *testing.T) {
	cases := []struct {
		lat, lon         float64
		wantLat, wantLon float64
	}{
		{90, -180, 90, -180}, // boundaries are inclusive
		{-90, 180, -90, 180},
		{91, 0, 1, 0}, // out of range folds via truncated modulo
		{0, 181, 0, 1},
		{0, -181, 0, -1},
		{44.05, -121.3, 44.05, -121.3},
	}
	for _, c := range cases {
		e := newTestEvent(t, map[string]any{"latitude": c.lat, "longitude": c.lon})
		require.NotNil(t, e.Latitude)
		require.NotNil(t, e.Longitude)
		assert.InDelta(t, c.wantLat, *e.Latitude, 1e-9, "lat %v", c.lat)
		assert.InDelta(t, c.wantLon, *e.Longitude, 1e-9, "lon %v", c.lon)
	}
}

func TestEventEqual(t *testing.T) {
	a := newTestEvent(t, nil)
	b := newTestEvent(t, nil)
	assert.True(t, a.Equal(b))

	c := newTestEvent(t, map[string]any{"city": "Portland"})
	assert.False(t, a.Equal(c))

	d := newTestEvent(t, map[string]any{"distances": []any{"50K"}})
	assert.False(t, a.Equal(d))
}

func TestDedupKeyRegion(t *testing.T) {
	e := newTestEvent(t, nil)

	k := e.DedupKey(RegionState)
	assert.Equal(t, "Test Race", k.Name)
	require.NotNil(t, k.RegionVal)
	assert.Equal(t, "OR", *k.RegionVal)

	k = e.DedupKey(RegionCountry)
	require.NotNil(t, k.RegionVal)
	assert.Equal(t, "USA", *k.RegionVal)
}

func TestEventRoundTrip(t *testing.T) {
	a := newTestEvent(t, nil)
	b := newTestEvent(t, map[string]any{
		"name": "Winter Ultra", "city": nil, "latitude": nil, "longitude": nil,
	})

	data, err := EncodeEvents([]Event{a, b})
	require.NoError(t, err)

	decoded, err := DecodeEvents(data)
	require.NoError(t, err)
	require.Len(t, decoded, 2)

	// Order is preserved and every field survives.
	assert.True(t, a.Equal(decoded[0]))
	assert.True(t, b.Equal(decoded[1]))
}

func TestEncodeSingleEventIsPlainJSON(t *testing.T) {
	e := newTestEvent(t, nil)
	data, err := json.Marshal(e)
	require.NoError(t, err)

	var back Event
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, e.Equal(back))
}
