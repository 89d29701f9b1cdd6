package uploader

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/racetrail/ingest-cli/internal/model"
	"github.com/racetrail/ingest-cli/internal/resilience"
	"github.com/racetrail/ingest-cli/internal/store"
	"github.com/racetrail/ingest-cli/internal/units"
)

// fakeStore is an in-memory Store for exercising upload logic without a
// database. Keys mirror the SQL existence checks.
type fakeStore struct {
	nextID    int64
	events    map[string]int64
	distances map[string]bool
	unitIDs   map[units.Unit]int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events:    map[string]int64{},
		distances: map[string]bool{},
		unitIDs: map[units.Unit]int64{
			units.Mile:      1,
			units.Kilometer: 2,
			units.Hour:      3,
		},
	}
}

func dedupStr(key model.DedupKey) string {
	deref := func(p *string) string {
		if p == nil {
			return "<nil>"
		}
		return *p
	}
	return fmt.Sprintf("%s|%s|%s|%s", key.Name, key.StartDate, deref(key.City), deref(key.RegionVal))
}

func (f *fakeStore) FindEventID(_ context.Context, key model.DedupKey) (int64, bool, error) {
	id, ok := f.events[dedupStr(key)]
	return id, ok, nil
}

func (f *fakeStore) InsertEvent(_ context.Context, e model.Event) error {
	f.nextID++
	f.events[dedupStr(e.DedupKey(model.RegionState))] = f.nextID
	f.events[dedupStr(e.DedupKey(model.RegionCountry))] = f.nextID
	return nil
}

func (f *fakeStore) FindUnitID(_ context.Context, unit units.Unit) (int64, bool, error) {
	id, ok := f.unitIDs[unit]
	return id, ok, nil
}

func (f *fakeStore) DistanceExists(_ context.Context, eventID, unitID int64, length float64) (bool, error) {
	return f.distances[fmt.Sprintf("%d|%d|%g", eventID, unitID, length)], nil
}

func (f *fakeStore) InsertDistance(_ context.Context, rec model.DistanceRecord, unitID int64) error {
	f.distances[fmt.Sprintf("%d|%d|%g", rec.EventID, unitID, rec.Length)] = true
	return nil
}

func (f *fakeStore) RecordRun(context.Context, store.RunSummary) error { return nil }
func (f *fakeStore) ListRuns(context.Context, int) ([]store.RunSummary, error) {
	return nil, nil
}
func (f *fakeStore) Migrate(context.Context) error      { return nil }
func (f *fakeStore) SeedTaxonomy(context.Context) error { return nil }
func (f *fakeStore) Close() error                       { return nil }

func strPtr(s string) *string { return &s }

func sampleEvent() model.Event {
	return model.Event{
		SourceID:       1,
		Name:           "Test 50K",
		EventForeignID: "8812",
		StartDate:      "2024-05-01",
		City:           strPtr("Bend"),
		State:          strPtr("OR"),
		Country:        strPtr("USA"),
		Distances:      []string{"50K", "10 Mile"},
	}
}

func TestUpload_InsertsEventAndDistances(t *testing.T) {
	fs := newFakeStore()
	u := New(fs, model.RegionState)

	sum, err := u.Upload(context.Background(), []model.Event{sampleEvent()})
	require.NoError(t, err)
	assert.Equal(t, Summary{NewEvents: 1, NewDistances: 2}, sum)

	// 50K parses to {50, km} (unit id 2), 10 Mile to {10, mile} (unit id 1).
	assert.True(t, fs.distances["1|2|50"])
	assert.True(t, fs.distances["1|1|10"])
}

func TestUpload_Idempotent(t *testing.T) {
	fs := newFakeStore()
	u := New(fs, model.RegionState)
	events := []model.Event{sampleEvent()}

	_, err := u.Upload(context.Background(), events)
	require.NoError(t, err)

	// Second run with an unchanged store inserts nothing.
	sum, err := u.Upload(context.Background(), events)
	require.NoError(t, err)
	assert.Zero(t, sum.NewEvents)
	assert.Zero(t, sum.NewDistances)
}

func TestUpload_ExistingEventGainsNewDistance(t *testing.T) {
	fs := newFakeStore()
	u := New(fs, model.RegionState)

	first := sampleEvent()
	first.Distances = []string{"50K"}
	_, err := u.Upload(context.Background(), []model.Event{first})
	require.NoError(t, err)

	// Same event re-listed with an extra distance: the event row is reused
	// and only the new distance row is inserted.
	second := sampleEvent()
	sum, err := u.Upload(context.Background(), []model.Event{second})
	require.NoError(t, err)
	assert.Equal(t, Summary{NewEvents: 0, NewDistances: 1}, sum)
	assert.True(t, fs.distances["1|1|10"])
}

func TestUpload_SkipsLocationlessEvent(t *testing.T) {
	fs := newFakeStore()
	u := New(fs, model.RegionCountry)

	e := sampleEvent()
	e.City = nil
	e.Country = nil

	sum, err := u.Upload(context.Background(), []model.Event{e})
	require.NoError(t, err)
	assert.Equal(t, Summary{SkippedEvents: 1}, sum)
	assert.Empty(t, fs.events)
}

func TestUpload_SkipsUnparseableDistance(t *testing.T) {
	fs := newFakeStore()
	u := New(fs, model.RegionState)

	e := sampleEvent()
	e.Distances = []string{"fun run", "50K"}

	sum, err := u.Upload(context.Background(), []model.Event{e})
	require.NoError(t, err)
	assert.Equal(t, Summary{NewEvents: 1, NewDistances: 1, SkippedDistances: 1}, sum)
}

func TestUpload_UnknownUnitIsFatal(t *testing.T) {
	fs := newFakeStore()
	delete(fs.unitIDs, units.Hour)
	u := New(fs, model.RegionState)

	e := sampleEvent()
	e.Distances = []string{"24 hour"}

	_, err := u.Upload(context.Background(), []model.Event{e})
	require.Error(t, err)
	assert.True(t, resilience.IsTaxonomy(err))
}

func TestUpload_CityOnlyOrCountryOnlyStillUploads(t *testing.T) {
	fs := newFakeStore()
	u := New(fs, model.RegionCountry)

	cityOnly := sampleEvent()
	cityOnly.Country = nil
	countryOnly := sampleEvent()
	countryOnly.Name = "Other Race"
	countryOnly.City = nil

	sum, err := u.Upload(context.Background(), []model.Event{cityOnly, countryOnly})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.NewEvents)
}
