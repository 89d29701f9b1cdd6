package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/racetrail/ingest-cli/internal/mapping"
	"github.com/racetrail/ingest-cli/internal/model"
	"github.com/racetrail/ingest-cli/internal/source"
	"github.com/racetrail/ingest-cli/internal/store"
)

// fakeSource serves canned batches, one per fetch unit.
type fakeSource struct {
	batches  []model.RawBatch
	fetchErr error
	fetched  []string
}

func (f *fakeSource) Name() string         { return "fake" }
func (f *fakeSource) ID() int              { return 1 }
func (f *fakeSource) Region() model.Region { return model.RegionState }

func (f *fakeSource) EnumerateRequests(context.Context) ([]source.FetchUnit, error) {
	units := make([]source.FetchUnit, len(f.batches))
	for i := range f.batches {
		units[i] = source.FetchUnit{Source: "fake", Window: string(rune('a' + i))}
	}
	return units, nil
}

func (f *fakeSource) Fetch(_ context.Context, unit source.FetchUnit) (model.RawBatch, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	f.fetched = append(f.fetched, unit.Window)
	return f.batches[int(unit.Window[0]-'a')], nil
}

func (f *fakeSource) Mapper() *mapping.Mapper {
	return mapping.New("fake", []mapping.FieldSpec{
		{Field: "source_id", Default: 1},
		{Field: "name", SourceKey: "EventName"},
		{Field: "event_foreign_id", SourceKey: "EventId"},
		{Field: "start_date", SourceKey: "EventDate"},
		{Field: "city", SourceKey: "City"},
		{Field: "state", SourceKey: "State"},
		{Field: "country", Default: "USA"},
		{Field: "distances", SourceKey: "Distances", Transform: mapping.SplitDistances},
	})
}

func rawEvent(name string) model.RawRecord {
	return model.RawRecord{
		"EventName": name,
		"EventId":   1234,
		"EventDate": "2024-05-01",
		"City":      "Bend",
		"State":     "OR",
		"Distances": "50K, 10 Mile",
	}
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	require.NoError(t, st.SeedTaxonomy(context.Background()))
	return st
}

func TestRun_EndToEnd(t *testing.T) {
	st := newTestStore(t)
	src := &fakeSource{batches: []model.RawBatch{
		{rawEvent("Test 50K")},
		{rawEvent("Other Race")},
	}}

	sum, err := New(st).Run(context.Background(), src, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Batches)
	assert.Equal(t, 2, sum.NewEvents)
	assert.Equal(t, 4, sum.NewDistances)

	runs, err := st.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.RunCompleted, runs[0].Status)
	assert.Equal(t, 2, runs[0].NewEvents)
	assert.Equal(t, "fake", runs[0].Source)
}

func TestRun_IdempotentAcrossRuns(t *testing.T) {
	st := newTestStore(t)
	src := &fakeSource{batches: []model.RawBatch{{rawEvent("Test 50K")}}}
	p := New(st)

	_, err := p.Run(context.Background(), src, Options{})
	require.NoError(t, err)

	sum, err := p.Run(context.Background(), src, Options{})
	require.NoError(t, err)
	assert.Zero(t, sum.NewEvents)
	assert.Zero(t, sum.NewDistances)
}

func TestRun_BatchBounds(t *testing.T) {
	st := newTestStore(t)
	src := &fakeSource{batches: []model.RawBatch{
		{rawEvent("A")}, {rawEvent("B")}, {rawEvent("C")}, {rawEvent("D")},
	}}

	sum, err := New(st).Run(context.Background(), src, Options{SkipBatches: 1, MaxBatches: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Batches)
	assert.Equal(t, []string{"b", "c"}, src.fetched)
}

func TestRun_SkipBeyondEnd(t *testing.T) {
	st := newTestStore(t)
	src := &fakeSource{batches: []model.RawBatch{{rawEvent("A")}}}

	sum, err := New(st).Run(context.Background(), src, Options{SkipBatches: 5})
	require.NoError(t, err)
	assert.Zero(t, sum.Batches)
	assert.Empty(t, src.fetched)
}

func TestRun_FetchFailureRecordsFailedRun(t *testing.T) {
	st := newTestStore(t)
	src := &fakeSource{
		batches:  []model.RawBatch{{rawEvent("A")}},
		fetchErr: assert.AnError,
	}

	_, err := New(st).Run(context.Background(), src, Options{})
	require.Error(t, err)

	runs, err := st.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.RunFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "fetch")
}
