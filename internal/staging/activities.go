package staging

import (
	"context"

	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/racetrail/ingest-cli/internal/model"
	"github.com/racetrail/ingest-cli/internal/resilience"
	"github.com/racetrail/ingest-cli/internal/source"
	"github.com/racetrail/ingest-cli/internal/store"
	"github.com/racetrail/ingest-cli/internal/uploader"
)

// Activities holds the shared dependencies of all three stage activities.
// Each invocation is stateless beyond its explicit input and output.
type Activities struct {
	Registry *source.Registry
	Store    store.Store
}

// FetchActivity executes one fetch unit against its provider.
func (a *Activities) FetchActivity(ctx context.Context, unit source.FetchUnit) (model.RawBatch, error) {
	src, err := a.Registry.Get(unit.Source)
	if err != nil {
		return nil, err
	}
	batch, err := src.Fetch(ctx, unit)
	if err != nil {
		return nil, markNonRetryable(err)
	}
	return batch, nil
}

// ParseActivity maps a raw batch into the canonical event-list payload.
// Re-execution with the same batch yields the same payload.
func (a *Activities) ParseActivity(_ context.Context, sourceName string, batch model.RawBatch) ([]byte, error) {
	src, err := a.Registry.Get(sourceName)
	if err != nil {
		return nil, err
	}
	events, err := src.Mapper().Parse(batch)
	if err != nil {
		return nil, markNonRetryable(err)
	}
	return model.EncodeEvents(events)
}

// UploadActivity writes a canonical event-list payload to the store. Safe to
// re-execute: every insert is guarded by an existence check.
func (a *Activities) UploadActivity(ctx context.Context, sourceName string, payload []byte) (uploader.Summary, error) {
	src, err := a.Registry.Get(sourceName)
	if err != nil {
		return uploader.Summary{}, err
	}
	events, err := model.DecodeEvents(payload)
	if err != nil {
		return uploader.Summary{}, err
	}

	sum, err := uploader.New(a.Store, src.Region()).Upload(ctx, events)
	if err != nil {
		zap.L().Error("staging: upload failed",
			zap.String("source", sourceName), zap.Error(err))
		return sum, markNonRetryable(err)
	}
	return sum, nil
}

// markNonRetryable rewraps integrity and taxonomy violations as Temporal
// application errors with a typed tag, so the upload retry policy can refuse
// to retry them while plain transport errors keep retrying.
func markNonRetryable(err error) error {
	switch {
	case resilience.IsIntegrity(err):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeIntegrity, err)
	case resilience.IsTaxonomy(err):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeTaxonomy, err)
	default:
		return err
	}
}
