// Package staging distributes fetch, parse and upload as independently
// retryable Temporal activities, one workflow per fetch unit. Sequential
// in-process runs live in internal/pipeline; this is the scaled-out path.
package staging

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/racetrail/ingest-cli/internal/model"
	"github.com/racetrail/ingest-cli/internal/source"
	"github.com/racetrail/ingest-cli/internal/uploader"
)

// Activity and workflow registration names.
const (
	WorkflowName         = "IngestChain"
	FetchActivityName    = "FetchActivity"
	ParseActivityName    = "ParseActivity"
	UploadActivityName   = "UploadActivity"
	ErrTypeIntegrity     = "IntegrityError"
	ErrTypeTaxonomy      = "TaxonomyError"
	defaultStageTimeout  = 10 * time.Minute
	defaultUploadRetries = 4
)

// Queues names the task queue for each stage so workers can scale per stage.
type Queues struct {
	Fetch  string `json:"fetch"`
	Parse  string `json:"parse"`
	Upload string `json:"upload"`
}

// ChainInput is the complete, serializable input of one ingest chain. Each
// chain covers exactly one fetch unit and shares no state with its siblings.
type ChainInput struct {
	Unit              source.FetchUnit `json:"unit"`
	Queues            Queues           `json:"queues"`
	UploadMaxAttempts int              `json:"upload_max_attempts"`
}

// IngestChain runs fetch, parse and upload for one fetch unit, each stage on
// its own task queue. Only the upload stage auto-retries: the fetcher already
// retries transient transport errors internally, and parse is deterministic.
// Integrity and taxonomy failures are non-retryable everywhere.
func IngestChain(ctx workflow.Context, in ChainInput) (uploader.Summary, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("staging: chain started",
		"source", in.Unit.Source, "window", in.Unit.Window)

	fetchCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		TaskQueue:           in.Queues.Fetch,
		StartToCloseTimeout: defaultStageTimeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	var batch model.RawBatch
	if err := workflow.ExecuteActivity(fetchCtx, FetchActivityName, in.Unit).Get(fetchCtx, &batch); err != nil {
		return uploader.Summary{}, err
	}

	parseCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		TaskQueue:           in.Queues.Parse,
		StartToCloseTimeout: defaultStageTimeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	var payload []byte
	if err := workflow.ExecuteActivity(parseCtx, ParseActivityName, in.Unit.Source, batch).Get(parseCtx, &payload); err != nil {
		return uploader.Summary{}, err
	}

	attempts := in.UploadMaxAttempts
	if attempts <= 0 {
		attempts = defaultUploadRetries
	}
	uploadCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		TaskQueue:           in.Queues.Upload,
		StartToCloseTimeout: defaultStageTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2,
			MaximumAttempts:        int32(attempts),
			NonRetryableErrorTypes: []string{ErrTypeIntegrity, ErrTypeTaxonomy},
		},
	})
	var sum uploader.Summary
	if err := workflow.ExecuteActivity(uploadCtx, UploadActivityName, in.Unit.Source, payload).Get(uploadCtx, &sum); err != nil {
		return uploader.Summary{}, err
	}

	logger.Info("staging: chain complete",
		"source", in.Unit.Source, "window", in.Unit.Window,
		"new_events", sum.NewEvents, "new_distances", sum.NewDistances)
	return sum, nil
}
