package staging

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/racetrail/ingest-cli/internal/config"
	"github.com/racetrail/ingest-cli/internal/source"
)

// Submit starts one ingest chain per fetch unit and waits for all of them.
// Chains are independent, so submission is bounded only by the configured
// concurrency, not ordered.
func Submit(ctx context.Context, c client.Client, cfg config.TemporalConfig, units []source.FetchUnit) error {
	queues := Queues{
		Fetch:  cfg.FetchQueue,
		Parse:  cfg.ParseQueue,
		Upload: cfg.UploadQueue,
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.SubmitConcurrency > 0 {
		g.SetLimit(cfg.SubmitConcurrency)
	}

	for _, unit := range units {
		g.Go(func() error {
			in := ChainInput{
				Unit:              unit,
				Queues:            queues,
				UploadMaxAttempts: cfg.UploadMaxAttempts,
			}
			opts := client.StartWorkflowOptions{
				ID:        fmt.Sprintf("ingest-%s-%s", unit.Source, uuid.New().String()),
				TaskQueue: cfg.WorkflowQueue,
			}
			run, err := c.ExecuteWorkflow(gctx, opts, WorkflowName, in)
			if err != nil {
				return eris.Wrapf(err, "staging: start chain %s", unit.Window)
			}
			zap.L().Info("staging: chain submitted",
				zap.String("workflow_id", run.GetID()),
				zap.String("source", unit.Source),
				zap.String("window", unit.Window))
			if err := run.Get(gctx, nil); err != nil {
				return eris.Wrapf(err, "staging: chain %s", unit.Window)
			}
			return nil
		})
	}
	return g.Wait()
}
