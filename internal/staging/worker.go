package staging

import (
	"context"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"golang.org/x/sync/errgroup"

	"github.com/racetrail/ingest-cli/internal/config"
)

// RunWorkers starts one worker per task queue: the workflow queue plus the
// three stage queues. Blocks until ctx is canceled or a worker fails.
func RunWorkers(ctx context.Context, c client.Client, cfg config.TemporalConfig, acts *Activities) error {
	wfWorker := worker.New(c, cfg.WorkflowQueue, worker.Options{})
	wfWorker.RegisterWorkflowWithOptions(IngestChain, workflow.RegisterOptions{Name: WorkflowName})

	fetchWorker := worker.New(c, cfg.FetchQueue, worker.Options{})
	fetchWorker.RegisterActivityWithOptions(acts.FetchActivity, activity.RegisterOptions{Name: FetchActivityName})

	parseWorker := worker.New(c, cfg.ParseQueue, worker.Options{})
	parseWorker.RegisterActivityWithOptions(acts.ParseActivity, activity.RegisterOptions{Name: ParseActivityName})

	uploadWorker := worker.New(c, cfg.UploadQueue, worker.Options{})
	uploadWorker.RegisterActivityWithOptions(acts.UploadActivity, activity.RegisterOptions{Name: UploadActivityName})

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range []worker.Worker{wfWorker, fetchWorker, parseWorker, uploadWorker} {
		g.Go(func() error {
			if err := w.Run(interruptCh(gctx)); err != nil {
				return eris.Wrap(err, "staging: worker")
			}
			return nil
		})
	}
	return g.Wait()
}

// interruptCh adapts a context cancellation to the worker stop channel.
func interruptCh(ctx context.Context) <-chan interface{} {
	ch := make(chan interface{})
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch
}
