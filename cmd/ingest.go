package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/racetrail/ingest-cli/internal/pipeline"
)

var (
	ingestSource      string
	ingestSkipBatches int
	ingestMaxBatches  int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run the fetch-parse-upload pipeline in-process",
	Long:  "Runs each configured provider sequentially: enumerate fetch windows, fetch each batch, map to canonical events, upsert into the store. Use --source to run a single provider, --skip-batches to resume a partial run.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initIngest(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		sources, err := resolveSources(env.Registry, ingestSource)
		if err != nil {
			return err
		}

		p := pipeline.New(env.Store)
		opts := pipeline.Options{
			SkipBatches: ingestSkipBatches,
			MaxBatches:  ingestMaxBatches,
		}

		for _, src := range sources {
			sum, err := p.Run(ctx, src, opts)
			if err != nil {
				return err
			}
			zap.L().Info("ingest: source done",
				zap.String("source", sum.Source),
				zap.Int("batches", sum.Batches),
				zap.Int("new_events", sum.NewEvents),
				zap.Int("new_distances", sum.NewDistances))
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "run a single provider (default: all configured)")
	ingestCmd.Flags().IntVar(&ingestSkipBatches, "skip-batches", 0, "skip the first N fetch windows (resume a partial run)")
	ingestCmd.Flags().IntVar(&ingestMaxBatches, "max-batches", 0, "stop after N fetch windows (0 = no limit)")
	rootCmd.AddCommand(ingestCmd)
}
