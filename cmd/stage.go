package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/racetrail/ingest-cli/internal/source"
	"github.com/racetrail/ingest-cli/internal/staging"
)

var (
	stageSource     string
	stageMaxBatches int
)

var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Submit fetch windows to the task-staging layer",
	Long:  "Enumerates each provider's fetch windows and starts one ingest chain workflow per window. Workers started with 'ingest-cli worker' execute the fetch, parse and upload stages.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initIngest(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		sources, err := resolveSources(env.Registry, stageSource)
		if err != nil {
			return err
		}

		c, err := staging.Dial(cfg.Temporal)
		if err != nil {
			return err
		}
		defer c.Close()

		var units []source.FetchUnit
		for _, src := range sources {
			su, err := src.EnumerateRequests(ctx)
			if err != nil {
				return err
			}
			units = append(units, su...)
		}
		if stageMaxBatches > 0 && len(units) > stageMaxBatches {
			units = units[:stageMaxBatches]
		}
		zap.L().Info("stage: submitting chains", zap.Int("units", len(units)))

		return staging.Submit(ctx, c, cfg.Temporal, units)
	},
}

func init() {
	stageCmd.Flags().StringVar(&stageSource, "source", "", "stage a single provider (default: all configured)")
	stageCmd.Flags().IntVar(&stageMaxBatches, "max-batches", 0, "submit at most N fetch windows (0 = no limit)")
	rootCmd.AddCommand(stageCmd)
}
