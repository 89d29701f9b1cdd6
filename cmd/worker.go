package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/racetrail/ingest-cli/internal/staging"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run task-staging workers for all stage queues",
	Long:  "Starts one worker per task queue (workflow, fetch, parse, upload) and blocks until interrupted. Scale out by running more worker processes.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initIngest(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		c, err := staging.Dial(cfg.Temporal)
		if err != nil {
			return err
		}
		defer c.Close()

		zap.L().Info("worker: starting",
			zap.String("host_port", cfg.Temporal.HostPort),
			zap.String("namespace", cfg.Temporal.Namespace))

		acts := &staging.Activities{Registry: env.Registry, Store: env.Store}
		return staging.RunWorkers(ctx, c, cfg.Temporal, acts)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
