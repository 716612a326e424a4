package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/policyrag/internal/job"
	"github.com/xxxsen/policyrag/internal/schedule"
)

func newWorkerCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "run the ingestion worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			app, err := load(ctx)
			if err != nil {
				return err
			}
			defer app.Close()
			cfg := app.Config

			dispatch := job.NewIngestDispatchJob(app.Worker)
			scheduler := schedule.NewCronScheduler()
			if err := scheduler.AddJob(dispatch, cfg.Worker.PollSpec); err != nil {
				return fmt.Errorf("schedule dispatch: %w", err)
			}
			if err := scheduler.AddJob(job.NewStaleJobReaperJob(app.Worker), cfg.Jobs.StaleReaperSpec); err != nil {
				return fmt.Errorf("schedule reaper: %w", err)
			}
			scheduler.Start(ctx)
			scheduler.RunNow(dispatch.Name())

			logutil.GetLogger(ctx).Info("ingestion worker started",
				zap.Int("concurrency", cfg.Worker.Concurrency),
				zap.Int("max_attempts", cfg.Worker.MaxAttempts),
				zap.String("poll_spec", cfg.Worker.PollSpec),
			)
			<-ctx.Done()
			logutil.GetLogger(context.Background()).Info("worker stopping, waiting for running jobs...")
			scheduler.Stop()
			return nil
		},
	}
}
