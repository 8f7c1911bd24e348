package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run background jobs from the task queue",
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx, stop := signalContext()
		defer stop()

		container, logger, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer shutdown(container, logger)

		worker, err := container.NewWorker()
		if err != nil {
			return err
		}
		if err := worker.Start(); err != nil {
			return err
		}
		logger.Info("worker started", zap.Strings("jobs", container.Registry().Names()))

		<-ctx.Done()
		logger.Info("worker shutting down")
		worker.Shutdown()
		return nil
	},
}
