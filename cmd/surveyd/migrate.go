package main

import (
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database schema",
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx, stop := signalContext()
		defer stop()

		container, logger, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer shutdown(container, logger)

		if err := container.Migrate(ctx); err != nil {
			return err
		}
		logger.Info("schema ready")
		return nil
	},
}
