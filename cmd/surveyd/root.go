package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/goliatone/go-survey-service/internal/config"
	"github.com/goliatone/go-survey-service/internal/logging"
	"github.com/goliatone/go-survey-service/pkg/di"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:          "surveyd",
	Short:        "Survey API server and background worker",
	Long:         `Serves the survey HTTP API and runs report, export and notification jobs. Settings come from config.yaml and SURVEY_* environment variables.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "extra directory searched for config.yaml")
	rootCmd.AddCommand(serveCmd, workerCmd, migrateCmd)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// bootstrap loads the configuration and wires the container.
func bootstrap(ctx context.Context) (*di.Container, *zap.Logger, error) {
	var paths []string
	if configDir != "" {
		paths = append(paths, configDir)
	}
	cfg, err := config.Load(paths...)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}

	container, err := di.NewContainer(ctx, cfg, di.WithLogger(logger))
	if err != nil {
		_ = logger.Sync()
		return nil, nil, fmt.Errorf("wire components: %w", err)
	}
	return container, logger, nil
}

func shutdown(container *di.Container, logger *zap.Logger) {
	if err := container.Close(context.Background()); err != nil {
		logger.Error("shutdown incomplete", zap.Error(err))
	}
	_ = logger.Sync()
}
