package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// WorkerConfig tunes the background job server.
type WorkerConfig struct {
	Concurrency     int            `mapstructure:"concurrency"`
	Queues          map[string]int `mapstructure:"queues"`
	ShutdownTimeout time.Duration  `mapstructure:"shutdown_timeout"`
}

func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Concurrency:     4,
		Queues:          map[string]int{DefaultAsynqConfig().Queue: 1},
		ShutdownTimeout: 10 * time.Second,
	}
}

// Worker pulls tasks from the queue and runs them through a Registry.
type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	registry *Registry
	logger   *zap.Logger
}

// NewWorker builds the job server. Handlers must be registered on reg before
// the call.
func NewWorker(redisOpt asynq.RedisConnOpt, cfg WorkerConfig, reg *Registry, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Worker{
		registry: reg,
		logger:   logger,
		mux:      asynq.NewServeMux(),
	}
	w.server = asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:     cfg.Concurrency,
		Queues:          cfg.Queues,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          logger.Named("asynq").Sugar(),
		ErrorHandler:    asynq.ErrorHandlerFunc(w.reportFailure),
	})
	for _, name := range reg.Names() {
		w.mux.HandleFunc(name, w.handle)
	}
	return w
}

func (w *Worker) handle(ctx context.Context, at *asynq.Task) error {
	t, err := Decode(at.Type(), at.Payload())
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	started := time.Now()
	out, err := w.registry.Execute(ctx, t)
	if err != nil {
		if errors.Is(err, ErrUnknownTask) || errors.Is(err, ErrInvalidArgs) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}

	if rw := at.ResultWriter(); rw != nil && len(out) > 0 {
		if _, err := rw.Write(out); err != nil {
			w.logger.Warn("task result not stored", zap.String("task", t.Name()), zap.Error(err))
		}
	}

	w.logger.Info("task completed",
		zap.String("task", t.Name()),
		zap.Int64s("args", t.Args()),
		zap.Duration("took", time.Since(started)),
	)
	return nil
}

func (w *Worker) reportFailure(ctx context.Context, at *asynq.Task, err error) {
	w.logger.Error("task failed", zap.String("task", at.Type()), zap.Error(err))
}

// Start runs the server in the background.
func (w *Worker) Start() error {
	return w.server.Start(w.mux)
}

// Shutdown stops fetching tasks and waits for running ones up to the
// configured shutdown timeout.
func (w *Worker) Shutdown() {
	w.server.Shutdown()
}
