package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/goliatone/go-survey-service/internal/tasks"

// AsynqConfig tunes how tasks are enqueued.
type AsynqConfig struct {
	// Queue receives every task.
	Queue string `mapstructure:"queue"`
	// Retention keeps completed task results readable for polling.
	Retention time.Duration `mapstructure:"retention"`
	// Timeout bounds a single task execution on the worker.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxRetry is the retry budget after a failed execution. Zero means a
	// failed task is not retried; a worker crash still redelivers it.
	MaxRetry int `mapstructure:"max_retry"`
}

func DefaultAsynqConfig() AsynqConfig {
	return AsynqConfig{
		Queue:     "surveys",
		Retention: 24 * time.Hour,
		Timeout:   5 * time.Minute,
		MaxRetry:  0,
	}
}

// Enqueuer is the part of *asynq.Client used by AsynqDispatcher.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// AsynqOption configures an AsynqDispatcher.
type AsynqOption func(*AsynqDispatcher)

func WithDispatchLogger(logger *zap.Logger) AsynqOption {
	return func(d *AsynqDispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithDispatchObserver(o Observer) AsynqOption {
	return func(d *AsynqDispatcher) {
		if o != nil {
			d.observer = o
		}
	}
}

// AsynqDispatcher enqueues tasks on a Redis backed asynq queue.
type AsynqDispatcher struct {
	client   Enqueuer
	cfg      AsynqConfig
	logger   *zap.Logger
	observer Observer
	tracer   trace.Tracer
}

var _ Dispatcher = (*AsynqDispatcher)(nil)

func NewAsynqDispatcher(client Enqueuer, cfg AsynqConfig, opts ...AsynqOption) (*AsynqDispatcher, error) {
	if client == nil {
		return nil, errors.New("tasks: asynq client is required")
	}
	if cfg.Queue == "" {
		cfg.Queue = DefaultAsynqConfig().Queue
	}
	d := &AsynqDispatcher{
		client:   client,
		cfg:      cfg,
		logger:   zap.NewNop(),
		observer: nopObserver{},
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Dispatch enqueues t and returns its pending handle.
func (d *AsynqDispatcher) Dispatch(ctx context.Context, t Task) (Handle, error) {
	ctx, span := d.tracer.Start(ctx, "tasks.Dispatch", trace.WithAttributes(
		attribute.String("task.name", t.Name()),
		attribute.String("task.queue", d.cfg.Queue),
	))
	defer span.End()

	handle, err := d.enqueue(ctx, t)
	d.observer.ObserveDispatch(t.Name(), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "enqueue failed")
		return Handle{}, err
	}
	span.SetAttributes(attribute.String("task.id", handle.ID))
	return handle, nil
}

func (d *AsynqDispatcher) enqueue(ctx context.Context, t Task) (Handle, error) {
	if err := t.Validate(); err != nil {
		return Handle{}, &SubmissionError{Task: t.Name(), Err: err}
	}
	body, err := t.Payload()
	if err != nil {
		return Handle{}, &SubmissionError{Task: t.Name(), Err: err}
	}

	opts := []asynq.Option{
		asynq.Queue(d.cfg.Queue),
		asynq.MaxRetry(d.cfg.MaxRetry),
	}
	if d.cfg.Retention > 0 {
		opts = append(opts, asynq.Retention(d.cfg.Retention))
	}
	if d.cfg.Timeout > 0 {
		opts = append(opts, asynq.Timeout(d.cfg.Timeout))
	}

	info, err := d.client.EnqueueContext(ctx, asynq.NewTask(t.Name(), body), opts...)
	if err != nil {
		return Handle{}, &SubmissionError{Task: t.Name(), Err: err}
	}

	d.logger.Debug("task enqueued",
		zap.String("task", t.Name()),
		zap.String("task_id", info.ID),
		zap.String("queue", info.Queue),
	)
	return Handle{ID: info.ID, Name: t.Name(), Queue: info.Queue, State: StatePending}, nil
}

func (d *AsynqDispatcher) Close() error {
	return d.client.Close()
}
