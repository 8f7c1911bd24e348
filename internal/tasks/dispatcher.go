package tasks

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	// ErrSubmission reports that a task could not be handed to the queue.
	ErrSubmission = errors.New("tasks: submission failed")
	// ErrUnknownTask reports a task name without a job behind it.
	ErrUnknownTask = errors.New("tasks: unknown task")
	// ErrInvalidArgs reports a task whose arguments do not match its job.
	ErrInvalidArgs = errors.New("tasks: invalid arguments")
	// ErrQueueFull reports that the local queue has no free slot.
	ErrQueueFull = errors.New("tasks: queue full")
)

// State is the lifecycle of a dispatched task as seen through its handle.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Handle identifies a submitted task. Dispatchers only ever return pending
// handles; later states are owned by the execution side.
type Handle struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Queue string `json:"queue"`
	State State  `json:"state"`
}

// Dispatcher enqueues tasks and returns without waiting for them to run.
// Delivery is at least once, so every job must tolerate re-execution.
type Dispatcher interface {
	Dispatch(ctx context.Context, t Task) (Handle, error)
}

// SubmissionError wraps a failure to enqueue a task.
type SubmissionError struct {
	Task string
	Err  error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("tasks: submit %s: %v", e.Task, e.Err)
}

func (e *SubmissionError) Unwrap() []error {
	return []error{ErrSubmission, e.Err}
}

// Observer receives dispatch outcomes, typically to feed metrics.
type Observer interface {
	ObserveDispatch(task string, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveDispatch(string, error) {}

// FireAndForget dispatches t and drops the handle. A submission failure is
// logged and never returned: the caller's write has already committed.
func FireAndForget(ctx context.Context, d Dispatcher, t Task, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	h, err := d.Dispatch(ctx, t)
	if err != nil {
		logger.Error("background task not submitted",
			zap.String("task", t.Name()),
			zap.Int64s("args", t.Args()),
			zap.Error(err),
		)
		return
	}
	logger.Debug("background task submitted",
		zap.String("task", t.Name()),
		zap.String("task_id", h.ID),
	)
}
