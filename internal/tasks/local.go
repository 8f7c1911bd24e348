package tasks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const localQueue = "local"

// LocalStatus is the last known state of a locally executed task.
type LocalStatus struct {
	Handle Handle
	Result []byte
	Err    error
}

type envelope struct {
	id   string
	task Task
}

// LocalDispatcher runs tasks in-process on a fixed pool of goroutines fed by
// a bounded channel. Dispatch never waits for a free worker: a full queue is
// a submission failure. Tasks still queued when the process exits are lost.
//
// Statuses are kept for LocalConfig.Retention after their last change and at
// most LocalConfig.StatusCapacity of them are held; the oldest go first.
// Expired statuses are swept on every Dispatch.
type LocalDispatcher struct {
	registry *Registry
	queue    chan envelope
	logger   *zap.Logger
	observer Observer

	statusMu sync.Mutex
	statuses *ttlcache.Cache[string, LocalStatus]

	mu     sync.RWMutex
	closed bool
	group  *errgroup.Group
	cancel context.CancelFunc
}

var _ Dispatcher = (*LocalDispatcher)(nil)

// LocalConfig sizes the in-process pool and its status history.
type LocalConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
	// Retention keeps a task status readable after its last state change.
	Retention time.Duration `mapstructure:"retention"`
	// StatusCapacity caps the number of statuses held at once.
	StatusCapacity uint64 `mapstructure:"status_capacity"`
}

func DefaultLocalConfig() LocalConfig {
	return LocalConfig{
		Workers:        2,
		QueueSize:      256,
		Retention:      time.Hour,
		StatusCapacity: 10000,
	}
}

func NewLocalDispatcher(reg *Registry, cfg LocalConfig, logger *zap.Logger, observer Observer) *LocalDispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultLocalConfig().Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultLocalConfig().QueueSize
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultLocalConfig().Retention
	}
	if cfg.StatusCapacity == 0 {
		cfg.StatusCapacity = DefaultLocalConfig().StatusCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	d := &LocalDispatcher{
		registry: reg,
		queue:    make(chan envelope, cfg.QueueSize),
		logger:   logger,
		observer: observer,
		statuses: ttlcache.New(
			ttlcache.WithTTL[string, LocalStatus](cfg.Retention),
			ttlcache.WithCapacity[string, LocalStatus](cfg.StatusCapacity),
			ttlcache.WithDisableTouchOnHit[string, LocalStatus](),
		),
	}
	d.start(cfg.Workers)
	return d
}

func (d *LocalDispatcher) start(workers int) {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for env := range d.queue {
				d.run(ctx, env)
			}
			return nil
		})
	}
	d.group = g
	d.cancel = cancel
}

// Dispatch queues t and returns immediately with a pending handle.
func (d *LocalDispatcher) Dispatch(ctx context.Context, t Task) (Handle, error) {
	handle, err := d.submit(ctx, t)
	d.observer.ObserveDispatch(t.Name(), err)
	return handle, err
}

func (d *LocalDispatcher) submit(ctx context.Context, t Task) (Handle, error) {
	if err := t.Validate(); err != nil {
		return Handle{}, &SubmissionError{Task: t.Name(), Err: err}
	}
	if _, ok := d.registry.Lookup(t.Name()); !ok {
		return Handle{}, &SubmissionError{Task: t.Name(), Err: ErrUnknownTask}
	}
	if err := ctx.Err(); err != nil {
		return Handle{}, &SubmissionError{Task: t.Name(), Err: err}
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return Handle{}, &SubmissionError{Task: t.Name(), Err: errors.New("dispatcher closed")}
	}

	d.statuses.DeleteExpired()
	h := Handle{ID: uuid.NewString(), Name: t.Name(), Queue: localQueue, State: StatePending}
	d.statuses.Set(h.ID, LocalStatus{Handle: h}, ttlcache.DefaultTTL)

	select {
	case d.queue <- envelope{id: h.ID, task: t}:
		return h, nil
	default:
		d.statuses.Delete(h.ID)
		return Handle{}, &SubmissionError{Task: t.Name(), Err: ErrQueueFull}
	}
}

func (d *LocalDispatcher) run(ctx context.Context, env envelope) {
	d.setState(env, StateRunning, nil, nil)

	out, err := d.registry.Execute(ctx, env.task)
	if err != nil {
		d.logger.Error("local task failed", zap.String("task", env.task.Name()), zap.String("task_id", env.id), zap.Error(err))
		d.setState(env, StateFailed, nil, err)
		return
	}
	d.setState(env, StateSucceeded, out, nil)
}

// setState replaces the status of env and restarts its retention window.
func (d *LocalDispatcher) setState(env envelope, state State, out []byte, err error) {
	d.statusMu.Lock()
	defer d.statusMu.Unlock()

	st := LocalStatus{Handle: Handle{ID: env.id, Name: env.task.Name(), Queue: localQueue}}
	if item := d.statuses.Get(env.id); item != nil {
		st = item.Value()
	}
	st.Handle.State = state
	st.Result = out
	st.Err = err
	d.statuses.Set(env.id, st, ttlcache.DefaultTTL)
}

// Status returns the state of a task dispatched by this dispatcher. Statuses
// past their retention are gone.
func (d *LocalDispatcher) Status(id string) (LocalStatus, bool) {
	item := d.statuses.Get(id)
	if item == nil {
		return LocalStatus{}, false
	}
	return item.Value(), true
}

// Tracked reports how many statuses are currently held.
func (d *LocalDispatcher) Tracked() int {
	d.statuses.DeleteExpired()
	return d.statuses.Len()
}

// Close stops accepting tasks, drains the queue and waits for the workers.
func (d *LocalDispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	err := d.group.Wait()
	d.cancel()
	return err
}
