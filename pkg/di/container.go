package di

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/goliatone/go-survey-service/cache"
	"github.com/goliatone/go-survey-service/internal/auth"
	"github.com/goliatone/go-survey-service/internal/cacheinfra"
	"github.com/goliatone/go-survey-service/internal/config"
	"github.com/goliatone/go-survey-service/internal/export"
	"github.com/goliatone/go-survey-service/internal/httpapi"
	"github.com/goliatone/go-survey-service/internal/jobs"
	"github.com/goliatone/go-survey-service/internal/metrics"
	"github.com/goliatone/go-survey-service/internal/notify"
	"github.com/goliatone/go-survey-service/internal/service"
	"github.com/goliatone/go-survey-service/internal/store"
	"github.com/goliatone/go-survey-service/internal/tasks"
	"github.com/goliatone/go-survey-service/surveycache"
)

// Option overrides a component the container would otherwise build from
// the configuration.
type Option func(*Container)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithStore uses an already opened store. The container does not close it.
func WithStore(s *store.Store) Option {
	return func(c *Container) {
		c.store = s
		c.ownsStore = false
	}
}

// WithRedisClient uses client for the cache backend. The container does not
// close it.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(c *Container) {
		c.redis = client
		c.ownsRedis = false
	}
}

func WithMailer(m notify.Mailer) Option {
	return func(c *Container) {
		c.mailer = m
	}
}

func WithSink(s export.Sink) Option {
	return func(c *Container) {
		c.sink = s
	}
}

// WithDispatcher replaces the configured task dispatcher.
func WithDispatcher(d tasks.Dispatcher) Option {
	return func(c *Container) {
		c.dispatcher = d
	}
}

func WithPrometheusRegistry(reg *prometheus.Registry) Option {
	return func(c *Container) {
		c.promRegistry = reg
	}
}

// Container builds every shared handle once and disposes of them in
// reverse order on Close.
type Container struct {
	cfg    *config.Config
	logger *zap.Logger

	promRegistry *prometheus.Registry
	metrics      *metrics.Metrics

	store     *store.Store
	ownsStore bool

	redis     redis.UniversalClient
	ownsRedis bool

	keySerializer cache.KeySerializer
	backend       cache.Backend
	ttlCache      *cache.TTLCache
	surveys       *surveycache.Manager
	memo          *cacheinfra.SturdycService
	auth          *auth.Service

	mailer   notify.Mailer
	sink     export.Sink
	jobs     *jobs.Jobs
	registry *tasks.Registry

	dispatcher tasks.Dispatcher

	service *service.Service

	closers []func(context.Context) error
}

// NewContainer wires the application from cfg. On failure every component
// built so far is closed.
func NewContainer(ctx context.Context, cfg *config.Config, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("di: config is required")
	}
	c := &Container{
		cfg:       cfg,
		logger:    zap.NewNop(),
		ownsStore: true,
		ownsRedis: true,
	}
	for _, opt := range opts {
		opt(c)
	}

	steps := []func(context.Context) error{
		c.initMetrics,
		c.initStore,
		c.initCache,
		c.initAuth,
		c.initJobs,
		c.initDispatcher,
		c.initService,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			_ = c.Close(context.WithoutCancel(ctx))
			return nil, err
		}
	}
	return c, nil
}

// NewContainerWithDefaults wires an in-process setup: memory cache, local
// dispatcher, memory export sink and a logging mailer over the given
// store configuration.
func NewContainerWithDefaults(ctx context.Context, db store.Config, secret string, opts ...Option) (*Container, error) {
	cfg := config.Default()
	cfg.Database = db
	cfg.Auth.Secret = secret
	cfg.Cache.Backend = config.BackendMemory
	cfg.Tasks.Mode = config.ModeLocal
	cfg.Export.Sink = config.SinkMemory
	cfg.Mail.Transport = config.MailLog
	return NewContainer(ctx, cfg, opts...)
}

func (c *Container) onClose(fn func(context.Context) error) {
	c.closers = append(c.closers, fn)
}

func (c *Container) initMetrics(context.Context) error {
	m, err := metrics.New(c.promRegistry)
	if err != nil {
		return fmt.Errorf("di: metrics: %w", err)
	}
	c.metrics = m
	return nil
}

func (c *Container) initStore(context.Context) error {
	if c.store == nil {
		s, err := store.Open(c.cfg.Database)
		if err != nil {
			return err
		}
		c.store = s
	}
	if c.ownsStore {
		s := c.store
		c.onClose(func(context.Context) error { return s.Close() })
	}
	return nil
}

func (c *Container) initCache(context.Context) error {
	c.keySerializer = cache.NewDefaultKeySerializer()

	switch c.cfg.Cache.Backend {
	case config.BackendRedis:
		if c.redis == nil {
			client, err := cacheinfra.NewRedisClient(c.cfg.Redis)
			if err != nil {
				return err
			}
			c.redis = client
		}
		if c.ownsRedis {
			client := c.redis
			c.onClose(func(context.Context) error { return client.Close() })
		}
		b, err := cacheinfra.NewRedisBackend(c.redis, cacheinfra.WithNamespace(c.cfg.Cache.Namespace))
		if err != nil {
			return err
		}
		c.backend = b
	default:
		c.backend = cacheinfra.NewMemoryBackend(c.cfg.Cache.MemoryCapacity)
	}

	ttl, err := cache.NewTTLCache(c.backend, c.cfg.Cache.TTL,
		cache.WithLogger(c.logger.Named("cache")),
		cache.WithObserver(c.metrics),
	)
	if err != nil {
		return err
	}
	c.ttlCache = ttl
	c.onClose(ttl.Close)

	manager, err := surveycache.NewManager(ttl,
		surveycache.WithDefaultTTL(c.cfg.Cache.TTL.DefaultTTL),
		surveycache.WithResultsScopedByUser(c.cfg.Cache.ScopeResultsByUser),
		surveycache.WithKeySerializer(c.keySerializer),
		surveycache.WithLogger(c.logger.Named("surveycache")),
	)
	if err != nil {
		return err
	}
	c.surveys = manager
	return nil
}

func (c *Container) initAuth(context.Context) error {
	memo, err := cacheinfra.NewSturdycService(c.cfg.Cache.Memo)
	if err != nil {
		return err
	}
	c.memo = memo

	a, err := auth.New(c.store, c.cfg.Auth,
		auth.WithMemo(memo),
		auth.WithLogger(c.logger.Named("auth")),
	)
	if err != nil {
		return err
	}
	c.auth = a
	return nil
}

func (c *Container) initJobs(ctx context.Context) error {
	if c.mailer == nil {
		switch c.cfg.Mail.Transport {
		case config.MailSMTP:
			m, err := notify.NewSMTPMailer(c.cfg.Mail.SMTP)
			if err != nil {
				return err
			}
			c.mailer = m
		default:
			c.mailer = notify.NewLogMailer(c.logger.Named("mail"))
		}
	}

	if c.sink == nil {
		switch c.cfg.Export.Sink {
		case config.SinkS3:
			s, err := export.NewS3Sink(ctx, c.cfg.Export.S3)
			if err != nil {
				return err
			}
			c.sink = s
		default:
			c.sink = export.NewMemorySink()
		}
	}

	c.jobs = &jobs.Jobs{
		Store:  c.store,
		Mailer: c.mailer,
		Sink:   c.sink,
		Logger: c.logger.Named("jobs"),
	}
	c.registry = tasks.NewRegistry()
	return c.jobs.Register(c.registry)
}

func (c *Container) brokerOpt() asynq.RedisClientOpt {
	b := c.cfg.Tasks.Broker
	return asynq.RedisClientOpt{
		Addr:         b.Addr,
		Username:     b.Username,
		Password:     b.Password,
		DB:           b.DB,
		PoolSize:     b.PoolSize,
		DialTimeout:  b.DialTimeout,
		ReadTimeout:  b.ReadTimeout,
		WriteTimeout: b.WriteTimeout,
	}
}

func (c *Container) initDispatcher(context.Context) error {
	if c.dispatcher != nil {
		return nil
	}

	switch c.cfg.Tasks.Mode {
	case config.ModeAsynq:
		client := asynq.NewClient(c.brokerOpt())
		d, err := tasks.NewAsynqDispatcher(client, c.cfg.Tasks.Asynq,
			tasks.WithDispatchLogger(c.logger.Named("tasks")),
			tasks.WithDispatchObserver(c.metrics),
		)
		if err != nil {
			_ = client.Close()
			return err
		}
		c.dispatcher = d
		c.onClose(func(context.Context) error { return d.Close() })
	default:
		d := tasks.NewLocalDispatcher(c.registry, c.cfg.Tasks.Local, c.logger.Named("tasks"), c.metrics)
		c.dispatcher = d
		c.onClose(func(context.Context) error { return d.Close() })
	}
	return nil
}

func (c *Container) initService(context.Context) error {
	svc, err := service.New(service.Deps{
		Store:      c.store,
		Cache:      c.surveys,
		Dispatcher: c.dispatcher,
		Auth:       c.auth,
		Logger:     c.logger.Named("service"),
	})
	if err != nil {
		return err
	}
	c.service = svc
	return nil
}

// Migrate creates the schema.
func (c *Container) Migrate(ctx context.Context) error {
	return c.store.CreateSchema(ctx)
}

// Health pings the store and, when used, Redis.
func (c *Container) Health(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if c.redis != nil {
		if err := c.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// HTTPHandler builds the API routes over the container's service.
func (c *Container) HTTPHandler() *httpapi.API {
	return httpapi.New(httpapi.Deps{
		Service: c.service,
		Metrics: c.metrics,
		Health:  c.Health,
		Logger:  c.logger.Named("http"),
	})
}

// NewWorker builds the job server for the asynq broker.
func (c *Container) NewWorker() (*tasks.Worker, error) {
	if c.cfg.Tasks.Mode != config.ModeAsynq {
		return nil, fmt.Errorf("di: worker needs tasks.mode %q, got %q", config.ModeAsynq, c.cfg.Tasks.Mode)
	}
	return tasks.NewWorker(c.brokerOpt(), c.cfg.Tasks.Worker, c.registry, c.logger.Named("worker")), nil
}

// Close releases every owned resource in reverse construction order.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *Container) Config() *config.Config             { return c.cfg }
func (c *Container) Logger() *zap.Logger                { return c.logger }
func (c *Container) Metrics() *metrics.Metrics          { return c.metrics }
func (c *Container) Store() *store.Store                { return c.store }
func (c *Container) KeySerializer() cache.KeySerializer { return c.keySerializer }
func (c *Container) TTLCache() *cache.TTLCache          { return c.ttlCache }
func (c *Container) SurveyCache() *surveycache.Manager  { return c.surveys }
func (c *Container) Memo() cache.Memo                   { return c.memo }
func (c *Container) Auth() *auth.Service                { return c.auth }
func (c *Container) Registry() *tasks.Registry          { return c.registry }
func (c *Container) Dispatcher() tasks.Dispatcher       { return c.dispatcher }
func (c *Container) Service() *service.Service          { return c.service }
func (c *Container) Mailer() notify.Mailer              { return c.mailer }
func (c *Container) Sink() export.Sink                  { return c.sink }
