package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/goliatone/go-survey-service/cache"

// Observer receives cache outcomes, typically to feed metrics.
type Observer interface {
	ObserveGet(key string, hit bool)
	ObserveError(op string)
	ObserveInvalidation(prefix string, deleted int)
}

type nopObserver struct{}

func (nopObserver) ObserveGet(string, bool)         {}
func (nopObserver) ObserveError(string)             {}
func (nopObserver) ObserveInvalidation(string, int) {}

// Option configures a TTLCache.
type Option func(*TTLCache)

// WithLogger sets the logger used for degraded operations and decode failures.
func WithLogger(logger *zap.Logger) Option {
	return func(c *TTLCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver registers an Observer for hits, misses and failures.
func WithObserver(o Observer) Option {
	return func(c *TTLCache) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithTracer overrides the tracer used for cache spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *TTLCache) {
		if t != nil {
			c.tracer = t
		}
	}
}

// TTLCache serializes values into a shared Backend with per-entry expiry.
// Writes are whole-value replacements; there is no versioning, so the last
// writer wins.
type TTLCache struct {
	backend  Backend
	codec    Codec
	cfg      Config
	logger   *zap.Logger
	observer Observer
	tracer   trace.Tracer
}

// NewTTLCache validates cfg and builds a TTLCache over backend.
func NewTTLCache(backend Backend, cfg Config, opts ...Option) (*TTLCache, error) {
	if backend == nil {
		return nil, errors.New("cache: backend is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("cache: invalid config: %w", err)
	}
	codec, err := CodecByName(cfg.Codec)
	if err != nil {
		return nil, err
	}

	c := &TTLCache{
		backend:  backend,
		codec:    codec,
		cfg:      cfg,
		logger:   zap.NewNop(),
		observer: nopObserver{},
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// DefaultTTL returns the TTL applied when Set is called without one.
func (c *TTLCache) DefaultTTL() time.Duration {
	return c.cfg.DefaultTTL
}

// Get loads key into dest. It reports false when the key is missing or expired.
func (c *TTLCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	ctx, span := c.tracer.Start(ctx, "cache.Get", trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	opCtx, cancel := context.WithTimeout(ctx, c.cfg.OperationTimeout)
	defer cancel()

	raw, ok, err := c.backend.Get(opCtx, key)
	if err != nil {
		c.observer.ObserveError("get")
		span.RecordError(err)
		span.SetStatus(codes.Error, "backend get failed")
		if c.cfg.DegradeOnError {
			c.logger.Warn("cache get failed, treating as miss", zap.String("key", key), zap.Error(err))
			c.observer.ObserveGet(key, false)
			return false, nil
		}
		return false, &OpError{Op: "get", Key: key, Err: err}
	}

	if !ok || len(raw) == 0 {
		span.SetAttributes(attribute.Bool("cache.hit", false))
		c.observer.ObserveGet(key, false)
		return false, nil
	}

	if err := c.codec.Unmarshal(raw, dest); err != nil {
		// an undecodable entry is replaced by the next write
		c.logger.Warn("cache entry could not be decoded, treating as miss",
			zap.String("key", key), zap.String("codec", c.codec.Name()), zap.Error(err))
		span.SetAttributes(attribute.Bool("cache.hit", false))
		c.observer.ObserveGet(key, false)
		return false, nil
	}

	span.SetAttributes(attribute.Bool("cache.hit", true))
	c.observer.ObserveGet(key, true)
	return true, nil
}

// Set serializes value and stores it under key for ttl. A non-positive ttl
// uses the configured default.
func (c *TTLCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}

	ctx, span := c.tracer.Start(ctx, "cache.Set", trace.WithAttributes(
		attribute.String("cache.key", key),
		attribute.Int64("cache.ttl_seconds", int64(ttl/time.Second)),
	))
	defer span.End()

	payload, err := c.codec.Marshal(value)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("cache: encode %q: %w", key, err)
	}

	opCtx, cancel := context.WithTimeout(ctx, c.cfg.OperationTimeout)
	defer cancel()

	if err := c.backend.Set(opCtx, key, payload, ttl); err != nil {
		c.observer.ObserveError("set")
		span.RecordError(err)
		span.SetStatus(codes.Error, "backend set failed")
		if c.cfg.DegradeOnError {
			c.logger.Warn("cache set failed, skipping", zap.String("key", key), zap.Error(err))
			return nil
		}
		return &OpError{Op: "set", Key: key, Err: err}
	}
	return nil
}

// DeleteByPrefix removes every entry whose key starts with prefix in a single
// sweep. A writer racing the sweep can repopulate a key between the scan and
// the delete; such an entry lives until its TTL expires.
func (c *TTLCache) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	ctx, span := c.tracer.Start(ctx, "cache.DeleteByPrefix", trace.WithAttributes(attribute.String("cache.prefix", prefix)))
	defer span.End()

	opCtx, cancel := context.WithTimeout(ctx, c.cfg.OperationTimeout)
	defer cancel()

	deleted, err := c.backend.DeleteByPrefix(opCtx, prefix)
	if err != nil {
		c.observer.ObserveError("delete_by_prefix")
		span.RecordError(err)
		span.SetStatus(codes.Error, "backend delete failed")
		if c.cfg.DegradeOnError {
			c.logger.Warn("cache invalidation failed, relying on TTL expiry",
				zap.String("prefix", prefix), zap.Error(err))
			return deleted, nil
		}
		return deleted, &OpError{Op: "delete_by_prefix", Key: prefix, Err: err}
	}

	span.SetAttributes(attribute.Int("cache.deleted", deleted))
	c.observer.ObserveInvalidation(prefix, deleted)
	return deleted, nil
}

// Close releases the backend.
func (c *TTLCache) Close(ctx context.Context) error {
	return c.backend.Close(ctx)
}

// ReadThrough returns the cached value for key or, on a miss, calls fetch and
// stores its result for ttl. Errors from fetch are returned as-is and nothing
// is cached.
func ReadThrough[T any](ctx context.Context, c *TTLCache, key string, ttl time.Duration, fetch FetchFn[T]) (T, error) {
	var zero T

	var cached T
	found, err := c.Get(ctx, key, &cached)
	if err != nil {
		return zero, err
	}
	if found {
		return cached, nil
	}

	value, err := fetch(ctx)
	if err != nil {
		return zero, err
	}

	if err := c.Set(ctx, key, value, ttl); err != nil {
		return zero, err
	}
	return value, nil
}
