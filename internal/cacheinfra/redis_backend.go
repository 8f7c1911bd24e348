package cacheinfra

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-survey-service/cache"
	"github.com/redis/go-redis/v9"
)

var _ cache.Backend = (*RedisBackend)(nil)

// ErrNilClient is returned when a RedisBackend is built without a client.
var ErrNilClient = errors.New("cacheinfra: nil redis client")

// RedisConfig holds the connection settings for the shared cache store.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DefaultRedisConfig mirrors a local single-node deployment.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}
}

// Validate checks the connection settings.
func (c RedisConfig) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return &ConfigError{Field: "Addr", Message: "cannot be empty"}
	}
	if c.DB < 0 {
		return &ConfigError{Field: "DB", Message: "must be non-negative"}
	}
	if c.PoolSize < 0 {
		return &ConfigError{Field: "PoolSize", Message: "must be non-negative"}
	}
	return nil
}

// NewRedisClient builds a go-redis client from cfg.
func NewRedisClient(cfg RedisConfig) (redis.UniversalClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}), nil
}

const (
	defaultScanCount   = 500
	defaultUnlinkBatch = 500
)

// RedisOption configures a RedisBackend.
type RedisOption func(*RedisBackend)

// WithNamespace prefixes every key written by the backend. Prefix deletes
// stay inside the namespace.
func WithNamespace(ns string) RedisOption {
	return func(b *RedisBackend) {
		b.namespace = ns
	}
}

// WithScanCount sets the COUNT hint used while sweeping keys.
func WithScanCount(n int64) RedisOption {
	return func(b *RedisBackend) {
		if n > 0 {
			b.scanCount = n
		}
	}
}

// WithCloseClient makes Close release the client. Use it only when the
// backend exclusively owns the client.
func WithCloseClient() RedisOption {
	return func(b *RedisBackend) {
		b.closeClient = true
	}
}

// RedisBackend stores cache entries in Redis using native key expiry.
type RedisBackend struct {
	client      redis.UniversalClient
	namespace   string
	scanCount   int64
	batch       int
	closeClient bool
}

// NewRedisBackend wraps client.
func NewRedisBackend(client redis.UniversalClient, opts ...RedisOption) (*RedisBackend, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	b := &RedisBackend{
		client:    client,
		scanCount: defaultScanCount,
		batch:     defaultUnlinkBatch,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

func (b *RedisBackend) key(k string) string {
	return b.namespace + k
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := b.client.Get(ctx, b.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.client.Set(ctx, b.key(key), value, ttl).Err()
}

// DeleteByPrefix walks the keyspace with SCAN MATCH and unlinks matches in
// batches. Matching is a raw string prefix: "survey:5" also matches
// "survey:52". The sweep is not atomic with concurrent writers.
func (b *RedisBackend) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	pattern := escapeGlob(b.key(prefix)) + "*"
	iter := b.client.Scan(ctx, 0, pattern, b.scanCount).Iterator()

	deleted := 0
	pending := make([]string, 0, b.batch)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		n, err := b.client.Unlink(ctx, pending...).Result()
		deleted += int(n)
		pending = pending[:0]
		return err
	}

	seen := make(map[string]struct{})
	for iter.Next(ctx) {
		k := iter.Val()
		// SCAN may return a key more than once
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		pending = append(pending, k)
		if len(pending) >= b.batch {
			if err := flush(); err != nil {
				return deleted, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, err
	}
	if err := flush(); err != nil {
		return deleted, err
	}
	return deleted, nil
}

func (b *RedisBackend) Close(context.Context) error {
	if !b.closeClient {
		return nil
	}
	if err := b.client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}

// escapeGlob quotes the characters SCAN MATCH treats as pattern syntax.
func escapeGlob(s string) string {
	if !strings.ContainsAny(s, `*?[]\`) {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s) + 4)
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
