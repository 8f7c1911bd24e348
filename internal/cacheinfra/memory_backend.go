package cacheinfra

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-survey-service/cache"
	"github.com/jellydator/ttlcache/v3"
)

var _ cache.Backend = (*MemoryBackend)(nil)

// MemoryBackend is a process-local cache.Backend. It has the same expiry and
// prefix semantics as RedisBackend but is not shared between processes, so
// it only suits single-process deployments, examples and tests.
type MemoryBackend struct {
	items *ttlcache.Cache[string, []byte]
	once  sync.Once
}

// NewMemoryBackend starts the expiry loop and returns the backend. Call Close
// to stop it.
func NewMemoryBackend(capacity uint64) *MemoryBackend {
	opts := []ttlcache.Option[string, []byte]{
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	}
	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, []byte](capacity))
	}
	b := &MemoryBackend{items: ttlcache.New(opts...)}
	go b.items.Start()
	return b
}

func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	item := b.items.Get(key)
	if item == nil {
		return nil, false, nil
	}
	return item.Value(), true, nil
}

func (b *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	b.items.Set(key, stored, ttl)
	return nil
}

func (b *MemoryBackend) DeleteByPrefix(_ context.Context, prefix string) (int, error) {
	deleted := 0
	for _, key := range b.items.Keys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		// expired items are still listed until the expiry loop evicts them
		if b.items.Get(key) != nil {
			deleted++
		}
		b.items.Delete(key)
	}
	return deleted, nil
}

func (b *MemoryBackend) Close(context.Context) error {
	b.once.Do(b.items.Stop)
	return nil
}
