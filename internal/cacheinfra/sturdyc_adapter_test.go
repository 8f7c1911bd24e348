package cacheinfra

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-survey-service/cache"
)

func TestDefaultMemoConfig(t *testing.T) {
	cfg := DefaultMemoConfig()

	if cfg.Capacity != 10000 {
		t.Errorf("expected Capacity to be 10000, got %d", cfg.Capacity)
	}
	if cfg.NumShards != 64 {
		t.Errorf("expected NumShards to be 64, got %d", cfg.NumShards)
	}
	if cfg.TTL != 30*time.Second {
		t.Errorf("expected TTL to be 30 seconds, got %v", cfg.TTL)
	}
	if cfg.EvictionPercentage != 10 {
		t.Errorf("expected EvictionPercentage to be 10, got %d", cfg.EvictionPercentage)
	}
	if cfg.EarlyRefresh != nil {
		t.Error("expected EarlyRefresh to be disabled for identity lookups")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestMemoConfig_Validate(t *testing.T) {
	base := func() MemoConfig {
		return MemoConfig{Capacity: 1000, NumShards: 8, TTL: time.Minute, EvictionPercentage: 10}
	}

	tests := []struct {
		name      string
		mutate    func(*MemoConfig)
		wantField string
	}{
		{name: "valid", mutate: func(*MemoConfig) {}},
		{name: "zero capacity", mutate: func(c *MemoConfig) { c.Capacity = 0 }, wantField: "Capacity"},
		{name: "zero shards", mutate: func(c *MemoConfig) { c.NumShards = 0 }, wantField: "NumShards"},
		{name: "zero ttl", mutate: func(c *MemoConfig) { c.TTL = 0 }, wantField: "TTL"},
		{name: "eviction too low", mutate: func(c *MemoConfig) { c.EvictionPercentage = 0 }, wantField: "EvictionPercentage"},
		{name: "eviction too high", mutate: func(c *MemoConfig) { c.EvictionPercentage = 101 }, wantField: "EvictionPercentage"},
		{
			name: "negative early refresh",
			mutate: func(c *MemoConfig) {
				c.EarlyRefresh = &EarlyRefreshConfig{MinAsyncRefreshTime: -time.Second}
			},
			wantField: "EarlyRefresh.MinAsyncRefreshTime",
		},
		{
			name: "inverted refresh window",
			mutate: func(c *MemoConfig) {
				c.EarlyRefresh = &EarlyRefreshConfig{MinAsyncRefreshTime: 20 * time.Second, MaxAsyncRefreshTime: 10 * time.Second}
			},
			wantField: "EarlyRefresh.MaxAsyncRefreshTime",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()

			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("expected no validation error but got: %v", err)
				}
				return
			}

			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got %T (%v)", err, err)
			}
			if cfgErr.Field != tt.wantField {
				t.Errorf("expected field %q, got %q", tt.wantField, cfgErr.Field)
			}
		})
	}
}

func TestMemoConfig_ToSturdycOptions(t *testing.T) {
	cfg := DefaultMemoConfig()
	if got := len(cfg.ToSturdycOptions()); got != 0 {
		t.Errorf("expected no sturdyc options for default config, got %d", got)
	}

	cfg.EarlyRefresh = &EarlyRefreshConfig{
		MinAsyncRefreshTime: time.Second,
		MaxAsyncRefreshTime: 2 * time.Second,
		SyncRefreshTime:     5 * time.Second,
		RetryBaseDelay:      10 * time.Millisecond,
	}
	cfg.EvictionInterval = time.Minute
	if got := len(cfg.ToSturdycOptions()); got != 2 {
		t.Errorf("expected 2 sturdyc options, got %d", got)
	}
}

func TestConfigError_Error(t *testing.T) {
	err := &ConfigError{Field: "TestField", Message: "test message"}

	expected := "config error in field TestField: test message"
	if err.Error() != expected {
		t.Errorf("expected error message %q, got %q", expected, err.Error())
	}
}

func TestNewSturdycService(t *testing.T) {
	service, err := NewSturdycService(DefaultMemoConfig())
	if err != nil {
		t.Fatalf("expected no error but got: %v", err)
	}
	var _ cache.Memo = service

	bad := DefaultMemoConfig()
	bad.TTL = 0
	service, err = NewSturdycService(bad)
	if err == nil {
		t.Fatal("expected error for zero TTL")
	}
	if service != nil {
		t.Error("expected service to be nil when error occurs")
	}
	if err.Error() != "config error in field TTL: must be greater than 0" {
		t.Errorf("unexpected error message %q", err.Error())
	}
}

func newTestMemo(t *testing.T) *SturdycService {
	t.Helper()
	service, err := NewSturdycService(MemoConfig{
		Capacity:           100,
		NumShards:          2,
		TTL:                time.Minute,
		EvictionPercentage: 10,
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service
}

func TestSturdycService_GetOrFetch(t *testing.T) {
	ctx := context.Background()
	service := newTestMemo(t)

	t.Run("miss then hit", func(t *testing.T) {
		calls := 0
		fetchFn := func(ctx context.Context) (any, error) {
			calls++
			return "alice", nil
		}

		for i := 0; i < 2; i++ {
			result, err := service.GetOrFetch(ctx, "user:alice", fetchFn)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != "alice" {
				t.Errorf("expected alice, got %v", result)
			}
		}
		if calls != 1 {
			t.Errorf("expected one fetch, got %d", calls)
		}
	})

	t.Run("errors are not memoized", func(t *testing.T) {
		calls := 0
		fetchFn := func(ctx context.Context) (any, error) {
			calls++
			return nil, errors.New("store down")
		}

		for i := 0; i < 2; i++ {
			result, err := service.GetOrFetch(ctx, "user:bob", fetchFn)
			if err == nil {
				t.Fatal("expected error but got none")
			}
			if result != nil {
				t.Errorf("expected nil result but got: %v", result)
			}
		}
		if calls != 2 {
			t.Errorf("expected two fetches, got %d", calls)
		}
	})

	t.Run("typed fetch function", func(t *testing.T) {
		type identity struct {
			ID       int64
			Username string
		}
		fetchFn := cache.FetchFn[identity](func(ctx context.Context) (identity, error) {
			return identity{ID: 7, Username: "carol"}, nil
		})

		got, err := cache.Memoize(ctx, service, "user:carol", fetchFn)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.ID != 7 || got.Username != "carol" {
			t.Errorf("unexpected identity %+v", got)
		}
	})

	t.Run("invalid fetch functions", func(t *testing.T) {
		invalid := map[string]any{
			"nil":          nil,
			"not function": "not-a-function",
			"no params":    func() (any, error) { return nil, nil },
			"wrong param":  func(s string) (any, error) { return s, nil },
			"no error":     func(ctx context.Context) (any, string) { return nil, "" },
		}

		for name, fn := range invalid {
			result, err := service.GetOrFetch(ctx, "invalid:"+name, fn)
			if result != nil {
				t.Errorf("%s: expected nil result but got %v", name, result)
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) || cfgErr.Field != "fetchFn" {
				t.Errorf("%s: expected fetchFn ConfigError, got %v", name, err)
			}
		}
	})
}

func TestSturdycService_Delete(t *testing.T) {
	ctx := context.Background()
	service := newTestMemo(t)

	var calls int
	fetchFn := func(ctx context.Context) (any, error) {
		calls++
		return calls, nil
	}

	if _, err := service.GetOrFetch(ctx, "user:dave", fetchFn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := service.Delete(ctx, "user:dave"); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}

	result, err := service.GetOrFetch(ctx, "user:dave", fetchFn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 2 {
		t.Errorf("expected a fresh fetch after Delete, got %v", result)
	}
}

func TestSturdycService_ConcurrentMiss(t *testing.T) {
	ctx := context.Background()
	service := newTestMemo(t)

	var calls atomic.Int32
	release := make(chan struct{})
	fetchFn := func(ctx context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "eve", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := service.GetOrFetch(ctx, "user:eve", fetchFn); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() == 0 {
		t.Fatal("fetch was never called")
	}
	if service.Size() != 1 {
		t.Errorf("expected one memoized entry, got %d", service.Size())
	}
}
