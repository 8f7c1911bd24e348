package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type memEntry struct {
	v   []byte
	exp time.Time
}

// memBackend is a minimal Backend with a controllable clock and failure switch.
type memBackend struct {
	mu   sync.Mutex
	m    map[string]memEntry
	now  time.Time
	fail error
}

var _ Backend = (*memBackend)(nil)

func newMemBackend() *memBackend {
	return &memBackend{m: make(map[string]memEntry), now: time.Unix(1_700_000_000, 0)}
}

func (b *memBackend) advance(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = b.now.Add(d)
}

func (b *memBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return nil, false, b.fail
	}
	e, ok := b.m[key]
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && !b.now.Before(e.exp) {
		delete(b.m, key)
		return nil, false, nil
	}
	return e.v, true, nil
}

func (b *memBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return b.fail
	}
	b.m[key] = memEntry{v: value, exp: b.now.Add(ttl)}
	return nil
}

func (b *memBackend) DeleteByPrefix(_ context.Context, prefix string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return 0, b.fail
	}
	n := 0
	for k := range b.m {
		if strings.HasPrefix(k, prefix) {
			delete(b.m, k)
			n++
		}
	}
	return n, nil
}

func (b *memBackend) Close(context.Context) error { return nil }

type recordingObserver struct {
	mu     sync.Mutex
	hits   int
	misses int
	errs   []string
}

func (o *recordingObserver) ObserveGet(_ string, hit bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if hit {
		o.hits++
	} else {
		o.misses++
	}
}

func (o *recordingObserver) ObserveError(op string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs = append(o.errs, op)
}

func (o *recordingObserver) ObserveInvalidation(string, int) {}

type surveyDoc struct {
	ID    int64    `json:"id"`
	Title string   `json:"title"`
	Tags  []string `json:"tags"`
}

func newTestTTLCache(t *testing.T, b Backend, mutate func(*Config), opts ...Option) *TTLCache {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewTTLCache(b, cfg, opts...)
	if err != nil {
		t.Fatalf("NewTTLCache: %v", err)
	}
	return c
}

func TestTTLCache_RoundTrip(t *testing.T) {
	for _, codec := range []string{"json", "msgpack"} {
		t.Run(codec, func(t *testing.T) {
			ctx := context.Background()
			backend := newMemBackend()
			c := newTestTTLCache(t, backend, func(cfg *Config) { cfg.Codec = codec })

			want := surveyDoc{ID: 5, Title: "Onboarding", Tags: []string{"hr"}}
			if err := c.Set(ctx, "survey:5", want, 300*time.Second); err != nil {
				t.Fatalf("Set: %v", err)
			}

			var got surveyDoc
			found, err := c.Get(ctx, "survey:5", &got)
			if err != nil || !found {
				t.Fatalf("Get after Set: found=%v err=%v", found, err)
			}
			if got.ID != want.ID || got.Title != want.Title || len(got.Tags) != 1 || got.Tags[0] != "hr" {
				t.Fatalf("Get returned %+v, want %+v", got, want)
			}
		})
	}
}

func TestTTLCache_Expiry(t *testing.T) {
	ctx := context.Background()
	backend := newMemBackend()
	c := newTestTTLCache(t, backend, nil)

	if err := c.Set(ctx, "survey:1", surveyDoc{ID: 1}, 300*time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}

	backend.advance(299 * time.Second)
	var doc surveyDoc
	if found, _ := c.Get(ctx, "survey:1", &doc); !found {
		t.Fatal("entry expired before its TTL")
	}

	backend.advance(time.Second)
	if found, err := c.Get(ctx, "survey:1", &doc); err != nil || found {
		t.Fatalf("expected absent after TTL, found=%v err=%v", found, err)
	}
}

func TestTTLCache_SetUsesDefaultTTL(t *testing.T) {
	ctx := context.Background()
	backend := newMemBackend()
	c := newTestTTLCache(t, backend, func(cfg *Config) { cfg.DefaultTTL = 10 * time.Second })

	if err := c.Set(ctx, "k", 1, 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	backend.advance(10 * time.Second)

	var v int
	if found, _ := c.Get(ctx, "k", &v); found {
		t.Fatal("expected the default TTL to apply")
	}
}

func TestTTLCache_DeleteByPrefix_RawPrefix(t *testing.T) {
	ctx := context.Background()
	backend := newMemBackend()
	c := newTestTTLCache(t, backend, nil)

	for _, key := range []string{"survey:5", "survey:52", "survey:6", "survey_results:5"} {
		if err := c.Set(ctx, key, surveyDoc{Title: key}, 0); err != nil {
			t.Fatalf("Set(%s): %v", key, err)
		}
	}

	deleted, err := c.DeleteByPrefix(ctx, "survey:5")
	if err != nil {
		t.Fatalf("DeleteByPrefix: %v", err)
	}
	// raw prefix matching also removes survey:52
	if deleted != 2 {
		t.Fatalf("expected 2 deletions, got %d", deleted)
	}

	var doc surveyDoc
	for key, wantFound := range map[string]bool{
		"survey:5":         false,
		"survey:52":        false,
		"survey:6":         true,
		"survey_results:5": true,
	} {
		found, err := c.Get(ctx, key, &doc)
		if err != nil {
			t.Fatalf("Get(%s): %v", key, err)
		}
		if found != wantFound {
			t.Errorf("Get(%s) found=%v, want %v", key, found, wantFound)
		}
	}
}

func TestTTLCache_BackendFailurePropagates(t *testing.T) {
	ctx := context.Background()
	backend := newMemBackend()
	obs := &recordingObserver{}
	c := newTestTTLCache(t, backend, nil, WithObserver(obs))

	transport := errors.New("connection refused")
	backend.fail = transport

	var doc surveyDoc
	_, err := c.Get(ctx, "survey:1", &doc)
	if !errors.Is(err, ErrUnavailable) || !errors.Is(err, transport) {
		t.Fatalf("Get error = %v, want ErrUnavailable wrapping transport error", err)
	}

	if err := c.Set(ctx, "survey:1", doc, 0); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Set error = %v, want ErrUnavailable", err)
	}

	if _, err := c.DeleteByPrefix(ctx, "survey:1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("DeleteByPrefix error = %v, want ErrUnavailable", err)
	}

	if len(obs.errs) != 3 {
		t.Fatalf("expected 3 observed errors, got %v", obs.errs)
	}
}

// stallingBackend blocks every call until its context ends.
type stallingBackend struct{}

func (stallingBackend) Get(ctx context.Context, _ string) ([]byte, bool, error) {
	<-ctx.Done()
	return nil, false, ctx.Err()
}

func (stallingBackend) Set(ctx context.Context, _ string, _ []byte, _ time.Duration) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stallingBackend) DeleteByPrefix(ctx context.Context, _ string) (int, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func (stallingBackend) Close(context.Context) error { return nil }

func TestTTLCache_OperationTimeoutBounded(t *testing.T) {
	const timeout = 50 * time.Millisecond
	c := newTestTTLCache(t, stallingBackend{}, func(cfg *Config) { cfg.OperationTimeout = timeout })
	ctx := context.Background()

	ops := map[string]func() error{
		"get": func() error {
			var doc surveyDoc
			_, err := c.Get(ctx, "survey:1", &doc)
			return err
		},
		"set": func() error {
			return c.Set(ctx, "survey:1", surveyDoc{ID: 1}, 0)
		},
		"delete": func() error {
			_, err := c.DeleteByPrefix(ctx, "survey:1")
			return err
		},
	}

	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			start := time.Now()
			err := op()
			took := time.Since(start)

			if !errors.Is(err, ErrUnavailable) || !errors.Is(err, context.DeadlineExceeded) {
				t.Fatalf("error = %v, want ErrUnavailable wrapping context.DeadlineExceeded", err)
			}
			if took < timeout || took > 20*timeout {
				t.Fatalf("call took %v, want it bounded by the %v operation timeout", took, timeout)
			}
		})
	}
}

func TestTTLCache_DegradeOnError(t *testing.T) {
	ctx := context.Background()
	backend := newMemBackend()
	backend.fail = errors.New("i/o timeout")
	c := newTestTTLCache(t, backend, func(cfg *Config) { cfg.DegradeOnError = true })

	var doc surveyDoc
	found, err := c.Get(ctx, "survey:1", &doc)
	if err != nil || found {
		t.Fatalf("degraded Get should be a miss, found=%v err=%v", found, err)
	}
	if err := c.Set(ctx, "survey:1", doc, 0); err != nil {
		t.Fatalf("degraded Set should not fail: %v", err)
	}
	if _, err := c.DeleteByPrefix(ctx, "survey:1"); err != nil {
		t.Fatalf("degraded DeleteByPrefix should not fail: %v", err)
	}
}

func TestTTLCache_CorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	backend := newMemBackend()
	c := newTestTTLCache(t, backend, nil)

	if err := backend.Set(ctx, "survey:9", []byte("{not json"), time.Minute); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var doc surveyDoc
	found, err := c.Get(ctx, "survey:9", &doc)
	if err != nil || found {
		t.Fatalf("corrupt entry should be a miss, found=%v err=%v", found, err)
	}
}

func TestReadThrough(t *testing.T) {
	ctx := context.Background()
	backend := newMemBackend()
	c := newTestTTLCache(t, backend, nil)

	calls := 0
	fetch := func(ctx context.Context) (surveyDoc, error) {
		calls++
		return surveyDoc{ID: 3, Title: "fresh"}, nil
	}

	for i := 0; i < 3; i++ {
		got, err := ReadThrough(ctx, c, "survey:3", 0, fetch)
		if err != nil {
			t.Fatalf("ReadThrough: %v", err)
		}
		if got.Title != "fresh" {
			t.Fatalf("unexpected value %+v", got)
		}
	}
	if calls != 1 {
		t.Fatalf("fetch called %d times, want 1", calls)
	}

	if _, err := c.DeleteByPrefix(ctx, "survey:3"); err != nil {
		t.Fatalf("DeleteByPrefix: %v", err)
	}
	if _, err := ReadThrough(ctx, c, "survey:3", 0, fetch); err != nil {
		t.Fatalf("ReadThrough: %v", err)
	}
	if calls != 2 {
		t.Fatalf("fetch called %d times after invalidation, want 2", calls)
	}
}

func TestReadThrough_FetchErrorNotCached(t *testing.T) {
	ctx := context.Background()
	backend := newMemBackend()
	c := newTestTTLCache(t, backend, nil)

	notFound := errors.New("not found")
	_, err := ReadThrough(ctx, c, "survey:404", 0, func(ctx context.Context) (surveyDoc, error) {
		return surveyDoc{}, notFound
	})
	if !errors.Is(err, notFound) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if len(backend.m) != 0 {
		t.Fatalf("failed fetch must not populate the cache: %v", backend.m)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "zero ttl", mutate: func(c *Config) { c.DefaultTTL = 0 }, wantErr: true},
		{name: "sub-second ttl", mutate: func(c *Config) { c.DefaultTTL = 10 * time.Millisecond }, wantErr: true},
		{name: "no timeout", mutate: func(c *Config) { c.OperationTimeout = 0 }, wantErr: true},
		{name: "unknown codec", mutate: func(c *Config) { c.Codec = "gob" }, wantErr: true},
		{name: "msgpack", mutate: func(c *Config) { c.Codec = "msgpack" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
