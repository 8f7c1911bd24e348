package surveycache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goliatone/go-survey-service/cache"
	"github.com/goliatone/go-survey-service/internal/cacheinfra"
	"github.com/redis/go-redis/v9"
)

type testSurvey struct {
	ID        int64    `json:"id"`
	Title     string   `json:"title"`
	Questions []string `json:"questions"`
}

type testResult struct {
	ID     int64 `json:"id"`
	UserID int64 `json:"user_id"`
	Score  int   `json:"score"`
}

func newRedisManager(t *testing.T, opts ...Option) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	backend, err := cacheinfra.NewRedisBackend(client)
	if err != nil {
		t.Fatalf("NewRedisBackend: %v", err)
	}
	c, err := cache.NewTTLCache(backend, cache.DefaultConfig())
	if err != nil {
		t.Fatalf("NewTTLCache: %v", err)
	}
	m, err := NewManager(c, opts...)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m, mr
}

func TestNewManager(t *testing.T) {
	if _, err := NewManager(nil); err == nil {
		t.Fatal("expected error for nil cache")
	}

	m, _ := newRedisManager(t)
	if m.TTL() != 300*time.Second {
		t.Errorf("expected default TTL of 300s, got %v", m.TTL())
	}
	if m.ResultsScopedByUser() {
		t.Error("results must not be user scoped by default")
	}

	m, _ = newRedisManager(t, WithDefaultTTL(time.Minute), WithResultsScopedByUser(true), WithLogger(nil))
	if m.TTL() != time.Minute {
		t.Errorf("expected TTL override, got %v", m.TTL())
	}
	if !m.ResultsScopedByUser() {
		t.Error("expected user scoped results")
	}
}

func TestManager_Keys(t *testing.T) {
	m, _ := newRedisManager(t)
	scoped, _ := newRedisManager(t, WithResultsScopedByUser(true))

	tests := []struct {
		name string
		got  string
		want string
	}{
		{name: "survey", got: m.SurveyKey(5), want: "survey:5"},
		{name: "results shared", got: m.SurveyResultsKey(5, 3), want: "survey_results:5"},
		{name: "results scoped", got: scoped.SurveyResultsKey(5, 3), want: "survey_results:5:user_id:3"},
		{name: "matches BuildKey", got: m.SurveyKey(42), want: cache.BuildKey("survey", []any{int64(42)}, nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestManager_SurveyRoundTripAndTTL(t *testing.T) {
	ctx := context.Background()
	m, mr := newRedisManager(t)

	want := testSurvey{ID: 5, Title: "Onboarding", Questions: []string{"Q1"}}
	if err := m.SetSurvey(ctx, 5, want); err != nil {
		t.Fatalf("SetSurvey: %v", err)
	}
	if ttl := mr.TTL("survey:5"); ttl != DefaultTTL {
		t.Errorf("expected TTL %v, got %v", DefaultTTL, ttl)
	}

	var got testSurvey
	found, err := m.GetSurvey(ctx, 5, &got)
	if err != nil || !found {
		t.Fatalf("GetSurvey: found=%v err=%v", found, err)
	}
	if got.Title != want.Title || len(got.Questions) != 1 {
		t.Errorf("unexpected survey %+v", got)
	}

	mr.FastForward(DefaultTTL)
	found, err = m.GetSurvey(ctx, 5, &got)
	if err != nil {
		t.Fatalf("GetSurvey: %v", err)
	}
	if found {
		t.Error("expected survey to expire after the TTL")
	}
}

func TestManager_PerEntryTTL(t *testing.T) {
	ctx := context.Background()
	m, mr := newRedisManager(t)

	tests := []struct {
		name string
		set  func() error
		key  string
		want time.Duration
	}{
		{
			name: "survey override",
			set:  func() error { return m.SetSurvey(ctx, 1, testSurvey{ID: 1}, 30*time.Second) },
			key:  "survey:1",
			want: 30 * time.Second,
		},
		{
			name: "survey non-positive falls back",
			set:  func() error { return m.SetSurvey(ctx, 2, testSurvey{ID: 2}, 0) },
			key:  "survey:2",
			want: DefaultTTL,
		},
		{
			name: "results override",
			set: func() error {
				return m.SetSurveyResults(ctx, 3, 1, []testResult{{ID: 1}}, time.Minute)
			},
			key:  "survey_results:3",
			want: time.Minute,
		},
		{
			name: "results negative falls back",
			set: func() error {
				return m.SetSurveyResults(ctx, 4, 1, []testResult{{ID: 1}}, -time.Second)
			},
			key:  "survey_results:4",
			want: DefaultTTL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.set(); err != nil {
				t.Fatalf("set: %v", err)
			}
			if ttl := mr.TTL(tt.key); ttl != tt.want {
				t.Errorf("TTL(%s) = %v, want %v", tt.key, ttl, tt.want)
			}
		})
	}
}

func TestManager_InvalidateSurvey(t *testing.T) {
	ctx := context.Background()
	m, mr := newRedisManager(t)

	for _, id := range []int64{5, 52, 6} {
		if err := m.SetSurvey(ctx, id, testSurvey{ID: id}); err != nil {
			t.Fatalf("SetSurvey(%d): %v", id, err)
		}
	}
	if err := m.SetSurveyResults(ctx, 5, 1, []testResult{{ID: 1}}); err != nil {
		t.Fatalf("SetSurveyResults: %v", err)
	}

	if err := m.InvalidateSurvey(ctx, 5); err != nil {
		t.Fatalf("InvalidateSurvey: %v", err)
	}

	if mr.Exists("survey:5") {
		t.Error("survey:5 should be invalidated")
	}
	// prefix sweep over-invalidates survey:52
	if mr.Exists("survey:52") {
		t.Error("survey:52 shares the prefix and should be gone")
	}
	if !mr.Exists("survey:6") {
		t.Error("survey:6 must survive")
	}
	if !mr.Exists("survey_results:5") {
		t.Error("survey results are a separate resource")
	}
}

func TestManager_InvalidateSurveyResults_AllUsers(t *testing.T) {
	ctx := context.Background()
	m, mr := newRedisManager(t, WithResultsScopedByUser(true))

	for _, userID := range []int64{1, 2, 3} {
		if err := m.SetSurveyResults(ctx, 7, userID, []testResult{{ID: userID, UserID: userID}}); err != nil {
			t.Fatalf("SetSurveyResults: %v", err)
		}
	}
	if got := len(mr.Keys()); got != 3 {
		t.Fatalf("expected 3 scoped entries, got %d", got)
	}

	if err := m.InvalidateSurveyResults(ctx, 7); err != nil {
		t.Fatalf("InvalidateSurveyResults: %v", err)
	}
	if got := mr.Keys(); len(got) != 0 {
		t.Errorf("expected every user's entry to be cleared, got %v", got)
	}
}

func TestManager_SharedResultsAcrossUsers(t *testing.T) {
	ctx := context.Background()
	m, _ := newRedisManager(t)

	if err := m.SetSurveyResults(ctx, 9, 1, []testResult{{ID: 1, UserID: 1, Score: 4}}); err != nil {
		t.Fatalf("SetSurveyResults: %v", err)
	}

	var seen []testResult
	found, err := m.GetSurveyResults(ctx, 9, 2, &seen)
	if err != nil {
		t.Fatalf("GetSurveyResults: %v", err)
	}
	if !found || len(seen) != 1 || seen[0].UserID != 1 {
		t.Errorf("unscoped keys are shared between users, got found=%v %+v", found, seen)
	}
}

func TestManager_InvalidateAll(t *testing.T) {
	ctx := context.Background()
	m, mr := newRedisManager(t)

	_ = m.SetSurvey(ctx, 3, testSurvey{ID: 3})
	_ = m.SetSurveyResults(ctx, 3, 1, []testResult{{ID: 1}})

	if err := m.InvalidateAll(ctx, 3); err != nil {
		t.Fatalf("InvalidateAll: %v", err)
	}
	if len(mr.Keys()) != 0 {
		t.Errorf("expected empty cache, got %v", mr.Keys())
	}
}

func TestCachedSurvey_ReadThrough(t *testing.T) {
	ctx := context.Background()
	m, _ := newRedisManager(t)

	title := "v1"
	calls := 0
	fetch := func(ctx context.Context) (testSurvey, error) {
		calls++
		return testSurvey{ID: 1, Title: title}, nil
	}

	got, err := CachedSurvey(ctx, m, 1, fetch)
	if err != nil || got.Title != "v1" {
		t.Fatalf("first read: %+v %v", got, err)
	}

	// the store changes without an invalidation: the cached copy is served
	title = "v2"
	got, _ = CachedSurvey(ctx, m, 1, fetch)
	if got.Title != "v1" || calls != 1 {
		t.Fatalf("expected cached v1 after one fetch, got %+v after %d fetches", got, calls)
	}

	if err := m.InvalidateSurvey(ctx, 1); err != nil {
		t.Fatalf("InvalidateSurvey: %v", err)
	}
	got, _ = CachedSurvey(ctx, m, 1, fetch)
	if got.Title != "v2" || calls != 2 {
		t.Fatalf("expected fresh v2 after invalidation, got %+v after %d fetches", got, calls)
	}
}

func TestCachedSurveyResults_FetchError(t *testing.T) {
	ctx := context.Background()
	m, mr := newRedisManager(t)

	notFound := errors.New("survey not found")
	_, err := CachedSurveyResults(ctx, m, 404, 1, func(ctx context.Context) ([]testResult, error) {
		return nil, notFound
	})
	if !errors.Is(err, notFound) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if len(mr.Keys()) != 0 {
		t.Errorf("failed fetch must not be cached, got %v", mr.Keys())
	}
}

func TestManager_CacheUnavailable(t *testing.T) {
	ctx := context.Background()
	m, mr := newRedisManager(t)
	mr.Close()

	var s testSurvey
	if _, err := m.GetSurvey(ctx, 1, &s); !errors.Is(err, cache.ErrUnavailable) {
		t.Errorf("GetSurvey: expected ErrUnavailable, got %v", err)
	}
	if err := m.InvalidateAll(ctx, 1); !errors.Is(err, cache.ErrUnavailable) {
		t.Errorf("InvalidateAll: expected ErrUnavailable, got %v", err)
	}
}

func TestManager_MemoryBackend(t *testing.T) {
	ctx := context.Background()
	backend := cacheinfra.NewMemoryBackend(0)
	c, err := cache.NewTTLCache(backend, cache.DefaultConfig())
	if err != nil {
		t.Fatalf("NewTTLCache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(ctx) })

	m, err := NewManager(c)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	if err := m.SetSurvey(ctx, 8, testSurvey{ID: 8}); err != nil {
		t.Fatalf("SetSurvey: %v", err)
	}
	if err := m.InvalidateSurvey(ctx, 8); err != nil {
		t.Fatalf("InvalidateSurvey: %v", err)
	}

	var s testSurvey
	found, err := m.GetSurvey(ctx, 8, &s)
	if err != nil || found {
		t.Errorf("expected miss after invalidation, found=%v err=%v", found, err)
	}
}
