package surveycache

import (
	"context"
	"errors"
	"time"

	"github.com/goliatone/go-survey-service/cache"
	"go.uber.org/zap"
)

const (
	// SurveyResource is the logical name of cached survey documents.
	SurveyResource = "survey"
	// SurveyResultsResource is the logical name of cached survey result lists.
	SurveyResultsResource = "survey_results"

	// DefaultTTL is how long a cached survey or survey result list lives.
	DefaultTTL = 300 * time.Second
)

// Option configures a Manager.
type Option func(*Manager)

// WithDefaultTTL overrides the TTL used for both resources.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithResultsScopedByUser adds the requesting user to survey_results keys, so
// one user's cached results are never served to another. Invalidation still
// clears every user's entry for a survey.
func WithResultsScopedByUser(enabled bool) Option {
	return func(m *Manager) {
		m.scopeResultsByUser = enabled
	}
}

// WithKeySerializer replaces the default key serializer.
func WithKeySerializer(s cache.KeySerializer) Option {
	return func(m *Manager) {
		if s != nil {
			m.serializer = s
		}
	}
}

// WithLogger sets the logger used for invalidation traces.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// Manager owns the cache keys for surveys and survey results and the
// operations that read, populate and invalidate them.
type Manager struct {
	cache              *cache.TTLCache
	serializer         cache.KeySerializer
	ttl                time.Duration
	scopeResultsByUser bool
	logger             *zap.Logger
}

// NewManager builds a Manager over c.
func NewManager(c *cache.TTLCache, opts ...Option) (*Manager, error) {
	if c == nil {
		return nil, errors.New("surveycache: ttl cache is required")
	}
	m := &Manager{
		cache:      c,
		serializer: cache.NewDefaultKeySerializer(),
		ttl:        DefaultTTL,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// TTL returns the expiry applied to entries written by the manager.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// ResultsScopedByUser reports whether survey_results keys include the user.
func (m *Manager) ResultsScopedByUser() bool {
	return m.scopeResultsByUser
}

// SurveyKey returns the key of a survey document, e.g. "survey:5".
func (m *Manager) SurveyKey(surveyID int64) string {
	return m.serializer.SerializeKey(SurveyResource, surveyID)
}

// SurveyResultsKey returns the key of a survey's result list as seen by
// userID. The user only appears in the key when results are user scoped.
func (m *Manager) SurveyResultsKey(surveyID, userID int64) string {
	if m.scopeResultsByUser {
		return m.serializer.SerializeKey(SurveyResultsResource, surveyID, cache.Keywords{"user_id": userID})
	}
	return m.surveyResultsPrefix(surveyID)
}

func (m *Manager) surveyResultsPrefix(surveyID int64) string {
	return m.serializer.SerializeKey(SurveyResultsResource, surveyID)
}

// GetSurvey loads the cached survey into dest.
func (m *Manager) GetSurvey(ctx context.Context, surveyID int64, dest any) (bool, error) {
	return m.cache.Get(ctx, m.SurveyKey(surveyID), dest)
}

// SetSurvey caches a survey document. An optional ttl overrides the manager
// default for this entry; a non-positive one falls back to it.
func (m *Manager) SetSurvey(ctx context.Context, surveyID int64, value any, ttl ...time.Duration) error {
	return m.cache.Set(ctx, m.SurveyKey(surveyID), value, m.entryTTL(ttl))
}

// InvalidateSurvey removes every entry under the survey's key prefix.
func (m *Manager) InvalidateSurvey(ctx context.Context, surveyID int64) error {
	return m.invalidate(ctx, SurveyResource, m.SurveyKey(surveyID))
}

// GetSurveyResults loads the cached result list into dest.
func (m *Manager) GetSurveyResults(ctx context.Context, surveyID, userID int64, dest any) (bool, error) {
	return m.cache.Get(ctx, m.SurveyResultsKey(surveyID, userID), dest)
}

// SetSurveyResults caches a survey's result list. ttl works as in SetSurvey.
func (m *Manager) SetSurveyResults(ctx context.Context, surveyID, userID int64, value any, ttl ...time.Duration) error {
	return m.cache.Set(ctx, m.SurveyResultsKey(surveyID, userID), value, m.entryTTL(ttl))
}

func (m *Manager) entryTTL(ttl []time.Duration) time.Duration {
	if len(ttl) > 0 && ttl[0] > 0 {
		return ttl[0]
	}
	return m.ttl
}

// InvalidateSurveyResults removes the cached result lists of a survey for
// every user.
func (m *Manager) InvalidateSurveyResults(ctx context.Context, surveyID int64) error {
	return m.invalidate(ctx, SurveyResultsResource, m.surveyResultsPrefix(surveyID))
}

// InvalidateAll clears both the survey document and its result lists. The two
// sweeps run in order and stop at the first failure.
func (m *Manager) InvalidateAll(ctx context.Context, surveyID int64) error {
	if err := m.InvalidateSurvey(ctx, surveyID); err != nil {
		return err
	}
	return m.InvalidateSurveyResults(ctx, surveyID)
}

func (m *Manager) invalidate(ctx context.Context, resource, prefix string) error {
	deleted, err := m.cache.DeleteByPrefix(ctx, prefix)
	if err != nil {
		return err
	}
	m.logger.Debug("cache invalidated",
		zap.String("resource", resource),
		zap.String("prefix", prefix),
		zap.Int("deleted", deleted),
	)
	return nil
}

// CachedSurvey returns the cached survey or loads it with fetch and caches it.
func CachedSurvey[T any](ctx context.Context, m *Manager, surveyID int64, fetch cache.FetchFn[T]) (T, error) {
	return cache.ReadThrough(ctx, m.cache, m.SurveyKey(surveyID), m.ttl, fetch)
}

// CachedSurveyResults returns the cached result list or loads it with fetch
// and caches it.
func CachedSurveyResults[T any](ctx context.Context, m *Manager, surveyID, userID int64, fetch cache.FetchFn[T]) (T, error) {
	return cache.ReadThrough(ctx, m.cache, m.SurveyResultsKey(surveyID, userID), m.ttl, fetch)
}
