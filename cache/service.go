package cache

import "context"

// KeySerializer builds a cache key from a logical name + arbitrary args.
// It is responsible for producing stable keys across calls.
type KeySerializer interface {
	SerializeKey(name string, args ...any) string
}

// FetchFn is the function signature used when fetching from the source of truth.
type FetchFn[T any] func(ctx context.Context) (T, error)

// Memo is an in-process read-through cache. Unlike TTLCache it is never shared
// between processes, so it is only suitable for data where a short window of
// per-process staleness is acceptable (identity lookups, for example).
type Memo interface {
	GetOrFetch(ctx context.Context, key string, fetchFn any) (any, error)
	Delete(ctx context.Context, key string) error
}

// Memoize is a type-safe wrapper around Memo.GetOrFetch.
func Memoize[T any](ctx context.Context, memo Memo, key string, fetchFn FetchFn[T]) (T, error) {
	var zero T
	result, err := memo.GetOrFetch(ctx, key, fetchFn)
	if err != nil {
		return zero, err
	}
	if result == nil {
		return zero, nil
	}
	return result.(T), nil
}
