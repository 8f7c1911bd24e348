// Package cache provides deterministic key construction and a TTL cache over a
// shared byte store.
//
// # Overview
//
// The package exports three building blocks:
//
//   - KeySerializer / BuildKey: stable cache keys from a logical name and arguments
//   - TTLCache: Get, Set and DeleteByPrefix over a Backend, with values encoded by a Codec
//   - Memo: an in-process read-through contract for data that tolerates per-process staleness
//
// Backends live in internal/cacheinfra (Redis and an in-memory store). The
// surveycache package builds the survey specific keys on top of TTLCache.
//
// # Keys
//
// Positional arguments are rendered in call order. Keyword arguments are
// rendered as "name:value" and sorted by name, so their order does not matter:
//
//	cache.BuildKey("survey", []any{5}, nil)                                // survey:5
//	cache.BuildKey("survey_results", []any{5}, cache.Keywords{"user_id": 3}) // survey_results:5:user_id:3
//
// Segments are joined with ":" and never escaped. A string argument containing
// ":" can collide with a different argument list; keep arguments to ids and
// simple tokens.
//
// # Read-through
//
//	s, err := cache.ReadThrough(ctx, ttlCache, key, 0, func(ctx context.Context) (Survey, error) {
//		return store.GetSurvey(ctx, id)
//	})
//
// A miss calls the fetch function and stores its result. Fetch errors are
// returned unchanged and nothing is cached.
//
// # Invalidation
//
// DeleteByPrefix removes every key that starts with the given string. The match
// is a raw string prefix, so invalidating "survey:5" also removes "survey:52".
// That costs an extra miss for an unrelated entry but never leaves a stale one.
//
// # Failures
//
// Backend errors are returned as *OpError and match ErrUnavailable with
// errors.Is. Config.DegradeOnError turns read failures into misses and logs
// write and invalidation failures instead of returning them; stale entries then
// live at most until their TTL.
package cache
