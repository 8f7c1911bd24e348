// Package surveycache names and manages the cached survey resources.
//
// Two resources are cached in the shared TTL cache:
//
//   - survey:<id>          the survey document with its questions
//   - survey_results:<id>  the result list of a survey
//
// Both expire after DefaultTTL. Writes that change a survey, its answers or its
// results must invalidate the affected prefixes after the store has committed
// and before the response is sent:
//
//	if err := store.CreateAnswer(ctx, a); err != nil {
//		return err
//	}
//	if err := manager.InvalidateAll(ctx, surveyID); err != nil {
//		return err
//	}
//
// Invalidation is prefix based. Clearing survey:5 also clears survey:52, which
// only costs that entry an extra miss.
//
// # Result scoping
//
// By default survey_results keys are shared by every caller, so the first
// caller's view of a survey's results is served to everyone until it expires.
// WithResultsScopedByUser(true) appends user_id:<id> to the key; since the
// scoped key still starts with survey_results:<id>, invalidation is unchanged.
package surveycache
