package explorer

import "errors"

var (
	// ErrInitialLoad wraps the first failure of the weeks/sources/categories join.
	ErrInitialLoad = errors.New("initial load failed")

	// ErrLeafLoad wraps a failed fetch of one leaf bucket.
	ErrLeafLoad = errors.New("leaf load failed")

	// ErrMutation wraps a failed remote create or edit. The cache is untouched.
	ErrMutation = errors.New("mutation failed")

	// ErrReconcile reports an edit whose record is missing from its bucket.
	ErrReconcile = errors.New("reconciliation inconsistency")

	// ErrNotLoaded is returned when the explorer is used before Load succeeded.
	ErrNotLoaded = errors.New("explorer not loaded")

	// ErrStale is returned when a result arrived after its view or key was dropped.
	ErrStale = errors.New("stale result discarded")

	// ErrInvalidKey is returned when a non-leaf key is used for cache data.
	ErrInvalidKey = errors.New("cache key must be a leaf key")
)
