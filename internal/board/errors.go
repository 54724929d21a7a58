package board

import "errors"

var (
	// ErrNotFound means the mutation referenced a token id not in the store.
	ErrNotFound = errors.New("token not found")

	// ErrMissingID means a mutation arrived without a token id.
	ErrMissingID = errors.New("token id is required")

	// ErrEmptyPool means a flip had no templates to draw a back image from.
	ErrEmptyPool = errors.New("template pool is empty")
)
