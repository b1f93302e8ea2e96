package types

import "errors"

// Error kinds shared by the conversion and retrieval paths. Components wrap
// them with context; callers classify with errors.Is.
var (
	ErrMissingParameter = errors.New("missing parameter")
	ErrFetch            = errors.New("fetch failed")
	ErrSegmentation     = errors.New("segmentation failed")
	ErrSynthesis        = errors.New("synthesis failed")
	ErrNotFound         = errors.New("not found")
	ErrStoreWrite       = errors.New("store write failed")
	ErrIndexDisabled    = errors.New("search index disabled")
)
