package queue

import "errors"

var (
	// ErrDuplicateJob indicates a non-terminal job already exists for the source.
	ErrDuplicateJob = errors.New("job already queued for source")
	// ErrDuplicateRender indicates a non-terminal render already exists for the clip.
	ErrDuplicateRender = errors.New("render already active for clip")
)
