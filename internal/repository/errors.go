package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates a conditional update found a different value than expected.
	ErrConflict = errors.New("repository: conflicting update")
)
