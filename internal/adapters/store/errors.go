package store

import "errors"

// Sentinel kinds for aggregate store errors.
var (
	// ErrNotFound reports an absent (partition, sort) key.
	ErrNotFound = errors.New("record not found")

	// ErrConflict reports an optimistic-concurrency loss: the stored
	// version no longer matches the caller's expected version.
	ErrConflict = errors.New("version conflict on conditional write")

	// ErrAlreadyExists reports a create-if-absent hit. Callers treat it as
	// an idempotent success.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrInvalidLimit reports a non-positive leaderboard limit.
	ErrInvalidLimit = errors.New("invalid leaderboard limit")
)
