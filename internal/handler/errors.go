package handler

import "errors"

// Sentinel kinds for handler errors.
var (
	// ErrRetriesExhausted reports a conditional write that kept losing its
	// version race past the retry bound. Transient: the transport
	// redelivers the whole event.
	ErrRetriesExhausted = errors.New("conditional write retries exhausted")
)
