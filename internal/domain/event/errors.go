package event

import "errors"

// Sentinel kinds for event errors.
var (
	// ErrMalformedEvent marks a payload that can never be processed; the
	// transport must dead-letter it instead of retrying.
	ErrMalformedEvent = errors.New("malformed event payload")
)
