package app

import "errors"

// Sentinel kinds for service errors.
var (
	// ErrNotStarted reports a call against a service that was never
	// started or has been stopped.
	ErrNotStarted = errors.New("service not started")

	// ErrQueueFull reports an event submission rejected by a saturated
	// queue. Callers should back off and resubmit.
	ErrQueueFull = errors.New("event queue full")
)
