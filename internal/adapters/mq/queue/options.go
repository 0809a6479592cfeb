package queue

import "time"

// Option applies a configuration option to the InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity sets the maximum number of in-flight deliveries.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithMaxAttempts sets the delivery attempt budget before a delivery is
// parked on the dead-letter queue.
func WithMaxAttempts(n int) Option {
	return func(q *InMemoryQueue) {
		if n > 0 {
			q.maxAttempts = n
		}
	}
}

// WithClock overrides the time source for delivery timestamps.
func WithClock(now func() time.Time) Option {
	return func(q *InMemoryQueue) {
		if now != nil {
			q.now = now
		}
	}
}
