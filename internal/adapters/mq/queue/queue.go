// Package queue provides the at-least-once transport between event producers
// and the gamification workers.
//
// Deliveries carry encoded event envelopes plus an attempt counter. A failed
// delivery is re-enqueued until it exhausts its attempt budget, then parked on
// the dead-letter queue for operator inspection. Duplicate deliveries are
// expected by design; the handlers deduplicate.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/wojciechbednarz/habit-tracker/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 100000
	defaultMaxAttempts   = 5
)

// Delivery is one attempt at delivering an encoded event envelope.
type Delivery struct {
	Body    []byte
	Attempt int

	// FirstEnqueued is when the body first entered the queue, carried
	// across redeliveries.
	FirstEnqueued time.Time
}

// Queue provides non-blocking enqueue, channel-based dequeue, and explicit
// acknowledgement semantics.
type Queue interface {
	// Enqueue adds an encoded envelope as a fresh delivery.
	// Returns false if the queue is full or closed.
	Enqueue(ctx context.Context, body []byte) bool

	// Dequeue returns a channel that receives deliveries as they become
	// available. The channel is closed when the queue is closed.
	Dequeue(ctx context.Context) <-chan Delivery

	// Ack marks a delivery as fully processed.
	Ack(ctx context.Context, d Delivery)

	// Nack returns a failed delivery for another attempt. Once the attempt
	// budget is spent the delivery moves to the dead-letter queue instead.
	Nack(ctx context.Context, d Delivery)

	// DeadLetter parks a delivery immediately, bypassing the attempt
	// budget. Used for permanently unprocessable payloads.
	DeadLetter(ctx context.Context, d Delivery)

	// DeadLetters returns a snapshot of the parked deliveries.
	DeadLetters(ctx context.Context) []Delivery

	// Len returns the current number of in-flight queued deliveries.
	Len(ctx context.Context) int

	// Close gracefully shuts down the queue. After closing, no new
	// deliveries can be enqueued and the dequeue channel is closed.
	Close() error

	// IsClosed reports whether the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel plus a dead-letter
// slice.
type InMemoryQueue struct {
	deliveries  chan Delivery
	capacity    int
	maxAttempts int

	mu     sync.RWMutex
	dead   []Delivery
	closed bool

	now func() time.Time
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity:    defaultQueueCapacity,
		maxAttempts: defaultMaxAttempts,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(q)
	}

	q.deliveries = make(chan Delivery, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueDepth(0)
	metrics.UpdateDeadLetterDepth(0)

	return q
}

// Enqueue adds an encoded envelope as a fresh delivery.
func (q *InMemoryQueue) Enqueue(ctx context.Context, body []byte) bool {
	return q.offer(ctx, Delivery{
		Body:          body,
		Attempt:       1,
		FirstEnqueued: q.now(),
	})
}

func (q *InMemoryQueue) offer(ctx context.Context, d Delivery) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordErrorByComponent("queue", "closed")
		return false
	}

	select {
	case q.deliveries <- d:
		metrics.UpdateQueueDepth(len(q.deliveries))
		return true
	case <-ctx.Done():
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return false
	default:
		metrics.RecordErrorByComponent("queue", "queue_full")
		return false
	}
}

// Dequeue returns a channel that receives deliveries as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Delivery {
	out := make(chan Delivery)
	go func() {
		defer close(out)
		for d := range q.deliveries {
			select {
			case out <- d:
				metrics.UpdateQueueDepth(len(q.deliveries))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Ack marks a delivery as fully processed.
func (q *InMemoryQueue) Ack(ctx context.Context, d Delivery) {
	metrics.RecordEventProcessed()
}

// Nack returns a failed delivery for another attempt, or parks it once the
// attempt budget is spent. A nack against a closed or full queue also parks
// the delivery rather than dropping it.
func (q *InMemoryQueue) Nack(ctx context.Context, d Delivery) {
	if d.Attempt >= q.maxAttempts {
		q.DeadLetter(ctx, d)
		return
	}

	d.Attempt++
	if !q.offer(ctx, d) {
		q.park(d)
		return
	}
	metrics.RecordEventRedelivered()
}

// DeadLetter parks a delivery immediately, bypassing the attempt budget.
func (q *InMemoryQueue) DeadLetter(ctx context.Context, d Delivery) {
	q.park(d)
}

func (q *InMemoryQueue) park(d Delivery) {
	q.mu.Lock()
	q.dead = append(q.dead, d)
	depth := len(q.dead)
	q.mu.Unlock()

	metrics.RecordEventDeadLettered()
	metrics.UpdateDeadLetterDepth(depth)
}

// DeadLetters returns a snapshot of the parked deliveries.
func (q *InMemoryQueue) DeadLetters(ctx context.Context) []Delivery {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]Delivery, len(q.dead))
	copy(out, q.dead)
	return out
}

// Len returns the current number of in-flight queued deliveries.
func (q *InMemoryQueue) Len(ctx context.Context) int {
	size := len(q.deliveries)
	metrics.UpdateQueueDepth(size)
	return size
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	close(q.deliveries)
	q.closed = true

	return nil
}

// IsClosed reports whether the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
