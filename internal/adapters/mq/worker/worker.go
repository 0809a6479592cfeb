// Package worker drains the event queue into the dispatcher.
//
// Workers decode each delivery and publish the event through the dispatcher.
// A handler failure nacks the delivery so the queue redelivers it; a payload
// that cannot decode is permanently broken and goes straight to the
// dead-letter queue, since redelivering it can only fail the same way.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/wojciechbednarz/habit-tracker/internal/adapters/mq/queue"
	"github.com/wojciechbednarz/habit-tracker/internal/domain/event"
	"github.com/wojciechbednarz/habit-tracker/pkg/logger"
	"github.com/wojciechbednarz/habit-tracker/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 4 // multiplier for runtime.NumCPU()
	workerShutdownTimeout   = 5 * time.Second
)

// Publisher routes a decoded event to its handlers.
type Publisher interface {
	Publish(ctx context.Context, ev event.Event) error
}

// Queue defines how workers receive and settle deliveries.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Delivery
	Ack(ctx context.Context, d queue.Delivery)
	Nack(ctx context.Context, d queue.Delivery)
	DeadLetter(ctx context.Context, d queue.Delivery)
}

// Worker processes deliveries until stopped.
type Worker struct {
	queue     Queue
	publisher Publisher
	name      string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewWorker creates a new worker with configuration options.
func NewWorker(q Queue, p Publisher, opts ...Option) *Worker {
	w := &Worker{
		queue:     q,
		publisher: p,
		name:      "worker",
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}

	return w
}

// Run starts the worker loop until ctx is canceled, the worker is shut down,
// or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	deliveries := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			w.process(ctx, d)
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *Worker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process settles a single delivery: ack on success, dead-letter on a
// permanently broken payload, nack otherwise.
func (w *Worker) process(ctx context.Context, d queue.Delivery) {
	ev, err := event.Decode(d.Body)
	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "malformed_payload")
		w.logger.Error(ctx, "discarding undecodable delivery",
			logger.Int("attempt", d.Attempt),
			logger.Error(err),
		)
		w.queue.DeadLetter(ctx, d)
		return
	}

	if err := w.publisher.Publish(ctx, ev); err != nil {
		// A malformed verdict from a handler is as permanent as a decode
		// failure.
		if errors.Is(err, event.ErrMalformedEvent) {
			metrics.RecordWorkerError()
			metrics.RecordErrorByComponent("worker", "rejected_event")
			w.logger.Error(ctx, "discarding rejected event",
				logger.String("dedupKey", ev.DedupKey()),
				logger.Error(err),
			)
			w.queue.DeadLetter(ctx, d)
			return
		}

		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "handler_error")
		w.logger.Warn(ctx, "delivery failed; returning for redelivery",
			logger.String("dedupKey", ev.DedupKey()),
			logger.Int("attempt", d.Attempt),
			logger.Error(err),
		)
		w.queue.Nack(ctx, d)
		return
	}

	w.queue.Ack(ctx, d)
}

// Pool manages multiple workers draining one queue.
type Pool struct {
	workers []*Worker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a worker pool. A non-positive count defaults to a multiple
// of the CPU count.
func NewPool(workerCount int, q Queue, p Publisher) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers: make([]*Worker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewWorker(q, p, WithName("worker-"+strconv.Itoa(i)))
	}

	metrics.UpdateWorkerCount(workerCount)

	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown gracefully shuts down the entire worker pool: the queue stops
// accepting work first, then every worker drains and stops.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	var firstErr error
	for _, w := range p.workers {
		wctx, cancel := context.WithTimeout(ctx, workerShutdownTimeout)
		if err := w.Shutdown(wctx); err != nil && firstErr == nil {
			firstErr = err
		}
		cancel()
	}

	metrics.UpdateWorkerCount(0)
	return firstErr
}
