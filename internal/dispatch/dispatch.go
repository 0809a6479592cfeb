// Package dispatch routes typed events to their registered handlers.
//
// The registration table is built once at startup and handed to the worker
// that drives event processing; there is no global registry. Handlers for one
// event run in registration order, but ordering is not a correctness
// dependency: every handler is idempotent and commutes with its siblings.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wojciechbednarz/habit-tracker/internal/domain/event"
	"github.com/wojciechbednarz/habit-tracker/pkg/logger"
	"github.com/wojciechbednarz/habit-tracker/pkg/metrics"
)

// defaultHandlerTimeout bounds a single handler invocation. A handler racing
// past its deadline must still be idempotency-safe; the delivery is reported
// failed and the transport redelivers.
const defaultHandlerTimeout = 5 * time.Second

// Handler processes one event and may return follow-up events.
type Handler interface {
	// Name identifies the handler in logs and metrics.
	Name() string
	// Handle applies the event and returns zero or more follow-up events.
	Handle(ctx context.Context, ev event.Event) ([]event.Event, error)
}

// Dispatcher routes events to handlers by kind.
type Dispatcher struct {
	handlers       map[event.Kind][]Handler
	handlerTimeout time.Duration
	logger         logger.Logger
}

// Option applies a configuration option to the Dispatcher.
type Option func(*Dispatcher)

// WithHandlerTimeout sets the per-handler invocation deadline.
func WithHandlerTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.handlerTimeout = timeout
		}
	}
}

// WithLogger sets a custom logger for the dispatcher.
func WithLogger(l logger.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// New constructs a Dispatcher with configuration options.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		handlers:       make(map[event.Kind][]Handler),
		handlerTimeout: defaultHandlerTimeout,
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.logger == nil {
		d.logger = logger.Get().Named("dispatch")
	}

	return d
}

// Register associates a handler with an event kind. Multiple handlers per
// kind are invoked independently. Register is meant for startup wiring and is
// not safe to call concurrently with Publish.
func (d *Dispatcher) Register(kind event.Kind, h Handler) {
	d.handlers[kind] = append(d.handlers[kind], h)
}

// Publish routes an event to all handlers registered for its kind and then
// dispatches any follow-up events those handlers returned, FIFO, after the
// originating event's handlers have all been attempted. Follow-ups are never
// dispatched recursively inline, which bounds stack depth and keeps traces
// linear.
//
// A handler failure never blocks or rolls back a sibling. The aggregate
// error of all failed invocations is returned so the transport can mark the
// delivery failed and redeliver; Publish itself never requeues.
func (d *Dispatcher) Publish(ctx context.Context, ev event.Event) error {
	pending := []event.Event{ev}
	var failures []error

	for len(pending) > 0 {
		current := pending[0]
		pending = pending[1:]

		handlers := d.handlers[current.EventKind()]
		if len(handlers) == 0 {
			d.logger.Debug(ctx, "no handlers registered",
				logger.String("kind", string(current.EventKind())),
			)
			continue
		}

		for _, h := range handlers {
			followUps, err := d.invoke(ctx, h, current)
			if err != nil {
				metrics.RecordHandlerFailure(h.Name())
				d.logger.Error(ctx, "handler failed",
					logger.String("handler", h.Name()),
					logger.String("kind", string(current.EventKind())),
					logger.String("dedupKey", current.DedupKey()),
					logger.Error(err),
				)
				failures = append(failures, fmt.Errorf("%s(%s): %w", h.Name(), current.DedupKey(), err))
				continue
			}
			pending = append(pending, followUps...)
		}
	}

	return errors.Join(failures...)
}

// invoke runs one handler under its deadline.
func (d *Dispatcher) invoke(ctx context.Context, h Handler, ev event.Event) ([]event.Event, error) {
	start := time.Now()
	defer func() {
		metrics.RecordHandlerLatency(h.Name(), float64(time.Since(start).Milliseconds()))
	}()

	hctx, cancel := context.WithTimeout(ctx, d.handlerTimeout)
	defer cancel()

	return h.Handle(hctx, ev)
}
