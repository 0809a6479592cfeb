// Package handler contains the gamification policy units: streak update,
// points award, and achievement notification.
//
// Each handler is a pure policy over current aggregate state plus the
// incoming event. Handlers never talk to each other: the points handler
// derives its multiplier from the streak length embedded in the event, not
// from the streak handler's output, so the two stay independent and
// reorderable. Correctness under concurrent and redelivered events comes from
// conditional writes plus the per-deduplication-key ledger, never from locks.
package handler

import (
	"fmt"

	"github.com/wojciechbednarz/habit-tracker/internal/domain/event"
)

// defaultMaxRetries bounds local retries after a conditional write conflict
// before the failure is surfaced as transient.
const defaultMaxRetries = 3

// Ledger keys are namespaced per handler so the streak and points handlers
// track applied events independently.
func streakLedgerKey(ev event.Event) string { return "streak|" + ev.DedupKey() }
func pointsLedgerKey(ev event.Event) string { return "points|" + ev.DedupKey() }

// wrongEventError reports an event routed to a handler that cannot process
// its type. With kind-based routing this indicates a wiring bug.
func wrongEventError(handler string, ev event.Event) error {
	return fmt.Errorf("%w: handler %s cannot process %T", event.ErrMalformedEvent, handler, ev)
}
