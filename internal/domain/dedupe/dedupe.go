// Package dedupe provides the idempotency ledger that suppresses duplicate
// effects of at-least-once event redelivery.
//
// Handlers mark a deduplication key as applied atomically before writing and
// unmark it if the write fails, so two concurrent deliveries of the same event
// cannot both get past the ledger. Entries are time-bounded: redelivery
// windows are bounded by the transport's retry policy, so marks older than the
// retention period are dropped.
package dedupe

import (
	"context"
	"sync"
	"time"
)

// Ledger records applied deduplication keys.
type Ledger interface {
	// MarkApplied atomically records key as applied. It returns false if the
	// key was already applied, true if it was newly recorded.
	MarkApplied(ctx context.Context, key string) bool

	// HasApplied reports whether key has been applied and is still retained.
	HasApplied(ctx context.Context, key string) bool

	// Unmark removes a key, allowing the event to be retried. Use it only
	// when a mark was taken but the guarded write failed.
	Unmark(ctx context.Context, key string)

	// Size returns the number of retained marks.
	Size() int64
}

// TTLLedger implements Ledger with an in-memory map of expiring marks.
// Expired entries are dropped lazily on access and by a periodic sweep.
type TTLLedger struct {
	mu        sync.Mutex
	applied   map[string]time.Time // key -> expiry
	retention time.Duration
	sweep     time.Duration
	now       func() time.Time

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// Default ledger configuration constants.
const (
	defaultRetention     = 24 * time.Hour
	defaultSweepInterval = 10 * time.Minute
)

// NewTTLLedger creates a ledger with configuration options and starts its
// sweep goroutine. Call Close to stop it.
func NewTTLLedger(opts ...Option) *TTLLedger {
	l := &TTLLedger{
		applied:   make(map[string]time.Time),
		retention: defaultRetention,
		sweep:     defaultSweepInterval,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(l)
	}

	l.wg.Add(1)
	go l.sweepLoop()

	return l
}

// MarkApplied implements Ledger.
func (l *TTLLedger) MarkApplied(_ context.Context, key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if expiry, ok := l.applied[key]; ok && now.Before(expiry) {
		return false
	}
	l.applied[key] = now.Add(l.retention)
	return true
}

// HasApplied implements Ledger.
func (l *TTLLedger) HasApplied(_ context.Context, key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	expiry, ok := l.applied[key]
	if !ok {
		return false
	}
	if !now.Before(expiry) {
		delete(l.applied, key)
		return false
	}
	return true
}

// Unmark implements Ledger.
func (l *TTLLedger) Unmark(_ context.Context, key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.applied, key)
}

// Size implements Ledger. Expired but not yet swept entries are counted.
func (l *TTLLedger) Size() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return int64(len(l.applied))
}

// Close stops the sweep goroutine.
func (l *TTLLedger) Close() error {
	select {
	case <-l.stopCh:
	default:
		close(l.stopCh)
	}
	l.wg.Wait()
	return nil
}

func (l *TTLLedger) sweepLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.sweepExpired()
		}
	}
}

func (l *TTLLedger) sweepExpired() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, expiry := range l.applied {
		if !now.Before(expiry) {
			delete(l.applied, key)
		}
	}
}
