// Package dedupe provides the idempotency ledger for event redelivery.
package dedupe

import "time"

// Option applies a configuration option to the TTLLedger.
type Option func(*TTLLedger)

// WithRetention sets how long applied marks are kept. It should cover the
// transport's full redelivery window.
func WithRetention(retention time.Duration) Option {
	return func(l *TTLLedger) {
		if retention > 0 {
			l.retention = retention
		}
	}
}

// WithSweepInterval sets how often expired marks are swept.
func WithSweepInterval(interval time.Duration) Option {
	return func(l *TTLLedger) {
		if interval > 0 {
			l.sweep = interval
		}
	}
}

// WithClock overrides the time source, used by tests to expire marks without
// sleeping.
func WithClock(now func() time.Time) Option {
	return func(l *TTLLedger) {
		if now != nil {
			l.now = now
		}
	}
}
