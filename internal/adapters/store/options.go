// Package store defines the single-table aggregate store behind the
// gamification pipeline.
package store

import "time"

// Option applies a configuration option to the MemStore.
type Option func(*MemStore)

// WithSnapshotInterval sets how often the leaderboard snapshot is rebuilt.
// This is the upper bound on leaderboard staleness.
func WithSnapshotInterval(interval time.Duration) Option {
	return func(s *MemStore) {
		if interval > 0 {
			s.snapshotInterval = interval
		}
	}
}

// WithTopCacheSize caps how many entries a snapshot holds.
func WithTopCacheSize(size int) Option {
	return func(s *MemStore) {
		if size > 0 {
			s.topCacheSize = size
		}
	}
}

// WithWriteHook registers a callback fired after every successful write with
// the partition that changed. Used for cache invalidation.
func WithWriteHook(hook func(partition string)) Option {
	return func(s *MemStore) {
		s.writeHook = hook
	}
}

// WithLedgerRetention sets how long idempotency marks are retained. It should
// cover the transport's full redelivery window.
func WithLedgerRetention(retention time.Duration) Option {
	return func(s *MemStore) {
		if retention > 0 {
			s.ledgerRetention = retention
		}
	}
}
