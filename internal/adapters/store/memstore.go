package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wojciechbednarz/habit-tracker/internal/domain/dedupe"
	"github.com/wojciechbednarz/habit-tracker/pkg/metrics"
)

// Default store configuration constants.
const (
	defaultSnapshotInterval = 1 * time.Second
	defaultTopCacheSize     = 500
)

// leaderboardSnapshot is an immutable view of the leaderboard published
// periodically. Readers never touch the live treap.
type leaderboardSnapshot struct {
	entries []LeaderboardEntry
}

// MemStore is the in-memory Store implementation: one table keyed by
// (partition, sort), per-record versions, a treap ordering index over
// metadata points, and a TTL idempotency ledger.
type MemStore struct {
	mu           sync.RWMutex
	table        map[string]map[string]Record // partition -> sort -> record
	root         *lbNode
	pointsByUser map[string]int64 // indexed points, needed to delete treap nodes

	ledger *dedupe.TTLLedger

	snapshot         atomic.Pointer[leaderboardSnapshot]
	snapshotInterval time.Duration
	topCacheSize     int
	ledgerRetention  time.Duration

	// writeHook runs after every successful write with the partition that
	// changed. The cache layer hangs its invalidation here.
	writeHook func(partition string)

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// NewMemStore constructs a store with configuration options and starts the
// periodic leaderboard snapshot goroutine.
func NewMemStore(ctx context.Context, opts ...Option) *MemStore {
	s := &MemStore{
		table:            make(map[string]map[string]Record),
		pointsByUser:     make(map[string]int64),
		snapshotInterval: defaultSnapshotInterval,
		topCacheSize:     defaultTopCacheSize,
	}

	for _, opt := range opts {
		opt(s)
	}

	ledgerOpts := []dedupe.Option{}
	if s.ledgerRetention > 0 {
		ledgerOpts = append(ledgerOpts, dedupe.WithRetention(s.ledgerRetention))
	}
	s.ledger = dedupe.NewTTLLedger(ledgerOpts...)

	s.stopCh = make(chan struct{})
	s.startPeriodicSnapshots(ctx)

	metrics.UpdateStoreRecordsTotal(0)
	metrics.UpdateTrackedUsers(0)

	return s
}

func (s *MemStore) startPeriodicSnapshots(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.snapshotInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.Refresh()
			}
		}
	}()
}

// Refresh rebuilds and publishes a leaderboard snapshot immediately. The
// periodic loop calls it on every tick; tests and operational tooling may
// call it to observe the latest metadata writes without waiting.
func (s *MemStore) Refresh() {
	start := time.Now()

	s.mu.RLock()
	entries := make([]LeaderboardEntry, 0, s.topCacheSize)
	lbCollectTop(s.root, s.topCacheSize, &entries)
	s.mu.RUnlock()

	lbAssignRanks(entries)
	s.snapshot.Store(&leaderboardSnapshot{entries: entries})

	ms := float64(time.Since(start).Milliseconds())
	metrics.RecordSnapshotRebuildDuration(ms)
	metrics.UpdateSnapshotLastUnix(float64(time.Now().Unix()))
	metrics.IncrementSnapshotCount()
}

// Close stops the snapshot goroutine and the ledger sweeper.
func (s *MemStore) Close() error {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	s.wg.Wait()
	return s.ledger.Close()
}

// Get implements Store.
func (s *MemStore) Get(ctx context.Context, partition, sort string) (Record, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.table[partition][sort]
	if !ok {
		return Record{}, fmt.Errorf("get %s/%s: %w", partition, sort, ErrNotFound)
	}
	return rec, nil
}

// ConditionalWrite implements Store.
func (s *MemStore) ConditionalWrite(ctx context.Context, partition, sortKey string, expectedVersion int64, mutate Mutator) (Record, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreWriteLatency(float64(time.Since(start).Milliseconds()))
	}()

	s.mu.Lock()
	rec, ok := s.table[partition][sortKey]
	if !ok {
		s.mu.Unlock()
		return Record{}, fmt.Errorf("conditional write %s/%s: %w", partition, sortKey, ErrNotFound)
	}
	if rec.Version != expectedVersion {
		s.mu.Unlock()
		metrics.RecordStoreConflict()
		metrics.RecordErrorByComponent("store", "conflict")
		return Record{}, fmt.Errorf("conditional write %s/%s: expected version %d, have %d: %w",
			partition, sortKey, expectedVersion, rec.Version, ErrConflict)
	}

	next := mutate(rec)
	next.Partition = partition
	next.Sort = sortKey
	next.Version = rec.Version + 1
	s.table[partition][sortKey] = next

	if sortKey == SortMetadata {
		s.reindexLocked(partition, next.TotalPoints)
	}
	s.mu.Unlock()

	s.afterWrite(partition)
	return next, nil
}

// CreateIfAbsent implements Store.
func (s *MemStore) CreateIfAbsent(ctx context.Context, partition, sortKey string, initial Record) (Record, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreWriteLatency(float64(time.Since(start).Milliseconds()))
	}()

	s.mu.Lock()
	if existing, ok := s.table[partition][sortKey]; ok {
		s.mu.Unlock()
		return existing, fmt.Errorf("create %s/%s: %w", partition, sortKey, ErrAlreadyExists)
	}

	initial.Partition = partition
	initial.Sort = sortKey
	initial.Version = 1
	if s.table[partition] == nil {
		s.table[partition] = make(map[string]Record)
	}
	s.table[partition][sortKey] = initial

	if sortKey == SortMetadata {
		s.reindexLocked(partition, initial.TotalPoints)
	}
	s.mu.Unlock()

	s.afterWrite(partition)
	return initial, nil
}

// QueryAll implements Store.
func (s *MemStore) QueryAll(ctx context.Context, partition string) ([]Record, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]Record, 0, len(s.table[partition]))
	for _, rec := range s.table[partition] {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Sort < records[j].Sort })
	return records, nil
}

// TopByPoints implements Store. It serves the last published snapshot; see
// Refresh for the consistency lag.
func (s *MemStore) TopByPoints(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	if limit < 1 {
		metrics.RecordErrorByComponent("store", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	snap := s.snapshot.Load()
	if snap == nil {
		s.Refresh()
		snap = s.snapshot.Load()
	}

	entries := snap.entries
	if limit < len(entries) {
		entries = entries[:limit]
	}
	out := make([]LeaderboardEntry, len(entries))
	copy(out, entries)
	return out, nil
}

// ResetStreak implements Store. The decay scheduler does not race handlers on
// versions; the reset always wins.
func (s *MemStore) ResetStreak(ctx context.Context, partition, habitID string) (Record, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreWriteLatency(float64(time.Since(start).Milliseconds()))
	}()

	sortKey := StreakSort(habitID)

	s.mu.Lock()
	rec, ok := s.table[partition][sortKey]
	if !ok {
		s.mu.Unlock()
		return Record{}, fmt.Errorf("reset streak %s/%s: %w", partition, sortKey, ErrNotFound)
	}
	rec.StreakLength = 0
	rec.Version++
	s.table[partition][sortKey] = rec
	s.mu.Unlock()

	s.afterWrite(partition)
	return rec, nil
}

// HasApplied implements Store.
func (s *MemStore) HasApplied(ctx context.Context, key string) bool {
	return s.ledger.HasApplied(ctx, key)
}

// MarkApplied implements Store.
func (s *MemStore) MarkApplied(ctx context.Context, key string) bool {
	return s.ledger.MarkApplied(ctx, key)
}

// Unmark implements Store.
func (s *MemStore) Unmark(ctx context.Context, key string) {
	s.ledger.Unmark(ctx, key)
}

// Count implements Store.
func (s *MemStore) Count(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, records := range s.table {
		total += len(records)
	}
	return total
}

// reindexLocked moves a user to their new position in the ordering index.
// Caller holds the write lock.
func (s *MemStore) reindexLocked(userID string, points int64) {
	if old, ok := s.pointsByUser[userID]; ok {
		s.root = lbDelete(s.root, userID, old)
	}
	s.pointsByUser[userID] = points
	s.root = lbInsert(s.root, userID, points)
}

// afterWrite fires the write hook and refreshes gauges outside the lock.
func (s *MemStore) afterWrite(partition string) {
	if s.writeHook != nil {
		s.writeHook(partition)
	}

	s.mu.RLock()
	records := 0
	for _, recs := range s.table {
		records += len(recs)
	}
	users := len(s.pointsByUser)
	s.mu.RUnlock()

	metrics.UpdateStoreRecordsTotal(records)
	metrics.UpdateTrackedUsers(users)
}
