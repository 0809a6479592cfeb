package cache

import (
	"context"
	"sync"
	"time"

	"github.com/wojciechbednarz/habit-tracker/internal/domain/types"
	"github.com/wojciechbednarz/habit-tracker/pkg/metrics"
)

// defaultTTL bounds how long a dashboard can be served without recomputation
// even when no write invalidates it.
const defaultTTL = 5 * time.Minute

type memoryEntry struct {
	dashboard types.Dashboard
	expiresAt time.Time
}

// Memory is an in-process Cache for tests and single-process deployments.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// MemoryOption applies a configuration option to the Memory cache.
type MemoryOption func(*Memory)

// WithTTL sets the entry time-to-live.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithClock overrides the time source, used by tests to expire entries
// without sleeping.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemory creates an in-memory cache with configuration options.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string]memoryEntry),
		ttl:     defaultTTL,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Get implements Cache.
func (m *Memory) Get(_ context.Context, userID string) (types.Dashboard, bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[userID]
	m.mu.RUnlock()

	if !ok || m.now().After(entry.expiresAt) {
		metrics.RecordCacheMiss()
		return types.Dashboard{}, false, nil
	}
	metrics.RecordCacheHit()
	return entry.dashboard, true, nil
}

// Set implements Cache.
func (m *Memory) Set(_ context.Context, userID string, dashboard types.Dashboard) error {
	m.mu.Lock()
	m.entries[userID] = memoryEntry{
		dashboard: dashboard,
		expiresAt: m.now().Add(m.ttl),
	}
	m.mu.Unlock()
	return nil
}

// Invalidate implements Cache.
func (m *Memory) Invalidate(_ context.Context, userID string) error {
	m.mu.Lock()
	delete(m.entries, userID)
	m.mu.Unlock()

	metrics.RecordCacheInvalidation()
	return nil
}
