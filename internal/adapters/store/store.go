// Package store defines the single-table aggregate store behind the
// gamification pipeline.
//
// Records live under a composite (partition, sort) key: the partition is the
// user id and the sort key discriminates the record kind. Every record carries
// a version used for optimistic concurrency; handlers never lock, they read,
// mutate, and conditionally write.
package store

import (
	"context"
	"strings"
	"time"
)

// Sort key constants and builders, mirroring the one-table key scheme.
const (
	// SortMetadata is the per-user metadata record: display name, mail
	// address, and the running total of points.
	SortMetadata = "METADATA"

	sortStreakPrefix      = "STREAK#"
	sortAchievementPrefix = "ACHIEVEMENT#"
)

// StreakSort returns the sort key of a habit's streak record.
func StreakSort(habitID string) string { return sortStreakPrefix + habitID }

// AchievementSort returns the sort key of an unlocked achievement record.
func AchievementSort(achievementType string) string {
	return sortAchievementPrefix + achievementType
}

// IsStreakSort reports whether a sort key names a streak record.
func IsStreakSort(sort string) bool { return strings.HasPrefix(sort, sortStreakPrefix) }

// StreakHabit extracts the habit id from a streak sort key.
func StreakHabit(sort string) string { return strings.TrimPrefix(sort, sortStreakPrefix) }

// IsAchievementSort reports whether a sort key names an achievement record.
func IsAchievementSort(sort string) bool { return strings.HasPrefix(sort, sortAchievementPrefix) }

// Record is the unit of persistence. Which fields are meaningful depends on
// the sort key; unused fields stay zero.
type Record struct {
	Partition string
	Sort      string
	Version   int64

	// METADATA fields.
	TotalPoints int64
	DisplayName string
	Email       string

	// STREAK#<habit> fields.
	StreakLength    int
	LastCompletedAt time.Time

	// ACHIEVEMENT#<type> fields. Achievement records are append-only.
	AchievementType string
	Description     string
	UnlockedAt      time.Time
}

// LeaderboardEntry is one row of the points leaderboard projection.
type LeaderboardEntry struct {
	Rank        int
	UserID      string
	TotalPoints int64
}

// Mutator transforms the current record value into the next one. It must be
// pure: the store may call it again on a retried write.
type Mutator func(Record) Record

// Store provides read/write access to aggregate records, the leaderboard
// projection, and the idempotency ledger.
type Store interface {
	// Get returns the record at (partition, sort) or ErrNotFound.
	Get(ctx context.Context, partition, sort string) (Record, error)

	// ConditionalWrite applies mutate to the stored record only if its
	// version equals expectedVersion, bumping the version on success.
	// Returns ErrConflict when the version moved, ErrNotFound when no
	// record exists.
	ConditionalWrite(ctx context.Context, partition, sort string, expectedVersion int64, mutate Mutator) (Record, error)

	// CreateIfAbsent stores initial at (partition, sort) only if nothing is
	// there yet; otherwise it returns the existing record wrapped in
	// ErrAlreadyExists. Callers treat ErrAlreadyExists as an idempotent
	// success, not a failure.
	CreateIfAbsent(ctx context.Context, partition, sort string, initial Record) (Record, error)

	// QueryAll returns every record of a partition ordered by sort key,
	// for dashboard assembly in a single logical read.
	QueryAll(ctx context.Context, partition string) ([]Record, error)

	// TopByPoints serves the leaderboard from the derived ordering index.
	// The projection is eventually consistent: it lags the latest metadata
	// write by up to the snapshot interval.
	TopByPoints(ctx context.Context, limit int) ([]LeaderboardEntry, error)

	// ResetStreak unconditionally zeroes a habit's streak, for the external
	// decay scheduler. Distinct from the conditional increment path.
	ResetStreak(ctx context.Context, partition, habitID string) (Record, error)

	// Idempotency ledger. MarkApplied atomically records a deduplication
	// key and reports whether it was fresh; Unmark releases a mark whose
	// guarded write failed.
	HasApplied(ctx context.Context, key string) bool
	MarkApplied(ctx context.Context, key string) bool
	Unmark(ctx context.Context, key string)

	// Count returns the number of records across all partitions.
	Count(ctx context.Context) int
}
