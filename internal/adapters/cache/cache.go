// Package cache provides the read-through dashboard cache sitting beside the
// aggregate store.
//
// The cache is strictly derived and disposable: it can be dropped at any time
// with no data loss. Handlers invalidate a user's entry on every successful
// store write (via the store's write hook), so a dashboard read never observes
// state older than the last completed write for that user.
package cache

import (
	"context"

	"github.com/wojciechbednarz/habit-tracker/internal/domain/types"
)

// Cache stores assembled dashboards with a TTL.
type Cache interface {
	// Get returns the cached dashboard for a user and whether it was
	// present and unexpired.
	Get(ctx context.Context, userID string) (types.Dashboard, bool, error)

	// Set stores a dashboard under the implementation's TTL.
	Set(ctx context.Context, userID string, dashboard types.Dashboard) error

	// Invalidate drops a user's entry. Missing entries are not an error.
	Invalidate(ctx context.Context, userID string) error
}
