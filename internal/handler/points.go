package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/wojciechbednarz/habit-tracker/internal/adapters/store"
	"github.com/wojciechbednarz/habit-tracker/internal/domain/event"
	"github.com/wojciechbednarz/habit-tracker/internal/domain/scoring"
	"github.com/wojciechbednarz/habit-tracker/pkg/logger"
	"github.com/wojciechbednarz/habit-tracker/pkg/metrics"
)

// Points consumes HabitCompleted events and increments the user's running
// point total on the METADATA record. The award is computed once from the
// event and applied as a fixed delta, so conflict retries re-apply the same
// amount rather than recomputing against mutated state.
type Points struct {
	store      store.Store
	policy     scoring.Policy
	maxRetries int
	logger     logger.Logger
}

// PointsOption applies a configuration option to the Points handler.
type PointsOption func(*Points)

// WithPointsPolicy sets the scoring policy.
func WithPointsPolicy(p scoring.Policy) PointsOption {
	return func(h *Points) {
		if p != nil {
			h.policy = p
		}
	}
}

// WithPointsMaxRetries bounds local conflict retries.
func WithPointsMaxRetries(n int) PointsOption {
	return func(h *Points) {
		if n > 0 {
			h.maxRetries = n
		}
	}
}

// WithPointsLogger sets a custom logger.
func WithPointsLogger(l logger.Logger) PointsOption {
	return func(h *Points) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewPoints creates the points handler.
func NewPoints(s store.Store, opts ...PointsOption) *Points {
	h := &Points{
		store:      s,
		policy:     scoring.NewTieredPolicy(),
		maxRetries: defaultMaxRetries,
	}

	for _, opt := range opts {
		opt(h)
	}

	if h.logger == nil {
		h.logger = logger.Get().Named("points")
	}

	return h
}

// Name implements dispatch.Handler.
func (h *Points) Name() string { return "points" }

// Handle implements dispatch.Handler.
func (h *Points) Handle(ctx context.Context, ev event.Event) ([]event.Event, error) {
	completed, ok := ev.(event.HabitCompleted)
	if !ok {
		return nil, wrongEventError(h.Name(), ev)
	}

	key := pointsLedgerKey(completed)
	if !h.store.MarkApplied(ctx, key) {
		metrics.RecordEventDuplicate()
		h.logger.Debug(ctx, "duplicate delivery suppressed",
			logger.String("dedupKey", completed.DedupKey()),
		)
		return nil, nil
	}

	delta := int64(h.policy.Points(completed.StreakLength))
	if err := h.award(ctx, completed.UserID, delta); err != nil {
		h.store.Unmark(ctx, key)
		return nil, err
	}

	metrics.RecordPointsAwarded(float64(delta))
	h.logger.Debug(ctx, "points awarded",
		logger.String("userID", completed.UserID),
		logger.Int64("points", delta),
	)
	return nil, nil
}

// award adds delta to the user's total, creating the METADATA record on
// first sight of the user.
func (h *Points) award(ctx context.Context, userID string, delta int64) error {
	for attempt := 0; attempt < h.maxRetries; attempt++ {
		current, err := h.store.Get(ctx, userID, store.SortMetadata)
		if errors.Is(err, store.ErrNotFound) {
			_, createErr := h.store.CreateIfAbsent(ctx, userID, store.SortMetadata, store.Record{
				TotalPoints: delta,
			})
			if errors.Is(createErr, store.ErrAlreadyExists) {
				metrics.RecordStoreConflictRetry()
				continue
			}
			if createErr != nil {
				return fmt.Errorf("create metadata record: %w", createErr)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("read metadata record: %w", err)
		}

		_, err = h.store.ConditionalWrite(ctx, userID, store.SortMetadata, current.Version, func(r store.Record) store.Record {
			r.TotalPoints += delta
			return r
		})
		if errors.Is(err, store.ErrConflict) {
			metrics.RecordStoreConflictRetry()
			continue
		}
		if err != nil {
			return fmt.Errorf("write metadata record: %w", err)
		}
		return nil
	}

	return fmt.Errorf("points %s: %w", userID, ErrRetriesExhausted)
}
