package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wojciechbednarz/habit-tracker/internal/adapters/store"
	"github.com/wojciechbednarz/habit-tracker/internal/domain/event"
	"github.com/wojciechbednarz/habit-tracker/internal/domain/milestone"
	"github.com/wojciechbednarz/habit-tracker/pkg/logger"
	"github.com/wojciechbednarz/habit-tracker/pkg/metrics"
)

// Streak consumes HabitCompleted events and maintains STREAK records.
//
// The producer computes the streak length before emitting the event; this
// handler validates it defensively instead of trusting it blindly. A reported
// length more than one increment ahead of the stored record is clamped to
// stored+1, and a length behind the stored record never regresses it:
// last-writer-wins by value, not by arrival time.
type Streak struct {
	store      store.Store
	milestones milestone.Thresholds
	maxRetries int
	logger     logger.Logger
	now        func() time.Time
}

// StreakOption applies a configuration option to the Streak handler.
type StreakOption func(*Streak)

// WithStreakMilestones sets the thresholds that unlock achievements.
func WithStreakMilestones(t milestone.Thresholds) StreakOption {
	return func(h *Streak) {
		if len(t) > 0 {
			h.milestones = t
		}
	}
}

// WithStreakMaxRetries bounds local conflict retries.
func WithStreakMaxRetries(n int) StreakOption {
	return func(h *Streak) {
		if n > 0 {
			h.maxRetries = n
		}
	}
}

// WithStreakLogger sets a custom logger.
func WithStreakLogger(l logger.Logger) StreakOption {
	return func(h *Streak) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithStreakClock overrides the time source for unlock timestamps.
func WithStreakClock(now func() time.Time) StreakOption {
	return func(h *Streak) {
		if now != nil {
			h.now = now
		}
	}
}

// NewStreak creates the streak handler.
func NewStreak(s store.Store, opts ...StreakOption) *Streak {
	h := &Streak{
		store:      s,
		milestones: milestone.Default(),
		maxRetries: defaultMaxRetries,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(h)
	}

	if h.logger == nil {
		h.logger = logger.Get().Named("streak")
	}

	return h
}

// Name implements dispatch.Handler.
func (h *Streak) Name() string { return "streak" }

// Handle implements dispatch.Handler.
func (h *Streak) Handle(ctx context.Context, ev event.Event) ([]event.Event, error) {
	completed, ok := ev.(event.HabitCompleted)
	if !ok {
		return nil, wrongEventError(h.Name(), ev)
	}

	key := streakLedgerKey(completed)
	if !h.store.MarkApplied(ctx, key) {
		metrics.RecordEventDuplicate()
		h.logger.Debug(ctx, "duplicate delivery suppressed",
			logger.String("dedupKey", completed.DedupKey()),
		)
		return nil, nil
	}

	followUps, err := h.apply(ctx, completed)
	if err != nil {
		// Release the mark so the redelivered event can try again.
		h.store.Unmark(ctx, key)
		return nil, err
	}
	return followUps, nil
}

// apply performs the read-mutate-conditionally-write cycle with bounded
// retries on version conflicts.
func (h *Streak) apply(ctx context.Context, ev event.HabitCompleted) ([]event.Event, error) {
	sortKey := store.StreakSort(ev.HabitID)

	for attempt := 0; attempt < h.maxRetries; attempt++ {
		current, err := h.store.Get(ctx, ev.UserID, sortKey)
		if errors.Is(err, store.ErrNotFound) {
			// First sight of this habit; with no stored record there is no
			// basis to clamp against, so the reported length stands.
			created, createErr := h.store.CreateIfAbsent(ctx, ev.UserID, sortKey, store.Record{
				StreakLength:    ev.StreakLength,
				LastCompletedAt: ev.CompletedAt,
			})
			if errors.Is(createErr, store.ErrAlreadyExists) {
				// Lost the create race; re-read and go through the
				// conditional path.
				metrics.RecordStoreConflictRetry()
				continue
			}
			if createErr != nil {
				return nil, fmt.Errorf("create streak record: %w", createErr)
			}
			return h.unlocks(ev.UserID, 0, created.StreakLength), nil
		}
		if err != nil {
			return nil, fmt.Errorf("read streak record: %w", err)
		}

		prev := current.StreakLength
		next := h.clamp(ctx, ev, prev)
		if next < prev {
			// Out-of-order delivery with an older length; the stored
			// streak wins and nothing new unlocks.
			h.logger.Debug(ctx, "stale streak length ignored",
				logger.String("habitID", ev.HabitID),
				logger.Int("reported", ev.StreakLength),
				logger.Int("stored", prev),
			)
			return nil, nil
		}

		_, err = h.store.ConditionalWrite(ctx, ev.UserID, sortKey, current.Version, func(r store.Record) store.Record {
			r.StreakLength = next
			if ev.CompletedAt.After(r.LastCompletedAt) {
				r.LastCompletedAt = ev.CompletedAt
			}
			return r
		})
		if errors.Is(err, store.ErrConflict) {
			metrics.RecordStoreConflictRetry()
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("write streak record: %w", err)
		}
		return h.unlocks(ev.UserID, prev, next), nil
	}

	return nil, fmt.Errorf("streak %s/%s: %w", ev.UserID, ev.HabitID, ErrRetriesExhausted)
}

// clamp validates the producer-reported length against the stored one. The
// producer owns streak computation, but a report more than one increment
// ahead of the store is re-derived as stored+1. A record at zero still
// clamps: a reset streak restarts at one, whatever the producer claims.
func (h *Streak) clamp(ctx context.Context, ev event.HabitCompleted, stored int) int {
	if ev.StreakLength > stored+1 {
		h.logger.Warn(ctx, "reported streak ahead of stored value; clamping",
			logger.String("habitID", ev.HabitID),
			logger.Int("reported", ev.StreakLength),
			logger.Int("stored", stored),
		)
		return stored + 1
	}
	return ev.StreakLength
}

// unlocks returns one AchievementUnlocked follow-up per threshold newly
// crossed between prev and next.
func (h *Streak) unlocks(userID string, prev, next int) []event.Event {
	crossed := h.milestones.Crossed(prev, next)
	if len(crossed) == 0 {
		return nil
	}

	followUps := make([]event.Event, 0, len(crossed))
	for _, threshold := range crossed {
		followUps = append(followUps, event.AchievementUnlocked{
			EventID:         uuid.NewString(),
			UserID:          userID,
			AchievementType: milestone.Type(threshold),
			Description:     milestone.Description(threshold),
			UnlockedAt:      h.now(),
		})
	}
	return followUps
}
