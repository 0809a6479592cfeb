// Package event defines the typed events flowing through the gamification
// pipeline and their wire codec.
//
// Events are immutable values. Every event carries a deduplication key that is
// stable per real-world business action; the idempotency ledger uses it to
// suppress the effects of at-least-once redelivery.
package event

import (
	"fmt"
	"time"
)

// Kind identifies an event type for dispatch routing.
type Kind string

// Known event kinds.
const (
	KindHabitCompleted      Kind = "habit.completed"
	KindAchievementUnlocked Kind = "achievement.unlocked"
)

// Event is implemented by all pipeline events.
type Event interface {
	// EventKind returns the routing kind.
	EventKind() Kind
	// DedupKey returns the stable deduplication key for this business action.
	DedupKey() string
	// User returns the identifier of the user the event belongs to.
	User() string
}

// HabitCompleted is emitted by the completion endpoint after it has persisted
// the raw completion row and computed the current streak length.
type HabitCompleted struct {
	EventID      string
	UserID       string
	HabitID      string
	StreakLength int
	CompletedAt  time.Time
}

// EventKind implements Event.
func (e HabitCompleted) EventKind() Kind { return KindHabitCompleted }

// DedupKey returns the producer-supplied event ID, or a key derived from the
// completion identity when the producer did not supply one.
func (e HabitCompleted) DedupKey() string {
	if e.EventID != "" {
		return e.EventID
	}
	return fmt.Sprintf("%s|%s|%d", e.UserID, e.HabitID, e.CompletedAt.Unix())
}

// User implements Event.
func (e HabitCompleted) User() string { return e.UserID }

// AchievementUnlocked is a follow-up event produced by the streak handler when
// a streak crosses a configured milestone threshold.
type AchievementUnlocked struct {
	EventID         string
	UserID          string
	AchievementType string // e.g. "streak:7"
	Description     string // e.g. "1 Week Streak"
	UnlockedAt      time.Time
}

// EventKind implements Event.
func (e AchievementUnlocked) EventKind() Kind { return KindAchievementUnlocked }

// DedupKey derives from the user and achievement type: an achievement of a
// given type unlocks at most once per user.
func (e AchievementUnlocked) DedupKey() string {
	return fmt.Sprintf("%s|%s", e.UserID, e.AchievementType)
}

// User implements Event.
func (e AchievementUnlocked) User() string { return e.UserID }
