// Package types contains the read models served to dashboard and leaderboard
// consumers.
package types

import "time"

// Dashboard is a user's aggregate state assembled in one logical read:
// metadata, every streak, and every unlocked achievement.
type Dashboard struct {
	UserID       string        `json:"user_id"`
	DisplayName  string        `json:"display_name,omitempty"`
	TotalPoints  int64         `json:"total_points"`
	Streaks      []Streak      `json:"streaks"`
	Achievements []Achievement `json:"achievements"`
	GeneratedAt  time.Time     `json:"generated_at"`
}

// Streak is the per-habit streak view.
type Streak struct {
	HabitID         string    `json:"habit_id"`
	Length          int       `json:"length"`
	LastCompletedAt time.Time `json:"last_completed_at"`
}

// Achievement is an unlocked milestone view.
type Achievement struct {
	Type        string    `json:"type"`
	Description string    `json:"description"`
	UnlockedAt  time.Time `json:"unlocked_at"`
}

// LeaderboardEntry is one ranked leaderboard row. The leaderboard is
// eventually consistent with metadata writes; see the store documentation for
// the staleness bound.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"user_id"`
	TotalPoints int64  `json:"total_points"`
}
