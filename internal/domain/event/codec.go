package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope is the JSON wire format carried by the at-least-once transport.
// One envelope shape covers all kinds; kind-specific fields are optional.
type Envelope struct {
	Kind            Kind      `json:"kind"`
	EventID         string    `json:"event_id,omitempty"`
	UserID          string    `json:"user_id"`
	HabitID         string    `json:"habit_id,omitempty"`
	StreakLength    int       `json:"streak_length,omitempty"`
	CompletedAt     time.Time `json:"completed_at,omitempty"`
	AchievementType string    `json:"achievement_type,omitempty"`
	Description     string    `json:"description,omitempty"`
	UnlockedAt      time.Time `json:"unlocked_at,omitempty"`
}

// Encode serializes an event into its wire envelope.
func Encode(e Event) ([]byte, error) {
	var env Envelope
	switch ev := e.(type) {
	case HabitCompleted:
		env = Envelope{
			Kind:         KindHabitCompleted,
			EventID:      ev.EventID,
			UserID:       ev.UserID,
			HabitID:      ev.HabitID,
			StreakLength: ev.StreakLength,
			CompletedAt:  ev.CompletedAt,
		}
	case AchievementUnlocked:
		env = Envelope{
			Kind:            KindAchievementUnlocked,
			EventID:         ev.EventID,
			UserID:          ev.UserID,
			AchievementType: ev.AchievementType,
			Description:     ev.Description,
			UnlockedAt:      ev.UnlockedAt,
		}
	default:
		return nil, fmt.Errorf("%w: unsupported event type %T", ErrMalformedEvent, e)
	}
	return json.Marshal(env)
}

// Decode parses a wire envelope back into a typed event. A payload that
// cannot be parsed or validated is a permanent failure: the transport routes
// it to the dead-letter destination without retrying.
func Decode(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	switch env.Kind {
	case KindHabitCompleted:
		ev := HabitCompleted{
			EventID:      env.EventID,
			UserID:       env.UserID,
			HabitID:      env.HabitID,
			StreakLength: env.StreakLength,
			CompletedAt:  env.CompletedAt,
		}
		if err := validateHabitCompleted(ev); err != nil {
			return nil, err
		}
		return ev, nil
	case KindAchievementUnlocked:
		ev := AchievementUnlocked{
			EventID:         env.EventID,
			UserID:          env.UserID,
			AchievementType: env.AchievementType,
			Description:     env.Description,
			UnlockedAt:      env.UnlockedAt,
		}
		if err := validateAchievementUnlocked(ev); err != nil {
			return nil, err
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformedEvent, env.Kind)
	}
}

func validateHabitCompleted(e HabitCompleted) error {
	if e.UserID == "" {
		return fmt.Errorf("%w: missing user_id", ErrMalformedEvent)
	}
	if e.HabitID == "" {
		return fmt.Errorf("%w: missing habit_id", ErrMalformedEvent)
	}
	if e.StreakLength < 0 {
		return fmt.Errorf("%w: negative streak_length %d", ErrMalformedEvent, e.StreakLength)
	}
	if e.CompletedAt.IsZero() {
		return fmt.Errorf("%w: missing completed_at", ErrMalformedEvent)
	}
	return nil
}

func validateAchievementUnlocked(e AchievementUnlocked) error {
	if e.UserID == "" {
		return fmt.Errorf("%w: missing user_id", ErrMalformedEvent)
	}
	if e.AchievementType == "" {
		return fmt.Errorf("%w: missing achievement_type", ErrMalformedEvent)
	}
	return nil
}
