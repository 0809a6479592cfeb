package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/wojciechbednarz/habit-tracker/internal/adapters/mail"
	"github.com/wojciechbednarz/habit-tracker/internal/adapters/store"
	"github.com/wojciechbednarz/habit-tracker/internal/domain/event"
	"github.com/wojciechbednarz/habit-tracker/pkg/logger"
	"github.com/wojciechbednarz/habit-tracker/pkg/metrics"
)

// Notification consumes AchievementUnlocked events: it records the
// achievement under its ACHIEVEMENT# sort key and congratulates the user by
// mail. The record write is the idempotency guard here, not the ledger:
// achievement records are append-only and keyed by type, so a redelivered
// unlock collides with the existing record and sends no second mail.
type Notification struct {
	store  store.Store
	mailer mail.Mailer
	logger logger.Logger
}

// NotificationOption applies a configuration option to the Notification
// handler.
type NotificationOption func(*Notification)

// WithNotificationLogger sets a custom logger.
func WithNotificationLogger(l logger.Logger) NotificationOption {
	return func(h *Notification) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewNotification creates the notification handler.
func NewNotification(s store.Store, m mail.Mailer, opts ...NotificationOption) *Notification {
	h := &Notification{
		store:  s,
		mailer: m,
	}

	for _, opt := range opts {
		opt(h)
	}

	if h.logger == nil {
		h.logger = logger.Get().Named("notification")
	}

	return h
}

// Name implements dispatch.Handler.
func (h *Notification) Name() string { return "notification" }

// Handle implements dispatch.Handler.
func (h *Notification) Handle(ctx context.Context, ev event.Event) ([]event.Event, error) {
	unlocked, ok := ev.(event.AchievementUnlocked)
	if !ok {
		return nil, wrongEventError(h.Name(), ev)
	}

	_, err := h.store.CreateIfAbsent(ctx, unlocked.UserID, store.AchievementSort(unlocked.AchievementType), store.Record{
		AchievementType: unlocked.AchievementType,
		Description:     unlocked.Description,
		UnlockedAt:      unlocked.UnlockedAt,
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		// Already unlocked on an earlier delivery; the user was notified
		// back then.
		metrics.RecordEventDuplicate()
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create achievement record: %w", err)
	}

	metrics.RecordAchievementUnlocked()
	h.logger.Info(ctx, "achievement unlocked",
		logger.String("userID", unlocked.UserID),
		logger.String("type", unlocked.AchievementType),
	)

	h.notify(ctx, unlocked)
	return nil, nil
}

// notify sends the congratulation mail. Delivery is best effort: the
// achievement record already exists, so a mail failure is logged and counted
// but never fails the event.
func (h *Notification) notify(ctx context.Context, unlocked event.AchievementUnlocked) {
	meta, err := h.store.Get(ctx, unlocked.UserID, store.SortMetadata)
	if err != nil || meta.Email == "" {
		h.logger.Warn(ctx, "no mail address on file; skipping congratulation",
			logger.String("userID", unlocked.UserID),
		)
		return
	}

	name := meta.DisplayName
	if name == "" {
		name = unlocked.UserID
	}

	subject := fmt.Sprintf("Congratulations on your %s!", unlocked.Description)
	body := fmt.Sprintf("Hi %s,\n\nYou just earned the %q achievement. Keep the streak going!\n", name, unlocked.Description)

	metrics.RecordMailAttempt()
	if err := h.mailer.Send(ctx, meta.Email, subject, body); err != nil {
		metrics.RecordMailFailure()
		h.logger.Error(ctx, "congratulation mail failed",
			logger.String("userID", unlocked.UserID),
			logger.Error(err),
		)
	}
}
