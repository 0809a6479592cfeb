package logger

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

func TestInitAndGet(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}
	if Named("pipeline") == nil {
		t.Fatal("named logger is nil")
	}
}

func TestFieldsAndLevels(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	ctx := context.Background()
	l := Get().Named("test")

	l.Info(ctx, "info message",
		String("user", "u1"),
		Int("streak", 7),
		Int64("points", 120),
		Float64("multiplier", 2.0),
		Duration("elapsed", time.Millisecond),
		Time("at", time.Now()),
		Any("payload", map[string]int{"a": 1}),
		Error(errors.New("boom")),
	)
	l.Debug(ctx, "debug message")
	l.Warn(ctx, "warn message")
	l.Error(ctx, "error message")
}

func TestSetLevelString(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	for _, lvl := range []string{"debug", "info", "warn", "warning", "error", ""} {
		if err := SetLevelString(lvl); err != nil {
			t.Errorf("SetLevelString(%q) returned error: %v", lvl, err)
		}
	}
	if err := SetLevelString("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}

	SetLevel(slog.LevelInfo)
}
