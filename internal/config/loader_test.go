package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wojciechbednarz/habit-tracker/internal/config"

	. "github.com/smartystreets/goconvey/convey"
)

var configEnvVars = []string{
	"HABIT_CONFIG",
	"HABIT_LOG_LEVEL",
	"HABIT_ADDR",
	"HABIT_QUEUE_SIZE",
	"HABIT_WORKER_COUNT",
	"HABIT_MAX_DELIVERY_ATTEMPTS",
	"HABIT_CACHE_TTL",
	"HABIT_SNAPSHOT_INTERVAL",
	"HABIT_BASE_POINTS",
	"HABIT_REDIS_ADDR",
}

func clearConfigEnvVars() {
	for _, v := range configEnvVars {
		_ = os.Unsetenv(v)
	}
}

func TestConfigLoader(t *testing.T) {
	Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		Reset(clearConfigEnvVars)

		Convey("When loading with defaults only", func() {
			cfg, err := config.Load(ctx)

			Convey("Then it loads sensible defaults", func() {
				So(err, ShouldBeNil)
				So(cfg.LogLevel, ShouldEqual, "info")
				So(cfg.Addr, ShouldEqual, ":9090")
				So(cfg.QueueSize, ShouldEqual, 100_000)
				So(cfg.MaxDeliveryAttempts, ShouldEqual, 5)
				So(cfg.LedgerRetention, ShouldEqual, 24*time.Hour)
				So(cfg.CacheTTL, ShouldEqual, 5*time.Minute)
				So(cfg.SnapshotInterval, ShouldEqual, time.Second)
				So(cfg.BasePoints, ShouldEqual, 10)
				So(cfg.Milestones, ShouldResemble, []int{7, 30, 100})
				So(cfg.RedisAddr, ShouldBeEmpty)
			})
		})

		Convey("When environment variables are set", func() {
			_ = os.Setenv("HABIT_ADDR", ":8081")
			_ = os.Setenv("HABIT_QUEUE_SIZE", "5000")
			_ = os.Setenv("HABIT_WORKER_COUNT", "8")
			_ = os.Setenv("HABIT_CACHE_TTL", "30s")
			_ = os.Setenv("HABIT_REDIS_ADDR", "localhost:6379")

			cfg, err := config.Load(ctx)

			Convey("Then they override the defaults", func() {
				So(err, ShouldBeNil)
				So(cfg.Addr, ShouldEqual, ":8081")
				So(cfg.QueueSize, ShouldEqual, 5000)
				So(cfg.WorkerCount, ShouldEqual, 8)
				So(cfg.CacheTTL, ShouldEqual, 30*time.Second)
				So(cfg.RedisAddr, ShouldEqual, "localhost:6379")
				// Untouched keys keep their defaults.
				So(cfg.BasePoints, ShouldEqual, 10)
			})
		})

		Convey("When a YAML file is provided", func() {
			path := filepath.Join(t.TempDir(), "habit.yaml")
			yamlContent := []byte(`
addr: ":7070"
queue_size: 2000
snapshot_interval: 250ms
milestones: [3, 14]
`)
			So(os.WriteFile(path, yamlContent, 0o600), ShouldBeNil)
			_ = os.Setenv("HABIT_CONFIG", path)

			cfg, err := config.Load(ctx)

			Convey("Then file values layer over the defaults", func() {
				So(err, ShouldBeNil)
				So(cfg.Addr, ShouldEqual, ":7070")
				So(cfg.QueueSize, ShouldEqual, 2000)
				So(cfg.SnapshotInterval, ShouldEqual, 250*time.Millisecond)
				So(cfg.Milestones, ShouldResemble, []int{3, 14})
			})

			Convey("And env vars take precedence over the file", func() {
				_ = os.Setenv("HABIT_ADDR", ":6060")

				cfg, err := config.Load(ctx)
				So(err, ShouldBeNil)
				So(cfg.Addr, ShouldEqual, ":6060")
				So(cfg.QueueSize, ShouldEqual, 2000)
			})
		})

		Convey("When the config file is missing", func() {
			_ = os.Setenv("HABIT_CONFIG", "/nonexistent/habit.yaml")

			_, err := config.Load(ctx)

			Convey("Then loading fails with a load error", func() {
				So(err, ShouldWrap, config.ErrLoadConfig)
			})
		})

		Convey("When a value fails validation", func() {
			_ = os.Setenv("HABIT_QUEUE_SIZE", "0")

			_, err := config.Load(ctx)

			Convey("Then loading fails with a validation error", func() {
				So(err, ShouldWrap, config.ErrInvalidConfig)
			})
		})
	})
}
