// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults, Load(ctx) to layer
//   file and environment overrides on top.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"runtime"
	"time"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address of the metrics endpoint,
	// e.g. ":9090".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory event queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of event workers.
	WorkerCount int `koanf:"worker_count"`

	// MaxDeliveryAttempts bounds redeliveries before dead-lettering.
	MaxDeliveryAttempts int `koanf:"max_delivery_attempts"`

	// LedgerRetention is how long applied deduplication keys are kept.
	LedgerRetention time.Duration `koanf:"ledger_retention"`

	// CacheTTL bounds dashboard cache staleness.
	CacheTTL time.Duration `koanf:"cache_ttl"`

	// SnapshotInterval is the rebuild period of the leaderboard
	// projection, i.e. its maximum staleness.
	SnapshotInterval time.Duration `koanf:"snapshot_interval"`

	// LeaderboardSize caps how many top entries the projection keeps.
	LeaderboardSize int `koanf:"leaderboard_size"`

	// HandlerTimeout bounds one handler invocation on one event.
	HandlerTimeout time.Duration `koanf:"handler_timeout"`

	// BasePoints is the per-completion award before multipliers.
	BasePoints int `koanf:"base_points"`

	// Milestones are the streak lengths that unlock achievements and
	// raise the point multiplier.
	Milestones []int `koanf:"milestones"`

	// RedisAddr, when set, backs the dashboard cache with Redis instead
	// of process memory.
	RedisAddr string `koanf:"redis_addr"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		Addr:                ":9090",
		QueueSize:           100_000,
		WorkerCount:         runtime.NumCPU() * 4,
		MaxDeliveryAttempts: 5,
		LedgerRetention:     24 * time.Hour,
		CacheTTL:            5 * time.Minute,
		SnapshotInterval:    time.Second,
		LeaderboardSize:     500,
		HandlerTimeout:      5 * time.Second,
		BasePoints:          10,
		Milestones:          []int{7, 30, 100},
	}
}
