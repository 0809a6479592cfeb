// Package app wires the gamification pipeline together: queue, workers,
// dispatcher, handlers, aggregate store, and dashboard cache.
package app

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wojciechbednarz/habit-tracker/internal/adapters/cache"
	"github.com/wojciechbednarz/habit-tracker/internal/adapters/mail"
	eventqueue "github.com/wojciechbednarz/habit-tracker/internal/adapters/mq/queue"
	workerpool "github.com/wojciechbednarz/habit-tracker/internal/adapters/mq/worker"
	"github.com/wojciechbednarz/habit-tracker/internal/adapters/store"
	"github.com/wojciechbednarz/habit-tracker/internal/dispatch"
	"github.com/wojciechbednarz/habit-tracker/internal/domain/event"
	"github.com/wojciechbednarz/habit-tracker/internal/domain/milestone"
	"github.com/wojciechbednarz/habit-tracker/internal/domain/scoring"
	"github.com/wojciechbednarz/habit-tracker/internal/domain/types"
	"github.com/wojciechbednarz/habit-tracker/internal/handler"
	"github.com/wojciechbednarz/habit-tracker/pkg/logger"
	"github.com/wojciechbednarz/habit-tracker/pkg/metrics"
)

// Stats is a point-in-time operational snapshot of the pipeline.
type Stats struct {
	QueueDepth  int `json:"queue_depth"`
	DeadLetters int `json:"dead_letters"`
	Records     int `json:"records"`
}

// Service owns the pipeline components and exposes the ingestion and read
// surfaces.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      *store.MemStore
	cache      cache.Cache
	queue      *eventqueue.InMemoryQueue
	dispatcher *dispatch.Dispatcher
	pool       *workerpool.Pool
	mailer     mail.Mailer

	// Configuration
	workerCount      int
	queueSize        int
	maxAttempts      int
	ledgerRetention  time.Duration
	cacheTTL         time.Duration
	snapshotInterval time.Duration
	handlerTimeout   time.Duration
	leaderboardSize  int
	basePoints       int
	milestones       []int
	redisAddr        string

	// Per-user invalidation epochs. A dashboard assembly captures the
	// epoch before reading the store and must not be cached once the
	// epoch has moved: the write that bumped it may postdate the read.
	invalMu     sync.Mutex
	invalEpochs map[string]uint64

	// State
	started bool
	cancel  context.CancelFunc

	logger logger.Logger
	now    func() time.Time
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the event queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithMaxDeliveryAttempts bounds redeliveries before dead-lettering.
func WithMaxDeliveryAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithLedgerRetention sets how long applied deduplication keys are kept.
func WithLedgerRetention(retention time.Duration) Option {
	return func(s *Service) {
		if retention > 0 {
			s.ledgerRetention = retention
		}
	}
}

// WithCacheTTL bounds dashboard cache staleness.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithSnapshotInterval sets the leaderboard projection rebuild period.
func WithSnapshotInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.snapshotInterval = interval
		}
	}
}

// WithHandlerTimeout bounds one handler invocation on one event.
func WithHandlerTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.handlerTimeout = timeout
		}
	}
}

// WithLeaderboardSize caps how many top entries the projection keeps.
func WithLeaderboardSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.leaderboardSize = size
		}
	}
}

// WithBasePoints sets the per-completion award before multipliers.
func WithBasePoints(points int) Option {
	return func(s *Service) {
		if points > 0 {
			s.basePoints = points
		}
	}
}

// WithMilestones sets the streak lengths that unlock achievements.
func WithMilestones(milestones []int) Option {
	return func(s *Service) {
		if len(milestones) > 0 {
			s.milestones = milestones
		}
	}
}

// WithRedisCache backs the dashboard cache with Redis at addr instead of
// process memory.
func WithRedisCache(addr string) Option {
	return func(s *Service) {
		s.redisAddr = addr
	}
}

// WithCache sets the dashboard cache backend directly, overriding the
// memory/redis selection.
func WithCache(c cache.Cache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithMailer sets the mailer used for achievement notifications.
func WithMailer(m mail.Mailer) Option {
	return func(s *Service) {
		if m != nil {
			s.mailer = m
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:      runtime.NumCPU() * 4,
		queueSize:        100_000,
		maxAttempts:      5,
		ledgerRetention:  24 * time.Hour,
		cacheTTL:         5 * time.Minute,
		snapshotInterval: time.Second,
		handlerTimeout:   5 * time.Second,
		leaderboardSize:  500,
		basePoints:       10,
		milestones:       milestone.Default(),
		invalEpochs:      make(map[string]uint64),
		now:              time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the pipeline components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("app")
	}
	if s.mailer == nil {
		s.mailer = mail.NewLogMailer(logger.Get().Named("mail"))
	}

	s.logger.Info(ctx, "starting gamification service...")

	// Background components outlive the Start call; they stop on Stop.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	if s.cache == nil {
		if s.redisAddr != "" {
			client := redis.NewUniversalClient(&redis.UniversalOptions{
				Addrs: []string{s.redisAddr},
			})
			s.cache = cache.NewRedis(client, cache.WithRedisTTL(s.cacheTTL))
			s.logger.Info(ctx, "using redis dashboard cache", logger.String("addr", s.redisAddr))
		} else {
			s.cache = cache.NewMemory(cache.WithTTL(s.cacheTTL))
			s.logger.Info(ctx, "using in-memory dashboard cache")
		}
	}

	// Every successful write bumps the owner's invalidation epoch, then
	// invalidates the cached dashboard. The bump must precede the delete:
	// an in-flight assembly that already read older state checks the epoch
	// before keeping its cache entry.
	dashCache := s.cache
	s.store = store.NewMemStore(runCtx,
		store.WithSnapshotInterval(s.snapshotInterval),
		store.WithTopCacheSize(s.leaderboardSize),
		store.WithLedgerRetention(s.ledgerRetention),
		store.WithWriteHook(func(partition string) {
			s.bumpEpoch(partition)
			if err := dashCache.Invalidate(context.WithoutCancel(runCtx), partition); err != nil {
				s.logger.Warn(runCtx, "cache invalidation failed",
					logger.String("userID", partition),
					logger.Error(err),
				)
			}
		}),
	)

	s.dispatcher = dispatch.New(dispatch.WithHandlerTimeout(s.handlerTimeout))
	s.dispatcher.Register(event.KindHabitCompleted, handler.NewStreak(s.store,
		handler.WithStreakMilestones(milestone.New(s.milestones)),
	))
	s.dispatcher.Register(event.KindHabitCompleted, handler.NewPoints(s.store,
		handler.WithPointsPolicy(scoring.NewTieredPolicy(scoring.WithBasePoints(s.basePoints))),
	))
	s.dispatcher.Register(event.KindAchievementUnlocked, handler.NewNotification(s.store, s.mailer))

	s.queue = eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(s.queueSize),
		eventqueue.WithMaxAttempts(s.maxAttempts),
	)

	s.pool = workerpool.NewPool(s.workerCount, s.queue, s.dispatcher)
	s.pool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "gamification service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("maxDeliveryAttempts", s.maxAttempts),
	)

	return nil
}

// Stop gracefully shuts down the service: the queue closes first, workers
// drain, then the store stops its background goroutines.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping gamification service...")

	if s.pool != nil {
		if err := s.pool.Shutdown(ctx); err != nil {
			s.logger.Error(ctx, "worker pool shutdown failed", logger.Error(err))
		}
	}
	if s.store != nil {
		_ = s.store.Close()
	}
	if s.cancel != nil {
		s.cancel()
	}

	s.started = false
	s.logger.Info(ctx, "gamification service stopped")
}

// Submit encodes a habit completion and enqueues it for asynchronous
// processing. Acceptance means the event will eventually be applied at least
// once, not that it has been applied yet.
func (s *Service) Submit(ctx context.Context, completion event.HabitCompleted) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return ErrNotStarted
	}

	body, err := event.Encode(completion)
	if err != nil {
		return fmt.Errorf("encode completion: %w", err)
	}

	if !s.queue.Enqueue(ctx, body) {
		return ErrQueueFull
	}

	s.logger.Debug(ctx, "completion accepted",
		logger.String("dedupKey", completion.DedupKey()),
		logger.String("userID", completion.UserID),
		logger.String("habitID", completion.HabitID),
	)
	return nil
}

// RegisterUser writes the user's profile metadata. Registration is an
// upsert: re-registering updates the display name and mail address without
// touching the point total.
func (s *Service) RegisterUser(ctx context.Context, userID, displayName, email string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return ErrNotStarted
	}

	for {
		current, err := s.store.Get(ctx, userID, store.SortMetadata)
		if errors.Is(err, store.ErrNotFound) {
			_, createErr := s.store.CreateIfAbsent(ctx, userID, store.SortMetadata, store.Record{
				DisplayName: displayName,
				Email:       email,
			})
			if errors.Is(createErr, store.ErrAlreadyExists) {
				continue
			}
			if createErr != nil {
				return fmt.Errorf("create profile: %w", createErr)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("read profile: %w", err)
		}

		_, err = s.store.ConditionalWrite(ctx, userID, store.SortMetadata, current.Version, func(r store.Record) store.Record {
			r.DisplayName = displayName
			r.Email = email
			return r
		})
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("update profile: %w", err)
		}
		return nil
	}
}

// Dashboard assembles a user's aggregate view, read through the cache.
func (s *Service) Dashboard(ctx context.Context, userID string) (types.Dashboard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return types.Dashboard{}, ErrNotStarted
	}

	if cached, ok, err := s.cache.Get(ctx, userID); err == nil && ok {
		return cached, nil
	} else if err != nil {
		// A broken cache degrades reads to the store, it never fails them.
		s.logger.Warn(ctx, "cache read failed", logger.Error(err))
	}

	// Capture the invalidation epoch before reading the store. A write that
	// completes after this point bumps it, and the assembly below must not
	// stay cached past that write's invalidation.
	before := s.epoch(userID)

	records, err := s.store.QueryAll(ctx, userID)
	if err != nil {
		return types.Dashboard{}, fmt.Errorf("query user records: %w", err)
	}
	if len(records) == 0 {
		return types.Dashboard{}, fmt.Errorf("user %s: %w", userID, store.ErrNotFound)
	}

	dash := assembleDashboard(userID, records, s.now())

	if s.epoch(userID) != before {
		// A write landed since the store read; the caller still gets the
		// state it read, but caching it would outlive the invalidation.
		return dash, nil
	}
	if err := s.cache.Set(ctx, userID, dash); err != nil {
		s.logger.Warn(ctx, "cache write failed", logger.Error(err))
	}
	if s.epoch(userID) != before {
		// The write's invalidation may have raced the Set above and missed
		// the entry; drop it rather than serve it until the TTL.
		if err := s.cache.Invalidate(ctx, userID); err != nil {
			s.logger.Warn(ctx, "cache invalidation failed", logger.Error(err))
		}
	}
	return dash, nil
}

// epoch returns the user's current invalidation epoch.
func (s *Service) epoch(userID string) uint64 {
	s.invalMu.Lock()
	defer s.invalMu.Unlock()
	return s.invalEpochs[userID]
}

// bumpEpoch marks every dashboard assembled from earlier store state as
// uncacheable for this user.
func (s *Service) bumpEpoch(userID string) {
	s.invalMu.Lock()
	defer s.invalMu.Unlock()
	s.invalEpochs[userID]++
}

// assembleDashboard folds a partition's records into the read model.
func assembleDashboard(userID string, records []store.Record, generatedAt time.Time) types.Dashboard {
	dash := types.Dashboard{
		UserID:      userID,
		GeneratedAt: generatedAt,
	}

	for _, r := range records {
		switch {
		case r.Sort == store.SortMetadata:
			dash.DisplayName = r.DisplayName
			dash.TotalPoints = r.TotalPoints
		case store.IsStreakSort(r.Sort):
			dash.Streaks = append(dash.Streaks, types.Streak{
				HabitID:         store.StreakHabit(r.Sort),
				Length:          r.StreakLength,
				LastCompletedAt: r.LastCompletedAt,
			})
		case store.IsAchievementSort(r.Sort):
			dash.Achievements = append(dash.Achievements, types.Achievement{
				Type:        r.AchievementType,
				Description: r.Description,
				UnlockedAt:  r.UnlockedAt,
			})
		}
	}
	return dash
}

// Leaderboard returns the top users by points. The ranking lags writes by up
// to the snapshot interval.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]types.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return nil, ErrNotStarted
	}

	entries, err := s.store.TopByPoints(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}

	out := make([]types.LeaderboardEntry, len(entries))
	for i, e := range entries {
		out[i] = types.LeaderboardEntry{
			Rank:        e.Rank,
			UserID:      e.UserID,
			TotalPoints: e.TotalPoints,
		}
	}
	return out, nil
}

// RefreshLeaderboard forces an immediate projection rebuild instead of
// waiting for the next periodic snapshot.
func (s *Service) RefreshLeaderboard() {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.started {
		s.store.Refresh()
	}
}

// ResetStreak zeroes a habit's streak. This is the decay path driven by an
// external scheduler when a habit misses its period; it bypasses the
// monotonic increment rules.
func (s *Service) ResetStreak(ctx context.Context, userID, habitID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return ErrNotStarted
	}

	if _, err := s.store.ResetStreak(ctx, userID, habitID); err != nil {
		return fmt.Errorf("reset streak %s/%s: %w", userID, habitID, err)
	}

	s.logger.Info(ctx, "streak reset",
		logger.String("userID", userID),
		logger.String("habitID", habitID),
	)
	return nil
}

// Stats reports a point-in-time operational snapshot.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return Stats{}, ErrNotStarted
	}

	records := s.store.Count(ctx)
	metrics.UpdateStoreRecordsTotal(records)

	return Stats{
		QueueDepth:  s.queue.Len(ctx),
		DeadLetters: len(s.queue.DeadLetters(ctx)),
		Records:     records,
	}, nil
}
