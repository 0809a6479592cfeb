// Package metrics provides Prometheus metrics for the habit gamification
// pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager owns all Prometheus collectors for the pipeline.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	registry         prometheus.Registerer

	// Event pipeline metrics.
	eventsProcessed    prometheus.Counter
	eventsDuplicate    prometheus.Counter
	eventsRedelivered  prometheus.Counter
	eventsDeadLettered prometheus.Counter
	handlerFailures    *prometheus.CounterVec
	handlerLatency     *prometheus.HistogramVec

	// Aggregate store metrics.
	storeConflicts      prometheus.Counter
	storeConflictRetry  prometheus.Counter
	storeWriteLatency   prometheus.Histogram
	storeQueryLatency   prometheus.Histogram
	storeRecordsTotal   prometheus.Gauge
	trackedUsers        prometheus.Gauge
	snapshotRebuildTime prometheus.Histogram
	snapshotLastUnix    prometheus.Gauge
	snapshotCount       prometheus.Counter

	// Gamification outcome metrics.
	pointsAwarded        prometheus.Counter
	achievementsUnlocked prometheus.Counter

	// Cache metrics.
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
	cacheInvalidations prometheus.Counter

	// Queue and worker metrics.
	queueDepth      prometheus.Gauge
	queueCapacity   prometheus.Gauge
	deadLetterDepth prometheus.Gauge
	workerCount     prometheus.Gauge
	workerErrors    prometheus.Counter

	// Mail collaborator metrics.
	mailAttempts prometheus.Counter
	mailFailures prometheus.Counter

	// Error tracking by component.
	errorsByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "habit",
		subsystem:        "gamification",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus collectors.
func (m *Manager) initializeMetrics() { //nolint:funlen // one collector per metric, nothing to split
	auto := promauto.With(m.registry)

	m.eventsProcessed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_processed_total",
		Help:      "Total number of events fully processed and acknowledged",
	})

	m.eventsDuplicate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_duplicate_total",
		Help:      "Total number of redelivered events suppressed by the idempotency ledger",
	})

	m.eventsRedelivered = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_redelivered_total",
		Help:      "Total number of events re-enqueued after a failed delivery",
	})

	m.eventsDeadLettered = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_dead_lettered_total",
		Help:      "Total number of events moved to the dead-letter destination",
	})

	m.handlerFailures = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "handler_failures_total",
			Help:      "Total number of handler invocation failures by handler",
		},
		[]string{"handler"},
	)

	m.handlerLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "handler_latency_milliseconds",
			Help:      "Handler invocation latency in milliseconds by handler",
			Buckets:   m.histogramBuckets,
		},
		[]string{"handler"},
	)

	m.storeConflicts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_conflicts_total",
		Help:      "Total number of optimistic-concurrency conflicts on conditional writes",
	})

	m.storeConflictRetry = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_conflict_retries_total",
		Help:      "Total number of local retries after a conditional write conflict",
	})

	m.storeWriteLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_write_latency_milliseconds",
		Help:      "Aggregate store write latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.storeQueryLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_query_latency_milliseconds",
		Help:      "Aggregate store query latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.storeRecordsTotal = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_records_total",
		Help:      "Total number of aggregate records in the store",
	})

	m.trackedUsers = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "tracked_users",
		Help:      "Number of users with a metadata record (leaderboard population)",
	})

	m.snapshotRebuildTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "leaderboard_snapshot_rebuild_duration_milliseconds",
		Help:      "Leaderboard snapshot rebuild duration in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.snapshotLastUnix = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "leaderboard_snapshot_last_unix",
		Help:      "Unix timestamp of the last leaderboard snapshot publish",
	})

	m.snapshotCount = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "leaderboard_snapshot_count_total",
		Help:      "Total number of leaderboard snapshots published",
	})

	m.pointsAwarded = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "points_awarded_total",
		Help:      "Total points awarded across all users",
	})

	m.achievementsUnlocked = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "achievements_unlocked_total",
		Help:      "Total number of achievement records created",
	})

	m.cacheHits = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_hits_total",
		Help:      "Total number of dashboard cache hits",
	})

	m.cacheMisses = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_misses_total",
		Help:      "Total number of dashboard cache misses",
	})

	m.cacheInvalidations = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_invalidations_total",
		Help:      "Total number of dashboard cache invalidations triggered by writes",
	})

	m.queueDepth = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_depth",
		Help:      "Current number of deliveries waiting in the event queue",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_capacity",
		Help:      "Maximum event queue capacity",
	})

	m.deadLetterDepth = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "dead_letter_depth",
		Help:      "Current number of deliveries parked in the dead-letter destination",
	})

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_count",
		Help:      "Number of active pipeline workers",
	})

	m.workerErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_errors_total",
		Help:      "Total number of worker processing errors",
	})

	m.mailAttempts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "mail_attempts_total",
		Help:      "Total number of congratulation mail send attempts",
	})

	m.mailFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "mail_failures_total",
		Help:      "Total number of failed mail send attempts (best-effort, non-fatal)",
	})

	m.errorsByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_component_total",
			Help:      "Total number of errors by component and kind",
		},
		[]string{"component", "kind"},
	)
}

// Event pipeline functions.

// RecordEventProcessed increments the processed events counter.
func RecordEventProcessed() {
	globalManager.eventsProcessed.Inc()
}

// RecordEventDuplicate increments the suppressed duplicates counter.
func RecordEventDuplicate() {
	globalManager.eventsDuplicate.Inc()
}

// RecordEventRedelivered increments the redelivery counter.
func RecordEventRedelivered() {
	globalManager.eventsRedelivered.Inc()
}

// RecordEventDeadLettered increments the dead-letter counter.
func RecordEventDeadLettered() {
	globalManager.eventsDeadLettered.Inc()
}

// RecordHandlerFailure increments the failure counter for a handler.
func RecordHandlerFailure(handler string) {
	globalManager.handlerFailures.WithLabelValues(handler).Inc()
}

// RecordHandlerLatency records a handler invocation latency.
func RecordHandlerLatency(handler string, latencyMs float64) {
	globalManager.handlerLatency.WithLabelValues(handler).Observe(latencyMs)
}

// Aggregate store functions.

// RecordStoreConflict increments the conditional write conflict counter.
func RecordStoreConflict() {
	globalManager.storeConflicts.Inc()
}

// RecordStoreConflictRetry increments the conflict retry counter.
func RecordStoreConflictRetry() {
	globalManager.storeConflictRetry.Inc()
}

// RecordStoreWriteLatency records a store write latency.
func RecordStoreWriteLatency(latencyMs float64) {
	globalManager.storeWriteLatency.Observe(latencyMs)
}

// RecordStoreQueryLatency records a store query latency.
func RecordStoreQueryLatency(latencyMs float64) {
	globalManager.storeQueryLatency.Observe(latencyMs)
}

// UpdateStoreRecordsTotal sets the total record count gauge.
func UpdateStoreRecordsTotal(count int) {
	globalManager.storeRecordsTotal.Set(float64(count))
}

// UpdateTrackedUsers sets the tracked users gauge.
func UpdateTrackedUsers(count int) {
	globalManager.trackedUsers.Set(float64(count))
}

// RecordSnapshotRebuildDuration records a leaderboard snapshot rebuild duration.
func RecordSnapshotRebuildDuration(ms float64) {
	globalManager.snapshotRebuildTime.Observe(ms)
}

// UpdateSnapshotLastUnix sets the last snapshot publish timestamp.
func UpdateSnapshotLastUnix(unix float64) {
	globalManager.snapshotLastUnix.Set(unix)
}

// IncrementSnapshotCount increments the snapshot publish counter.
func IncrementSnapshotCount() {
	globalManager.snapshotCount.Inc()
}

// Gamification outcome functions.

// RecordPointsAwarded adds to the awarded points counter.
func RecordPointsAwarded(points float64) {
	globalManager.pointsAwarded.Add(points)
}

// RecordAchievementUnlocked increments the achievements counter.
func RecordAchievementUnlocked() {
	globalManager.achievementsUnlocked.Inc()
}

// Cache functions.

// RecordCacheHit increments the cache hit counter.
func RecordCacheHit() {
	globalManager.cacheHits.Inc()
}

// RecordCacheMiss increments the cache miss counter.
func RecordCacheMiss() {
	globalManager.cacheMisses.Inc()
}

// RecordCacheInvalidation increments the cache invalidation counter.
func RecordCacheInvalidation() {
	globalManager.cacheInvalidations.Inc()
}

// Queue and worker functions.

// UpdateQueueDepth sets the queue depth gauge.
func UpdateQueueDepth(depth int) {
	globalManager.queueDepth.Set(float64(depth))
}

// UpdateQueueCapacity sets the queue capacity gauge.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateDeadLetterDepth sets the dead-letter depth gauge.
func UpdateDeadLetterDepth(depth int) {
	globalManager.deadLetterDepth.Set(float64(depth))
}

// UpdateWorkerCount sets the worker count gauge.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// Mail functions.

// RecordMailAttempt increments the mail attempt counter.
func RecordMailAttempt() {
	globalManager.mailAttempts.Inc()
}

// RecordMailFailure increments the mail failure counter.
func RecordMailFailure() {
	globalManager.mailFailures.Inc()
}

// RecordErrorByComponent increments the error counter for a component/kind pair.
func RecordErrorByComponent(component, kind string) {
	globalManager.errorsByComponent.WithLabelValues(component, kind).Inc()
}

// GetRegistry returns the custom registry for exposing via promhttp.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
