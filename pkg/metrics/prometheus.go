// Package metrics provides Prometheus metrics for the typerace service.
package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval    = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

// Manager manages all Prometheus metrics for the typerace service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	refreshInterval  time.Duration
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Game sessions
	sessionsCreated   prometheus.Counter
	sessionsExpired   prometheus.Counter
	sessionsFinalized prometheus.Counter
	sessionsActive    prometheus.Gauge
	heartbeats        *prometheus.CounterVec

	// Submissions
	submissions   *prometheus.CounterVec
	submitLatency prometheus.Histogram
	acceptedWPM   prometheus.Histogram

	// Leaderboard store
	bufferSize        prometheus.Gauge
	flushBatchSize    prometheus.Histogram
	flushDuration     prometheus.Histogram
	flushErrors       prometheus.Counter
	flushedEntries    prometheus.Counter
	persistedEntries  prometheus.Gauge
	queryLatency      prometheus.Histogram
	backups           *prometheus.CounterVec
	backupDuration    prometheus.Histogram
	backupLastUnix    prometheus.Gauge
	restoresPerformed prometheus.Counter

	// Background jobs
	jobRuns    *prometheus.CounterVec
	jobLatency *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	rateLimited         *prometheus.CounterVec
	liveConnections     prometheus.Gauge

	errorRateByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "typerace",
		subsystem:        "game",
		histogramBuckets: prometheus.DefBuckets,
		refreshInterval:  defaultRefreshInterval,
		constLabels:      make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.sessionsCreated = m.counter("sessions_created_total", "Total number of game sessions created")
	m.sessionsExpired = m.counter("sessions_expired_total", "Total number of sessions removed by the sweeper")
	m.sessionsFinalized = m.counter("sessions_finalized_total", "Total number of sessions finalized by a valid submission")
	m.sessionsActive = m.gauge("sessions_active", "Current number of live sessions")
	m.heartbeats = m.counterVec("heartbeats_total", "Heartbeats by result", "result")

	m.submissions = m.counterVec("submissions_total", "Score submissions by outcome and rejection reason", "outcome", "reason")
	m.submitLatency = m.histogram("submit_latency_milliseconds", "Submit pipeline latency in milliseconds", m.histogramBuckets)
	m.acceptedWPM = m.histogram("accepted_wpm", "Distribution of accepted words-per-minute values",
		[]float64{10, 20, 40, 60, 80, 100, 130, 160, 200, 300, 400})

	m.bufferSize = m.gauge("leaderboard_buffer_size", "Scores waiting in the write buffer")
	m.flushBatchSize = m.histogram("leaderboard_flush_batch_size", "Entries written per flush",
		[]float64{1, 5, 10, 50, 100, 500, 1000, 5000})
	m.flushDuration = m.histogram("leaderboard_flush_duration_milliseconds", "Flush duration in milliseconds", m.histogramBuckets)
	m.flushErrors = m.counter("leaderboard_flush_errors_total", "Failed flush attempts")
	m.flushedEntries = m.counter("leaderboard_flushed_entries_total", "Entries persisted by the flusher")
	m.persistedEntries = m.gauge("leaderboard_persisted_entries", "Entries in the durable store")
	m.queryLatency = m.histogram("leaderboard_query_latency_milliseconds", "Top-N query latency in milliseconds", m.histogramBuckets)
	m.backups = m.counterVec("leaderboard_backups_total", "Backup attempts by result", "result")
	m.backupDuration = m.histogram("leaderboard_backup_duration_milliseconds", "Backup duration in milliseconds",
		[]float64{1, 10, 50, 100, 500, 1000, 5000, 30000})
	m.backupLastUnix = m.gauge("leaderboard_backup_last_unix", "Unix timestamp of the last successful backup")
	m.restoresPerformed = m.counter("leaderboard_restores_total", "Restores from backup performed at startup")

	m.jobRuns = m.counterVec("job_runs_total", "Background job runs by job and result", "job", "result")
	m.jobLatency = m.histogramVec("job_latency_milliseconds", "Background job run latency in milliseconds", "job")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds",
		"endpoint", "method", "status_code")
	m.rateLimited = m.counterVec("http_rate_limited_total", "Requests rejected by the rate limiter", "endpoint")
	m.liveConnections = m.gauge("live_connections", "Open live heartbeat websocket connections")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Total number of errors by component",
		"component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RefreshInterval is how often gauges sampled from the runtime should be refreshed.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}

// RecordSessionCreated increments the created sessions counter.
func RecordSessionCreated() { globalManager.sessionsCreated.Inc() }

// RecordSessionsExpired adds n sweeper removals.
func RecordSessionsExpired(n int) { globalManager.sessionsExpired.Add(float64(n)) }

// RecordSessionFinalized increments the finalized sessions counter.
func RecordSessionFinalized() { globalManager.sessionsFinalized.Inc() }

// UpdateActiveSessions sets the live session gauge.
func UpdateActiveSessions(n int) { globalManager.sessionsActive.Set(float64(n)) }

// RecordHeartbeat counts a heartbeat with result "ok" or "not_found".
func RecordHeartbeat(result string) { globalManager.heartbeats.WithLabelValues(result).Inc() }

// RecordSubmission counts a submission. reason is empty for accepted scores.
func RecordSubmission(outcome, reason string) {
	globalManager.submissions.WithLabelValues(outcome, reason).Inc()
}

// RecordSubmitLatency records submit pipeline latency in milliseconds.
func RecordSubmitLatency(latencyMs float64) { globalManager.submitLatency.Observe(latencyMs) }

// RecordAcceptedWPM records the wpm of an accepted score.
func RecordAcceptedWPM(wpm int) { globalManager.acceptedWPM.Observe(float64(wpm)) }

// UpdateBufferSize sets the write buffer gauge.
func UpdateBufferSize(n int) { globalManager.bufferSize.Set(float64(n)) }

// RecordFlush records a successful flush of n entries.
func RecordFlush(n int, durationMs float64) {
	globalManager.flushBatchSize.Observe(float64(n))
	globalManager.flushDuration.Observe(durationMs)
	globalManager.flushedEntries.Add(float64(n))
}

// RecordFlushError increments the flush error counter.
func RecordFlushError() { globalManager.flushErrors.Inc() }

// UpdatePersistedEntries sets the persisted entries gauge.
func UpdatePersistedEntries(n int64) { globalManager.persistedEntries.Set(float64(n)) }

// RecordLeaderboardQueryLatency records top-N query latency in milliseconds.
func RecordLeaderboardQueryLatency(latencyMs float64) { globalManager.queryLatency.Observe(latencyMs) }

// RecordBackup records a backup attempt.
func RecordBackup(success bool, durationMs float64) {
	if !success {
		globalManager.backups.WithLabelValues("failure").Inc()
		return
	}
	globalManager.backups.WithLabelValues("success").Inc()
	globalManager.backupDuration.Observe(durationMs)
	globalManager.backupLastUnix.Set(float64(time.Now().Unix()))
}

// RecordRestore increments the restore counter.
func RecordRestore() { globalManager.restoresPerformed.Inc() }

// RecordJobRun records one run of a background job.
func RecordJobRun(job string, err error, latencyMs float64) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	globalManager.jobRuns.WithLabelValues(job, result).Inc()
	globalManager.jobLatency.WithLabelValues(job).Observe(latencyMs)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordRateLimited counts a request rejected by the limiter.
func RecordRateLimited(endpoint string) { globalManager.rateLimited.WithLabelValues(endpoint).Inc() }

// UpdateLiveConnections adjusts the open websocket gauge by delta.
func UpdateLiveConnections(delta int) { globalManager.liveConnections.Add(float64(delta)) }

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMetrics samples the Go runtime into the system gauges.
func UpdateSystemMetrics() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	globalManager.systemMemoryUsage.Set(float64(ms.Alloc))
	globalManager.systemGoroutineCount.Set(float64(runtime.NumGoroutine()))
	if ms.NumGC > 0 {
		globalManager.systemGCPauseTime.Observe(float64(ms.PauseTotalNs) / float64(ms.NumGC) / nanosecondsPerMillisecond)
	}
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
