// Package service provides the game-session manager: it composes the live
// session table, the anti-cheat validator and the leaderboard store behind
// the operations the HTTP API calls, and owns the background jobs.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/okian/typerace/internal/adapters/jobs"
	"github.com/okian/typerace/internal/adapters/repository"
	"github.com/okian/typerace/internal/domain/integrity"
	"github.com/okian/typerace/internal/domain/phrases"
	"github.com/okian/typerace/internal/domain/scoring"
	"github.com/okian/typerace/internal/domain/session"
	"github.com/okian/typerace/pkg/logger"
	"github.com/okian/typerace/pkg/metrics"
)

var tracer = otel.Tracer("github.com/okian/typerace/internal/app")

// Service implements the API dependencies for the typing game.
type Service struct {
	mu sync.RWMutex

	// Core components
	sessions  session.Store
	store     repository.Store
	phrases   phrases.Provider
	signer    *integrity.Signer
	validator *scoring.Validator
	jobs      *jobs.Pool

	// Configuration
	phrasesPerSession int
	sessionShards     int
	sessionTimeout    time.Duration
	heartbeatWindow   time.Duration
	minDuration       time.Duration
	maxWPM            int
	sweepInterval     time.Duration
	flushInterval     time.Duration
	backupInterval    time.Duration

	now   func() time.Time
	newID func() string

	// State
	started   bool
	startedAt time.Time

	logger logger.Logger
}

// New constructs a Service around an opened leaderboard store, a phrase
// source and the signer shared with clients.
func New(store repository.Store, provider phrases.Provider, signer *integrity.Signer, opts ...Option) *Service {
	s := &Service{
		store:             store,
		phrases:           provider,
		signer:            signer,
		phrasesPerSession: 10,
		sessionShards:     8,
		sessionTimeout:    5 * time.Minute,
		heartbeatWindow:   15 * time.Second,
		minDuration:       2 * time.Second,
		maxWPM:            400,
		sweepInterval:     time.Minute,
		flushInterval:     500 * time.Millisecond,
		backupInterval:    24 * time.Hour,
		now:               time.Now,
		newID:             uuid.NewString,
		logger:            logger.Nop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.sessions == nil {
		s.sessions = session.NewShardedStore(session.WithShards(s.sessionShards))
	}
	s.validator = scoring.NewValidator(signer,
		scoring.WithHeartbeatWindow(s.heartbeatWindow),
		scoring.WithMinDuration(s.minDuration),
		scoring.WithMaxWPM(s.maxWPM),
	)
	return s
}

// Start launches the sweep, flush, backup and system-metrics jobs.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting game service...")

	jobLog := s.logger.Named("jobs")
	s.jobs = jobs.NewPool(s.logger,
		jobs.NewTicker("sweep", s.sweepInterval, func(ctx context.Context) error {
			s.Sweep(ctx)
			return nil
		}, jobs.WithLogger(jobLog)),
		jobs.NewTicker("flush", s.flushInterval, func(ctx context.Context) error {
			_, err := s.store.Flush(ctx)
			return err
		}, jobs.WithLogger(jobLog), jobs.WithRunOnStop()),
		jobs.NewTicker("backup", s.backupInterval, func(ctx context.Context) error {
			_, err := s.store.Backup(ctx)
			return err
		}, jobs.WithLogger(jobLog)),
		jobs.NewTicker("system_metrics", metrics.RefreshInterval(), func(context.Context) error {
			metrics.UpdateSystemMetrics()
			metrics.UpdateActiveSessions(int(s.sessions.Len()))
			return nil
		}, jobs.WithLogger(jobLog)),
	)
	// Jobs outlive the start request.
	s.jobs.Start(context.WithoutCancel(ctx))

	s.started = true
	s.startedAt = s.now()
	s.logger.Info(ctx, "game service started",
		logger.Int("jobs", s.jobs.Len()),
		logger.Duration("sessionTimeout", s.sessionTimeout),
		logger.Duration("flushInterval", s.flushInterval),
	)
	return nil
}

// Stop shuts the jobs down (the flush job drains the buffer one last time)
// and closes the leaderboard store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping game service...")

	var errs []error
	if err := s.jobs.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.store.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close leaderboard: %w", err))
	}

	s.started = false
	s.logger.Info(ctx, "game service stopped")
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// Stats returns service statistics for monitoring.
func (s *Service) Stats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := s.sessions.Len()
	stats := map[string]any{
		"started":           s.started,
		"activeSessions":    active,
		"bufferedScores":    s.store.Buffered(),
		"phrasesPerSession": s.phrasesPerSession,
		"sessionTimeoutMs":  s.sessionTimeout.Milliseconds(),
		"heartbeatWindowMs": s.heartbeatWindow.Milliseconds(),
		"minDurationMs":     s.minDuration.Milliseconds(),
		"maxWpm":            s.maxWPM,
	}
	if s.started {
		stats["uptimeSeconds"] = int64(s.now().Sub(s.startedAt).Seconds())
	}
	if n, err := s.store.Count(ctx); err == nil {
		stats["persistedScores"] = n
		metrics.UpdatePersistedEntries(n)
	} else {
		s.logger.Warn(ctx, "count persisted scores failed", logger.Error(err))
	}

	metrics.UpdateActiveSessions(int(active))
	return stats
}
