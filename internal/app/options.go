package service

import (
	"time"

	"github.com/okian/typerace/internal/domain/session"
	"github.com/okian/typerace/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSessionStore replaces the default sharded session table.
func WithSessionStore(store session.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.sessions = store
		}
	}
}

// WithSessionShards sets the shard count of the default session table.
func WithSessionShards(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.sessionShards = n
		}
	}
}

// WithPhrasesPerSession sets how many phrases a new game receives.
func WithPhrasesPerSession(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.phrasesPerSession = n
		}
	}
}

// WithSessionTimeout sets how long a session may go without a heartbeat
// before the sweeper removes it.
func WithSessionTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.sessionTimeout = d
		}
	}
}

// WithHeartbeatWindow sets the maximum heartbeat age accepted at submit.
func WithHeartbeatWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.heartbeatWindow = d
		}
	}
}

// WithMinDuration sets the shortest plausible game.
func WithMinDuration(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.minDuration = d
		}
	}
}

// WithMaxWPM sets the fastest plausible typing speed.
func WithMaxWPM(wpm int) Option {
	return func(s *Service) {
		if wpm > 0 {
			s.maxWPM = wpm
		}
	}
}

// WithIntervals sets the periods of the sweep, flush and backup jobs.
// Non-positive values keep the defaults.
func WithIntervals(sweep, flush, backup time.Duration) Option {
	return func(s *Service) {
		if sweep > 0 {
			s.sweepInterval = sweep
		}
		if flush > 0 {
			s.flushInterval = flush
		}
		if backup > 0 {
			s.backupInterval = backup
		}
	}
}

// WithClock overrides time.Now. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides session id generation. Intended for tests.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}
