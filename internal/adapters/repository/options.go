package repository

import (
	"time"

	"github.com/okian/typerace/pkg/logger"
)

// Option applies a configuration option to the Leaderboard.
type Option func(*Leaderboard)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Leaderboard) {
		if l != nil {
			s.log = l
		}
	}
}

// WithBackupDir sets where backups are written and restored from.
func WithBackupDir(dir string) Option {
	return func(s *Leaderboard) {
		s.backupDir = dir
	}
}

// WithBackupRetain sets how many backups are kept.
func WithBackupRetain(n int) Option {
	return func(s *Leaderboard) {
		if n > 0 {
			s.backupRetain = n
		}
	}
}

// WithDefaultLimit sets the limit used when a query asks for 0 entries.
func WithDefaultLimit(n int) Option {
	return func(s *Leaderboard) {
		if n > 0 {
			s.defaultLimit = n
		}
	}
}

// WithMaxLimit caps query limits.
func WithMaxLimit(n int) Option {
	return func(s *Leaderboard) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithClock replaces time.Now. Used for backup names.
func WithClock(now func() time.Time) Option {
	return func(s *Leaderboard) {
		if now != nil {
			s.now = now
		}
	}
}
