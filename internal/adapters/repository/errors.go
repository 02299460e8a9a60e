package repository

import "errors"

// Sentinel kinds for leaderboard store errors.
var (
	// ErrStorage wraps failures of the durable store. Flush failures carry it
	// and are retried on the next tick.
	ErrStorage = errors.New("leaderboard storage error")
	// ErrStartup is returned when the store cannot be restored or opened.
	ErrStartup = errors.New("leaderboard startup failed")
	// ErrInvalidLimit is returned for a negative top-N limit.
	ErrInvalidLimit = errors.New("invalid leaderboard limit")
	// ErrClosed is returned once Close has been called.
	ErrClosed = errors.New("leaderboard store closed")
)
