// Package repository implements the durable leaderboard: an ordered write
// buffer in memory, flushed in batches to an ordered key-value table in
// SQLite, with top-N reads, backups and restore-on-start.
package repository

import (
	"context"

	"github.com/okian/typerace/internal/domain/model"
)

// Store provides write and read access to the leaderboard.
type Store interface {
	// Buffer queues an accepted score for the next flush. It never touches
	// disk and returns ErrClosed after Close.
	Buffer(ctx context.Context, s model.ScoreSubmission) error

	// Flush moves every buffered score to disk in one transaction and
	// returns how many were written. On failure the scores go back into the
	// buffer and the error wraps ErrStorage.
	Flush(ctx context.Context) (int, error)

	// Query returns the top entries by total score. limit 0 means the
	// configured default; larger values are capped. Entries tied with the
	// last one returned are ordered by timestamp, then username. Buffered
	// scores are not visible until flushed.
	Query(ctx context.Context, limit int) ([]model.LeaderboardEntry, error)

	// Backup writes a standalone copy of the store and prunes old copies.
	// It returns the path of the new backup.
	Backup(ctx context.Context) (string, error)

	// Count is the number of persisted entries.
	Count(ctx context.Context) (int64, error)

	// Buffered is the number of scores waiting for a flush.
	Buffered() int

	// Close flushes what is left and releases the database.
	Close(ctx context.Context) error
}
