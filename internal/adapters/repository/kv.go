package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/okian/typerace/internal/adapters/repository/migrations"
)

// dbFileName is the database file inside the data directory.
const dbFileName = "leaderboard.db"

// kvStore is an ordered string -> bytes map in one SQLite table. SQLite's
// default BINARY collation orders TEXT keys bytewise, which is what the
// score key encoding relies on.
type kvStore struct {
	db *sql.DB
}

type kvPair struct {
	key   string
	value []byte
}

func openKV(ctx context.Context, path string) (*kvStore, error) {
	dsn := filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &kvStore{db: db}, nil
}

// writeBatch upserts pairs in one transaction and returns how many keys
// were new.
func (k *kvStore) writeBatch(ctx context.Context, pairs []kvPair) (int, error) {
	tx, err := k.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	ins, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO kv (key, value) VALUES (?, ?)")
	if err != nil {
		return 0, err
	}
	defer ins.Close()
	upd, err := tx.PrepareContext(ctx, "UPDATE kv SET value = ? WHERE key = ?")
	if err != nil {
		return 0, err
	}
	defer upd.Close()

	added := 0
	for _, p := range pairs {
		res, err := ins.ExecContext(ctx, p.key, p.value)
		if err != nil {
			return 0, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
			continue
		}
		if _, err := upd.ExecContext(ctx, p.value, p.key); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return added, nil
}

// reverseScan visits keys in [lo, hi) from highest to lowest until fn
// returns false.
func (k *kvStore) reverseScan(ctx context.Context, lo, hi string, fn func(key string, value []byte) (bool, error)) error {
	rows, err := k.db.QueryContext(ctx,
		"SELECT key, value FROM kv WHERE key >= ? AND key < ? ORDER BY key DESC", lo, hi)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key   string
			value []byte
		)
		if err := rows.Scan(&key, &value); err != nil {
			return err
		}
		more, err := fn(key, value)
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return rows.Err()
}

func (k *kvStore) count(ctx context.Context, lo, hi string) (int64, error) {
	var n int64
	err := k.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM kv WHERE key >= ? AND key < ?", lo, hi).Scan(&n)
	return n, err
}

// vacuumInto writes a consistent standalone copy of the database to path.
// path must not exist.
func (k *kvStore) vacuumInto(ctx context.Context, path string) error {
	_, err := k.db.ExecContext(ctx, "VACUUM INTO ?", path)
	return err
}

func (k *kvStore) close() error {
	return k.db.Close()
}

// errorKind labels a SQLite failure for metrics.
func errorKind(err error) string {
	var se *msqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
			return "busy"
		case sqlite3lib.SQLITE_FULL:
			return "disk_full"
		case sqlite3lib.SQLITE_IOERR:
			return "io"
		case sqlite3lib.SQLITE_CORRUPT, sqlite3lib.SQLITE_NOTADB:
			return "corrupt"
		}
		return "sqlite"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "other"
}
