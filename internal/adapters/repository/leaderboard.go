package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/typerace/internal/domain/model"
	"github.com/okian/typerace/pkg/logger"
	"github.com/okian/typerace/pkg/metrics"
)

const (
	defaultQueryLimit   = 10
	defaultMaxLimit     = 100
	defaultBackupRetain = 7
)

var tracer = otel.Tracer("github.com/okian/typerace/internal/adapters/repository")

// Leaderboard is the SQLite-backed Store.
type Leaderboard struct {
	dataDir      string
	backupDir    string
	backupRetain int
	defaultLimit int
	maxLimit     int
	now          func() time.Time
	log          logger.Logger

	kv  *kvStore
	buf writeBuffer

	// flushMu keeps a single writer: the flush job and Close never overlap.
	flushMu   sync.Mutex
	// closeMu orders Buffer against Close: Buffer adds under the read lock,
	// Close flips closed under the write lock, so every accepted score is in
	// the buffer before the final flush drains it.
	closeMu   sync.RWMutex
	persisted atomic.Int64
	closed    atomic.Bool
}

var _ Store = (*Leaderboard)(nil)

// Open restores dataDir from the newest backup if it is missing, then opens
// (or creates) the database inside it. Every failure wraps ErrStartup.
func Open(ctx context.Context, dataDir string, opts ...Option) (*Leaderboard, error) {
	s := &Leaderboard{
		dataDir:      dataDir,
		backupRetain: defaultBackupRetain,
		defaultLimit: defaultQueryLimit,
		maxLimit:     defaultMaxLimit,
		now:          time.Now,
		log:          logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.defaultLimit > s.maxLimit {
		s.defaultLimit = s.maxLimit
	}

	if s.backupDir != "" {
		if _, err := Restore(ctx, dataDir, s.backupDir, s.log); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(dataDir, dirPerm); err != nil {
		return nil, fmt.Errorf("%w: create data dir: %w", ErrStartup, err)
	}

	kv, err := openKV(ctx, filepath.Join(dataDir, dbFileName))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStartup, err)
	}
	n, err := kv.count(ctx, scorePrefix, scoreUpper)
	if err != nil {
		_ = kv.close()
		return nil, fmt.Errorf("%w: count entries: %w", ErrStartup, err)
	}
	s.kv = kv
	s.persisted.Store(n)
	metrics.UpdatePersistedEntries(n)
	metrics.UpdateBufferSize(0)

	s.log.Info(ctx, "leaderboard store opened",
		logger.String("path", filepath.Join(dataDir, dbFileName)),
		logger.Int64("entries", n))
	return s, nil
}

// Buffer implements Store.Buffer.
func (s *Leaderboard) Buffer(_ context.Context, sub model.ScoreSubmission) error {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed.Load() {
		return ErrClosed
	}
	metrics.UpdateBufferSize(s.buf.Add(model.NewLeaderboardEntry(sub)))
	return nil
}

// Buffered implements Store.Buffered.
func (s *Leaderboard) Buffered() int {
	return s.buf.Len()
}

// Flush implements Store.Flush.
func (s *Leaderboard) Flush(ctx context.Context) (int, error) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	return s.flushLocked(ctx)
}

func (s *Leaderboard) flushLocked(ctx context.Context) (int, error) {
	items := s.buf.Drain()
	if len(items) == 0 {
		return 0, nil
	}

	ctx, span := tracer.Start(ctx, "leaderboard.flush", trace.WithAttributes(attribute.Int("batch", len(items))))
	defer span.End()
	start := time.Now()

	pairs := make([]kvPair, 0, len(items))
	for _, it := range items {
		raw, err := encodeEntry(it.entry)
		if err != nil {
			// A value that cannot be encoded can never be written; drop it.
			s.log.Error(ctx, "dropping unencodable score", logger.String("username", it.entry.Username), logger.Error(err))
			continue
		}
		pairs = append(pairs, kvPair{key: entryKey(it.entry), value: raw})
	}

	added, err := s.kv.writeBatch(ctx, pairs)
	if err != nil {
		span.RecordError(err)
		metrics.UpdateBufferSize(s.buf.Requeue(items))
		metrics.RecordFlushError()
		metrics.RecordErrorByComponent("repository", "flush_"+errorKind(err))
		return 0, fmt.Errorf("%w: flush %d entries: %w", ErrStorage, len(items), err)
	}

	total := s.persisted.Add(int64(added))
	metrics.UpdatePersistedEntries(total)
	metrics.UpdateBufferSize(s.buf.Len())
	metrics.RecordFlush(len(pairs), float64(time.Since(start).Microseconds())/1000)
	return len(pairs), nil
}

// Query implements Store.Query.
func (s *Leaderboard) Query(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordLeaderboardQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	switch {
	case limit < 0:
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	case limit == 0:
		limit = s.defaultLimit
	case limit > s.maxLimit:
		limit = s.maxLimit
	}
	if s.closed.Load() {
		return nil, ErrClosed
	}

	out := make([]model.LeaderboardEntry, 0, limit)
	err := s.kv.reverseScan(ctx, scorePrefix, scoreUpper, func(_ string, value []byte) (bool, error) {
		e, err := decodeEntry(value)
		if err != nil {
			return false, err
		}
		// Past the limit, keep reading only while the score still ties with
		// the last included entry: the tie group must be complete before it
		// can be ordered by timestamp.
		if len(out) >= limit && e.TotalScore != out[len(out)-1].TotalScore {
			return false, nil
		}
		out = append(out, e)
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: query top %d: %w", ErrStorage, limit, err)
	}

	sortEntries(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// sortEntries orders by total score desc, then timestamp asc, then username asc.
func sortEntries(entries []model.LeaderboardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.TotalScore != b.TotalScore {
			return a.TotalScore > b.TotalScore
		}
		if at, bt := a.Timestamp.UnixMilli(), b.Timestamp.UnixMilli(); at != bt {
			return at < bt
		}
		return a.Username < b.Username
	})
}

// Count implements Store.Count.
func (s *Leaderboard) Count(ctx context.Context) (int64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	n, err := s.kv.count(ctx, scorePrefix, scoreUpper)
	if err != nil {
		return 0, fmt.Errorf("%w: count: %w", ErrStorage, err)
	}
	return n, nil
}

// Close implements Store.Close. The final flush error, if any, is returned
// after the database is closed; those scores are lost.
func (s *Leaderboard) Close(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.closeMu.Lock()
	first := s.closed.CompareAndSwap(false, true)
	s.closeMu.Unlock()
	if !first {
		return nil
	}
	n, flushErr := s.flushLocked(ctx)
	if flushErr != nil {
		s.log.Error(ctx, "final flush failed", logger.Int("lost", s.buf.Len()), logger.Error(flushErr))
	} else {
		s.log.Info(ctx, "final flush complete", logger.Int("entries", n))
	}
	if err := s.kv.close(); err != nil {
		return fmt.Errorf("%w: close: %w", ErrStorage, err)
	}
	return flushErr
}
