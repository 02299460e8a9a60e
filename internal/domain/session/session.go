// Package session holds live game sessions between creation and their
// single terminal transition.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/okian/typerace/internal/domain/model"
)

const defaultShardCount = 8

// Store is the live session table. Every method is safe for concurrent use,
// and operations on one session are atomic with respect to each other.
type Store interface {
	// Put inserts a new session. Returns ErrExists if the id is taken.
	Put(ctx context.Context, s *model.GameSession) error

	// Touch records a heartbeat: lastHeartbeat=at and progress=progress.
	Touch(ctx context.Context, id string, progress int, at time.Time) error

	// Consume runs fn against a snapshot of the session while holding its
	// shard lock. When fn returns nil the session is removed before the lock
	// is released, so at most one Consume can ever succeed per session.
	// When fn fails the session is left as it was.
	Consume(ctx context.Context, id string, fn func(model.GameSession) error) error

	// Get returns a snapshot of the session.
	Get(ctx context.Context, id string) (model.GameSession, error)

	// Sweep removes every session whose last heartbeat is older than
	// timeout at now, and returns how many were removed.
	Sweep(ctx context.Context, now time.Time, timeout time.Duration) int

	// Len is the number of live sessions.
	Len() int64
}

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*model.GameSession
}

// shardedStore spreads sessions over shards by xxhash of the id so
// unrelated sessions rarely share a lock.
type shardedStore struct {
	shardCount int
	shards     []*shard
	size       atomic.Int64
}

// NewShardedStore creates an empty session table.
func NewShardedStore(opts ...Option) Store {
	s := &shardedStore{shardCount: defaultShardCount}
	for _, opt := range opts {
		opt(s)
	}
	s.shards = make([]*shard, s.shardCount)
	for i := range s.shards {
		s.shards[i] = &shard{sessions: make(map[string]*model.GameSession)}
	}
	return s
}

func (s *shardedStore) shardFor(id string) *shard {
	return s.shards[xxhash.Sum64String(id)%uint64(len(s.shards))]
}

func (s *shardedStore) Put(_ context.Context, gs *model.GameSession) error {
	sh := s.shardFor(gs.ID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.sessions[gs.ID]; ok {
		return ErrExists
	}
	cp := *gs
	sh.sessions[gs.ID] = &cp
	s.size.Add(1)
	return nil
}

func (s *shardedStore) Touch(_ context.Context, id string, progress int, at time.Time) error {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	gs, ok := sh.sessions[id]
	if !ok {
		return ErrNotFound
	}
	gs.LastHeartbeat = at
	gs.Progress = progress
	return nil
}

func (s *shardedStore) Consume(_ context.Context, id string, fn func(model.GameSession) error) error {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	gs, ok := sh.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if err := fn(*gs); err != nil {
		return err
	}
	delete(sh.sessions, id)
	s.size.Add(-1)
	return nil
}

func (s *shardedStore) Get(_ context.Context, id string) (model.GameSession, error) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	gs, ok := sh.sessions[id]
	if !ok {
		return model.GameSession{}, ErrNotFound
	}
	return *gs, nil
}

func (s *shardedStore) Sweep(_ context.Context, now time.Time, timeout time.Duration) int {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, gs := range sh.sessions {
			if now.Sub(gs.LastHeartbeat) > timeout {
				delete(sh.sessions, id)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	s.size.Add(int64(-removed))
	return removed
}

func (s *shardedStore) Len() int64 {
	return s.size.Load()
}
