package service

import (
	"context"

	"github.com/okian/typerace/internal/domain/types"
)

// Leaderboard returns the top entries. limit 0 selects the store default.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]types.Entry, error) {
	ctx, span := tracer.Start(ctx, "service.Leaderboard")
	defer span.End()

	entries, err := s.store.Query(ctx, limit)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	out := make([]types.Entry, len(entries))
	for i, e := range entries {
		out[i] = types.FromLeaderboardEntry(e)
	}
	return out, nil
}

// Commands samples phrases outside of a game. count <= 0 means the
// per-session count.
func (s *Service) Commands(count int) []string {
	if count <= 0 {
		count = s.phrasesPerSession
	}
	return s.phrases.GetPhrases(count)
}
