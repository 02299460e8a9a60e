package loadgen

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/okian/typerace/internal/domain/integrity"
	"github.com/okian/typerace/internal/domain/types"
	"github.com/okian/typerace/pkg/logger"
)

// Run plays cfg.Games games with cfg.Workers concurrent players, waits for
// the scores to be flushed, then verifies the leaderboard.
func Run(ctx context.Context, cfg *Config, log logger.Logger) (*Stats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	signer, err := integrity.NewSigner(cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	stats := &Stats{Games: cfg.Games, Rejected: map[string]int{}, StartTime: time.Now()}
	c := newClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting load run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("games", cfg.Games),
		logger.Int("workers", cfg.Workers),
		logger.Int("targetWpm", cfg.TargetWPM),
		logger.Float64("typoRate", cfg.TypoRate),
		logger.Int64("seed", seed))

	if err := c.health(ctx); err != nil {
		return stats, fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}

	plans := makePlans(gofakeit.New(uint64(seed)), cfg.Games)
	outcomes := playAll(ctx, cfg, &player{cfg: cfg, client: c, signer: signer}, plans, stats, log)
	stats.Accepted = len(outcomes)
	if len(outcomes) == 0 {
		stats.Duration = time.Since(stats.StartTime)
		return stats, ErrNoScores
	}

	board, err := settle(ctx, cfg, c, outcomes)
	stats.Duration = time.Since(stats.StartTime)
	if err != nil {
		return stats, fmt.Errorf("fetch leaderboard: %w", err)
	}
	stats.LeaderboardEntries = len(board)
	stats.OwnEntries = countOwn(board, outcomes)

	if err := verify(board, outcomes, cfg.Top); err != nil {
		return stats, err
	}
	logStats(ctx, log, stats)
	return stats, nil
}

// playAll fans plans out to workers and collects accepted games.
func playAll(ctx context.Context, cfg *Config, p *player, plans []plan, stats *Stats, log logger.Logger) []outcome {
	work := make(chan plan)
	var (
		mu       sync.Mutex
		outcomes []outcome
		wg       sync.WaitGroup
	)

	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pl := range work {
				out, err := p.play(ctx, pl)
				var apiErr *APIError
				mu.Lock()
				switch {
				case err == nil:
					outcomes = append(outcomes, out)
				case errors.As(err, &apiErr):
					stats.Rejected[apiErr.Code]++
				default:
					stats.Failed++
				}
				mu.Unlock()
				if err != nil {
					log.Debug(ctx, "game not accepted", logger.String("username", pl.Username), logger.Error(err))
				}
			}
		}()
	}

	go func() {
		defer close(work)
		for _, pl := range plans {
			select {
			case <-ctx.Done():
				return
			case work <- pl:
			}
		}
	}()

	wg.Wait()
	return outcomes
}

// settle polls the leaderboard until this run's best game is reflected in
// it, or SettleTimeout passes. The last board read is returned.
func settle(ctx context.Context, cfg *Config, c *client, outcomes []outcome) ([]types.Entry, error) {
	deadline := time.Now().Add(cfg.SettleTimeout)
	for {
		board, err := c.leaderboard(ctx, cfg.Top)
		if err != nil {
			return nil, err
		}
		if bestVisible(board, outcomes, cfg.Top) || !time.Now().Before(deadline) {
			return board, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(settlePoll):
		}
	}
}

func logStats(ctx context.Context, log logger.Logger, s *Stats) {
	var gamesPerSecond float64
	if s.Duration > 0 {
		gamesPerSecond = float64(s.Accepted) / s.Duration.Seconds()
	}
	log.Info(ctx, "load run finished",
		logger.Int("games", s.Games),
		logger.Int("accepted", s.Accepted),
		logger.Any("rejected", s.Rejected),
		logger.Int("failed", s.Failed),
		logger.Int("leaderboardEntries", s.LeaderboardEntries),
		logger.Int("ownEntries", s.OwnEntries),
		logger.Duration("duration", s.Duration),
		logger.Float64("gamesPerSecond", gamesPerSecond))
}
