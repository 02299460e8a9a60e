// Package loadgen plays many concurrent games against a running server and
// checks that the leaderboard it ends up with is consistent.
package loadgen

import (
	"errors"
	"fmt"
	"time"
)

// Defaults used by the CLI.
const (
	DefaultGames          = 50
	DefaultTargetWPM      = 90
	DefaultTypoRate       = 0.02
	DefaultTop            = 10
	DefaultTimeout        = 10 * time.Second
	DefaultHeartbeatEvery = 5 * time.Second
	DefaultSettleTimeout  = 5 * time.Second

	settlePoll = 100 * time.Millisecond
)

var (
	// ErrInvalidConfig is returned by Validate.
	ErrInvalidConfig = errors.New("loadgen: invalid config")
	// ErrUnhealthy is returned when the health probe fails.
	ErrUnhealthy = errors.New("loadgen: service unhealthy")
	// ErrNoScores is returned when not a single game was accepted.
	ErrNoScores = errors.New("loadgen: no game was accepted")
	// ErrInconsistent is returned when the leaderboard fails verification.
	ErrInconsistent = errors.New("loadgen: leaderboard inconsistent")
)

// Config holds configuration for a load run.
type Config struct {
	BaseURL        string        // server root, e.g. http://localhost:8080
	Secret         string        // shared HMAC secret used to sign submissions
	Games          int           // number of games to play
	Workers        int           // concurrent players
	TargetWPM      int           // typing speed each player paces itself to
	TypoRate       float64       // fraction of characters mistyped, 0..1
	Top            int           // leaderboard size fetched for verification
	Timeout        time.Duration // per-request timeout
	HeartbeatEvery time.Duration // heartbeat period while "typing"
	SettleTimeout  time.Duration // how long to wait for scores to become visible
	Seed           int64         // faker seed; 0 picks one from the clock
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("%w: base url must be set", ErrInvalidConfig)
	case c.Secret == "":
		return fmt.Errorf("%w: secret must be set", ErrInvalidConfig)
	case c.Games <= 0 || c.Workers <= 0:
		return fmt.Errorf("%w: games and workers must be positive", ErrInvalidConfig)
	case c.TargetWPM <= 0:
		return fmt.Errorf("%w: target wpm must be positive", ErrInvalidConfig)
	case c.TypoRate < 0 || c.TypoRate > 1:
		return fmt.Errorf("%w: typo rate must be within [0,1]", ErrInvalidConfig)
	case c.Top <= 0:
		return fmt.Errorf("%w: top must be positive", ErrInvalidConfig)
	case c.Timeout <= 0 || c.HeartbeatEvery <= 0:
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	}
	return nil
}

// Stats holds the outcome of a run.
type Stats struct {
	Games              int
	Accepted           int
	Rejected           map[string]int // by error code
	Failed             int            // transport or decode failures
	LeaderboardEntries int
	OwnEntries         int // leaderboard rows played by this run
	StartTime          time.Time
	Duration           time.Duration
}
