// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New() builds a Config with defaults; Load layers a file and env on top.
// - Durations are written as Go duration strings ("500ms", "5m").
// - External errors are wrapped with this package's sentinels.
package config

import (
	"fmt"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// HMACSecret keys session tokens and submission signatures. Required.
	HMACSecret string `koanf:"hmac_secret"`

	// SessionTimeout is how long a session may go without a heartbeat before the sweeper drops it.
	SessionTimeout time.Duration `koanf:"session_timeout"`

	// HeartbeatWindow is the maximum heartbeat age accepted at submit time.
	HeartbeatWindow time.Duration `koanf:"heartbeat_window"`

	// SweepInterval is the period of the expired-session sweeper.
	SweepInterval time.Duration `koanf:"sweep_interval"`

	// MinDuration rejects games finished faster than this.
	MinDuration time.Duration `koanf:"min_duration"`

	// MaxWPM rejects games typed faster than this.
	MaxWPM int `koanf:"max_wpm"`

	// PhrasesDir holds the *.txt phrase corpus.
	PhrasesDir string `koanf:"phrases_dir"`

	// PhrasesPerSession is the number of phrases issued per game.
	PhrasesPerSession int `koanf:"phrases_per_session"`

	// SessionShards is the number of independently locked session shards.
	SessionShards int `koanf:"session_shards"`

	// FlushInterval is the period of the buffer-to-disk flusher.
	FlushInterval time.Duration `koanf:"flush_interval"`

	// BackupInterval is the period of store backups.
	BackupInterval time.Duration `koanf:"backup_interval"`

	// BackupRetain is how many backup files are kept.
	BackupRetain int `koanf:"backup_retain"`

	// DataDir holds the leaderboard database.
	DataDir string `koanf:"data_dir"`

	// BackupDir holds backup files.
	BackupDir string `koanf:"backup_dir"`

	// DefaultLeaderboardLimit applies when GET /api/leaderboard has no limit.
	DefaultLeaderboardLimit int `koanf:"default_leaderboard_limit"`

	// MaxLeaderboardLimit caps GET /api/leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// RateLimitRPS and RateLimitBurst configure the per-IP limiter. RPS <= 0 disables it.
	RateLimitRPS   float64 `koanf:"rate_limit_rps"`
	RateLimitBurst int     `koanf:"rate_limit_burst"`

	// CORSOrigins lists allowed origins; "*" allows any.
	CORSOrigins []string `koanf:"cors_origins"`

	// OTelEndpoint enables OTLP/HTTP trace export when set, e.g. "http://localhost:4318".
	OTelEndpoint string `koanf:"otel_endpoint"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                "info",
		LogFormat:               "text",
		Addr:                    ":8080",
		SessionTimeout:          5 * time.Minute,
		HeartbeatWindow:         15 * time.Second,
		SweepInterval:           60 * time.Second,
		MinDuration:             2 * time.Second,
		MaxWPM:                  400,
		PhrasesDir:              "commands",
		PhrasesPerSession:       10,
		SessionShards:           8,
		FlushInterval:           500 * time.Millisecond,
		BackupInterval:          24 * time.Hour,
		BackupRetain:            7,
		DataDir:                 "data/leaderboard",
		BackupDir:               "data/backups",
		DefaultLeaderboardLimit: 10,
		MaxLeaderboardLimit:     100,
		RateLimitRPS:            20,
		RateLimitBurst:          40,
		CORSOrigins:             []string{"*"},
	}
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.HMACSecret == "":
		return ErrMissingSecret
	case c.SessionTimeout <= 0, c.HeartbeatWindow <= 0, c.SweepInterval <= 0,
		c.FlushInterval <= 0, c.BackupInterval <= 0:
		return fmt.Errorf("%w: intervals must be positive", ErrInvalidConfig)
	case c.MinDuration < 0:
		return fmt.Errorf("%w: min_duration must not be negative", ErrInvalidConfig)
	case c.MaxWPM <= 0:
		return fmt.Errorf("%w: max_wpm must be positive", ErrInvalidConfig)
	case c.PhrasesPerSession <= 0:
		return fmt.Errorf("%w: phrases_per_session must be positive", ErrInvalidConfig)
	case c.SessionShards <= 0:
		return fmt.Errorf("%w: session_shards must be positive", ErrInvalidConfig)
	case c.BackupRetain <= 0:
		return fmt.Errorf("%w: backup_retain must be positive", ErrInvalidConfig)
	case c.DataDir == "" || c.BackupDir == "":
		return fmt.Errorf("%w: data_dir and backup_dir must be set", ErrInvalidConfig)
	case c.DefaultLeaderboardLimit <= 0 || c.MaxLeaderboardLimit < c.DefaultLeaderboardLimit:
		return fmt.Errorf("%w: need 0 < default_leaderboard_limit <= max_leaderboard_limit", ErrInvalidConfig)
	case c.RateLimitRPS > 0 && c.RateLimitBurst <= 0:
		return fmt.Errorf("%w: rate_limit_burst must be positive when rate limiting is on", ErrInvalidConfig)
	}
	return nil
}
