package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/typerace/internal/loadgen"
	"github.com/okian/typerace/pkg/logger"
	"github.com/urfave/cli/v2"
)

const defaultRunTimeout = 10 * time.Minute

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		logger.Get().Fatal(ctx, "load run failed", logger.Error(err))
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "loadgen",
		Usage: "play concurrent typing games against a server and verify its leaderboard",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "http://localhost:8080", Usage: "server base URL"},
			&cli.StringFlag{Name: "secret", EnvVars: []string{"TYPERACE_HMAC_SECRET"}, Usage: "shared HMAC secret", Required: true},
			&cli.IntFlag{Name: "games", Value: loadgen.DefaultGames, Usage: "number of games to play"},
			&cli.IntFlag{Name: "workers", Value: runtime.NumCPU() * 2, Usage: "concurrent players"},
			&cli.IntFlag{Name: "wpm", Value: loadgen.DefaultTargetWPM, Usage: "typing speed each player paces to"},
			&cli.Float64Flag{Name: "typo-rate", Value: loadgen.DefaultTypoRate, Usage: "fraction of characters mistyped"},
			&cli.IntFlag{Name: "top", Value: loadgen.DefaultTop, Usage: "leaderboard rows fetched for verification"},
			&cli.DurationFlag{Name: "timeout", Value: loadgen.DefaultTimeout, Usage: "per-request timeout"},
			&cli.DurationFlag{Name: "heartbeat", Value: loadgen.DefaultHeartbeatEvery, Usage: "heartbeat period while typing"},
			&cli.DurationFlag{Name: "settle", Value: loadgen.DefaultSettleTimeout, Usage: "how long to wait for scores to flush"},
			&cli.DurationFlag{Name: "run-timeout", Value: defaultRunTimeout, Usage: "overall deadline"},
			&cli.Int64Flag{Name: "seed", Usage: "username and typo seed; 0 uses the clock"},
			&cli.BoolFlag{Name: "verbose", Usage: "log every rejected game"},
		},
		Action: run,
	}
}

func run(c *cli.Context) error {
	if c.Bool("verbose") {
		_ = logger.SetLevelString("debug")
	}
	ctx, cancel := context.WithTimeout(c.Context, c.Duration("run-timeout"))
	defer cancel()

	cfg := &loadgen.Config{
		BaseURL:        c.String("url"),
		Secret:         c.String("secret"),
		Games:          c.Int("games"),
		Workers:        c.Int("workers"),
		TargetWPM:      c.Int("wpm"),
		TypoRate:       c.Float64("typo-rate"),
		Top:            c.Int("top"),
		Timeout:        c.Duration("timeout"),
		HeartbeatEvery: c.Duration("heartbeat"),
		SettleTimeout:  c.Duration("settle"),
		Seed:           c.Int64("seed"),
	}
	_, err := loadgen.Run(ctx, cfg, logger.Named("loadgen"))
	return err
}
