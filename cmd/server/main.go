package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/typerace/internal/adapters/http/api"
	"github.com/okian/typerace/internal/adapters/http/live"
	"github.com/okian/typerace/internal/adapters/http/swagger"
	"github.com/okian/typerace/internal/adapters/repository"
	app "github.com/okian/typerace/internal/app"
	"github.com/okian/typerace/internal/config"
	"github.com/okian/typerace/internal/domain/integrity"
	"github.com/okian/typerace/internal/domain/phrases"
	"github.com/okian/typerace/pkg/logger"
	"github.com/okian/typerace/pkg/tracing"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second

	serviceName = "typerace"
)

func main() {
	if err := logger.Init(); err != nil {
		// Logger isn't available yet.
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		logger.Get().Fatal(ctx, "failed to load config", logger.Error(err))
	}
	if err := logger.InitWithOptions(logger.Options{Format: cfg.LogFormat}); err != nil {
		logger.Get().Warn(ctx, "invalid log_format; keeping text", logger.String("log_format", cfg.LogFormat), logger.Error(err))
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	defer func() { _ = logger.Sync() }()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal(ctx, "server failed", logger.Error(err))
	}
}

// run serves until ctx is canceled, then drains and shuts down.
func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	shutdownTracing, err := tracing.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		log.Warn(ctx, "tracing disabled", logger.Error(err))
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			log.Warn(ctx, "tracing shutdown failed", logger.Error(err))
		}
	}()

	srv, svc, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var failed error
	select {
	case <-ctx.Done():
		log.Info(ctx, "shutting down server...")
	case failed = <-serveErr:
		if failed != nil {
			failed = fmt.Errorf("http server: %w", failed)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Stop taking requests first so no submit races the final flush.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		log.Error(ctx, "service shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return failed
}

// build opens the leaderboard (restoring it from backup when the data
// directory is gone), loads the phrase corpus and wires the HTTP routes.
func build(ctx context.Context, cfg *config.Config, log logger.Logger) (*http.Server, *app.Service, error) {
	signer, err := integrity.NewSigner(cfg.HMACSecret)
	if err != nil {
		return nil, nil, fmt.Errorf("signer: %w", err)
	}

	corpus, err := phrases.Load(ctx, cfg.PhrasesDir, log.Named("phrases"))
	if err != nil {
		return nil, nil, fmt.Errorf("load phrases: %w", err)
	}

	store, err := repository.Open(ctx, cfg.DataDir,
		repository.WithLogger(log.Named("leaderboard")),
		repository.WithBackupDir(cfg.BackupDir),
		repository.WithBackupRetain(cfg.BackupRetain),
		repository.WithDefaultLimit(cfg.DefaultLeaderboardLimit),
		repository.WithMaxLimit(cfg.MaxLeaderboardLimit),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("open leaderboard: %w", err)
	}

	svc := app.New(store, corpus, signer,
		app.WithLogger(log.Named("service")),
		app.WithSessionShards(cfg.SessionShards),
		app.WithPhrasesPerSession(cfg.PhrasesPerSession),
		app.WithSessionTimeout(cfg.SessionTimeout),
		app.WithHeartbeatWindow(cfg.HeartbeatWindow),
		app.WithMinDuration(cfg.MinDuration),
		app.WithMaxWPM(cfg.MaxWPM),
		app.WithIntervals(cfg.SweepInterval, cfg.FlushInterval, cfg.BackupInterval),
	)

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)

	apiServer := api.NewServer(svc, svc,
		api.WithLogger(log.Named("api")),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		api.WithCORSOrigins(cfg.CORSOrigins),
	)
	apiServer.Register(ctx, mux)
	apiServer.Mount(mux, "/api/game/live", "game_live",
		live.NewHandler(svc, live.WithLogger(log), live.WithAllowedOrigins(cfg.CORSOrigins)).ServeHTTP)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           apiServer.Handler(mux),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return srv, svc, nil
}
