// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/typerace/internal/adapters/repository"
	"github.com/okian/typerace/internal/domain/scoring"
	"github.com/okian/typerace/internal/domain/session"
	"github.com/okian/typerace/internal/domain/types"
	"github.com/okian/typerace/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	GameDependencies
	LeaderboardDependencies
	CommandsDependencies
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// Server wires HTTP routes for the game API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	gameHandler        *GameHandler
	leaderboardHandler *LeaderboardHandler
	commandsHandler    *CommandsHandler

	limiter     *IPRateLimiter
	corsOrigins []string
	now         func() time.Time
	logger      logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		corsOrigins: []string{"*"},
		now:         time.Now,
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(statsProvider)
	s.gameHandler = NewGameHandler(deps, s.now, s.logger)
	s.leaderboardHandler = NewLeaderboardHandler(deps, s.logger)
	s.commandsHandler = NewCommandsHandler(deps)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	s.route(mux, "/api/game/start", "game_start", s.gameHandler.HandleStart)
	s.route(mux, "/api/game/heartbeat", "game_heartbeat", s.gameHandler.HandleHeartbeat)
	s.route(mux, "/api/game/submit", "game_submit", s.gameHandler.HandleSubmit)
	s.route(mux, "/api/leaderboard", "leaderboard", s.leaderboardHandler.HandleGetLeaderboard)
	s.route(mux, "/api/commands", "commands", s.commandsHandler.HandleGetCommands)
	s.route(mux, "/api/score", "score", s.commandsHandler.HandleScore)
}

// Mount registers an extra handler behind the same metrics and rate limit
// as the built-in game routes.
func (s *Server) Mount(mux *http.ServeMux, pattern, endpoint string, h http.HandlerFunc) {
	s.route(mux, pattern, endpoint, h)
}

func (s *Server) route(mux *http.ServeMux, pattern, endpoint string, h http.HandlerFunc) {
	if s.limiter != nil {
		h = RateLimitMiddleware(s.limiter, endpoint, h)
	}
	mux.HandleFunc(pattern, MetricsMiddleware(h, endpoint))
}

// Handler wraps mux with the CORS policy. It is the root handler of the
// HTTP server.
func (s *Server) Handler(mux *http.ServeMux) http.Handler {
	return CORSMiddleware(s.corsOrigins)(mux)
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for failed requests.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the clock used to stamp submissions.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRateLimit enables a per-client-IP token bucket on game routes.
// rps <= 0 disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps > 0 && burst > 0 {
			s.limiter = NewIPRateLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithCORSOrigins sets the allowed browser origins. "*" allows any.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// classify maps an error from the service layer to an HTTP status and a
// stable error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, scoring.ErrInvalidSignature):
		return http.StatusForbidden, scoring.Code(err)
	case scoring.Code(err) != "":
		return http.StatusBadRequest, scoring.Code(err)
	case errors.Is(err, repository.ErrInvalidLimit), errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, ErrMethodNotAllowed):
		return http.StatusMethodNotAllowed, "method_not_allowed"
	case errors.Is(err, ErrGone):
		return http.StatusGone, "gone"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// fail writes err with its classified status. Server-side failures are
// logged; their detail is not sent to the client.
func fail(ctx context.Context, log logger.Logger, w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error(ctx, "request failed", logger.Error(err))
		writeError(w, status, code, nil)
		return
	}
	writeError(w, status, code, err)
}

func methodNotAllowed(w http.ResponseWriter, op string, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", NewKind(op, ErrMethodNotAllowed))
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
