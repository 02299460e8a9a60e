package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	service "github.com/okian/typerace/internal/app"
	"github.com/okian/typerace/internal/domain/types"
	"github.com/okian/typerace/pkg/logger"
)

// GameDependencies is the session lifecycle as seen by the API.
type GameDependencies interface {
	CreateSession(ctx context.Context, username string) (service.Challenge, error)
	RecordHeartbeat(ctx context.Context, sessionID string, progress int) error
	Submit(ctx context.Context, req service.SubmitRequest) (service.Result, error)
}

// GameHandler handles the start, heartbeat and submit calls of a game.
type GameHandler struct {
	deps   GameDependencies
	now    func() time.Time
	logger logger.Logger
}

// NewGameHandler creates a new game handler. now stamps submissions.
func NewGameHandler(deps GameDependencies, now func() time.Time, log logger.Logger) *GameHandler {
	return &GameHandler{deps: deps, now: now, logger: log}
}

// HandleStart handles POST /api/game/start requests.
func (h *GameHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	const op = "api.game_start"
	if r.Method != http.MethodPost {
		methodNotAllowed(w, op, http.MethodPost)
		return
	}
	var req types.StartRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	ch, err := h.deps.CreateSession(r.Context(), req.Username)
	if err != nil {
		fail(r.Context(), h.logger, w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, types.StartResponse{
		SessionID: ch.SessionID,
		Commands:  ch.Phrases,
		StartTime: ch.StartTime.UnixMilli(),
		Signature: ch.IntegrityToken,
	})
}

// HandleHeartbeat handles POST /api/game/heartbeat requests.
func (h *GameHandler) HandleHeartbeat(w http.ResponseWriter, r *http.Request) {
	const op = "api.game_heartbeat"
	if r.Method != http.MethodPost {
		methodNotAllowed(w, op, http.MethodPost)
		return
	}
	var req types.HeartbeatRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	if err := h.deps.RecordHeartbeat(r.Context(), req.SessionID, req.Progress); err != nil {
		fail(r.Context(), h.logger, w, Wrap(op, err))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// HandleSubmit handles POST /api/game/submit requests. The finish time is
// taken from the server clock when the request arrives.
func (h *GameHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.game_submit"
	if r.Method != http.MethodPost {
		methodNotAllowed(w, op, http.MethodPost)
		return
	}
	finish := h.now()

	var req types.SubmitRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	res, err := h.deps.Submit(r.Context(), service.SubmitRequest{
		SessionID:  req.SessionID,
		Username:   req.Username,
		TypedText:  req.TypedText,
		FinishTime: finish,
		Signature:  req.Signature,
	})
	if err != nil {
		fail(r.Context(), h.logger, w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, types.SubmitResponse{WPM: res.WPM, MaxCombo: res.MaxCombo})
}
