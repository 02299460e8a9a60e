package api

import (
	"net/http"
	"strconv"
)

// CommandsDependencies samples phrases outside of a game.
type CommandsDependencies interface {
	Commands(count int) []string
}

// CommandsHandler serves the phrase sample and the retired score endpoint.
type CommandsHandler struct {
	deps CommandsDependencies
}

// NewCommandsHandler creates a new commands handler.
func NewCommandsHandler(deps CommandsDependencies) *CommandsHandler {
	return &CommandsHandler{deps: deps}
}

// HandleGetCommands handles GET /api/commands?count=N requests.
func (h *CommandsHandler) HandleGetCommands(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_commands"
	if r.Method != http.MethodGet {
		methodNotAllowed(w, op, http.MethodGet)
		return
	}
	count := 0
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		count = n
	}
	writeJSON(w, http.StatusOK, h.deps.Commands(count))
}

// HandleScore handles POST /api/score. Scores are only accepted through a
// game session now, so the endpoint answers 410 Gone.
func (h *CommandsHandler) HandleScore(w http.ResponseWriter, _ *http.Request) {
	const op = "api.score"
	writeError(w, http.StatusGone, "gone", NewKind(op, ErrGone))
}
