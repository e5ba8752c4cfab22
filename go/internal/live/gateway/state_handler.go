package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/courtside/go/internal/errclass"
)

// StateHandler serves the HTTP side of the live match surface
type StateHandler struct {
	dispatcher *Dispatcher
}

// NewStateHandler creates a new state handler
func NewStateHandler(dispatcher *Dispatcher) *StateHandler {
	return &StateHandler{dispatcher: dispatcher}
}

// HandleGetMatchState handles GET /api/matches/{id}/state
func (h *StateHandler) HandleGetMatchState(w http.ResponseWriter, r *http.Request) {
	h.query(w, r, CommandState)
}

// HandleGetCollaborators handles GET /api/matches/{id}/collaborators
func (h *StateHandler) HandleGetCollaborators(w http.ResponseWriter, r *http.Request) {
	h.query(w, r, CommandCollaborators)
}

// HandlePostCommand handles POST /api/matches/{id}/commands. The body is a
// command frame carrying the acting user_id.
func (h *StateHandler) HandlePostCommand(w http.ResponseWriter, r *http.Request) {
	matchID, ok := matchIDFromPath(w, r)
	if !ok {
		return
	}

	var cmd Command
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&cmd); err != nil {
		reply := errorReply(cmd, errclass.ErrValidation.WithMessagef("malformed command: %v", err), matchID, 0)
		writeJSON(w, httpStatus(reply), reply)
		return
	}
	if cmd.UserID <= 0 {
		reply := errorReply(cmd, errclass.ErrValidation.WithMessage("user_id is required"), matchID, 0)
		writeJSON(w, httpStatus(reply), reply)
		return
	}

	log.Debug().
		Int64("match_id", matchID).
		Int64("user_id", cmd.UserID).
		Str("command", string(cmd.Type)).
		Msg("received HTTP command")

	reply := h.dispatcher.Dispatch(r.Context(), matchID, cmd.UserID, cmd)
	writeJSON(w, httpStatus(reply), reply)
}

func (h *StateHandler) query(w http.ResponseWriter, r *http.Request, typ CommandType) {
	matchID, ok := matchIDFromPath(w, r)
	if !ok {
		return
	}
	reply := h.dispatcher.Dispatch(r.Context(), matchID, 0, Command{Type: typ})
	if reply.Type == ReplyError {
		writeJSON(w, httpStatus(reply), reply)
		return
	}
	writeJSON(w, http.StatusOK, reply.Data)
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/matches/{id}/state", h.HandleGetMatchState)
	mux.HandleFunc("GET /api/matches/{id}/collaborators", h.HandleGetCollaborators)
	mux.HandleFunc("POST /api/matches/{id}/commands", h.HandlePostCommand)
}

func matchIDFromPath(w http.ResponseWriter, r *http.Request) (int64, bool) {
	matchID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || matchID <= 0 {
		http.Error(w, "Invalid match ID", http.StatusBadRequest)
		return 0, false
	}
	return matchID, true
}
