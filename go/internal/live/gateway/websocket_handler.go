package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles websocket upgrade requests for live matches
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	dispatcher        *Dispatcher
}

// NewWebSocketHandler creates a new websocket handler
func NewWebSocketHandler(cm *ConnectionManager, dispatcher *Dispatcher) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		dispatcher:        dispatcher,
	}
}

// HandleLiveConnection handles GET /ws/live?match_id=&user_id=&user_name=.
// The match state snapshot is the first frame on the socket.
func (h *WebSocketHandler) HandleLiveConnection(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	matchID, err := strconv.ParseInt(query.Get("match_id"), 10, 64)
	if err != nil || matchID <= 0 {
		http.Error(w, "match_id is required", http.StatusBadRequest)
		return
	}
	userID, err := strconv.ParseInt(query.Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	userName := query.Get("user_name")

	snapshot := h.dispatcher.Dispatch(r.Context(), matchID, userID, Command{Type: CommandState})
	if snapshot.Type == ReplyError {
		writeJSON(w, httpStatus(snapshot), snapshot)
		return
	}

	if _, err := h.connectionManager.UpgradeConnection(w, r, matchID, userID, userName, &snapshot); err != nil {
		// The upgrader has already answered the request.
		log.Error().
			Err(err).
			Int64("match_id", matchID).
			Int64("user_id", userID).
			Msg("failed to upgrade websocket connection")
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.connectionManager.GetConnectionStats())
}

// RegisterRoutes registers websocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/live", h.HandleLiveConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
