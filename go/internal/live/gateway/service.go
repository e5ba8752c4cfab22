package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/courtside/go/internal/live/fanout"
)

// Service is the live match gateway: websocket connections, HTTP routes and
// the disconnect hook that releases a match once its owner stops viewing it.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig  ConnectionConfig
	DisconnectTimeout time.Duration
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig:  DefaultConnectionConfig(),
		DisconnectTimeout: 10 * time.Second,
	}
}

// NewService creates a new gateway service
func NewService(config Config, ctrl Controller, hub *fanout.Hub) *Service {
	dispatcher := NewDispatcher(ctrl)

	onLeave := func(matchID, userID int64) {
		ctx, cancel := context.WithTimeout(context.Background(), config.DisconnectTimeout)
		defer cancel()
		ctrl.Disconnect(ctx, matchID, userID)
	}
	connectionManager := NewConnectionManager(config.ConnectionConfig, hub, dispatcher, onLeave)

	return &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager, dispatcher),
		stateHandler:      NewStateHandler(dispatcher),
	}
}

// RegisterRoutes registers the websocket and HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("live gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}

// Shutdown closes every connection, releasing the matches their users own.
func (s *Service) Shutdown() {
	s.connectionManager.CloseAll()
	log.Info().Msg("live gateway stopped")
}
