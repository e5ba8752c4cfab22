package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/courtside/go/internal/errclass"
	"github.com/mcdev12/courtside/go/internal/live/events"
	"github.com/mcdev12/courtside/go/internal/live/fanout"
)

var (
	errConnectionClosed = errors.New("connection closed")
	errSendBufferFull   = errors.New("send buffer full")
)

// ConnectionManager manages the websocket connections of live match viewers.
// Each connection is subscribed to its match topic and its user topic on the hub.
type ConnectionManager struct {
	matchConnections map[int64]map[*Connection]bool
	userConnections  map[int64]int
	viewers          map[viewer]int
	mu               sync.RWMutex

	upgrader   websocket.Upgrader
	config     ConnectionConfig
	hub        *fanout.Hub
	dispatcher *Dispatcher

	// Called once a user has no connections left on a match.
	onLeave func(matchID, userID int64)
}

type viewer struct {
	matchID int64
	userID  int64
}

// Connection represents a websocket connection of one user to one match
type Connection struct {
	ID       string
	UserID   int64
	UserName string
	MatchID  int64
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *ConnectionManager

	ConnectedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// ConnectionConfig holds configuration for websocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	PingInterval    time.Duration `yaml:"ping_interval"`
	CommandTimeout  time.Duration `yaml:"command_timeout"`
	MaxMessageSize  int64         `yaml:"max_message_size"`
	ReadBufferSize  int           `yaml:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size"`
	SendBufferSize  int           `yaml:"send_buffer_size"`

	CheckOrigin func(r *http.Request) bool `yaml:"-"`
}

// ConnectionStats is a point-in-time view of the open connections.
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveMatches    int            `json:"active_matches"`
	ConnectedUsers   int            `json:"connected_users"`
	MatchConnections map[string]int `json:"match_connections"`
}

// DefaultConnectionConfig returns default websocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		CommandTimeout:  10 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new websocket connection manager
func NewConnectionManager(config ConnectionConfig, hub *fanout.Hub, dispatcher *Dispatcher, onLeave func(matchID, userID int64)) *ConnectionManager {
	return &ConnectionManager{
		matchConnections: make(map[int64]map[*Connection]bool),
		userConnections:  make(map[int64]int),
		viewers:          make(map[viewer]int),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:     config,
		hub:        hub,
		dispatcher: dispatcher,
		onLeave:    onLeave,
	}
}

// UpgradeConnection upgrades an HTTP connection to websocket and starts its pumps.
// initial is queued before any push notification.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, matchID, userID int64, userName string, initial *Reply) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	connection := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		UserName:    userName,
		MatchID:     matchID,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: time.Now(),
		ctx:         ctx,
		cancel:      cancel,
	}

	if initial != nil {
		connection.reply(*initial)
	}
	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Int64("user_id", userID).
		Int64("match_id", matchID).
		Msg("websocket connection established")

	return connection, nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	if cm.matchConnections[conn.MatchID] == nil {
		cm.matchConnections[conn.MatchID] = make(map[*Connection]bool)
	}
	cm.matchConnections[conn.MatchID][conn] = true
	cm.userConnections[conn.UserID]++
	cm.viewers[viewer{conn.MatchID, conn.UserID}]++
	total := len(cm.matchConnections[conn.MatchID])
	cm.mu.Unlock()

	cm.hub.Subscribe(fanout.MatchTopic(conn.MatchID), conn.ID, conn.deliver)
	cm.hub.Subscribe(fanout.UserTopic(conn.UserID), conn.ID, conn.deliver)

	log.Debug().
		Str("connection_id", conn.ID).
		Int64("match_id", conn.MatchID).
		Int("total_connections", total).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	connections, exists := cm.matchConnections[conn.MatchID]
	if !exists || !connections[conn] {
		cm.mu.Unlock()
		return
	}
	delete(connections, conn)
	if len(connections) == 0 {
		delete(cm.matchConnections, conn.MatchID)
	}
	cm.userConnections[conn.UserID]--
	if cm.userConnections[conn.UserID] <= 0 {
		delete(cm.userConnections, conn.UserID)
	}
	key := viewer{conn.MatchID, conn.UserID}
	cm.viewers[key]--
	last := cm.viewers[key] <= 0
	if last {
		delete(cm.viewers, key)
	}
	cm.mu.Unlock()

	cm.hub.Unsubscribe(fanout.MatchTopic(conn.MatchID), conn.ID)
	cm.hub.Unsubscribe(fanout.UserTopic(conn.UserID), conn.ID)
	conn.close()

	log.Info().
		Str("connection_id", conn.ID).
		Int64("user_id", conn.UserID).
		Int64("match_id", conn.MatchID).
		Bool("last_for_match", last).
		Msg("connection unregistered")

	if last && cm.onLeave != nil {
		cm.onLeave(conn.MatchID, conn.UserID)
	}
}

// MatchUserConnections returns how many connections userID has open on matchID.
func (cm *ConnectionManager) MatchUserConnections(matchID, userID int64) int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.viewers[viewer{matchID, userID}]
}

// UserConnections returns how many connections userID has open.
func (cm *ConnectionManager) UserConnections(userID int64) int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.userConnections[userID]
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{
		ActiveMatches:    len(cm.matchConnections),
		ConnectedUsers:   len(cm.userConnections),
		MatchConnections: make(map[string]int, len(cm.matchConnections)),
	}
	for matchID, connections := range cm.matchConnections {
		stats.TotalConnections += len(connections)
		stats.MatchConnections[strconv.FormatInt(matchID, 10)] = len(connections)
	}
	return stats
}

// CloseAll closes every open connection. The disconnect hook still runs for each user.
func (cm *ConnectionManager) CloseAll() {
	cm.mu.RLock()
	var all []*Connection
	for _, connections := range cm.matchConnections {
		for conn := range connections {
			all = append(all, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range all {
		cm.unregisterConnection(conn)
	}
}

// deliver is the hub callback of a connection.
func (c *Connection) deliver(env *events.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return c.queue(data)
}

func (c *Connection) reply(r Reply) {
	data, err := json.Marshal(r)
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to marshal reply")
		return
	}
	if err := c.queue(data); err != nil {
		log.Warn().Err(err).Str("connection_id", c.ID).Msg("failed to queue reply")
	}
}

func (c *Connection) queue(data []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errConnectionClosed
	}
	select {
	case c.Send <- data:
		c.mu.Unlock()
		return nil
	default:
	}
	c.mu.Unlock()

	// Slow consumer. Closing the socket ends the read pump, which unregisters.
	log.Warn().
		Str("connection_id", c.ID).
		Int64("user_id", c.UserID).
		Msg("connection send buffer full, closing connection")
	_ = c.Conn.Close()
	return errSendBufferFull
}

func (c *Connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
	c.cancel()
}

// writePump handles sending messages to the websocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to websocket")
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump reads client commands until the socket closes
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected websocket close error")
			}
			return
		}

		c.handleClientMessage(message)
		_ = c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage runs one client command and queues its reply
func (c *Connection) handleClientMessage(message []byte) {
	var cmd Command
	if err := json.Unmarshal(message, &cmd); err != nil {
		c.reply(errorReply(Command{}, errclass.ErrValidation.WithMessagef("malformed command: %v", err), c.MatchID, c.UserID))
		return
	}
	if cmd.Type == CommandRequestJoin && len(cmd.Data) == 0 && c.UserName != "" {
		cmd.Data, _ = json.Marshal(requestJoinData{DisplayName: c.UserName})
	}

	log.Debug().
		Str("connection_id", c.ID).
		Int64("user_id", c.UserID).
		Str("command", string(cmd.Type)).
		Msg("received client command")

	ctx, cancel := context.WithTimeout(c.ctx, c.Manager.config.CommandTimeout)
	defer cancel()
	c.reply(c.Manager.dispatcher.Dispatch(ctx, c.MatchID, c.UserID, cmd))
}
