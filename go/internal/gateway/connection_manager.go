package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/breakroom/go/internal/metrics"
	"github.com/mcdev12/breakroom/go/internal/models"
	"github.com/rs/zerolog/log"
)

// ConnectionManager fans change hints out to WebSocket subscribers grouped by scope.
// A scope is a session id or models.ScopeAll.
type ConnectionManager struct {
	scopes map[string]map[*Connection]bool
	mu     sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan models.ChangeEvent
}

// Connection is one subscriber socket.
type Connection struct {
	ID      string
	UserID  uuid.UUID
	Scope   string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		scopes: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan models.ChangeEvent, 1000),
	}
}

// Start delivers queued hints until ctx is cancelled.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case event := <-cm.broadcastCh:
			cm.handleBroadcast(event)
		}
	}
}

// UpgradeConnection upgrades the request and subscribes the socket to scope.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userID uuid.UUID, scope string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		Scope:       scope,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}
	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_id", userID.String()).
		Str("scope", scope).
		Msg("WebSocket connection established")
	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.scopes[conn.Scope] == nil {
		cm.scopes[conn.Scope] = make(map[*Connection]bool)
	}
	cm.scopes[conn.Scope][conn] = true
	metrics.GatewayConnectionOpened()
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	connections, ok := cm.scopes[conn.Scope]
	if !ok || !connections[conn] {
		return
	}
	delete(connections, conn)
	close(conn.Send)
	if len(connections) == 0 {
		delete(cm.scopes, conn.Scope)
	}
	metrics.GatewayConnectionClosed()

	log.Info().
		Str("connection_id", conn.ID).
		Str("user_id", conn.UserID.String()).
		Str("scope", conn.Scope).
		Msg("connection unregistered")
}

// Broadcast queues a hint for delivery. Hints are dropped when the queue is full;
// subscribers recover through their periodic refresh.
func (cm *ConnectionManager) Broadcast(event models.ChangeEvent) {
	select {
	case cm.broadcastCh <- event:
	default:
		log.Warn().Str("session_id", event.SessionID.String()).Msg("broadcast channel full, dropping change")
	}
}

// handleBroadcast sends event to the session's scope and to the all scope. Sends happen under
// the read lock so unregisterConnection cannot close a Send channel mid-delivery.
func (cm *ConnectionManager) handleBroadcast(event models.ChangeEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal change for broadcast")
		return
	}

	var delivered int
	var slow []*Connection
	cm.mu.RLock()
	for _, scope := range []string{event.SessionID.String(), models.ScopeAll} {
		for conn := range cm.scopes[scope] {
			select {
			case conn.Send <- data:
				delivered++
			default:
				slow = append(slow, conn)
			}
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("user_id", conn.UserID.String()).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Str("table", event.Table).
		Str("session_id", event.SessionID.String()).
		Int("connections", delivered).
		Msg("change broadcasted")
}

// ConnectionStats summarizes open subscriptions.
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ScopeCount       int            `json:"scope_count"`
	Scopes           map[string]int `json:"scopes,omitempty"`
}

// Counts drops the per-scope breakdown, which names the sessions being watched.
func (s ConnectionStats) Counts() ConnectionStats {
	s.Scopes = nil
	return s
}

// Stats returns statistics about active connections
func (cm *ConnectionManager) Stats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{Scopes: make(map[string]int, len(cm.scopes))}
	for scope, connections := range cm.scopes {
		stats.TotalConnections += len(connections)
		stats.Scopes[scope] = len(connections)
	}
	stats.ScopeCount = len(stats.Scopes)
	return stats
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump only services pongs and close frames; subscribers never send commands.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected WebSocket close error")
			}
			return
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
