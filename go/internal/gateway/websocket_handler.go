package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/mcdev12/breakroom/go/internal/auth"
	"github.com/mcdev12/breakroom/go/internal/models"
	"github.com/rs/zerolog/log"
)

// TokenAuthenticator resolves a bearer token to an actor. *auth.Authenticator satisfies it.
type TokenAuthenticator interface {
	AuthenticateToken(ctx context.Context, token string) (*models.Actor, error)
}

// WebSocketHandler handles change-feed subscriptions
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	authenticator     TokenAuthenticator
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, authenticator TokenAuthenticator) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		authenticator:     authenticator,
	}
}

// HandleChanges handles GET /ws/changes?scope=<session-id|all>
func (h *WebSocketHandler) HandleChanges(w http.ResponseWriter, r *http.Request) {
	scope := r.URL.Query().Get("scope")
	if scope == "" {
		scope = models.ScopeAll
	}
	if scope != models.ScopeAll {
		id, err := uuid.Parse(scope)
		if err != nil {
			http.Error(w, "scope must be a session id or all", http.StatusBadRequest)
			return
		}
		scope = id.String()
	}

	actor, err := authenticate(r, h.authenticator)
	if err != nil {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	if err := h.connectionManager.UpgradeConnection(w, r, actor.ID, scope); err != nil {
		// The upgrader has already written an error response.
		log.Error().
			Err(err).
			Str("scope", scope).
			Str("user_id", actor.ID.String()).
			Msg("failed to upgrade WebSocket connection")
	}
}

// HandleConnectionStats returns statistics about active connections.
// Only admins see which scopes are subscribed; everyone else gets counts.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	actor, err := authenticate(r, h.authenticator)
	if err != nil {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	stats := h.connectionManager.Stats()
	if !actor.IsAdmin() {
		stats = stats.Counts()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/changes", h.HandleChanges)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}

// authenticate reads the token from the token query parameter, which browsers need for
// WebSockets, or from the Authorization header.
func authenticate(r *http.Request, authenticator TokenAuthenticator) (*models.Actor, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		var err error
		if token, err = auth.BearerToken(r.Header.Get("Authorization")); err != nil {
			return nil, err
		}
	}
	return authenticator.AuthenticateToken(r.Context(), token)
}
