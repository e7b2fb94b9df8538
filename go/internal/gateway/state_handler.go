package gateway

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/breakroom/go/internal/gameerr"
	"github.com/mcdev12/breakroom/go/internal/models"
	"github.com/mcdev12/breakroom/go/internal/participation"
	"github.com/rs/zerolog/log"
)

// StateProvider reads the rows a snapshot is built from
type StateProvider interface {
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	ListActive(ctx context.Context, sessionID uuid.UUID) ([]models.Participation, error)
}

// NewDBStateProvider reads snapshots straight from the database.
func NewDBStateProvider(db *sql.DB) StateProvider {
	q := participation.NewQueries(db)
	return dbStateProvider{Queries: q}
}

type dbStateProvider struct {
	*participation.Queries
}

func (p dbStateProvider) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return p.Sessions.GetSession(ctx, id)
}

// Snapshot is everything a late joiner needs to render a session.
type Snapshot struct {
	Session      models.Session         `json:"session"`
	Participants []models.Participation `json:"participants"`
	ServerTime   time.Time              `json:"server_time"`
}

// StateHandler serves session snapshots
type StateHandler struct {
	stateProvider StateProvider
	authenticator TokenAuthenticator
}

// NewStateHandler creates a new state handler
func NewStateHandler(provider StateProvider, authenticator TokenAuthenticator) *StateHandler {
	return &StateHandler{
		stateProvider: provider,
		authenticator: authenticator,
	}
}

// HandleGetSessionState handles GET /api/sessions/{id}/state
func (h *StateHandler) HandleGetSessionState(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}
	actor, err := authenticate(r, h.authenticator)
	if err != nil {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	snapshot, err := h.snapshot(r.Context(), id, actor)
	if err != nil {
		status := httpStatus(err)
		if status == http.StatusInternalServerError {
			log.Error().Err(err).Str("session_id", id.String()).Msg("failed to build session snapshot")
		}
		http.Error(w, http.StatusText(status), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		log.Error().Err(err).Msg("failed to encode session snapshot")
	}
}

func (h *StateHandler) snapshot(ctx context.Context, id uuid.UUID, actor *models.Actor) (*Snapshot, error) {
	s, err := h.stateProvider.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.IsActive && !s.CanBeManagedBy(actor) {
		return nil, gameerr.ErrNotFound
	}
	public, err := s.Public()
	if err != nil {
		return nil, err
	}

	participants, err := h.stateProvider.ListActive(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Session: public, Participants: participants, ServerTime: time.Now().UTC()}, nil
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sessions/{id}/state", h.HandleGetSessionState)
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, gameerr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, gameerr.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, gameerr.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
