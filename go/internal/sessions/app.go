package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/breakroom/go/internal/auth"
	"github.com/mcdev12/breakroom/go/internal/gameerr"
	"github.com/mcdev12/breakroom/go/internal/models"
	"github.com/rs/zerolog/log"
)

// SessionsRepository defines what the app layer needs from the repository
type SessionsRepository interface {
	ListSessions(ctx context.Context, viewerID uuid.UUID, all bool) ([]models.Session, error)
	ListSessionsByCreator(ctx context.Context, creatorID uuid.UUID) ([]models.Session, error)
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	CreateSession(ctx context.Context, ns NewSession) (*models.Session, error)
	MutateSession(ctx context.Context, id uuid.UUID, fn Mutation) (*models.Session, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error
	ListActiveSessionIDs(ctx context.Context, startedBefore *time.Time) ([]uuid.UUID, error)
	ArchiveFinished(ctx context.Context, cutoff time.Time) (int, error)
}

// QuestionSource supplies trivia questions for a new game.
type QuestionSource interface {
	Draw(n int) []models.Question
}

// App handles the session directory and lifecycle
type App struct {
	repo      SessionsRepository
	questions QuestionSource
	clock     clockwork.Clock
	cfg       Config
}

// NewApp creates a new sessions App
func NewApp(repo SessionsRepository, questions QuestionSource, clock clockwork.Clock, cfg Config) *App {
	if cfg.DefaultMinPlayers <= 0 {
		cfg.DefaultMinPlayers = models.DefaultMinPlayers
	}
	return &App{
		repo:      repo,
		questions: questions,
		clock:     clock,
		cfg:       cfg,
	}
}

// ListSessions returns the sessions visible to the caller. Admins see every session.
func (a *App) ListSessions(ctx context.Context) ([]models.Session, error) {
	actor, err := auth.ActorFrom(ctx)
	if err != nil {
		return nil, err
	}
	sessions, err := a.repo.ListSessions(ctx, actor.ID, actor.IsAdmin())
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// ListMySessions returns the sessions the caller created
func (a *App) ListMySessions(ctx context.Context) ([]models.Session, error) {
	actor, err := auth.ActorFrom(ctx)
	if err != nil {
		return nil, err
	}
	sessions, err := a.repo.ListSessionsByCreator(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list my sessions: %w", err)
	}
	return sessions, nil
}

// GetSession retrieves a session the caller is allowed to see
func (a *App) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	actor, err := auth.ActorFrom(ctx)
	if err != nil {
		return nil, err
	}
	s, err := a.repo.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if !s.IsActive && !s.CanBeManagedBy(actor) {
		return nil, fmt.Errorf("%w: session %s", gameerr.ErrNotFound, id)
	}
	return s, nil
}

// CreateSession creates a session owned by the caller
func (a *App) CreateSession(ctx context.Context, req CreateSessionRequest) (*models.Session, error) {
	actor, err := auth.ActorFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.validateCreateSessionRequest(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	minPlayers := a.cfg.DefaultMinPlayers
	if req.MinPlayers != nil {
		minPlayers = *req.MinPlayers
	}
	if req.MaxPlayers != nil && *req.MaxPlayers < minPlayers {
		return nil, fmt.Errorf("validation failed: %w: max_players must be at least min_players", gameerr.ErrInvalidArgument)
	}

	var seed json.RawMessage
	if req.Kind == models.GameKindPoll {
		seed, err = models.EncodeState(models.PollState{Question: req.PollQuestion, Options: req.PollOptions})
		if err != nil {
			return nil, err
		}
	}
	state, err := a.initialState(req.Kind, seed)
	if err != nil {
		return nil, err
	}

	s, err := a.repo.CreateSession(ctx, NewSession{
		Name:       strings.TrimSpace(req.Name),
		Kind:       req.Kind,
		CreatedBy:  actor.ID,
		MinPlayers: minPlayers,
		MaxPlayers: req.MaxPlayers,
		State:      state,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	log.Info().
		Str("session_id", s.ID.String()).
		Str("kind", string(s.Kind)).
		Str("created_by", actor.ID.String()).
		Msg("created session")
	return s, nil
}

// UpdateSession edits lobby settings. Running and finished sessions are frozen.
func (a *App) UpdateSession(ctx context.Context, id uuid.UUID, req UpdateSessionRequest) (*models.Session, error) {
	if _, err := a.authorize(ctx, id); err != nil {
		return nil, err
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return nil, fmt.Errorf("validation failed: %w: name cannot be empty", gameerr.ErrInvalidArgument)
	}
	if req.MinPlayers != nil && *req.MinPlayers < 1 {
		return nil, fmt.Errorf("validation failed: %w: min_players must be at least 1", gameerr.ErrInvalidArgument)
	}

	s, err := a.repo.MutateSession(ctx, id, func(s *models.Session) error {
		if !s.InLobby() {
			return fmt.Errorf("%w: cannot edit a %s session", gameerr.ErrInvalidTransition, s.SessionStatus)
		}
		if req.Name != nil {
			s.Name = strings.TrimSpace(*req.Name)
		}
		if req.MinPlayers != nil {
			s.MinPlayers = *req.MinPlayers
		}
		if req.ClearMaxPlayers {
			s.MaxPlayers = nil
		} else if req.MaxPlayers != nil {
			limit := *req.MaxPlayers
			s.MaxPlayers = &limit
		}
		if s.MaxPlayers != nil {
			if *s.MaxPlayers < s.MinPlayers {
				return fmt.Errorf("%w: max_players must be at least min_players", gameerr.ErrInvalidArgument)
			}
			if *s.MaxPlayers < s.CurrentPlayers {
				return fmt.Errorf("%w: max_players is below the current player count", gameerr.ErrInvalidArgument)
			}
		}
		s.SessionStatus = models.LobbyStatus(s.CurrentPlayers, s.MinPlayers)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	log.Info().Str("session_id", id.String()).Msg("updated session")
	return s, nil
}

// StartSession moves a ready session to active and resets its round state
func (a *App) StartSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	if _, err := a.authorize(ctx, id); err != nil {
		return nil, err
	}

	s, err := a.repo.MutateSession(ctx, id, func(s *models.Session) error {
		if !s.InLobby() {
			return fmt.Errorf("%w: cannot start a %s session", gameerr.ErrInvalidTransition, s.SessionStatus)
		}
		if s.CurrentPlayers < s.MinPlayers {
			return fmt.Errorf("%w: %d of %d players", gameerr.ErrNotReady, s.CurrentPlayers, s.MinPlayers)
		}
		state, err := a.initialState(s.Kind, s.State)
		if err != nil {
			return err
		}
		now := a.clock.Now().UTC()
		s.SessionStatus = models.SessionStatusActive
		s.SessionActive = true
		s.SessionStartedAt = &now
		s.SessionEndedAt = nil
		s.State = state
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	log.Info().
		Str("session_id", id.String()).
		Int("players", s.CurrentPlayers).
		Msg("started session")
	return s, nil
}

// EndSession returns an active session to the lobby. Participations are untouched.
func (a *App) EndSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	if _, err := a.authorize(ctx, id); err != nil {
		return nil, err
	}
	return a.endSession(ctx, id)
}

func (a *App) endSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	s, err := a.repo.MutateSession(ctx, id, func(s *models.Session) error {
		if s.SessionStatus != models.SessionStatusActive {
			return fmt.Errorf("%w: cannot end a %s session", gameerr.ErrInvalidTransition, s.SessionStatus)
		}
		now := a.clock.Now().UTC()
		s.SessionActive = false
		s.SessionEndedAt = &now
		s.SessionStatus = models.LobbyStatus(s.CurrentPlayers, s.MinPlayers)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to end session: %w", err)
	}

	log.Info().Str("session_id", id.String()).Str("status", string(s.SessionStatus)).Msg("ended session")
	return s, nil
}

// EndAllActiveSessions ends every running session, each in its own transaction.
// A failure for one session does not stop the others.
func (a *App) EndAllActiveSessions(ctx context.Context) (models.BulkResult, error) {
	actor, err := auth.ActorFrom(ctx)
	if err != nil {
		return models.BulkResult{}, err
	}
	if !actor.IsAdmin() {
		return models.BulkResult{}, fmt.Errorf("%w: only administrators can end all sessions", gameerr.ErrForbidden)
	}

	ids, err := a.repo.ListActiveSessionIDs(ctx, nil)
	if err != nil {
		return models.BulkResult{}, fmt.Errorf("failed to list active sessions: %w", err)
	}

	result := a.endEach(ctx, ids)
	log.Info().
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Msg("ended all active sessions")
	return result, nil
}

// EndStaleSessions ends sessions that have been running since before cutoff.
func (a *App) EndStaleSessions(ctx context.Context, cutoff time.Time) (models.BulkResult, error) {
	ids, err := a.repo.ListActiveSessionIDs(ctx, &cutoff)
	if err != nil {
		return models.BulkResult{}, fmt.Errorf("failed to list stale sessions: %w", err)
	}
	return a.endEach(ctx, ids), nil
}

func (a *App) endEach(ctx context.Context, ids []uuid.UUID) models.BulkResult {
	result := models.BulkResult{Results: make([]models.EndResult, 0, len(ids))}
	for _, id := range ids {
		_, err := a.endSession(ctx, id)
		if err != nil {
			log.Warn().Err(err).Str("session_id", id.String()).Msg("failed to end session")
			result.Failed++
			result.Results = append(result.Results, models.EndResult{
				SessionID: id,
				Code:      gameerr.Code(err).String(),
				Message:   err.Error(),
			})
			continue
		}
		result.Succeeded++
		result.Results = append(result.Results, models.EndResult{SessionID: id, Ended: true})
	}
	return result
}

// FinishSession marks an active session finished. Finished sessions take no more gameplay.
func (a *App) FinishSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	if _, err := a.authorize(ctx, id); err != nil {
		return nil, err
	}

	s, err := a.repo.MutateSession(ctx, id, func(s *models.Session) error {
		if s.SessionStatus != models.SessionStatusActive {
			return fmt.Errorf("%w: cannot finish a %s session", gameerr.ErrInvalidTransition, s.SessionStatus)
		}
		now := a.clock.Now().UTC()
		s.SessionActive = false
		s.SessionEndedAt = &now
		s.SessionStatus = models.SessionStatusFinished
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to finish session: %w", err)
	}

	log.Info().Str("session_id", id.String()).Msg("finished session")
	return s, nil
}

// DeleteSession deletes a session and its participations
func (a *App) DeleteSession(ctx context.Context, id uuid.UUID) error {
	s, err := a.authorize(ctx, id)
	if err != nil {
		return err
	}
	if err := a.repo.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	log.Info().Str("session_id", id.String()).Str("name", s.Name).Msg("deleted session")
	return nil
}

// ArchiveFinished hides finished sessions untouched since cutoff from member listings.
func (a *App) ArchiveFinished(ctx context.Context, cutoff time.Time) (int, error) {
	n, err := a.repo.ArchiveFinished(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to archive finished sessions: %w", err)
	}
	return n, nil
}

// authorize loads the session and checks the caller may manage it.
func (a *App) authorize(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	actor, err := auth.ActorFrom(ctx)
	if err != nil {
		return nil, err
	}
	s, err := a.repo.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if !s.CanBeManagedBy(actor) {
		return nil, fmt.Errorf("%w: only the creator or an administrator can manage this session", gameerr.ErrForbidden)
	}
	return s, nil
}

// initialState builds the waiting state for kind. Trivia draws a fresh question set.
func (a *App) initialState(kind models.GameKind, seed json.RawMessage) (json.RawMessage, error) {
	var questions []models.Question
	if kind == models.GameKindTrivia {
		if a.questions == nil {
			return nil, errors.New("no question source configured for trivia")
		}
		questions = a.questions.Draw(a.cfg.QuestionsPerGame)
	}
	return models.InitialState(kind, questions, a.cfg.TriviaWindowSec, seed)
}

// validateCreateSessionRequest validates create session request
func (a *App) validateCreateSessionRequest(req CreateSessionRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return fmt.Errorf("%w: name is required", gameerr.ErrInvalidArgument)
	}
	if !req.Kind.Valid() {
		return fmt.Errorf("%w: unknown game type %q", gameerr.ErrInvalidArgument, req.Kind)
	}
	if req.MinPlayers != nil && *req.MinPlayers < 1 {
		return fmt.Errorf("%w: min_players must be at least 1", gameerr.ErrInvalidArgument)
	}
	if req.Kind == models.GameKindPoll {
		if strings.TrimSpace(req.PollQuestion) == "" {
			return fmt.Errorf("%w: poll question is required", gameerr.ErrInvalidArgument)
		}
		if len(req.PollOptions) < 2 {
			return fmt.Errorf("%w: a poll needs at least two options", gameerr.ErrInvalidArgument)
		}
	}
	return nil
}
