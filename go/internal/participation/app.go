package participation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/breakroom/go/internal/auth"
	"github.com/mcdev12/breakroom/go/internal/gameerr"
	"github.com/mcdev12/breakroom/go/internal/guard"
	"github.com/mcdev12/breakroom/go/internal/metrics"
	"github.com/mcdev12/breakroom/go/internal/models"
	"github.com/rs/zerolog/log"
)

// ParticipationRepository defines what the app layer needs from the repository
type ParticipationRepository interface {
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]models.Participation, error)
	Join(ctx context.Context, sessionID, userID uuid.UUID, admit Admission) (*JoinResult, error)
	Leave(ctx context.Context, sessionID, userID uuid.UUID) (*LeaveResult, error)
}

// InFlightGuard collapses concurrent duplicates of the same request.
type InFlightGuard interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// App handles joining and leaving sessions
type App struct {
	repo  ParticipationRepository
	guard InFlightGuard
}

// NewApp creates a new participation App
func NewApp(repo ParticipationRepository, g InFlightGuard) *App {
	if g == nil {
		g = guard.Nop{}
	}
	return &App{
		repo:  repo,
		guard: g,
	}
}

// JoinSession adds the caller to a session. Joining twice is a no-op.
func (a *App) JoinSession(ctx context.Context, sessionID uuid.UUID) (*JoinResult, error) {
	actor, err := auth.ActorFrom(ctx)
	if err != nil {
		return nil, err
	}

	release, err := a.guard.Acquire(ctx, guard.Key("join", sessionID, actor.ID))
	if err != nil {
		metrics.RecordDuplicateSubmission("join")
		return nil, err
	}
	defer release()

	result, err := a.repo.Join(ctx, sessionID, actor.ID, admit)
	if err != nil {
		return nil, fmt.Errorf("failed to join session: %w", err)
	}

	if result.Joined {
		log.Info().
			Str("session_id", sessionID.String()).
			Str("user_id", actor.ID.String()).
			Int("current_players", result.Session.CurrentPlayers).
			Msg("joined session")
	}
	return result, nil
}

// LeaveSession removes the caller from a session. Leaving a session you are not in succeeds.
func (a *App) LeaveSession(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	actor, err := auth.ActorFrom(ctx)
	if err != nil {
		return nil, err
	}

	result, err := a.repo.Leave(ctx, sessionID, actor.ID)
	if err != nil {
		return nil, err
	}
	if result.Left {
		log.Info().
			Str("session_id", sessionID.String()).
			Str("user_id", actor.ID.String()).
			Msg("left session")
	}
	return &result.Session, nil
}

// RemoveParticipant removes another participant. Only the creator or an admin may do this.
func (a *App) RemoveParticipant(ctx context.Context, sessionID, userID uuid.UUID) (*models.Session, error) {
	actor, err := auth.ActorFrom(ctx)
	if err != nil {
		return nil, err
	}
	s, err := a.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if !s.CanBeManagedBy(actor) {
		return nil, fmt.Errorf("%w: only the creator or an administrator can remove participants", gameerr.ErrForbidden)
	}

	result, err := a.repo.Leave(ctx, sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to remove participant: %w", err)
	}
	if result.Left {
		log.Info().
			Str("session_id", sessionID.String()).
			Str("user_id", userID.String()).
			Str("removed_by", actor.ID.String()).
			Msg("removed participant")
	}
	return &result.Session, nil
}

// ListParticipants returns a session's active participants in join order
func (a *App) ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]models.Participation, error) {
	if _, err := auth.ActorFrom(ctx); err != nil {
		return nil, err
	}
	participants, err := a.repo.ListParticipants(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	return participants, nil
}

// admit rejects joins to finished or archived sessions and to full ones.
func admit(s *models.Session, _ *models.Participation) error {
	if !s.IsActive || s.SessionStatus == models.SessionStatusFinished {
		return fmt.Errorf("%w: session %s is %s", gameerr.ErrSessionInactive, s.ID, s.SessionStatus)
	}
	if s.IsFull() {
		return fmt.Errorf("%w: %d of %d players", gameerr.ErrSessionFull, s.CurrentPlayers, *s.MaxPlayers)
	}
	return nil
}
