package participation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/breakroom/go/internal/gameerr"
	"github.com/mcdev12/breakroom/go/internal/models"
	"github.com/mcdev12/breakroom/go/internal/sqlutil"
)

// Repository implements participation data access. Membership changes lock the session row,
// so capacity and current_players are decided by one writer at a time.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new participation repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		db: db,
	}
}

// GetSession retrieves a session without locking it
func (r *Repository) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return NewQueries(r.db).Sessions.GetSession(ctx, id)
}

// ListParticipants returns active participants in join order with their profile snapshot
func (r *Repository) ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]models.Participation, error) {
	return NewQueries(r.db).ListActive(ctx, sessionID)
}

// Join activates the caller's participation if admit allows it.
// An already-active participant gets their row back without any write.
func (r *Repository) Join(ctx context.Context, sessionID, userID uuid.UUID, admit Admission) (*JoinResult, error) {
	var result JoinResult
	err := sqlutil.Run(ctx, r.db, txQueries, func(q *Queries) error {
		s, err := q.Sessions.LockSession(ctx, sessionID)
		if err != nil {
			return err
		}

		existing, err := q.GetParticipation(ctx, sessionID, userID)
		if err != nil && !errors.Is(err, gameerr.ErrNotFound) {
			return err
		}
		if existing != nil && existing.IsActive {
			result = JoinResult{Participation: *existing, Session: *s}
			return nil
		}

		if err := q.recount(ctx, s); err != nil {
			return err
		}
		if err := admit(s, existing); err != nil {
			return err
		}

		id, err := q.Activate(ctx, sessionID, userID)
		if err != nil {
			return err
		}
		if err := q.recount(ctx, s); err != nil {
			return err
		}
		if err := q.Sessions.SaveSession(ctx, s); err != nil {
			return err
		}

		op := models.ChangeOpInsert
		if existing != nil {
			op = models.ChangeOpUpdate
		}
		if err := q.Sessions.RecordChange(ctx, models.TableParticipations, op, sessionID, id); err != nil {
			return err
		}
		if err := q.Sessions.RecordChange(ctx, models.TableSessions, models.ChangeOpUpdate, sessionID, sessionID); err != nil {
			return err
		}

		p, err := q.GetParticipation(ctx, sessionID, userID)
		if err != nil {
			return err
		}
		result = JoinResult{Participation: *p, Session: *s, Joined: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Leave deactivates a participation. Leaving when not an active participant changes nothing.
func (r *Repository) Leave(ctx context.Context, sessionID, userID uuid.UUID) (*LeaveResult, error) {
	var result LeaveResult
	err := sqlutil.Run(ctx, r.db, txQueries, func(q *Queries) error {
		s, err := q.Sessions.LockSession(ctx, sessionID)
		if err != nil {
			return err
		}

		existing, err := q.GetParticipation(ctx, sessionID, userID)
		if errors.Is(err, gameerr.ErrNotFound) {
			result = LeaveResult{Session: *s}
			return nil
		}
		if err != nil {
			return err
		}
		if !existing.IsActive {
			result = LeaveResult{Session: *s}
			return nil
		}

		if err := q.Deactivate(ctx, existing.ID); err != nil {
			return err
		}
		if err := q.recount(ctx, s); err != nil {
			return err
		}
		if err := q.Sessions.SaveSession(ctx, s); err != nil {
			return err
		}
		if err := q.Sessions.RecordChange(ctx, models.TableParticipations, models.ChangeOpUpdate, sessionID, existing.ID); err != nil {
			return err
		}
		if err := q.Sessions.RecordChange(ctx, models.TableSessions, models.ChangeOpUpdate, sessionID, sessionID); err != nil {
			return err
		}

		result = LeaveResult{Session: *s, Left: true}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to leave session: %w", err)
	}
	return &result, nil
}
