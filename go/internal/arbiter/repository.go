package arbiter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/breakroom/go/internal/models"
	"github.com/mcdev12/breakroom/go/internal/participation"
	"github.com/mcdev12/breakroom/go/internal/sqlutil"
)

// Awards maps a participant's user ID to the points they earned in one resolution.
type Awards map[uuid.UUID]int

// Resolution decides one gameplay action against the locked session and its active
// participants in join order. It mutates s in place; returning errUnchanged commits nothing.
type Resolution func(s *models.Session, participants []models.Participation) (Awards, error)

// errUnchanged lets a Resolution bail out without writing, e.g. a timer for a round that already closed.
var errUnchanged = errors.New("arbiter: nothing to resolve")

// OpenRound is a trivia question whose answer window was open when it was read.
type OpenRound struct {
	SessionID uuid.UUID
	Question  int
	Deadline  time.Time
}

// Repository serializes gameplay actions per session with the session row lock.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new arbiter repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		db: db,
	}
}

func txQueries(tx *sql.Tx) *participation.Queries {
	return participation.NewQueries(tx)
}

// GetSession retrieves a session without locking it
func (r *Repository) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return participation.NewQueries(r.db).Sessions.GetSession(ctx, id)
}

// Resolve runs fn under the session lock and persists the new state, scores and change rows
// in the same transaction.
func (r *Repository) Resolve(ctx context.Context, id uuid.UUID, fn Resolution) (*models.Session, error) {
	var result *models.Session
	err := sqlutil.Run(ctx, r.db, txQueries, func(q *participation.Queries) error {
		s, err := q.Sessions.LockSession(ctx, id)
		if err != nil {
			return err
		}
		participants, err := q.ListActive(ctx, id)
		if err != nil {
			return err
		}

		awards, err := fn(s, participants)
		if errors.Is(err, errUnchanged) {
			result = s
			return nil
		}
		if err != nil {
			return err
		}

		for _, p := range participants {
			points, ok := awards[p.UserID]
			if !ok || points == 0 {
				continue
			}
			if err := q.AddScore(ctx, p.ID, points); err != nil {
				return err
			}
			if err := q.Sessions.RecordChange(ctx, models.TableParticipations, models.ChangeOpUpdate, id, p.ID); err != nil {
				return err
			}
		}

		if err := q.Sessions.SaveSession(ctx, s); err != nil {
			return err
		}
		if err := q.Sessions.RecordChange(ctx, models.TableSessions, models.ChangeOpUpdate, id, id); err != nil {
			return err
		}
		result = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListOpenRounds returns trivia questions still accepting answers, for timer recovery on startup.
func (r *Repository) ListOpenRounds(ctx context.Context) ([]OpenRound, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, state FROM sessions
		WHERE kind = $1 AND session_active AND state->>'status' = $2`,
		models.GameKindTrivia, models.RoundStatusQuestion)
	if err != nil {
		return nil, fmt.Errorf("failed to list open rounds: %w", sqlutil.Classify(err))
	}
	defer rows.Close()

	var rounds []OpenRound
	for rows.Next() {
		var (
			id  uuid.UUID
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan open round: %w", err)
		}
		var state models.TriviaState
		if err := models.DecodeState(raw, &state); err != nil {
			return nil, err
		}
		if state.RoundDeadline == nil {
			continue
		}
		rounds = append(rounds, OpenRound{
			SessionID: id,
			Question:  state.CurrentQuestion,
			Deadline:  *state.RoundDeadline,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate open rounds: %w", sqlutil.Classify(err))
	}
	return rounds, nil
}
