package sessions

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/breakroom/go/internal/models"
	"github.com/mcdev12/breakroom/go/internal/sqlutil"
)

// Repository implements session data access. Every write commits together with its change-feed row.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new sessions repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		db: db,
	}
}

// ListSessions returns the sessions a viewer may see, newest first.
// With all set every session is returned; otherwise listed sessions and the viewer's own.
func (r *Repository) ListSessions(ctx context.Context, viewerID uuid.UUID, all bool) ([]models.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE $1 OR is_active OR created_by = $2
		ORDER BY created_at DESC`, all, viewerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", sqlutil.Classify(err))
	}
	return collectSessions(rows)
}

// ListSessionsByCreator returns sessions created by creatorID, newest first
func (r *Repository) ListSessionsByCreator(ctx context.Context, creatorID uuid.UUID) ([]models.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE created_by = $1
		ORDER BY created_at DESC`, creatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions by creator: %w", sqlutil.Classify(err))
	}
	return collectSessions(rows)
}

// GetSession retrieves a session by ID
func (r *Repository) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return NewQueries(r.db).GetSession(ctx, id)
}

// CreateSession inserts a session in the waiting status
func (r *Repository) CreateSession(ctx context.Context, ns NewSession) (*models.Session, error) {
	var created *models.Session
	err := sqlutil.Run(ctx, r.db, txQueries, func(q *Queries) error {
		row := q.db.QueryRowContext(ctx, `
			INSERT INTO sessions (name, kind, created_by, min_players, max_players, session_status, state)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING `+sessionColumns,
			ns.Name,
			string(ns.Kind),
			ns.CreatedBy,
			ns.MinPlayers,
			sqlutil.ToSqlInt32(ns.MaxPlayers),
			string(models.SessionStatusWaiting),
			sqlutil.ToNullRawMessage(ns.State),
		)
		s, err := scanSession(row)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", sqlutil.Classify(err))
		}
		if err := q.RecordChange(ctx, models.TableSessions, models.ChangeOpInsert, s.ID, s.ID); err != nil {
			return err
		}
		created = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// MutateSession locks a session, applies fn and saves the result.
func (r *Repository) MutateSession(ctx context.Context, id uuid.UUID, fn Mutation) (*models.Session, error) {
	var updated *models.Session
	err := sqlutil.Run(ctx, r.db, txQueries, func(q *Queries) error {
		s, err := q.LockSession(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(s); err != nil {
			return err
		}
		if err := q.SaveSession(ctx, s); err != nil {
			return err
		}
		if err := q.RecordChange(ctx, models.TableSessions, models.ChangeOpUpdate, s.ID, s.ID); err != nil {
			return err
		}
		updated = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteSession hard-deletes a session; participations cascade.
func (r *Repository) DeleteSession(ctx context.Context, id uuid.UUID) error {
	return sqlutil.Run(ctx, r.db, txQueries, func(q *Queries) error {
		res, err := q.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete session: %w", sqlutil.Classify(err))
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("failed to delete session: %w", sqlutil.Classify(sql.ErrNoRows))
		}
		return q.RecordChange(ctx, models.TableSessions, models.ChangeOpDelete, id, id)
	})
}

// ListActiveSessionIDs returns running sessions, optionally only those started before startedBefore.
func (r *Repository) ListActiveSessionIDs(ctx context.Context, startedBefore *time.Time) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM sessions
		WHERE session_active
		  AND ($1::timestamptz IS NULL OR session_started_at < $1)
		ORDER BY session_started_at`, sqlutil.ToSqlTime(startedBefore))
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", sqlutil.Classify(err))
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ArchiveFinished hides finished sessions last updated before cutoff from member listings.
func (r *Repository) ArchiveFinished(ctx context.Context, cutoff time.Time) (int, error) {
	var archived int
	err := sqlutil.Run(ctx, r.db, txQueries, func(q *Queries) error {
		rows, err := q.db.QueryContext(ctx, `
			UPDATE sessions SET is_active = false, updated_at = now()
			WHERE is_active AND session_status = $1 AND updated_at < $2
			RETURNING id`, string(models.SessionStatusFinished), cutoff)
		if err != nil {
			return fmt.Errorf("failed to archive finished sessions: %w", sqlutil.Classify(err))
		}
		var ids []uuid.UUID
		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan archived session id: %w", err)
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range ids {
			if err := q.RecordChange(ctx, models.TableSessions, models.ChangeOpUpdate, id, id); err != nil {
				return err
			}
		}
		archived = len(ids)
		return nil
	})
	return archived, err
}

func collectSessions(rows *sql.Rows) ([]models.Session, error) {
	defer rows.Close()

	sessions := []models.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", sqlutil.Classify(err))
	}
	return sessions, nil
}
