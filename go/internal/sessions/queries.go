package sessions

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/breakroom/go/internal/models"
	"github.com/mcdev12/breakroom/go/internal/outbox"
	"github.com/mcdev12/breakroom/go/internal/sqlutil"
	"github.com/sqlc-dev/pqtype"
)

const sessionColumns = `id, name, kind, created_by, is_active, session_active, session_status,
	session_started_at, session_ended_at, min_players, max_players, current_players, state,
	created_at, updated_at`

// Queries are the session statements shared by every transaction that touches a session row.
// Participation and the arbiter bind them to their own *sql.Tx.
type Queries struct {
	db sqlutil.DBTX
}

func NewQueries(db sqlutil.DBTX) *Queries {
	return &Queries{
		db: db,
	}
}

func (q *Queries) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", sqlutil.Classify(err))
	}
	return s, nil
}

// LockSession reads a session and holds its row lock until the transaction ends.
func (q *Queries) LockSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1 FOR UPDATE`, id)
	s, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("failed to lock session: %w", sqlutil.Classify(err))
	}
	return s, nil
}

// SaveSession writes every mutable column of s and refreshes its updated_at.
func (q *Queries) SaveSession(ctx context.Context, s *models.Session) error {
	err := q.db.QueryRowContext(ctx, `
		UPDATE sessions SET
			name               = $2,
			is_active          = $3,
			session_active     = $4,
			session_status     = $5,
			session_started_at = $6,
			session_ended_at   = $7,
			min_players        = $8,
			max_players        = $9,
			current_players    = $10,
			state              = $11,
			updated_at         = now()
		WHERE id = $1
		RETURNING updated_at`,
		s.ID,
		s.Name,
		s.IsActive,
		s.SessionActive,
		string(s.SessionStatus),
		sqlutil.ToSqlTime(s.SessionStartedAt),
		sqlutil.ToSqlTime(s.SessionEndedAt),
		s.MinPlayers,
		sqlutil.ToSqlInt32(s.MaxPlayers),
		s.CurrentPlayers,
		sqlutil.ToNullRawMessage(s.State),
	).Scan(&s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", sqlutil.Classify(err))
	}
	return nil
}

// RecordChange writes a change-feed row in the current transaction.
func (q *Queries) RecordChange(ctx context.Context, table string, op models.ChangeOp, sessionID, recordID uuid.UUID) error {
	return outbox.NewRepository(q.db).InsertChange(ctx, table, op, sessionID, recordID)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		s          models.Session
		kind       string
		status     string
		startedAt  sql.NullTime
		endedAt    sql.NullTime
		maxPlayers sql.NullInt32
		state      pqtype.NullRawMessage
	)
	err := row.Scan(
		&s.ID, &s.Name, &kind, &s.CreatedBy, &s.IsActive, &s.SessionActive, &status,
		&startedAt, &endedAt, &s.MinPlayers, &maxPlayers, &s.CurrentPlayers, &state,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Kind = models.GameKind(kind)
	s.SessionStatus = models.SessionStatus(status)
	s.SessionStartedAt = sqlutil.FromSqlTime(startedAt)
	s.SessionEndedAt = sqlutil.FromSqlTime(endedAt)
	s.MaxPlayers = sqlutil.FromSqlInt32(maxPlayers)
	s.State = sqlutil.FromNullRawMessage(state)
	return &s, nil
}

func txQueries(tx *sql.Tx) *Queries {
	return NewQueries(tx)
}
