package participation

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/breakroom/go/internal/models"
	"github.com/mcdev12/breakroom/go/internal/sessions"
	"github.com/mcdev12/breakroom/go/internal/sqlutil"
)

const participationColumns = `p.id, p.session_id, p.user_id, p.joined_at, p.score, p.is_active,
	pr.full_name, pr.email, pr.avatar_url`

const participationFrom = ` FROM participations p JOIN profiles pr ON pr.id = p.user_id`

// Queries are the participation statements usable inside another package's transaction.
type Queries struct {
	db       sqlutil.DBTX
	Sessions *sessions.Queries
}

func NewQueries(db sqlutil.DBTX) *Queries {
	return &Queries{
		db:       db,
		Sessions: sessions.NewQueries(db),
	}
}

func txQueries(tx *sql.Tx) *Queries {
	return NewQueries(tx)
}

// GetParticipation returns the caller's row in a session, active or not.
func (q *Queries) GetParticipation(ctx context.Context, sessionID, userID uuid.UUID) (*models.Participation, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+participationColumns+participationFrom+`
		WHERE p.session_id = $1 AND p.user_id = $2`, sessionID, userID)
	p, err := scanParticipation(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get participation: %w", sqlutil.Classify(err))
	}
	return p, nil
}

// ListActive returns active participants in join order.
func (q *Queries) ListActive(ctx context.Context, sessionID uuid.UUID) ([]models.Participation, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+participationColumns+participationFrom+`
		WHERE p.session_id = $1 AND p.is_active
		ORDER BY p.joined_at ASC, p.id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", sqlutil.Classify(err))
	}
	defer rows.Close()

	participants := []models.Participation{}
	for rows.Next() {
		p, err := scanParticipation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participants: %w", sqlutil.Classify(err))
	}
	return participants, nil
}

// Activate creates the row or reactivates an earlier one, keeping its score.
func (q *Queries) Activate(ctx context.Context, sessionID, userID uuid.UUID) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO participations (session_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (session_id, user_id) DO UPDATE SET is_active = true, joined_at = now()
		RETURNING id`, sessionID, userID).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to activate participation: %w", sqlutil.Classify(err))
	}
	return id, nil
}

func (q *Queries) Deactivate(ctx context.Context, id uuid.UUID) error {
	if _, err := q.db.ExecContext(ctx, `UPDATE participations SET is_active = false WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to deactivate participation: %w", sqlutil.Classify(err))
	}
	return nil
}

func (q *Queries) CountActive(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM participations WHERE session_id = $1 AND is_active`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count participants: %w", sqlutil.Classify(err))
	}
	return n, nil
}

// AddScore adds points to a participant's running score.
func (q *Queries) AddScore(ctx context.Context, id uuid.UUID, points int) error {
	if _, err := q.db.ExecContext(ctx, `UPDATE participations SET score = score + $2 WHERE id = $1`, id, points); err != nil {
		return fmt.Errorf("failed to add score: %w", sqlutil.Classify(err))
	}
	return nil
}

// recount derives current_players and, in the lobby, the waiting/ready status.
func (q *Queries) recount(ctx context.Context, s *models.Session) error {
	n, err := q.CountActive(ctx, s.ID)
	if err != nil {
		return err
	}
	s.CurrentPlayers = n
	if s.InLobby() {
		s.SessionStatus = models.LobbyStatus(n, s.MinPlayers)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanParticipation(row rowScanner) (*models.Participation, error) {
	var (
		p         models.Participation
		fullName  sql.NullString
		avatarURL sql.NullString
		profile   models.ProfileSnapshot
	)
	err := row.Scan(&p.ID, &p.SessionID, &p.UserID, &p.JoinedAt, &p.Score, &p.IsActive,
		&fullName, &profile.Email, &avatarURL)
	if err != nil {
		return nil, err
	}
	profile.FullName = sqlutil.FromSqlString(fullName, "")
	profile.AvatarURL = sqlutil.FromSqlStringPtr(avatarURL)
	p.Profile = &profile
	return &p, nil
}
