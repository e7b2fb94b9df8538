package users

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/breakroom/go/internal/models"
	"github.com/mcdev12/breakroom/go/internal/sqlutil"
)

const profileColumns = `id, email, full_name, avatar_url, role, department, created_at, updated_at`

// Repository implements profile data access operations
type Repository struct {
	db sqlutil.DBTX
}

// NewRepository creates a new users repository
func NewRepository(db sqlutil.DBTX) *Repository {
	return &Repository{
		db: db,
	}
}

// GetActor retrieves a profile by user ID
func (r *Repository) GetActor(ctx context.Context, id uuid.UUID) (*models.Actor, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
	actor, err := scanActor(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", sqlutil.Classify(err))
	}
	return actor, nil
}

// CreateProfile inserts a member profile. Bind the repository to a *sql.Tx to create it
// together with the caller's credentials.
func (r *Repository) CreateProfile(ctx context.Context, id uuid.UUID, email string, fullName *string) (*models.Actor, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO profiles (id, email, full_name, role)
		VALUES ($1, $2, $3, $4)
		RETURNING `+profileColumns,
		id, email, sqlutil.ToSqlString(fullName), string(models.RoleUser),
	)
	actor, err := scanActor(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", sqlutil.Classify(err))
	}
	return actor, nil
}

// UpdateProfile updates the editable profile fields, leaving nil fields unchanged
func (r *Repository) UpdateProfile(ctx context.Context, id uuid.UUID, req UpdateProfileRequest) (*models.Actor, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE profiles SET
			full_name  = COALESCE($2, full_name),
			avatar_url = COALESCE($3, avatar_url),
			department = COALESCE($4, department),
			updated_at = now()
		WHERE id = $1
		RETURNING `+profileColumns,
		id,
		sqlutil.ToSqlString(req.FullName),
		sqlutil.ToSqlString(req.AvatarURL),
		sqlutil.ToSqlString(req.Department),
	)
	actor, err := scanActor(row)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", sqlutil.Classify(err))
	}
	return actor, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanActor(row rowScanner) (*models.Actor, error) {
	var (
		a          models.Actor
		role       string
		fullName   sql.NullString
		avatarURL  sql.NullString
		department sql.NullString
	)
	if err := row.Scan(&a.ID, &a.Email, &fullName, &avatarURL, &role, &department, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Role = models.Role(role)
	a.FullName = sqlutil.FromSqlStringPtr(fullName)
	a.AvatarURL = sqlutil.FromSqlStringPtr(avatarURL)
	a.Department = sqlutil.FromSqlStringPtr(department)
	return &a, nil
}
