package accounts

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/breakroom/go/internal/models"
	"github.com/mcdev12/breakroom/go/internal/sqlutil"
	"github.com/mcdev12/breakroom/go/internal/users"
)

// Repository implements credential and refresh token storage
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new accounts repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		db: db,
	}
}

// queries binds the account statements to a connection or transaction.
type queries struct {
	db       sqlutil.DBTX
	profiles *users.Repository
}

func txQueries(tx *sql.Tx) *queries {
	return &queries{db: tx, profiles: users.NewRepository(tx)}
}

// CreateAccount inserts the profile and its password hash in one transaction.
func (r *Repository) CreateAccount(ctx context.Context, acct NewAccount) (*models.Actor, error) {
	var created *models.Actor
	err := sqlutil.Run(ctx, r.db, txQueries, func(q *queries) error {
		actor, err := q.profiles.CreateProfile(ctx, acct.ID, acct.Email, acct.FullName)
		if err != nil {
			return err
		}
		if _, err := q.db.ExecContext(ctx, `
			INSERT INTO credentials (user_id, password_hash)
			VALUES ($1, $2)`, acct.ID, string(acct.PasswordHash)); err != nil {
			return fmt.Errorf("failed to store credentials: %w", sqlutil.Classify(err))
		}
		created = actor
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetCredentials returns the user id and password hash registered for email.
func (r *Repository) GetCredentials(ctx context.Context, email string) (uuid.UUID, []byte, error) {
	var (
		id   uuid.UUID
		hash string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT p.id, c.password_hash
		FROM profiles p JOIN credentials c ON c.user_id = p.id
		WHERE p.email = $1`, email).Scan(&id, &hash)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("failed to get credentials: %w", sqlutil.Classify(err))
	}
	return id, []byte(hash), nil
}

// GetPasswordHash returns a user's password hash.
func (r *Repository) GetPasswordHash(ctx context.Context, userID uuid.UUID) ([]byte, error) {
	var hash string
	err := r.db.QueryRowContext(ctx, `SELECT password_hash FROM credentials WHERE user_id = $1`, userID).Scan(&hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get password hash: %w", sqlutil.Classify(err))
	}
	return []byte(hash), nil
}

// SetPassword replaces the password hash and revokes every refresh token the user holds.
func (r *Repository) SetPassword(ctx context.Context, userID uuid.UUID, hash []byte) error {
	return sqlutil.Run(ctx, r.db, txQueries, func(q *queries) error {
		res, err := q.db.ExecContext(ctx, `
			UPDATE credentials SET password_hash = $2, updated_at = now()
			WHERE user_id = $1`, userID, string(hash))
		if err != nil {
			return fmt.Errorf("failed to update password: %w", sqlutil.Classify(err))
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("failed to update password: %w", sqlutil.Classify(sql.ErrNoRows))
		}
		if _, err := q.db.ExecContext(ctx, `
			UPDATE refresh_tokens SET revoked = true
			WHERE user_id = $1 AND NOT revoked`, userID); err != nil {
			return fmt.Errorf("failed to revoke refresh tokens: %w", sqlutil.Classify(err))
		}
		return nil
	})
}

// InsertRefreshToken stores a newly issued refresh token
func (r *Repository) InsertRefreshToken(ctx context.Context, t RefreshToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)`, t.ID, t.UserID, t.TokenHash, t.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to store refresh token: %w", sqlutil.Classify(err))
	}
	return nil
}

// GetRefreshToken looks a refresh token up by its hash, revoked or not.
func (r *Repository) GetRefreshToken(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	var t RefreshToken
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, expires_at, revoked, created_at
		FROM refresh_tokens WHERE token_hash = $1`, tokenHash).
		Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.Revoked, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", sqlutil.Classify(err))
	}
	return &t, nil
}

// RevokeRefreshToken marks a token revoked. Revoking an unknown token is not an error.
func (r *Repository) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = true WHERE token_hash = $1`, tokenHash); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", sqlutil.Classify(err))
	}
	return nil
}
