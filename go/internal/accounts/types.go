package accounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/breakroom/go/internal/models"
)

const (
	RefreshTokenExpiry = 7 * 24 * time.Hour
	MinPasswordLength  = 8
	maxPasswordLength  = 72 // bcrypt ignores anything longer
)

// RegisterRequest represents a new member signing up with a password.
type RegisterRequest struct {
	Email    string
	Password string
	FullName *string
}

// NewAccount is a validated registration ready to be stored.
type NewAccount struct {
	ID           uuid.UUID
	Email        string
	FullName     *string
	PasswordHash []byte
}

// RefreshToken is a stored refresh token. Only its hash is kept.
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// Tokens is what a successful sign-in, registration or refresh hands back.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int // access token lifetime in seconds
	User         models.Actor
}
