package accounts

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/breakroom/go/internal/auth"
	"github.com/mcdev12/breakroom/go/internal/gameerr"
	"github.com/mcdev12/breakroom/go/internal/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// AccountsRepository defines what the app layer needs from the repository
type AccountsRepository interface {
	CreateAccount(ctx context.Context, acct NewAccount) (*models.Actor, error)
	GetCredentials(ctx context.Context, email string) (uuid.UUID, []byte, error)
	GetPasswordHash(ctx context.Context, userID uuid.UUID) ([]byte, error)
	SetPassword(ctx context.Context, userID uuid.UUID, hash []byte) error
	InsertRefreshToken(ctx context.Context, t RefreshToken) error
	GetRefreshToken(ctx context.Context, tokenHash string) (*RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
}

// ActorLoader loads a profile. *users.App satisfies it.
type ActorLoader interface {
	GetActor(ctx context.Context, id uuid.UUID) (*models.Actor, error)
}

// TokenIssuer signs access tokens. *auth.Signer satisfies it.
type TokenIssuer interface {
	GenerateAccessToken(userID uuid.UUID, email string, ttl time.Duration) (string, error)
}

var errBadCredentials = fmt.Errorf("%w: invalid email or password", gameerr.ErrUnauthenticated)

// App handles registration, password sign-in and refresh tokens
type App struct {
	repo      AccountsRepository
	actors    ActorLoader
	issuer    TokenIssuer
	clock     clockwork.Clock
	accessTTL time.Duration
	hashCost  int
}

type Option func(*App)

// WithHashCost sets the bcrypt cost used for new password hashes.
func WithHashCost(cost int) Option {
	return func(a *App) { a.hashCost = cost }
}

// WithAccessTTL sets the lifetime of issued access tokens.
func WithAccessTTL(ttl time.Duration) Option {
	return func(a *App) { a.accessTTL = ttl }
}

// NewApp creates a new accounts App
func NewApp(repo AccountsRepository, actors ActorLoader, issuer TokenIssuer, clock clockwork.Clock, opts ...Option) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	a := &App{
		repo:      repo,
		actors:    actors,
		issuer:    issuer,
		clock:     clock,
		accessTTL: auth.AccessTokenExpiry,
		hashCost:  bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Register creates a member account and signs it in
func (a *App) Register(ctx context.Context, req RegisterRequest) (*Tokens, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	if err := validatePassword(req.Password); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	if req.FullName != nil && strings.TrimSpace(*req.FullName) == "" {
		return nil, fmt.Errorf("validation failed: %w: full_name cannot be empty", gameerr.ErrInvalidArgument)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), a.hashCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	actor, err := a.repo.CreateAccount(ctx, NewAccount{
		ID:           uuid.New(),
		Email:        email,
		FullName:     req.FullName,
		PasswordHash: hash,
	})
	if errors.Is(err, gameerr.ErrConflict) {
		return nil, gameerr.ErrEmailTaken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	log.Info().Str("user_id", actor.ID.String()).Msg("registered account")
	return a.issue(ctx, actor)
}

// SignIn checks a password and issues a token pair. Unknown emails and wrong passwords
// fail the same way.
func (a *App) SignIn(ctx context.Context, email, password string) (*Tokens, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, errBadCredentials
	}
	userID, hash, err := a.repo.GetCredentials(ctx, email)
	if errors.Is(err, gameerr.ErrNotFound) {
		return nil, errBadCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to sign in: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		log.Info().Str("user_id", userID.String()).Msg("rejected sign-in")
		return nil, errBadCredentials
	}

	actor, err := a.actors.GetActor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to sign in: %w", err)
	}
	return a.issue(ctx, actor)
}

// Refresh exchanges a live refresh token for a new pair. The old refresh token is revoked.
func (a *App) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	tokenHash := hashToken(refreshToken)
	stored, err := a.repo.GetRefreshToken(ctx, tokenHash)
	if errors.Is(err, gameerr.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown refresh token", gameerr.ErrUnauthenticated)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to refresh: %w", err)
	}
	if stored.Revoked || !a.clock.Now().Before(stored.ExpiresAt) {
		return nil, fmt.Errorf("%w: refresh token expired or revoked", gameerr.ErrUnauthenticated)
	}

	actor, err := a.actors.GetActor(ctx, stored.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load profile: %v", gameerr.ErrUnauthenticated, err)
	}
	if err := a.repo.RevokeRefreshToken(ctx, tokenHash); err != nil {
		return nil, err
	}
	return a.issue(ctx, actor)
}

// SignOut revokes a refresh token. Signing out twice succeeds.
func (a *App) SignOut(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return fmt.Errorf("%w: refresh_token is required", gameerr.ErrInvalidArgument)
	}
	return a.repo.RevokeRefreshToken(ctx, hashToken(refreshToken))
}

// ChangePassword replaces the caller's password and signs out their other devices.
func (a *App) ChangePassword(ctx context.Context, current, next string) error {
	actor, err := auth.ActorFrom(ctx)
	if err != nil {
		return err
	}
	hash, err := a.repo.GetPasswordHash(ctx, actor.ID)
	if errors.Is(err, gameerr.ErrNotFound) {
		return fmt.Errorf("%w: account has no password", gameerr.ErrForbidden)
	}
	if err != nil {
		return fmt.Errorf("failed to change password: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(current)); err != nil {
		return errBadCredentials
	}
	if err := validatePassword(next); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(next), a.hashCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := a.repo.SetPassword(ctx, actor.ID, newHash); err != nil {
		return fmt.Errorf("failed to change password: %w", err)
	}

	log.Info().Str("user_id", actor.ID.String()).Msg("changed password")
	return nil
}

func (a *App) issue(ctx context.Context, actor *models.Actor) (*Tokens, error) {
	access, err := a.issuer.GenerateAccessToken(actor.ID, actor.Email, a.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	refresh, err := generateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	now := a.clock.Now()
	if err := a.repo.InsertRefreshToken(ctx, RefreshToken{
		ID:        uuid.New(),
		UserID:    actor.ID,
		TokenHash: hashToken(refresh),
		ExpiresAt: now.Add(RefreshTokenExpiry),
		CreatedAt: now,
	}); err != nil {
		return nil, err
	}

	return &Tokens{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(a.accessTTL.Seconds()),
		User:         *actor,
	}, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email address", gameerr.ErrInvalidArgument)
	}
	return email, nil
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", gameerr.ErrInvalidArgument, MinPasswordLength)
	}
	if len(password) > maxPasswordLength {
		return fmt.Errorf("%w: password must be at most %d bytes", gameerr.ErrInvalidArgument, maxPasswordLength)
	}
	return nil
}

func generateRefreshToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
