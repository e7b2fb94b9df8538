package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mcdev12/breakroom/go/internal/auth"
	"github.com/mcdev12/breakroom/go/internal/gameerr"
	"github.com/mcdev12/breakroom/go/internal/models"
	"github.com/rs/zerolog/log"
)

// UsersRepository defines what the app layer needs from the repository
type UsersRepository interface {
	GetActor(ctx context.Context, id uuid.UUID) (*models.Actor, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, req UpdateProfileRequest) (*models.Actor, error)
}

// App handles profile business logic
type App struct {
	repo UsersRepository
}

// NewApp creates a new users App
func NewApp(repo UsersRepository) *App {
	return &App{
		repo: repo,
	}
}

// GetActor loads a profile; it backs token authentication.
func (a *App) GetActor(ctx context.Context, id uuid.UUID) (*models.Actor, error) {
	actor, err := a.repo.GetActor(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get actor: %w", err)
	}
	return actor, nil
}

// GetCurrentUser returns the caller's profile and role permissions
func (a *App) GetCurrentUser(ctx context.Context) (*models.Actor, models.RolePermissions, error) {
	actor, err := auth.ActorFrom(ctx)
	if err != nil {
		return nil, models.RolePermissions{}, err
	}
	return actor, models.PermissionsFor(actor.Role), nil
}

// UpdateProfile edits the caller's own profile
func (a *App) UpdateProfile(ctx context.Context, req UpdateProfileRequest) (*models.Actor, error) {
	actor, err := auth.ActorFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.validateUpdateProfileRequest(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	updated, err := a.repo.UpdateProfile(ctx, actor.ID, req)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	log.Info().Str("user_id", updated.ID.String()).Msg("updated profile")
	return updated, nil
}

// validateUpdateProfileRequest validates update profile request
func (a *App) validateUpdateProfileRequest(req UpdateProfileRequest) error {
	if req.FullName != nil && strings.TrimSpace(*req.FullName) == "" {
		return fmt.Errorf("%w: full_name cannot be empty", gameerr.ErrInvalidArgument)
	}
	if req.AvatarURL != nil && *req.AvatarURL != "" && !strings.HasPrefix(*req.AvatarURL, "http") {
		return fmt.Errorf("%w: avatar_url must be an http(s) URL", gameerr.ErrInvalidArgument)
	}
	return nil
}
