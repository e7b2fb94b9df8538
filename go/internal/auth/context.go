package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/breakroom/go/internal/gameerr"
	"github.com/mcdev12/breakroom/go/internal/models"
)

type actorKey struct{}

// WithActor returns a context carrying the authenticated actor.
func WithActor(ctx context.Context, actor *models.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the authenticated actor, or ErrUnauthenticated.
func ActorFrom(ctx context.Context) (*models.Actor, error) {
	actor, ok := ctx.Value(actorKey{}).(*models.Actor)
	if !ok || actor == nil {
		return nil, fmt.Errorf("%w: no authenticated actor", gameerr.ErrUnauthenticated)
	}
	return actor, nil
}

// ActorLoader resolves a token subject to its profile, including role.
type ActorLoader interface {
	GetActor(ctx context.Context, id uuid.UUID) (*models.Actor, error)
}

// Authenticator turns a bearer header into an actor.
type Authenticator struct {
	signer *Signer
	actors ActorLoader
}

func NewAuthenticator(signer *Signer, actors ActorLoader) *Authenticator {
	return &Authenticator{signer: signer, actors: actors}
}

// Authenticate validates the header and loads the caller's profile.
// A valid token for a user with no profile is unauthenticated.
func (a *Authenticator) Authenticate(ctx context.Context, header string) (*models.Actor, error) {
	token, err := BearerToken(header)
	if err != nil {
		return nil, err
	}
	return a.AuthenticateToken(ctx, token)
}

// AuthenticateToken is Authenticate for a raw token, as sent by WebSocket clients.
func (a *Authenticator) AuthenticateToken(ctx context.Context, token string) (*models.Actor, error) {
	claims, err := a.signer.ValidateAccessToken(token)
	if err != nil {
		return nil, err
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, err
	}
	actor, err := a.actors.GetActor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load profile: %v", gameerr.ErrUnauthenticated, err)
	}
	return actor, nil
}
