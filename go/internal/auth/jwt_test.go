package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/breakroom/go/internal/gameerr"
	"github.com/mcdev12/breakroom/go/internal/models"
)

type fakeActors map[uuid.UUID]*models.Actor

func (f fakeActors) GetActor(_ context.Context, id uuid.UUID) (*models.Actor, error) {
	if a, ok := f[id]; ok {
		return a, nil
	}
	return nil, gameerr.ErrNotFound
}

func TestTokenRoundTrip(t *testing.T) {
	s := NewSigner("test-secret")
	id := uuid.New()

	token, err := s.GenerateAccessToken(id, "sam@example.com", time.Hour)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	claims, err := s.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	got, err := claims.UserID()
	if err != nil || got != id {
		t.Errorf("UserID() = %v, %v; want %v", got, err, id)
	}
}

func TestValidateRejects(t *testing.T) {
	s := NewSigner("test-secret")
	id := uuid.New()

	expired, _ := s.GenerateAccessToken(id, "sam@example.com", -time.Minute)
	other, _ := NewSigner("other-secret").GenerateAccessToken(id, "sam@example.com", time.Hour)

	for name, token := range map[string]string{
		"expired":      expired,
		"wrong secret": other,
		"garbage":      "not.a.token",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := s.ValidateAccessToken(token); !errors.Is(err, gameerr.ErrUnauthenticated) {
				t.Errorf("err = %v, want ErrUnauthenticated", err)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	if tok, err := BearerToken("Bearer abc"); err != nil || tok != "abc" {
		t.Errorf("BearerToken() = %q, %v", tok, err)
	}
	for _, h := range []string{"", "abc", "Basic abc", "Bearer "} {
		if _, err := BearerToken(h); !errors.Is(err, gameerr.ErrUnauthenticated) {
			t.Errorf("BearerToken(%q) err = %v, want ErrUnauthenticated", h, err)
		}
	}
}

func TestAuthenticate(t *testing.T) {
	s := NewSigner("test-secret")
	known := &models.Actor{ID: uuid.New(), Email: "ada@example.com", Role: models.RoleAdmin}
	a := NewAuthenticator(s, fakeActors{known.ID: known})

	token, _ := s.GenerateAccessToken(known.ID, known.Email, time.Hour)
	actor, err := a.Authenticate(context.Background(), "Bearer "+token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !actor.IsAdmin() {
		t.Error("expected role loaded from profile")
	}

	stranger, _ := s.GenerateAccessToken(uuid.New(), "x@example.com", time.Hour)
	if _, err := a.Authenticate(context.Background(), "Bearer "+stranger); !errors.Is(err, gameerr.ErrUnauthenticated) {
		t.Errorf("unknown profile err = %v, want ErrUnauthenticated", err)
	}
}

func TestActorFrom(t *testing.T) {
	if _, err := ActorFrom(context.Background()); !errors.Is(err, gameerr.ErrUnauthenticated) {
		t.Errorf("empty ctx err = %v", err)
	}
	actor := &models.Actor{ID: uuid.New()}
	got, err := ActorFrom(WithActor(context.Background(), actor))
	if err != nil || got != actor {
		t.Errorf("ActorFrom() = %v, %v", got, err)
	}
}
