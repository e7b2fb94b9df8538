package accounts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/breakroom/go/internal/auth"
	"github.com/mcdev12/breakroom/go/internal/gameerr"
	"github.com/mcdev12/breakroom/go/internal/models"
	"golang.org/x/crypto/bcrypt"
)

type fakeRepo struct {
	mu      sync.Mutex
	actors  map[uuid.UUID]*models.Actor
	emails  map[string]uuid.UUID
	hashes  map[uuid.UUID][]byte
	refresh map[string]*RefreshToken
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		actors:  map[uuid.UUID]*models.Actor{},
		emails:  map[string]uuid.UUID{},
		hashes:  map[uuid.UUID][]byte{},
		refresh: map[string]*RefreshToken{},
	}
}

func (f *fakeRepo) CreateAccount(_ context.Context, acct NewAccount) (*models.Actor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.emails[acct.Email]; ok {
		return nil, fmt.Errorf("failed to create profile: %w: duplicate key", gameerr.ErrConflict)
	}
	a := &models.Actor{ID: acct.ID, Email: acct.Email, FullName: acct.FullName, Role: models.RoleUser}
	f.actors[a.ID] = a
	f.emails[a.Email] = a.ID
	f.hashes[a.ID] = acct.PasswordHash
	return a, nil
}

func (f *fakeRepo) GetCredentials(_ context.Context, email string) (uuid.UUID, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.emails[email]
	if !ok {
		return uuid.Nil, nil, gameerr.ErrNotFound
	}
	return id, f.hashes[id], nil
}

func (f *fakeRepo) GetPasswordHash(_ context.Context, userID uuid.UUID) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.hashes[userID]
	if !ok {
		return nil, gameerr.ErrNotFound
	}
	return h, nil
}

func (f *fakeRepo) SetPassword(_ context.Context, userID uuid.UUID, hash []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hashes[userID] = hash
	for _, t := range f.refresh {
		if t.UserID == userID {
			t.Revoked = true
		}
	}
	return nil
}

func (f *fakeRepo) InsertRefreshToken(_ context.Context, t RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh[t.TokenHash] = &t
	return nil
}

func (f *fakeRepo) GetRefreshToken(_ context.Context, tokenHash string) (*RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.refresh[tokenHash]
	if !ok {
		return nil, gameerr.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeRepo) RevokeRefreshToken(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.refresh[tokenHash]; ok {
		t.Revoked = true
	}
	return nil
}

func (f *fakeRepo) GetActor(_ context.Context, id uuid.UUID) (*models.Actor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.actors[id]; ok {
		return a, nil
	}
	return nil, gameerr.ErrNotFound
}

const secret = "test-secret"

func newTestApp() (*App, *fakeRepo, *clockwork.FakeClock) {
	repo := newFakeRepo()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	app := NewApp(repo, repo, auth.NewSigner(secret), clock, WithHashCost(bcrypt.MinCost), WithAccessTTL(10*time.Minute))
	return app, repo, clock
}

func register(t *testing.T, app *App, email, password string) *Tokens {
	t.Helper()
	tokens, err := app.Register(context.Background(), RegisterRequest{Email: email, Password: password})
	if err != nil {
		t.Fatalf("Register(%s): %v", email, err)
	}
	return tokens
}

func TestRegisterAndSignIn(t *testing.T) {
	app, _, _ := newTestApp()

	reg := register(t, app, "  Sam@Example.com ", "correct horse")
	if reg.User.Email != "sam@example.com" {
		t.Errorf("email = %q, want it normalized", reg.User.Email)
	}
	if reg.ExpiresIn != 600 {
		t.Errorf("expires_in = %d, want 600", reg.ExpiresIn)
	}
	claims, err := auth.NewSigner(secret).ValidateAccessToken(reg.AccessToken)
	if err != nil {
		t.Fatalf("access token rejected: %v", err)
	}
	if id, _ := claims.UserID(); id != reg.User.ID {
		t.Errorf("token subject = %v, want %v", id, reg.User.ID)
	}

	got, err := app.SignIn(context.Background(), "sam@example.com", "correct horse")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if got.User.ID != reg.User.ID {
		t.Errorf("signed in as %v, want %v", got.User.ID, reg.User.ID)
	}
	if got.RefreshToken == reg.RefreshToken {
		t.Error("sign-in reused the registration refresh token")
	}
}

func TestRegisterValidation(t *testing.T) {
	app, _, _ := newTestApp()
	blank := "  "

	cases := []struct {
		name string
		req  RegisterRequest
	}{
		{"bad email", RegisterRequest{Email: "not-an-email", Password: "long enough"}},
		{"display name form", RegisterRequest{Email: "Sam <sam@example.com>", Password: "long enough"}},
		{"short password", RegisterRequest{Email: "sam@example.com", Password: "short"}},
		{"blank name", RegisterRequest{Email: "sam@example.com", Password: "long enough", FullName: &blank}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := app.Register(context.Background(), tc.req); !errors.Is(err, gameerr.ErrInvalidArgument) {
				t.Errorf("err = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	app, _, _ := newTestApp()
	register(t, app, "sam@example.com", "correct horse")

	_, err := app.Register(context.Background(), RegisterRequest{Email: "SAM@example.com", Password: "another one"})
	if !errors.Is(err, gameerr.ErrEmailTaken) {
		t.Fatalf("err = %v, want ErrEmailTaken", err)
	}
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	app, _, _ := newTestApp()
	register(t, app, "sam@example.com", "correct horse")

	for _, tc := range []struct{ email, password string }{
		{"sam@example.com", "wrong horse"},
		{"nobody@example.com", "correct horse"},
		{"garbage", "correct horse"},
	} {
		_, err := app.SignIn(context.Background(), tc.email, tc.password)
		if !errors.Is(err, gameerr.ErrUnauthenticated) {
			t.Errorf("SignIn(%s, %s) err = %v, want ErrUnauthenticated", tc.email, tc.password, err)
		}
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	app, _, _ := newTestApp()
	reg := register(t, app, "sam@example.com", "correct horse")

	next, err := app.Refresh(context.Background(), reg.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.RefreshToken == reg.RefreshToken {
		t.Error("refresh token was not rotated")
	}
	if next.User.ID != reg.User.ID {
		t.Errorf("refreshed user = %v, want %v", next.User.ID, reg.User.ID)
	}

	if _, err := app.Refresh(context.Background(), reg.RefreshToken); !errors.Is(err, gameerr.ErrUnauthenticated) {
		t.Errorf("reused token err = %v, want ErrUnauthenticated", err)
	}
	if _, err := app.Refresh(context.Background(), "never-issued"); !errors.Is(err, gameerr.ErrUnauthenticated) {
		t.Errorf("unknown token err = %v, want ErrUnauthenticated", err)
	}
}

func TestRefreshTokenExpires(t *testing.T) {
	app, _, clock := newTestApp()
	reg := register(t, app, "sam@example.com", "correct horse")

	clock.Advance(RefreshTokenExpiry)
	if _, err := app.Refresh(context.Background(), reg.RefreshToken); !errors.Is(err, gameerr.ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
}

func TestSignOut(t *testing.T) {
	app, _, _ := newTestApp()
	reg := register(t, app, "sam@example.com", "correct horse")

	for i := 0; i < 2; i++ {
		if err := app.SignOut(context.Background(), reg.RefreshToken); err != nil {
			t.Fatalf("SignOut #%d: %v", i+1, err)
		}
	}
	if _, err := app.Refresh(context.Background(), reg.RefreshToken); !errors.Is(err, gameerr.ErrUnauthenticated) {
		t.Errorf("refresh after sign-out err = %v, want ErrUnauthenticated", err)
	}
	if err := app.SignOut(context.Background(), ""); !errors.Is(err, gameerr.ErrInvalidArgument) {
		t.Errorf("empty token err = %v, want ErrInvalidArgument", err)
	}
}

func TestChangePassword(t *testing.T) {
	app, _, _ := newTestApp()
	reg := register(t, app, "sam@example.com", "correct horse")
	ctx := auth.WithActor(context.Background(), &reg.User)

	if err := app.ChangePassword(ctx, "wrong horse", "battery staple"); !errors.Is(err, gameerr.ErrUnauthenticated) {
		t.Errorf("wrong current err = %v, want ErrUnauthenticated", err)
	}
	if err := app.ChangePassword(ctx, "correct horse", "short"); !errors.Is(err, gameerr.ErrInvalidArgument) {
		t.Errorf("short new err = %v, want ErrInvalidArgument", err)
	}
	if err := app.ChangePassword(context.Background(), "correct horse", "battery staple"); !errors.Is(err, gameerr.ErrUnauthenticated) {
		t.Errorf("anonymous err = %v, want ErrUnauthenticated", err)
	}

	if err := app.ChangePassword(ctx, "correct horse", "battery staple"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := app.SignIn(context.Background(), "sam@example.com", "correct horse"); !errors.Is(err, gameerr.ErrUnauthenticated) {
		t.Errorf("old password err = %v, want ErrUnauthenticated", err)
	}
	if _, err := app.SignIn(context.Background(), "sam@example.com", "battery staple"); err != nil {
		t.Errorf("new password: %v", err)
	}
	if _, err := app.Refresh(context.Background(), reg.RefreshToken); !errors.Is(err, gameerr.ErrUnauthenticated) {
		t.Errorf("refresh after password change err = %v, want ErrUnauthenticated", err)
	}
}

func TestChangePasswordWithoutCredentials(t *testing.T) {
	app, _, _ := newTestApp()
	sso := &models.Actor{ID: uuid.New(), Email: "sso@example.com", Role: models.RoleUser}

	err := app.ChangePassword(auth.WithActor(context.Background(), sso), "anything", "battery staple")
	if !errors.Is(err, gameerr.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}
