package breakroom

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mcdev12/breakroom/go/internal/models"
)

// ErrClosed is returned by AuthContext methods after Close.
var ErrClosed = errors.New("auth context closed")

// UserLoader resolves the current token to an actor. *Client implements it.
type UserLoader interface {
	GetCurrentUser(ctx context.Context) (*models.Actor, models.RolePermissions, error)
}

// AuthContext owns the signed-in identity. It is the TokenSource for Client and Feed and
// tells listeners whenever the identity changes. A nil actor means signed out.
type AuthContext struct {
	mu          sync.RWMutex
	loader      UserLoader
	token       string
	actor       *models.Actor
	permissions models.RolePermissions
	listeners   map[int]func(*models.Actor)
	nextID      int
	closed      bool
}

func NewAuthContext() *AuthContext {
	return &AuthContext{listeners: make(map[int]func(*models.Actor))}
}

// Init binds the loader and, if a token is already set, loads the actor for it.
func (a *AuthContext) Init(ctx context.Context, loader UserLoader) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	a.loader = loader
	token := a.token
	a.mu.Unlock()

	if token == "" {
		return nil
	}
	return a.load(ctx, token)
}

// Token implements TokenSource.
func (a *AuthContext) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

// Actor returns the signed-in actor, or nil.
func (a *AuthContext) Actor() *models.Actor {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.actor
}

func (a *AuthContext) Permissions() models.RolePermissions {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.permissions
}

// SetToken signs in with token. On failure the context is left signed out.
func (a *AuthContext) SetToken(ctx context.Context, token string) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	a.token = token
	a.mu.Unlock()

	if err := a.load(ctx, token); err != nil {
		a.SignOut()
		return err
	}
	return nil
}

// SignOut clears the identity and notifies listeners.
func (a *AuthContext) SignOut() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.token = ""
	a.actor = nil
	a.permissions = models.RolePermissions{}
	listeners := a.snapshotListeners()
	a.mu.Unlock()

	notify(listeners, nil)
}

// OnAuthStateChange registers fn for identity changes and returns a function that removes it.
func (a *AuthContext) OnAuthStateChange(fn func(*models.Actor)) (unsubscribe func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return func() {}
	}
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn
	return func() {
		a.mu.Lock()
		delete(a.listeners, id)
		a.mu.Unlock()
	}
}

// Close drops every listener. Later calls fail with ErrClosed.
func (a *AuthContext) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.listeners = make(map[int]func(*models.Actor))
}

func (a *AuthContext) load(ctx context.Context, token string) error {
	a.mu.RLock()
	loader := a.loader
	a.mu.RUnlock()
	if loader == nil {
		return fmt.Errorf("auth context not initialised")
	}

	actor, perms, err := loader.GetCurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("failed to load current user: %w", err)
	}

	a.mu.Lock()
	if a.closed || a.token != token {
		// signed out or replaced while loading
		a.mu.Unlock()
		return nil
	}
	a.actor = actor
	a.permissions = perms
	listeners := a.snapshotListeners()
	a.mu.Unlock()

	notify(listeners, actor)
	return nil
}

func (a *AuthContext) snapshotListeners() []func(*models.Actor) {
	out := make([]func(*models.Actor), 0, len(a.listeners))
	for _, fn := range a.listeners {
		out = append(out, fn)
	}
	return out
}

func notify(listeners []func(*models.Actor), actor *models.Actor) {
	for _, fn := range listeners {
		fn(actor)
	}
}
