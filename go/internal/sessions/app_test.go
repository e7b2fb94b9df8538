package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/breakroom/go/internal/auth"
	"github.com/mcdev12/breakroom/go/internal/gameerr"
	"github.com/mcdev12/breakroom/go/internal/models"
)

type fakeRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*models.Session
	failOn   map[uuid.UUID]error
}

func newFakeRepo(sessions ...*models.Session) *fakeRepo {
	r := &fakeRepo{sessions: map[uuid.UUID]*models.Session{}, failOn: map[uuid.UUID]error{}}
	for _, s := range sessions {
		r.sessions[s.ID] = s
	}
	return r
}

func (r *fakeRepo) ListSessions(_ context.Context, viewerID uuid.UUID, all bool) ([]models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Session{}
	for _, s := range r.sessions {
		if all || s.IsActive || s.CreatedBy == viewerID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListSessionsByCreator(_ context.Context, creatorID uuid.UUID) ([]models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Session{}
	for _, s := range r.sessions {
		if s.CreatedBy == creatorID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeRepo) GetSession(_ context.Context, id uuid.UUID) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, gameerr.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeRepo) CreateSession(_ context.Context, ns NewSession) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &models.Session{
		ID:            uuid.New(),
		Name:          ns.Name,
		Kind:          ns.Kind,
		CreatedBy:     ns.CreatedBy,
		IsActive:      true,
		SessionStatus: models.SessionStatusWaiting,
		MinPlayers:    ns.MinPlayers,
		MaxPlayers:    ns.MaxPlayers,
		State:         ns.State,
	}
	r.sessions[s.ID] = s
	cp := *s
	return &cp, nil
}

func (r *fakeRepo) MutateSession(_ context.Context, id uuid.UUID, fn Mutation) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.failOn[id]; ok {
		return nil, err
	}
	s, ok := r.sessions[id]
	if !ok {
		return nil, gameerr.ErrNotFound
	}
	cp := *s
	if err := fn(&cp); err != nil {
		return nil, err
	}
	r.sessions[id] = &cp
	out := cp
	return &out, nil
}

func (r *fakeRepo) DeleteSession(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return gameerr.ErrNotFound
	}
	delete(r.sessions, id)
	return nil
}

func (r *fakeRepo) ListActiveSessionIDs(_ context.Context, startedBefore *time.Time) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := []uuid.UUID{}
	for id, s := range r.sessions {
		if !s.SessionActive {
			continue
		}
		if startedBefore != nil && (s.SessionStartedAt == nil || !s.SessionStartedAt.Before(*startedBefore)) {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *fakeRepo) ArchiveFinished(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sessions {
		if s.IsActive && s.SessionStatus == models.SessionStatusFinished && s.UpdatedAt.Before(cutoff) {
			s.IsActive = false
			n++
		}
	}
	return n, nil
}

type fixedQuestions []models.Question

func (q fixedQuestions) Draw(n int) []models.Question {
	if n > 0 && n < len(q) {
		return q[:n]
	}
	return q
}

var (
	admin   = &models.Actor{ID: uuid.New(), Email: "admin@example.com", Role: models.RoleAdmin}
	creator = &models.Actor{ID: uuid.New(), Email: "host@example.com", Role: models.RoleUser}
	member  = &models.Actor{ID: uuid.New(), Email: "member@example.com", Role: models.RoleUser}
)

func as(actor *models.Actor) context.Context {
	return auth.WithActor(context.Background(), actor)
}

func newTestApp(repo *fakeRepo) (*App, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	qs := fixedQuestions{
		{ID: "q1", Question: "1+1?", Options: []string{"1", "2"}, CorrectAnswer: 1},
		{ID: "q2", Question: "2+2?", Options: []string{"4", "5"}, CorrectAnswer: 0},
	}
	return NewApp(repo, qs, clock, DefaultConfig()), clock
}

func lobbySession(kind models.GameKind, current, minPlayers int) *models.Session {
	return &models.Session{
		ID:             uuid.New(),
		Name:           "Friday " + string(kind),
		Kind:           kind,
		CreatedBy:      creator.ID,
		IsActive:       true,
		SessionStatus:  models.LobbyStatus(current, minPlayers),
		MinPlayers:     minPlayers,
		CurrentPlayers: current,
		State:          json.RawMessage(`{"status":"waiting"}`),
	}
}

func TestCreateSession(t *testing.T) {
	repo := newFakeRepo()
	app, _ := newTestApp(repo)

	s, err := app.CreateSession(as(member), CreateSessionRequest{Name: "  Quiz  ", Kind: models.GameKindTrivia})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if s.Name != "Quiz" || s.CreatedBy != member.ID || s.MinPlayers != models.DefaultMinPlayers {
		t.Errorf("unexpected session %+v", s)
	}

	var state models.TriviaState
	if err := models.DecodeState(s.State, &state); err != nil {
		t.Fatalf("DecodeState: %v", err)
	}
	if state.Status != models.RoundStatusWaiting || state.TotalQuestions != 2 || state.WindowSec != 30 {
		t.Errorf("unexpected trivia state %+v", state)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	one, three := 1, 3
	zero := 0
	tests := map[string]CreateSessionRequest{
		"blank name":        {Name: " ", Kind: models.GameKindBuzzer},
		"unknown kind":      {Name: "x", Kind: "charades"},
		"min below one":     {Name: "x", Kind: models.GameKindBuzzer, MinPlayers: &zero},
		"max below min":     {Name: "x", Kind: models.GameKindBuzzer, MinPlayers: &three, MaxPlayers: &one},
		"poll without opts": {Name: "x", Kind: models.GameKindPoll, PollQuestion: "Lunch?", PollOptions: []string{"Tacos"}},
	}
	app, _ := newTestApp(newFakeRepo())
	for name, req := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := app.CreateSession(as(member), req)
			if !errors.Is(err, gameerr.ErrInvalidArgument) {
				t.Errorf("err = %v, want ErrInvalidArgument", err)
			}
		})
	}

	if _, err := app.CreateSession(context.Background(), CreateSessionRequest{Name: "x", Kind: models.GameKindBuzzer}); !errors.Is(err, gameerr.ErrUnauthenticated) {
		t.Errorf("anonymous err = %v, want ErrUnauthenticated", err)
	}
}

func TestStartSessionAtExactlyMinPlayers(t *testing.T) {
	s := lobbySession(models.GameKindBuzzer, 2, 2)
	repo := newFakeRepo(s)
	app, clock := newTestApp(repo)

	started, err := app.StartSession(as(creator), s.ID)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if started.SessionStatus != models.SessionStatusActive || !started.SessionActive {
		t.Errorf("status = %s active = %v", started.SessionStatus, started.SessionActive)
	}
	if started.SessionStartedAt == nil || !started.SessionStartedAt.Equal(clock.Now()) {
		t.Errorf("started_at = %v, want %v", started.SessionStartedAt, clock.Now())
	}

	var state models.BuzzerState
	if err := models.DecodeState(started.State, &state); err != nil {
		t.Fatalf("DecodeState: %v", err)
	}
	if diff := cmp.Diff(models.BuzzerState{Status: models.RoundStatusWaiting, Presses: []models.BuzzerPress{}}, state); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}
}

func TestStartSessionRejections(t *testing.T) {
	tests := []struct {
		name    string
		session *models.Session
		actor   *models.Actor
		want    error
	}{
		{"below min", lobbySession(models.GameKindBuzzer, 1, 2), creator, gameerr.ErrNotReady},
		{"not manager", lobbySession(models.GameKindBuzzer, 2, 2), member, gameerr.ErrForbidden},
		{"already active", func() *models.Session {
			s := lobbySession(models.GameKindBuzzer, 2, 2)
			s.SessionStatus, s.SessionActive = models.SessionStatusActive, true
			return s
		}(), admin, gameerr.ErrInvalidTransition},
		{"finished", func() *models.Session {
			s := lobbySession(models.GameKindBuzzer, 3, 2)
			s.SessionStatus = models.SessionStatusFinished
			return s
		}(), creator, gameerr.ErrInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _ := newTestApp(newFakeRepo(tt.session))
			_, err := app.StartSession(as(tt.actor), tt.session.ID)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	if !errors.Is(gameerr.ErrNotReady, gameerr.ErrConflict) {
		t.Error("not ready must be a conflict")
	}
}

func TestEndSessionReturnsToLobby(t *testing.T) {
	s := lobbySession(models.GameKindSpinBottle, 3, 2)
	repo := newFakeRepo(s)
	app, clock := newTestApp(repo)

	if _, err := app.StartSession(as(admin), s.ID); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	clock.Advance(10 * time.Minute)

	ended, err := app.EndSession(as(creator), s.ID)
	if err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if ended.SessionActive || ended.SessionStatus != models.SessionStatusReady {
		t.Errorf("status = %s active = %v, want ready/false", ended.SessionStatus, ended.SessionActive)
	}
	if ended.SessionEndedAt == nil || !ended.SessionEndedAt.Equal(clock.Now()) {
		t.Errorf("ended_at = %v", ended.SessionEndedAt)
	}
	if ended.CurrentPlayers != 3 {
		t.Errorf("current_players = %d, want 3", ended.CurrentPlayers)
	}

	if _, err := app.EndSession(as(creator), s.ID); !errors.Is(err, gameerr.ErrInvalidTransition) {
		t.Errorf("second end err = %v, want ErrInvalidTransition", err)
	}
}

func TestFinishSession(t *testing.T) {
	s := lobbySession(models.GameKindBuzzer, 2, 2)
	app, _ := newTestApp(newFakeRepo(s))

	if _, err := app.FinishSession(as(creator), s.ID); !errors.Is(err, gameerr.ErrInvalidTransition) {
		t.Errorf("finish from lobby err = %v, want ErrInvalidTransition", err)
	}
	if _, err := app.StartSession(as(creator), s.ID); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	finished, err := app.FinishSession(as(creator), s.ID)
	if err != nil {
		t.Fatalf("FinishSession: %v", err)
	}
	if finished.SessionStatus != models.SessionStatusFinished || finished.SessionActive {
		t.Errorf("status = %s active = %v", finished.SessionStatus, finished.SessionActive)
	}
	if _, err := app.StartSession(as(creator), s.ID); !errors.Is(err, gameerr.ErrInvalidTransition) {
		t.Errorf("restart finished err = %v, want ErrInvalidTransition", err)
	}
}

func TestEndAllActiveSessionsAggregates(t *testing.T) {
	a := lobbySession(models.GameKindBuzzer, 2, 2)
	b := lobbySession(models.GameKindTrivia, 4, 2)
	c := lobbySession(models.GameKindSpinBottle, 2, 2)
	repo := newFakeRepo(a, b, c)
	app, _ := newTestApp(repo)
	for _, s := range []*models.Session{a, b, c} {
		if _, err := app.StartSession(as(admin), s.ID); err != nil {
			t.Fatalf("StartSession: %v", err)
		}
	}
	repo.failOn[b.ID] = fmt.Errorf("failed to lock session: %w", gameerr.ErrRemoteUnavailable)

	if _, err := app.EndAllActiveSessions(as(creator)); !errors.Is(err, gameerr.ErrForbidden) {
		t.Errorf("member err = %v, want ErrForbidden", err)
	}

	result, err := app.EndAllActiveSessions(as(admin))
	if err != nil {
		t.Fatalf("EndAllActiveSessions: %v", err)
	}
	if result.Succeeded != 2 || result.Failed != 1 || len(result.Results) != 3 {
		t.Fatalf("result = %+v", result)
	}
	for _, r := range result.Results {
		if r.SessionID == b.ID {
			if r.Ended || r.Code != "unavailable" {
				t.Errorf("failed entry = %+v", r)
			}
		} else if !r.Ended {
			t.Errorf("entry %s not ended", r.SessionID)
		}
	}
	if got, _ := repo.GetSession(context.Background(), a.ID); got.SessionActive {
		t.Error("session a still active")
	}
	if got, _ := repo.GetSession(context.Background(), b.ID); !got.SessionActive {
		t.Error("failed session b should still be active")
	}
}

func TestEndStaleSessions(t *testing.T) {
	s := lobbySession(models.GameKindBuzzer, 2, 2)
	repo := newFakeRepo(s)
	app, clock := newTestApp(repo)
	if _, err := app.StartSession(as(admin), s.ID); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	result, err := app.EndStaleSessions(context.Background(), clock.Now().Add(-time.Hour))
	if err != nil || result.Succeeded != 0 {
		t.Fatalf("fresh sweep = %+v, %v", result, err)
	}

	clock.Advance(3 * time.Hour)
	result, err = app.EndStaleSessions(context.Background(), clock.Now().Add(-time.Hour))
	if err != nil || result.Succeeded != 1 {
		t.Fatalf("stale sweep = %+v, %v", result, err)
	}
}

func TestUpdateSession(t *testing.T) {
	s := lobbySession(models.GameKindBuzzer, 2, 2)
	app, _ := newTestApp(newFakeRepo(s))

	three := 3
	updated, err := app.UpdateSession(as(creator), s.ID, UpdateSessionRequest{MinPlayers: &three})
	if err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}
	if updated.SessionStatus != models.SessionStatusWaiting {
		t.Errorf("status = %s, want waiting after raising min", updated.SessionStatus)
	}

	one := 1
	if _, err := app.UpdateSession(as(creator), s.ID, UpdateSessionRequest{MaxPlayers: &one}); !errors.Is(err, gameerr.ErrInvalidArgument) {
		t.Errorf("cap below min err = %v, want ErrInvalidArgument", err)
	}
	if _, err := app.UpdateSession(as(member), s.ID, UpdateSessionRequest{MinPlayers: &one}); !errors.Is(err, gameerr.ErrForbidden) {
		t.Errorf("member err = %v, want ErrForbidden", err)
	}
}

func TestVisibility(t *testing.T) {
	hidden := lobbySession(models.GameKindBuzzer, 0, 2)
	hidden.IsActive = false
	listed := lobbySession(models.GameKindTrivia, 0, 2)
	app, _ := newTestApp(newFakeRepo(hidden, listed))

	got, err := app.ListSessions(as(member))
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(got) != 1 || got[0].ID != listed.ID {
		t.Errorf("member sees %d sessions", len(got))
	}
	if got, _ := app.ListSessions(as(admin)); len(got) != 2 {
		t.Errorf("admin sees %d sessions, want 2", len(got))
	}
	if got, _ := app.ListSessions(as(creator)); len(got) != 2 {
		t.Errorf("creator sees %d sessions, want 2", len(got))
	}

	if _, err := app.GetSession(as(member), hidden.ID); !errors.Is(err, gameerr.ErrNotFound) {
		t.Errorf("hidden get err = %v, want ErrNotFound", err)
	}
}

func TestListSessionsEmptyIsNotNil(t *testing.T) {
	app, _ := newTestApp(newFakeRepo())
	got, err := app.ListSessions(as(member))
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("got %v, want empty non-nil slice", got)
	}
}

func TestDeleteSession(t *testing.T) {
	s := lobbySession(models.GameKindPoll, 0, 2)
	repo := newFakeRepo(s)
	app, _ := newTestApp(repo)

	if err := app.DeleteSession(as(member), s.ID); !errors.Is(err, gameerr.ErrForbidden) {
		t.Errorf("member delete err = %v, want ErrForbidden", err)
	}
	if err := app.DeleteSession(as(creator), s.ID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := repo.GetSession(context.Background(), s.ID); !errors.Is(err, gameerr.ErrNotFound) {
		t.Errorf("session still present: %v", err)
	}
}
