package sessions

import (
	"context"
	"testing"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	apiv1 "github.com/mcdev12/breakroom/go/internal/api/v1"
	"github.com/mcdev12/breakroom/go/internal/models"
)

type stubApp struct {
	SessionsApp
	session models.Session
}

func (a stubApp) GetSession(context.Context, uuid.UUID) (*models.Session, error) {
	s := a.session
	return &s, nil
}

func (a stubApp) ListSessions(context.Context) ([]models.Session, error) {
	return []models.Session{a.session}, nil
}

func (a stubApp) StartSession(context.Context, uuid.UUID) (*models.Session, error) {
	s := a.session
	return &s, nil
}

func openTriviaSession(t *testing.T) models.Session {
	t.Helper()
	state, err := models.EncodeState(models.TriviaState{
		Status:         models.RoundStatusQuestion,
		TotalQuestions: 2,
		Questions: []models.Question{
			{ID: "q1", Question: "Capital of France?", Options: []string{"Lyon", "Paris"}, CorrectAnswer: 1},
			{ID: "q2", Question: "2+2?", Options: []string{"4", "5"}, CorrectAnswer: 0},
		},
		Answers: []models.TriviaAnswer{{UserID: uuid.New(), Answer: 1, TimeTakenSec: 3, Correct: true, Points: 154}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return models.Session{ID: uuid.New(), Kind: models.GameKindTrivia, IsActive: true, SessionActive: true, State: state}
}

func assertRedacted(t *testing.T, s models.Session) {
	t.Helper()
	var state models.TriviaState
	if err := models.DecodeState(s.State, &state); err != nil {
		t.Fatal(err)
	}
	for _, q := range state.Questions {
		if q.CorrectAnswer != models.HiddenAnswer {
			t.Errorf("question %s sent with correct_answer %d", q.ID, q.CorrectAnswer)
		}
	}
	for _, a := range state.Answers {
		if a.Correct || a.Points != 0 {
			t.Errorf("open round answer sent graded: %+v", a)
		}
	}
}

func TestServiceRedactsTriviaState(t *testing.T) {
	ctx := context.Background()
	session := openTriviaSession(t)
	svc := NewService(stubApp{session: session})
	req := connect.NewRequest(&apiv1.SessionRequest{SessionID: session.ID})

	got, err := svc.GetSession(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	assertRedacted(t, got.Msg.Session)

	started, err := svc.StartSession(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	assertRedacted(t, started.Msg.Session)

	list, err := svc.ListSessions(ctx, connect.NewRequest(&apiv1.ListSessionsRequest{}))
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Msg.Sessions) != 1 {
		t.Fatalf("listed %d sessions, want 1", len(list.Msg.Sessions))
	}
	assertRedacted(t, list.Msg.Sessions[0])
}

func TestServiceLeavesOtherKindsAlone(t *testing.T) {
	state, err := models.InitialState(models.GameKindBuzzer, nil, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	session := models.Session{ID: uuid.New(), Kind: models.GameKindBuzzer, State: state}
	got, err := NewService(stubApp{session: session}).GetSession(context.Background(),
		connect.NewRequest(&apiv1.SessionRequest{SessionID: session.ID}))
	if err != nil {
		t.Fatal(err)
	}
	if string(got.Msg.Session.State) != string(state) {
		t.Errorf("state = %s, want %s", got.Msg.Session.State, state)
	}
}
