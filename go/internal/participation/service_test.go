package participation

import (
	"context"
	"testing"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	apiv1 "github.com/mcdev12/breakroom/go/internal/api/v1"
	"github.com/mcdev12/breakroom/go/internal/models"
)

type stubApp struct {
	ParticipationApp
	session models.Session
}

func (a stubApp) JoinSession(_ context.Context, sessionID uuid.UUID) (*JoinResult, error) {
	return &JoinResult{
		Participation: models.Participation{SessionID: sessionID, UserID: uuid.New(), IsActive: true},
		Session:       a.session,
		Joined:        true,
	}, nil
}

func (a stubApp) LeaveSession(context.Context, uuid.UUID) (*models.Session, error) {
	s := a.session
	return &s, nil
}

func hiddenAnswers(t *testing.T, s models.Session) bool {
	t.Helper()
	var state models.TriviaState
	if err := models.DecodeState(s.State, &state); err != nil {
		t.Fatal(err)
	}
	for _, q := range state.Questions {
		if q.CorrectAnswer != models.HiddenAnswer {
			return false
		}
	}
	return true
}

func TestServiceRedactsSessionState(t *testing.T) {
	ctx := context.Background()
	state, err := models.EncodeState(models.TriviaState{
		Status:    models.RoundStatusWaiting,
		Questions: []models.Question{{ID: "q1", Options: []string{"a", "b"}, CorrectAnswer: 1}},
	})
	if err != nil {
		t.Fatal(err)
	}
	session := models.Session{ID: uuid.New(), Kind: models.GameKindTrivia, State: state}
	svc := NewService(stubApp{session: session})
	req := connect.NewRequest(&apiv1.SessionRequest{SessionID: session.ID})

	joined, err := svc.JoinSession(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if !hiddenAnswers(t, joined.Msg.Session) {
		t.Errorf("join response carried answers: %s", joined.Msg.Session.State)
	}

	left, err := svc.LeaveSession(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if !hiddenAnswers(t, left.Msg.Session) {
		t.Errorf("leave response carried answers: %s", left.Msg.Session.State)
	}
}
