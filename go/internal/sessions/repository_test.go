package sessions

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/mcdev12/breakroom/go/internal/gameerr"
	"github.com/mcdev12/breakroom/go/internal/models"
	"github.com/mcdev12/breakroom/go/internal/sqlutil/sqltest"
)

func readyLobby() models.Session {
	return models.Session{
		ID:             uuid.New(),
		Name:           "Buzzer",
		Kind:           models.GameKindBuzzer,
		CreatedBy:      uuid.New(),
		IsActive:       true,
		SessionStatus:  models.SessionStatusReady,
		MinPlayers:     2,
		CurrentPlayers: 3,
		State:          []byte(`{"status":"waiting"}`),
	}
}

func TestRepositoryMutateSession(t *testing.T) {
	db, mock := sqltest.New(t)
	s := readyLobby()

	mock.ExpectBegin()
	sqltest.ExpectLock(mock, s)
	sqltest.ExpectSave(mock, models.SessionStatusActive, 3)
	sqltest.ExpectChange(mock, models.TableSessions, models.ChangeOpUpdate)
	mock.ExpectCommit()

	got, err := NewRepository(db).MutateSession(context.Background(), s.ID, func(s *models.Session) error {
		s.SessionStatus = models.SessionStatusActive
		s.SessionActive = true
		return nil
	})
	if err != nil {
		t.Fatalf("MutateSession: %v", err)
	}
	if got.SessionStatus != models.SessionStatusActive {
		t.Errorf("status = %s, want active", got.SessionStatus)
	}
}

func TestRepositoryMutateSessionRejectionRollsBack(t *testing.T) {
	db, mock := sqltest.New(t)
	s := readyLobby()

	mock.ExpectBegin()
	sqltest.ExpectLock(mock, s)
	mock.ExpectRollback()

	_, err := NewRepository(db).MutateSession(context.Background(), s.ID, func(*models.Session) error {
		return gameerr.ErrInvalidTransition
	})
	if !errors.Is(err, gameerr.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestRepositoryMutateMissingSession(t *testing.T) {
	db, mock := sqltest.New(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
		WithArgs(id.String()).
		WillReturnRows(sqlmock.NewRows(sqltest.SessionColumns))
	mock.ExpectRollback()

	_, err := NewRepository(db).MutateSession(context.Background(), id, func(*models.Session) error {
		t.Error("mutation ran for a missing session")
		return nil
	})
	if !errors.Is(err, gameerr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
