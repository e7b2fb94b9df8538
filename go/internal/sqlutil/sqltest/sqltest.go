// Package sqltest holds go-sqlmock fixtures for repository tests: row builders for the
// session and participation columns and expectations for the statements every
// session transaction shares.
package sqltest

import (
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mcdev12/breakroom/go/internal/models"
)

// New opens a mock database. Unmet expectations fail the test at cleanup.
func New(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet sql expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

var SessionColumns = []string{
	"id", "name", "kind", "created_by", "is_active", "session_active", "session_status",
	"session_started_at", "session_ended_at", "min_players", "max_players", "current_players",
	"state", "created_at", "updated_at",
}

// SessionRows returns rows in the column order sessions queries select.
func SessionRows(sessions ...models.Session) *sqlmock.Rows {
	rows := sqlmock.NewRows(SessionColumns)
	for _, s := range sessions {
		var maxPlayers interface{}
		if s.MaxPlayers != nil {
			maxPlayers = int64(*s.MaxPlayers)
		}
		var state interface{}
		if len(s.State) > 0 {
			state = []byte(s.State)
		}
		var startedAt, endedAt interface{}
		if s.SessionStartedAt != nil {
			startedAt = *s.SessionStartedAt
		}
		if s.SessionEndedAt != nil {
			endedAt = *s.SessionEndedAt
		}
		rows.AddRow(
			s.ID.String(), s.Name, string(s.Kind), s.CreatedBy.String(), s.IsActive, s.SessionActive,
			string(s.SessionStatus), startedAt, endedAt, int64(s.MinPlayers), maxPlayers,
			int64(s.CurrentPlayers), state, s.CreatedAt, s.UpdatedAt,
		)
	}
	return rows
}

var ParticipationColumns = []string{
	"id", "session_id", "user_id", "joined_at", "score", "is_active", "full_name", "email", "avatar_url",
}

// ParticipationRows returns rows in the column order participation queries select.
func ParticipationRows(participations ...models.Participation) *sqlmock.Rows {
	rows := sqlmock.NewRows(ParticipationColumns)
	for _, p := range participations {
		email := ""
		var fullName interface{}
		if p.Profile != nil {
			email = p.Profile.Email
			if p.Profile.FullName != "" {
				fullName = p.Profile.FullName
			}
		}
		rows.AddRow(p.ID.String(), p.SessionID.String(), p.UserID.String(), p.JoinedAt,
			int64(p.Score), p.IsActive, fullName, email, nil)
	}
	return rows
}

// ExpectLock expects the session row lock and returns s.
func ExpectLock(mock sqlmock.Sqlmock, s models.Session) {
	mock.ExpectQuery(regexp.QuoteMeta(`FROM sessions WHERE id = $1 FOR UPDATE`)).
		WithArgs(s.ID.String()).
		WillReturnRows(SessionRows(s))
}

// ExpectSave expects the session to be written back with the given status and player count.
func ExpectSave(mock sqlmock.Sqlmock, status models.SessionStatus, currentPlayers int) {
	anyArg := sqlmock.AnyArg()
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE sessions SET`)).
		WithArgs(anyArg, anyArg, anyArg, anyArg, string(status), anyArg, anyArg, anyArg, anyArg, currentPlayers, anyArg).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
}

// ExpectChange expects one change-feed row for table and op.
func ExpectChange(mock sqlmock.Sqlmock, table string, op models.ChangeOp) {
	anyArg := sqlmock.AnyArg()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO change_outbox`)).
		WithArgs(anyArg, table, string(op), anyArg, anyArg, anyArg).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

// ExpectCount expects the active participant count for a session.
func ExpectCount(mock sqlmock.Sqlmock, n int) {
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM participations`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(n)))
}
