package accounts

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mcdev12/breakroom/go/internal/gameerr"
	"github.com/mcdev12/breakroom/go/internal/models"
	"github.com/mcdev12/breakroom/go/internal/sqlutil/sqltest"
)

var (
	insertProfileSQL     = regexp.QuoteMeta(`INSERT INTO profiles (id, email, full_name, role)`)
	insertCredentialsSQL = regexp.QuoteMeta(`INSERT INTO credentials (user_id, password_hash)`)
	updatePasswordSQL    = regexp.QuoteMeta(`UPDATE credentials SET password_hash = $2`)
	revokeAllSQL         = regexp.QuoteMeta(`UPDATE refresh_tokens SET revoked = true WHERE user_id = $1 AND NOT revoked`)
)

func TestRepositoryCreateAccount(t *testing.T) {
	db, mock := sqltest.New(t)
	acct := NewAccount{ID: uuid.New(), Email: "sam@example.com", PasswordHash: []byte("$2a$04$hash")}
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(insertProfileSQL).
		WithArgs(acct.ID.String(), acct.Email, nil, string(models.RoleUser)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "full_name", "avatar_url", "role", "department", "created_at", "updated_at"}).
			AddRow(acct.ID.String(), acct.Email, nil, nil, "user", nil, now, now))
	mock.ExpectExec(insertCredentialsSQL).
		WithArgs(acct.ID.String(), "$2a$04$hash").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := NewRepository(db).CreateAccount(context.Background(), acct)
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if got.ID != acct.ID || got.Role != models.RoleUser {
		t.Errorf("actor = %+v", got)
	}
}

func TestRepositoryCreateAccountDuplicateRollsBack(t *testing.T) {
	db, mock := sqltest.New(t)
	acct := NewAccount{ID: uuid.New(), Email: "sam@example.com", PasswordHash: []byte("hash")}

	mock.ExpectBegin()
	mock.ExpectQuery(insertProfileSQL).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	_, err := NewRepository(db).CreateAccount(context.Background(), acct)
	if !errors.Is(err, gameerr.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestRepositorySetPasswordRevokesTokens(t *testing.T) {
	db, mock := sqltest.New(t)
	userID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(updatePasswordSQL).
		WithArgs(userID.String(), "new-hash").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(revokeAllSQL).
		WithArgs(userID.String()).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	if err := NewRepository(db).SetPassword(context.Background(), userID, []byte("new-hash")); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
}

func TestRepositorySetPasswordMissingUser(t *testing.T) {
	db, mock := sqltest.New(t)
	userID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(updatePasswordSQL).
		WithArgs(userID.String(), "new-hash").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := NewRepository(db).SetPassword(context.Background(), userID, []byte("new-hash"))
	if !errors.Is(err, gameerr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRepositoryGetCredentialsUnknownEmail(t *testing.T) {
	db, mock := sqltest.New(t)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE p.email = $1`)).
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "password_hash"}))

	_, _, err := NewRepository(db).GetCredentials(context.Background(), "nobody@example.com")
	if !errors.Is(err, gameerr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
