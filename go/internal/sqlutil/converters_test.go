package sqlutil

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mcdev12/breakroom/go/internal/gameerr"
	"github.com/sqlc-dev/pqtype"
)

func TestInt32RoundTrip(t *testing.T) {
	if got := FromSqlInt32(ToSqlInt32(nil)); got != nil {
		t.Errorf("nil round trip = %v, want nil", *got)
	}
	v := 8
	got := FromSqlInt32(ToSqlInt32(&v))
	if got == nil || *got != 8 {
		t.Errorf("round trip = %v, want 8", got)
	}
}

func TestFromNullRawMessage(t *testing.T) {
	if got := string(FromNullRawMessage(pqtype.NullRawMessage{})); got != "{}" {
		t.Errorf("null blob = %q, want {}", got)
	}
	raw := json.RawMessage(`{"status":"waiting"}`)
	if got := string(FromNullRawMessage(ToNullRawMessage(raw))); got != string(raw) {
		t.Errorf("blob = %q, want %q", got, raw)
	}
	if ToNullRawMessage(nil).Valid {
		t.Error("empty blob should be NULL")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", fmt.Errorf("get session: %w", sql.ErrNoRows), gameerr.ErrNotFound},
		{"unique", &pgconn.PgError{Code: "23505", Message: "duplicate key"}, gameerr.ErrConflict},
		{"fk", &pgconn.PgError{Code: "23503", Message: "missing parent"}, gameerr.ErrNotFound},
		{"conn done", sql.ErrConnDone, gameerr.ErrRemoteUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); !errors.Is(got, tt.want) {
				t.Errorf("Classify() = %v, want wrapping %v", got, tt.want)
			}
		})
	}

	if Classify(nil) != nil {
		t.Error("Classify(nil) should be nil")
	}
}
