package sqlutil

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/sqlc-dev/pqtype"
)

// Helper functions for converting between Go types and sql.Null* types

// ToSqlInt32 converts a Go int pointer to sql.NullInt32
func ToSqlInt32(val *int) sql.NullInt32 {
	if val == nil {
		return sql.NullInt32{Valid: false}
	}
	return sql.NullInt32{Int32: int32(*val), Valid: true}
}

// ToSqlString converts a Go string pointer to sql.NullString
func ToSqlString(val *string) sql.NullString {
	if val == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: *val, Valid: true}
}

// FromSqlInt32 converts sql.NullInt32 to Go int pointer
func FromSqlInt32(val sql.NullInt32) *int {
	if !val.Valid {
		return nil
	}
	i := int(val.Int32)
	return &i
}

// FromSqlString converts sql.NullString to Go string with default
func FromSqlString(val sql.NullString, defaultVal string) string {
	if !val.Valid {
		return defaultVal
	}
	return val.String
}

// FromSqlStringPtr converts sql.NullString to Go string pointer
func FromSqlStringPtr(val sql.NullString) *string {
	if !val.Valid {
		return nil
	}
	return &val.String
}

// ToSqlTime converts a Go time pointer to sql.NullTime
func ToSqlTime(val *time.Time) sql.NullTime {
	if val == nil {
		return sql.NullTime{Valid: false}
	}
	return sql.NullTime{Time: *val, Valid: true}
}

// FromSqlTime converts sql.NullTime to Go time pointer
func FromSqlTime(val sql.NullTime) *time.Time {
	if !val.Valid {
		return nil
	}
	return &val.Time
}

// ToNullRawMessage converts a JSON blob to a nullable jsonb parameter. Empty blobs become NULL.
func ToNullRawMessage(raw json.RawMessage) pqtype.NullRawMessage {
	if len(raw) == 0 {
		return pqtype.NullRawMessage{Valid: false}
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}
}

// FromNullRawMessage converts a scanned jsonb column to a JSON blob, defaulting to "{}".
func FromNullRawMessage(val pqtype.NullRawMessage) json.RawMessage {
	if !val.Valid || len(val.RawMessage) == 0 {
		return json.RawMessage(`{}`)
	}
	return val.RawMessage
}
