package models

import (
	"time"

	"github.com/google/uuid"
)

// ChangeOp is the kind of row mutation carried on the change feed.
type ChangeOp string

const (
	ChangeOpInsert ChangeOp = "insert"
	ChangeOpUpdate ChangeOp = "update"
	ChangeOpDelete ChangeOp = "delete"
)

// Tables published on the change feed.
const (
	TableSessions       = "sessions"
	TableParticipations = "participations"
)

// ScopeAll subscribes to changes of every session.
const ScopeAll = "all"

// ChangeEvent is a hint that a row changed. Delivery is at-least-once and unordered;
// receivers re-fetch instead of trusting RecordID or anything else on the event.
type ChangeEvent struct {
	ID        uuid.UUID `json:"id"`
	Table     string    `json:"table"`
	Op        ChangeOp  `json:"op"`
	SessionID uuid.UUID `json:"session_id"`
	RecordID  uuid.UUID `json:"record_id"`
	Timestamp time.Time `json:"timestamp"`
}

// EndResult is the per-session outcome of a bulk end.
type EndResult struct {
	SessionID uuid.UUID `json:"session_id"`
	Ended     bool      `json:"ended"`
	Code      string    `json:"code,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// BulkResult aggregates a bulk end across sessions.
type BulkResult struct {
	Results   []EndResult `json:"results"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
}
