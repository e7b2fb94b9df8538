package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/breakroom/go/internal/models"
)

// OutboxEvent is one row of change_outbox.
type OutboxEvent struct {
	ID        uuid.UUID       `json:"id"`
	Table     string          `json:"table"`
	Op        models.ChangeOp `json:"op"`
	SessionID uuid.UUID       `json:"session_id"`
	RecordID  uuid.UUID       `json:"record_id"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    *time.Time      `json:"sent_at,omitempty"`
}

// EventType is the metric label and subject suffix, e.g. "sessions.update".
func (e OutboxEvent) EventType() string {
	return fmt.Sprintf("%s.%s", e.Table, e.Op)
}

// Change converts the row to the change-feed hint published on the bus.
func (e OutboxEvent) Change() models.ChangeEvent {
	return models.ChangeEvent{
		ID:        e.ID,
		Table:     e.Table,
		Op:        e.Op,
		SessionID: e.SessionID,
		RecordID:  e.RecordID,
		Timestamp: e.CreatedAt,
	}
}
