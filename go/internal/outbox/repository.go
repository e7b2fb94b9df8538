package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/breakroom/go/internal/models"
	"github.com/mcdev12/breakroom/go/internal/sqlutil"
	"github.com/sqlc-dev/pqtype"
)

const outboxColumns = `id, table_name, op, session_id, record_id, payload, created_at, sent_at`

// Repository reads and writes change_outbox. Bound to a *sql.Tx it records changes
// atomically with the mutation that caused them.
type Repository struct {
	db sqlutil.DBTX
}

func NewRepository(db sqlutil.DBTX) *Repository {
	return &Repository{
		db: db,
	}
}

// InsertChange records a row change. The insert trigger notifies the relay.
func (r *Repository) InsertChange(ctx context.Context, table string, op models.ChangeOp, sessionID, recordID uuid.UUID) error {
	payload, err := json.Marshal(map[string]string{
		"table":     table,
		"op":        string(op),
		"record_id": recordID.String(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal change payload: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO change_outbox (id, table_name, op, session_id, record_id, payload)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), table, string(op), sessionID, recordID,
		pqtype.NullRawMessage{RawMessage: payload, Valid: true},
	)
	if err != nil {
		return fmt.Errorf("failed to insert %s.%s outbox event: %w", table, op, sqlutil.Classify(err))
	}
	return nil
}

func (r *Repository) FetchUnsentOutbox(ctx context.Context, limit int) ([]OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+outboxColumns+` FROM change_outbox
		WHERE sent_at IS NULL
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", sqlutil.Classify(err))
	}
	defer rows.Close()

	var events []OutboxEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

func (r *Repository) FetchOutboxByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+outboxColumns+` FROM change_outbox
		WHERE id = $1 AND sent_at IS NULL`, id)
	ev, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("outbox event not found or already sent: %w", sqlutil.Classify(err))
		}
		return nil, fmt.Errorf("failed to fetch outbox event by ID: %w", sqlutil.Classify(err))
	}
	return ev, nil
}

func (r *Repository) MarkOutboxSent(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE change_outbox SET sent_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to mark outbox event as sent: %w", sqlutil.Classify(err))
	}
	return nil
}

func (r *Repository) CountUnsent(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM change_outbox WHERE sent_at IS NULL`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pending events: %w", sqlutil.Classify(err))
	}
	return count, nil
}

// PurgeSent deletes events delivered before cutoff.
func (r *Repository) PurgeSent(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM change_outbox WHERE sent_at IS NOT NULL AND sent_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge sent outbox events: %w", sqlutil.Classify(err))
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*OutboxEvent, error) {
	var (
		ev      OutboxEvent
		op      string
		payload pqtype.NullRawMessage
		sentAt  sql.NullTime
	)
	if err := row.Scan(&ev.ID, &ev.Table, &op, &ev.SessionID, &ev.RecordID, &payload, &ev.CreatedAt, &sentAt); err != nil {
		return nil, err
	}
	ev.Op = models.ChangeOp(op)
	ev.Payload = sqlutil.FromNullRawMessage(payload)
	ev.SentAt = sqlutil.FromSqlTime(sentAt)
	return &ev, nil
}
