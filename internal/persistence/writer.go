package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"PerpEngine/internal/event"
)

// EventRow is one row of event_log.events.
type EventRow struct {
	Sequence    uint64
	EventType   string
	MarketIndex uint16
	Ts          int64
	Payload     []byte // JSON-encoded event payload
}

// RowFromEnvelope flattens an engine event for storage.
func RowFromEnvelope(ev event.Envelope) (EventRow, error) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return EventRow{}, fmt.Errorf("marshal payload seq=%d: %w", ev.Sequence, err)
	}
	return EventRow{
		Sequence:    ev.Sequence,
		EventType:   string(ev.Type),
		MarketIndex: ev.MarketIndex,
		Ts:          ev.Ts,
		Payload:     payload,
	}, nil
}

// EventLogWriter batch-writes engine events to Postgres with multi-row
// INSERT. Conflicting sequences are skipped, so replayed batches are
// idempotent.
type EventLogWriter struct {
	db *sql.DB
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// WriteBatch writes a batch of events inside tx.
func (w *EventLogWriter) WriteBatch(ctx context.Context, tx *sql.Tx, rows []EventRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.events
		(sequence, event_type, market_index, ts, payload)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*5)
	for i, r := range rows {
		base := i * 5
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5,
		))
		args = append(args, int64(r.Sequence), r.EventType, int32(r.MarketIndex), r.Ts, r.Payload)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// LoadEventsFrom reads events ordered by sequence, starting at fromSequence,
// at most limit rows. Used by consumers recovering from publish gaps.
func (w *EventLogWriter) LoadEventsFrom(ctx context.Context, fromSequence uint64, limit int) ([]EventRow, error) {
	rows, err := w.db.QueryContext(ctx, `
		SELECT sequence, event_type, market_index, ts, payload
		FROM event_log.events
		WHERE sequence >= $1
		ORDER BY sequence
		LIMIT $2`,
		int64(fromSequence), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var r EventRow
		var seq int64
		var mi int32
		if err := rows.Scan(&seq, &r.EventType, &mi, &r.Ts, &r.Payload); err != nil {
			return nil, err
		}
		r.Sequence = uint64(seq)
		r.MarketIndex = uint16(mi)
		out = append(out, r)
	}
	return out, rows.Err()
}
