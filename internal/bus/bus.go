// Package bus is an append-only log of things that happened to the journal
// (analyses, merges, manual submissions). Consumers page through it by seq.
package bus

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Napageneral/journai/internal/db"
)

// Event types.
const (
	EntryAnalyzed     = "entry.analyzed"
	EntryImported     = "entry.imported"
	ActivitiesMerged  = "activities.merged"
	MetricSubmitted   = "metric.submitted"
	MoodSubmitted     = "mood.submitted"
	EmotionsSubmitted = "emotions.submitted"
)

type Event struct {
	Seq       int64   `json:"seq"`
	ID        string  `json:"id"`
	Type      string  `json:"type"`
	EntryID   *int64  `json:"entry_id,omitempty"`
	CreatedAt string  `json:"created_at"`
	Payload   *string `json:"payload_json,omitempty"`
}

func ensureTable(ctx context.Context, q db.Querier) error {
	_, err := q.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS bus_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			type TEXT NOT NULL,
			entry_id INTEGER,
			created_at TEXT NOT NULL,
			payload_json TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure bus_events table: %w", err)
	}
	return nil
}

// Emit appends an event. Pass the caller's transaction as q to make the
// event part of the same unit of work.
func Emit(ctx context.Context, q db.Querier, typ string, entryID *int64, payload any) error {
	if typ == "" {
		return fmt.Errorf("type is required")
	}
	if err := ensureTable(ctx, q); err != nil {
		return err
	}

	var payloadVal any
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		payloadVal = string(b)
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO bus_events (id, type, entry_id, created_at, payload_json)
		VALUES (?, ?, ?, ?, ?)
	`, uuid.New().String(), typ, db.NullInt64(entryID), db.FormatTime(time.Now()), payloadVal)
	if err != nil {
		return fmt.Errorf("failed to insert bus event: %w", err)
	}
	return nil
}

// List returns up to limit events after afterSeq, oldest first.
func List(ctx context.Context, q db.Querier, afterSeq int64, limit int) ([]Event, error) {
	if err := ensureTable(ctx, q); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := q.QueryContext(ctx, `
		SELECT seq, id, type, entry_id, created_at, payload_json
		FROM bus_events
		WHERE seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query bus events: %w", err)
	}
	defer rows.Close()

	out := []Event{}
	for rows.Next() {
		var e Event
		var entryID sql.NullInt64
		var payload sql.NullString
		if err := rows.Scan(&e.Seq, &e.ID, &e.Type, &entryID, &e.CreatedAt, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan bus event: %w", err)
		}
		if entryID.Valid {
			e.EntryID = &entryID.Int64
		}
		if payload.Valid {
			e.Payload = &payload.String
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating bus events: %w", err)
	}
	return out, nil
}
