// Package state is a small namespaced key/value table for background
// workers, such as the inbox watcher's record of imported files.
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Napageneral/journai/internal/db"
)

func ensureTable(ctx context.Context, q db.Querier) error {
	_, err := q.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS worker_state (
			namespace TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (namespace, key)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure worker_state table: %w", err)
	}
	return nil
}

func Get(ctx context.Context, q db.Querier, namespace, key string) (string, bool, error) {
	if err := ensureTable(ctx, q); err != nil {
		return "", false, err
	}
	var v string
	err := q.QueryRowContext(ctx, `SELECT value FROM worker_state WHERE namespace = ? AND key = ?`, namespace, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get worker state: %w", err)
	}
	return v, true, nil
}

func Set(ctx context.Context, q db.Querier, namespace, key, value string) error {
	if err := ensureTable(ctx, q); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO worker_state (namespace, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, namespace, key, value, db.FormatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to set worker state: %w", err)
	}
	return nil
}
