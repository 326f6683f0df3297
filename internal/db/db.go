package db

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/Napageneral/journai/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// Registered database/sql driver names.
const (
	DriverModernc = "sqlite"
	DriverCGO     = "sqlite3"
)

// TimeLayout is the storage format of every timestamp column (always UTC).
const TimeLayout = "2006-01-02 15:04:05"

// DateLayout is the storage format of session dates.
const DateLayout = "2006-01-02"

// Querier is the narrow query/command surface shared by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens the journal database at path and applies the schema.
// An empty driver selects the pure-Go driver.
func Open(driver, path string) (*sql.DB, error) {
	if driver == "" {
		driver = DriverModernc
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One shared connection: the journal is a single-writer store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL keeps readers of other processes (the CLI) off the writer's back.
	// busy_timeout reduces SQLITE_BUSY errors under contention.
	pragmas := []struct {
		stmt string
		what string
	}{
		{"PRAGMA journal_mode = WAL", "enable WAL"},
		{"PRAGMA synchronous = NORMAL", "set synchronous"},
		{"PRAGMA busy_timeout = 5000", "set busy_timeout"},
		{"PRAGMA foreign_keys = ON", "enable foreign keys"},
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to %s: %w", p.what, err)
		}
	}

	if err := Init(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// OpenMemory opens a fresh in-memory database with the schema applied.
func OpenMemory(driver string) (*sql.DB, error) {
	return Open(driver, ":memory:")
}

// Init creates tables if needed.
func Init(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// GetPath returns the default path to the database file
func GetPath() (string, error) {
	dataDir, err := config.GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "journai.db"), nil
}

// WithTx runs fn inside a transaction. fn's error (or a panic) rolls back.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FormatTime renders t in the storage layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime reads a storage timestamp. Values written by sqlite's
// CURRENT_TIMESTAMP and RFC 3339 strings are accepted too.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range []string{TimeLayout, time.RFC3339Nano, "2006-01-02T15:04:05", DateLayout} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// NullInt64 converts an optional id to a driver value.
func NullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

// NullString converts an optional string to a driver value; empty means NULL.
func NullString(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}
