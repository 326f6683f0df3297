// Package journal owns sessions, entries and their messages, the chat
// exchange with the companion model, and the manual submissions (metrics,
// mood quiz, self-reported emotions).
//
// There is no ambient "current session": every operation that writes gets a
// Scope from its caller, usually built with Today.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Napageneral/journai/internal/apierr"
	"github.com/Napageneral/journai/internal/bus"
	"github.com/Napageneral/journai/internal/config"
	"github.com/Napageneral/journai/internal/db"
	"github.com/Napageneral/journai/internal/dyad"
	"github.com/Napageneral/journai/internal/llm"
	"github.com/Napageneral/journai/internal/logger"
)

// Scope is the session (and optionally the entry) an operation acts in.
type Scope struct {
	SessionID int64  `json:"session_id"`
	EntryID   *int64 `json:"entry_id,omitempty"`
}

// WithEntry returns a copy of s bound to entry id.
func (s Scope) WithEntry(id int64) Scope {
	s.EntryID = &id
	return s
}

// Journal is the write side of the journaling core.
type Journal struct {
	conn    *sql.DB
	gen     *llm.Guard
	chat    config.ChatConfig
	deriver *dyad.Deriver
	log     *logger.Logger
	now     func() time.Time
}

// New creates a Journal. gen may be nil when no model is configured; chat
// replies are then always omitted.
func New(conn *sql.DB, gen *llm.Guard, chat config.ChatConfig, deriver *dyad.Deriver, log *logger.Logger) *Journal {
	if gen == nil {
		gen = llm.NewGuard(nil, 0, log)
	}
	if deriver == nil {
		deriver = dyad.New(dyad.DefaultThreshold, log)
	}
	return &Journal{
		conn:    conn,
		gen:     gen,
		chat:    chat,
		deriver: deriver,
		log:     logger.OrNop(log),
		now:     time.Now,
	}
}

func (j *Journal) timestamp() string { return db.FormatTime(j.now()) }

// Today returns the scope of today's session (UTC), creating it if needed.
func (j *Journal) Today(ctx context.Context) (Scope, error) {
	date := j.now().UTC().Format("2006-01-02")
	_, err := j.conn.ExecContext(ctx, `INSERT INTO sessions (date) VALUES (?) ON CONFLICT(date) DO NOTHING`, date)
	if err != nil {
		return Scope{}, apierr.Storage("open session", err)
	}
	var id int64
	if err := j.conn.QueryRowContext(ctx, `SELECT id FROM sessions WHERE date = ?`, date).Scan(&id); err != nil {
		return Scope{}, apierr.Storage("open session", err)
	}
	return Scope{SessionID: id}, nil
}

// Message is one line of an entry's conversation.
type Message struct {
	ID        int64  `json:"id"`
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// Entry is a conversation inside a session.
type Entry struct {
	ID        int64     `json:"entry_id"`
	SessionID int64     `json:"session_id"`
	Title     string    `json:"title"`
	Timestamp string    `json:"timestamp"`
	Messages  []Message `json:"messages"`
}

const (
	SenderUser = "user"
	SenderBot  = "bot"
)

// CreateEntry starts a new entry in the scope's session.
func (j *Journal) CreateEntry(ctx context.Context, scope Scope, title string) (*Entry, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apierr.Validation("create entry", "title cannot be empty")
	}
	e, err := createEntry(ctx, j.conn, scope.SessionID, title, j.timestamp())
	if err != nil {
		return nil, apierr.Storage("create entry", err)
	}
	return e, nil
}

func createEntry(ctx context.Context, q db.Querier, sessionID int64, title, ts string) (*Entry, error) {
	e := &Entry{SessionID: sessionID, Title: title, Timestamp: ts, Messages: []Message{}}
	err := q.QueryRowContext(ctx,
		`INSERT INTO entries (session_id, title, timestamp) VALUES (?, ?, ?) RETURNING id`,
		sessionID, title, ts).Scan(&e.ID)
	if err != nil {
		return nil, fmt.Errorf("insert entry: %w", err)
	}
	return e, nil
}

// ImportEntry stores text written outside the chat as a new entry holding a
// single user message. Each of also runs in the same transaction after the
// entry is written; an error from one rolls the import back.
func (j *Journal) ImportEntry(ctx context.Context, scope Scope, title, content, origin string, also ...func(ctx context.Context, q db.Querier, e *Entry) error) (*Entry, error) {
	const op = "import entry"
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	switch {
	case title == "":
		return nil, apierr.Validation(op, "title cannot be empty")
	case content == "":
		return nil, apierr.Validation(op, "%s is empty", title)
	}

	var e *Entry
	ts := j.timestamp()
	err := db.WithTx(ctx, j.conn, func(tx *sql.Tx) error {
		var err error
		if e, err = createEntry(ctx, tx, scope.SessionID, title, ts); err != nil {
			return err
		}
		id, err := AddMessage(ctx, tx, e.ID, SenderUser, content, ts)
		if err != nil {
			return err
		}
		e.Messages = []Message{{ID: id, Sender: SenderUser, Content: content, Timestamp: ts}}
		for _, fn := range also {
			if err := fn(ctx, tx, e); err != nil {
				return err
			}
		}
		return bus.Emit(ctx, tx, bus.EntryImported, &e.ID, map[string]any{"origin": origin, "title": title})
	})
	if err != nil {
		return nil, apierr.Storage(op, err)
	}
	return e, nil
}

// AddMessage appends a message to an entry.
func AddMessage(ctx context.Context, q db.Querier, entryID int64, sender, content, ts string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx,
		`INSERT INTO messages (entry_id, sender, content, timestamp) VALUES (?, ?, ?, ?) RETURNING id`,
		entryID, sender, content, ts).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert %s message: %w", sender, err)
	}
	return id, nil
}

// EntrySession returns the session an entry belongs to.
func (j *Journal) EntrySession(ctx context.Context, entryID int64) (int64, error) {
	var sessionID int64
	err := j.conn.QueryRowContext(ctx, `SELECT session_id FROM entries WHERE id = ?`, entryID).Scan(&sessionID)
	if err == sql.ErrNoRows {
		return 0, apierr.NotFound("load entry", "entry %d not found", entryID)
	}
	if err != nil {
		return 0, apierr.Storage("load entry", err)
	}
	return sessionID, nil
}

// ListEntries returns every entry, newest first, each with its messages.
func (j *Journal) ListEntries(ctx context.Context) ([]Entry, error) {
	rows, err := j.conn.QueryContext(ctx, `
		SELECT id, session_id, title, timestamp FROM entries
		ORDER BY timestamp DESC, id DESC`)
	if err != nil {
		return nil, apierr.Storage("list entries", err)
	}
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Title, &e.Timestamp); err != nil {
			rows.Close()
			return nil, apierr.Storage("list entries", err)
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, apierr.Storage("list entries", err)
	}

	// Messages are loaded after the entry cursor is closed: the pool has a
	// single connection.
	for i := range entries {
		msgs, err := messages(ctx, j.conn, entries[i].ID)
		if err != nil {
			return nil, apierr.Storage("list entries", err)
		}
		entries[i].Messages = msgs
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

func messages(ctx context.Context, q db.Querier, entryID int64) ([]Message, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, sender, content, timestamp FROM messages
		WHERE entry_id = ?
		ORDER BY timestamp ASC, id ASC`, entryID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	out := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Sender, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// History returns the messages of an entry, or of the latest entry when
// entryID is nil. With no entries at all the result has no entry id.
func (j *Journal) History(ctx context.Context, entryID *int64) (*Entry, error) {
	var e Entry
	var err error
	if entryID == nil {
		err = j.conn.QueryRowContext(ctx, `
			SELECT id, session_id, title, timestamp FROM entries
			ORDER BY timestamp DESC, id DESC LIMIT 1`).Scan(&e.ID, &e.SessionID, &e.Title, &e.Timestamp)
		if err == sql.ErrNoRows {
			return &Entry{Messages: []Message{}}, nil
		}
	} else {
		err = j.conn.QueryRowContext(ctx, `SELECT id, session_id, title, timestamp FROM entries WHERE id = ?`, *entryID).
			Scan(&e.ID, &e.SessionID, &e.Title, &e.Timestamp)
		if err == sql.ErrNoRows {
			return nil, apierr.NotFound("history", "entry %d not found", *entryID)
		}
	}
	if err != nil {
		return nil, apierr.Storage("history", err)
	}
	if e.Messages, err = messages(ctx, j.conn, e.ID); err != nil {
		return nil, apierr.Storage("history", err)
	}
	return &e, nil
}

// RenameEntry sets a new, non-empty title.
func (j *Journal) RenameEntry(ctx context.Context, entryID int64, title string) error {
	const op = "rename entry"
	title = strings.TrimSpace(title)
	if title == "" {
		return apierr.Validation(op, "title cannot be empty")
	}
	res, err := j.conn.ExecContext(ctx, `UPDATE entries SET title = ? WHERE id = ?`, title, entryID)
	if err != nil {
		return apierr.Storage(op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apierr.NotFound(op, "entry %d not found", entryID)
	}
	return nil
}

// DeleteEntry removes an entry; messages, metrics, analyses, emotion events,
// dyads and themeriver rows go with it through foreign key cascades.
func (j *Journal) DeleteEntry(ctx context.Context, entryID int64) error {
	const op = "delete entry"
	var affected int64
	err := db.WithTx(ctx, j.conn, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, entryID)
		if err != nil {
			return err
		}
		affected, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return apierr.Storage(op, err)
	}
	if affected == 0 {
		return apierr.NotFound(op, "entry %d not found", entryID)
	}
	j.log.Info("entry deleted", "entry_id", entryID)
	return nil
}

// EndEntry links the session's metrics recorded in the last five minutes
// without an entry to entryID, and returns how many were linked.
func (j *Journal) EndEntry(ctx context.Context, scope Scope, entryID int64) (int64, error) {
	const op = "end entry"
	if _, err := j.EntrySession(ctx, entryID); err != nil {
		return 0, err
	}
	since := db.FormatTime(j.now().Add(-5 * time.Minute))
	res, err := j.conn.ExecContext(ctx, `
		UPDATE metrics SET entry_id = ?
		WHERE session_id = ? AND entry_id IS NULL AND timestamp >= ?`,
		entryID, scope.SessionID, since)
	if err != nil {
		return 0, apierr.Storage(op, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (j *Journal) requireEntry(ctx context.Context, op string, entryID *int64) error {
	if entryID == nil {
		return nil
	}
	var one int
	err := j.conn.QueryRowContext(ctx, `SELECT 1 FROM entries WHERE id = ?`, *entryID).Scan(&one)
	if err == sql.ErrNoRows {
		return apierr.NotFound(op, "entry %d not found", *entryID)
	}
	if err != nil {
		return apierr.Storage(op, err)
	}
	return nil
}
