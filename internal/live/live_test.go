package live

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Napageneral/journai/internal/analysis"
	"github.com/Napageneral/journai/internal/config"
	"github.com/Napageneral/journai/internal/db"
	"github.com/Napageneral/journai/internal/journal"
	"github.com/Napageneral/journai/internal/llm"
	"github.com/Napageneral/journai/internal/llm/llmtest"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.OpenMemory(db.DriverModernc)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func count(t *testing.T, conn *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, conn.QueryRow(query, args...).Scan(&n))
	return n
}

func newInbox(t *testing.T, conn *sql.DB, gen llm.Generator) *Inbox {
	t.Helper()
	guard := llm.NewGuard(gen, 0, nil)
	j := journal.New(conn, guard, config.Default().Chat, nil, nil)
	runner := analysis.NewRunner(conn, guard, nil, analysis.RunnerConfig{}, nil)
	in := NewInbox(t.TempDir(), []string{".txt", ".md"}, conn, j, runner, nil)
	in.Debounce = 10 * time.Millisecond
	return in
}

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestImportFileOncePerContent(t *testing.T) {
	conn := setupTestDB(t)
	fake := &llmtest.Fake{Replies: map[string]string{
		llmtest.AnalyzerKey("va"): `{"valence": 0.2, "arousal": 0.5}`,
	}}
	in := newInbox(t, conn, fake)
	ctx := context.Background()
	p := write(t, in.Dir, "Sunday walk.txt", "Walked by the river.\n")

	res, err := in.ImportFile(ctx, p)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.True(t, res.Analyzed)
	assert.Equal(t, 1, count(t, conn, `SELECT COUNT(*) FROM entries WHERE title = 'Sunday walk'`))
	assert.Equal(t, 1, count(t, conn, `SELECT COUNT(*) FROM messages WHERE entry_id = ? AND content = 'Walked by the river.'`, res.EntryID))
	assert.Equal(t, 1, count(t, conn, `SELECT COUNT(*) FROM analysis_results WHERE entry_id = ?`, res.EntryID))
	assert.Equal(t, 1, count(t, conn, `SELECT COUNT(*) FROM bus_events WHERE type = 'entry.imported'`))

	again, err := in.ImportFile(ctx, p)
	require.NoError(t, err)
	assert.True(t, again.Skipped)
	assert.Equal(t, 1, count(t, conn, `SELECT COUNT(*) FROM entries`))

	write(t, in.Dir, "Sunday walk.txt", "Walked by the river. Then it rained.")
	changed, err := in.ImportFile(ctx, p)
	require.NoError(t, err)
	assert.False(t, changed.Skipped)
	assert.Equal(t, 2, count(t, conn, `SELECT COUNT(*) FROM entries`))
}

func TestImportRollsBackWhenHashCannotBeStored(t *testing.T) {
	conn := setupTestDB(t)
	// A worker_state table that rejects every value makes recording the hash fail.
	_, err := conn.Exec(`CREATE TABLE worker_state (
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL CHECK (value = ''),
		updated_at TEXT NOT NULL,
		PRIMARY KEY (namespace, key)
	)`)
	require.NoError(t, err)
	in := newInbox(t, conn, &llmtest.Fake{})
	ctx := context.Background()
	p := write(t, in.Dir, "evening.txt", "Quiet evening.")

	_, err = in.ImportFile(ctx, p)
	require.Error(t, err)
	assert.Equal(t, 0, count(t, conn, `SELECT COUNT(*) FROM entries`))
	assert.Equal(t, 0, count(t, conn, `SELECT COUNT(*) FROM messages`))

	_, err = conn.Exec(`DROP TABLE worker_state`)
	require.NoError(t, err)
	res, err := in.ImportFile(ctx, p)
	require.NoError(t, err)
	assert.NotZero(t, res.EntryID)
	again, err := in.ImportFile(ctx, p)
	require.NoError(t, err)
	assert.True(t, again.Skipped)
	assert.Equal(t, 1, count(t, conn, `SELECT COUNT(*) FROM entries`))
}

func TestImportKeepsEntryWhenAnalysisFails(t *testing.T) {
	conn := setupTestDB(t)
	in := newInbox(t, conn, &llmtest.Fake{Err: errors.New("model offline")})
	p := write(t, in.Dir, "note.md", "short note")

	res, err := in.ImportFile(context.Background(), p)
	require.NoError(t, err)
	assert.NotZero(t, res.EntryID)
	assert.Equal(t, 1, count(t, conn, `SELECT COUNT(*) FROM entries`))
	assert.Equal(t, 0, count(t, conn, `SELECT COUNT(*) FROM analysis_results`))
}

func TestScanFiltersFiles(t *testing.T) {
	conn := setupTestDB(t)
	in := newInbox(t, conn, &llmtest.Fake{})
	write(t, in.Dir, "b.txt", "second")
	write(t, in.Dir, "a.md", "first")
	write(t, in.Dir, "photo.jpg", "binary")
	write(t, in.Dir, ".hidden.txt", "secret")
	write(t, in.Dir, "empty.txt", "   ")
	require.NoError(t, os.Mkdir(filepath.Join(in.Dir, "sub.txt"), 0o755))

	results, err := in.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "a.md", filepath.Base(results[0].Path))
	assert.True(t, results[2].Skipped, "empty file")
	assert.Equal(t, 2, count(t, conn, `SELECT COUNT(*) FROM entries`))
}

func TestInboxWatcherImportsNewFiles(t *testing.T) {
	conn := setupTestDB(t)
	in := newInbox(t, conn, &llmtest.Fake{})
	write(t, in.Dir, "existing.txt", "already here")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- in.Watcher(0).Run(ctx, func() {}) }()

	entries := func() int {
		var n int
		_ = conn.QueryRow(`SELECT COUNT(*) FROM entries`).Scan(&n)
		return n
	}
	require.Eventually(t, func() bool { return entries() == 1 }, 2*time.Second, 10*time.Millisecond)

	write(t, in.Dir, "fresh.txt", "written while watching")
	require.Eventually(t, func() bool { return entries() == 2 }, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestManagerRestartsFailedWatcher(t *testing.T) {
	conn := setupTestDB(t)
	var runs atomic.Int32
	spec := WatcherSpec{
		Name: "flaky",
		Run: func(ctx context.Context, beat func()) error {
			if runs.Add(1) == 1 {
				return errors.New("boom")
			}
			<-ctx.Done()
			return nil
		},
	}
	m := NewManager(conn, nil, spec)
	m.RestartBackoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	st := GetStatuses(context.Background(), conn, "flaky")
	require.Len(t, st, 1)
	assert.Equal(t, statusStopped, st[0].Status)
	assert.Equal(t, 1, st[0].Restarts)
	assert.NotNil(t, st[0].LastHeartbeat)
}

func TestManagerRequiresWatchers(t *testing.T) {
	assert.Error(t, NewManager(setupTestDB(t), nil).Run(context.Background()))
}
