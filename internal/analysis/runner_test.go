package analysis

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Napageneral/journai/internal/apierr"
	"github.com/Napageneral/journai/internal/db"
	"github.com/Napageneral/journai/internal/llm"
	"github.com/Napageneral/journai/internal/llm/llmtest"
)

const fence = "```"

var replies = map[string]string{
	llmtest.AnalyzerKey("va"):     `{"valence": 0.6, "arousal": 0.4, "primary_emotion": "joy", "activity_tags": ["gaming"]}`,
	llmtest.AnalyzerKey("spider"): `Ratings: {"distressed": 3, "lonely": 8}`,
	llmtest.AnalyzerKey("plutchik"): "Here you go:\n" + fence + "json\n" +
		`{"emotions":[{"primary_emotion":"joy","intensity":0.5},{"primary_emotion":"trust","intensity":0.6,"confidence":0.8}]}` +
		"\n" + fence,
	llmtest.AnalyzerKey("activities"): `{"activities":[{"name":"Gaming ","rating":7,"comment":"fun"}]}`,
	llmtest.AnalyzerKey("themeriver"): `[{"emotion":"happy","reasons":["game night"],"intensity":0.7}]`,
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.OpenMemory(db.DriverModernc)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func seedEntry(t *testing.T, conn *sql.DB, messages ...string) (sessionID, entryID int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, conn.QueryRowContext(ctx,
		`INSERT INTO sessions (date) VALUES ('2026-10-18') RETURNING id`).Scan(&sessionID))
	require.NoError(t, conn.QueryRowContext(ctx,
		`INSERT INTO entries (session_id, title, timestamp) VALUES (?, 'evening', '2026-10-18 09:00:00') RETURNING id`,
		sessionID).Scan(&entryID))
	for i, m := range messages {
		_, err := conn.ExecContext(ctx,
			`INSERT INTO messages (entry_id, sender, content, timestamp) VALUES (?, 'user', ?, ?)`,
			entryID, m, db.FormatTime(time.Date(2026, 10, 18, 9, i, 0, 0, time.UTC)))
		require.NoError(t, err)
	}
	return sessionID, entryID
}

func newRunner(conn *sql.DB, gen llm.Generator) *Runner {
	r := NewRunner(conn, llm.NewGuard(gen, 0, nil), nil, RunnerConfig{}, nil)
	r.now = func() time.Time { return time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC) }
	return r
}

func count(t *testing.T, conn *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, conn.QueryRow(query, args...).Scan(&n))
	return n
}

func TestAnalyzeAllStoresEveryAnalyzer(t *testing.T) {
	conn := openDB(t)
	_, entryID := seedEntry(t, conn, "Played games with friends.", "Felt great.")
	fake := &llmtest.Fake{Replies: replies}

	report, err := newRunner(conn, fake).AnalyzeAll(context.Background(), entryID)
	require.NoError(t, err)
	assert.Empty(t, report.Failed)
	assert.Len(t, fake.Calls(), 5)
	for _, c := range fake.Calls() {
		assert.Contains(t, c.Prompt, "Played games with friends. Felt great.")
		assert.Equal(t, 0.0, c.Opts.Temperature)
		assert.Equal(t, 500, c.Opts.MaxTokens)
	}

	assert.Equal(t, 1, count(t, conn, `SELECT COUNT(*) FROM analysis_results WHERE entry_id = ?`, entryID))
	assert.Equal(t, 2, count(t, conn, `SELECT COUNT(*) FROM metrics WHERE metric_type = 'quiz' AND source = 'ai'`))
	assert.Equal(t, 1, count(t, conn, `SELECT COUNT(*) FROM metrics WHERE description = 'f7' AND comment = 'lonely' AND rating = 8`))
	assert.Equal(t, 2, count(t, conn, `SELECT COUNT(*) FROM emotion_events WHERE entry_id = ? AND source = 'ai'`, entryID))
	assert.Equal(t, 1, count(t, conn, `SELECT COUNT(*) FROM emotion_dyads WHERE dyad_label = 'love' AND ABS(weight - 0.55) < 1e-9 AND ABS(confidence - 0.8) < 1e-9`))
	assert.Equal(t, 1, count(t, conn, `
		SELECT COUNT(*) FROM metrics m JOIN activities a ON a.id = m.activity_id
		WHERE m.metric_type = 'activity' AND a.name = 'gaming' AND m.rating = 7 AND m.comment = 'fun'`))
	assert.Equal(t, 1, count(t, conn, `SELECT COUNT(*) FROM themeriver WHERE emotion = 'joy' AND timestamp = '2026-10-18 09:00:00'`))
	assert.Equal(t, 1, count(t, conn, `SELECT COUNT(*) FROM bus_events WHERE type = 'entry.analyzed' AND entry_id = ?`, entryID))

	va := report.Results["va"].(*VAResult)
	assert.Equal(t, 0.6, va.Valence)
}

func TestAnalyzeAllIsolatesFailures(t *testing.T) {
	conn := openDB(t)
	_, entryID := seedEntry(t, conn, "Long day.")
	fake := &llmtest.Fake{Respond: func(prompt string, _ llm.Options) (string, error) {
		if strings.Contains(prompt, llmtest.AnalyzerKey("va")) {
			return "", errors.New("model crashed")
		}
		if strings.Contains(prompt, llmtest.AnalyzerKey("spider")) {
			return "I cannot rate that.", nil
		}
		for k, v := range replies {
			if strings.Contains(prompt, k) {
				return v, nil
			}
		}
		return "", nil
	}}

	report, err := newRunner(conn, fake).AnalyzeAll(context.Background(), entryID)
	require.NoError(t, err)
	assert.Contains(t, report.Failed, "va")
	assert.Contains(t, report.Failed, "spider")
	assert.True(t, report.Results["va"].Empty())
	assert.True(t, report.Results["spider"].Empty())

	assert.Equal(t, 0, count(t, conn, `SELECT COUNT(*) FROM analysis_results`))
	assert.Equal(t, 0, count(t, conn, `SELECT COUNT(*) FROM metrics WHERE metric_type = 'quiz'`))
	assert.Equal(t, 2, count(t, conn, `SELECT COUNT(*) FROM emotion_events`))
	assert.Equal(t, 1, count(t, conn, `SELECT COUNT(*) FROM themeriver`))
}

func TestAnalyzeAllTwiceKeepsOneEventPerPrimary(t *testing.T) {
	conn := openDB(t)
	_, entryID := seedEntry(t, conn, "Played games.")
	r := newRunner(conn, &llmtest.Fake{Replies: replies})

	for i := 0; i < 2; i++ {
		_, err := r.AnalyzeAll(context.Background(), entryID)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, count(t, conn, `SELECT COUNT(*) FROM analysis_results`))
	assert.Equal(t, 2, count(t, conn, `SELECT COUNT(*) FROM emotion_events`))
	assert.Equal(t, 1, count(t, conn, `SELECT COUNT(*) FROM emotion_dyads`))
	assert.Equal(t, 4, count(t, conn, `SELECT COUNT(*) FROM metrics WHERE metric_type = 'quiz'`), "spider metrics are appended")
}

func TestAnalyzeAllRollsBackOnStorageError(t *testing.T) {
	conn := openDB(t)
	_, entryID := seedEntry(t, conn, "Played games.")
	_, err := conn.Exec(`
		CREATE TRIGGER themeriver_fail BEFORE INSERT ON themeriver
		BEGIN SELECT RAISE(ABORT, 'disk full'); END`)
	require.NoError(t, err)

	_, err = newRunner(conn, &llmtest.Fake{Replies: replies}).AnalyzeAll(context.Background(), entryID)
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.KindStorage))
	assert.True(t, apierr.Retryable(err))

	assert.Equal(t, 0, count(t, conn, `SELECT COUNT(*) FROM analysis_results`))
	assert.Equal(t, 0, count(t, conn, `SELECT COUNT(*) FROM emotion_events`))
	assert.Equal(t, 0, count(t, conn, `SELECT COUNT(*) FROM metrics`))
}

func TestAnalyzeAllInputErrors(t *testing.T) {
	conn := openDB(t)
	_, entryID := seedEntry(t, conn)
	r := newRunner(conn, &llmtest.Fake{Replies: replies})

	_, err := r.AnalyzeAll(context.Background(), entryID)
	assert.True(t, apierr.Is(err, apierr.KindValidation), "entry without user text")

	_, err = r.AnalyzeAll(context.Background(), entryID+100)
	assert.True(t, apierr.Is(err, apierr.KindNotFound))
}

func TestAnalyzeSingle(t *testing.T) {
	conn := openDB(t)
	_, entryID := seedEntry(t, conn, "Played games.")

	report, err := newRunner(conn, &llmtest.Fake{Replies: replies}).Analyze(context.Background(), entryID, "themeriver")
	require.NoError(t, err)
	assert.Len(t, report.Results, 1)
	assert.Equal(t, 1, count(t, conn, `SELECT COUNT(*) FROM themeriver`))
	assert.Equal(t, 0, count(t, conn, `SELECT COUNT(*) FROM analysis_results`))

	_, err = newRunner(conn, &llmtest.Fake{Err: errors.New("refused")}).Analyze(context.Background(), entryID, "themeriver")
	assert.True(t, apierr.Is(err, apierr.KindUnavailable))
	assert.ErrorIs(t, err, llm.ErrUnavailable)

	_, err = newRunner(conn, &llmtest.Fake{Default: "nothing"}).Analyze(context.Background(), entryID, "spider")
	assert.ErrorIs(t, err, ErrNoRatings)
	assert.True(t, apierr.Is(err, apierr.KindBadOutput), "unparseable answer is not an outage")
	assert.False(t, apierr.Is(err, apierr.KindUnavailable))

	_, err = newRunner(conn, &llmtest.Fake{}).Analyze(context.Background(), entryID, "horoscope")
	assert.True(t, apierr.Is(err, apierr.KindNotFound))
}

func TestUserTextJoinsUserMessagesInOrder(t *testing.T) {
	conn := openDB(t)
	_, entryID := seedEntry(t, conn, "first", "second")
	_, err := conn.Exec(`INSERT INTO messages (entry_id, sender, content, timestamp) VALUES (?, 'bot', 'reply', '2026-10-18 09:00:30')`, entryID)
	require.NoError(t, err)

	text, err := UserText(context.Background(), conn, entryID)
	require.NoError(t, err)
	assert.Equal(t, "first second", text)
}
