package analysis

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Napageneral/journai/internal/apierr"
	"github.com/Napageneral/journai/internal/bus"
	"github.com/Napageneral/journai/internal/db"
	"github.com/Napageneral/journai/internal/extract"
	"github.com/Napageneral/journai/internal/llm"
	"github.com/Napageneral/journai/internal/logger"
)

// DefaultMaxTextChars bounds the journal text sent to the model.
const DefaultMaxTextChars = 4000

// RunnerConfig holds the tunables of a Runner.
type RunnerConfig struct {
	MaxTextChars int
	MaxTokens    int
}

// Runner analyzes entries with every registered analyzer.
type Runner struct {
	conn     *sql.DB
	gen      *llm.Guard
	registry *Registry
	cfg      RunnerConfig
	log      *logger.Logger
	now      func() time.Time
}

// NewRunner creates a Runner. A nil registry means DefaultRegistry.
func NewRunner(conn *sql.DB, gen *llm.Guard, registry *Registry, cfg RunnerConfig, log *logger.Logger) *Runner {
	if registry == nil {
		registry = DefaultRegistry(nil)
	}
	if gen == nil {
		gen = llm.NewGuard(nil, 0, log)
	}
	if cfg.MaxTextChars == 0 {
		cfg.MaxTextChars = DefaultMaxTextChars
	}
	return &Runner{
		conn:     conn,
		gen:      gen,
		registry: registry,
		cfg:      cfg,
		log:      logger.OrNop(log),
		now:      time.Now,
	}
}

// Registry returns the analyzers the runner drives.
func (r *Runner) Registry() *Registry { return r.registry }

// Report is the outcome of an analysis run.
type Report struct {
	EntryID   int64             `json:"entry_id"`
	SessionID int64             `json:"session_id"`
	Results   map[string]Result `json:"results"`
	// Failed maps analyzer name to why it produced no result.
	Failed map[string]string `json:"failed,omitempty"`
}

// AnalyzeAll runs every analyzer on the entry and stores all non-empty
// results in one transaction. A failing analyzer yields an empty result and
// does not stop the others.
func (r *Runner) AnalyzeAll(ctx context.Context, entryID int64) (*Report, error) {
	const op = "analyze entry"
	target, text, err := r.prepare(ctx, op, entryID)
	if err != nil {
		return nil, err
	}

	report := &Report{
		EntryID:   entryID,
		SessionID: target.SessionID,
		Results:   make(map[string]Result),
	}
	for _, a := range r.registry.All() {
		res, err := r.run(ctx, a, text)
		if err != nil {
			r.log.Warn("analyzer failed", "analyzer", a.Name(), "entry_id", entryID, "error", err)
			if report.Failed == nil {
				report.Failed = make(map[string]string)
			}
			report.Failed[a.Name()] = err.Error()
			res = emptyResult(a)
		}
		report.Results[a.Name()] = res
	}

	if err := r.persist(ctx, target, report); err != nil {
		return nil, apierr.Storage(op, err)
	}
	r.log.Info("entry analyzed", "entry_id", entryID, "failed", len(report.Failed))
	return report, nil
}

// Analyze runs a single analyzer. Unlike AnalyzeAll the caller asked for
// this result explicitly, so generation failures are returned.
func (r *Runner) Analyze(ctx context.Context, entryID int64, name string) (*Report, error) {
	op := "analyze " + name
	a, ok := r.registry.Get(name)
	if !ok {
		return nil, apierr.NotFound(op, "unknown analyzer %q", name)
	}
	target, text, err := r.prepare(ctx, op, entryID)
	if err != nil {
		return nil, err
	}

	res, err := r.run(ctx, a, text)
	switch {
	case errors.Is(err, llm.ErrBusy):
		return nil, apierr.Busy(op, err)
	case apierr.Is(err, apierr.KindBadOutput):
		return nil, err
	case err != nil:
		return nil, apierr.Unavailable(op, err)
	}

	report := &Report{
		EntryID:   entryID,
		SessionID: target.SessionID,
		Results:   map[string]Result{name: res},
	}
	if err := r.persist(ctx, target, report); err != nil {
		return nil, apierr.Storage(op, err)
	}
	return report, nil
}

func (r *Runner) prepare(ctx context.Context, op string, entryID int64) (Target, string, error) {
	target, err := LoadTarget(ctx, r.conn, entryID)
	if err != nil {
		return Target{}, "", err
	}
	text, err := UserText(ctx, r.conn, entryID)
	if err != nil {
		return Target{}, "", apierr.Storage(op, err)
	}
	if text == "" {
		return Target{}, "", apierr.Validation(op, "no user messages for entry %d", entryID)
	}
	target.Timestamp = db.FormatTime(r.now())
	return target, Truncate(text, r.cfg.MaxTextChars), nil
}

func (r *Runner) run(ctx context.Context, a Analyzer, text string) (Result, error) {
	shape := a.Shape()
	raw, err := r.gen.Generate(ctx, BuildPrompt(a, text), llm.AnalysisOptions(r.cfg.MaxTokens))
	if err != nil {
		return nil, err
	}
	r.log.Debug("analyzer output", "analyzer", a.Name(), "chars", len(raw))
	res, err := a.Parse(extract.Extract(raw, shape.WantsArray(), a.Name()))
	if err != nil {
		return nil, apierr.BadOutput("analyze "+a.Name(), err)
	}
	return res, nil
}

func emptyResult(a Analyzer) Result {
	res, _ := a.Parse(extract.Empty(a.Shape().WantsArray()))
	return res
}

func (r *Runner) persist(ctx context.Context, target Target, report *Report) error {
	return db.WithTx(ctx, r.conn, func(tx *sql.Tx) error {
		var stored []string
		for _, a := range r.registry.All() {
			res, ok := report.Results[a.Name()]
			if !ok || res == nil || res.Empty() {
				continue
			}
			if err := a.Persist(ctx, tx, target, res); err != nil {
				return err
			}
			stored = append(stored, a.Name())
		}
		entryID := target.EntryID
		return bus.Emit(ctx, tx, bus.EntryAnalyzed, &entryID, map[string]any{
			"session_id": target.SessionID,
			"analyzers":  stored,
		})
	})
}

// LoadTarget reads the session and start time of an entry.
func LoadTarget(ctx context.Context, q db.Querier, entryID int64) (Target, error) {
	t := Target{EntryID: entryID}
	err := q.QueryRowContext(ctx, `SELECT session_id, timestamp FROM entries WHERE id = ?`, entryID).
		Scan(&t.SessionID, &t.EntryTimestamp)
	if err == sql.ErrNoRows {
		return Target{}, apierr.NotFound("load entry", "entry %d not found", entryID)
	}
	if err != nil {
		return Target{}, apierr.Storage("load entry", err)
	}
	return t, nil
}

// UserText joins the user's messages of an entry, oldest first.
func UserText(ctx context.Context, q db.Querier, entryID int64) (string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT content FROM messages
		WHERE entry_id = ? AND sender = 'user'
		ORDER BY timestamp ASC, id ASC
	`, entryID)
	if err != nil {
		return "", fmt.Errorf("query user messages: %w", err)
	}
	defer rows.Close()

	var parts []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return "", fmt.Errorf("scan message: %w", err)
		}
		parts = append(parts, s)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate messages: %w", err)
	}
	return strings.TrimSpace(strings.Join(parts, " ")), nil
}
