// Package aggregate answers the read side of the journal: per-entry,
// per-session or windowed views of stored analyses, emotions and metrics,
// shaped for charts.
package aggregate

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Napageneral/journai/internal/db"
	"github.com/Napageneral/journai/internal/emotion"
)

// Filter selects rows. Exactly one mode applies, in this order: EntryID,
// SessionID, Range, View, otherwise everything. Source only narrows the
// Plutchik queries and combines with whichever mode applies.
type Filter struct {
	EntryID   *int64
	SessionID *int64
	View      View
	// Range is an explicit window; it takes the place of View.
	Range  *Window
	Source emotion.Source
}

// Aggregator runs the queries against q.
type Aggregator struct {
	q   db.Querier
	now func() time.Time
}

func New(q db.Querier) *Aggregator {
	return &Aggregator{q: q, now: time.Now}
}

// WithClock returns a copy that evaluates views at now().
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	c := *a
	c.now = now
	return &c
}

// where accumulates AND-ed conditions.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, args ...any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// scope adds the single filter mode of f; col prefixes column names.
func (a *Aggregator) scope(w *where, f Filter, col string) {
	switch {
	case f.EntryID != nil:
		w.add(col+"entry_id = ?", *f.EntryID)
		return
	case f.SessionID != nil:
		w.add(col+"session_id = ?", *f.SessionID)
		return
	}
	win, ok := Window{}, false
	if f.Range != nil {
		win, ok = *f.Range, true
	} else {
		win, ok = f.View.Window(a.now())
	}
	if ok {
		w.add(col+"timestamp >= ? AND "+col+"timestamp < ?", db.FormatTime(win.Start), db.FormatTime(win.End))
	}
}

func nullableInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

// VARow is the valence/arousal reading of one entry.
type VARow struct {
	EntryID          int64    `json:"entry_id"`
	SessionID        *int64   `json:"session_id"`
	Valence          float64  `json:"valence"`
	Arousal          float64  `json:"arousal"`
	PrimaryEmotion   string   `json:"primary_emotion"`
	SecondaryEmotion string   `json:"secondary_emotion"`
	ActivityTags     []string `json:"activity_tags"`
	Timestamp        string   `json:"timestamp"`
}

func (a *Aggregator) VA(ctx context.Context, f Filter) ([]VARow, error) {
	var w where
	a.scope(&w, f, "")
	rows, err := a.q.QueryContext(ctx, `
		SELECT entry_id, session_id, valence, arousal, primary_emotion, secondary_emotion, activity_tags, timestamp
		FROM analysis_results`+w.String()+`
		ORDER BY timestamp ASC, id ASC`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query va results: %w", err)
	}
	defer rows.Close()

	out := []VARow{}
	for rows.Next() {
		var (
			r       VARow
			session sql.NullInt64
			tags    string
		)
		if err := rows.Scan(&r.EntryID, &session, &r.Valence, &r.Arousal,
			&r.PrimaryEmotion, &r.SecondaryEmotion, &tags, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan va result: %w", err)
		}
		r.SessionID = nullableInt(session)
		if err := json.Unmarshal([]byte(tags), &r.ActivityTags); err != nil || r.ActivityTags == nil {
			r.ActivityTags = []string{}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SpiderAverage is the mean rating of one quiz item per source.
type SpiderAverage struct {
	Description string  `json:"description"`
	Source      string  `json:"source"`
	Rating      float64 `json:"rating"`
}

// Spider averages rated quiz metrics by (description, source), to 2dp.
func (a *Aggregator) Spider(ctx context.Context, f Filter) ([]SpiderAverage, error) {
	w := where{}
	w.add("metric_type = 'quiz'")
	w.add("rating IS NOT NULL")
	a.scope(&w, f, "")
	rows, err := a.q.QueryContext(ctx, `
		SELECT description, source, AVG(rating)
		FROM metrics`+w.String()+`
		GROUP BY description, source
		ORDER BY description ASC, source ASC`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query spider averages: %w", err)
	}
	defer rows.Close()

	out := []SpiderAverage{}
	for rows.Next() {
		var s SpiderAverage
		if err := rows.Scan(&s.Description, &s.Source, &s.Rating); err != nil {
			return nil, fmt.Errorf("scan spider average: %w", err)
		}
		s.Rating = math.Round(s.Rating*100) / 100
		out = append(out, s)
	}
	return out, rows.Err()
}

// EventRow is a stored Plutchik emotion event.
type EventRow struct {
	EntryID    *int64   `json:"entry_id"`
	SessionID  int64    `json:"session_id"`
	Source     string   `json:"source"`
	Primary    string   `json:"primary"`
	Level      int      `json:"level"`
	Intensity  float64  `json:"intensity"`
	SubLabel   string   `json:"sub_label"`
	Confidence *float64 `json:"confidence"`
	Timestamp  string   `json:"timestamp"`
}

func (a *Aggregator) PlutchikEvents(ctx context.Context, f Filter) ([]EventRow, error) {
	var w where
	a.scope(&w, f, "")
	if f.Source.Valid() {
		w.add("source = ?", string(f.Source))
	}
	rows, err := a.q.QueryContext(ctx, `
		SELECT entry_id, session_id, source, primary_emotion, level, intensity, sub_label, confidence, timestamp
		FROM emotion_events`+w.String()+`
		ORDER BY timestamp ASC, id ASC`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query emotion events: %w", err)
	}
	defer rows.Close()

	out := []EventRow{}
	for rows.Next() {
		var (
			e          EventRow
			entry      sql.NullInt64
			confidence sql.NullFloat64
		)
		if err := rows.Scan(&entry, &e.SessionID, &e.Source, &e.Primary, &e.Level,
			&e.Intensity, &e.SubLabel, &confidence, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan emotion event: %w", err)
		}
		e.EntryID = nullableInt(entry)
		e.Confidence = nullableFloat(confidence)
		out = append(out, e)
	}
	return out, rows.Err()
}

// DyadRow is a stored dyad with the primaries of both events.
type DyadRow struct {
	EntryID    *int64   `json:"entry_id"`
	SessionID  int64    `json:"session_id"`
	Source     string   `json:"source"`
	PrimaryA   string   `json:"primary_a"`
	PrimaryB   string   `json:"primary_b"`
	Label      string   `json:"dyad_label"`
	Weight     float64  `json:"weight"`
	Confidence *float64 `json:"confidence"`
	Timestamp  string   `json:"timestamp"`
}

func (a *Aggregator) Dyads(ctx context.Context, f Filter) ([]DyadRow, error) {
	var w where
	a.scope(&w, f, "d.")
	if f.Source.Valid() {
		w.add("d.source = ?", string(f.Source))
	}
	rows, err := a.q.QueryContext(ctx, `
		SELECT d.entry_id, d.session_id, d.source, ea.primary_emotion, eb.primary_emotion,
		       d.dyad_label, d.weight, d.confidence, d.timestamp
		FROM emotion_dyads d
		JOIN emotion_events ea ON ea.id = d.event_a_id
		JOIN emotion_events eb ON eb.id = d.event_b_id`+w.String()+`
		ORDER BY d.timestamp ASC, d.id ASC`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query dyads: %w", err)
	}
	defer rows.Close()

	out := []DyadRow{}
	for rows.Next() {
		var (
			d          DyadRow
			entry      sql.NullInt64
			confidence sql.NullFloat64
		)
		if err := rows.Scan(&entry, &d.SessionID, &d.Source, &d.PrimaryA, &d.PrimaryB,
			&d.Label, &d.Weight, &confidence, &d.Timestamp); err != nil {
			return nil, fmt.Errorf("scan dyad: %w", err)
		}
		d.EntryID = nullableInt(entry)
		d.Confidence = nullableFloat(confidence)
		out = append(out, d)
	}
	return out, rows.Err()
}

// ThemeRow is one theme river band sample.
type ThemeRow struct {
	SessionID  int64    `json:"session_id"`
	EntryID    int64    `json:"entry_id"`
	Timestamp  string   `json:"timestamp"`
	Emotion    string   `json:"emotion"`
	Valence    float64  `json:"valence"`
	Arousal    float64  `json:"arousal"`
	Intensity  float64  `json:"intensity"`
	Confidence *float64 `json:"confidence"`
	Reasons    []string `json:"reasons"`
}

func (a *Aggregator) ThemeRiver(ctx context.Context, f Filter) ([]ThemeRow, error) {
	var w where
	a.scope(&w, f, "")
	rows, err := a.q.QueryContext(ctx, `
		SELECT session_id, entry_id, timestamp, emotion, valence, arousal, intensity, confidence, reasons
		FROM themeriver`+w.String()+`
		ORDER BY timestamp ASC, emotion ASC`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query themeriver: %w", err)
	}
	defer rows.Close()

	out := []ThemeRow{}
	for rows.Next() {
		var (
			r          ThemeRow
			confidence sql.NullFloat64
			reasons    string
		)
		if err := rows.Scan(&r.SessionID, &r.EntryID, &r.Timestamp, &r.Emotion,
			&r.Valence, &r.Arousal, &r.Intensity, &confidence, &reasons); err != nil {
			return nil, fmt.Errorf("scan themeriver: %w", err)
		}
		r.Confidence = nullableFloat(confidence)
		if err := json.Unmarshal([]byte(reasons), &r.Reasons); err != nil || r.Reasons == nil {
			r.Reasons = []string{}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
