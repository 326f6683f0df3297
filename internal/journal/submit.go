package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Napageneral/journai/internal/activity"
	"github.com/Napageneral/journai/internal/analysis"
	"github.com/Napageneral/journai/internal/apierr"
	"github.com/Napageneral/journai/internal/bus"
	"github.com/Napageneral/journai/internal/db"
	"github.com/Napageneral/journai/internal/dyad"
	"github.com/Napageneral/journai/internal/emotion"
)

const (
	MetricActivity = "activity"
	MetricQuiz     = "quiz"
)

// MetricInput is a user-reported rating. Tag "activity" links the metric to
// the resolved activity named by Description; any other tag is stored as
// the metric type.
type MetricInput struct {
	Tag         string  `json:"tag"`
	Description string  `json:"description"`
	Comment     *string `json:"comment,omitempty"`
	Rating      int     `json:"rating"`
	EntryID     *int64  `json:"entry_id,omitempty"`
}

func validRating(r int) bool { return r >= 1 && r <= 10 }

// entryOf prefers an explicit entry over the scope's.
func entryOf(scope Scope, explicit *int64) *int64 {
	if explicit != nil {
		return explicit
	}
	return scope.EntryID
}

// SubmitMetric stores one metric and returns its id.
func (j *Journal) SubmitMetric(ctx context.Context, scope Scope, in MetricInput) (int64, error) {
	const op = "submit metric"
	tag := strings.ToLower(strings.TrimSpace(in.Tag))
	desc := strings.TrimSpace(in.Description)
	switch {
	case tag == "":
		return 0, apierr.Validation(op, "tag is required")
	case desc == "":
		return 0, apierr.Validation(op, "description is required")
	case !validRating(in.Rating):
		return 0, apierr.Validation(op, "rating must be between 1 and 10, got %d", in.Rating)
	}
	entryID := entryOf(scope, in.EntryID)
	if err := j.requireEntry(ctx, op, entryID); err != nil {
		return 0, err
	}

	var id int64
	err := db.WithTx(ctx, j.conn, func(tx *sql.Tx) error {
		var activityID *int64
		if tag == MetricActivity {
			aid, err := activity.Resolve(ctx, tx, desc)
			if err != nil {
				return err
			}
			activityID = &aid
		}
		err := tx.QueryRowContext(ctx, `
			INSERT INTO metrics (session_id, entry_id, metric_type, activity_id, description, comment, rating, source, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, 'user', ?)
			RETURNING id`,
			scope.SessionID, db.NullInt64(entryID), tag, db.NullInt64(activityID), desc,
			db.NullString(in.Comment), in.Rating, j.timestamp()).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert metric: %w", err)
		}
		return bus.Emit(ctx, tx, bus.MetricSubmitted, entryID, map[string]any{
			"metric_id": id, "tag": tag, "description": desc, "rating": in.Rating,
		})
	})
	if err != nil {
		if apierr.Is(err, apierr.KindValidation) {
			return 0, err
		}
		return 0, apierr.Storage(op, err)
	}
	return id, nil
}

// PHQ4Questions are the four screening questions, stored as q1..q4.
var PHQ4Questions = []string{
	"Feeling nervous, anxious, or on edge",
	"Not being able to stop or control worrying",
	"Feeling down, depressed, or hopeless",
	"Little interest or pleasure in doing things",
}

// StateFeelings are the momentary feelings of the mood quiz, stored as f1..f7.
var StateFeelings = []string{"Distressed", "Irritable", "Nervous", "Scared", "Unhappy", "Upset", "Lonely"}

// MoodInput is a mood quiz. Nil answers are skipped.
type MoodInput struct {
	PHQ4     []*int  `json:"phq4_answers"`
	Feelings []*int  `json:"state_feelings"`
	Note     *string `json:"note,omitempty"`
	EntryID  *int64  `json:"entry_id,omitempty"`
}

type quizRow struct {
	description string
	comment     string
	rating      *int
}

func (in MoodInput) rows() ([]quizRow, error) {
	if len(in.PHQ4) > len(PHQ4Questions) {
		return nil, fmt.Errorf("at most %d PHQ-4 answers, got %d", len(PHQ4Questions), len(in.PHQ4))
	}
	if len(in.Feelings) > len(StateFeelings) {
		return nil, fmt.Errorf("at most %d feelings, got %d", len(StateFeelings), len(in.Feelings))
	}
	var out []quizRow
	add := func(prefix string, labels []string, values []*int) error {
		for i, v := range values {
			if v == nil {
				continue
			}
			if !validRating(*v) {
				return fmt.Errorf("%s%d must be between 1 and 10, got %d", prefix, i+1, *v)
			}
			out = append(out, quizRow{description: fmt.Sprintf("%s%d", prefix, i+1), comment: labels[i], rating: v})
		}
		return nil
	}
	if err := add("q", PHQ4Questions, in.PHQ4); err != nil {
		return nil, err
	}
	if err := add("f", StateFeelings, in.Feelings); err != nil {
		return nil, err
	}
	if in.Note != nil {
		if note := strings.TrimSpace(*in.Note); note != "" {
			out = append(out, quizRow{description: "note", comment: note})
		}
	}
	return out, nil
}

// SubmitMood stores the answered quiz items and returns how many were stored.
func (j *Journal) SubmitMood(ctx context.Context, scope Scope, in MoodInput) (int, error) {
	const op = "submit mood"
	rows, err := in.rows()
	if err != nil {
		return 0, apierr.Validation(op, "%v", err)
	}
	entryID := entryOf(scope, in.EntryID)
	if err := j.requireEntry(ctx, op, entryID); err != nil {
		return 0, err
	}

	ts := j.timestamp()
	err = db.WithTx(ctx, j.conn, func(tx *sql.Tx) error {
		for _, r := range rows {
			var rating any
			if r.rating != nil {
				rating = *r.rating
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO metrics (session_id, entry_id, metric_type, description, comment, rating, source, timestamp)
				VALUES (?, ?, 'quiz', ?, ?, ?, 'user', ?)`,
				scope.SessionID, db.NullInt64(entryID), r.description, r.comment, rating, ts)
			if err != nil {
				return fmt.Errorf("insert %s: %w", r.description, err)
			}
		}
		return bus.Emit(ctx, tx, bus.MoodSubmitted, entryID, map[string]any{"items": len(rows)})
	})
	if err != nil {
		return 0, apierr.Storage(op, err)
	}
	return len(rows), nil
}

// ManualEmotion is a self-reported Plutchik emotion. Level is derived from
// Intensity when nil; Timestamp defaults to now.
type ManualEmotion struct {
	Primary   string  `json:"primary_emotion"`
	Intensity float64 `json:"intensity"`
	Level     *int    `json:"level,omitempty"`
	Timestamp string  `json:"timestamp,omitempty"`
}

// ManualResult reports what a manual submission stored.
type ManualResult struct {
	Inserted int         `json:"inserted_events"`
	Dyads    []dyad.Dyad `json:"dyads"`
}

func (m ManualEmotion) normalize() (analysis.Emotion, error) {
	p := emotion.Primary(strings.ToLower(strings.TrimSpace(m.Primary)))
	if !p.Valid() {
		return analysis.Emotion{}, fmt.Errorf("unknown primary emotion %q", m.Primary)
	}
	if m.Intensity < 0 || m.Intensity > 1 {
		return analysis.Emotion{}, fmt.Errorf("intensity of %s must be within [0,1], got %v", p, m.Intensity)
	}
	level := emotion.LevelFromIntensity(m.Intensity)
	if m.Level != nil {
		if !emotion.ValidLevel(*m.Level) {
			return analysis.Emotion{}, fmt.Errorf("level of %s must be 1, 2 or 3, got %d", p, *m.Level)
		}
		level = *m.Level
	}
	ts := strings.TrimSpace(m.Timestamp)
	if ts != "" {
		t, err := db.ParseTime(ts)
		if err != nil {
			return analysis.Emotion{}, fmt.Errorf("timestamp of %s: %w", p, err)
		}
		ts = db.FormatTime(t)
	}
	return analysis.Emotion{
		Primary:   p,
		Intensity: m.Intensity,
		Level:     level,
		SubLabel:  emotion.SubLabel(p, level),
		Timestamp: ts,
	}, nil
}

// SubmitManualEmotions records user-reported emotions and derives their
// dyads in one transaction. Every item is validated before anything is
// written. Manual events carry no confidence.
func (j *Journal) SubmitManualEmotions(ctx context.Context, scope Scope, items []ManualEmotion) (*ManualResult, error) {
	const op = "submit emotions"
	if len(items) == 0 {
		return nil, apierr.Validation(op, "at least one emotion is required")
	}
	emotions := make([]analysis.Emotion, 0, len(items))
	for _, it := range items {
		e, err := it.normalize()
		if err != nil {
			return nil, apierr.Validation(op, "%v", err)
		}
		emotions = append(emotions, e)
	}
	if err := j.requireEntry(ctx, op, scope.EntryID); err != nil {
		return nil, err
	}

	res := &ManualResult{Inserted: len(emotions)}
	dscope := dyad.Scope{EntryID: scope.EntryID, SessionID: scope.SessionID, Source: emotion.SourceUser}
	err := db.WithTx(ctx, j.conn, func(tx *sql.Tx) error {
		var err error
		res.Dyads, err = analysis.RecordEmotions(ctx, tx, j.deriver, dscope, j.timestamp(), emotions)
		if err != nil {
			return err
		}
		return bus.Emit(ctx, tx, bus.EmotionsSubmitted, scope.EntryID, map[string]any{
			"events": res.Inserted, "dyads": len(res.Dyads),
		})
	})
	if err != nil {
		return nil, apierr.Storage(op, err)
	}
	if res.Dyads == nil {
		res.Dyads = []dyad.Dyad{}
	}
	j.log.Info("manual emotions recorded", "session_id", scope.SessionID, "events", res.Inserted, "dyads", len(res.Dyads))
	return res, nil
}

// MergeActivities folds sources into target and logs the merge on the bus.
func (j *Journal) MergeActivities(ctx context.Context, sources []string, target string) (activity.MergeResult, error) {
	const op = "merge activities"
	var res activity.MergeResult
	err := db.WithTx(ctx, j.conn, func(tx *sql.Tx) error {
		var err error
		if res, err = activity.MergeTx(ctx, tx, sources, target); err != nil {
			return err
		}
		return bus.Emit(ctx, tx, bus.ActivitiesMerged, nil, res)
	})
	if err != nil {
		if apierr.Is(err, apierr.KindValidation) {
			return activity.MergeResult{}, err
		}
		return activity.MergeResult{}, apierr.Storage(op, err)
	}
	return res, nil
}
