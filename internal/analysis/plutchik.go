package analysis

import (
	"context"
	"fmt"

	"github.com/Napageneral/journai/internal/db"
	"github.com/Napageneral/journai/internal/dyad"
	"github.com/Napageneral/journai/internal/emotion"
)

// Emotion is one normalized Plutchik observation.
type Emotion struct {
	Primary    emotion.Primary `json:"primary_emotion"`
	Intensity  float64         `json:"intensity"`
	Level      int             `json:"level"`
	SubLabel   string          `json:"sub_label"`
	Confidence *float64        `json:"confidence"`
	Notes      string          `json:"notes,omitempty"`
	// Timestamp is optional; events without one take the run's timestamp.
	Timestamp string `json:"timestamp,omitempty"`
}

// PlutchikResult is the list of emotions detected in an entry.
type PlutchikResult struct {
	Emotions []Emotion `json:"emotions"`
}

func (r *PlutchikResult) Empty() bool { return r == nil || len(r.Emotions) == 0 }

type plutchikShape struct {
	Emotions []struct {
		PrimaryEmotion string  `json:"primary_emotion" jsonschema:"enum=joy,enum=trust,enum=fear,enum=surprise,enum=sadness,enum=disgust,enum=anger,enum=anticipation"`
		Intensity      float64 `json:"intensity" jsonschema:"minimum=0,maximum=1"`
		Confidence     float64 `json:"confidence" jsonschema:"minimum=0,maximum=1"`
		Level          int     `json:"level" jsonschema:"enum=1,enum=2,enum=3"`
	} `json:"emotions"`
}

// Plutchik detects primary emotions and derives their dyads.
type Plutchik struct {
	Deriver *dyad.Deriver
}

func (Plutchik) Name() string { return "plutchik" }

func (Plutchik) Instructions() string {
	return "Identify the primary emotions expressed in the Journal Entry, using Plutchik's 8 primary emotions. " +
		"For each detected emotion, provide its intensity (0..1, representing how strong said emotion is felt), " +
		"confidence (0..1, representing how sure you are of your answer), and level (1, 2, or 3). " +
		"Return a JSON object with an 'emotions' array containing one object per detected emotion."
}

func (Plutchik) Shape() Shape { return shapeOf[plutchikShape]() }

func (Plutchik) Parse(raw any) (Result, error) {
	res := &PlutchikResult{Emotions: []Emotion{}}
	for _, item := range asList(raw, "emotions", "plutchik") {
		p, ok := emotion.Normalize(toText(item["primary_emotion"]))
		if !ok {
			continue
		}
		intensity, _ := toFloat(item["intensity"])
		intensity = emotion.Clamp01(intensity)

		level, ok := toInt(item["level"])
		if !ok || !emotion.ValidLevel(level) {
			level = emotion.LevelFromIntensity(intensity)
		}
		confidence := 1.0
		if c, ok := toFloat(item["confidence"]); ok {
			confidence = emotion.Clamp01(c)
		}
		var ts string
		if s := toText(item["timestamp"]); s != "" {
			if parsed, err := db.ParseTime(s); err == nil {
				ts = db.FormatTime(parsed)
			}
		}
		res.Emotions = append(res.Emotions, Emotion{
			Primary:    p,
			Intensity:  intensity,
			Level:      level,
			SubLabel:   emotion.SubLabel(p, level),
			Confidence: &confidence,
			Notes:      toText(item["notes"]),
			Timestamp:  ts,
		})
	}
	return res, nil
}

func (a Plutchik) Persist(ctx context.Context, q db.Querier, t Target, r Result) error {
	res, ok := r.(*PlutchikResult)
	if !ok {
		return fmt.Errorf("plutchik: unexpected result %T", r)
	}
	entryID := t.EntryID
	scope := dyad.Scope{EntryID: &entryID, SessionID: t.SessionID, Source: emotion.SourceAI}
	_, err := RecordEmotions(ctx, q, a.Deriver, scope, t.Timestamp, res.Emotions)
	return err
}

// RecordEmotions writes events for scope and derives the dyads of every
// timestamp they touch. An event replaces the earlier one for the same
// (entry, source, primary); dyads built on the replaced event are dropped
// first so that derivation starts clean. q should be a transaction.
func RecordEmotions(ctx context.Context, q db.Querier, d *dyad.Deriver, scope dyad.Scope, now string, emotions []Emotion) ([]dyad.Dyad, error) {
	if d == nil {
		d = dyad.New(dyad.DefaultThreshold, nil)
	}
	var touched []string
	for _, e := range emotions {
		ts := e.Timestamp
		if ts == "" {
			ts = now
		}
		if scope.EntryID != nil {
			_, err := q.ExecContext(ctx, `
				DELETE FROM emotion_dyads
				WHERE event_a_id IN (SELECT id FROM emotion_events WHERE entry_id = ? AND source = ? AND primary_emotion = ?)
				   OR event_b_id IN (SELECT id FROM emotion_events WHERE entry_id = ? AND source = ? AND primary_emotion = ?)
			`, *scope.EntryID, string(scope.Source), string(e.Primary),
				*scope.EntryID, string(scope.Source), string(e.Primary))
			if err != nil {
				return nil, fmt.Errorf("drop stale dyads of %s: %w", e.Primary, err)
			}
		}

		var confidence any
		if e.Confidence != nil {
			confidence = *e.Confidence
		}
		_, err := q.ExecContext(ctx, `
			INSERT INTO emotion_events
				(entry_id, session_id, source, primary_emotion, level, intensity, sub_label, confidence, notes, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(entry_id, source, primary_emotion) DO UPDATE SET
				session_id = excluded.session_id,
				level      = excluded.level,
				intensity  = excluded.intensity,
				sub_label  = excluded.sub_label,
				confidence = excluded.confidence,
				notes      = excluded.notes,
				timestamp  = excluded.timestamp
		`, db.NullInt64(scope.EntryID), scope.SessionID, string(scope.Source), string(e.Primary),
			e.Level, e.Intensity, e.SubLabel, confidence, db.NullString(&e.Notes), ts)
		if err != nil {
			return nil, fmt.Errorf("record %s event: %w", e.Primary, err)
		}
		touched = append(touched, ts)
	}
	return d.DeriveForTimestamps(ctx, q, scope, touched)
}
