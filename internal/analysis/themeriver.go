package analysis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Napageneral/journai/internal/db"
	"github.com/Napageneral/journai/internal/emotion"
)

const (
	maxReasons            = 6
	defaultThemeIntensity = 0.4
)

// ThemeRow is one emotion of an entry with the reasons behind it.
type ThemeRow struct {
	Emotion    emotion.Primary `json:"emotion"`
	Reasons    []string        `json:"reasons"`
	Valence    float64         `json:"valence"`
	Arousal    float64         `json:"arousal"`
	Intensity  float64         `json:"intensity"`
	Confidence *float64        `json:"confidence"`
}

type ThemeRiverResult struct {
	Rows []ThemeRow `json:"rows"`
}

func (r *ThemeRiverResult) Empty() bool { return r == nil || len(r.Rows) == 0 }

type themeRiverShape []struct {
	Emotion    string   `json:"emotion" jsonschema:"enum=joy,enum=trust,enum=fear,enum=surprise,enum=sadness,enum=disgust,enum=anger,enum=anticipation"`
	Reasons    []string `json:"reasons" jsonschema:"maxItems=6"`
	Intensity  float64  `json:"intensity" jsonschema:"minimum=0,maximum=1"`
	Confidence float64  `json:"confidence" jsonschema:"minimum=0,maximum=1"`
}

// ThemeRiver lists the emotions of an entry with their reasons. Valence and
// arousal come from the emotion table, not from the model.
type ThemeRiver struct{}

func (ThemeRiver) Name() string { return "themeriver" }

func (ThemeRiver) Instructions() string {
	return "Identify the primary emotions expressed in the Journal Entry, using Plutchik's 8 primary emotions. " +
		"For each activity/emotion in the Journal Entry, add one array item. " +
		"Confidence must be a number between 0 and 1, representing how sure you are of your answer. " +
		"Intensity must be a number between 0 and 1 representing how strong said emotion is felt."
}

func (ThemeRiver) Shape() Shape { return shapeOf[themeRiverShape]() }

func (ThemeRiver) Parse(raw any) (Result, error) {
	res := &ThemeRiverResult{Rows: []ThemeRow{}}
	for _, item := range asList(raw, "themeriver", "items", "data", "rows", "values") {
		e, ok := emotion.Normalize(toText(item["emotion"]))
		if !ok {
			continue
		}
		reasons := toTextList(item["reasons"])
		if len(reasons) > maxReasons {
			reasons = reasons[:maxReasons]
		}
		intensity := defaultThemeIntensity
		if v, ok := toFloat(item["intensity"]); ok {
			intensity = emotion.Clamp01(v)
		}
		var confidence *float64
		if v, ok := toFloat(item["confidence"]); ok {
			c := emotion.Clamp01(v)
			confidence = &c
		}
		valence, arousal := emotion.ValenceArousal(e)
		res.Rows = append(res.Rows, ThemeRow{
			Emotion:    e,
			Reasons:    reasons,
			Valence:    valence,
			Arousal:    arousal,
			Intensity:  intensity,
			Confidence: confidence,
		})
	}
	return res, nil
}

func (ThemeRiver) Persist(ctx context.Context, q db.Querier, t Target, r Result) error {
	res, ok := r.(*ThemeRiverResult)
	if !ok {
		return fmt.Errorf("themeriver: unexpected result %T", r)
	}
	ts := t.EntryTimestamp
	if ts == "" {
		ts = t.Timestamp
	}
	for _, row := range res.Rows {
		reasons, err := json.Marshal(row.Reasons)
		if err != nil {
			return fmt.Errorf("themeriver: encode reasons: %w", err)
		}
		var confidence any
		if row.Confidence != nil {
			confidence = *row.Confidence
		}
		_, err = q.ExecContext(ctx, `
			INSERT INTO themeriver
				(entry_id, session_id, emotion, reasons, valence, arousal, intensity, confidence, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, t.EntryID, t.SessionID, string(row.Emotion), string(reasons),
			row.Valence, row.Arousal, row.Intensity, confidence, ts)
		if err != nil {
			return fmt.Errorf("themeriver: insert %s: %w", row.Emotion, err)
		}
	}
	return nil
}
