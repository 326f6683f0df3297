package analysis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Napageneral/journai/internal/db"
	"github.com/Napageneral/journai/internal/emotion"
)

// VAResult is the overall valence/arousal reading of an entry.
type VAResult struct {
	Valence          float64  `json:"valence" jsonschema:"minimum=-1,maximum=1"`
	Arousal          float64  `json:"arousal" jsonschema:"minimum=0,maximum=1"`
	PrimaryEmotion   string   `json:"primary_emotion"`
	SecondaryEmotion string   `json:"secondary_emotion"`
	ActivityTags     []string `json:"activity_tags"`

	found bool
}

func (r *VAResult) Empty() bool { return r == nil || !r.found }

// VA scores valence and arousal. One row per entry; reruns replace it.
type VA struct{}

func (VA) Name() string { return "va" }

func (VA) Instructions() string {
	return "Analyze the user's text and provide a valence score (-1 to +1), an arousal score (0 to 1), " +
		"a primary emotion, a secondary emotion, and a list of activity tags mentioned in the text."
}

func (VA) Shape() Shape { return shapeOf[VAResult]() }

func (VA) Parse(raw any) (Result, error) {
	m := asObject(raw)
	res := &VAResult{ActivityTags: []string{}}
	if m == nil {
		return res, nil
	}
	v, vok := toFloat(m["valence"])
	a, aok := toFloat(m["arousal"])
	res.found = vok || aok
	res.Valence = emotion.Clamp(v, -1, 1)
	res.Arousal = emotion.Clamp01(a)
	res.PrimaryEmotion = toText(m["primary_emotion"])
	res.SecondaryEmotion = toText(m["secondary_emotion"])
	res.ActivityTags = toTextList(m["activity_tags"])
	return res, nil
}

func (VA) Persist(ctx context.Context, q db.Querier, t Target, r Result) error {
	res, ok := r.(*VAResult)
	if !ok {
		return fmt.Errorf("va: unexpected result %T", r)
	}
	tags, err := json.Marshal(res.ActivityTags)
	if err != nil {
		return fmt.Errorf("va: encode tags: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO analysis_results
			(session_id, entry_id, valence, arousal, primary_emotion, secondary_emotion, activity_tags, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entry_id) DO UPDATE SET
			session_id        = excluded.session_id,
			valence           = excluded.valence,
			arousal           = excluded.arousal,
			primary_emotion   = excluded.primary_emotion,
			secondary_emotion = excluded.secondary_emotion,
			activity_tags     = excluded.activity_tags,
			timestamp         = excluded.timestamp
	`, t.SessionID, t.EntryID, res.Valence, res.Arousal,
		res.PrimaryEmotion, res.SecondaryEmotion, string(tags), t.Timestamp)
	if err != nil {
		return fmt.Errorf("va: upsert analysis result: %w", err)
	}
	return nil
}
