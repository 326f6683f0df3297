package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/Napageneral/journai/internal/db"
	"github.com/Napageneral/journai/internal/emotion"
)

// ErrNoRatings is returned by Spider.Parse when none of the feelings parsed.
var ErrNoRatings = errors.New("spider: no valid ratings parsed")

// Feelings are the seven state feelings, in quiz order (f1..f7).
var Feelings = []string{"distressed", "irritable", "nervous", "scared", "unhappy", "upset", "lonely"}

// FeelingCode returns the quiz description ("f3") of a feeling.
func FeelingCode(feeling string) (string, bool) {
	for i, f := range Feelings {
		if f == feeling {
			return fmt.Sprintf("f%d", i+1), true
		}
	}
	return "", false
}

// SpiderRating is one feeling rated 1..10.
type SpiderRating struct {
	Feeling string `json:"feeling"`
	Rating  int    `json:"rating"`
}

// SpiderResult holds the feelings the model rated, in quiz order.
type SpiderResult struct {
	Ratings []SpiderRating `json:"ratings"`
}

func (r *SpiderResult) Empty() bool { return r == nil || len(r.Ratings) == 0 }

// Get returns the rating of feeling.
func (r *SpiderResult) Get(feeling string) (int, bool) {
	for _, rt := range r.Ratings {
		if rt.Feeling == feeling {
			return rt.Rating, true
		}
	}
	return 0, false
}

type spiderShape struct {
	Distressed int `json:"distressed" jsonschema:"minimum=1,maximum=10"`
	Irritable  int `json:"irritable" jsonschema:"minimum=1,maximum=10"`
	Nervous    int `json:"nervous" jsonschema:"minimum=1,maximum=10"`
	Scared     int `json:"scared" jsonschema:"minimum=1,maximum=10"`
	Unhappy    int `json:"unhappy" jsonschema:"minimum=1,maximum=10"`
	Upset      int `json:"upset" jsonschema:"minimum=1,maximum=10"`
	Lonely     int `json:"lonely" jsonschema:"minimum=1,maximum=10"`
}

// Spider rates the seven state feelings; stored as AI quiz metrics.
type Spider struct{}

func (Spider) Name() string { return "spider" }

func (Spider) Instructions() string {
	return "Analyze the journal entry and return ratings 1..10 for these emotional states: " +
		"distressed, irritable, nervous, scared, unhappy, upset, lonely. " +
		"Return them as a single JSON object with each emotion as a key and its rating as a number."
}

func (Spider) Shape() Shape { return shapeOf[spiderShape]() }

func (Spider) Parse(raw any) (Result, error) {
	m := asObject(raw)
	if m == nil {
		return &SpiderResult{}, ErrNoRatings
	}
	res := &SpiderResult{}
	for _, f := range Feelings {
		v, ok := toInt(m[f])
		if !ok {
			continue
		}
		res.Ratings = append(res.Ratings, SpiderRating{Feeling: f, Rating: clampRating(v)})
	}
	if len(res.Ratings) == 0 {
		return res, ErrNoRatings
	}
	return res, nil
}

func (Spider) Persist(ctx context.Context, q db.Querier, t Target, r Result) error {
	res, ok := r.(*SpiderResult)
	if !ok {
		return fmt.Errorf("spider: unexpected result %T", r)
	}
	for _, rt := range res.Ratings {
		code, ok := FeelingCode(rt.Feeling)
		if !ok {
			continue
		}
		_, err := q.ExecContext(ctx, `
			INSERT INTO metrics (session_id, entry_id, metric_type, description, comment, rating, source, timestamp)
			VALUES (?, ?, 'quiz', ?, ?, ?, ?, ?)
		`, t.SessionID, t.EntryID, code, rt.Feeling, rt.Rating, string(emotion.SourceAI), t.Timestamp)
		if err != nil {
			return fmt.Errorf("spider: insert %s: %w", code, err)
		}
	}
	return nil
}

func clampRating(v int) int {
	switch {
	case v < 1:
		return 1
	case v > 10:
		return 10
	}
	return v
}
