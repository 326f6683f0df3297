package analysis

import (
	"context"
	"fmt"

	"github.com/Napageneral/journai/internal/activity"
	"github.com/Napageneral/journai/internal/db"
	"github.com/Napageneral/journai/internal/emotion"
)

// ActivityItem is one activity the user mentioned doing.
type ActivityItem struct {
	Name    string  `json:"name"`
	Rating  *int    `json:"rating"`
	Comment *string `json:"comment"`
}

type ActivitiesResult struct {
	Activities []ActivityItem `json:"activities"`
}

func (r *ActivitiesResult) Empty() bool { return r == nil || len(r.Activities) == 0 }

type activitiesShape struct {
	Activities []struct {
		Name    string `json:"name" jsonschema_description:"one word verb"`
		Rating  int    `json:"rating" jsonschema:"minimum=1,maximum=10"`
		Comment string `json:"comment,omitempty"`
	} `json:"activities"`
}

// Activities extracts rated activities; each becomes an activity metric
// linked to its canonical activity.
type Activities struct{}

func (Activities) Name() string { return "activities" }

func (Activities) Instructions() string {
	return "Analyse Journal Entry and extract any activities (one word verb, for e.g. working, hiking, gaming, etc.) " +
		"they mention doing, along with a rating from 1 to 10 representing the mood afterwards, and optional comment. " +
		"DO NOT invent activities! If no valid activity is present, then return nothing."
}

func (Activities) Shape() Shape { return shapeOf[activitiesShape]() }

func (Activities) Parse(raw any) (Result, error) {
	res := &ActivitiesResult{Activities: []ActivityItem{}}
	for _, item := range asList(raw, "activities", "items") {
		name := toText(item["name"])
		if name == "" {
			continue
		}
		it := ActivityItem{Name: name}
		if r, ok := toInt(item["rating"]); ok && r >= 1 && r <= 10 {
			it.Rating = &r
		}
		if c := toText(item["comment"]); c != "" {
			it.Comment = &c
		}
		res.Activities = append(res.Activities, it)
	}
	return res, nil
}

func (Activities) Persist(ctx context.Context, q db.Querier, t Target, r Result) error {
	res, ok := r.(*ActivitiesResult)
	if !ok {
		return fmt.Errorf("activities: unexpected result %T", r)
	}
	for _, it := range res.Activities {
		id, err := activity.Resolve(ctx, q, it.Name)
		if err != nil {
			return fmt.Errorf("activities: resolve %q: %w", it.Name, err)
		}
		var rating any
		if it.Rating != nil {
			rating = *it.Rating
		}
		_, err = q.ExecContext(ctx, `
			INSERT INTO metrics
				(session_id, entry_id, metric_type, activity_id, description, rating, comment, source, timestamp)
			VALUES (?, ?, 'activity', ?, ?, ?, ?, ?, ?)
		`, t.SessionID, t.EntryID, id, it.Name, rating, db.NullString(it.Comment),
			string(emotion.SourceAI), t.Timestamp)
		if err != nil {
			return fmt.Errorf("activities: insert %q: %w", it.Name, err)
		}
	}
	return nil
}
