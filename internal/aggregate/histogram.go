package aggregate

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"
)

const dayLayout = "2006-01-02"

// ActivityCount is one activity's tally on a day. Mood is the mean rating,
// nil when none of the metrics carried one.
type ActivityCount struct {
	Name  string   `json:"name"`
	Count int      `json:"count"`
	Mood  *float64 `json:"mood"`
}

// Day groups activity tallies by calendar day (YYYY-MM-DD, UTC).
type Day struct {
	Day        string          `json:"day"`
	Activities []ActivityCount `json:"activities"`
}

// ActivityHistogram counts activity metrics per day and activity. Days are
// ascending; within a day activities are sorted by count, highest first.
func (a *Aggregator) ActivityHistogram(ctx context.Context, f Filter) ([]Day, error) {
	w := where{}
	w.add("m.metric_type = 'activity'")
	a.scope(&w, f, "m.")
	days, err := a.activityDays(ctx, w, "day ASC, cnt DESC, name ASC")
	if err != nil {
		return nil, err
	}
	for i := range days {
		sort.SliceStable(days[i].Activities, func(x, y int) bool {
			return days[i].Activities[x].Count > days[i].Activities[y].Count
		})
	}
	return days, nil
}

// MoodHistogram is the unfiltered history of rated activity metrics, with
// every calendar day between the first and the last one present. Days with
// no data carry an empty list; no data at all yields just today.
func (a *Aggregator) MoodHistogram(ctx context.Context) ([]Day, error) {
	w := where{}
	w.add("m.metric_type = 'activity'")
	w.add("m.rating IS NOT NULL")
	days, err := a.activityDays(ctx, w, "day ASC, avg_rating DESC, name ASC")
	if err != nil {
		return nil, err
	}
	if len(days) == 0 {
		return []Day{{Day: a.now().UTC().Format(dayLayout), Activities: []ActivityCount{}}}, nil
	}
	return fillDays(days)
}

func (a *Aggregator) activityDays(ctx context.Context, w where, order string) ([]Day, error) {
	rows, err := a.q.QueryContext(ctx, `
		SELECT date(m.timestamp) AS day, ac.name AS name, COUNT(*) AS cnt, AVG(m.rating) AS avg_rating
		FROM metrics m
		JOIN activities ac ON ac.id = m.activity_id`+w.String()+`
		GROUP BY day, name
		ORDER BY `+order, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query activity histogram: %w", err)
	}
	defer rows.Close()

	var days []Day
	for rows.Next() {
		var (
			day string
			ac  ActivityCount
			avg sql.NullFloat64
		)
		if err := rows.Scan(&day, &ac.Name, &ac.Count, &avg); err != nil {
			return nil, fmt.Errorf("scan activity histogram: %w", err)
		}
		ac.Mood = nullableFloat(avg)
		if n := len(days); n == 0 || days[n-1].Day != day {
			days = append(days, Day{Day: day, Activities: []ActivityCount{}})
		}
		last := &days[len(days)-1]
		last.Activities = append(last.Activities, ac)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity histogram: %w", err)
	}
	if days == nil {
		days = []Day{}
	}
	return days, nil
}

// fillDays inserts empty days into the gaps of an ascending day list.
func fillDays(days []Day) ([]Day, error) {
	first, err := time.Parse(dayLayout, days[0].Day)
	if err != nil {
		return nil, fmt.Errorf("parse day %q: %w", days[0].Day, err)
	}
	last, err := time.Parse(dayLayout, days[len(days)-1].Day)
	if err != nil {
		return nil, fmt.Errorf("parse day %q: %w", days[len(days)-1].Day, err)
	}

	byDay := make(map[string][]ActivityCount, len(days))
	for _, d := range days {
		byDay[d.Day] = d.Activities
	}
	var out []Day
	for cur := first; !cur.After(last); cur = cur.AddDate(0, 0, 1) {
		key := cur.Format(dayLayout)
		acts, ok := byDay[key]
		if !ok {
			acts = []ActivityCount{}
		}
		out = append(out, Day{Day: key, Activities: acts})
	}
	return out, nil
}
