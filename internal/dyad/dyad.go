// Package dyad derives Plutchik dyads: named blends of two primary emotions
// observed at the same instant with enough intensity.
package dyad

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/Napageneral/journai/internal/db"
	"github.com/Napageneral/journai/internal/emotion"
	"github.com/Napageneral/journai/internal/logger"
)

// DefaultThreshold is the intensity both emotions must exceed.
const DefaultThreshold = 0.40

// Event is the slice of an emotion event the derivation needs.
type Event struct {
	ID         int64
	Primary    emotion.Primary
	Intensity  float64
	Confidence *float64
	Timestamp  string
}

// Dyad is one derived pair. EventA < EventB always.
type Dyad struct {
	EventA     int64           `json:"event_a_id"`
	EventB     int64           `json:"event_b_id"`
	PrimaryA   emotion.Primary `json:"primary_a"`
	PrimaryB   emotion.Primary `json:"primary_b"`
	Label      string          `json:"dyad_label"`
	Weight     float64         `json:"weight"`
	Confidence *float64        `json:"confidence"`
	Timestamp  string          `json:"timestamp"`
}

// Scope identifies whose events are grouped: one session and source, and
// the owning entry (nil for manual quick-log events).
type Scope struct {
	EntryID   *int64
	SessionID int64
	Source    emotion.Source
}

// Pairs derives the dyads of one timestamp group. When a primary appears
// more than once the event with the highest id wins. Pairs without a name
// or with an intensity at or below threshold are skipped.
func Pairs(group []Event, threshold float64) []Dyad {
	latest := make(map[emotion.Primary]Event, len(group))
	for _, ev := range group {
		if cur, ok := latest[ev.Primary]; !ok || ev.ID > cur.ID {
			latest[ev.Primary] = ev
		}
	}
	events := make([]Event, 0, len(latest))
	for _, ev := range latest {
		events = append(events, ev)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })

	var out []Dyad
	for i := 0; i < len(events); i++ {
		for j := i + 1; j < len(events); j++ {
			a, b := events[i], events[j]
			label, ok := emotion.DyadLabel(a.Primary, b.Primary)
			if !ok {
				continue
			}
			if a.Intensity <= threshold || b.Intensity <= threshold {
				continue
			}
			ts := a.Timestamp
			if ts == "" {
				ts = b.Timestamp
			}
			out = append(out, Dyad{
				EventA:     a.ID,
				EventB:     b.ID,
				PrimaryA:   a.Primary,
				PrimaryB:   b.Primary,
				Label:      label,
				Weight:     emotion.Clamp01((a.Intensity + b.Intensity) / 2),
				Confidence: minConfidence(a.Confidence, b.Confidence),
				Timestamp:  ts,
			})
		}
	}
	return out
}

func minConfidence(a, b *float64) *float64 {
	if a == nil || b == nil {
		return nil
	}
	v := *a
	if *b < v {
		v = *b
	}
	return &v
}

// Deriver recomputes and stores dyads for freshly written emotion events.
type Deriver struct {
	threshold float64
	log       *logger.Logger
}

// New returns a Deriver. A threshold outside (0,1) selects DefaultThreshold.
func New(threshold float64, log *logger.Logger) *Deriver {
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultThreshold
	}
	return &Deriver{threshold: threshold, log: logger.OrNop(log)}
}

// Threshold returns the intensity cut-off in use.
func (d *Deriver) Threshold() float64 { return d.threshold }

// DeriveForTimestamps re-reads the scope's events at the given timestamps,
// groups them by exact timestamp string and upserts every qualifying pair.
// Running it again for the same groups updates rows in place.
func (d *Deriver) DeriveForTimestamps(ctx context.Context, q db.Querier, scope Scope, timestamps []string) ([]Dyad, error) {
	groups, err := loadGroups(ctx, q, scope, timestamps)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(groups))
	for ts := range groups {
		keys = append(keys, ts)
	}
	sort.Strings(keys)

	var all []Dyad
	for _, ts := range keys {
		group := groups[ts]
		pairs := Pairs(group, d.threshold)
		d.log.Debug("dyad group",
			"timestamp", ts,
			"source", scope.Source,
			"events", len(group),
			"dyads", len(pairs),
		)
		for _, p := range pairs {
			if err := upsert(ctx, q, scope, p); err != nil {
				return nil, err
			}
			d.log.Debug("dyad stored", "label", p.Label, "event_a", p.EventA, "event_b", p.EventB, "weight", p.Weight)
		}
		all = append(all, pairs...)
	}
	return all, nil
}

func loadGroups(ctx context.Context, q db.Querier, scope Scope, timestamps []string) (map[string][]Event, error) {
	uniq := make(map[string]bool, len(timestamps))
	args := []any{scope.SessionID, string(scope.Source), db.NullInt64(scope.EntryID)}
	for _, ts := range timestamps {
		if ts == "" || uniq[ts] {
			continue
		}
		uniq[ts] = true
		args = append(args, ts)
	}
	if len(uniq) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(uniq)), ",")
	rows, err := q.QueryContext(ctx, `
		SELECT id, primary_emotion, intensity, confidence, timestamp
		FROM emotion_events
		WHERE session_id = ? AND source = ? AND entry_id IS ?
		  AND timestamp IN (`+placeholders+`)
		ORDER BY timestamp ASC, id ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("load emotion events: %w", err)
	}
	defer rows.Close()

	groups := make(map[string][]Event)
	for rows.Next() {
		var (
			ev         Event
			primary    string
			confidence sql.NullFloat64
		)
		if err := rows.Scan(&ev.ID, &primary, &ev.Intensity, &confidence, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan emotion event: %w", err)
		}
		ev.Primary = emotion.Primary(primary)
		if confidence.Valid {
			c := confidence.Float64
			ev.Confidence = &c
		}
		groups[ev.Timestamp] = append(groups[ev.Timestamp], ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate emotion events: %w", err)
	}
	return groups, nil
}

func upsert(ctx context.Context, q db.Querier, scope Scope, p Dyad) error {
	var confidence any
	if p.Confidence != nil {
		confidence = *p.Confidence
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO emotion_dyads
			(entry_id, session_id, source, event_a_id, event_b_id, dyad_label, weight, confidence, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_a_id, event_b_id) DO UPDATE SET
			dyad_label = excluded.dyad_label,
			weight     = excluded.weight,
			confidence = excluded.confidence,
			timestamp  = excluded.timestamp
	`, db.NullInt64(scope.EntryID), scope.SessionID, string(scope.Source),
		p.EventA, p.EventB, p.Label, p.Weight, confidence, p.Timestamp)
	if err != nil {
		return fmt.Errorf("upsert dyad %s (%d,%d): %w", p.Label, p.EventA, p.EventB, err)
	}
	return nil
}
