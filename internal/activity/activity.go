// Package activity canonicalizes free-text activity labels ("Gaming session",
// "game") into stable activity ids. Labels can be merged: a merged label
// becomes an alias of the target, and every historical metric is repointed.
package activity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Napageneral/journai/internal/apierr"
	"github.com/Napageneral/journai/internal/db"
)

// maxAliasDepth bounds alias chain walks; merges keep chains at depth one,
// so anything deeper than this is corrupt data.
const maxAliasDepth = 64

// ErrAliasCycle reports an alias chain that never reaches a canonical row.
var ErrAliasCycle = errors.New("activity alias chain does not terminate")

// Activity is one row of the activities table.
type Activity struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	AliasOf *int64 `json:"alias_of,omitempty"`
}

// Canonical reports whether the activity is the root of its alias chain.
func (a Activity) Canonical() bool { return a.AliasOf == nil }

// Normalize folds case, trims and collapses whitespace runs.
func Normalize(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

func find(ctx context.Context, q db.Querier, norm string) (*Activity, error) {
	var (
		a       Activity
		aliasOf sql.NullInt64
	)
	err := q.QueryRowContext(ctx, `SELECT id, name, alias_of FROM activities WHERE name = ?`, norm).
		Scan(&a.ID, &a.Name, &aliasOf)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup activity %q: %w", norm, err)
	}
	if aliasOf.Valid {
		a.AliasOf = &aliasOf.Int64
	}
	return &a, nil
}

// root follows alias_of from id until it reaches a canonical row.
func root(ctx context.Context, q db.Querier, id int64) (int64, error) {
	seen := map[int64]bool{id: true}
	for depth := 0; depth < maxAliasDepth; depth++ {
		var next sql.NullInt64
		err := q.QueryRowContext(ctx, `SELECT alias_of FROM activities WHERE id = ?`, id).Scan(&next)
		if err != nil {
			return 0, fmt.Errorf("follow alias of activity %d: %w", id, err)
		}
		if !next.Valid {
			return id, nil
		}
		if seen[next.Int64] {
			return 0, fmt.Errorf("activity %d: %w", next.Int64, ErrAliasCycle)
		}
		seen[next.Int64] = true
		id = next.Int64
	}
	return 0, fmt.Errorf("activity %d: %w", id, ErrAliasCycle)
}

func create(ctx context.Context, q db.Querier, norm string, aliasOf *int64) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO activities (name, alias_of) VALUES (?, ?)
		RETURNING id
	`, norm, db.NullInt64(aliasOf)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create activity %q: %w", norm, err)
	}
	return id, nil
}

// Resolve returns the canonical id for raw, creating a canonical row on
// first sighting.
func Resolve(ctx context.Context, q db.Querier, raw string) (int64, error) {
	norm := Normalize(raw)
	if norm == "" {
		return 0, apierr.Validation("resolve activity", "activity name is empty")
	}
	a, err := find(ctx, q, norm)
	if err != nil {
		return 0, err
	}
	if a == nil {
		return create(ctx, q, norm, nil)
	}
	return root(ctx, q, a.ID)
}

// Lookup is Resolve without the create: ok is false for unseen labels.
func Lookup(ctx context.Context, q db.Querier, raw string) (id int64, ok bool, err error) {
	a, err := find(ctx, q, Normalize(raw))
	if err != nil || a == nil {
		return 0, false, err
	}
	id, err = root(ctx, q, a.ID)
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// MergeResult summarizes a merge.
type MergeResult struct {
	TargetID         int64  `json:"target_id"`
	Canonical        string `json:"canonical"`
	AliasedCount     int    `json:"aliased_count"`
	RepointedMetrics int64  `json:"repointed_metrics"`
}

// Merge aliases every source label to target and repoints their metrics,
// all in one transaction.
func Merge(ctx context.Context, conn *sql.DB, sources []string, target string) (MergeResult, error) {
	var res MergeResult
	err := db.WithTx(ctx, conn, func(tx *sql.Tx) error {
		var err error
		res, err = MergeTx(ctx, tx, sources, target)
		return err
	})
	if err != nil {
		if apierr.KindOf(err) == apierr.KindValidation {
			return MergeResult{}, err
		}
		return MergeResult{}, apierr.Storage("merge activities", err)
	}
	return res, nil
}

// MergeTx is Merge inside a caller-owned transaction.
func MergeTx(ctx context.Context, q db.Querier, sources []string, target string) (MergeResult, error) {
	normTarget := Normalize(target)
	var normSources []string
	for _, s := range sources {
		if n := Normalize(s); n != "" {
			normSources = append(normSources, n)
		}
	}
	if normTarget == "" || len(normSources) == 0 {
		return MergeResult{}, apierr.Validation("merge activities", "sources and target are required")
	}

	res := MergeResult{Canonical: normTarget}

	t, err := find(ctx, q, normTarget)
	if err != nil {
		return res, err
	}
	switch {
	case t == nil:
		if res.TargetID, err = create(ctx, q, normTarget, nil); err != nil {
			return res, err
		}
	case !t.Canonical():
		res.TargetID = t.ID
		if _, err := q.ExecContext(ctx, `UPDATE activities SET alias_of = NULL WHERE id = ?`, t.ID); err != nil {
			return res, fmt.Errorf("promote %q to canonical: %w", normTarget, err)
		}
	default:
		res.TargetID = t.ID
	}

	var sourceIDs []any
	for _, src := range normSources {
		s, err := find(ctx, q, src)
		if err != nil {
			return res, err
		}
		var sid int64
		if s == nil {
			if sid, err = create(ctx, q, src, &res.TargetID); err != nil {
				return res, err
			}
		} else {
			sid = s.ID
		}
		if sid == res.TargetID {
			continue
		}
		if _, err := q.ExecContext(ctx, `UPDATE activities SET alias_of = ? WHERE id = ?`, res.TargetID, sid); err != nil {
			return res, fmt.Errorf("alias %q to %q: %w", src, normTarget, err)
		}
		sourceIDs = append(sourceIDs, sid)
	}
	res.AliasedCount = len(sourceIDs)
	if len(sourceIDs) == 0 {
		return res, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(sourceIDs)), ",")
	args := append([]any{res.TargetID}, sourceIDs...)
	r, err := q.ExecContext(ctx,
		`UPDATE metrics SET activity_id = ? WHERE activity_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return res, fmt.Errorf("repoint metrics: %w", err)
	}
	res.RepointedMetrics, _ = r.RowsAffected()
	return res, nil
}

// List returns every activity, canonical rows first, by name.
func List(ctx context.Context, q db.Querier) ([]Activity, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, alias_of FROM activities
		ORDER BY alias_of IS NOT NULL, name
	`)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	var out []Activity
	for rows.Next() {
		var (
			a       Activity
			aliasOf sql.NullInt64
		)
		if err := rows.Scan(&a.ID, &a.Name, &aliasOf); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if aliasOf.Valid {
			a.AliasOf = &aliasOf.Int64
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
