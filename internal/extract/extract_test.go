package extract

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractFencedObjectAfterProse(t *testing.T) {
	raw := "Sure! ```json\n{\"emotions\":[{\"primary_emotion\":\"joy\",\"intensity\":1.5}]}\n```"

	got := Extract(raw, false)
	m, ok := got.(map[string]any)
	require.True(t, ok, "got %T", got)
	emotions, ok := m["emotions"].([]any)
	require.True(t, ok)
	require.Len(t, emotions, 1)
	first := emotions[0].(map[string]any)
	assert.Equal(t, "joy", first["primary_emotion"])
	assert.Equal(t, 1.5, first["intensity"])
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, "json\n{\"a\":1}", StripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, "no fence {}", StripFences("no fence {}"))
	// an unterminated fence is left alone
	assert.Equal(t, "```json\n{", StripFences("```json\n{"))
}

func TestSpans(t *testing.T) {
	s := `first {"a": [1, 2]} then [3] and {"b": "has } and ] inside"} trailing {`
	want := []string{`{"a": [1, 2]}`, `[3]`, `{"b": "has } and ] inside"}`}
	if diff := cmp.Diff(want, Spans(s)); diff != "" {
		t.Fatalf("Spans mismatch (-want +got):\n%s", diff)
	}
}

func TestSpansMismatchedCloserAbandonsSpan(t *testing.T) {
	assert.Equal(t, []string{`{"ok":true}`}, Spans(`{"a": [1} {"ok":true}`))
}

func TestStrayQuoteInProseFallsBackToBrackets(t *testing.T) {
	raw := `The entry says {"mood": "uneasy} so overall: {"valence": 0.5, "arousal": 0.2}`

	assert.Empty(t, Spans(raw))
	want := []string{`{"mood": "uneasy}`, `{"valence": 0.5, "arousal": 0.2}`}
	if diff := cmp.Diff(want, BracketSpans(raw)); diff != "" {
		t.Fatalf("BracketSpans mismatch (-want +got):\n%s", diff)
	}

	got := Extract(raw, false)
	if diff := cmp.Diff(map[string]any{"valence": 0.5, "arousal": 0.2}, got); diff != "" {
		t.Fatalf("Extract mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, Extract(raw, true), 1)
}

func TestLastPrefersTheFinalParseableSpan(t *testing.T) {
	raw := `Draft: {"valence": 0.1} Final answer: {"valence": 0.7} {broken`
	v, ok := Last(raw)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"valence": 0.7}, v)

	v, ok = First(raw)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"valence": 0.1}, v)
}

func TestLastSkipsInvalidTrailingSpan(t *testing.T) {
	raw := `{"valence": 0.2} and then {valence: nope}`
	v, ok := Last(raw)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"valence": 0.2}, v)
}

func TestRowsUnwrapsAndFlattens(t *testing.T) {
	raw := "Here you go:\n" +
		`{"themeriver": [{"emotion": "joy"}, "junk", {"emotion": "fear"}]}` + "\n" +
		`and one more {"emotion": "sadness"}` + "\n" +
		`{"items": [{"emotion": "trust"}]}`

	got := Rows(raw, "themeriver")
	want := []map[string]any{
		{"emotion": "joy"},
		{"emotion": "fear"},
		{"emotion": "sadness"},
		{"emotion": "trust"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Rows mismatch (-want +got):\n%s", diff)
	}
}

func TestRowsTopLevelArray(t *testing.T) {
	got := Rows(`[{"name": "running", "rating": 8}, 3, null]`)
	assert.Equal(t, []map[string]any{{"name": "running", "rating": 8.0}}, got)
}

func TestNoMatchYieldsShapeAppropriateEmpty(t *testing.T) {
	assert.Equal(t, map[string]any{}, Extract("I could not find anything.", false))
	assert.Equal(t, []any{}, Extract("I could not find anything.", true))
	assert.Equal(t, []any{}, Extract("", true))
	assert.Equal(t, map[string]any{}, Extract("{not json}", false))
}

func TestUnwrap(t *testing.T) {
	list := []any{map[string]any{"x": 1.0}}
	assert.Equal(t, list, Unwrap(map[string]any{"data": list}, "items", "data"))
	// a non-list value under the key is not unwrapped
	obj := map[string]any{"items": "none"}
	assert.Equal(t, obj, Unwrap(obj, "items"))
	assert.Equal(t, 3.0, Unwrap(3.0, "items"))
}
