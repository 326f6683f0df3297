package analysis

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Napageneral/journai/internal/emotion"
	"github.com/Napageneral/journai/internal/extract"
)

func TestPlutchikClampsFencedOutput(t *testing.T) {
	raw := "Sure! ```json\n{\"emotions\":[{\"primary_emotion\":\"joy\",\"intensity\":1.5}]}\n```"

	res, err := Plutchik{}.Parse(extract.Extract(raw, false, "plutchik"))
	require.NoError(t, err)

	got := res.(*PlutchikResult).Emotions
	require.Len(t, got, 1)
	assert.Equal(t, emotion.Joy, got[0].Primary)
	assert.Equal(t, 1.0, got[0].Intensity)
	assert.Equal(t, 3, got[0].Level)
	assert.Equal(t, "ecstasy", got[0].SubLabel)
	require.NotNil(t, got[0].Confidence)
	assert.Equal(t, 1.0, *got[0].Confidence)
}

func TestPlutchikParseNormalizesItems(t *testing.T) {
	raw := map[string]any{"emotions": []any{
		map[string]any{"primary_emotion": "HAPPY ", "intensity": 0.5, "level": 7.0},
		map[string]any{"primary_emotion": "meh", "intensity": 0.9},
		map[string]any{"primary_emotion": "anxious", "intensity": "0.2", "level": "3", "confidence": 2.0},
		"not an object",
	}}

	res, err := Plutchik{}.Parse(raw)
	require.NoError(t, err)
	got := res.(*PlutchikResult).Emotions
	require.Len(t, got, 2)

	assert.Equal(t, emotion.Joy, got[0].Primary)
	assert.Equal(t, 2, got[0].Level, "out of range level is derived from intensity")
	assert.Equal(t, "joy", got[0].SubLabel)

	assert.Equal(t, emotion.Fear, got[1].Primary)
	assert.Equal(t, 3, got[1].Level)
	assert.Equal(t, "terror", got[1].SubLabel)
	assert.Equal(t, 0.2, got[1].Intensity)
	assert.Equal(t, 1.0, *got[1].Confidence)
}

func TestPlutchikParseGarbage(t *testing.T) {
	for _, raw := range []any{nil, "text", 4.0, map[string]any{}, []any{}} {
		res, err := Plutchik{}.Parse(raw)
		require.NoError(t, err)
		assert.True(t, res.Empty())
	}
}

func TestVAParseClampsAndWraps(t *testing.T) {
	res, err := VA{}.Parse(map[string]any{
		"valence":         3.0,
		"arousal":         "-0.2",
		"primary_emotion": "joy",
		"activity_tags":   "running",
	})
	require.NoError(t, err)
	va := res.(*VAResult)
	assert.False(t, va.Empty())
	assert.Equal(t, 1.0, va.Valence)
	assert.Equal(t, 0.0, va.Arousal)
	assert.Equal(t, "joy", va.PrimaryEmotion)
	assert.Equal(t, "", va.SecondaryEmotion)
	assert.Equal(t, []string{"running"}, va.ActivityTags)

	res, err = VA{}.Parse(map[string]any{})
	require.NoError(t, err)
	assert.True(t, res.Empty())

	// Labels without either score are not a result worth storing.
	res, err = VA{}.Parse(map[string]any{"primary_emotion": "joy", "activity_tags": []any{"reading"}})
	require.NoError(t, err)
	assert.True(t, res.Empty())
}

func TestSpiderParse(t *testing.T) {
	res, err := Spider{}.Parse(map[string]any{
		"distressed": 11.4,
		"nervous":    "2.5",
		"lonely":     0.0,
		"upset":      "very",
		"bogus":      5.0,
	})
	require.NoError(t, err)

	want := []SpiderRating{
		{Feeling: "distressed", Rating: 10},
		{Feeling: "nervous", Rating: 2},
		{Feeling: "lonely", Rating: 1},
	}
	if diff := cmp.Diff(want, res.(*SpiderResult).Ratings); diff != "" {
		t.Errorf("ratings mismatch (-want +got):\n%s", diff)
	}
}

func TestSpiderNoRatingsIsAnError(t *testing.T) {
	for _, raw := range []any{map[string]any{}, map[string]any{"calm": 3.0}, []any{}, nil} {
		res, err := Spider{}.Parse(raw)
		assert.ErrorIs(t, err, ErrNoRatings)
		assert.True(t, res.Empty())
	}
}

func TestActivitiesParse(t *testing.T) {
	res, err := Activities{}.Parse(map[string]any{"activities": []any{
		map[string]any{"name": " Hiking ", "rating": "7.6", "comment": "  "},
		map[string]any{"name": "gaming", "rating": 11.0, "comment": "late night"},
		map[string]any{"name": "", "rating": 5.0},
		map[string]any{"rating": 5.0},
	}})
	require.NoError(t, err)

	got := res.(*ActivitiesResult).Activities
	require.Len(t, got, 2)
	assert.Equal(t, "Hiking", got[0].Name)
	require.NotNil(t, got[0].Rating)
	assert.Equal(t, 8, *got[0].Rating)
	assert.Nil(t, got[0].Comment)

	assert.Nil(t, got[1].Rating, "ratings outside 1..10 are dropped")
	require.NotNil(t, got[1].Comment)
	assert.Equal(t, "late night", *got[1].Comment)
}

func TestThemeRiverParse(t *testing.T) {
	raw := extract.Extract(`{"themeriver": [
		{"emotion": "Happy", "reasons": ["a","b","c","d","e","f","g","h"], "confidence": 0.7},
		{"emotion": "sadness", "reasons": "  missed the bus ", "intensity": 3},
		{"emotion": "boredom-ish"}
	]}`, true, "themeriver")

	res, err := ThemeRiver{}.Parse(raw)
	require.NoError(t, err)
	rows := res.(*ThemeRiverResult).Rows
	require.Len(t, rows, 2)

	assert.Equal(t, emotion.Joy, rows[0].Emotion)
	assert.Len(t, rows[0].Reasons, 6)
	assert.Equal(t, 0.4, rows[0].Intensity, "missing intensity defaults")
	require.NotNil(t, rows[0].Confidence)
	assert.Equal(t, 0.7, *rows[0].Confidence)
	v, a := emotion.ValenceArousal(emotion.Joy)
	assert.Equal(t, v, rows[0].Valence)
	assert.Equal(t, a, rows[0].Arousal)

	assert.Equal(t, []string{"missed the bus"}, rows[1].Reasons)
	assert.Equal(t, 1.0, rows[1].Intensity)
	assert.Nil(t, rows[1].Confidence)
}

func TestShapes(t *testing.T) {
	reg := DefaultRegistry(nil)
	for _, a := range reg.All() {
		assert.Equal(t, a.Name() == "themeriver", a.Shape().WantsArray(), a.Name())
	}
	s := Plutchik{}.Shape().String()
	assert.Contains(t, s, `"primary_emotion"`)
	assert.Contains(t, s, `"anticipation"`)
	assert.NotContains(t, s, "$schema")
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(Spider{}, "I slept badly.")

	assert.True(t, strings.HasPrefix(p, "Respond ONLY in JSON. No prose. No comments.\n\n"))
	assert.Contains(t, p, `Key "spider"`)
	assert.Contains(t, p, `JSON schema for "spider":`)
	assert.Contains(t, p, `"lonely"`)
	assert.Contains(t, p, "<<<BEGIN_OF_JOURNAL_ENTRY>>>\nI slept badly.\n<<<END_OF_JOURNAL_ENTRY>>>\n")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 3))
	assert.Equal(t, "ab…", Truncate("abc", 2))
	assert.Equal(t, "äö…", Truncate("äöü", 2))
	assert.Equal(t, "abc", Truncate("abc", 0))
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(VA{}, VA{})
	assert.Error(t, err)

	reg := DefaultRegistry(nil)
	assert.Equal(t, []string{"activities", "plutchik", "spider", "themeriver", "va"}, reg.Names())
	_, ok := reg.Get("nope")
	assert.False(t, ok)
}
