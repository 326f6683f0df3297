package emotion

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in     string
		want   Primary
		wantOK bool
	}{
		{"joy", Joy, true},
		{"  Anticipation", Anticipation, true},
		{"HAPPY ", Joy, true},
		{"overwhelmed", Fear, true},
		{"bored", Disgust, true},
		{"Frustrated", Anger, true},
		{"calm", Trust, true},
		{"unknown-word", "", false},
		{"", "", false},
		{"   ", "", false},
	}
	for _, tc := range cases {
		got, ok := Normalize(tc.in)
		assert.Equal(t, tc.wantOK, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestNormalizeIsIdempotentOnPrimaries(t *testing.T) {
	for _, p := range Primaries {
		got, ok := Normalize(string(p))
		assert.True(t, ok)
		assert.Equal(t, p, got)
		again, _ := Normalize(string(got))
		assert.Equal(t, got, again)
	}
}

func TestEverySynonymMapsToAPrimary(t *testing.T) {
	for word, p := range synonyms {
		assert.True(t, p.Valid(), "synonym %q maps to %q", word, p)
	}
}

func TestSubLabel(t *testing.T) {
	assert.Equal(t, "serenity", SubLabel(Joy, 1))
	assert.Equal(t, "joy", SubLabel(Joy, 2))
	assert.Equal(t, "ecstasy", SubLabel(Joy, 3))
	assert.Equal(t, "vigilance", SubLabel(Anticipation, 3))
	assert.Equal(t, "apprehension", SubLabel(Fear, 1))
	// out-of-range levels fall back to the middle tier
	assert.Equal(t, "grief", SubLabel(Sadness, 3))
	assert.Equal(t, "sadness", SubLabel(Sadness, 0))
	assert.Equal(t, "sadness", SubLabel(Sadness, 7))
	assert.Equal(t, "", SubLabel(Primary("calm"), 2))
}

func TestLevelFromIntensityBoundaries(t *testing.T) {
	cases := []struct {
		in   float64
		want int
	}{
		{0.0, 1},
		{0.333, 1},
		{1.0 / 3, 2},
		{0.3334, 2},
		{0.335, 2},
		{0.339, 2},
		{0.34, 2},
		{0.5, 2},
		{0.667, 2},
		{0.67, 3},
		{0.9, 3},
		{1.0, 3},
		{-3, 1},
		{42, 3},
		{math.NaN(), 1},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, LevelFromIntensity(tc.in), "intensity %v", tc.in)
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 1.0, Clamp01(1.5))
	assert.Equal(t, 0.0, Clamp01(-0.2))
	assert.Equal(t, 0.25, Clamp01(0.25))
	assert.Equal(t, -1.0, Clamp(-4, -1, 1))
}

func TestSourceValid(t *testing.T) {
	assert.True(t, SourceAI.Valid())
	assert.True(t, SourceUser.Valid())
	assert.False(t, Source("bot").Valid())
}
