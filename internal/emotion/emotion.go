// Package emotion holds the affective model every analyzer and aggregate
// speaks: Plutchik's eight primary emotions, their three intensity tiers,
// the named dyads between pairs of primaries and the free-text normalizer.
package emotion

import (
	"math"
	"strings"
)

// Primary is one of Plutchik's eight base emotions.
type Primary string

const (
	Joy          Primary = "joy"
	Trust        Primary = "trust"
	Fear         Primary = "fear"
	Surprise     Primary = "surprise"
	Sadness      Primary = "sadness"
	Disgust      Primary = "disgust"
	Anger        Primary = "anger"
	Anticipation Primary = "anticipation"
)

// Primaries lists the wheel in its conventional order.
var Primaries = []Primary{Joy, Trust, Fear, Surprise, Sadness, Disgust, Anger, Anticipation}

// Source tells who reported an emotion or metric.
type Source string

const (
	SourceAI   Source = "ai"
	SourceUser Source = "user"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	return s == SourceAI || s == SourceUser
}

// Valid reports whether p is one of the eight primaries.
func (p Primary) Valid() bool {
	_, ok := levels[p]
	return ok
}

func (p Primary) String() string { return string(p) }

// DefaultLevel is the middle tier, used whenever a level is out of range.
const DefaultLevel = 2

var levels = map[Primary][3]string{
	Joy:          {"serenity", "joy", "ecstasy"},
	Trust:        {"acceptance", "trust", "admiration"},
	Fear:         {"apprehension", "fear", "terror"},
	Surprise:     {"distraction", "surprise", "amazement"},
	Sadness:      {"pensiveness", "sadness", "grief"},
	Disgust:      {"boredom", "disgust", "loathing"},
	Anger:        {"annoyance", "anger", "rage"},
	Anticipation: {"interest", "anticipation", "vigilance"},
}

var synonyms = map[string]Primary{
	"happy": Joy, "happiness": Joy, "glad": Joy, "good": Joy, "great": Joy,
	"excited": Anticipation, "eager": Anticipation, "curious": Anticipation,
	"calm": Trust, "content": Trust, "safe": Trust, "secure": Trust,
	"surprised": Surprise, "shocked": Surprise, "amazed": Surprise,

	"tired": Sadness, "exhausted": Sadness, "fatigued": Sadness, "lonely": Sadness, "tiredness": Sadness,
	"disappointed": Sadness, "grief": Sadness, "depressed": Sadness, "down": Sadness,
	"frustration": Anger, "frustrated": Anger, "annoyed": Anger, "irritated": Anger,
	"mad": Anger, "furious": Anger, "rage": Anger,
	"anxious": Fear, "anxiety": Fear, "worried": Fear, "afraid": Fear, "scared": Fear, "nervous": Fear,
	"stressed": Fear, "overwhelmed": Fear,
	"disgusted": Disgust, "gross": Disgust, "repulsed": Disgust, "bored": Disgust,
}

// Normalize maps a free-text label to a primary emotion. Canonical names win
// over the synonym table; anything else is reported as no match (ok=false),
// which callers treat as "skip this item".
func Normalize(label string) (Primary, bool) {
	s := strings.ToLower(strings.TrimSpace(label))
	if s == "" {
		return "", false
	}
	if p := Primary(s); p.Valid() {
		return p, true
	}
	p, ok := synonyms[s]
	return p, ok
}

// ValidLevel reports whether level is one of the three tiers.
func ValidLevel(level int) bool {
	return level >= 1 && level <= 3
}

// SubLabel returns the display name of (p, level). An invalid level falls
// back to the middle tier; an unknown primary yields "".
func SubLabel(p Primary, level int) string {
	names, ok := levels[p]
	if !ok {
		return ""
	}
	if !ValidLevel(level) {
		level = DefaultLevel
	}
	return names[level-1]
}

// LevelFromIntensity buckets a (clamped) intensity into three tiers: below
// one third is tier 1, below 0.67 tier 2, the rest tier 3.
func LevelFromIntensity(x float64) int {
	c := Clamp01(x)
	switch {
	case c < 1.0/3:
		return 1
	case c < 0.67:
		return 2
	default:
		return 3
	}
}

// Clamp limits x to [lo, hi]. NaN becomes lo.
func Clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) || x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Clamp01 clamps x to the unit interval.
func Clamp01(x float64) float64 {
	return Clamp(x, 0, 1)
}
