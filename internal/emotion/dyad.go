package emotion

type pair struct{ a, b Primary }

// dyadNames holds the 24 named blends. Opposites (joy/sadness, trust/disgust,
// fear/anger, surprise/anticipation) have no name.
var dyadNames = func() map[pair]string {
	named := []struct {
		a, b  Primary
		label string
	}{
		{Joy, Trust, "love"},
		{Trust, Fear, "submission"},
		{Fear, Surprise, "awe"},
		{Surprise, Sadness, "disapproval"},
		{Sadness, Disgust, "remorse"},
		{Disgust, Anger, "contempt"},
		{Anger, Anticipation, "aggressiveness"},
		{Anticipation, Joy, "optimism"},

		{Anticipation, Trust, "hope"},
		{Anticipation, Fear, "anxiety"},
		{Joy, Fear, "guilt"},
		{Joy, Surprise, "delight"},
		{Trust, Surprise, "curiosity"},
		{Trust, Sadness, "sentimentality"},
		{Fear, Sadness, "despair"},
		{Fear, Disgust, "shame"},
		{Surprise, Disgust, "unbelief"},
		{Surprise, Anger, "outrage"},
		{Sadness, Anger, "envy"},
		{Sadness, Anticipation, "pessimism"},
		{Disgust, Anticipation, "cynicism"},
		{Disgust, Joy, "morbidness"},
		{Anger, Joy, "pride"},
		{Anger, Trust, "dominance"},
	}
	m := make(map[pair]string, 2*len(named))
	for _, n := range named {
		m[pair{n.a, n.b}] = n.label
		m[pair{n.b, n.a}] = n.label
	}
	return m
}()

// DyadLabel names the blend of a and b. Self pairs, opposite pairs and
// unknown primaries report ok=false.
func DyadLabel(a, b Primary) (string, bool) {
	if a == b {
		return "", false
	}
	label, ok := dyadNames[pair{a, b}]
	return label, ok
}

// NamedDyadCount is the number of unordered primary pairs with a name.
func NamedDyadCount() int {
	return len(dyadNames) / 2
}

type va struct{ valence, arousal float64 }

var valenceArousal = map[Primary]va{
	Joy:          {0.9, 0.6},
	Trust:        {0.6, 0.4},
	Anticipation: {0.4, 0.6},
	Surprise:     {0.1, 0.85},
	Anger:        {-0.7, 0.8},
	Disgust:      {-0.7, 0.3},
	Fear:         {-0.8, 0.8},
	Sadness:      {-0.9, 0.2},
}

// ValenceArousal returns the fixed position of p on the circumplex.
// Unknown primaries sit at the neutral point (0, 0.5).
func ValenceArousal(p Primary) (valence, arousal float64) {
	v, ok := valenceArousal[p]
	if !ok {
		return 0, 0.5
	}
	return v.valence, v.arousal
}
