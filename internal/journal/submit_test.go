package journal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Napageneral/journai/internal/apierr"
	"github.com/Napageneral/journai/internal/bus"
)

func TestSubmitMetric(t *testing.T) {
	j, conn := newJournal(t, nil)
	ctx := context.Background()
	scope := today(t, j)

	comment := "with friends"
	id, err := j.SubmitMetric(ctx, scope, MetricInput{Tag: "activity", Description: " Gaming ", Rating: 8, Comment: &comment})
	require.NoError(t, err)
	assert.Equal(t, 1, count(t, conn, `
		SELECT COUNT(*) FROM metrics m JOIN activities a ON a.id = m.activity_id
		WHERE m.id = ? AND a.name = 'gaming' AND m.metric_type = 'activity' AND m.source = 'user' AND m.comment = 'with friends'`, id))

	_, err = j.SubmitMetric(ctx, scope, MetricInput{Tag: "quiz", Description: "q2", Rating: 1})
	require.NoError(t, err)
	_, err = j.SubmitMetric(ctx, scope, MetricInput{Tag: "sleep", Description: "hours", Rating: 7})
	require.NoError(t, err)
	assert.Equal(t, 1, count(t, conn, `SELECT COUNT(*) FROM metrics WHERE metric_type = 'sleep' AND activity_id IS NULL`))
	assert.Equal(t, 3, count(t, conn, `SELECT COUNT(*) FROM bus_events WHERE type = ?`, bus.MetricSubmitted))

	for _, in := range []MetricInput{
		{Tag: "activity", Description: "gaming", Rating: 0},
		{Tag: "activity", Description: "gaming", Rating: 11},
		{Tag: "", Description: "gaming", Rating: 5},
		{Tag: "activity", Description: "  ", Rating: 5},
	} {
		_, err := j.SubmitMetric(ctx, scope, in)
		assert.True(t, apierr.Is(err, apierr.KindValidation), "%+v", in)
	}
	assert.Equal(t, 3, count(t, conn, `SELECT COUNT(*) FROM metrics`))

	missing := int64(42)
	_, err = j.SubmitMetric(ctx, scope, MetricInput{Tag: "quiz", Description: "q1", Rating: 2, EntryID: &missing})
	assert.True(t, apierr.Is(err, apierr.KindNotFound))
}

func TestSubmitMood(t *testing.T) {
	j, conn := newJournal(t, nil)
	ctx := context.Background()
	scope := today(t, j)

	note := "  slept badly "
	n, err := j.SubmitMood(ctx, scope, MoodInput{
		PHQ4:     []*int{intp(2), nil, intp(3)},
		Feelings: []*int{nil, nil, nil, nil, nil, nil, intp(9)},
		Note:     &note,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	assert.Equal(t, 1, count(t, conn, `SELECT COUNT(*) FROM metrics WHERE description = 'q1' AND rating = 2 AND comment = 'Feeling nervous, anxious, or on edge'`))
	assert.Equal(t, 0, count(t, conn, `SELECT COUNT(*) FROM metrics WHERE description = 'q2'`))
	assert.Equal(t, 1, count(t, conn, `SELECT COUNT(*) FROM metrics WHERE description = 'q3' AND comment = 'Feeling down, depressed, or hopeless'`))
	assert.Equal(t, 1, count(t, conn, `SELECT COUNT(*) FROM metrics WHERE description = 'f7' AND rating = 9 AND comment = 'Lonely'`))
	assert.Equal(t, 1, count(t, conn, `SELECT COUNT(*) FROM metrics WHERE description = 'note' AND rating IS NULL AND comment = 'slept badly'`))
	assert.Equal(t, 4, count(t, conn, `SELECT COUNT(*) FROM metrics WHERE metric_type = 'quiz' AND source = 'user' AND session_id = ?`, scope.SessionID))
}

func TestSubmitMoodRejectsBeforeWriting(t *testing.T) {
	j, conn := newJournal(t, nil)
	ctx := context.Background()
	scope := today(t, j)

	_, err := j.SubmitMood(ctx, scope, MoodInput{PHQ4: []*int{intp(2), intp(12)}})
	assert.True(t, apierr.Is(err, apierr.KindValidation))
	_, err = j.SubmitMood(ctx, scope, MoodInput{Feelings: make([]*int, 8)})
	assert.True(t, apierr.Is(err, apierr.KindValidation))
	assert.Equal(t, 0, count(t, conn, `SELECT COUNT(*) FROM metrics`))
}

func TestSubmitManualEmotions(t *testing.T) {
	j, conn := newJournal(t, nil)
	ctx := context.Background()
	scope := today(t, j)

	res, err := j.SubmitManualEmotions(ctx, scope, []ManualEmotion{
		{Primary: " Joy ", Intensity: 0.6},
		{Primary: "trust", Intensity: 0.8, Level: intp(3)},
		{Primary: "fear", Intensity: 0.3, Timestamp: "2026-10-18T08:00:00Z"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Inserted)
	require.Len(t, res.Dyads, 1)
	assert.Equal(t, "love", res.Dyads[0].Label)
	assert.InDelta(t, 0.7, res.Dyads[0].Weight, 1e-9)
	assert.Nil(t, res.Dyads[0].Confidence)

	assert.Equal(t, 3, count(t, conn, `SELECT COUNT(*) FROM emotion_events WHERE source = 'user' AND entry_id IS NULL AND confidence IS NULL`))
	assert.Equal(t, 1, count(t, conn, `SELECT COUNT(*) FROM emotion_events WHERE primary_emotion = 'trust' AND level = 3 AND sub_label = 'admiration'`))
	assert.Equal(t, 1, count(t, conn, `SELECT COUNT(*) FROM emotion_events WHERE primary_emotion = 'fear' AND timestamp = '2026-10-18 08:00:00'`))
	assert.Equal(t, 1, count(t, conn, `SELECT COUNT(*) FROM emotion_dyads WHERE source = 'user' AND entry_id IS NULL`))
	assert.Equal(t, 1, count(t, conn, `SELECT COUNT(*) FROM bus_events WHERE type = ?`, bus.EmotionsSubmitted))
}

func TestSubmitManualEmotionsValidation(t *testing.T) {
	j, conn := newJournal(t, nil)
	ctx := context.Background()
	scope := today(t, j)

	for _, items := range [][]ManualEmotion{
		nil,
		{{Primary: "joy", Intensity: 0.5}, {Primary: "happy", Intensity: 0.5}},
		{{Primary: "joy", Intensity: 1.2}},
		{{Primary: "joy", Intensity: 0.5, Level: intp(4)}},
		{{Primary: "joy", Intensity: 0.5, Timestamp: "yesterday"}},
	} {
		_, err := j.SubmitManualEmotions(ctx, scope, items)
		assert.True(t, apierr.Is(err, apierr.KindValidation), "%+v", items)
	}
	assert.Equal(t, 0, count(t, conn, `SELECT COUNT(*) FROM emotion_events`))
}

func TestMergeActivitiesEmitsEvent(t *testing.T) {
	j, conn := newJournal(t, nil)
	ctx := context.Background()
	scope := today(t, j)
	_, err := j.SubmitMetric(ctx, scope, MetricInput{Tag: "activity", Description: "game", Rating: 5})
	require.NoError(t, err)

	res, err := j.MergeActivities(ctx, []string{"game", "video games"}, "Gaming")
	require.NoError(t, err)
	assert.Equal(t, "gaming", res.Canonical)
	assert.Equal(t, int64(1), res.RepointedMetrics)

	events, err := bus.List(ctx, conn, 0, 0)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, bus.ActivitiesMerged, events[len(events)-1].Type)

	_, err = j.MergeActivities(ctx, nil, "gaming")
	assert.True(t, apierr.Is(err, apierr.KindValidation))
}
