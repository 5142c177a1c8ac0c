package aggregator

import (
	"math/rand"
	"testing"
	"time"

	"github.com/AniketZimane/EduVision-AI/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStatuses = []models.Status{
	models.StatusFocused, models.StatusEngaged, models.StatusConfused, models.StatusAlert, models.StatusUnknown,
}

func event(ts float64, status models.Status) models.AnalysisEvent {
	return models.AnalysisEvent{Status: status, FaceCount: 1, GazeDirection: "center", Emotion: "neutral", Timestamp: ts}
}

func timestamps(points []models.ChartPoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Timestamp
	}
	return out
}

func TestIngestIncremental_BoundedAndOrdered(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, n := range []int{0, 1, 49, 50, 51, 120} {
		agg := New(DefaultCapacity, time.UTC)
		for i := 0; i < n; i++ {
			agg.IngestIncremental(event(float64(i)*1000+rng.Float64(), allStatuses[rng.Intn(len(allStatuses))]))
		}

		want := n
		if want > DefaultCapacity {
			want = DefaultCapacity
		}
		points := agg.Points()
		require.Len(t, points, want, "n=%d", n)
		for i, p := range points {
			arrival := n - want + i
			assert.Equal(t, float64(arrival), float64(int(p.Timestamp/1000)), "n=%d i=%d", n, i)
		}
	}
}

func TestIngestIncremental_CurrentIsLatestEvenAfterEviction(t *testing.T) {
	agg := New(3, time.UTC)
	assert.Nil(t, agg.Current())

	for i := 1; i <= 5; i++ {
		agg.IngestIncremental(event(float64(i), models.StatusFocused))
	}
	agg.IngestIncremental(event(0.5, models.StatusConfused))

	require.NotNil(t, agg.Current())
	assert.Equal(t, 0.5, agg.Current().Timestamp)
	assert.Equal(t, models.StatusConfused, agg.Current().Status)
	assert.Equal(t, []float64{4, 5, 0.5}, timestamps(agg.Points()))
	assert.Equal(t, uint64(6), agg.Received())
}

func TestIngestBackfill_ReplacesNotAppends(t *testing.T) {
	agg := New(DefaultCapacity, time.UTC)
	agg.IngestIncremental(event(100, models.StatusAlert))

	batch := []models.AnalysisEvent{event(1, models.StatusFocused), event(2, models.StatusEngaged)}
	agg.IngestBackfill(batch)
	once := agg.Points()
	agg.IngestBackfill(batch)
	twice := agg.Points()

	assert.Equal(t, once, twice)
	assert.Equal(t, []float64{1, 2}, timestamps(twice))

	agg.IngestBackfill(nil)
	assert.Equal(t, 0, agg.Len())
}

func TestIngestBackfill_KeepsLastFifty(t *testing.T) {
	agg := New(DefaultCapacity, time.UTC)
	batch := make([]models.AnalysisEvent, 73)
	for i := range batch {
		batch[i] = event(float64(i), allStatuses[i%len(allStatuses)])
	}

	agg.IngestBackfill(batch)

	points := agg.Points()
	require.Len(t, points, 50)
	for i, p := range points {
		assert.Equal(t, float64(23+i), p.Timestamp)
	}
	// 回填不改变当前状态
	assert.Nil(t, agg.Current())
}

func TestEngagementScore_Table(t *testing.T) {
	want := map[models.Status]int{
		models.StatusAlert:    0,
		models.StatusConfused: 25,
		models.StatusUnknown:  50,
		models.StatusFocused:  75,
		models.StatusEngaged:  100,
		"":                    50,
		"distracted":          50,
	}
	for status, score := range want {
		assert.Equal(t, score, EngagementScore(status), "status %q", status)
	}

	// 其他字段不影响分数
	agg := New(DefaultCapacity, time.UTC)
	e := event(1, models.StatusEngaged)
	e.FaceCount = 3
	e.AlertType = models.AlertOf(models.AlertMultipleFaces)
	agg.IngestIncremental(e)
	assert.Equal(t, 100, agg.Points()[0].EngagementScore)
}

func TestRecentAlerts_LastFiveMostRecentFirst(t *testing.T) {
	agg := New(DefaultCapacity, time.UTC)
	for i := 1; i <= 7; i++ {
		agg.IngestIncremental(event(float64(i), models.StatusAlert))
		agg.IngestIncremental(event(float64(100+i), models.StatusFocused))
	}

	assert.Equal(t, []float64{7, 6, 5, 4, 3}, timestamps(agg.RecentAlerts()))
	assert.Empty(t, agg.RecentConfused())
}

func TestRecentConfused_FewerThanLimit(t *testing.T) {
	agg := New(DefaultCapacity, time.UTC)
	agg.IngestIncremental(event(1, models.StatusConfused))
	agg.IngestIncremental(event(2, models.StatusAlert))
	agg.IngestIncremental(event(3, models.StatusConfused))

	assert.Equal(t, []float64{3, 1}, timestamps(agg.RecentConfused()))
	assert.Equal(t, []float64{2}, timestamps(agg.RecentAlerts()))
}

func TestAlertMessage_Teacher(t *testing.T) {
	gaze := models.AnalysisEvent{Status: models.StatusAlert, AlertType: models.AlertOf(models.AlertGazeAway), GazeAwayDuration: 7.8}
	assert.Equal(t, "Student looking away for 8s", AlertMessage(&gaze))

	noFace := models.AnalysisEvent{Status: models.StatusAlert, AlertType: models.AlertOf(models.AlertNoFace)}
	assert.Equal(t, "Student not visible in camera", AlertMessage(&noFace))

	multi := models.AnalysisEvent{Status: models.StatusAlert, AlertType: models.AlertOf(models.AlertMultipleFaces)}
	assert.Equal(t, "Multiple people detected", AlertMessage(&multi))

	assert.Empty(t, AlertMessage(&models.AnalysisEvent{Status: models.StatusFocused}))
	assert.Empty(t, AlertMessage(nil))
}

func TestSnapshot(t *testing.T) {
	agg := New(DefaultCapacity, time.UTC)
	assert.True(t, agg.Snapshot().Waiting())

	e := models.AnalysisEvent{
		Status:           models.StatusAlert,
		AlertType:        models.AlertOf(models.AlertGazeAway),
		GazeAwayDuration: 3.2,
		Timestamp:        float64(time.Date(2026, 3, 2, 14, 5, 9, 0, time.UTC).Unix()),
	}
	agg.IngestIncremental(e)

	d := agg.Snapshot()
	assert.False(t, d.Waiting())
	assert.Equal(t, "PROCTOR ALERT", d.Headline)
	assert.Equal(t, "Student looking away for 3s", d.AlertMessage)
	assert.Equal(t, 1, d.DataPoints)
	assert.Equal(t, uint64(1), d.Received)
	assert.Equal(t, "14:05:09", d.Points[0].TimeLabel)
	assert.True(t, d.LastUpdate.Equal(time.Date(2026, 3, 2, 14, 5, 9, 0, time.UTC)))
	require.Len(t, d.RecentAlerts, 1)

	agg.IngestBackfill([]models.AnalysisEvent{e, e, e})
	d = agg.Snapshot()
	assert.Equal(t, 3, d.DataPoints)
	assert.Equal(t, uint64(1), d.Received)
}

func TestHeadline(t *testing.T) {
	assert.Equal(t, "STUDENT CONFUSED", Headline(models.StatusConfused))
	assert.Equal(t, "STUDENT ENGAGED", Headline(models.StatusEngaged))
	assert.Equal(t, "STUDENT FOCUSED", Headline(models.StatusFocused))
	assert.Equal(t, "STUDENT FOCUSED", Headline(models.StatusUnknown))
}
