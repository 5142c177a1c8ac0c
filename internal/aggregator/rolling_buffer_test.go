package aggregator

import (
	"testing"

	"github.com/AniketZimane/EduVision-AI/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestRollingBuffer_PushEvictsOldest(t *testing.T) {
	b := NewRollingBuffer(3)
	for i := 1; i <= 5; i++ {
		b.Push(models.ChartPoint{Timestamp: float64(i)})
	}
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, []float64{3, 4, 5}, timestamps(b.Points()))
}

func TestRollingBuffer_PointsIsACopy(t *testing.T) {
	b := NewRollingBuffer(2)
	b.Push(models.ChartPoint{Timestamp: 1})

	points := b.Points()
	points[0].Timestamp = 99
	assert.Equal(t, []float64{1}, timestamps(b.Points()))
}

func TestRollingBuffer_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, NewRollingBuffer(0).Cap())
}
