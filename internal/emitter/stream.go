package emitter

import (
	"context"
	"encoding/json"
	"fmt"

	rediscommon "github.com/AniketZimane/EduVision-AI/common/redis"
	"github.com/AniketZimane/EduVision-AI/internal/models"

	"github.com/go-redis/redis/v8"
)

// StreamEmitter 每个事件 XADD 到 Redis Stream
type StreamEmitter struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewStreamEmitter(client *redis.Client, stream string, maxLen int64) *StreamEmitter {
	return &StreamEmitter{client: client, stream: stream, maxLen: maxLen}
}

func (s *StreamEmitter) Emit(ctx context.Context, event models.AnalysisEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	alertType := ""
	if event.HasAlert() {
		alertType = string(*event.AlertType)
	}

	_, err = rediscommon.PublishToStream(ctx, s.client, s.stream, s.maxLen, map[string]interface{}{
		"status":     string(event.Status),
		"face_count": event.FaceCount,
		"alert_type": alertType,
		"timestamp":  event.Timestamp,
		"data":       data,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", s.stream, err)
	}
	return nil
}
