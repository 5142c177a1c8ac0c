package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/AniketZimane/EduVision-AI/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// DefaultRedisKey 事件历史的 Redis list key
const DefaultRedisKey = "eduvision:session:events"

// RedisLog 基于 Redis list 的实现：RPUSH 追加，LTRIM 保持上限
type RedisLog struct {
	client   *redis.Client
	key      string
	capacity int64
	logger   *zap.Logger
}

// NewRedisLog 创建 Redis 事件历史
func NewRedisLog(client *redis.Client, key string, capacity int, logger *zap.Logger) *RedisLog {
	if key == "" {
		key = DefaultRedisKey
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RedisLog{
		client:   client,
		key:      key,
		capacity: int64(capacity),
		logger:   logger,
	}
}

func (r *RedisLog) Append(ctx context.Context, event models.AnalysisEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, r.key, data)
		pipe.LTrim(ctx, r.key, -r.capacity, -1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append event to %s: %w", r.key, err)
	}
	return nil
}

// Recent 损坏的条目会被跳过并记录日志
func (r *RedisLog) Recent(ctx context.Context, n int) ([]models.AnalysisEvent, error) {
	if n <= 0 {
		return []models.AnalysisEvent{}, nil
	}
	raw, err := r.client.LRange(ctx, r.key, -int64(n), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read events from %s: %w", r.key, err)
	}

	events := make([]models.AnalysisEvent, 0, len(raw))
	for _, item := range raw {
		var event models.AnalysisEvent
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			r.logger.Warn("Skipping corrupt event entry",
				zap.String("key", r.key),
				zap.Error(err),
			)
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

func (r *RedisLog) Len(ctx context.Context) (int, error) {
	n, err := r.client.LLen(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read length of %s: %w", r.key, err)
	}
	return int(n), nil
}
