// Package emitter 把网关产生的分析事件转发给外部系统（Redis Stream、MQTT）。
// 转发是尽力而为的，失败只记录日志，不影响 websocket 通道。
package emitter

import (
	"context"

	"github.com/AniketZimane/EduVision-AI/internal/models"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Emitter 事件下游
type Emitter interface {
	Emit(ctx context.Context, event models.AnalysisEvent) error
}

// Multi 依次调用所有下游，一个失败不影响其它
type Multi struct {
	emitters []Emitter
	logger   *zap.Logger
}

// NewMulti 组合多个下游；nil 会被忽略
func NewMulti(logger *zap.Logger, emitters ...Emitter) *Multi {
	m := &Multi{logger: logger}
	for _, e := range emitters {
		if e != nil {
			m.emitters = append(m.emitters, e)
		}
	}
	return m
}

// Len 下游数量
func (m *Multi) Len() int { return len(m.emitters) }

func (m *Multi) Emit(ctx context.Context, event models.AnalysisEvent) error {
	var errs error
	for _, e := range m.emitters {
		if err := e.Emit(ctx, event); err != nil {
			m.logger.Warn("Failed to emit event",
				zap.String("status", string(event.Status)),
				zap.Error(err),
			)
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}
