// Package store 保存网关处理过的分析事件历史（有界、按到达顺序）。
package store

import (
	"context"
	"sync"

	"github.com/AniketZimane/EduVision-AI/internal/models"
)

const (
	// DefaultCapacity 历史最多保留的事件数
	DefaultCapacity = 1000
	// BackfillSize 教师连接时回填的事件数
	BackfillSize = 50
)

// EventLog 有界事件历史
type EventLog interface {
	Append(ctx context.Context, event models.AnalysisEvent) error
	// Recent 返回最近最多 n 个事件（旧 → 新）
	Recent(ctx context.Context, n int) ([]models.AnalysisEvent, error)
	Len(ctx context.Context) (int, error)
}

// MemoryLog 进程内实现
type MemoryLog struct {
	mu       sync.Mutex
	capacity int
	events   []models.AnalysisEvent
}

// NewMemoryLog 创建进程内事件历史；capacity <= 0 时使用 DefaultCapacity
func NewMemoryLog(capacity int) *MemoryLog {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryLog{capacity: capacity}
}

func (m *MemoryLog) Append(_ context.Context, event models.AnalysisEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	if over := len(m.events) - m.capacity; over > 0 {
		m.events = append(m.events[:0], m.events[over:]...)
	}
	return nil
}

func (m *MemoryLog) Recent(_ context.Context, n int) ([]models.AnalysisEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= 0 || len(m.events) == 0 {
		return []models.AnalysisEvent{}, nil
	}
	start := len(m.events) - n
	if start < 0 {
		start = 0
	}
	out := make([]models.AnalysisEvent, len(m.events)-start)
	copy(out, m.events[start:])
	return out, nil
}

func (m *MemoryLog) Len(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events), nil
}
