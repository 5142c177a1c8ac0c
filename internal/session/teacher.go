package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/AniketZimane/EduVision-AI/internal/aggregator"
	"github.com/AniketZimane/EduVision-AI/internal/models"

	"go.uber.org/zap"
)

// TeacherOptions 教师会话参数
type TeacherOptions struct {
	Options
	// Capacity 滚动窗口容量，默认 aggregator.DefaultCapacity
	Capacity int
	Location *time.Location
	// OnUpdate 每次聚合器变化后调用（在读 goroutine 中）
	OnUpdate func(aggregator.Dashboard)
}

// TeacherSession 教师通道：只接收，不上送任何数据
type TeacherSession struct {
	base

	aggMu    sync.Mutex
	agg      *aggregator.Aggregator
	onUpdate func(aggregator.Dashboard)
}

// NewTeacherSession 创建教师会话
func NewTeacherSession(opts TeacherOptions, logger *zap.Logger) *TeacherSession {
	if opts.Capacity <= 0 {
		opts.Capacity = aggregator.DefaultCapacity
	}
	t := &TeacherSession{
		agg:      aggregator.New(opts.Capacity, opts.Location),
		onUpdate: opts.OnUpdate,
	}
	t.init(ChannelTeacher, opts.Options, logger)
	return t
}

// Start 建立连接并开始接收广播
func (t *TeacherSession) Start(ctx context.Context) error {
	if err := t.begin(); err != nil {
		return err
	}
	if err := t.connect(ctx); err != nil {
		return err
	}
	if !t.transition(StateReady, nil) {
		t.abandon()
		return errors.New("teacher session stopped before ready")
	}
	t.runReader(t.handleMessage)
	return nil
}

// View 在持有聚合器锁的情况下调用 fn
func (t *TeacherSession) View(fn func(*aggregator.Aggregator)) {
	t.aggMu.Lock()
	defer t.aggMu.Unlock()
	fn(t.agg)
}

// Dashboard 当前快照
func (t *TeacherSession) Dashboard() aggregator.Dashboard {
	var d aggregator.Dashboard
	t.View(func(a *aggregator.Aggregator) { d = a.Snapshot() })
	return d
}

func (t *TeacherSession) handleMessage(data []byte) {
	env, err := models.DecodeEnvelope(data)
	if err != nil {
		t.logger.Debug("Discarding malformed message", zap.Error(err))
		return
	}

	t.aggMu.Lock()
	switch msg := env.(type) {
	case *models.StudentUpdateMessage:
		t.agg.IngestIncremental(msg.Event)
	case *models.SessionDataMessage:
		t.agg.IngestBackfill(msg.Events)
		t.logger.Debug("Backfill applied", zap.Int("events", len(msg.Events)))
	default:
		t.aggMu.Unlock()
		t.logger.Debug("Ignoring message", zap.String("type", string(env.MessageType())))
		return
	}
	var snapshot aggregator.Dashboard
	if t.onUpdate != nil {
		snapshot = t.agg.Snapshot()
	}
	t.aggMu.Unlock()

	if t.onUpdate != nil {
		t.onUpdate(snapshot)
	}
}
