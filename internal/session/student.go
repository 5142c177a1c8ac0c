package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/AniketZimane/EduVision-AI/internal/capture"
	"github.com/AniketZimane/EduVision-AI/internal/clock"
	"github.com/AniketZimane/EduVision-AI/internal/models"
	"github.com/AniketZimane/EduVision-AI/internal/projection"

	"go.uber.org/zap"
)

// StudentOptions 学生会话参数
type StudentOptions struct {
	Options
	Source  capture.Source
	Encoder capture.Encoder
	Clock   clock.Clock
	Capture capture.Options
	// OnAnalysis 收到分析结果后调用（在读 goroutine 中）
	OnAnalysis func(event models.AnalysisEvent, view projection.StudentView)
}

// StudentSession 学生通道：上送帧、接收 analysis 并维护最近事件
type StudentSession struct {
	base

	source     capture.Source
	loop       *capture.Loop
	onAnalysis func(models.AnalysisEvent, projection.StudentView)
	recording  atomic.Bool

	latestMu sync.Mutex
	latest   *models.AnalysisEvent
}

// NewStudentSession 创建学生会话；采集循环以会话自身作为发送端
func NewStudentSession(opts StudentOptions, logger *zap.Logger) *StudentSession {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Encoder == nil {
		opts.Encoder = capture.NewJPEGEncoder(capture.DefaultJPEGQuality)
	}
	if opts.Capture.Warmup == 0 {
		opts.Capture.Warmup = capture.DefaultWarmup
	}

	s := &StudentSession{
		source:     opts.Source,
		onAnalysis: opts.OnAnalysis,
	}
	s.init(ChannelStudent, opts.Options, logger)
	s.loop = capture.NewLoop(opts.Clock, opts.Source, opts.Encoder, s, opts.Capture, s.logger)
	s.onStop = s.loop.Stop
	s.onTeardown = s.teardownCapture
	return s
}

// Start 打开媒体源、建立连接，进入 ready 后启动采集循环。
// 媒体源或连接失败时会话进入 errored，不会重试。
func (s *StudentSession) Start(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}

	if err := s.source.Open(); err != nil {
		err = fmt.Errorf("failed to open media source: %w", err)
		s.transition(StateErrored, err)
		return err
	}
	if s.isStopping() {
		// Stop 的拆除已经执行过，这里补关刚打开的媒体源
		_ = s.source.Close()
		return errors.New("student session stopped before connecting")
	}

	if err := s.connect(ctx); err != nil {
		return err
	}

	if !s.transition(StateReady, nil) {
		s.abandon()
		return errors.New("student session stopped before ready")
	}
	s.recording.Store(true)
	s.loop.Start()
	s.runReader(s.handleMessage)
	return nil
}

// SendFrame 实现 capture.Sender；未 ready 时返回 ErrNotReady，帧被丢弃
func (s *StudentSession) SendFrame(frame models.Frame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return s.write(payload)
}

// Recording 采集循环是否在运行
func (s *StudentSession) Recording() bool { return s.recording.Load() }

// Latest 最近一次分析结果；尚未收到时返回 nil
func (s *StudentSession) Latest() *models.AnalysisEvent {
	s.latestMu.Lock()
	defer s.latestMu.Unlock()
	if s.latest == nil {
		return nil
	}
	latest := *s.latest
	return &latest
}

// View 当前学生端显示状态
func (s *StudentSession) View() projection.StudentView {
	return projection.Project(s.Latest())
}

// CaptureStats 采集循环计数
func (s *StudentSession) CaptureStats() capture.Stats { return s.loop.Stats() }

func (s *StudentSession) handleMessage(data []byte) {
	env, err := models.DecodeEnvelope(data)
	if err != nil {
		s.logger.Debug("Discarding malformed message", zap.Error(err))
		return
	}

	msg, ok := env.(*models.AnalysisMessage)
	if !ok {
		s.logger.Debug("Ignoring message", zap.String("type", string(env.MessageType())))
		return
	}

	event := msg.Event
	s.latestMu.Lock()
	s.latest = &event
	s.latestMu.Unlock()

	if s.onAnalysis != nil {
		s.onAnalysis(event, projection.Project(&event))
	}
}

func (s *StudentSession) teardownCapture() {
	s.loop.Stop()
	s.recording.Store(false)
	if err := s.source.Close(); err != nil {
		s.logger.Warn("Failed to close media source", zap.Error(err))
	}
}
