package capture

import (
	"sync"
	"time"

	"github.com/AniketZimane/EduVision-AI/internal/clock"
	"github.com/AniketZimane/EduVision-AI/internal/models"

	"go.uber.org/zap"
)

const (
	// DefaultInterval 采集节拍（5 FPS）
	DefaultInterval = 200 * time.Millisecond
	// DefaultWarmup 会话 ready 之后首帧前的预热延迟
	DefaultWarmup = 500 * time.Millisecond
)

// Sender 帧发送端（由 Telemetry Session 实现）
type Sender interface {
	// Ready 连接是否处于 ready 状态
	Ready() bool
	SendFrame(frame models.Frame) error
}

// Options 采集循环参数
type Options struct {
	Interval time.Duration
	Warmup   time.Duration
}

// Stats 采集循环计数
type Stats struct {
	Ticks         uint64 // 执行过的节拍
	Sent          uint64 // 成功发送的帧
	SourceWaiting uint64 // 媒体源尚未出帧
	NotReady      uint64 // 连接未 ready，帧被丢弃
	CaptureErrors uint64 // 取帧或编码失败
	SendErrors    uint64 // 发送失败
}

// Loop 固定节拍的采集/编码/发送循环。
// 每个节拍最多处理一帧，连接未就绪时直接丢弃（latest-wins），从不排队。
// 下一个节拍在本节拍工作完成后才注册，因此慢网络不会累积待发送的工作。
type Loop struct {
	clock   clock.Clock
	source  Source
	encoder Encoder
	sender  Sender
	opts    Options
	logger  *zap.Logger

	mu      sync.Mutex
	running bool
	timer   clock.Timer
	stats   Stats
}

// NewLoop 创建采集循环
func NewLoop(clk clock.Clock, source Source, encoder Encoder, sender Sender, opts Options, logger *zap.Logger) *Loop {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Warmup < 0 {
		opts.Warmup = 0
	}
	return &Loop{
		clock:   clk,
		source:  source,
		encoder: encoder,
		sender:  sender,
		opts:    opts,
		logger:  logger,
	}
}

// Start 注册预热定时器；重复调用无效果
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}
	l.running = true
	l.timer = l.clock.AfterFunc(l.opts.Warmup, l.tick)

	l.logger.Debug("Capture loop started",
		zap.Duration("warmup", l.opts.Warmup),
		zap.Duration("interval", l.opts.Interval),
	)
}

// Stop 取消待触发的定时器。Stop 返回后不会再有节拍执行。
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return
	}
	l.running = false
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.logger.Debug("Capture loop stopped",
		zap.Uint64("sent", l.stats.Sent),
		zap.Uint64("not_ready", l.stats.NotReady),
	)
}

// Running 循环是否在运行
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Stats 返回计数快照
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

func (l *Loop) tick() {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Stop 与定时器触发竞争时，以 Stop 为准
	if !l.running {
		return
	}
	l.stats.Ticks++
	l.captureOnce()
	l.timer = l.clock.AfterFunc(l.opts.Interval, l.tick)
}

// captureOnce 执行一个节拍的工作；调用方持有 l.mu
func (l *Loop) captureOnce() {
	if !l.source.Ready() {
		l.stats.SourceWaiting++
		return
	}
	if !l.sender.Ready() {
		l.stats.NotReady++
		return
	}

	capturedAt := l.clock.Now()
	img, err := l.source.Snapshot()
	if err != nil {
		l.stats.CaptureErrors++
		l.logger.Warn("Failed to capture frame", zap.Error(err))
		return
	}
	data, err := l.encoder.Encode(img)
	if err != nil {
		l.stats.CaptureErrors++
		l.logger.Warn("Failed to encode frame", zap.Error(err))
		return
	}

	if err := l.sender.SendFrame(models.NewFrame(data, capturedAt)); err != nil {
		l.stats.SendErrors++
		l.logger.Debug("Frame dropped", zap.Error(err))
		return
	}
	l.stats.Sent++
}
