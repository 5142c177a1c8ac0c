// Package session 实现学生/教师两条遥测通道的客户端会话：
// 建立连接、维护 connecting → ready → disconnected|errored 状态机，并分发下行信封。
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// DefaultWriteTimeout 单次写入的超时
const DefaultWriteTimeout = 5 * time.Second

// Options 两种会话共用的参数
type Options struct {
	URL          string
	Dialer       Dialer
	WriteTimeout time.Duration
	// OnStateChange 在状态迁移后调用（不持有会话锁）
	OnStateChange func(State)
}

// base 连接生命周期。每个实例只连接一次，终态后不会自动重连。
type base struct {
	id      string
	channel Channel
	opts    Options
	logger  *zap.Logger

	mu       sync.Mutex
	state    State
	conn     Conn
	stopping bool
	lastErr  error

	writeMu sync.Mutex

	readerDone chan struct{}
	stopOnce   sync.Once

	// onStop 本地 Stop 时在关闭连接之前调用
	onStop func()
	// onTeardown 进入终态后调用一次（可能在读 goroutine 中）
	onTeardown   func()
	teardownOnce sync.Once
}

func (b *base) init(channel Channel, opts Options, logger *zap.Logger) {
	if opts.Dialer == nil {
		opts.Dialer = WebSocketDialer{}
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	b.id = uuid.NewString()
	b.channel = channel
	b.opts = opts
	b.logger = logger.With(zap.String("session_id", b.id), zap.String("channel", string(channel)))
	b.readerDone = make(chan struct{})
}

// ID 会话标识
func (b *base) ID() string { return b.id }

// State 当前状态
func (b *base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Ready 是否处于 ready 状态且未在停止中
func (b *base) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == StateReady && !b.stopping
}

func (b *base) isStopping() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stopping
}

// Err 导致进入 errored 的错误（如有）
func (b *base) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

// transition 执行合法迁移并通知回调；非法迁移（包括离开终态）被忽略
func (b *base) transition(to State, cause error) bool {
	b.mu.Lock()
	from := b.state
	if !canTransition(from, to) {
		b.mu.Unlock()
		return false
	}
	b.state = to
	if to == StateErrored && cause != nil {
		b.lastErr = cause
	}
	b.mu.Unlock()

	fields := []zap.Field{zap.Stringer("from", from), zap.Stringer("to", to)}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	}
	if to == StateErrored {
		b.logger.Warn("Session state changed", fields...)
	} else {
		b.logger.Info("Session state changed", fields...)
	}

	if b.opts.OnStateChange != nil {
		b.opts.OnStateChange(to)
	}
	return true
}

// begin idle → connecting；实例已经启动过时返回 ErrAlreadyStarted
func (b *base) begin() error {
	if !b.transition(StateConnecting, nil) {
		return ErrAlreadyStarted
	}
	return nil
}

// connect 拨号；失败时进入 errored
func (b *base) connect(ctx context.Context) error {
	conn, err := b.opts.Dialer.Dial(ctx, b.opts.URL)
	if err != nil {
		b.transition(StateErrored, err)
		b.teardown()
		return fmt.Errorf("failed to connect %s channel: %w", b.channel, err)
	}

	b.mu.Lock()
	if b.stopping {
		// Stop 在拨号期间被调用
		b.mu.Unlock()
		conn.Close()
		return fmt.Errorf("%s channel stopped while connecting", b.channel)
	}
	b.conn = conn
	b.mu.Unlock()
	return nil
}

// runReader 启动读 goroutine；连接关闭或出错时进入终态并拆除
func (b *base) runReader(handle func([]byte)) {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()

	go func() {
		defer close(b.readerDone)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				b.mu.Lock()
				stopping := b.stopping
				b.mu.Unlock()

				next := closeState(err)
				if stopping {
					next = StateDisconnected
				}
				b.transition(next, err)
				conn.Close()
				b.teardown()
				return
			}
			handle(data)
		}
	}()
}

// write 发送一条文本消息；失败时会话进入 errored 并关闭连接，
// 后续拆除由读 goroutine 完成
func (b *base) write(payload []byte) error {
	b.mu.Lock()
	conn := b.conn
	ready := b.state == StateReady && !b.stopping
	b.mu.Unlock()
	if !ready || conn == nil {
		return ErrNotReady
	}

	b.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(b.opts.WriteTimeout))
	err := conn.WriteMessage(websocket.TextMessage, payload)
	b.writeMu.Unlock()

	if err != nil {
		b.transition(StateErrored, err)
		conn.Close()
		return fmt.Errorf("write to %s channel: %w", b.channel, err)
	}
	return nil
}

// abandon 在读 goroutine 启动之前放弃连接
func (b *base) abandon() {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	close(b.readerDone)
	b.teardown()
}

func (b *base) teardown() {
	b.teardownOnce.Do(func() {
		if b.onTeardown != nil {
			b.onTeardown()
		}
	})
}

// Stop 先停止本地定时工作，再关闭连接并等待读 goroutine 退出；可重复调用
func (b *base) Stop() {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		b.stopping = true
		conn := b.conn
		b.mu.Unlock()

		if b.onStop != nil {
			b.onStop()
		}

		if conn != nil {
			b.writeMu.Lock()
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			b.writeMu.Unlock()
			conn.Close()
			<-b.readerDone
		}

		b.transition(StateDisconnected, nil)
		b.teardown()
	})
}
