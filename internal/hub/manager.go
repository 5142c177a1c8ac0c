// Package hub 管理教师端连接并向它们广播学生事件。
// 每个教师有独立的有界发送队列和写 goroutine；队列满时丢弃消息，广播从不阻塞学生通道。
package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	DefaultQueueSize    = 64
	DefaultWriteTimeout = 5 * time.Second
)

// Conn 写端所需的连接方法（*websocket.Conn 实现该接口）
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
}

// Client 一个已注册的教师连接
type Client struct {
	id      string
	conn    Conn
	send    chan []byte
	done    chan struct{}
	dropped atomic.Uint64
	sent    atomic.Uint64
}

// ID 连接标识
func (c *Client) ID() string { return c.id }

// Done 写 goroutine 退出后关闭
func (c *Client) Done() <-chan struct{} { return c.done }

// Dropped 因队列满被丢弃的消息数
func (c *Client) Dropped() uint64 { return c.dropped.Load() }

// Sent 成功写出的消息数
func (c *Client) Sent() uint64 { return c.sent.Load() }

// Manager 教师连接注册表
type Manager struct {
	mu      sync.RWMutex
	clients map[string]*Client

	queueSize    int
	writeTimeout time.Duration
	logger       *zap.Logger
}

// NewManager 创建注册表
func NewManager(queueSize int, writeTimeout time.Duration, logger *zap.Logger) *Manager {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &Manager{
		clients:      make(map[string]*Client),
		queueSize:    queueSize,
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

// Register 注册连接并启动它的写 goroutine。
// initial 在加入广播之前入队，因此先于任何广播消息写出（用于回填）。
func (m *Manager) Register(conn Conn, initial ...[]byte) *Client {
	size := m.queueSize
	if len(initial) > size {
		size = len(initial)
	}
	c := &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, size),
		done: make(chan struct{}),
	}
	for _, payload := range initial {
		c.send <- payload
	}

	m.mu.Lock()
	m.clients[c.id] = c
	total := len(m.clients)
	m.mu.Unlock()

	go m.writePump(c)

	m.logger.Info("Teacher connected",
		zap.String("client_id", c.id),
		zap.Int("teachers", total),
	)
	return c
}

// Unregister 移除连接；已入队的消息写完后写 goroutine 退出。可重复调用。
func (m *Manager) Unregister(c *Client) {
	m.mu.Lock()
	if _, ok := m.clients[c.id]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.clients, c.id)
	close(c.send)
	total := len(m.clients)
	m.mu.Unlock()

	m.logger.Info("Teacher disconnected",
		zap.String("client_id", c.id),
		zap.Uint64("sent", c.Sent()),
		zap.Uint64("dropped", c.Dropped()),
		zap.Int("teachers", total),
	)
}

// Broadcast 向所有连接入队，返回成功入队的连接数
func (m *Manager) Broadcast(payload []byte) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.clients {
		if m.enqueue(c, payload) {
			n++
		}
	}
	return n
}

// Count 当前连接数
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// Close 移除所有连接
func (m *Manager) Close() {
	m.mu.RLock()
	clients := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.RUnlock()

	for _, c := range clients {
		m.Unregister(c)
	}
}

// enqueue 调用方持有 m.mu（读锁即可）
func (m *Manager) enqueue(c *Client, payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		if c.dropped.Add(1) == 1 {
			m.logger.Warn("Teacher queue full, dropping messages", zap.String("client_id", c.id))
		}
		return false
	}
}

func (m *Manager) writePump(c *Client) {
	defer close(c.done)
	for payload := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(m.writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			m.logger.Warn("Failed to write to teacher",
				zap.String("client_id", c.id),
				zap.Error(err),
			)
			m.Unregister(c)
			return
		}
		c.sent.Add(1)
	}
}
