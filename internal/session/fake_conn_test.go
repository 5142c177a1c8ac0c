package session

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AniketZimane/EduVision-AI/internal/capture"

	"github.com/gorilla/websocket"
)

// fakeConn 内存连接：inbound 模拟服务端下行，readErr 模拟断开
type fakeConn struct {
	inbound chan []byte
	readErr chan error

	closeOnce sync.Once
	closed    chan struct{}

	mu       sync.Mutex
	writes   [][]byte
	attempts int
	controls []int
	writeErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		readErr: make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.inbound:
		return websocket.TextMessage, data, nil
	case err := <-c.readErr:
		return 0, nil, err
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}
	if c.writeErr != nil {
		return c.writeErr
	}
	c.writes = append(c.writes, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) WriteControl(messageType int, _ []byte, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controls = append(c.controls, messageType)
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) setWriteErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

func (c *fakeConn) written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.writes...)
}

func (c *fakeConn) writeAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func (c *fakeConn) controlFrames() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.controls...)
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// lateCloseConn 读端在连接关闭后等到 release 关闭才返回错误，
// 用来拉开 Stop 关闭连接与读 goroutine 退出之间的窗口
type lateCloseConn struct {
	*fakeConn
	release chan struct{}
}

func (c *lateCloseConn) ReadMessage() (int, []byte, error) {
	typ, data, err := c.fakeConn.ReadMessage()
	if err != nil {
		<-c.release
	}
	return typ, data, err
}

// gatedSource Open 阻塞到 gate 关闭
type gatedSource struct {
	*capture.PatternSource
	opening chan struct{}
	gate    chan struct{}
}

func newGatedSource() *gatedSource {
	return &gatedSource{
		PatternSource: capture.NewPatternSource(8, 8),
		opening:       make(chan struct{}),
		gate:          make(chan struct{}),
	}
}

func (s *gatedSource) Open() error {
	close(s.opening)
	<-s.gate
	return s.PatternSource.Open()
}

// fakeDialer gate 非 nil 时拨号阻塞到 gate 关闭
type fakeDialer struct {
	conn  Conn
	err   error
	gate  chan struct{}
	dials atomic.Int32
}

func (d *fakeDialer) Dial(ctx context.Context, _ string) (Conn, error) {
	d.dials.Add(1)
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

// stateRecorder 记录 OnStateChange 回调
type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) all() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}
