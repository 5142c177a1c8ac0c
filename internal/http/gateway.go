package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AniketZimane/EduVision-AI/internal/emitter"
	"github.com/AniketZimane/EduVision-AI/internal/hub"
	"github.com/AniketZimane/EduVision-AI/internal/inference"
	"github.com/AniketZimane/EduVision-AI/internal/models"
	"github.com/AniketZimane/EduVision-AI/internal/store"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	rootMessage = "Student Monitoring API is running"

	DefaultMaxFrameBytes = 4 << 20
	DefaultEmitTimeout   = 500 * time.Millisecond
	writeTimeout         = 5 * time.Second
)

// GatewayOptions 网关依赖
type GatewayOptions struct {
	Analyzer inference.Analyzer
	Events   store.EventLog
	Hub      *hub.Manager
	// Emitter 可为 nil
	Emitter emitter.Emitter
	CORS    *CORS

	BackfillSize  int
	MaxFrameBytes int64
	EmitTimeout   time.Duration
}

// GatewayStats 网关计数
type GatewayStats struct {
	FramesReceived uint64
	FramesSkipped  uint64
	EventsAnalyzed uint64
	Connections    int
}

// Gateway 承载 /ws/student、/ws/teacher 以及 REST 端点
type Gateway struct {
	analyzer inference.Analyzer
	events   store.EventLog
	hub      *hub.Manager
	emitter  emitter.Emitter
	upgrader websocket.Upgrader
	logger   *zap.Logger

	backfillSize  int
	maxFrameBytes int64
	emitTimeout   time.Duration

	framesReceived atomic.Uint64
	framesSkipped  atomic.Uint64
	eventsAnalyzed atomic.Uint64

	connMu sync.Mutex
	conns  map[*websocket.Conn]struct{}
}

func NewGateway(opts GatewayOptions, logger *zap.Logger) *Gateway {
	if opts.BackfillSize <= 0 {
		opts.BackfillSize = store.BackfillSize
	}
	if opts.MaxFrameBytes <= 0 {
		opts.MaxFrameBytes = DefaultMaxFrameBytes
	}
	if opts.EmitTimeout <= 0 {
		opts.EmitTimeout = DefaultEmitTimeout
	}
	if opts.CORS == nil {
		opts.CORS = NewCORS(nil)
	}
	return &Gateway{
		analyzer: opts.Analyzer,
		events:   opts.Events,
		hub:      opts.Hub,
		emitter:  opts.Emitter,
		upgrader: websocket.Upgrader{
			CheckOrigin: opts.CORS.CheckOrigin,
		},
		logger:        logger,
		backfillSize:  opts.BackfillSize,
		maxFrameBytes: opts.MaxFrameBytes,
		emitTimeout:   opts.EmitTimeout,
		conns:         make(map[*websocket.Conn]struct{}),
	}
}

// Root GET /
func (g *Gateway) Root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": rootMessage})
}

// SessionData GET /session-data：最近最多 50 个事件
func (g *Gateway) SessionData(w http.ResponseWriter, r *http.Request) {
	events, err := g.events.Recent(r.Context(), g.backfillSize)
	if err != nil {
		g.logger.Error("Failed to read session data", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "session data unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": events})
}

// StudentSocket /ws/student：逐帧分析，回复 analysis，并广播给教师
func (g *Gateway) StudentSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("Failed to upgrade student connection", zap.Error(err))
		return
	}
	untrack := g.track(conn)
	defer untrack()

	conn.SetReadLimit(g.maxFrameBytes)
	logger := g.logger.With(zap.String("student_id", uuid.NewString()))
	logger.Info("Student connected", zap.String("remote_addr", r.RemoteAddr))

	ctx := r.Context()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			logClose(logger, "Student disconnected", err)
			return
		}

		event, ok := g.analyzeFrame(ctx, logger, data)
		if !ok {
			continue
		}

		reply, err := models.EncodeEnvelope(&models.AnalysisMessage{Event: event})
		if err != nil {
			logger.Error("Failed to encode analysis", zap.Error(err))
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
			logger.Warn("Failed to reply to student", zap.Error(err))
			return
		}

		g.publish(ctx, logger, event)
	}
}

// TeacherSocket /ws/teacher：先回填最近事件，之后只接收广播
func (g *Gateway) TeacherSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("Failed to upgrade teacher connection", zap.Error(err))
		return
	}
	untrack := g.track(conn)
	defer untrack()

	events, err := g.events.Recent(r.Context(), g.backfillSize)
	if err != nil {
		g.logger.Warn("Backfill unavailable, sending empty session data", zap.Error(err))
		events = []models.AnalysisEvent{}
	}
	backfill, err := models.EncodeEnvelope(&models.SessionDataMessage{Events: events})
	if err != nil {
		g.logger.Error("Failed to encode backfill", zap.Error(err))
		return
	}

	client := g.hub.Register(conn, backfill)
	defer func() {
		g.hub.Unregister(client)
		<-client.Done()
	}()

	// 教师端不发送数据，读循环只用于发现断开
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			logClose(g.logger.With(zap.String("client_id", client.ID())), "Teacher socket closed", err)
			return
		}
	}
}

// Stats 返回计数快照
func (g *Gateway) Stats() GatewayStats {
	g.connMu.Lock()
	n := len(g.conns)
	g.connMu.Unlock()
	return GatewayStats{
		FramesReceived: g.framesReceived.Load(),
		FramesSkipped:  g.framesSkipped.Load(),
		EventsAnalyzed: g.eventsAnalyzed.Load(),
		Connections:    n,
	}
}

// CloseAll 向所有 websocket 连接发送关闭帧并关闭（http.Server.Shutdown 不处理被劫持的连接）
func (g *Gateway) CloseAll() {
	g.connMu.Lock()
	conns := make([]*websocket.Conn, 0, len(g.conns))
	for c := range g.conns {
		conns = append(conns, c)
	}
	g.connMu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, c := range conns {
		_ = c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = c.Close()
	}
}

func (g *Gateway) track(conn *websocket.Conn) func() {
	g.connMu.Lock()
	g.conns[conn] = struct{}{}
	g.connMu.Unlock()
	return func() {
		g.connMu.Lock()
		delete(g.conns, conn)
		g.connMu.Unlock()
		_ = conn.Close()
	}
}

// analyzeFrame 解析并分析一帧；无法解码的帧被跳过
func (g *Gateway) analyzeFrame(ctx context.Context, logger *zap.Logger, data []byte) (models.AnalysisEvent, bool) {
	g.framesReceived.Add(1)

	var frame models.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		g.skip(logger, "Skipping malformed frame", err)
		return models.AnalysisEvent{}, false
	}
	img, err := frame.Decode()
	if err != nil {
		g.skip(logger, "Skipping undecodable frame", err)
		return models.AnalysisEvent{}, false
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(img)); err != nil {
		g.skip(logger, "Skipping frame with invalid image", err)
		return models.AnalysisEvent{}, false
	}

	event, err := g.analyzer.Analyze(ctx, frame)
	if err != nil {
		g.framesSkipped.Add(1)
		logger.Warn("Frame analysis failed", zap.Error(err))
		return models.AnalysisEvent{}, false
	}
	g.eventsAnalyzed.Add(1)
	logger.Debug("Analysis sent",
		zap.String("status", string(event.Status)),
		zap.Int("faces", event.FaceCount),
	)
	return event, true
}

// publish 写入历史、广播给教师并转发下游；均为尽力而为
func (g *Gateway) publish(ctx context.Context, logger *zap.Logger, event models.AnalysisEvent) {
	if err := g.events.Append(ctx, event); err != nil {
		logger.Warn("Failed to append event", zap.Error(err))
	}

	update, err := models.EncodeEnvelope(&models.StudentUpdateMessage{Event: event})
	if err != nil {
		logger.Error("Failed to encode student update", zap.Error(err))
	} else {
		g.hub.Broadcast(update)
	}

	if g.emitter != nil {
		emitCtx, cancel := context.WithTimeout(ctx, g.emitTimeout)
		_ = g.emitter.Emit(emitCtx, event)
		cancel()
	}
}

func (g *Gateway) skip(logger *zap.Logger, msg string, err error) {
	g.framesSkipped.Add(1)
	logger.Debug(msg, zap.Error(err))
}

func logClose(logger *zap.Logger, msg string, err error) {
	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		logger.Warn(msg, zap.Error(err))
		return
	}
	logger.Info(msg)
}
