package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/jpeg"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AniketZimane/EduVision-AI/internal/hub"
	"github.com/AniketZimane/EduVision-AI/internal/inference"
	"github.com/AniketZimane/EduVision-AI/internal/models"
	"github.com/AniketZimane/EduVision-AI/internal/store"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []models.AnalysisEvent
}

func (e *recordingEmitter) Emit(_ context.Context, event models.AnalysisEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func (e *recordingEmitter) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.events)
}

type gatewayFixture struct {
	srv     *httptest.Server
	gateway *Gateway
	events  *store.MemoryLog
	emitter *recordingEmitter
}

// sequenceAnalyzer 按调用次数生成事件，帧时间戳原样带回
func sequenceAnalyzer() inference.Analyzer {
	var mu sync.Mutex
	n := 0
	statuses := []models.Status{models.StatusFocused, models.StatusConfused, models.StatusAlert}
	return inference.AnalyzerFunc(func(_ context.Context, frame models.Frame) (models.AnalysisEvent, error) {
		mu.Lock()
		defer mu.Unlock()
		status := statuses[n%len(statuses)]
		n++
		event := models.AnalysisEvent{
			Status:        status,
			FaceCount:     1,
			GazeDirection: "center",
			Emotion:       "neutral",
			Timestamp:     float64(frame.Timestamp) / 1000,
		}
		if status == models.StatusAlert {
			event.AlertType = models.AlertOf(models.AlertGazeAway)
			event.GazeAwayDuration = 3
		}
		return event, nil
	})
}

func newGatewayFixture(t *testing.T, analyzer inference.Analyzer, origins []string) *gatewayFixture {
	t.Helper()
	if analyzer == nil {
		analyzer = sequenceAnalyzer()
	}
	f := &gatewayFixture{
		events:  store.NewMemoryLog(0),
		emitter: &recordingEmitter{},
	}
	cors := NewCORS(origins)
	f.gateway = NewGateway(GatewayOptions{
		Analyzer: analyzer,
		Events:   f.events,
		Hub:      hub.NewManager(16, time.Second, zap.NewNop()),
		Emitter:  f.emitter,
		CORS:     cors,
	}, zap.NewNop())

	router := NewRouter(cors, zap.NewNop())
	router.RegisterGatewayRoutes(f.gateway)
	f.srv = httptest.NewServer(router)
	t.Cleanup(func() {
		f.gateway.CloseAll()
		f.srv.Close()
	})
	return f
}

func (f *gatewayFixture) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func jpegFrame(t *testing.T, ts int64) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4)), nil))
	data, err := json.Marshal(models.NewFrame(buf.Bytes(), time.UnixMilli(ts)))
	require.NoError(t, err)
	return data
}

func readEnvelope(t *testing.T, conn *websocket.Conn) models.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := models.DecodeEnvelope(data)
	require.NoError(t, err)
	return env
}

func TestRoot(t *testing.T) {
	f := newGatewayFixture(t, nil, nil)

	resp, err := http.Get(f.srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Student Monitoring API is running", body["message"])

	notFound, err := http.Get(f.srv.URL + "/nope")
	require.NoError(t, err)
	notFound.Body.Close()
	assert.Equal(t, http.StatusNotFound, notFound.StatusCode)
}

func TestSessionData_LastFifty(t *testing.T) {
	f := newGatewayFixture(t, nil, nil)

	resp, err := http.Get(f.srv.URL + "/session-data")
	require.NoError(t, err)
	var empty struct {
		Data []models.AnalysisEvent `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&empty))
	resp.Body.Close()
	assert.NotNil(t, empty.Data)
	assert.Empty(t, empty.Data)

	for i := 1; i <= 60; i++ {
		require.NoError(t, f.events.Append(context.Background(), models.AnalysisEvent{Status: models.StatusFocused, Timestamp: float64(i)}))
	}

	resp, err = http.Get(f.srv.URL + "/session-data")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body struct {
		Data []models.AnalysisEvent `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Data, 50)
	assert.Equal(t, 11.0, body.Data[0].Timestamp)
	assert.Equal(t, 60.0, body.Data[49].Timestamp)
}

func TestStudentToTeacherFlow(t *testing.T) {
	f := newGatewayFixture(t, nil, nil)
	require.NoError(t, f.events.Append(context.Background(), models.AnalysisEvent{Status: models.StatusEngaged, Timestamp: 1}))

	teacher := f.dial(t, "/ws/teacher")
	backfill, ok := readEnvelope(t, teacher).(*models.SessionDataMessage)
	require.True(t, ok)
	require.Len(t, backfill.Events, 1)
	assert.Equal(t, models.StatusEngaged, backfill.Events[0].Status)

	student := f.dial(t, "/ws/student")
	for i, ts := range []int64{1700000000100, 1700000000300, 1700000000500} {
		require.NoError(t, student.WriteMessage(websocket.TextMessage, jpegFrame(t, ts)))

		analysis, ok := readEnvelope(t, student).(*models.AnalysisMessage)
		require.True(t, ok, "frame %d", i)
		assert.Equal(t, float64(ts)/1000, analysis.Event.Timestamp)

		update, ok := readEnvelope(t, teacher).(*models.StudentUpdateMessage)
		require.True(t, ok, "frame %d", i)
		assert.Equal(t, analysis.Event, update.Event)
	}

	n, err := f.events.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	require.Eventually(t, func() bool { return f.emitter.count() == 3 }, time.Second, time.Millisecond)

	stats := f.gateway.Stats()
	assert.Equal(t, uint64(3), stats.FramesReceived)
	assert.Equal(t, uint64(3), stats.EventsAnalyzed)
}

func TestStudentSocket_SkipsBadFrames(t *testing.T) {
	f := newGatewayFixture(t, nil, nil)
	student := f.dial(t, "/ws/student")

	bad := [][]byte{
		[]byte(`not json`),
		[]byte(`{"image":"no-comma","timestamp":1}`),
		[]byte(`{"image":"data:image/jpeg;base64,aGVsbG8=","timestamp":1}`),
	}
	for _, msg := range bad {
		require.NoError(t, student.WriteMessage(websocket.TextMessage, msg))
	}
	require.NoError(t, student.WriteMessage(websocket.TextMessage, jpegFrame(t, 42000)))

	analysis, ok := readEnvelope(t, student).(*models.AnalysisMessage)
	require.True(t, ok)
	assert.Equal(t, 42.0, analysis.Event.Timestamp)

	stats := f.gateway.Stats()
	assert.Equal(t, uint64(4), stats.FramesReceived)
	assert.Equal(t, uint64(3), stats.FramesSkipped)
}

func TestStudentSocket_AnalyzerFailureSkipsFrame(t *testing.T) {
	calls := 0
	analyzer := inference.AnalyzerFunc(func(_ context.Context, frame models.Frame) (models.AnalysisEvent, error) {
		calls++
		if calls == 1 {
			return models.AnalysisEvent{}, errors.New("model not loaded")
		}
		return models.AnalysisEvent{Status: models.StatusFocused, FaceCount: 1, Timestamp: float64(frame.Timestamp) / 1000}, nil
	})
	f := newGatewayFixture(t, analyzer, nil)
	student := f.dial(t, "/ws/student")

	require.NoError(t, student.WriteMessage(websocket.TextMessage, jpegFrame(t, 1000)))
	require.NoError(t, student.WriteMessage(websocket.TextMessage, jpegFrame(t, 2000)))

	analysis, ok := readEnvelope(t, student).(*models.AnalysisMessage)
	require.True(t, ok)
	assert.Equal(t, 2.0, analysis.Event.Timestamp)
}

func TestUpgrade_RejectsUnknownOrigin(t *testing.T) {
	f := newGatewayFixture(t, nil, []string{"http://localhost:3000"})
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws/student"

	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "http://localhost:3000")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	conn.Close()
}

func TestCORS_Preflight(t *testing.T) {
	f := newGatewayFixture(t, nil, []string{"http://localhost:3000"})

	req, err := http.NewRequest(http.MethodOptions, f.srv.URL+"/session-data", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "http://evil.example")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCloseAll_SendsGoingAway(t *testing.T) {
	f := newGatewayFixture(t, nil, nil)
	teacher := f.dial(t, "/ws/teacher")
	readEnvelope(t, teacher)
	require.Eventually(t, func() bool { return f.gateway.Stats().Connections == 1 }, time.Second, time.Millisecond)

	f.gateway.CloseAll()

	require.NoError(t, teacher.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := teacher.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	require.Eventually(t, func() bool { return f.gateway.Stats().Connections == 0 }, time.Second, time.Millisecond)
}

// hubConn 记录 hub 写出的消息
type hubConn struct {
	mu       sync.Mutex
	messages [][]byte
}

func (c *hubConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, append([]byte(nil), data...))
	return nil
}

func (c *hubConn) SetWriteDeadline(time.Time) error { return nil }

func (c *hubConn) written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.messages...)
}

func TestPublish_LogsUnencodableUpdate(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	logger := zap.New(core)

	events := store.NewMemoryLog(0)
	emit := &recordingEmitter{}
	h := hub.NewManager(4, time.Second, zap.NewNop())
	defer h.Close()
	teacher := &hubConn{}
	h.Register(teacher)

	g := NewGateway(GatewayOptions{
		Analyzer: sequenceAnalyzer(),
		Events:   events,
		Hub:      h,
		Emitter:  emit,
	}, logger)

	// NaN 无法编码为 JSON
	g.publish(context.Background(), logger, models.AnalysisEvent{Status: models.StatusFocused, Timestamp: math.NaN()})

	entries := logs.FilterMessage("Failed to encode student update").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zap.ErrorLevel, entries[0].Level)
	assert.Equal(t, 1, emit.count())

	g.publish(context.Background(), logger, models.AnalysisEvent{Status: models.StatusEngaged, Timestamp: 1700000000})

	require.Eventually(t, func() bool { return len(teacher.written()) == 1 }, time.Second, time.Millisecond)
	env, err := models.DecodeEnvelope(teacher.written()[0])
	require.NoError(t, err)
	update, ok := env.(*models.StudentUpdateMessage)
	require.True(t, ok)
	assert.Equal(t, models.StatusEngaged, update.Event.Status)
	assert.Equal(t, 2, emit.count())
}
