// Package inference 调用外部视觉分析服务，把一帧图像变成 AnalysisEvent。
package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AniketZimane/EduVision-AI/internal/clock"
	"github.com/AniketZimane/EduVision-AI/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// DefaultTimeout 单帧分析的超时
const DefaultTimeout = 2 * time.Second

// Analyzer 帧分析接口
type Analyzer interface {
	Analyze(ctx context.Context, frame models.Frame) (models.AnalysisEvent, error)
}

// AnalyzerFunc 函数适配器
type AnalyzerFunc func(ctx context.Context, frame models.Frame) (models.AnalysisEvent, error)

func (f AnalyzerFunc) Analyze(ctx context.Context, frame models.Frame) (models.AnalysisEvent, error) {
	return f(ctx, frame)
}

// HTTPAnalyzer 通过 POST <base>/analyze 调用分析服务
type HTTPAnalyzer struct {
	httpClient *resty.Client
	clock      clock.Clock
	logger     *zap.Logger
}

// NewHTTPAnalyzer 创建分析服务客户端；逐帧请求不重试
func NewHTTPAnalyzer(baseURL string, timeout time.Duration, clk clock.Clock, logger *zap.Logger) *HTTPAnalyzer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if clk == nil {
		clk = clock.Real()
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &HTTPAnalyzer{
		httpClient: client,
		clock:      clk,
		logger:     logger,
	}
}

// Analyze 返回经过校验的事件；服务端未给出 timestamp 时使用本地接收时间
func (a *HTTPAnalyzer) Analyze(ctx context.Context, frame models.Frame) (models.AnalysisEvent, error) {
	var event models.AnalysisEvent

	resp, err := a.httpClient.R().
		SetContext(ctx).
		SetBody(frame).
		Post("/analyze")
	if err != nil {
		return event, fmt.Errorf("failed to call analyzer: %w", err)
	}
	if resp.IsError() {
		a.logger.Warn("Analyzer returned error",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("body", truncate(resp.String(), 200)),
		)
		return event, fmt.Errorf("analyzer error: status %d", resp.StatusCode())
	}

	if err := json.Unmarshal(resp.Body(), &event); err != nil {
		return event, fmt.Errorf("%w: analyzer response: %v", models.ErrMalformed, err)
	}
	if event.Timestamp == 0 {
		event.Timestamp = float64(a.clock.Now().UnixMilli()) / 1000
	}
	if err := event.Validate(); err != nil {
		return event, fmt.Errorf("analyzer response: %w", err)
	}
	return event, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
