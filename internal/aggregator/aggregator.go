package aggregator

import (
	"fmt"
	"time"

	"github.com/AniketZimane/EduVision-AI/internal/models"
)

// RecentLimit recent_alerts / recent_confused 返回的最大条数
const RecentLimit = 5

// TimeLabelLayout 图表横轴时间格式
const TimeLabelLayout = "15:04:05"

// EngagementScore 状态到参与度分数的固定映射（全函数，未知状态为 50）
func EngagementScore(status models.Status) int {
	switch status {
	case models.StatusAlert:
		return 0
	case models.StatusConfused:
		return 25
	case models.StatusFocused:
		return 75
	case models.StatusEngaged:
		return 100
	default:
		return 50
	}
}

// AlertMessage 教师端告警文案；事件没有 alert_type 时返回空串
func AlertMessage(event *models.AnalysisEvent) string {
	if event == nil || !event.HasAlert() {
		return ""
	}
	switch *event.AlertType {
	case models.AlertNoFace:
		return "Student not visible in camera"
	case models.AlertMultipleFaces:
		return "Multiple people detected"
	case models.AlertGazeAway:
		return fmt.Sprintf("Student looking away for %ds", event.GazeAwaySeconds())
	default:
		return "Alert detected"
	}
}

// Headline 教师端当前状态标题
func Headline(status models.Status) string {
	switch status {
	case models.StatusAlert:
		return "PROCTOR ALERT"
	case models.StatusConfused:
		return "STUDENT CONFUSED"
	case models.StatusEngaged:
		return "STUDENT ENGAGED"
	default:
		return "STUDENT FOCUSED"
	}
}

// Aggregator 教师端聚合器：把广播事件写入有界滚动窗口，并计算派生视图。
// 不是并发安全的，由唯一的 TeacherSession 持有并串行调用。
type Aggregator struct {
	buffer   *RollingBuffer
	location *time.Location
	current  *models.AnalysisEvent
	received uint64
}

// New 创建聚合器；location 为 nil 时使用本地时区
func New(capacity int, location *time.Location) *Aggregator {
	if location == nil {
		location = time.Local
	}
	return &Aggregator{
		buffer:   NewRollingBuffer(capacity),
		location: location,
	}
}

// IngestIncremental 追加一个增量事件，并把它设为当前状态
func (a *Aggregator) IngestIncremental(event models.AnalysisEvent) {
	a.buffer.Push(a.toPoint(event))
	current := event
	a.current = &current
	a.received++
}

// IngestBackfill 用批量事件整体替换滚动窗口（不是追加），超过容量时只保留最后的部分
func (a *Aggregator) IngestBackfill(events []models.AnalysisEvent) {
	if over := len(events) - a.buffer.Cap(); over > 0 {
		events = events[over:]
	}
	points := make([]models.ChartPoint, len(events))
	for i, event := range events {
		points[i] = a.toPoint(event)
	}
	a.buffer.Replace(points)
}

// Points 滚动窗口内容（到达顺序）
func (a *Aggregator) Points() []models.ChartPoint {
	return a.buffer.Points()
}

// Len 滚动窗口当前点数
func (a *Aggregator) Len() int { return a.buffer.Len() }

// Current 最近一次增量事件；尚未收到时返回 nil
func (a *Aggregator) Current() *models.AnalysisEvent {
	if a.current == nil {
		return nil
	}
	current := *a.current
	return &current
}

// Received 累计收到的增量事件数
func (a *Aggregator) Received() uint64 { return a.received }

// RecentAlerts 最近最多 5 个 alert 点，最新在前
func (a *Aggregator) RecentAlerts() []models.ChartPoint {
	return a.recentWithStatus(models.StatusAlert)
}

// RecentConfused 最近最多 5 个 confused 点，最新在前
func (a *Aggregator) RecentConfused() []models.ChartPoint {
	return a.recentWithStatus(models.StatusConfused)
}

func (a *Aggregator) recentWithStatus(status models.Status) []models.ChartPoint {
	return a.buffer.lastMatching(RecentLimit, func(p models.ChartPoint) bool {
		return p.Status == status
	})
}

func (a *Aggregator) toPoint(event models.AnalysisEvent) models.ChartPoint {
	return models.ChartPoint{
		TimeLabel:       event.Time().In(a.location).Format(TimeLabelLayout),
		Timestamp:       event.Timestamp,
		EngagementScore: EngagementScore(event.Status),
		Status:          event.Status,
	}
}
