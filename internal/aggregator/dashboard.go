package aggregator

import (
	"time"

	"github.com/AniketZimane/EduVision-AI/internal/models"
)

// Dashboard 教师端渲染所需的只读快照
type Dashboard struct {
	Current      *models.AnalysisEvent
	Headline     string
	AlertMessage string
	LastUpdate   time.Time
	DataPoints   int
	// Received 累计收到的增量事件数（不受窗口淘汰影响）
	Received       uint64
	Points         []models.ChartPoint
	RecentAlerts   []models.ChartPoint
	RecentConfused []models.ChartPoint
}

// Waiting 是否还没有收到学生的增量事件
func (d Dashboard) Waiting() bool { return d.Current == nil }

// Snapshot 计算当前快照（每次按需重新计算，不单独存储）
func (a *Aggregator) Snapshot() Dashboard {
	d := Dashboard{
		Current:        a.Current(),
		DataPoints:     a.buffer.Len(),
		Received:       a.Received(),
		Points:         a.buffer.Points(),
		RecentAlerts:   a.RecentAlerts(),
		RecentConfused: a.RecentConfused(),
	}
	if d.Current != nil {
		d.Headline = Headline(d.Current.Status)
		d.AlertMessage = AlertMessage(d.Current)
		d.LastUpdate = d.Current.Time().In(a.location)
	}
	return d
}
