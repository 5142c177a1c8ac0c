package models

// ChartPoint 教师端图表点（仅由 Teacher Aggregator 生成）
type ChartPoint struct {
	TimeLabel       string  `json:"time"`
	Timestamp       float64 `json:"timestamp"`
	EngagementScore int     `json:"engagement"`
	Status          Status  `json:"status"`
}
