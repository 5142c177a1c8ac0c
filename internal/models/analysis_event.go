package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrMalformed 消息结构或字段取值不合法
var ErrMalformed = errors.New("malformed message")

// Status 学生状态分类
type Status string

const (
	StatusFocused  Status = "focused"
	StatusEngaged  Status = "engaged"
	StatusConfused Status = "confused"
	StatusAlert    Status = "alert"
	StatusUnknown  Status = "unknown"
)

// Valid 是否为已知状态
func (s Status) Valid() bool {
	switch s {
	case StatusFocused, StatusEngaged, StatusConfused, StatusAlert, StatusUnknown:
		return true
	}
	return false
}

// AlertType 监考告警类型
type AlertType string

const (
	AlertNoFace        AlertType = "no_face"
	AlertMultipleFaces AlertType = "multiple_faces"
	AlertGazeAway      AlertType = "gaze_away"
)

// AnalysisEvent 推理服务针对单帧输出的分析结果（收到后不可变）
type AnalysisEvent struct {
	Status           Status     `json:"status"`
	FaceCount        int        `json:"face_count"`
	GazeDirection    string     `json:"gaze_direction"`
	Emotion          string     `json:"emotion"`
	GazeAwayDuration float64    `json:"gaze_away_duration"`
	AlertType        *AlertType `json:"alert_type,omitempty"`
	Timestamp        float64    `json:"timestamp"` // epoch seconds
}

// Validate 边界校验：计数与时长不能为负
func (e *AnalysisEvent) Validate() error {
	if e.FaceCount < 0 {
		return fmt.Errorf("%w: face_count %d < 0", ErrMalformed, e.FaceCount)
	}
	if e.GazeAwayDuration < 0 || math.IsNaN(e.GazeAwayDuration) {
		return fmt.Errorf("%w: gaze_away_duration %v", ErrMalformed, e.GazeAwayDuration)
	}
	return nil
}

// HasAlert 是否携带告警类型
func (e *AnalysisEvent) HasAlert() bool {
	return e.AlertType != nil && *e.AlertType != ""
}

// Time 将 epoch 秒转换为 time.Time
func (e *AnalysisEvent) Time() time.Time {
	sec, frac := math.Modf(e.Timestamp)
	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}

// GazeAwaySeconds 离开视线时长，四舍五入到整秒
func (e *AnalysisEvent) GazeAwaySeconds() int {
	return int(math.Round(e.GazeAwayDuration))
}

// AlertOf 返回 AlertType 指针，便于构造事件
func AlertOf(a AlertType) *AlertType {
	return &a
}
