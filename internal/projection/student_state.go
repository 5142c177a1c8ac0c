// Package projection 由最近一次分析事件推导学生端显示状态（纯函数，无自身状态）。
package projection

import (
	"fmt"

	"github.com/AniketZimane/EduVision-AI/internal/models"
)

// Color 状态颜色
type Color string

const (
	ColorGreen  Color = "green"
	ColorBlue   Color = "blue"
	ColorYellow Color = "yellow"
	ColorRed    Color = "red"
	ColorGray   Color = "gray"
)

const (
	labelConnecting     = "connecting"
	messageInitializing = "Initializing..."
)

// StudentView 学生端显示状态
type StudentView struct {
	StatusLabel string
	StatusColor Color
	Message     string
	// AlertMessage 仅在事件带 alert_type 时非空
	AlertMessage string

	FaceCount       int
	GazeDirection   string
	Emotion         string
	GazeAwaySeconds int
	HasEvent        bool
}

// Project 根据最近事件计算显示状态；event 为 nil 表示尚未收到任何事件
func Project(event *models.AnalysisEvent) StudentView {
	if event == nil {
		return StudentView{
			StatusLabel: labelConnecting,
			StatusColor: ColorGray,
			Message:     messageInitializing,
		}
	}

	view := StudentView{
		StatusLabel:     string(event.Status),
		StatusColor:     ColorFor(event.Status),
		FaceCount:       event.FaceCount,
		GazeDirection:   event.GazeDirection,
		Emotion:         event.Emotion,
		GazeAwaySeconds: event.GazeAwaySeconds(),
		HasEvent:        true,
	}
	if view.StatusLabel == "" {
		view.StatusLabel = string(models.StatusUnknown)
	}

	// 告警消息优先于状态消息
	if event.HasAlert() {
		view.AlertMessage = alertMessage(event)
		view.Message = view.AlertMessage
		return view
	}
	view.Message = statusMessage(event.Status)
	return view
}

// ColorFor 状态到颜色的映射，未知状态为灰色
func ColorFor(status models.Status) Color {
	switch status {
	case models.StatusFocused:
		return ColorGreen
	case models.StatusEngaged:
		return ColorBlue
	case models.StatusConfused:
		return ColorYellow
	case models.StatusAlert:
		return ColorRed
	default:
		return ColorGray
	}
}

func alertMessage(event *models.AnalysisEvent) string {
	switch *event.AlertType {
	case models.AlertNoFace:
		return "Please position yourself in front of the camera"
	case models.AlertMultipleFaces:
		return "Multiple people detected - please ensure you are alone"
	case models.AlertGazeAway:
		return fmt.Sprintf("Looking away for %ds", event.GazeAwaySeconds())
	default:
		return "Alert detected"
	}
}

func statusMessage(status models.Status) string {
	switch status {
	case models.StatusFocused:
		return "You are focused - great job!"
	case models.StatusEngaged:
		return "You seem engaged and happy!"
	case models.StatusConfused:
		return "You might be confused - consider asking for help"
	default:
		return "Monitoring your session..."
	}
}
