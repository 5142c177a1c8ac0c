package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AniketZimane/EduVision-AI/internal/models"
)

// Publisher MQTT 发布接口（common/mqtt.Client 实现）
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// AlertEmitter 只转发带 alert_type 的事件，topic 为 <prefix>/alerts/<alert_type>
type AlertEmitter struct {
	publisher Publisher
	prefix    string
	qos       byte
}

func NewAlertEmitter(publisher Publisher, prefix string, qos byte) *AlertEmitter {
	return &AlertEmitter{
		publisher: publisher,
		prefix:    strings.TrimSuffix(prefix, "/"),
		qos:       qos,
	}
}

// Topic 告警类型对应的 topic
func (a *AlertEmitter) Topic(alertType models.AlertType) string {
	return fmt.Sprintf("%s/alerts/%s", a.prefix, alertType)
}

func (a *AlertEmitter) Emit(_ context.Context, event models.AnalysisEvent) error {
	if !event.HasAlert() {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	return a.publisher.Publish(a.Topic(*event.AlertType), a.qos, false, payload)
}
