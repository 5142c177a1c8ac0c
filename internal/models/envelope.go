package models

import (
	"encoding/json"
	"fmt"
)

// MessageType 服务端下行信封类型
type MessageType string

const (
	TypeAnalysis      MessageType = "analysis"
	TypeStudentUpdate MessageType = "student_update"
	TypeSessionData   MessageType = "session_data"
)

// Envelope 下行消息（tagged union）
// 具体类型：*AnalysisMessage、*StudentUpdateMessage、*SessionDataMessage、*UnknownMessage
type Envelope interface {
	MessageType() MessageType
}

// AnalysisMessage 学生通道：本帧分析结果
type AnalysisMessage struct {
	Event AnalysisEvent
}

// StudentUpdateMessage 教师通道：增量事件
type StudentUpdateMessage struct {
	Event AnalysisEvent
}

// SessionDataMessage 教师通道：连接后的批量回填
type SessionDataMessage struct {
	Events []AnalysisEvent
}

// UnknownMessage 未识别的 type，接收方直接忽略
type UnknownMessage struct {
	Type MessageType
}

func (*AnalysisMessage) MessageType() MessageType      { return TypeAnalysis }
func (*StudentUpdateMessage) MessageType() MessageType { return TypeStudentUpdate }
func (*SessionDataMessage) MessageType() MessageType   { return TypeSessionData }
func (m *UnknownMessage) MessageType() MessageType     { return m.Type }

type rawEnvelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// DecodeEnvelope 在边界处解析并校验信封
// JSON 非法或 data 不合法时返回 ErrMalformed；未知 type 返回 *UnknownMessage
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env rawEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case TypeAnalysis, TypeStudentUpdate:
		event, err := decodeEvent(env.Data)
		if err != nil {
			return nil, err
		}
		if env.Type == TypeAnalysis {
			return &AnalysisMessage{Event: event}, nil
		}
		return &StudentUpdateMessage{Event: event}, nil

	case TypeSessionData:
		var events []AnalysisEvent
		if err := json.Unmarshal(env.Data, &events); err != nil {
			return nil, fmt.Errorf("%w: session_data: %v", ErrMalformed, err)
		}
		for i := range events {
			if err := events[i].Validate(); err != nil {
				return nil, fmt.Errorf("session_data[%d]: %w", i, err)
			}
		}
		if events == nil {
			events = []AnalysisEvent{}
		}
		return &SessionDataMessage{Events: events}, nil

	default:
		return &UnknownMessage{Type: env.Type}, nil
	}
}

func decodeEvent(data json.RawMessage) (AnalysisEvent, error) {
	var event AnalysisEvent
	if len(data) == 0 || string(data) == "null" {
		return event, fmt.Errorf("%w: missing data", ErrMalformed)
	}
	if err := json.Unmarshal(data, &event); err != nil {
		return event, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := event.Validate(); err != nil {
		return event, err
	}
	return event, nil
}

// EncodeEnvelope 序列化下行信封（服务端使用）
func EncodeEnvelope(env Envelope) ([]byte, error) {
	var data interface{}
	switch m := env.(type) {
	case *AnalysisMessage:
		data = m.Event
	case *StudentUpdateMessage:
		data = m.Event
	case *SessionDataMessage:
		events := m.Events
		if events == nil {
			events = []AnalysisEvent{}
		}
		data = events
	default:
		return nil, fmt.Errorf("cannot encode envelope of type %q", env.MessageType())
	}
	return json.Marshal(struct {
		Type MessageType `json:"type"`
		Data interface{} `json:"data"`
	}{Type: env.MessageType(), Data: data})
}
