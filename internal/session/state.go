package session

import "errors"

var (
	// ErrNotReady 会话不在 ready 状态，帧被丢弃
	ErrNotReady = errors.New("session not ready")
	// ErrAlreadyStarted 会话实例只能启动一次（不自动重连）
	ErrAlreadyStarted = errors.New("session already started")
)

// State 连接状态
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateReady
	StateDisconnected
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateDisconnected:
		return "disconnected"
	case StateErrored:
		return "errored"
	default:
		return "invalid"
	}
}

// Terminal disconnected / errored 为终态，不会自动离开
func (s State) Terminal() bool {
	return s == StateDisconnected || s == StateErrored
}

// canTransition 合法迁移：
// idle → connecting
// connecting → ready | errored | disconnected（启动前被拆除）
// ready → disconnected | errored
func canTransition(from, to State) bool {
	switch from {
	case StateIdle:
		return to == StateConnecting || to == StateDisconnected
	case StateConnecting:
		return to == StateReady || to == StateErrored || to == StateDisconnected
	case StateReady:
		return to == StateDisconnected || to == StateErrored
	default:
		return false
	}
}

// Channel 通道类型
type Channel string

const (
	ChannelStudent Channel = "student"
	ChannelTeacher Channel = "teacher"
)
