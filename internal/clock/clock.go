// Package clock 抽象时间操作，生产代码使用 Real()，测试使用 Fake() 精确控制时间。
package clock

import "time"

// Clock 计时器与当前时间的最小抽象
type Clock interface {
	Now() time.Time
	// AfterFunc 在 d 之后调用 f，返回可取消的 Timer
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer 一次性定时器
type Timer interface {
	// Stop 阻止定时器触发；已触发或已停止时返回 false
	Stop() bool
}

// Real 返回基于 time 包的 Clock
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
