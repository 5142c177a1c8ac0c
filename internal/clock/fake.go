package clock

import (
	"sync"
	"time"
)

// FakeClock 确定性时钟：只有调用 Advance 时间才前进。
// AfterFunc 回调在 Advance 的调用方 goroutine 中按截止时间顺序同步执行，
// 回调期间 Now() 返回该回调的截止时间。回调内部不要调用 Advance。
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	seq     uint64
	waiters []*fakeWaiter
}

type fakeWaiter struct {
	deadline time.Time
	seq      uint64 // 同一截止时间按注册顺序触发
	callback func()
	stopped  bool
	fired    bool
}

// Fake 创建初始时间为 initial 的 FakeClock
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

// Now 返回当前模拟时间
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// AfterFunc 注册回调；d <= 0 时在下一次 Advance（包括 Advance(0)）触发
func (c *FakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	w := &fakeWaiter{
		deadline: c.current.Add(d),
		seq:      c.seq,
		callback: f,
	}
	c.waiters = append(c.waiters, w)
	return &fakeTimer{clock: c, waiter: w}
}

// Pending 返回尚未触发且未取消的定时器数量
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, w := range c.waiters {
		if !w.stopped && !w.fired {
			n++
		}
	}
	return n
}

// Advance 前进 d，并依次触发截止时间落在区间内的回调（含回调中新注册的定时器）
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.current.Add(d)
	c.mu.Unlock()

	for {
		w := c.popNext(target)
		if w == nil {
			break
		}
		w.callback()
	}

	c.mu.Lock()
	if c.current.Before(target) {
		c.current = target
	}
	c.mu.Unlock()
}

// popNext 取出最早到期的定时器并把当前时间移动到它的截止时间
func (c *FakeClock) popNext(target time.Time) *fakeWaiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := -1
	live := c.waiters[:0]
	for _, w := range c.waiters {
		if w.stopped || w.fired {
			continue
		}
		live = append(live, w)
	}
	c.waiters = live

	for i, w := range c.waiters {
		if w.deadline.After(target) {
			continue
		}
		if idx < 0 || w.deadline.Before(c.waiters[idx].deadline) ||
			(w.deadline.Equal(c.waiters[idx].deadline) && w.seq < c.waiters[idx].seq) {
			idx = i
		}
	}
	if idx < 0 {
		return nil
	}

	w := c.waiters[idx]
	w.fired = true
	if w.deadline.After(c.current) {
		c.current = w.deadline
	}
	return w
}

type fakeTimer struct {
	clock  *FakeClock
	waiter *fakeWaiter
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.waiter.stopped || t.waiter.fired {
		return false
	}
	t.waiter.stopped = true
	return true
}
