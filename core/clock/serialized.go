package clock

import (
	"sync"
	"time"
)

// Poster 把回调投递到某个串行执行的事件循环
type Poster func(fn func())

// serialized 包装一个 Clock，定时回调不直接执行，而是投递到事件循环
type serialized struct {
	base Clock
	post Poster
}

// Serialized 返回一个回调经 post 串行执行的 Clock
func Serialized(base Clock, post Poster) Clock {
	return &serialized{base: base, post: post}
}

func (s *serialized) Now() time.Time {
	return s.base.Now()
}

func (s *serialized) AfterFunc(d time.Duration, f func()) Timer {
	st := &serializedTimer{}
	st.bind(s.base.AfterFunc(d, func() {
		s.post(func() {
			// 投递期间被取消的回调不再执行
			if st.markFired() {
				f()
			}
		})
	}))
	return st
}

type serializedTimer struct {
	mu      sync.Mutex
	inner   Timer
	stopped bool
	fired   bool
}

// bind 关联底层定时器；在此之前已被取消的直接停止底层定时器
func (t *serializedTimer) bind(inner Timer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inner = inner
	if t.stopped {
		inner.Stop()
	}
}

func (t *serializedTimer) markFired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false
	}
	t.fired = true
	return true
}

func (t *serializedTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	if t.inner != nil {
		t.inner.Stop()
	}
	return true
}
