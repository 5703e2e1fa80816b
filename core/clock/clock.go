// Package clock 提供可注入的时间与调度源。
//
// 核心组件不直接调用 time.Now / time.AfterFunc，而是依赖 Clock，
// 这样测试可以用 Fake 推进时间，会话可以把定时回调串行化到自己的事件循环中。
package clock

import "time"

// Timer 可取消的定时器
type Timer interface {
	// Stop 取消定时器，返回定时器是否在触发前被取消
	Stop() bool
}

// Clock 单调时间源 + 定时调度
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

// New 返回基于宿主环境时间的 Clock
func New() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Seconds 返回两个时间点之间的秒数
func Seconds(from, to time.Time) float64 {
	return to.Sub(from).Seconds()
}
