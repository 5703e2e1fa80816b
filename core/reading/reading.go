// Package reading 定义带时间戳的不可变采样值以及按音轨保留的滚动窗口
package reading

import (
	"sync"
	"time"
)

// DefaultWindowSize 每个音轨保留的采样数
const DefaultWindowSize = 8

// Reading 某一时刻观测到的值，构造后不可修改
type Reading[T any] struct {
	timestamp time.Time
	value     T
}

// New 创建一个采样
func New[T any](timestamp time.Time, value T) Reading[T] {
	return Reading[T]{timestamp: timestamp, value: value}
}

// Timestamp 采样时间
func (r Reading[T]) Timestamp() time.Time {
	return r.timestamp
}

// Value 采样值
func (r Reading[T]) Value() T {
	return r.value
}

// IsZero 判断是否为零值采样
func (r Reading[T]) IsZero() bool {
	return r.timestamp.IsZero()
}

// Window 固定容量的滚动采样窗口，旧样本被丢弃
type Window[T any] struct {
	mu      sync.RWMutex
	size    int
	samples []Reading[T]
}

// NewWindow 创建容量为 size 的窗口，size <= 0 时使用默认值
func NewWindow[T any](size int) *Window[T] {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &Window[T]{size: size, samples: make([]Reading[T], 0, size)}
}

// Add 追加一个采样
func (w *Window[T]) Add(r Reading[T]) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.samples) == w.size {
		copy(w.samples, w.samples[1:])
		w.samples = w.samples[:w.size-1]
	}
	w.samples = append(w.samples, r)
}

// Latest 返回最新的采样
func (w *Window[T]) Latest() (Reading[T], bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if len(w.samples) == 0 {
		return Reading[T]{}, false
	}
	return w.samples[len(w.samples)-1], true
}

// Oldest 返回窗口内最早的采样
func (w *Window[T]) Oldest() (Reading[T], bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if len(w.samples) == 0 {
		return Reading[T]{}, false
	}
	return w.samples[0], true
}

// Samples 按时间顺序返回窗口副本
func (w *Window[T]) Samples() []Reading[T] {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Reading[T], len(w.samples))
	copy(out, w.samples)
	return out
}

// Len 当前样本数
func (w *Window[T]) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.samples)
}

// Reset 清空窗口
func (w *Window[T]) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples = w.samples[:0]
}

// Slope 返回窗口首尾之间每秒的变化量，用于估计实际播放速率
func Slope(w *Window[float64]) (float64, bool) {
	first, ok := w.Oldest()
	if !ok {
		return 0, false
	}
	last, _ := w.Latest()
	dt := last.Timestamp().Sub(first.Timestamp()).Seconds()
	if dt <= 0 {
		return 0, false
	}
	return (last.Value() - first.Value()) / dt, true
}
