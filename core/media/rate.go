package media

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"Replayer/model"
)

var ErrInvalidPlaybackRate = errors.New("invalid playback rate")

// PlaybackRateController 抽象不同播放资源的速率读写与变化通知
type PlaybackRateController interface {
	PlaybackRate() float64
	// SetPlaybackRate 请求新的速率，rate 必须为正的有限数；Destroy 之后为空操作
	SetPlaybackRate(rate float64) error
	// OnPlaybackRateChanged 订阅速率变化，每次变化恰好通知一次
	OnPlaybackRateChanged(fn func(rate float64)) (cancel func())
	// Destroy 解除与资源的绑定，可重复调用
	Destroy()
}

// ValidateRate 检查速率是否为正的有限数
func ValidateRate(rate float64) error {
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidPlaybackRate, rate)
	}
	return nil
}

// rateEmitter 记录最后一次通知的速率，去掉重复通知
type rateEmitter struct {
	mu        sync.Mutex
	last      float64
	destroyed bool
	subs      listeners[float64]
}

func newRateEmitter(initial float64) *rateEmitter {
	return &rateEmitter{last: initial}
}

func (e *rateEmitter) emit(rate float64) {
	e.mu.Lock()
	if e.destroyed || rate == e.last {
		e.mu.Unlock()
		return
	}
	e.last = rate
	e.mu.Unlock()
	e.subs.emit(rate)
}

func (e *rateEmitter) lastRate() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

func (e *rateEmitter) subscribe(fn func(float64)) func() {
	return e.subs.add(fn)
}

// destroy 返回是否为首次销毁
func (e *rateEmitter) destroy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return false
	}
	e.destroyed = true
	e.subs.clear()
	return true
}

func (e *rateEmitter) isDestroyed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.destroyed
}

// RateControllerOptions 构造速率控制器时的可选项
type RateControllerOptions struct {
	// Dispatch 执行远程调用的方式，默认新开 goroutine
	Dispatch func(fn func())
}

// NewRateController 根据媒体类型选择速率控制器实现
func NewRateController(kind model.MediaKind, res RateResource, opts RateControllerOptions) PlaybackRateController {
	if kind == model.MediaKindEmbedded {
		return NewRemoteRateController(AsRemotePlayer(res), RemoteOptions{
			Dispatch: opts.Dispatch,
		})
	}
	return NewLocalRateController(res)
}
