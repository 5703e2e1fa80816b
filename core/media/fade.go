package media

import (
	"sync"
	"time"

	"Replayer/core/clock"
	"Replayer/model"
)

// FadeStep 增益更新间隔
const FadeStep = 20 * time.Millisecond

// Fader 按注入时钟驱动的线性增益渐变
type Fader struct {
	mu    sync.Mutex
	clk   clock.Clock
	apply func(gain float64)

	gain   float64
	gen    uint64
	fading bool
	dir    model.FadeDirection
	from   float64
	to     float64
	start  time.Time
	length time.Duration
	timer  clock.Timer
	onDone func(completed bool)
}

// NewFader 创建初始增益为 1 的 Fader，apply 在每次增益变化时被调用
func NewFader(clk clock.Clock, apply func(gain float64)) *Fader {
	if apply == nil {
		apply = func(float64) {}
	}
	return &Fader{clk: clk, apply: apply, gain: 1}
}

// Gain 当前增益
func (f *Fader) Gain() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gain
}

// IsFading 是否有未完成的渐变
func (f *Fader) IsFading() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fading
}

// Direction 当前或最近一次渐变的方向
func (f *Fader) Direction() model.FadeDirection {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dir
}

// Start 开始新的渐变，取代未完成的渐变（其回调收到 false）。
// 淡入总是从 0 开始；淡出从当前增益开始。时长为 0 时立即生效。
func (f *Fader) Start(dir model.FadeDirection, d time.Duration, onDone func(completed bool)) {
	f.mu.Lock()
	prev := f.supersede()
	f.gen++
	f.dir = dir

	from, to := f.gain, 0.0
	if dir == model.FadeIn {
		from, to = 0, 1
	}

	if d <= 0 {
		f.gain = to
		f.mu.Unlock()
		if prev != nil {
			prev(false)
		}
		f.apply(to)
		if onDone != nil {
			onDone(true)
		}
		return
	}

	f.fading = true
	f.from, f.to = from, to
	f.gain = from
	f.start = f.clk.Now()
	f.length = d
	f.onDone = onDone
	gen := f.gen
	f.schedule(gen)
	f.mu.Unlock()

	if prev != nil {
		prev(false)
	}
	f.apply(from)
}

// Cancel 停止当前渐变，保留当前增益
func (f *Fader) Cancel() {
	f.mu.Lock()
	prev := f.supersede()
	f.gen++
	f.mu.Unlock()
	if prev != nil {
		prev(false)
	}
}

// Reset 停止渐变并恢复满增益
func (f *Fader) Reset() {
	f.mu.Lock()
	prev := f.supersede()
	f.gen++
	f.gain = 1
	f.mu.Unlock()
	if prev != nil {
		prev(false)
	}
	f.apply(1)
}

// supersede 需要持有锁，返回被取代渐变的回调
func (f *Fader) supersede() func(bool) {
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	if !f.fading {
		return nil
	}
	f.fading = false
	prev := f.onDone
	f.onDone = nil
	return prev
}

// schedule 需要持有锁
func (f *Fader) schedule(gen uint64) {
	f.timer = f.clk.AfterFunc(FadeStep, func() { f.step(gen) })
}

func (f *Fader) step(gen uint64) {
	f.mu.Lock()
	if gen != f.gen || !f.fading {
		f.mu.Unlock()
		return
	}
	progress := float64(f.clk.Now().Sub(f.start)) / float64(f.length)
	if progress >= 1 {
		f.gain = f.to
		f.fading = false
		f.timer = nil
		done := f.onDone
		f.onDone = nil
		gain := f.gain
		f.mu.Unlock()

		f.apply(gain)
		if done != nil {
			done(true)
		}
		return
	}
	f.gain = f.from + (f.to-f.from)*progress
	gain := f.gain
	f.schedule(gen)
	f.mu.Unlock()

	f.apply(gain)
}
