package media

import (
	"sync"
	"time"

	"Replayer/core/clock"
	"Replayer/logger"
	"Replayer/model"
)

// ElementHandler 进程内的虚拟媒体元素。
// 播放位置由时钟推算：锚点位置 + 速率 × 锚点以来经过的时间。
type ElementHandler struct {
	mu  sync.Mutex
	id  string
	clk clock.Clock

	state     model.PlaybackState
	available bool
	loaded    bool
	duration  float64
	anchorPos float64
	anchorAt  time.Time
	rate      float64
	muted     bool
	destroyed bool

	fader     *Fader
	rateCtl   PlaybackRateController
	stateSubs listeners[model.PlaybackState]
	rateSubs  listeners[float64]
}

// ElementOptions 虚拟元素的可选配置
type ElementOptions struct {
	Kind     model.MediaKind
	Dispatch func(fn func())
}

// NewElementHandler 创建未加载状态的虚拟元素
func NewElementHandler(trackID string, clk clock.Clock, opts ElementOptions) *ElementHandler {
	e := &ElementHandler{
		id:        trackID,
		clk:       clk,
		state:     model.PlaybackStateUnloaded,
		available: true,
		rate:      1,
	}
	e.fader = NewFader(clk, nil)
	e.rateCtl = NewRateController(opts.Kind, e, RateControllerOptions{Dispatch: opts.Dispatch})
	return e
}

var _ MediaHandler = (*ElementHandler)(nil)
var _ RateResource = (*ElementHandler)(nil)

func (e *ElementHandler) ID() string {
	return e.id
}

func (e *ElementHandler) State() model.PlaybackState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Load 标记媒体已加载并设置时长
func (e *ElementHandler) Load(duration float64) {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	e.loaded = true
	if duration > 0 {
		e.duration = duration
	}
	changed := e.setStateLocked(e.restingStateLocked())
	e.mu.Unlock()
	e.notify(changed)
}

// SetAvailable 更新媒体可用性；不可用时停止播放
func (e *ElementHandler) SetAvailable(available bool) {
	e.mu.Lock()
	if e.destroyed || e.available == available {
		e.mu.Unlock()
		return
	}
	if !available {
		e.freezeLocked()
	}
	e.available = available
	changed := e.setStateLocked(e.restingStateLocked())
	e.mu.Unlock()
	e.notify(changed)
}

func (e *ElementHandler) CurrentSeconds() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positionLocked()
}

func (e *ElementHandler) Duration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration
}

func (e *ElementHandler) IsPlaying() bool {
	return e.State() == model.PlaybackStatePlaying
}

func (e *ElementHandler) IsMuted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.muted
}

func (e *ElementHandler) IsFading() bool {
	return e.fader.IsFading()
}

func (e *ElementHandler) IsTrackLoaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

func (e *ElementHandler) IsMediaAvailable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.available
}

func (e *ElementHandler) Seek(seconds float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return
	}
	e.anchorPos = e.clampLocked(seconds)
	e.anchorAt = e.clk.Now()
}

func (e *ElementHandler) Play() {
	e.mu.Lock()
	if e.destroyed || !e.loaded || !e.available {
		e.mu.Unlock()
		logger.Debug("忽略播放请求：媒体未就绪", logger.String("trackId", e.id))
		return
	}
	if e.state == model.PlaybackStatePlaying {
		e.mu.Unlock()
		return
	}
	e.anchorAt = e.clk.Now()
	changed := e.setStateLocked(model.PlaybackStatePlaying)
	e.mu.Unlock()
	e.notify(changed)
}

func (e *ElementHandler) Pause() {
	e.mu.Lock()
	if e.destroyed || e.state != model.PlaybackStatePlaying {
		e.mu.Unlock()
		return
	}
	e.freezeLocked()
	changed := e.setStateLocked(model.PlaybackStateReady)
	e.mu.Unlock()
	e.notify(changed)
}

func (e *ElementHandler) Mute(muted bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return
	}
	e.muted = muted
}

func (e *ElementHandler) Fade(dir model.FadeDirection, d time.Duration, onDone func(completed bool)) {
	e.mu.Lock()
	destroyed := e.destroyed
	e.mu.Unlock()
	if destroyed {
		if onDone != nil {
			onDone(false)
		}
		return
	}
	e.fader.Start(dir, d, onDone)
}

func (e *ElementHandler) Gain() float64 {
	return e.fader.Gain()
}

// ResetGain 取消渐变并恢复满增益
func (e *ElementHandler) ResetGain() {
	e.fader.Reset()
}

func (e *ElementHandler) RateController() PlaybackRateController {
	return e.rateCtl
}

func (e *ElementHandler) OnStateChange(fn func(model.PlaybackState)) func() {
	return e.stateSubs.add(fn)
}

// CheckEnded 播放到结尾时切换为就绪状态，返回是否发生了切换
func (e *ElementHandler) CheckEnded() bool {
	e.mu.Lock()
	if e.state != model.PlaybackStatePlaying || e.duration <= 0 || e.positionLocked() < e.duration {
		e.mu.Unlock()
		return false
	}
	e.freezeLocked()
	changed := e.setStateLocked(model.PlaybackStateReady)
	e.mu.Unlock()
	e.notify(changed)
	return true
}

func (e *ElementHandler) Destroy() {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	e.freezeLocked()
	e.destroyed = true
	e.mu.Unlock()

	e.fader.Cancel()
	e.rateCtl.Destroy()
	e.stateSubs.clear()
	e.rateSubs.clear()
}

// ========== RateResource ==========

func (e *ElementHandler) Rate() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rate
}

func (e *ElementHandler) SetRate(rate float64) {
	e.mu.Lock()
	if e.destroyed || rate == e.rate || ValidateRate(rate) != nil {
		e.mu.Unlock()
		return
	}
	e.freezeLocked()
	e.anchorAt = e.clk.Now()
	e.rate = rate
	e.mu.Unlock()
	e.rateSubs.emit(rate)
}

func (e *ElementHandler) OnRateChange(fn func(rate float64)) func() {
	return e.rateSubs.add(fn)
}

// ========== 内部 ==========

// positionLocked 需要持有锁
func (e *ElementHandler) positionLocked() float64 {
	if e.state != model.PlaybackStatePlaying {
		return e.anchorPos
	}
	elapsed := e.clk.Now().Sub(e.anchorAt).Seconds()
	return e.clampLocked(e.anchorPos + elapsed*e.rate)
}

// freezeLocked 把当前推算位置固化为锚点
func (e *ElementHandler) freezeLocked() {
	e.anchorPos = e.positionLocked()
	e.anchorAt = e.clk.Now()
}

func (e *ElementHandler) clampLocked(pos float64) float64 {
	if pos < 0 {
		return 0
	}
	if e.duration > 0 && pos > e.duration {
		return e.duration
	}
	return pos
}

func (e *ElementHandler) restingStateLocked() model.PlaybackState {
	switch {
	case !e.available:
		return model.PlaybackStateUnavailable
	case !e.loaded:
		return model.PlaybackStateUnloaded
	case e.state == model.PlaybackStatePlaying:
		return model.PlaybackStatePlaying
	default:
		return model.PlaybackStateReady
	}
}

// setStateLocked 返回需要通知的新状态，未变化时返回 nil
func (e *ElementHandler) setStateLocked(s model.PlaybackState) *model.PlaybackState {
	if e.state == s {
		return nil
	}
	e.state = s
	return &s
}

func (e *ElementHandler) notify(changed *model.PlaybackState) {
	if changed != nil {
		e.stateSubs.emit(*changed)
	}
}
