// Package mnemonic 把数字键序列解析为 cue 选择
package mnemonic

import (
	"sync"
	"time"

	"Replayer/core/clock"
	"Replayer/logger"
	"Replayer/model"
)

// State 解析器状态
type State int

const (
	StateIdle State = iota
	StateAccumulating
)

func (s State) String() string {
	if s == StateAccumulating {
		return "accumulating"
	}
	return "idle"
}

// KeyEnter 确认键
const KeyEnter = "Enter"

// Selection 解析出的跳转目标
type Selection struct {
	TrackID  string  `json:"trackId"`
	CueID    string  `json:"cueId"`
	Mnemonic string  `json:"mnemonic"`
	Time     float64 `json:"time"`
}

// DefaultTimeout 未配置（或配置为 0）时的静默超时
const DefaultTimeout = time.Second

func normalizeTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultTimeout
	}
	return d
}

// Resolver 显式状态机：Idle 与 Accumulating(digits)。
// 每次状态转换都会清除定时器，过期的定时回调按代号忽略。
type Resolver struct {
	mu      sync.Mutex
	clk     clock.Clock
	timeout time.Duration

	index    map[string]Selection
	prefixes map[string]bool

	state  State
	digits string
	timer  clock.Timer
	gen    uint64

	onSelect  func(Selection)
	onDiscard func(digits string)
}

// NewResolver 创建解析器，onSelect 在锁外调用
func NewResolver(clk clock.Clock, timeout time.Duration, onSelect func(Selection)) *Resolver {
	if onSelect == nil {
		onSelect = func(Selection) {}
	}
	return &Resolver{
		clk:      clk,
		timeout:  normalizeTimeout(timeout),
		index:    make(map[string]Selection),
		prefixes: make(map[string]bool),
		onSelect: onSelect,
	}
}

// OnDiscard 设置未匹配序列被丢弃时的回调
func (r *Resolver) OnDiscard(fn func(digits string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDiscard = fn
}

// SetTimeout 更新静默超时，下一次按键生效
func (r *Resolver) SetTimeout(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeout = normalizeTimeout(d)
}

// SetCompilation 重建助记键索引（整个合集范围），并放弃正在累积的输入
func (r *Resolver) SetCompilation(c *model.Compilation) {
	index := make(map[string]Selection)
	prefixes := make(map[string]bool)
	if c != nil {
		for _, tr := range c.Tracks {
			for _, cue := range tr.Cues {
				if !model.IsDigits(cue.Shortcut) {
					continue
				}
				if _, dup := index[cue.Shortcut]; dup {
					logger.Warn("重复的助记键，保留第一个", logger.String("mnemonic", cue.Shortcut), logger.String("cueId", cue.ID))
					continue
				}
				index[cue.Shortcut] = Selection{TrackID: tr.ID, CueID: cue.ID, Mnemonic: cue.Shortcut, Time: cue.Time}
				for i := 1; i < len(cue.Shortcut); i++ {
					prefixes[cue.Shortcut[:i]] = true
				}
			}
		}
	}

	r.mu.Lock()
	r.index = index
	r.prefixes = prefixes
	r.toIdleLocked()
	r.mu.Unlock()
}

// State 当前状态
func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Digits 已累积的数字
func (r *Resolver) Digits() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.digits
}

// HandleKey 处理一个按键：数字累积，Enter 确认，其他键取消。返回按键是否被消费
func (r *Resolver) HandleKey(key string) bool {
	switch {
	case len(key) == 1 && key[0] >= '0' && key[0] <= '9':
		return r.PressDigit(rune(key[0]))
	case key == KeyEnter:
		return r.Confirm()
	default:
		r.mu.Lock()
		active := r.state == StateAccumulating
		r.mu.Unlock()
		if active {
			r.Cancel()
		}
		return false
	}
}

// PressDigit 追加一个数字并重置超时。
// 精确匹配且不是其他助记键前缀时立即分发。没有任何助记键时保持空闲。
func (r *Resolver) PressDigit(d rune) bool {
	if d < '0' || d > '9' {
		return false
	}

	r.mu.Lock()
	if len(r.index) == 0 {
		r.mu.Unlock()
		return false
	}
	r.stopTimerLocked()
	r.state = StateAccumulating
	r.digits += string(d)
	digits := r.digits

	if sel, ok := r.index[digits]; ok && !r.prefixes[digits] {
		r.toIdleLocked()
		r.mu.Unlock()
		r.dispatch(sel)
		return true
	}

	gen := r.gen
	r.timer = r.clk.AfterFunc(r.timeout, func() { r.expire(gen) })
	r.mu.Unlock()
	return true
}

// Confirm 立即解析累积的数字
func (r *Resolver) Confirm() bool {
	r.mu.Lock()
	if r.state != StateAccumulating {
		r.mu.Unlock()
		return false
	}
	sel, ok, digits := r.resolveLocked()
	r.toIdleLocked()
	onDiscard := r.onDiscard
	r.mu.Unlock()

	r.finish(sel, ok, digits, onDiscard)
	return true
}

// Cancel 放弃累积的数字
func (r *Resolver) Cancel() {
	r.mu.Lock()
	digits := r.digits
	wasActive := r.state == StateAccumulating
	r.toIdleLocked()
	onDiscard := r.onDiscard
	r.mu.Unlock()

	if wasActive && onDiscard != nil {
		onDiscard(digits)
	}
}

func (r *Resolver) expire(gen uint64) {
	r.mu.Lock()
	if gen != r.gen || r.state != StateAccumulating {
		r.mu.Unlock()
		return
	}
	sel, ok, digits := r.resolveLocked()
	r.toIdleLocked()
	onDiscard := r.onDiscard
	r.mu.Unlock()

	r.finish(sel, ok, digits, onDiscard)
}

func (r *Resolver) finish(sel Selection, ok bool, digits string, onDiscard func(string)) {
	if ok {
		r.dispatch(sel)
		return
	}
	logger.Debug("助记键无匹配，已丢弃", logger.String("digits", digits))
	if onDiscard != nil {
		onDiscard(digits)
	}
}

func (r *Resolver) dispatch(sel Selection) {
	logger.Debug("助记键命中",
		logger.String("mnemonic", sel.Mnemonic),
		logger.String("trackId", sel.TrackID),
		logger.String("cueId", sel.CueID))
	r.onSelect(sel)
}

// resolveLocked 需要持有锁
func (r *Resolver) resolveLocked() (Selection, bool, string) {
	sel, ok := r.index[r.digits]
	return sel, ok, r.digits
}

// toIdleLocked 需要持有锁
func (r *Resolver) toIdleLocked() {
	r.stopTimerLocked()
	r.state = StateIdle
	r.digits = ""
}

// stopTimerLocked 需要持有锁；递增代号使已投递的回调失效
func (r *Resolver) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.gen++
}
