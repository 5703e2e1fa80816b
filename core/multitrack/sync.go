package multitrack

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"Replayer/core/clock"
	"Replayer/core/media"
	"Replayer/core/reading"
	"Replayer/logger"
)

// MaxTrackTimeDeviation 音轨间允许的最大时间偏差（秒），约等于室温下 5 米的声程差
const MaxTrackTimeDeviation = 0.015

// CorrectionMode 偏差修正方式
type CorrectionMode string

const (
	// CorrectionSeek 把跟随音轨直接定位到锚点位置
	CorrectionSeek CorrectionMode = "seek"
	// CorrectionRate 微调跟随音轨的播放速率，回到容差内后恢复
	CorrectionRate CorrectionMode = "rate"
)

const (
	DefaultCorrectionWindow = 2 * time.Second
	DefaultMaxRateNudge     = 0.05
	DefaultSettleTimeout    = 2 * time.Second
)

// ParseCorrectionMode 解析配置中的修正方式
func ParseCorrectionMode(s string) (CorrectionMode, error) {
	switch CorrectionMode(s) {
	case CorrectionSeek, "":
		return CorrectionSeek, nil
	case CorrectionRate:
		return CorrectionRate, nil
	default:
		return "", fmt.Errorf("unknown sync mode %q", s)
	}
}

// SyncOptions 同步器配置，零值字段使用默认值
type SyncOptions struct {
	Mode             CorrectionMode
	Tolerance        float64
	CorrectionWindow time.Duration
	MaxRateNudge     float64
	SettleTimeout    time.Duration
	WindowSize       int
}

func (o SyncOptions) withDefaults() SyncOptions {
	if o.Mode == "" {
		o.Mode = CorrectionSeek
	}
	if o.Tolerance <= 0 {
		o.Tolerance = MaxTrackTimeDeviation
	}
	if o.CorrectionWindow <= 0 {
		o.CorrectionWindow = DefaultCorrectionWindow
	}
	if o.MaxRateNudge <= 0 {
		o.MaxRateNudge = DefaultMaxRateNudge
	}
	if o.SettleTimeout <= 0 {
		o.SettleTimeout = DefaultSettleTimeout
	}
	return o
}

// Correction 一次发出的修正
type Correction struct {
	TrackID   string         `json:"trackId"`
	AnchorID  string         `json:"anchorId"`
	Deviation float64        `json:"deviation"` // 跟随音轨减锚点，秒
	Kind      CorrectionMode `json:"kind"`
	Target    float64        `json:"target,omitempty"` // seek 目标位置
	Rate      float64        `json:"rate,omitempty"`   // 请求的速率
}

type trackSync struct {
	firstSeen    time.Time
	order        int
	window       *reading.Window[float64]
	pending      bool
	pendingSince time.Time
	nudged       bool
	baseRate     float64 // 首次微调前的速率
}

// Synchronizer 以最早开始播放的音轨为锚点，把其余播放中的音轨拉回容差范围内
type Synchronizer struct {
	mu     sync.Mutex
	clk    clock.Clock
	opts   SyncOptions
	tracks map[string]*trackSync
	seq    int
	anchor string
}

// NewSynchronizer 创建同步器
func NewSynchronizer(clk clock.Clock, opts SyncOptions) *Synchronizer {
	return &Synchronizer{
		clk:    clk,
		opts:   opts.withDefaults(),
		tracks: make(map[string]*trackSync),
	}
}

// Mode 当前修正方式
func (s *Synchronizer) Mode() CorrectionMode {
	return s.opts.Mode
}

type sample struct {
	h   media.MediaHandler
	id  string
	pos float64
	st  *trackSync
}

// Tick 在同一时间戳下采样所有播放中的音轨并发出修正。
// 少于两个播放中的音轨时不发出修正。
func (s *Synchronizer) Tick(handlers []media.MediaHandler) []Correction {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()
	present := make(map[string]bool, len(handlers))
	var samples []sample

	for _, h := range handlers {
		if h == nil {
			continue
		}
		id := h.ID()
		present[id] = true
		if !h.IsPlaying() || !h.IsTrackLoaded() || !h.IsMediaAvailable() {
			s.dropLocked(id, h)
			continue
		}
		samples = append(samples, sample{h: h, id: id})
	}
	for id := range s.tracks {
		if !present[id] {
			delete(s.tracks, id)
		}
	}

	// 按ID排序，保证与回报顺序无关，同一轮新出现的音轨按ID升序决定先后
	sort.Slice(samples, func(i, j int) bool { return samples[i].id < samples[j].id })
	for i := range samples {
		sp := &samples[i]
		sp.pos = sp.h.CurrentSeconds()
		st, ok := s.tracks[sp.id]
		if !ok {
			s.seq++
			st = &trackSync{
				firstSeen: now,
				order:     s.seq,
				window:    reading.NewWindow[float64](s.opts.WindowSize),
			}
			s.tracks[sp.id] = st
		}
		st.window.Add(reading.New(now, sp.pos))
		sp.st = st
	}

	if len(samples) < 2 {
		// 唯一播放的音轨没有参照，撤销残留的微调
		for _, sp := range samples {
			s.unnudgeLocked(sp.id, sp.h, sp.st)
			sp.st.pending = false
		}
		s.anchor = ""
		return nil
	}

	anchor := samples[0]
	for _, sp := range samples[1:] {
		if anchorBefore(sp, anchor) {
			anchor = sp
		}
	}
	s.anchor = anchor.id
	// 锚点自身不再接受修正，曾经的微调需要撤销
	s.unnudgeLocked(anchor.id, anchor.h, anchor.st)
	anchor.st.pending = false

	var corrections []Correction
	for _, sp := range samples {
		if sp.id == anchor.id {
			continue
		}
		if c, ok := s.correctLocked(now, anchor, sp); ok {
			corrections = append(corrections, c)
		}
	}
	return corrections
}

// anchorBefore 最早开始播放者优先；同一轮出现时位置靠前者优先，再按ID升序
func anchorBefore(a, b sample) bool {
	if !a.st.firstSeen.Equal(b.st.firstSeen) {
		return a.st.firstSeen.Before(b.st.firstSeen)
	}
	if a.pos != b.pos {
		return a.pos > b.pos
	}
	return a.st.order < b.st.order
}

// correctLocked 需要持有锁
func (s *Synchronizer) correctLocked(now time.Time, anchor, sp sample) (Correction, bool) {
	dev := sp.pos - anchor.pos
	within := math.Abs(dev) <= s.opts.Tolerance
	st := sp.st

	if within {
		if st.nudged {
			s.restoreRateLocked(anchor, sp)
		}
		st.pending = false
		return Correction{}, false
	}
	if st.pending && now.Sub(st.pendingSince) < s.opts.SettleTimeout {
		return Correction{}, false
	}

	c := Correction{
		TrackID:   sp.id,
		AnchorID:  anchor.id,
		Deviation: dev,
		Kind:      s.opts.Mode,
	}
	switch s.opts.Mode {
	case CorrectionRate:
		base := anchor.h.RateController().PlaybackRate()
		nudge := -dev / s.opts.CorrectionWindow.Seconds()
		nudge = math.Max(-s.opts.MaxRateNudge, math.Min(s.opts.MaxRateNudge, nudge))
		c.Rate = base + nudge
		if !st.nudged {
			st.baseRate = sp.h.RateController().PlaybackRate()
		}
		if err := sp.h.RateController().SetPlaybackRate(c.Rate); err != nil {
			logger.Warn("同步速率修正失败", logger.String("trackId", sp.id), logger.ErrorField(err))
			return Correction{}, false
		}
		st.nudged = true
	default:
		c.Target = anchor.pos
		sp.h.Seek(anchor.pos)
	}
	st.pending = true
	st.pendingSince = now

	logger.Debug("音轨偏差修正",
		logger.String("trackId", sp.id),
		logger.String("anchorId", anchor.id),
		logger.Float64("deviation", dev),
		logger.String("mode", string(c.Kind)))
	return c, true
}

// restoreRateLocked 跟随音轨回到容差内后恢复为锚点的实际速率
func (s *Synchronizer) restoreRateLocked(anchor, sp sample) {
	rate := anchor.h.RateController().PlaybackRate()
	if err := sp.h.RateController().SetPlaybackRate(rate); err != nil {
		logger.Warn("恢复播放速率失败", logger.String("trackId", sp.id), logger.ErrorField(err))
	}
	sp.st.nudged = false
}

// dropLocked 音轨停止播放后清除其锚点资格与待定修正
func (s *Synchronizer) dropLocked(id string, h media.MediaHandler) {
	st, ok := s.tracks[id]
	if !ok {
		return
	}
	s.unnudgeLocked(id, h, st)
	delete(s.tracks, id)
}

// unnudgeLocked 没有锚点可参考时恢复微调前的速率
func (s *Synchronizer) unnudgeLocked(id string, h media.MediaHandler, st *trackSync) {
	if !st.nudged {
		return
	}
	if err := h.RateController().SetPlaybackRate(st.baseRate); err != nil {
		logger.Warn("恢复播放速率失败", logger.String("trackId", id), logger.ErrorField(err))
	}
	st.nudged = false
}

// Forget 移除音轨的全部同步状态
func (s *Synchronizer) Forget(trackID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tracks, trackID)
	if s.anchor == trackID {
		s.anchor = ""
	}
}

// Reset 清空全部同步状态
func (s *Synchronizer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks = make(map[string]*trackSync)
	s.anchor = ""
}

// Anchor 最近一次 Tick 选出的锚点音轨
func (s *Synchronizer) Anchor() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.anchor
}

// Pending 音轨是否有尚未确认的修正
func (s *Synchronizer) Pending(trackID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.tracks[trackID]
	return ok && st.pending
}

// Readings 音轨最近的位置采样
func (s *Synchronizer) Readings(trackID string) []reading.Reading[float64] {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.tracks[trackID]
	if !ok {
		return nil
	}
	return st.window.Samples()
}

// ObservedRate 根据采样窗口估计音轨的实际播放速率
func (s *Synchronizer) ObservedRate(trackID string) (float64, bool) {
	s.mu.Lock()
	st, ok := s.tracks[trackID]
	s.mu.Unlock()
	if !ok {
		return 0, false
	}
	return reading.Slope(st.window)
}
