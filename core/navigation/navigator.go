// Package navigation 把 cue 选择转换为对音轨处理器的定位、渐变和播放操作
package navigation

import (
	"errors"
	"fmt"
	"sync"

	"Replayer/core/media"
	"Replayer/logger"
	"Replayer/model"
)

var (
	ErrNoCompilation      = errors.New("no compilation loaded")
	ErrTrackNotFound      = errors.New("track not found")
	ErrCueNotFound        = errors.New("cue not found")
	ErrHandlerUnavailable = errors.New("track handler unavailable")
)

// Ensemble 导航所需的合奏视图
type Ensemble interface {
	ResolveTrackHandler(trackID string) (media.MediaHandler, bool)
	AllTrackHandlers() []media.MediaHandler
	IsAnyPlaying() bool
}

// NavigateEvent 一次导航的结果
type NavigateEvent struct {
	TrackID string  `json:"trackId"`
	CueID   string  `json:"cueId"`
	Time    float64 `json:"time"`  // cue 时间
	Start   float64 `json:"start"` // 实际起播位置（含预卷）
	Playing bool    `json:"playing"`
}

// FadeEvent 渐变开始或结束
type FadeEvent struct {
	TrackID   string              `json:"trackId"`
	Direction model.FadeDirection `json:"direction"`
	Duration  int64               `json:"durationMs"`
	Done      bool                `json:"done"`
	Completed bool                `json:"completed"`
}

// Options 导航器配置
type Options struct {
	Settings   model.Settings
	Multitrack bool
	OnNavigate func(NavigateEvent)
	OnFade     func(FadeEvent)
}

// Navigator 维护当前音轨与当前 cue，并执行跳转、播放与暂停
type Navigator struct {
	mu          sync.Mutex
	ensemble    Ensemble
	compilation *model.Compilation
	settings    model.Settings
	multitrack  bool

	activeTrackID string
	activeCueID   string
	gen           uint64
	transition    bool
	pausing       bool

	onNavigate func(NavigateEvent)
	onFade     func(FadeEvent)
}

// New 创建导航器
func New(ensemble Ensemble, opts Options) *Navigator {
	n := &Navigator{
		ensemble:   ensemble,
		settings:   opts.Settings,
		multitrack: opts.Multitrack,
		onNavigate: opts.OnNavigate,
		onFade:     opts.OnFade,
	}
	if n.onNavigate == nil {
		n.onNavigate = func(NavigateEvent) {}
	}
	if n.onFade == nil {
		n.onFade = func(FadeEvent) {}
	}
	return n
}

// SetEnsemble 音轨集合变化后替换合奏视图
func (n *Navigator) SetEnsemble(e Ensemble) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ensemble = e
	n.gen++
	n.transition = false
	n.pausing = false
}

// SetCompilation 替换合集并清除当前音轨
func (n *Navigator) SetCompilation(c *model.Compilation) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.compilation = c
	n.activeTrackID = ""
	n.activeCueID = ""
	n.gen++
	n.transition = false
	n.pausing = false
}

// SetSettings 更新渐变与预卷设置
func (n *Navigator) SetSettings(s model.Settings) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.settings = s
}

// Settings 当前设置
func (n *Navigator) Settings() model.Settings {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.settings
}

// SetMultitrack 切换多轨模式
func (n *Navigator) SetMultitrack(on bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.multitrack = on
}

// ActiveTrackID 当前音轨
func (n *Navigator) ActiveTrackID() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.activeTrackID
}

// ActiveCueID 最近一次跳转的 cue
func (n *Navigator) ActiveCueID() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.activeCueID
}

// ========== 跳转 ==========

// NavigateToCue 跳转到指定音轨的 cue。
// 正在播放时先淡出原音轨，再从预卷位置淡入播放；未播放时只移动位置标记。
func (n *Navigator) NavigateToCue(trackID, cueID string) error {
	n.mu.Lock()
	track, err := n.trackLocked(trackID)
	if err != nil {
		n.mu.Unlock()
		return err
	}
	cue, ok := track.CueByID(cueID)
	if !ok {
		n.mu.Unlock()
		return fmt.Errorf("%w: %s/%s", ErrCueNotFound, trackID, cueID)
	}
	ens := n.ensemble
	if ens == nil {
		n.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrHandlerUnavailable, trackID)
	}
	target, ok := ens.ResolveTrackHandler(trackID)
	if !ok {
		n.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrHandlerUnavailable, trackID)
	}

	targets := []media.MediaHandler{target}
	if n.multitrack {
		targets = ens.AllTrackHandlers()
	}
	playing := ens.IsAnyPlaying()
	hardCut := n.transition
	settings := n.settings

	n.gen++
	gen := n.gen
	n.activeTrackID = trackID
	n.activeCueID = cue.ID
	n.pausing = false
	cueTime := cue.Time
	n.transition = playing
	n.mu.Unlock()

	ev := NavigateEvent{TrackID: trackID, CueID: cue.ID, Time: cueTime, Start: cueTime, Playing: playing}
	if !playing {
		for _, h := range targets {
			h.Seek(cueTime)
		}
		n.onNavigate(ev)
		return nil
	}

	ev.Start = media.PreRollStart(cueTime, settings)
	n.onNavigate(ev)

	var outgoing []media.MediaHandler
	for _, h := range ens.AllTrackHandlers() {
		if h.IsPlaying() {
			outgoing = append(outgoing, h)
		}
	}

	proceed := func() {
		if !n.claim(gen) {
			return
		}
		for _, h := range outgoing {
			if !contains(targets, h) {
				h.Pause()
				h.Fade(model.FadeIn, 0, nil)
			}
		}
		for _, h := range targets {
			if !h.IsMediaAvailable() || !h.IsTrackLoaded() {
				continue
			}
			h.Seek(ev.Start)
			n.fade(h, model.FadeIn, settings, nil)
			h.Play()
		}
	}

	if hardCut || len(outgoing) == 0 || settings.FadeOutTime() == 0 {
		for _, h := range outgoing {
			h.Fade(model.FadeOut, 0, nil)
		}
		proceed()
		return nil
	}

	remaining := len(outgoing)
	for _, h := range outgoing {
		n.fade(h, model.FadeOut, settings, func(bool) {
			remaining--
			if remaining == 0 {
				proceed()
			}
		})
	}
	return nil
}

// NavigateToMeasure 跳转到小节位置对应的 cue
func (n *Navigator) NavigateToMeasure(trackID string, pos model.MetricalPosition) error {
	n.mu.Lock()
	track, err := n.trackLocked(trackID)
	if err != nil {
		n.mu.Unlock()
		return err
	}
	cue, ok := track.CueAtMeasure(pos)
	n.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s at measure %s", ErrCueNotFound, trackID, pos)
	}
	return n.NavigateToCue(trackID, cue.ID)
}

// NextCue 跳转到当前位置之后的下一个 cue
func (n *Navigator) NextCue() error {
	return n.step(1)
}

// PreviousCue 跳转到当前位置之前的 cue
func (n *Navigator) PreviousCue() error {
	return n.step(-1)
}

func (n *Navigator) step(delta int) error {
	n.mu.Lock()
	track, err := n.activeTrackLocked()
	if err != nil {
		n.mu.Unlock()
		return err
	}
	activeCue := n.activeCueID
	ens := n.ensemble
	n.mu.Unlock()

	pos := 0.0
	if ens != nil {
		if h, ok := ens.ResolveTrackHandler(track.ID); ok {
			pos = h.CurrentSeconds()
		}
	}
	idx := track.CueIndexAt(pos)
	// 预卷期间位置仍在目标 cue 之前
	for i := range track.Cues {
		if track.Cues[i].ID == activeCue && i > idx {
			idx = i
		}
	}

	next := idx + delta
	if delta > 0 && idx < 0 {
		next = 0
	}
	if next < 0 || next >= len(track.Cues) {
		return fmt.Errorf("%w: no cue %+d from position %.3f on %s", ErrCueNotFound, delta, pos, track.ID)
	}
	return n.NavigateToCue(track.ID, track.Cues[next].ID)
}

// Seek 手动定位，清除当前 cue
func (n *Navigator) Seek(trackID string, seconds float64) error {
	n.mu.Lock()
	ens := n.ensemble
	multi := n.multitrack
	n.activeCueID = ""
	if trackID != "" {
		n.activeTrackID = trackID
	}
	n.mu.Unlock()
	if ens == nil {
		return fmt.Errorf("%w: %s", ErrHandlerUnavailable, trackID)
	}

	if multi {
		for _, h := range ens.AllTrackHandlers() {
			h.Seek(seconds)
		}
		return nil
	}
	h, ok := ens.ResolveTrackHandler(trackID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrHandlerUnavailable, trackID)
	}
	h.Seek(seconds)
	return nil
}

// ========== 播放控制 ==========

// Play 淡入并开始播放当前音轨（多轨模式下为全部音轨）
func (n *Navigator) Play() error {
	n.mu.Lock()
	targets, err := n.targetsLocked()
	if err != nil {
		n.mu.Unlock()
		return err
	}
	n.gen++
	n.transition = false
	n.pausing = false
	settings := n.settings
	n.mu.Unlock()

	for _, h := range targets {
		if !h.IsTrackLoaded() || !h.IsMediaAvailable() {
			continue
		}
		if h.IsPlaying() && !h.IsFading() {
			continue
		}
		n.fade(h, model.FadeIn, settings, nil)
		h.Play()
	}
	return nil
}

// Pause 淡出后暂停，并恢复满增益
func (n *Navigator) Pause() error {
	n.mu.Lock()
	targets, err := n.targetsLocked()
	if err != nil {
		n.mu.Unlock()
		return err
	}
	ens := n.ensemble
	n.gen++
	gen := n.gen
	n.transition = false
	n.pausing = true
	settings := n.settings
	n.mu.Unlock()

	// 单轨模式下其他仍在播放的音轨也一并停止
	for _, h := range ens.AllTrackHandlers() {
		if h.IsPlaying() && !contains(targets, h) {
			targets = append(targets, h)
		}
	}
	for _, h := range targets {
		if !h.IsPlaying() {
			continue
		}
		n.fade(h, model.FadeOut, settings, func(bool) {
			if !n.isCurrent(gen) {
				return
			}
			h.Pause()
			h.Fade(model.FadeIn, 0, nil)
		})
	}
	return nil
}

// Toggle 播放中则暂停，否则播放
func (n *Navigator) Toggle() error {
	n.mu.Lock()
	ens := n.ensemble
	pausing := n.pausing
	n.mu.Unlock()
	if ens != nil && ens.IsAnyPlaying() && !pausing {
		return n.Pause()
	}
	return n.Play()
}

// ========== 内部 ==========

func (n *Navigator) fade(h media.MediaHandler, dir model.FadeDirection, s model.Settings, done func(bool)) {
	d := s.FadeInTime()
	if dir == model.FadeOut {
		d = s.FadeOutTime()
	}
	trackID := h.ID()
	n.onFade(FadeEvent{TrackID: trackID, Direction: dir, Duration: d.Milliseconds()})
	h.Fade(dir, d, func(completed bool) {
		n.onFade(FadeEvent{TrackID: trackID, Direction: dir, Duration: d.Milliseconds(), Done: true, Completed: completed})
		if done != nil {
			done(completed)
		}
	})
}

// claim 当前代号仍有效时结束过渡状态
func (n *Navigator) claim(gen uint64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if gen != n.gen {
		return false
	}
	n.transition = false
	return true
}

func (n *Navigator) isCurrent(gen uint64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if gen != n.gen {
		return false
	}
	n.pausing = false
	return true
}

// trackLocked 需要持有锁
func (n *Navigator) trackLocked(trackID string) (*model.Track, error) {
	if n.compilation == nil {
		return nil, ErrNoCompilation
	}
	track, ok := n.compilation.Track(trackID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTrackNotFound, trackID)
	}
	return track, nil
}

// activeTrackLocked 没有当前音轨时取合集第一个音轨
func (n *Navigator) activeTrackLocked() (*model.Track, error) {
	if n.compilation == nil {
		return nil, ErrNoCompilation
	}
	if n.activeTrackID == "" {
		if len(n.compilation.Tracks) == 0 {
			return nil, ErrTrackNotFound
		}
		n.activeTrackID = n.compilation.Tracks[0].ID
	}
	return n.trackLocked(n.activeTrackID)
}

// targetsLocked 需要持有锁
func (n *Navigator) targetsLocked() ([]media.MediaHandler, error) {
	if n.ensemble == nil {
		return nil, ErrHandlerUnavailable
	}
	if n.multitrack {
		return n.ensemble.AllTrackHandlers(), nil
	}
	track, err := n.activeTrackLocked()
	if err != nil {
		return nil, err
	}
	h, ok := n.ensemble.ResolveTrackHandler(track.ID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHandlerUnavailable, track.ID)
	}
	return []media.MediaHandler{h}, nil
}

func contains(hs []media.MediaHandler, target media.MediaHandler) bool {
	for _, h := range hs {
		if h == target {
			return true
		}
	}
	return false
}

// LogFailure 记录被忽略的导航失败
func LogFailure(op string, err error) {
	if err == nil {
		return
	}
	logger.Warn("导航请求被忽略", logger.String("op", op), logger.ErrorField(err))
}
