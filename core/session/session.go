// Package session 在单个事件循环中托管多轨播放引擎：
// 按键、导航命令、轮询同步与定时回调都在同一个 goroutine 中串行执行。
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"Replayer/core/clock"
	"Replayer/core/media"
	"Replayer/core/mnemonic"
	"Replayer/core/multitrack"
	"Replayer/core/navigation"
	"Replayer/logger"
	"Replayer/model"
)

var (
	ErrSessionClosed = errors.New("session closed")
	ErrTrackNotFound = errors.New("track not found")
)

// DefaultPollInterval 同步轮询间隔
const DefaultPollInterval = 250 * time.Millisecond

// SnapshotPublisher 快照发布目标（Redis）
type SnapshotPublisher interface {
	PublishSnapshot(ctx context.Context, snap *model.EnsembleSnapshot) error
}

// MediaProbe 检查音轨媒体是否可用（对象存储）
type MediaProbe interface {
	Available(ctx context.Context, objectKey string) (bool, error)
}

// Options 会话配置
type Options struct {
	ID           string
	Clock        clock.Clock
	Settings     model.Settings
	Multitrack   bool
	SyncMode     multitrack.CorrectionMode
	PollInterval time.Duration
	Publisher    SnapshotPublisher
	Probe        MediaProbe
	Hub          *Hub
}

// LoopRange 循环播放区间
type LoopRange struct {
	TrackID string  `json:"trackId"`
	From    float64 `json:"from"`
	To      float64 `json:"to"`
}

// Session 一个播放会话
type Session struct {
	id       string
	base     clock.Clock
	clk      clock.Clock
	interval time.Duration

	commands   chan func()
	done       chan struct{}
	closed     atomic.Bool
	publishing atomic.Bool

	hub       *Hub
	publisher SnapshotPublisher
	probe     MediaProbe
	multi     bool

	// 以下字段只在事件循环中访问
	compilation *model.Compilation
	refs        *multitrack.Refs
	ensemble    *multitrack.MultitrackHandler
	elements    map[string]*media.ElementHandler
	unsubs      map[string][]func()
	syncer      *multitrack.Synchronizer
	resolver    *mnemonic.Resolver
	nav         *navigation.Navigator
	loop        *LoopRange
}

// New 创建会话，需要调用 Run 启动事件循环
func New(opts Options) *Session {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Hub == nil {
		opts.Hub = NewHub(opts.ID)
	}

	s := &Session{
		id:        opts.ID,
		base:      opts.Clock,
		interval:  opts.PollInterval,
		commands:  make(chan func(), 256),
		done:      make(chan struct{}),
		hub:       opts.Hub,
		publisher: opts.Publisher,
		probe:     opts.Probe,
		multi:     opts.Multitrack,
		refs:      multitrack.NewRefs(),
		elements:  make(map[string]*media.ElementHandler),
		unsubs:    make(map[string][]func()),
	}
	s.clk = clock.Serialized(opts.Clock, s.post)
	s.ensemble = multitrack.New(s.refs, nil)
	s.syncer = multitrack.NewSynchronizer(opts.Clock, multitrack.SyncOptions{Mode: opts.SyncMode})
	s.nav = navigation.New(s.ensemble, navigation.Options{
		Settings:   opts.Settings,
		Multitrack: opts.Multitrack,
		OnNavigate: s.onNavigate,
		OnFade:     s.onFade,
	})
	s.resolver = mnemonic.NewResolver(s.clk, opts.Settings.ShortcutTimeout(), s.onSelect)
	s.resolver.OnDiscard(func(digits string) {
		logger.Debug("助记键输入已丢弃", logger.String("session", s.id), logger.String("digits", digits))
	})
	return s
}

// ID 会话ID
func (s *Session) ID() string {
	return s.id
}

// Hub 会话的 WebSocket Hub
func (s *Session) Hub() *Hub {
	return s.hub
}

// ========== 事件循环 ==========

// Run 运行事件循环直到 ctx 结束或 Close
func (s *Session) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer s.shutdown()

	logger.Info("播放会话已启动", logger.String("session", s.id), logger.Duration("poll", s.interval))
	for {
		select {
		case fn := <-s.commands:
			fn()
		case <-ticker.C:
			s.tick(ctx)
		case <-ctx.Done():
			return
		case <-s.done:
			return
		}
	}
}

// Close 停止事件循环
func (s *Session) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.done)
	}
}

// post 把回调投递到事件循环，会话关闭后丢弃
func (s *Session) post(fn func()) {
	select {
	case s.commands <- fn:
	case <-s.done:
	}
}

// call 在事件循环中执行 fn 并等待完成。不能在事件循环内部调用
func (s *Session) call(fn func()) error {
	finished := make(chan struct{})
	select {
	case s.commands <- func() { fn(); close(finished) }:
	case <-s.done:
		return ErrSessionClosed
	}
	select {
	case <-finished:
		return nil
	case <-s.done:
		return ErrSessionClosed
	}
}

// callErr 在事件循环中执行返回错误的 fn
func (s *Session) callErr(fn func() error) error {
	var err error
	if cerr := s.call(func() { err = fn() }); cerr != nil {
		return cerr
	}
	return err
}

func (s *Session) shutdown() {
	s.Close()
	s.destroyAll()
	s.resolver.SetCompilation(nil)
	logger.Info("播放会话已停止", logger.String("session", s.id))
}

// Tick 执行一次轮询：结尾检测、循环区间、同步修正与快照发布
func (s *Session) tick(ctx context.Context) {
	for _, e := range s.elements {
		e.CheckEnded()
	}
	s.applyLoop()

	for _, c := range s.syncer.Tick(s.ensemble.AllTrackHandlers()) {
		logger.Debug("同步修正",
			logger.String("session", s.id),
			logger.String("trackId", c.TrackID),
			logger.String("anchorId", c.AnchorID),
			logger.Float64("deviation", c.Deviation))
	}

	snap := s.buildSnapshot()
	if err := s.hub.BroadcastMessage(MsgTypeSnapshot, snap); err != nil {
		logger.Warn("广播快照失败", logger.ErrorField(err))
	}
	s.publish(ctx, snap)
}

// publish 异步写入快照，上一次写入未完成时跳过
func (s *Session) publish(ctx context.Context, snap *model.EnsembleSnapshot) {
	if s.publisher == nil || !s.publishing.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer s.publishing.Store(false)
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.publisher.PublishSnapshot(pctx, snap); err != nil {
			logger.Warn("发布快照失败", logger.String("session", s.id), logger.ErrorField(err))
		}
	}()
}

// applyLoop 循环音轨越过终点时回到起点；多轨模式下全部音轨一起回绕
func (s *Session) applyLoop() {
	if s.loop == nil {
		return
	}
	e, ok := s.elements[s.loop.TrackID]
	if !ok || !e.IsPlaying() || e.CurrentSeconds() < s.loop.To {
		return
	}
	targets := []*media.ElementHandler{e}
	if s.multi {
		targets = targets[:0]
		for _, el := range s.elements {
			targets = append(targets, el)
		}
	}
	for _, el := range targets {
		el.ResetGain()
		el.Seek(s.loop.From)
	}
	// 回绕后的位置跳变不是漂移，重新选锚点
	s.syncer.Reset()
}

// ========== 合集管理 ==========

// LoadCompilation 替换当前合集：销毁旧处理器，为每个音轨创建新的处理器
func (s *Session) LoadCompilation(ctx context.Context, c *model.Compilation) error {
	if c == nil {
		return errors.New("compilation is nil")
	}
	if err := c.Validate(); err != nil {
		return err
	}
	availability := s.probeTracks(ctx, c)

	return s.call(func() {
		s.destroyAll()
		s.compilation = c

		ids := make([]string, 0, len(c.Tracks))
		for _, tr := range c.Tracks {
			e := media.NewElementHandler(tr.ID, s.clk, media.ElementOptions{
				Kind: tr.MediaKind,
				// 远程调用不在事件循环内同步执行
				Dispatch: func(fn func()) { go s.post(fn) },
			})
			e.Load(tr.Duration)
			if !availability[tr.ID] {
				e.SetAvailable(false)
			}
			s.attach(tr.ID, e)
			ids = append(ids, tr.ID)
		}

		s.rebuildEnsemble(ids)
		s.nav.SetCompilation(c)
		s.resolver.SetCompilation(c)
		logger.Info("合集已加载",
			logger.String("session", s.id),
			logger.String("compilationId", c.ID),
			logger.Int("tracks", len(c.Tracks)))
	})
}

// ClearCompilation 清空合集并销毁全部处理器
func (s *Session) ClearCompilation() error {
	return s.call(func() {
		s.destroyAll()
		s.compilation = nil
		s.rebuildEnsemble(nil)
		s.nav.SetCompilation(nil)
		s.resolver.SetCompilation(nil)
	})
}

// RemoveTrack 移除一个音轨：取消订阅、移出引用集合、销毁处理器并清除同步状态
func (s *Session) RemoveTrack(trackID string) error {
	return s.callErr(func() error {
		if _, ok := s.elements[trackID]; !ok {
			return fmt.Errorf("%w: %s", ErrTrackNotFound, trackID)
		}
		s.detach(trackID)
		ids := make([]string, 0, len(s.elements))
		for _, id := range s.ensemble.TrackIDs() {
			if id != trackID {
				ids = append(ids, id)
			}
		}
		s.rebuildEnsemble(ids)
		if s.loop != nil && s.loop.TrackID == trackID {
			s.loop = nil
		}
		return nil
	})
}

// Compilation 当前合集
func (s *Session) Compilation() (*model.Compilation, error) {
	var c *model.Compilation
	err := s.call(func() { c = s.compilation })
	return c, err
}

func (s *Session) probeTracks(ctx context.Context, c *model.Compilation) map[string]bool {
	availability := make(map[string]bool, len(c.Tracks))
	for _, tr := range c.Tracks {
		availability[tr.ID] = true
		if s.probe == nil || tr.MediaKind == model.MediaKindEmbedded || tr.URL == "" || isExternalURL(tr.URL) {
			continue
		}
		ok, err := s.probe.Available(ctx, tr.URL)
		if err != nil {
			logger.Warn("检查媒体可用性失败", logger.String("trackId", tr.ID), logger.String("url", tr.URL), logger.ErrorField(err))
		}
		availability[tr.ID] = ok && err == nil
	}
	return availability
}

// attach 需要在事件循环中调用
func (s *Session) attach(trackID string, e *media.ElementHandler) {
	s.elements[trackID] = e
	s.refs.SetTrack(trackID, e)
	s.unsubs[trackID] = []func(){
		e.OnStateChange(func(state model.PlaybackState) {
			if err := s.hub.BroadcastMessage(MsgTypeState, StateData{TrackID: trackID, State: state.String()}); err != nil {
				logger.Warn("广播状态失败", logger.ErrorField(err))
			}
		}),
		e.RateController().OnPlaybackRateChanged(func(rate float64) {
			if err := s.hub.BroadcastMessage(MsgTypeRate, RateData{TrackID: trackID, Rate: rate}); err != nil {
				logger.Warn("广播速率失败", logger.ErrorField(err))
			}
		}),
	}
}

// detach 需要在事件循环中调用
func (s *Session) detach(trackID string) {
	for _, unsub := range s.unsubs[trackID] {
		unsub()
	}
	delete(s.unsubs, trackID)
	s.refs.Remove(multitrack.TrackRefKey(trackID))
	if e, ok := s.elements[trackID]; ok {
		e.Destroy()
		delete(s.elements, trackID)
	}
	s.syncer.Forget(trackID)
}

func (s *Session) destroyAll() {
	for id := range s.elements {
		s.detach(id)
	}
	s.refs.Clear()
	s.syncer.Reset()
	s.loop = nil
}

// rebuildEnsemble 音轨集合变化后重新创建合奏视图
func (s *Session) rebuildEnsemble(ids []string) {
	s.ensemble = multitrack.New(s.refs, ids)
	s.nav.SetEnsemble(s.ensemble)
}

// ========== 输入与导航 ==========

// HandleKey 把按键交给助记键解析器，返回按键是否被消费
func (s *Session) HandleKey(key string) (bool, error) {
	var consumed bool
	err := s.call(func() { consumed = s.resolver.HandleKey(key) })
	return consumed, err
}

// NavigateToCue 跳转到指定 cue
func (s *Session) NavigateToCue(trackID, cueID string) error {
	return s.callErr(func() error { return s.nav.NavigateToCue(trackID, cueID) })
}

// NavigateToMeasure 跳转到小节位置
func (s *Session) NavigateToMeasure(trackID string, pos model.MetricalPosition) error {
	return s.callErr(func() error { return s.nav.NavigateToMeasure(trackID, pos) })
}

// NextCue 下一个 cue
func (s *Session) NextCue() error {
	return s.callErr(s.nav.NextCue)
}

// PreviousCue 上一个 cue
func (s *Session) PreviousCue() error {
	return s.callErr(s.nav.PreviousCue)
}

// Play 播放
func (s *Session) Play() error {
	return s.callErr(s.nav.Play)
}

// Pause 暂停
func (s *Session) Pause() error {
	return s.callErr(s.nav.Pause)
}

// Toggle 播放/暂停切换
func (s *Session) Toggle() error {
	return s.callErr(s.nav.Toggle)
}

// Seek 定位音轨（多轨模式下为全部音轨）
func (s *Session) Seek(trackID string, seconds float64) error {
	return s.callErr(func() error { return s.nav.Seek(trackID, seconds) })
}

// Mute 设置静音，trackID 为空时作用于全部音轨
func (s *Session) Mute(trackID string, muted bool) error {
	return s.callErr(func() error {
		if trackID == "" {
			for _, h := range s.ensemble.AllTrackHandlers() {
				h.Mute(muted)
			}
			return nil
		}
		h, ok := s.ensemble.ResolveTrackHandler(trackID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrTrackNotFound, trackID)
		}
		h.Mute(muted)
		return nil
	})
}

// SetRate 设置音轨播放速率
func (s *Session) SetRate(trackID string, rate float64) error {
	return s.callErr(func() error {
		h, ok := s.ensemble.ResolveTrackHandler(trackID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrTrackNotFound, trackID)
		}
		return h.RateController().SetPlaybackRate(rate)
	})
}

// SetLoop 在两个 cue 之间循环；toCueID 为空时循环到音轨结尾
func (s *Session) SetLoop(trackID, fromCueID, toCueID string) error {
	return s.callErr(func() error {
		tr, ok := s.compilation.Track(trackID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrTrackNotFound, trackID)
		}
		from, ok := tr.CueByID(fromCueID)
		if !ok {
			return fmt.Errorf("%w: %s", navigation.ErrCueNotFound, fromCueID)
		}
		to := tr.Duration
		if e, ok := s.elements[trackID]; ok && e.Duration() > 0 {
			to = e.Duration()
		}
		if toCueID != "" {
			end, ok := tr.CueByID(toCueID)
			if !ok {
				return fmt.Errorf("%w: %s", navigation.ErrCueNotFound, toCueID)
			}
			to = end.Time
		}
		if to <= from.Time {
			return fmt.Errorf("invalid loop range %.3f-%.3f", from.Time, to)
		}
		s.loop = &LoopRange{TrackID: trackID, From: from.Time, To: to}
		return nil
	})
}

// ClearLoop 取消循环
func (s *Session) ClearLoop() error {
	return s.call(func() { s.loop = nil })
}

// SetSettings 更新播放设置
func (s *Session) SetSettings(settings model.Settings) error {
	return s.call(func() {
		s.nav.SetSettings(settings)
		s.resolver.SetTimeout(settings.ShortcutTimeout())
	})
}

// Settings 当前播放设置
func (s *Session) Settings() (model.Settings, error) {
	var settings model.Settings
	err := s.call(func() { settings = s.nav.Settings() })
	return settings, err
}

// Snapshot 当前合奏快照
func (s *Session) Snapshot() (*model.EnsembleSnapshot, error) {
	var snap *model.EnsembleSnapshot
	err := s.call(func() { snap = s.buildSnapshot() })
	return snap, err
}

// buildSnapshot 需要在事件循环中调用
func (s *Session) buildSnapshot() *model.EnsembleSnapshot {
	snap := &model.EnsembleSnapshot{
		SessionID:         s.id,
		ActiveTrackID:     s.nav.ActiveTrackID(),
		AllPlaying:        s.ensemble.IsAllPlaying(),
		AllTrackLoaded:    s.ensemble.IsAllTrackLoaded(),
		AllTrackMuted:     s.ensemble.IsAllTrackMuted(),
		AllMediaAvailable: s.ensemble.IsAllMediaAvailable(),
		AnyFading:         s.ensemble.IsAnyFading(),
		AllTrackPosition:  s.ensemble.AllTrackPosition(),
		ShortcutState:     s.resolver.State().String(),
		ShortcutDigits:    s.resolver.Digits(),
		Tracks:            []model.TrackStatus{},
		UpdatedAt:         s.base.Now().UnixMilli(),
	}
	if s.compilation != nil {
		snap.CompilationID = s.compilation.ID
	}
	for _, h := range s.ensemble.AllTrackHandlers() {
		snap.Tracks = append(snap.Tracks, model.TrackStatus{
			TrackID:        h.ID(),
			State:          h.State(),
			Position:       h.CurrentSeconds(),
			Duration:       h.Duration(),
			Muted:          h.IsMuted(),
			Fading:         h.IsFading(),
			Gain:           h.Gain(),
			PlaybackRate:   h.RateController().PlaybackRate(),
			MediaAvailable: h.IsMediaAvailable(),
		})
	}
	return snap
}

// ========== 回调 ==========

func (s *Session) onSelect(sel mnemonic.Selection) {
	navigation.LogFailure("mnemonic", s.nav.NavigateToCue(sel.TrackID, sel.CueID))
}

func (s *Session) onNavigate(ev navigation.NavigateEvent) {
	if err := s.hub.BroadcastMessage(MsgTypeNavigate, ev); err != nil {
		logger.Warn("广播导航事件失败", logger.ErrorField(err))
	}
}

func (s *Session) onFade(ev navigation.FadeEvent) {
	if err := s.hub.BroadcastMessage(MsgTypeFade, ev); err != nil {
		logger.Warn("广播渐变事件失败", logger.ErrorField(err))
	}
}

func isExternalURL(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}
