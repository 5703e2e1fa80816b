package multitrack

import (
	"time"

	"Replayer/core/media"
	"Replayer/model"
)

// stubHandler 状态完全由测试控制的处理器
type stubHandler struct {
	id        string
	playing   bool
	loaded    bool
	available bool
	muted     bool
	fading    bool
	pos       float64
	seeks     []float64
	rate      *stubRate
}

func newStub(id string, pos float64) *stubHandler {
	return &stubHandler{id: id, playing: true, loaded: true, available: true, pos: pos, rate: &stubRate{rate: 1}}
}

func (h *stubHandler) ID() string { return h.id }
func (h *stubHandler) State() model.PlaybackState {
	switch {
	case !h.available:
		return model.PlaybackStateUnavailable
	case !h.loaded:
		return model.PlaybackStateUnloaded
	case h.playing:
		return model.PlaybackStatePlaying
	}
	return model.PlaybackStateReady
}
func (h *stubHandler) CurrentSeconds() float64 { return h.pos }
func (h *stubHandler) Duration() float64       { return 600 }
func (h *stubHandler) IsPlaying() bool         { return h.playing }
func (h *stubHandler) IsMuted() bool           { return h.muted }
func (h *stubHandler) IsFading() bool          { return h.fading }
func (h *stubHandler) IsTrackLoaded() bool     { return h.loaded }
func (h *stubHandler) IsMediaAvailable() bool  { return h.available }
func (h *stubHandler) Seek(seconds float64) {
	h.seeks = append(h.seeks, seconds)
	h.pos = seconds
}
func (h *stubHandler) Play()                                          { h.playing = true }
func (h *stubHandler) Pause()                                         { h.playing = false }
func (h *stubHandler) Mute(m bool)                                    { h.muted = m }
func (h *stubHandler) Gain() float64                                  { return 1 }
func (h *stubHandler) Fade(model.FadeDirection, time.Duration, func(bool)) {}
func (h *stubHandler) RateController() media.PlaybackRateController  { return h.rate }
func (h *stubHandler) OnStateChange(func(model.PlaybackState)) func() { return func() {} }
func (h *stubHandler) Destroy()                                       {}

type stubRate struct {
	rate float64
	sets []float64
}

func (r *stubRate) PlaybackRate() float64 { return r.rate }
func (r *stubRate) SetPlaybackRate(rate float64) error {
	if err := media.ValidateRate(rate); err != nil {
		return err
	}
	r.sets = append(r.sets, rate)
	r.rate = rate
	return nil
}
func (r *stubRate) OnPlaybackRateChanged(func(float64)) func() { return func() {} }
func (r *stubRate) Destroy()                                  {}
