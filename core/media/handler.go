// Package media 定义单音轨媒体处理器的能力接口，以及速率控制、淡入淡出与预卷计算
package media

import (
	"time"

	"Replayer/model"
)

// MediaHandler 单个音轨的播放能力。
// 实例拥有自己的播放资源，Destroy 后释放资源并取消所有通知与定时器。
type MediaHandler interface {
	// ID 返回所属音轨ID
	ID() string
	State() model.PlaybackState
	// CurrentSeconds 当前播放位置（秒）
	CurrentSeconds() float64
	// Duration 媒体时长（秒），未加载时为 0
	Duration() float64

	IsPlaying() bool
	IsMuted() bool
	IsFading() bool
	IsTrackLoaded() bool
	IsMediaAvailable() bool

	Seek(seconds float64)
	Play()
	Pause()
	Mute(muted bool)
	// Fade 按方向和时长改变增益，完成或被取代时回调 onDone
	Fade(dir model.FadeDirection, duration time.Duration, onDone func(completed bool))
	// Gain 当前增益 [0,1]
	Gain() float64

	RateController() PlaybackRateController
	// OnStateChange 订阅播放状态变化，返回取消订阅函数
	OnStateChange(fn func(model.PlaybackState)) (unsubscribe func())
	Destroy()
}

// PreRollStart 计算带预卷的起播位置：
// cue 时间减去默认预卷，开启 AddFadeInPreRoll 时再减去淡入时长，结果不小于 0
func PreRollStart(cueTime float64, s model.Settings) float64 {
	start := cueTime - s.DefaultPreRollDuration
	if s.AddFadeInPreRoll {
		start -= s.FadeInTime().Seconds()
	}
	if start < 0 {
		return 0
	}
	return start
}
