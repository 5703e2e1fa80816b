package model

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidSettings = errors.New("invalid playback settings")

// PlaybackState 单个音轨媒体资源的生命周期状态
type PlaybackState int

const (
	PlaybackStateUnavailable PlaybackState = iota // 媒体不可用（加载失败、资源缺失）
	PlaybackStateUnloaded                         // 尚未加载
	PlaybackStateReady                            // 已加载，未播放
	PlaybackStatePlaying                          // 正在播放
)

var playbackStateNames = map[PlaybackState]string{
	PlaybackStateUnavailable: "unavailable",
	PlaybackStateUnloaded:    "unloaded",
	PlaybackStateReady:       "ready",
	PlaybackStatePlaying:     "playing",
}

func (s PlaybackState) String() string {
	if name, ok := playbackStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("PlaybackState(%d)", int(s))
}

// MarshalText 以名称形式序列化
func (s PlaybackState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText 解析名称
func (s *PlaybackState) UnmarshalText(text []byte) error {
	for state, name := range playbackStateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown playback state %q", string(text))
}

// FadeDirection 淡入或淡出
type FadeDirection int

const (
	FadeIn FadeDirection = iota
	FadeOut
)

func (d FadeDirection) String() string {
	if d == FadeOut {
		return "out"
	}
	return "in"
}

// MarshalText 序列化为 "in" / "out"
func (d FadeDirection) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText 解析 "in" / "out"
func (d *FadeDirection) UnmarshalText(text []byte) error {
	switch string(text) {
	case "in":
		*d = FadeIn
	case "out":
		*d = FadeOut
	default:
		return fmt.Errorf("unknown fade direction %q", string(text))
	}
	return nil
}

// Settings 播放设置，核心只读
type Settings struct {
	ID                      int64     `json:"-" gorm:"primaryKey;autoIncrement"`
	FadeInDuration          int       `json:"fadeInDuration"`  // ms
	FadeOutDuration         int       `json:"fadeOutDuration"` // ms
	AddFadeInPreRoll        bool      `json:"addFadeInPreRoll"`
	DefaultPreRollDuration  float64   `json:"defaultPreRollDuration"`  // seconds
	KeyboardShortcutTimeout int       `json:"keyboardShortcutTimeout"` // ms
	UpdatedAt               time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (Settings) TableName() string {
	return "settings"
}

// FadeInTime 返回淡入时长
func (s Settings) FadeInTime() time.Duration {
	return clampMillis(s.FadeInDuration)
}

// FadeOutTime 返回淡出时长
func (s Settings) FadeOutTime() time.Duration {
	return clampMillis(s.FadeOutDuration)
}

// ShortcutTimeout 返回助记键静默超时
func (s Settings) ShortcutTimeout() time.Duration {
	return clampMillis(s.KeyboardShortcutTimeout)
}

// Validate 拒绝负的时长
func (s Settings) Validate() error {
	switch {
	case s.FadeInDuration < 0:
		return fmt.Errorf("%w: fadeInDuration %d", ErrInvalidSettings, s.FadeInDuration)
	case s.FadeOutDuration < 0:
		return fmt.Errorf("%w: fadeOutDuration %d", ErrInvalidSettings, s.FadeOutDuration)
	case s.DefaultPreRollDuration < 0:
		return fmt.Errorf("%w: defaultPreRollDuration %v", ErrInvalidSettings, s.DefaultPreRollDuration)
	case s.KeyboardShortcutTimeout < 0:
		return fmt.Errorf("%w: keyboardShortcutTimeout %d", ErrInvalidSettings, s.KeyboardShortcutTimeout)
	}
	return nil
}

func clampMillis(ms int) time.Duration {
	if ms < 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
