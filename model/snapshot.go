package model

// ========== 非持久化结构（用于 Redis 和 WebSocket） ==========

// TrackStatus 单个音轨的播放状态
type TrackStatus struct {
	TrackID        string        `json:"trackId"`
	State          PlaybackState `json:"state"`
	Position       float64       `json:"position"` // 秒
	Duration       float64       `json:"duration"` // 秒
	Muted          bool          `json:"muted"`
	Fading         bool          `json:"fading"`
	Gain           float64       `json:"gain"`
	PlaybackRate   float64       `json:"playbackRate"`
	MediaAvailable bool          `json:"mediaAvailable"`
}

// EnsembleSnapshot 整个合奏的状态快照
type EnsembleSnapshot struct {
	SessionID         string        `json:"sessionId"`
	CompilationID     string        `json:"compilationId,omitempty"`
	ActiveTrackID     string        `json:"activeTrackId,omitempty"`
	AllPlaying        bool          `json:"allPlaying"`
	AllTrackLoaded    bool          `json:"allTrackLoaded"`
	AllTrackMuted     bool          `json:"allTrackMuted"`
	AllMediaAvailable bool          `json:"allMediaAvailable"`
	AnyFading         bool          `json:"anyFading"`
	AllTrackPosition  float64       `json:"allTrackPosition"`
	ShortcutState     string        `json:"shortcutState"`
	ShortcutDigits    string        `json:"shortcutDigits,omitempty"`
	Tracks            []TrackStatus `json:"tracks"`
	UpdatedAt         int64         `json:"updatedAt"` // 毫秒时间戳
}
