package multitrack

import (
	"sort"

	"Replayer/core/media"
)

// MultitrackHandler 引用集合之上的只读合奏视图，不拥有处理器。
// 音轨集合变化时重新创建；所有查询对空集合或无法解析的引用返回安全默认值。
type MultitrackHandler struct {
	refs     *Refs
	trackIDs []string
}

// New 基于引用集合和权威音轨列表创建视图
func New(refs *Refs, trackIDs []string) *MultitrackHandler {
	return &MultitrackHandler{
		refs:     refs,
		trackIDs: append([]string(nil), trackIDs...),
	}
}

// TrackIDs 权威音轨列表
func (m *MultitrackHandler) TrackIDs() []string {
	return append([]string(nil), m.trackIDs...)
}

// AllTrackHandlers 返回全部可解析的音轨处理器。
// 先按权威音轨列表排序，其余键按字典序附在后面。
func (m *MultitrackHandler) AllTrackHandlers() []media.MediaHandler {
	if m == nil || m.refs == nil {
		return nil
	}
	snapshot := m.refs.Snapshot()

	var out []media.MediaHandler
	seen := make(map[string]bool, len(snapshot))
	for _, id := range m.trackIDs {
		key := TrackRefKey(id)
		if seen[key] {
			continue
		}
		seen[key] = true
		if h, ok := firstNonNil(snapshot[key]); ok {
			out = append(out, h)
		}
	}

	rest := make([]string, 0, len(snapshot))
	for key := range snapshot {
		if _, isTrack := trackIDFromKey(key); isTrack && !seen[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		if h, ok := firstNonNil(snapshot[key]); ok {
			out = append(out, h)
		}
	}
	return out
}

// ResolveTrackHandler 按音轨ID解析处理器
func (m *MultitrackHandler) ResolveTrackHandler(trackID string) (media.MediaHandler, bool) {
	if m == nil || m.refs == nil {
		return nil, false
	}
	return m.refs.ResolveTrackHandler(trackID)
}

// IsAllPlaying 全部音轨都在播放；空集合为 false
func (m *MultitrackHandler) IsAllPlaying() bool {
	return m.all(media.MediaHandler.IsPlaying)
}

// IsAllTrackLoaded 全部音轨都已加载；空集合为 false
func (m *MultitrackHandler) IsAllTrackLoaded() bool {
	return m.all(media.MediaHandler.IsTrackLoaded)
}

// IsAllTrackMuted 全部音轨都已静音；空集合为 false
func (m *MultitrackHandler) IsAllTrackMuted() bool {
	return m.all(media.MediaHandler.IsMuted)
}

// IsAllMediaAvailable 全部音轨媒体可用；空集合为 false
func (m *MultitrackHandler) IsAllMediaAvailable() bool {
	return m.all(media.MediaHandler.IsMediaAvailable)
}

// IsAnyFading 至少一个音轨正在渐变
func (m *MultitrackHandler) IsAnyFading() bool {
	return m.any(media.MediaHandler.IsFading)
}

// IsAnyPlaying 至少一个音轨正在播放
func (m *MultitrackHandler) IsAnyPlaying() bool {
	return m.any(media.MediaHandler.IsPlaying)
}

// AllTrackPosition 全部音轨位置的算术平均，仅用于显示，不作为同步依据
func (m *MultitrackHandler) AllTrackPosition() float64 {
	handlers := m.AllTrackHandlers()
	if len(handlers) == 0 {
		return 0
	}
	sum := 0.0
	for _, h := range handlers {
		sum += h.CurrentSeconds()
	}
	return sum / float64(len(handlers))
}

func (m *MultitrackHandler) all(pred func(media.MediaHandler) bool) bool {
	handlers := m.AllTrackHandlers()
	if len(handlers) == 0 {
		return false
	}
	for _, h := range handlers {
		if !pred(h) {
			return false
		}
	}
	return true
}

func (m *MultitrackHandler) any(pred func(media.MediaHandler) bool) bool {
	for _, h := range m.AllTrackHandlers() {
		if pred(h) {
			return true
		}
	}
	return false
}
