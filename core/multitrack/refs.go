// Package multitrack 在多个音轨处理器之上提供合奏查询与同步策略
package multitrack

import (
	"sort"
	"strings"
	"sync"

	"Replayer/core/media"
)

// TrackRefPrefix 引用集合中音轨条目的键前缀
const TrackRefPrefix = "track-"

// TrackRefKey 返回音轨在引用集合中的键
func TrackRefKey(trackID string) string {
	return TrackRefPrefix + trackID
}

// Refs 会话层持有的处理器引用集合。
// 一个键下可能挂多个实例（例如重新挂载期间），解析时取第一个非空实例。
type Refs struct {
	mu      sync.RWMutex
	entries map[string][]media.MediaHandler
}

// NewRefs 创建空集合
func NewRefs() *Refs {
	return &Refs{entries: make(map[string][]media.MediaHandler)}
}

// Set 设置键对应的实例列表
func (r *Refs) Set(key string, handlers ...media.MediaHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = append([]media.MediaHandler(nil), handlers...)
}

// SetTrack 以音轨键登记处理器
func (r *Refs) SetTrack(trackID string, h media.MediaHandler) {
	r.Set(TrackRefKey(trackID), h)
}

// Remove 删除键，返回被删除的实例
func (r *Refs) Remove(key string) []media.MediaHandler {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := r.entries[key]
	delete(r.entries, key)
	return removed
}

// Clear 清空集合，返回全部实例
func (r *Refs) Clear() []media.MediaHandler {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []media.MediaHandler
	for _, hs := range r.entries {
		all = append(all, hs...)
	}
	r.entries = make(map[string][]media.MediaHandler)
	return all
}

// Snapshot 返回集合的浅拷贝
func (r *Refs) Snapshot() map[string][]media.MediaHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]media.MediaHandler, len(r.entries))
	for k, v := range r.entries {
		out[k] = append([]media.MediaHandler(nil), v...)
	}
	return out
}

// ResolveTrackHandler 解析音轨的第一个非空实例
func (r *Refs) ResolveTrackHandler(trackID string) (media.MediaHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return firstNonNil(r.entries[TrackRefKey(trackID)])
}

// Keys 返回排序后的全部键
func (r *Refs) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func firstNonNil(hs []media.MediaHandler) (media.MediaHandler, bool) {
	for _, h := range hs {
		if h != nil {
			return h, true
		}
	}
	return nil, false
}

func trackIDFromKey(key string) (string, bool) {
	if !strings.HasPrefix(key, TrackRefPrefix) {
		return "", false
	}
	return strings.TrimPrefix(key, TrackRefPrefix), true
}
