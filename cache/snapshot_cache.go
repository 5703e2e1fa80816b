package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"Replayer/model"
)

const (
	sessionSnapshotKey = "session:%s:snapshot" // Hash: 合奏快照
	sessionEventsChan  = "session:%s:events"   // Pub/Sub: 快照推送
	latestSessionKey   = "session:latest"      // String: 最近发布快照的会话ID
	defaultSnapshotTTL = time.Minute
)

// SnapshotCache 会话快照缓存
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSnapshotCache 创建快照缓存，client 为 nil 时使用全局客户端
func NewSnapshotCache(client *redis.Client, ttl time.Duration) *SnapshotCache {
	if client == nil {
		client = RedisClient
	}
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}
	return &SnapshotCache{client: client, ttl: ttl}
}

// SnapshotChannel 返回会话快照的订阅频道
func SnapshotChannel(sessionID string) string {
	return fmt.Sprintf(sessionEventsChan, sessionID)
}

// PublishSnapshot 写入快照并推送到订阅频道
func (c *SnapshotCache) PublishSnapshot(ctx context.Context, snap *model.EnsembleSnapshot) error {
	if c.client == nil {
		return errNotInitialized
	}

	tracksJSON, err := json.Marshal(snap.Tracks)
	if err != nil {
		return fmt.Errorf("failed to marshal tracks: %w", err)
	}
	full, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	key := fmt.Sprintf(sessionSnapshotKey, snap.SessionID)
	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"compilation_id":      snap.CompilationID,
		"active_track_id":     snap.ActiveTrackID,
		"all_playing":         snap.AllPlaying,
		"all_track_loaded":    snap.AllTrackLoaded,
		"all_track_muted":     snap.AllTrackMuted,
		"all_media_available": snap.AllMediaAvailable,
		"any_fading":          snap.AnyFading,
		"position":            snap.AllTrackPosition,
		"shortcut_state":      snap.ShortcutState,
		"shortcut_digits":     snap.ShortcutDigits,
		"tracks":              string(tracksJSON),
		"updated_at":          snap.UpdatedAt,
	})
	pipe.Expire(ctx, key, c.ttl)
	pipe.Set(ctx, latestSessionKey, snap.SessionID, c.ttl)
	pipe.Publish(ctx, SnapshotChannel(snap.SessionID), full)
	_, err = pipe.Exec(ctx)
	return err
}

// GetSnapshot 读取会话快照，不存在时返回 nil
func (c *SnapshotCache) GetSnapshot(ctx context.Context, sessionID string) (*model.EnsembleSnapshot, error) {
	if c.client == nil {
		return nil, errNotInitialized
	}

	key := fmt.Sprintf(sessionSnapshotKey, sessionID)
	result, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, nil
	}

	snap := &model.EnsembleSnapshot{
		SessionID:      sessionID,
		CompilationID:  result["compilation_id"],
		ActiveTrackID:  result["active_track_id"],
		ShortcutState:  result["shortcut_state"],
		ShortcutDigits: result["shortcut_digits"],
	}
	snap.AllPlaying = parseBool(result["all_playing"])
	snap.AllTrackLoaded = parseBool(result["all_track_loaded"])
	snap.AllTrackMuted = parseBool(result["all_track_muted"])
	snap.AllMediaAvailable = parseBool(result["all_media_available"])
	snap.AnyFading = parseBool(result["any_fading"])
	if v, ok := result["position"]; ok {
		snap.AllTrackPosition, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := result["updated_at"]; ok {
		snap.UpdatedAt, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := result["tracks"]; ok && v != "" {
		if err := json.Unmarshal([]byte(v), &snap.Tracks); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tracks: %w", err)
		}
	}
	return snap, nil
}

// LatestSessionID 最近发布快照的会话
func (c *SnapshotCache) LatestSessionID(ctx context.Context) (string, error) {
	if c.client == nil {
		return "", errNotInitialized
	}
	id, err := c.client.Get(ctx, latestSessionKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return id, err
}

// Subscribe 订阅会话快照推送
func (c *SnapshotCache) Subscribe(ctx context.Context, sessionID string) (*redis.PubSub, error) {
	if c.client == nil {
		return nil, errNotInitialized
	}
	sub := c.client.Subscribe(ctx, SnapshotChannel(sessionID))
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	return sub, nil
}

// ClearSession 删除会话快照
func (c *SnapshotCache) ClearSession(ctx context.Context, sessionID string) error {
	if c.client == nil {
		return errNotInitialized
	}
	return c.client.Del(ctx, fmt.Sprintf(sessionSnapshotKey, sessionID)).Err()
}

func parseBool(v string) bool {
	return v == "1" || v == "true"
}
