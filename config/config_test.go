package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "seek", cfg.SyncMode)
	assert.Equal(t, 250*time.Millisecond, cfg.SyncPollInterval)
	assert.Equal(t, 1000, cfg.Playback.FadeInDuration)
	assert.Equal(t, 1000, cfg.Playback.FadeOutDuration)
	assert.True(t, cfg.Playback.AddFadeInPreRoll)
	assert.Equal(t, 0.0, cfg.Playback.DefaultPreRollDuration)
	assert.Equal(t, 1000, cfg.Playback.KeyboardShortcutTimeout)
	assert.Equal(t, "127.0.0.1:6379", cfg.RedisAddr())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("SYNC_MODE", "RATE")
	t.Setenv("SYNC_POLL_INTERVAL", "100")
	t.Setenv("FADE_IN_DURATION", "0")
	t.Setenv("ADD_FADE_IN_PRE_ROLL", "false")
	t.Setenv("DEFAULT_PRE_ROLL_DURATION", "1.5")
	t.Setenv("MULTITRACK", "true")
	t.Setenv("REDIS_DB", "3")

	cfg := FromEnv()

	assert.Equal(t, "rate", cfg.SyncMode)
	assert.Equal(t, 100*time.Millisecond, cfg.SyncPollInterval)
	assert.Equal(t, 0, cfg.Playback.FadeInDuration)
	assert.False(t, cfg.Playback.AddFadeInPreRoll)
	assert.Equal(t, 1.5, cfg.Playback.DefaultPreRollDuration)
	assert.True(t, cfg.Multitrack)
	assert.Equal(t, 3, cfg.RedisDB)
}

func TestFromEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("SYNC_MODE", "drift")
	t.Setenv("KEYBOARD_SHORTCUT_TIMEOUT", "soon")
	t.Setenv("MINIO_USE_SSL", "maybe")

	cfg := FromEnv()

	assert.Equal(t, "seek", cfg.SyncMode)
	assert.Equal(t, 1000, cfg.Playback.KeyboardShortcutTimeout)
	assert.False(t, cfg.MinioUseSSL)
}

func TestPlaybackDefaultsSettings(t *testing.T) {
	d := PlaybackDefaults{FadeInDuration: 800, FadeOutDuration: 400, AddFadeInPreRoll: true, DefaultPreRollDuration: 0.25, KeyboardShortcutTimeout: 600}
	s := d.Settings()

	assert.Equal(t, 800*time.Millisecond, s.FadeInTime())
	assert.Equal(t, 400*time.Millisecond, s.FadeOutTime())
	assert.True(t, s.AddFadeInPreRoll)
	assert.Equal(t, 0.25, s.DefaultPreRollDuration)
	assert.Equal(t, 600*time.Millisecond, s.ShortcutTimeout())
}
