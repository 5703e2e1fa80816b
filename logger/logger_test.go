package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, WarnLevel, ParseLevel(" warn "))
	assert.Equal(t, ErrorLevel, ParseLevel("error"))
	assert.Equal(t, InfoLevel, ParseLevel("verbose"))
	assert.Equal(t, InfoLevel, ParseLevel(""))
}

func TestHelpersWriteToGlobalLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := ReplaceForTest(zap.New(core))
	defer restore()

	Info("cue selected", String("trackId", "t1"), Float64("time", 6))
	Warn("redis unavailable", ErrorField(assert.AnError))
	Debug("tick")

	entries := logs.All()
	if assert.Len(t, entries, 3) {
		assert.Equal(t, "cue selected", entries[0].Message)
		assert.Equal(t, "t1", entries[0].ContextMap()["trackId"])
		assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	}
}

func TestNopBeforeInit(t *testing.T) {
	restore := ReplaceForTest(zap.NewNop())
	defer restore()

	assert.NotPanics(t, func() {
		Info("nothing happens")
		Sync()
	})
}
