package media

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Replayer/core/clock"
	"Replayer/model"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestElement(kind model.MediaKind) (*ElementHandler, *clock.Fake) {
	clk := clock.NewFake(epoch)
	e := NewElementHandler("t1", clk, ElementOptions{
		Kind:     kind,
		Dispatch: func(fn func()) { fn() },
	})
	e.Load(120)
	return e, clk
}

func TestLocalRateSingleEmission(t *testing.T) {
	e, _ := newTestElement(model.MediaKindLocal)
	ctl := e.RateController()
	require.IsType(t, &LocalRateController{}, ctl)

	var got []float64
	ctl.OnPlaybackRateChanged(func(rate float64) { got = append(got, rate) })

	require.NoError(t, ctl.SetPlaybackRate(1.5))
	assert.Equal(t, []float64{1.5}, got)
	assert.Equal(t, 1.5, ctl.PlaybackRate())

	// 相同速率不重复通知
	require.NoError(t, ctl.SetPlaybackRate(1.5))
	assert.Len(t, got, 1)

	// 资源自身变化也会通知
	e.SetRate(0.75)
	assert.Equal(t, []float64{1.5, 0.75}, got)
}

func TestLocalRateAfterDestroy(t *testing.T) {
	e, _ := newTestElement(model.MediaKindLocal)
	ctl := e.RateController()

	calls := 0
	ctl.OnPlaybackRateChanged(func(float64) { calls++ })
	require.NoError(t, ctl.SetPlaybackRate(1.25))
	require.Equal(t, 1, calls)

	ctl.Destroy()
	ctl.Destroy()

	e.SetRate(2)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1.25, ctl.PlaybackRate(), "last known rate")
	assert.NoError(t, ctl.SetPlaybackRate(3))
	assert.Equal(t, 2.0, e.Rate(), "set after destroy is a no-op")
}

func TestInvalidRates(t *testing.T) {
	e, _ := newTestElement(model.MediaKindLocal)
	ctl := e.RateController()
	for _, rate := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		err := ctl.SetPlaybackRate(rate)
		assert.ErrorIs(t, err, ErrInvalidPlaybackRate)
	}
	assert.Equal(t, 1.0, ctl.PlaybackRate())
}

func TestEmbeddedUsesRemoteController(t *testing.T) {
	e, _ := newTestElement(model.MediaKindEmbedded)
	ctl, ok := e.RateController().(*RemoteRateController)
	require.True(t, ok)

	var got []float64
	ctl.OnPlaybackRateChanged(func(rate float64) { got = append(got, rate) })
	require.NoError(t, ctl.SetPlaybackRate(1.5))

	assert.Equal(t, []float64{1.5}, got)
	assert.Equal(t, 1.5, ctl.PlaybackRate())
	_, pending := ctl.PendingRate()
	assert.False(t, pending)
}

// fakeRemote 记录请求，确认由测试手动触发
type fakeRemote struct {
	mu       sync.Mutex
	requests []float64
	failWith error
	subs     listeners[float64]
}

func (f *fakeRemote) SetPlaybackRate(ctx context.Context, rate float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.requests = append(f.requests, rate)
	return nil
}

func (f *fakeRemote) GetPlaybackRate(ctx context.Context) (float64, error) {
	return 1, nil
}

func (f *fakeRemote) OnPlaybackRateChange(fn func(rate float64)) func() {
	return f.subs.add(fn)
}

func TestRemoteRatePendingUntilConfirmed(t *testing.T) {
	remote := &fakeRemote{}
	ctl := NewRemoteRateController(remote, RemoteOptions{Dispatch: func(fn func()) { fn() }})

	calls := 0
	ctl.OnPlaybackRateChanged(func(float64) { calls++ })

	require.NoError(t, ctl.SetPlaybackRate(1.5))
	assert.Equal(t, []float64{1.5}, remote.requests)
	assert.Equal(t, 1.0, ctl.PlaybackRate(), "cached rate waits for confirmation")
	pending, ok := ctl.PendingRate()
	assert.True(t, ok)
	assert.Equal(t, 1.5, pending)
	assert.Equal(t, 0, calls)

	remote.subs.emit(1.5)
	assert.Equal(t, 1.5, ctl.PlaybackRate())
	_, ok = ctl.PendingRate()
	assert.False(t, ok)
	assert.Equal(t, 1, calls)

	ctl.Destroy()
	remote.subs.emit(2)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1.5, ctl.PlaybackRate())
}

func TestRemoteRateFailureClearsPending(t *testing.T) {
	remote := &fakeRemote{failWith: errors.New("player gone")}
	ctl := NewRemoteRateController(remote, RemoteOptions{Dispatch: func(fn func()) { fn() }})

	require.NoError(t, ctl.SetPlaybackRate(2))
	_, ok := ctl.PendingRate()
	assert.False(t, ok)
	assert.Equal(t, 1.0, ctl.PlaybackRate())
}
