package multitrack

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Replayer/core/clock"
	"Replayer/core/media"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func handlers(hs ...*stubHandler) []media.MediaHandler {
	out := make([]media.MediaHandler, len(hs))
	for i, h := range hs {
		out[i] = h
	}
	return out
}

func TestSyncCorrectsTrailingTrack(t *testing.T) {
	clk := clock.NewFake(epoch)
	s := NewSynchronizer(clk, SyncOptions{})
	lead, trail := newStub("b", 9.8), newStub("a", 0)
	trail.playing = false

	// 先开始播放的音轨成为锚点
	assert.Nil(t, s.Tick(handlers(lead, trail)))

	clk.Advance(250 * time.Millisecond)
	trail.playing = true
	lead.pos, trail.pos = 10.020, 10.000
	corrections := s.Tick(handlers(trail, lead))

	require.Len(t, corrections, 1)
	c := corrections[0]
	assert.Equal(t, "a", c.TrackID)
	assert.Equal(t, "b", c.AnchorID)
	assert.InDelta(t, -0.020, c.Deviation, 1e-9)
	assert.Equal(t, CorrectionSeek, c.Kind)
	assert.Equal(t, []float64{10.020}, trail.seeks)
	assert.Empty(t, lead.seeks, "anchor is never corrected")
}

func TestSyncWithinToleranceNoCorrection(t *testing.T) {
	clk := clock.NewFake(epoch)
	s := NewSynchronizer(clk, SyncOptions{})
	a, b := newStub("a", 10.000), newStub("b", 10.010)

	assert.Empty(t, s.Tick(handlers(a, b)))
	assert.Empty(t, a.seeks)
	assert.Empty(t, b.seeks)
}

func TestSyncSameTickAnchorsLeadingTrack(t *testing.T) {
	clk := clock.NewFake(epoch)
	s := NewSynchronizer(clk, SyncOptions{})
	a, b := newStub("a", 10.000), newStub("b", 10.020)

	corrections := s.Tick(handlers(b, a))
	require.Len(t, corrections, 1)
	assert.Equal(t, "b", s.Anchor())
	assert.Equal(t, "a", corrections[0].TrackID)
	assert.InDelta(t, -0.020, corrections[0].Deviation, 1e-9)
	assert.Equal(t, []float64{10.020}, a.seeks)
	assert.Empty(t, b.seeks, "leading track is left alone")
}

func TestSyncSameTickSamePositionTieBreakByTrackID(t *testing.T) {
	clk := clock.NewFake(epoch)
	s := NewSynchronizer(clk, SyncOptions{})
	a, b := newStub("a", 10.0), newStub("b", 10.0)

	assert.Empty(t, s.Tick(handlers(b, a)))
	assert.Equal(t, "a", s.Anchor())
}

func TestSyncIgnoresNonPlayingTracks(t *testing.T) {
	clk := clock.NewFake(epoch)
	s := NewSynchronizer(clk, SyncOptions{})
	a, b, c := newStub("a", 10), newStub("b", 50), newStub("c", 80)
	b.playing = false
	c.available = false

	assert.Empty(t, s.Tick(handlers(a, b, c)))
	assert.Empty(t, b.seeks)
	assert.Empty(t, c.seeks)
}

func TestSyncPendingBlocksReissue(t *testing.T) {
	clk := clock.NewFake(epoch)
	s := NewSynchronizer(clk, SyncOptions{Mode: CorrectionRate})
	a, b := newStub("a", 10.0), newStub("b", 10.1)

	corrections := s.Tick(handlers(a, b))
	require.Len(t, corrections, 1)
	assert.Equal(t, "a", corrections[0].TrackID)
	assert.Equal(t, CorrectionRate, corrections[0].Kind)
	assert.InDelta(t, 1+0.05, corrections[0].Rate, 1e-9, "nudge is clamped")
	assert.True(t, s.Pending("a"))

	// 仍超出容差，但修正尚未稳定，不重复发出
	clk.Advance(250 * time.Millisecond)
	assert.Empty(t, s.Tick(handlers(a, b)))
	assert.Len(t, a.rate.sets, 1)

	// 回到容差内后恢复锚点速率
	a.pos = 10.095
	assert.Empty(t, s.Tick(handlers(a, b)))
	assert.False(t, s.Pending("a"))
	assert.Equal(t, 1.0, a.rate.rate)
}

func TestSyncRateNudgeTowardsAnchor(t *testing.T) {
	clk := clock.NewFake(epoch)
	s := NewSynchronizer(clk, SyncOptions{Mode: CorrectionRate})
	a, b := newStub("a", 9.0), newStub("b", 0)
	b.playing = false
	assert.Nil(t, s.Tick(handlers(a, b)))

	clk.Advance(250 * time.Millisecond)
	b.playing = true
	a.pos, b.pos = 10.000, 10.040
	corrections := s.Tick(handlers(a, b))

	require.Len(t, corrections, 1)
	assert.Equal(t, "b", corrections[0].TrackID)
	assert.InDelta(t, 1-0.02, corrections[0].Rate, 1e-9)
	assert.InDelta(t, 0.98, b.rate.rate, 1e-9)
	assert.Empty(t, a.rate.sets, "anchor rate is untouched")
}

func TestSyncRestoresRateWhenAnchorStops(t *testing.T) {
	clk := clock.NewFake(epoch)
	s := NewSynchronizer(clk, SyncOptions{Mode: CorrectionRate})
	a, b := newStub("a", 9.0), newStub("b", 0)
	b.playing = false
	s.Tick(handlers(a, b))

	clk.Advance(250 * time.Millisecond)
	b.playing = true
	a.pos, b.pos = 10.000, 10.500
	require.Len(t, s.Tick(handlers(a, b)), 1)
	require.InDelta(t, 0.95, b.rate.rate, 1e-9)

	// 锚点暂停后，剩下的唯一音轨回到原速率
	a.playing = false
	for i := 0; i < 20; i++ {
		clk.Advance(250 * time.Millisecond)
		assert.Empty(t, s.Tick(handlers(a, b)))
	}
	assert.Equal(t, 1.0, b.rate.rate)
	assert.Equal(t, []float64{0.95, 1}, b.rate.sets)
	assert.False(t, s.Pending("b"))
}

func TestSyncRestoresRateOnAnchorHandover(t *testing.T) {
	clk := clock.NewFake(epoch)
	s := NewSynchronizer(clk, SyncOptions{Mode: CorrectionRate})
	a, b, c := newStub("a", 9.0), newStub("b", 0), newStub("c", 0)
	b.playing, c.playing = false, false
	s.Tick(handlers(a, b, c))

	clk.Advance(250 * time.Millisecond)
	b.playing = true
	a.pos, b.pos = 10.000, 10.500
	require.Len(t, s.Tick(handlers(a, b, c)), 1)
	require.InDelta(t, 0.95, b.rate.rate, 1e-9)

	// a 停止后 b 成为锚点，锚点不应保留微调速率
	clk.Advance(250 * time.Millisecond)
	a.playing, c.playing = false, true
	b.pos, c.pos = 10.750, 10.750
	assert.Empty(t, s.Tick(handlers(a, b, c)))
	assert.Equal(t, "b", s.Anchor())
	assert.Equal(t, 1.0, b.rate.rate)
	assert.Empty(t, c.rate.sets)
}

func TestSyncRestoresUserRate(t *testing.T) {
	clk := clock.NewFake(epoch)
	s := NewSynchronizer(clk, SyncOptions{Mode: CorrectionRate})
	a, b := newStub("a", 9.0), newStub("b", 0)
	b.playing = false
	s.Tick(handlers(a, b))

	clk.Advance(250 * time.Millisecond)
	b.playing = true
	require.NoError(t, b.rate.SetPlaybackRate(1.5))
	a.pos, b.pos = 10.000, 10.500
	require.Len(t, s.Tick(handlers(a, b)), 1)
	require.InDelta(t, 0.95, b.rate.rate, 1e-9)

	// 停止播放时恢复用户设置的速率而不是 1
	b.playing = false
	s.Tick(handlers(a, b))
	assert.Equal(t, 1.5, b.rate.rate)
}

func TestSyncSettleTimeoutAllowsReissue(t *testing.T) {
	clk := clock.NewFake(epoch)
	s := NewSynchronizer(clk, SyncOptions{Mode: CorrectionRate, SettleTimeout: time.Second})
	a, b := newStub("a", 10.0), newStub("b", 10.02)

	require.Len(t, s.Tick(handlers(a, b)), 1)
	clk.Advance(500 * time.Millisecond)
	assert.Empty(t, s.Tick(handlers(a, b)))
	clk.Advance(600 * time.Millisecond)
	assert.Len(t, s.Tick(handlers(a, b)), 1)
}

func TestSyncForgetAndReadings(t *testing.T) {
	clk := clock.NewFake(epoch)
	s := NewSynchronizer(clk, SyncOptions{})
	a, b := newStub("a", 1), newStub("b", 1)

	s.Tick(handlers(a, b))
	clk.Advance(time.Second)
	a.pos, b.pos = 2, 2
	s.Tick(handlers(a, b))

	readings := s.Readings("a")
	require.Len(t, readings, 2)
	assert.Equal(t, epoch.Add(time.Second), readings[1].Timestamp())
	rate, ok := s.ObservedRate("a")
	require.True(t, ok)
	assert.InDelta(t, 1.0, rate, 1e-9)

	s.Forget("a")
	assert.Nil(t, s.Readings("a"))
}

func TestSyncOrderIndependent(t *testing.T) {
	run := func(order func(a, b, c *stubHandler) []media.MediaHandler) []Correction {
		clk := clock.NewFake(epoch)
		s := NewSynchronizer(clk, SyncOptions{})
		a, b, c := newStub("a", 5.0), newStub("b", 5.05), newStub("c", 4.9)
		return s.Tick(order(a, b, c))
	}
	forward := run(func(a, b, c *stubHandler) []media.MediaHandler { return handlers(a, b, c) })
	reverse := run(func(a, b, c *stubHandler) []media.MediaHandler { return handlers(c, b, a) })
	assert.Equal(t, forward, reverse)
	assert.Len(t, forward, 2)
}

func TestParseCorrectionMode(t *testing.T) {
	mode, err := ParseCorrectionMode("")
	require.NoError(t, err)
	assert.Equal(t, CorrectionSeek, mode)
	mode, err = ParseCorrectionMode("rate")
	require.NoError(t, err)
	assert.Equal(t, CorrectionRate, mode)
	_, err = ParseCorrectionMode("warp")
	assert.Error(t, err)
}
