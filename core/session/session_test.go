package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Replayer/core/clock"
	"Replayer/core/navigation"
	"Replayer/model"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type stubProbe struct {
	missing map[string]bool
}

func (p stubProbe) Available(ctx context.Context, key string) (bool, error) {
	return !p.missing[key], nil
}

type recordingPublisher struct {
	mu    sync.Mutex
	snaps []*model.EnsembleSnapshot
}

func (p *recordingPublisher) PublishSnapshot(ctx context.Context, snap *model.EnsembleSnapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snaps = append(p.snaps, snap)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.snaps)
}

func testCompilation() *model.Compilation {
	c := &model.Compilation{
		ID: "c1",
		Tracks: []model.Track{
			{ID: "t1", URL: "media/t1.mp3", Duration: 120, Cues: []model.Cue{
				{ID: "a", Time: 0, Shortcut: "1"},
				{ID: "b", Time: 5, Shortcut: "12"},
				{ID: "c", Time: 10, Shortcut: "3"},
			}},
			{ID: "t2", URL: "media/t2.mp3", Duration: 120, Cues: []model.Cue{
				{ID: "d", Time: 30, Shortcut: "6"},
			}},
		},
	}
	c.Normalize()
	return c
}

func startSession(t *testing.T, opts Options) (*Session, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(epoch)
	opts.Clock = clk
	opts.PollInterval = time.Hour
	if opts.Settings.KeyboardShortcutTimeout == 0 {
		opts.Settings.KeyboardShortcutTimeout = 1000
	}
	s := New(opts)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return s, clk
}

func tickNow(t *testing.T, s *Session) {
	t.Helper()
	require.NoError(t, s.call(func() { s.tick(context.Background()) }))
}

func snapshot(t *testing.T, s *Session) *model.EnsembleSnapshot {
	t.Helper()
	snap, err := s.Snapshot()
	require.NoError(t, err)
	return snap
}

func TestLoadCompilationProbesAvailability(t *testing.T) {
	s, _ := startSession(t, Options{Probe: stubProbe{missing: map[string]bool{"media/t2.mp3": true}}})
	require.NoError(t, s.LoadCompilation(context.Background(), testCompilation()))

	snap := snapshot(t, s)
	assert.Equal(t, "c1", snap.CompilationID)
	require.Len(t, snap.Tracks, 2)
	assert.True(t, snap.Tracks[0].MediaAvailable)
	assert.Equal(t, model.PlaybackStateReady, snap.Tracks[0].State)
	assert.False(t, snap.Tracks[1].MediaAvailable)
	assert.Equal(t, model.PlaybackStateUnavailable, snap.Tracks[1].State)
	assert.True(t, snap.AllTrackLoaded)
	assert.False(t, snap.AllMediaAvailable)
}

func TestLoadCompilationRejectsDuplicateMnemonics(t *testing.T) {
	s, _ := startSession(t, Options{})
	c := testCompilation()
	c.Tracks[1].Cues[0].Shortcut = "3"
	assert.ErrorIs(t, s.LoadCompilation(context.Background(), c), model.ErrDuplicateMnemonic)
}

func TestKeyNavigatesAcrossTracks(t *testing.T) {
	s, _ := startSession(t, Options{})
	require.NoError(t, s.LoadCompilation(context.Background(), testCompilation()))

	consumed, err := s.HandleKey("6")
	require.NoError(t, err)
	assert.True(t, consumed)

	snap := snapshot(t, s)
	assert.Equal(t, "t2", snap.ActiveTrackID)
	assert.Equal(t, 30.0, snap.Tracks[1].Position)
	assert.Equal(t, "idle", snap.ShortcutState)
}

func TestShortcutTimeoutResolvesPrefix(t *testing.T) {
	s, clk := startSession(t, Options{})
	require.NoError(t, s.LoadCompilation(context.Background(), testCompilation()))

	_, err := s.HandleKey("1")
	require.NoError(t, err)
	snap := snapshot(t, s)
	assert.Equal(t, "accumulating", snap.ShortcutState)
	assert.Equal(t, "1", snap.ShortcutDigits)

	clk.Advance(time.Second)
	snap = snapshot(t, s)
	assert.Equal(t, "idle", snap.ShortcutState)
	assert.Equal(t, "t1", snap.ActiveTrackID)
	assert.Equal(t, 0.0, snap.Tracks[0].Position)
}

func TestPlayTickAndPublish(t *testing.T) {
	pub := &recordingPublisher{}
	s, clk := startSession(t, Options{Publisher: pub, Multitrack: true})
	require.NoError(t, s.LoadCompilation(context.Background(), testCompilation()))

	require.NoError(t, s.Play())
	clk.Advance(2 * time.Second)
	tickNow(t, s)

	snap := snapshot(t, s)
	assert.True(t, snap.AllPlaying)
	assert.InDelta(t, 2.0, snap.AllTrackPosition, 1e-9)
	require.Eventually(t, func() bool { return pub.count() > 0 }, time.Second, 10*time.Millisecond)

	require.NoError(t, s.Pause())
	snap = snapshot(t, s)
	assert.False(t, snap.AllPlaying)
}

func TestLoopRange(t *testing.T) {
	s, clk := startSession(t, Options{})
	require.NoError(t, s.LoadCompilation(context.Background(), testCompilation()))
	require.NoError(t, s.SetLoop("t1", "a", "b"))
	assert.ErrorIs(t, s.SetLoop("t1", "zz", ""), navigation.ErrCueNotFound)
	assert.Error(t, s.SetLoop("t1", "b", "a"))

	require.NoError(t, s.Play())
	clk.Advance(6 * time.Second)
	tickNow(t, s)
	assert.Equal(t, 0.0, snapshot(t, s).Tracks[0].Position)

	require.NoError(t, s.ClearLoop())
	clk.Advance(6 * time.Second)
	tickNow(t, s)
	assert.InDelta(t, 6.0, snapshot(t, s).Tracks[0].Position, 1e-9)
}

func TestLoopFollowerTrackInMultitrack(t *testing.T) {
	s, clk := startSession(t, Options{Multitrack: true})
	c := testCompilation()
	c.Tracks[1].Cues = append(c.Tracks[1].Cues,
		model.Cue{ID: "e", Time: 0, Shortcut: "7"},
		model.Cue{ID: "f", Time: 5, Shortcut: "8"})
	c.Normalize()
	require.NoError(t, s.LoadCompilation(context.Background(), c))

	// t1 先开始播放并成为同步锚点，循环设在 t2 上
	require.NoError(t, s.Play())
	tickNow(t, s)
	require.NoError(t, s.SetLoop("t2", "e", "f"))

	clk.Advance(6 * time.Second)
	tickNow(t, s)
	snap := snapshot(t, s)
	require.Len(t, snap.Tracks, 2)
	assert.Equal(t, 0.0, snap.Tracks[0].Position)
	assert.Equal(t, 0.0, snap.Tracks[1].Position)

	// 下一轮同步不会把回绕当作漂移
	clk.Advance(time.Second)
	tickNow(t, s)
	snap = snapshot(t, s)
	assert.InDelta(t, 1.0, snap.Tracks[0].Position, 1e-9)
	assert.InDelta(t, 1.0, snap.Tracks[1].Position, 1e-9)
}

func TestRemoveTrack(t *testing.T) {
	s, _ := startSession(t, Options{})
	require.NoError(t, s.LoadCompilation(context.Background(), testCompilation()))

	require.NoError(t, s.RemoveTrack("t2"))
	snap := snapshot(t, s)
	require.Len(t, snap.Tracks, 1)
	assert.Equal(t, "t1", snap.Tracks[0].TrackID)
	assert.ErrorIs(t, s.RemoveTrack("t2"), ErrTrackNotFound)

	require.NoError(t, s.ClearCompilation())
	snap = snapshot(t, s)
	assert.Empty(t, snap.Tracks)
	assert.False(t, snap.AllPlaying)
}

func TestMuteAndRate(t *testing.T) {
	s, _ := startSession(t, Options{})
	require.NoError(t, s.LoadCompilation(context.Background(), testCompilation()))

	require.NoError(t, s.Mute("", true))
	assert.True(t, snapshot(t, s).AllTrackMuted)
	require.NoError(t, s.Mute("t1", false))
	assert.False(t, snapshot(t, s).AllTrackMuted)
	assert.ErrorIs(t, s.Mute("nope", true), ErrTrackNotFound)

	require.NoError(t, s.SetRate("t1", 1.5))
	assert.Equal(t, 1.5, snapshot(t, s).Tracks[0].PlaybackRate)
	assert.Error(t, s.SetRate("t1", 0))
}

func TestClosedSession(t *testing.T) {
	s, _ := startSession(t, Options{})
	s.Close()
	assert.ErrorIs(t, s.Play(), ErrSessionClosed)
	_, err := s.Snapshot()
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestHandleMessageReportsErrors(t *testing.T) {
	s, _ := startSession(t, Options{})
	require.NoError(t, s.LoadCompilation(context.Background(), testCompilation()))

	client := &Client{Hub: s.Hub(), Send: make(chan []byte, 8), ID: "c1", CanControl: true}
	s.Hub().Register(client)

	data, _ := json.Marshal(NavigateData{TrackID: "t1", CueID: "c"})
	s.HandleMessage(context.Background(), client, &WSMessage{Type: MsgTypeNavigate, Data: data})
	assert.Equal(t, "t1", snapshot(t, s).ActiveTrackID)
	assert.Len(t, client.Send, 0)

	data, _ = json.Marshal(NavigateData{TrackID: "missing", CueID: "c"})
	s.HandleMessage(context.Background(), client, &WSMessage{Type: MsgTypeNavigate, Data: data})
	require.Len(t, client.Send, 1)
	var reply WSMessage
	require.NoError(t, json.Unmarshal(<-client.Send, &reply))
	assert.Equal(t, MsgTypeError, reply.Type)

	viewer := &Client{Hub: s.Hub(), Send: make(chan []byte, 8), ID: "v1"}
	s.Hub().Register(viewer)
	s.HandleMessage(context.Background(), viewer, &WSMessage{Type: MsgTypePlay})
	require.Len(t, viewer.Send, 1)
	assert.False(t, snapshot(t, s).AllPlaying)
}
