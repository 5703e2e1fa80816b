package navigation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Replayer/core/clock"
	"Replayer/core/media"
	"Replayer/core/multitrack"
	"Replayer/model"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	clk    *clock.Fake
	nav    *Navigator
	tracks map[string]*media.ElementHandler
	events []NavigateEvent
	fades  []FadeEvent
}

func newFixture(t *testing.T, multi bool) *fixture {
	t.Helper()
	comp := &model.Compilation{
		ID: "c1",
		Tracks: []model.Track{
			{ID: "t1", Cues: []model.Cue{
				{ID: "intro", Time: 0.5},
				{ID: "verse", Time: 6.0, Metrical: &model.MetricalPosition{Measure: 5}},
				{ID: "chorus", Time: 20.0, Metrical: &model.MetricalPosition{Measure: 13}},
			}},
			{ID: "t2", Cues: []model.Cue{
				{ID: "solo", Time: 30.0},
			}},
		},
	}
	comp.Normalize()

	f := &fixture{clk: clock.NewFake(epoch), tracks: make(map[string]*media.ElementHandler)}
	refs := multitrack.NewRefs()
	var ids []string
	for _, tr := range comp.Tracks {
		e := media.NewElementHandler(tr.ID, f.clk, media.ElementOptions{})
		e.Load(120)
		refs.SetTrack(tr.ID, e)
		f.tracks[tr.ID] = e
		ids = append(ids, tr.ID)
	}

	f.nav = New(multitrack.New(refs, ids), Options{
		Settings: model.Settings{
			FadeInDuration:   1000,
			FadeOutDuration:  500,
			AddFadeInPreRoll: true,
		},
		Multitrack: multi,
		OnNavigate: func(ev NavigateEvent) { f.events = append(f.events, ev) },
		OnFade:     func(ev FadeEvent) { f.fades = append(f.fades, ev) },
	})
	f.nav.SetCompilation(comp)
	return f
}

func TestNavigateWhileStoppedMovesMarkerOnly(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.nav.NavigateToCue("t1", "verse"))

	t1 := f.tracks["t1"]
	assert.False(t, t1.IsPlaying())
	assert.Equal(t, 6.0, t1.CurrentSeconds(), "no pre-roll when stopped")
	assert.Equal(t, "t1", f.nav.ActiveTrackID())
	require.Len(t, f.events, 1)
	assert.False(t, f.events[0].Playing)
	assert.Empty(t, f.fades)
}

func TestNavigateWhilePlayingUsesPreRollAndFades(t *testing.T) {
	f := newFixture(t, false)
	t1, t2 := f.tracks["t1"], f.tracks["t2"]
	require.NoError(t, f.nav.NavigateToCue("t2", "solo"))
	require.NoError(t, f.nav.Play())
	f.clk.Advance(2 * time.Second)
	require.True(t, t2.IsPlaying())

	require.NoError(t, f.nav.NavigateToCue("t1", "verse"))
	assert.True(t, t2.IsFading(), "previous track fades out first")
	assert.False(t, t1.IsPlaying())

	f.clk.Advance(500 * time.Millisecond)
	assert.False(t, t2.IsPlaying())
	assert.Equal(t, 1.0, t2.Gain(), "gain restored after pause")
	assert.True(t, t1.IsPlaying())
	assert.InDelta(t, 5.0, t1.CurrentSeconds(), 0.001)
	assert.True(t, t1.IsFading())

	f.clk.Advance(time.Second)
	assert.Equal(t, 1.0, t1.Gain())
	last := f.events[len(f.events)-1]
	assert.True(t, last.Playing)
	assert.InDelta(t, 5.0, last.Start, 1e-9)
}

func TestNewNavigationHardCutsPendingFadeOut(t *testing.T) {
	f := newFixture(t, false)
	t1 := f.tracks["t1"]
	require.NoError(t, f.nav.NavigateToCue("t1", "intro"))
	require.NoError(t, f.nav.Play())
	f.clk.Advance(2 * time.Second)

	require.NoError(t, f.nav.NavigateToCue("t1", "verse"))
	f.clk.Advance(100 * time.Millisecond)
	require.True(t, t1.IsFading())

	require.NoError(t, f.nav.NavigateToCue("t1", "chorus"))
	assert.True(t, t1.IsPlaying())
	assert.InDelta(t, 19.0, t1.CurrentSeconds(), 0.001, "jumped without waiting for the fade-out")
	assert.Equal(t, "chorus", f.nav.ActiveCueID())

	// 被取代的淡出不会再触发跳转
	f.clk.Advance(3 * time.Second)
	assert.InDelta(t, 22.0, t1.CurrentSeconds(), 0.001)
}

func TestPreRollClampedAtZero(t *testing.T) {
	f := newFixture(t, false)
	t1 := f.tracks["t1"]
	require.NoError(t, f.nav.Play())
	f.clk.Advance(3 * time.Second)

	require.NoError(t, f.nav.NavigateToCue("t1", "intro"))
	f.clk.Advance(500 * time.Millisecond)
	assert.InDelta(t, 0.0, t1.CurrentSeconds(), 0.001)
}

func TestNextAndPreviousCue(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.nav.NavigateToCue("t1", "intro"))

	require.NoError(t, f.nav.NextCue())
	assert.Equal(t, "verse", f.nav.ActiveCueID())
	require.NoError(t, f.nav.NextCue())
	assert.Equal(t, "chorus", f.nav.ActiveCueID())
	assert.ErrorIs(t, f.nav.NextCue(), ErrCueNotFound)

	require.NoError(t, f.nav.PreviousCue())
	assert.Equal(t, "verse", f.nav.ActiveCueID())
	require.NoError(t, f.nav.PreviousCue())
	require.ErrorIs(t, f.nav.PreviousCue(), ErrCueNotFound)
}

func TestNavigateToMeasure(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.nav.NavigateToMeasure("t1", model.MetricalPosition{Measure: 13}))
	assert.Equal(t, "chorus", f.nav.ActiveCueID())

	require.NoError(t, f.nav.NavigateToMeasure("t1", model.MetricalPosition{Measure: 9}))
	assert.Equal(t, "verse", f.nav.ActiveCueID())

	assert.ErrorIs(t, f.nav.NavigateToMeasure("t1", model.MetricalPosition{Measure: 1}), ErrCueNotFound)
}

func TestNavigationFailures(t *testing.T) {
	f := newFixture(t, false)
	assert.ErrorIs(t, f.nav.NavigateToCue("nope", "verse"), ErrTrackNotFound)
	assert.ErrorIs(t, f.nav.NavigateToCue("t1", "nope"), ErrCueNotFound)

	empty := New(nil, Options{})
	assert.ErrorIs(t, empty.NavigateToCue("t1", "verse"), ErrNoCompilation)
	assert.ErrorIs(t, empty.Play(), ErrHandlerUnavailable)
}

func TestMultitrackPlayPauseToggle(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.nav.NavigateToCue("t1", "verse"))
	assert.Equal(t, 6.0, f.tracks["t2"].CurrentSeconds(), "all tracks move together")

	require.NoError(t, f.nav.Toggle())
	for _, e := range f.tracks {
		assert.True(t, e.IsPlaying())
	}

	require.NoError(t, f.nav.Toggle())
	f.clk.Advance(600 * time.Millisecond)
	for _, e := range f.tracks {
		assert.False(t, e.IsPlaying())
		assert.Equal(t, 1.0, e.Gain())
	}
}

func TestPauseInterruptedByPlay(t *testing.T) {
	f := newFixture(t, false)
	t1 := f.tracks["t1"]
	require.NoError(t, f.nav.Play())
	f.clk.Advance(2 * time.Second)

	require.NoError(t, f.nav.Toggle())
	f.clk.Advance(200 * time.Millisecond)
	require.NoError(t, f.nav.Toggle())
	f.clk.Advance(2 * time.Second)

	assert.True(t, t1.IsPlaying())
	assert.Equal(t, 1.0, t1.Gain())
}
