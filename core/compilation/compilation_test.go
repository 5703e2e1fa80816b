package compilation

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Replayer/model"
)

const sample = `{
  "id": "rehearsal",
  "title": "Rehearsal",
  "tracks": [
    {"id": "band", "name": "Band", "url": "band.mp3", "sortOrder": 2,
     "cues": [
       {"id": "b2", "description": "Chorus", "time": 42.5, "shortcut": "2"},
       {"id": "b1", "description": "Intro", "time": 0, "shortcut": "1", "metrical": {"measure": 1}}
     ]},
    {"id": "click", "name": "Click", "url": "https://example.org/v", "mediaKind": "embedded", "sortOrder": 1,
     "cues": [{"id": "c1", "description": "Count-in", "time": 1.5, "shortcut": "12"}]}
  ]
}`

func TestDecodeNormalizes(t *testing.T) {
	c, err := Decode(strings.NewReader(sample))
	require.NoError(t, err)

	require.Len(t, c.Tracks, 2)
	assert.Equal(t, "click", c.Tracks[0].ID)
	assert.Equal(t, model.MediaKindEmbedded, c.Tracks[0].MediaKind)
	assert.Equal(t, model.MediaKindLocal, c.Tracks[1].MediaKind)

	band := c.Tracks[1]
	assert.Equal(t, "b1", band.Cues[0].ID)
	assert.Equal(t, "band", band.Cues[0].TrackID)
	assert.Equal(t, "rehearsal", band.CompilationID)
	require.NotNil(t, band.Cues[0].Metrical)
	assert.Equal(t, 1, band.Cues[0].Metrical.Measure)
}

func TestDecodeRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"missing id":      `{"tracks": []}`,
		"duplicate track": `{"id": "x", "tracks": [{"id": "a"}, {"id": "a"}]}`,
		"bad mnemonic":    `{"id": "x", "tracks": [{"id": "a", "cues": [{"id": "c", "shortcut": "1a"}]}]}`,
		"unknown field":   `{"id": "x", "colour": "red"}`,
		"duplicate shortcut": `{"id": "x", "tracks": [{"id": "a", "cues": [{"id": "c", "shortcut": "1"}]},
			{"id": "b", "cues": [{"id": "d", "shortcut": "1"}]}]}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}

	_, err := Decode(strings.NewReader(cases["duplicate shortcut"]))
	assert.ErrorIs(t, err, model.ErrDuplicateMnemonic)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "compilation.json")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "rehearsal", c.ID)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "compilation.json")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	changes := make(chan *model.Compilation, 4)
	w := NewWatcher(path, 50*time.Millisecond, func(c *model.Compilation) { changes <- c })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	// 等待监听器就绪后再写入
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0o644))
	updated := strings.Replace(sample, `"Rehearsal"`, `"Concert"`, 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	select {
	case c := <-changes:
		assert.Equal(t, "Concert", c.Title)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report the change")
	}

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
