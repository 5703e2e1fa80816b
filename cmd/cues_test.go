package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"Replayer/model"
)

func TestPrintCues(t *testing.T) {
	c := &model.Compilation{
		ID:    "show",
		Title: "Show",
		Tracks: []model.Track{
			{ID: "t1", Cues: []model.Cue{
				{ID: "intro", Time: 0.5, Shortcut: "1", Description: "Intro"},
				{ID: "verse", Time: 6, Metrical: &model.MetricalPosition{Measure: 9}},
			}},
		},
	}
	settings := model.Settings{FadeInDuration: 1000, AddFadeInPreRoll: true}

	var buf bytes.Buffer
	printCues(&buf, c, settings)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")

	assert.Contains(t, lines[0], "show")
	assert.Len(t, lines, 5)
	assert.Regexp(t, `t1\s+intro\s+0\.500\s+1\s+-\s+0\.000\s+Intro`, lines[3])
	assert.Regexp(t, `t1\s+verse\s+6\.000\s+-\s+9\s+5\.000`, lines[4])
}
