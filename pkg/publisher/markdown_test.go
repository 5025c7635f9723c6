package publisher

import (
	"strings"
	"testing"

	"github.com/shouni/go-comic-kit/pkg/domain"

	"github.com/stretchr/testify/assert"
)

func TestParseDialogue(t *testing.T) {
	tests := []struct {
		line string
		want Dialogue
	}{
		{"Hero: Stop right there!", Dialogue{Speaker: "Hero", Text: "Stop right there!", Type: "normal"}},
		{"  Villain:Never.  ", Dialogue{Speaker: "Villain", Text: "Never.", Type: "normal"}},
		{"The city sleeps.", Dialogue{Speaker: "narration", Text: "The city sleeps.", Type: "normal"}},
		{"Hero: [shout] Look out!", Dialogue{Speaker: "Hero", Text: "Look out!", Type: "shout"}},
		{"[thought] What was that?", Dialogue{Speaker: "narration", Text: "What was that?", Type: "thought"}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseDialogue(tt.line))
		})
	}
}

func TestSpeakerID(t *testing.T) {
	assert.Equal(t, "speaker-narration", SpeakerID(""))
	assert.Equal(t, "speaker-narration", SpeakerID("narration"))
	assert.Equal(t, SpeakerID("Hero"), SpeakerID("hero"), "大文字小文字は区別しないのだ")
	assert.NotEqual(t, SpeakerID("Hero"), SpeakerID("Villain"))
	assert.Len(t, SpeakerID("Hero"), len("speaker-")+10)
}

func TestBuild(t *testing.T) {
	panels := domain.Panels{
		{
			SequenceNumber: 1,
			ImageURL:       "https://cdn.example.com/comic_panels/a.png",
			Description:    "A hero confronts a villain downtown",
			Dialogues:      []string{"Hero: Stop right there!", "Villain: Never."},
		},
		{
			SequenceNumber: 2,
			ImageURL:       "https://cdn.example.com/comic_panels/b.png",
			TextContent:    "Hero: [shout] Now!",
		},
		{
			SequenceNumber: 3,
			ImageURL:       "https://cdn.example.com/comic_panels/c.png",
		},
	}

	md := NewMarkdownPublisher().Build("City Showdown", panels)

	assert.True(t, strings.HasPrefix(md, "# City Showdown\n\n"))
	assert.Contains(t, md, "## Panel 1\n\n![panel 1](https://cdn.example.com/comic_panels/a.png)")
	assert.Contains(t, md, "> A hero confronts a villain downtown")
	assert.Contains(t, md, "- speaker: Hero ("+SpeakerID("Hero")+")\n  - text: Stop right there!")
	assert.Contains(t, md, "  - text: Now!\n  - type: shout")
	assert.Contains(t, md, "## Panel 3\n\n![panel 3](https://cdn.example.com/comic_panels/c.png)\n\n- type: none")
	assert.Less(t, strings.Index(md, "## Panel 1"), strings.Index(md, "## Panel 2"))

	assert.NotContains(t, NewMarkdownPublisher().Build("", panels[:1]), "# \n")
}
