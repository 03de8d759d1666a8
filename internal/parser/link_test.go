package parser

import (
	"testing"

	"github.com/pokerjest/acms/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestParseEpisodeFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		number   int
		title    string
		hash     string
	}{
		{"course convention", "001-Intro-to-Go-AbC1-git.ir.mp4", 1, "Intro to Go", "AbC1"},
		{"persian subtitle", "012-Closures-XyZ9-git.ir.fa.srt", 12, "Closures", "XyZ9"},
		{"lesson word", "Lesson 05 - Channels.mp4", 5, "Channels", ""},
		{"sxe", "Go_Course_S01E07.mkv", 7, "Go Course", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := ParseEpisodeFilename(tt.filename)
			if assert.NotNil(t, info.Number) {
				assert.Equal(t, tt.number, *info.Number)
			}
			assert.Equal(t, tt.title, info.Title)
			assert.Equal(t, tt.hash, info.HashCode)
		})
	}
}

func TestParseEpisodeFilenameWithoutNumber(t *testing.T) {
	info := ParseEpisodeFilename("Bonus-Material.zip")
	assert.Nil(t, info.Number)
	assert.Equal(t, "Bonus Material", info.Title)
}

func TestDetectKind(t *testing.T) {
	kind, lang := DetectKind("001-Intro.fa.srt")
	assert.Equal(t, model.KindSubtitle, kind)
	assert.Equal(t, "fa", lang)

	kind, _ = DetectKind("001-Intro.MP4")
	assert.Equal(t, model.KindVideo, kind)

	kind, _ = DetectKind("001-Intro.zip")
	assert.Equal(t, model.KindExercise, kind)

	kind, _ = DetectKind("notes.txt")
	assert.Equal(t, model.AssetKind(""), kind)
}

func TestParseLineQueryFilename(t *testing.T) {
	link, err := ParseLine("https://dl.example.com/get-download-links/ab12cd/?filename=003-Maps-Qw12-git.ir.mp4&token=tk&hash=hs")
	assert.NoError(t, err)
	assert.Equal(t, model.KindVideo, link.Kind)
	assert.Equal(t, 3, *link.EpisodeNumber)
	assert.Equal(t, "Maps", link.EpisodeTitle)
	assert.Equal(t, "tk", link.Token)
	assert.Equal(t, "hs", link.Hash)
	assert.Equal(t, "ab12cd", link.CourseAPIID)
}

func TestParseLineLabelFallback(t *testing.T) {
	link, err := ParseLine("https://cdn.example.com/files/004 subtitle")
	assert.NoError(t, err)
	assert.Equal(t, model.KindSubtitle, link.Kind)
	assert.Equal(t, "subtitle", link.Label)
}

func TestParseLineErrors(t *testing.T) {
	_, err := ParseLine("not a link at all")
	assert.ErrorIs(t, err, ErrNoURL)

	_, err = ParseLine("https://cdn.example.com/files/readme.txt")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestParseBatchSkipsBlankLines(t *testing.T) {
	raw := "\n  https://cdn.example.com/001-A.mp4  \n\n\ngarbage\r\nhttps://cdn.example.com/001-A.fa.srt?x=1&amp;y=2\n   \n"
	lines := ParseBatch(raw)
	if assert.Len(t, lines, 3) {
		assert.NoError(t, lines[0].Err)
		assert.ErrorIs(t, lines[1].Err, ErrNoURL)
		assert.NoError(t, lines[2].Err)
		assert.Equal(t, 3, lines[2].Index)
		assert.Equal(t, "https://cdn.example.com/001-A.fa.srt?x=1&y=2", lines[2].Link.URL)
	}
	assert.Empty(t, ParseBatch(""))
}
