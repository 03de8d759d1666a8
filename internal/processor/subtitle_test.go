package processor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

const sampleSRT = "\xef\xbb\xbf1\r\n00:00:01,000 --> 00:00:03,500\r\n<i>Hello</i> world\r\n\r\n" +
	"2\r\n00:00:03,000 --> 00:00:05,000\r\nDownloaded from git.ir\r\n\r\n" +
	"3\r\n00:00:04,000 --> 00:00:06,000\r\nSecond line\r\n\r\n" +
	"garbage block\r\n\r\n" +
	"4\r\n00:00:05,500 --> 00:00:07,000\r\n\u0643\u062a\u0627\u0628 \u064a\u0643\r\n"

func TestParseSRT(t *testing.T) {
	text, enc := DecodeText([]byte(sampleSRT))
	assert.Equal(t, "UTF-8", enc)

	cues := ParseSRT(text)
	require.Len(t, cues, 4)
	assert.Equal(t, 1, cues[0].Index)
	assert.Equal(t, time.Second, cues[0].Start)
	assert.Equal(t, 3500*time.Millisecond, cues[0].End)
	assert.Equal(t, "<i>Hello</i> world", cues[0].Text)
}

func TestCleanCues(t *testing.T) {
	cues := CleanCues(ParseSRT(sampleSRT[3:]), DefaultSubtitleOptions())
	require.Len(t, cues, 3)

	assert.Equal(t, "Hello world", cues[0].Text)
	// ad cue removed, remaining cues renumbered
	assert.Equal(t, []int{1, 2, 3}, []int{cues[0].Index, cues[1].Index, cues[2].Index})
	assert.Equal(t, 3500*time.Millisecond, cues[0].End)
	// overlap trimmed to 1ms before the next cue
	assert.Equal(t, 5499*time.Millisecond, cues[1].End)
	assert.Equal(t, "\u06a9\u062a\u0627\u0628 \u06cc\u06a9", cues[2].Text)
}

func TestComposeSRT(t *testing.T) {
	out := ComposeSRT([]Cue{
		{Index: 1, Start: time.Second, End: 2*time.Second + 5*time.Millisecond, Text: "a"},
		{Index: 2, Start: time.Hour, End: time.Hour + time.Second, Text: "b"},
	})
	assert.Equal(t, "1\n00:00:01,000 --> 00:00:02,005\na\n\n2\n01:00:00,000 --> 01:00:01,000\nb\n", out)
}

func TestCleanSubtitleFileWindows1256(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "001.fa.srt")
	dst := filepath.Join(dir, "processed", "001.fa.srt")

	salam := "\u0633\u0644\u0627\u0645 \u0628\u0631\u0646\u0627\u0645\u0647 \u0646\u0648\u064a\u0633\u064a"
	body := "1\r\n00:00:01,000 --> 00:00:02,000\r\n" + salam + " " + salam + "\r\n\r\n" +
		"2\r\n00:00:02,500 --> 00:00:04,000\r\n" + salam + "\r\n"
	encoded, err := charmap.Windows1256.NewEncoder().String(body)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(src, []byte(encoded), 0644))

	stats, err := NewLocal("").ProcessSubtitle(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.OutputCount)
	assert.NotEqual(t, "UTF-8", stats.InputEncoding)

	out, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.True(t, utf8.Valid(out))
}

func TestCleanSubtitleFileEmpty(t *testing.T) {
	src := filepath.Join(t.TempDir(), "empty.srt")
	require.NoError(t, os.WriteFile(src, []byte("  \n"), 0644))
	_, err := CleanSubtitleFile(src, src+".out", DefaultSubtitleOptions())
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestProcessExercise(t *testing.T) {
	dir := t.TempDir()
	p := NewLocal("")
	assert.Error(t, p.ProcessExercise(context.Background(), filepath.Join(dir, "missing.zip")))

	empty := filepath.Join(dir, "empty.zip")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	assert.ErrorIs(t, p.ProcessExercise(context.Background(), empty), ErrEmptyFile)
}

func TestValidateVideoWithoutFFprobe(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "001.mp4")
	require.NoError(t, os.WriteFile(path, make([]byte, 4096), 0644))

	info, err := ValidateVideo(context.Background(), filepath.Join(dir, "no-such-ffprobe"), path)
	require.NoError(t, err)
	assert.False(t, info.Probed)
	assert.Equal(t, int64(4096), info.Size)
}
