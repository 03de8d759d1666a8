package renamer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pokerjest/acms/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanFilename(t *testing.T) {
	assert.Equal(t, "001-Intro.mp4", CleanFilename("001-Intro-AbC1-git.ir.mp4"))
	assert.Equal(t, "002-Maps.fa.srt", CleanFilename("002-Maps-git.ir.fa.srt"))
	assert.Equal(t, "a_b.zip", CleanFilename("a/b.zip"))
	assert.Equal(t, "file", CleanFilename(".."))
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "learn-go-concurrency", Slugify("  Learn Go: Concurrency!! "))
}

func TestLayout(t *testing.T) {
	root := t.TempDir()
	l := Layout{Root: root}
	require.NoError(t, l.Ensure("go-basics"))

	assert.DirExists(t, filepath.Join(root, "courses", "go-basics", "videos"))
	assert.DirExists(t, filepath.Join(root, "courses", "go-basics", "subtitles", "original"))
	assert.DirExists(t, filepath.Join(root, "courses", "go-basics", "subtitles", "processed"))
	assert.Equal(t, filepath.Join(root, "courses", "go-basics", "exercises"), l.Dir("go-basics", model.KindExercise))

	src := filepath.Join(root, "tmp.part")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0644))
	dst := filepath.Join(l.Dir("go-basics", model.KindVideo), "001.mp4")
	require.NoError(t, Place(src, dst, "move"))
	assert.FileExists(t, dst)
	assert.NoFileExists(t, src)

	require.NoError(t, l.Wipe("go-basics"))
	assert.NoDirExists(t, l.CourseRoot("go-basics"))
}
