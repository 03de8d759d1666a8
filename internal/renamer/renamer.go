package renamer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pokerjest/acms/internal/model"
)

var (
	gitMarkerRegex = regexp.MustCompile(`(?i)(-[A-Za-z0-9]{4})?-git\.ir`)
	unsafeRegex    = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]+`)
	slugRegex      = regexp.MustCompile(`[^a-z0-9]+`)
)

// Layout 课程在本地存储中的目录结构
//
//	<root>/courses/<slug>/videos
//	<root>/courses/<slug>/subtitles/original
//	<root>/courses/<slug>/subtitles/processed
//	<root>/courses/<slug>/exercises
type Layout struct {
	Root string
}

func (l Layout) CourseRoot(slug string) string {
	return filepath.Join(l.Root, "courses", slug)
}

// Dir returns the directory an asset kind is downloaded into.
func (l Layout) Dir(slug string, kind model.AssetKind) string {
	base := l.CourseRoot(slug)
	switch kind {
	case model.KindSubtitle:
		return filepath.Join(base, "subtitles", "original")
	case model.KindExercise:
		return filepath.Join(base, "exercises")
	default:
		return filepath.Join(base, "videos")
	}
}

func (l Layout) ProcessedSubtitleDir(slug string) string {
	return filepath.Join(l.CourseRoot(slug), "subtitles", "processed")
}

// Ensure 创建课程所需的全部目录
func (l Layout) Ensure(slug string) error {
	for _, dir := range []string{
		l.Dir(slug, model.KindVideo),
		l.Dir(slug, model.KindSubtitle),
		l.ProcessedSubtitleDir(slug),
		l.Dir(slug, model.KindExercise),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// Wipe removes everything stored for a course.
func (l Layout) Wipe(slug string) error {
	if slug == "" {
		return nil
	}
	return os.RemoveAll(l.CourseRoot(slug))
}

// CleanFilename drops the "-XXXX-git.ir" distribution marker and any
// characters that are not safe on common filesystems.
func CleanFilename(name string) string {
	name = gitMarkerRegex.ReplaceAllString(name, "")
	name = unsafeRegex.ReplaceAllString(name, "_")
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "file"
	}
	return name
}

// Slugify builds a directory-safe course slug.
func Slugify(s string) string {
	s = slugRegex.ReplaceAllString(strings.ToLower(s), "-")
	s = strings.Trim(s, "-")
	if len(s) > 80 {
		s = strings.TrimRight(s[:80], "-")
	}
	return s
}

// Place 把已下载的文件放到目标位置
// mode: "link", "move", "copy"
func Place(src, dst, mode string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	switch mode {
	case "link":
		return os.Link(src, dst)
	case "copy":
		return copyFile(src, dst)
	default:
		return os.Rename(src, dst)
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
