package parser

import (
	"errors"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/pokerjest/acms/internal/model"
)

var (
	urlRegex         = regexp.MustCompile(`(?i)https?://\S+`)
	downloadLinksDir = regexp.MustCompile(`(?i)/(?:get-download-links|courses?)/([a-z0-9]{4,12})/`)
)

var (
	ErrNoURL       = errors.New("no link found on line")
	ErrNoFilename  = errors.New("link has no filename")
	ErrUnknownKind = errors.New("cannot tell asset kind from filename")
)

// ParsedLink 一行粘贴内容解析出的下载链接
type ParsedLink struct {
	URL              string
	Label            string
	Filename         string
	EpisodeNumber    *int
	EpisodeTitle     string
	HashCode         string
	Kind             model.AssetKind
	SubtitleLanguage string
	Token            string
	Hash             string
	CourseAPIID      string
}

// Line is the outcome of one non-blank input line.
type Line struct {
	Index int // 1-based position among non-blank lines
	Raw   string
	Link  *ParsedLink
	Err   error
}

// ParseBatch splits pasted text into one Line per non-blank line. Lines that
// cannot be parsed keep their error so the caller can report them.
func ParseBatch(raw string) []Line {
	normalized := strings.ReplaceAll(raw, "&amp;", "&")
	normalized = strings.ReplaceAll(normalized, "\r\n", "\n")

	var out []Line
	for _, l := range strings.Split(normalized, "\n") {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		link, err := ParseLine(l)
		out = append(out, Line{Index: len(out) + 1, Raw: l, Link: link, Err: err})
	}
	return out
}

// ParseLine parses "URL" or "URL label" / "label URL". The label only helps
// when the filename extension says nothing about the asset kind.
func ParseLine(line string) (*ParsedLink, error) {
	raw := urlRegex.FindString(line)
	if raw == "" {
		return nil, ErrNoURL
	}
	label := strings.TrimSpace(strings.Replace(line, raw, "", 1))
	link, err := ParseLink(raw)
	if err != nil && !errors.Is(err, ErrUnknownKind) {
		return nil, err
	}
	link.Label = label
	if link.Kind == "" {
		link.Kind = kindFromLabel(label)
	}
	if link.Kind == "" {
		return nil, ErrUnknownKind
	}
	if link.EpisodeNumber == nil && label != "" {
		if info := ParseEpisodeFilename(label); info.Number != nil {
			link.EpisodeNumber = info.Number
			if link.EpisodeTitle == "" {
				link.EpisodeTitle = info.Title
			}
		}
	}
	return link, nil
}

// ParseLink parses a single download URL. On ErrUnknownKind the returned
// link is still populated so a label may complete it.
func ParseLink(raw string) (*ParsedLink, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, ErrNoURL
	}
	query, _ := url.ParseQuery(strings.ReplaceAll(u.RawQuery, "amp;", ""))

	filename := firstValue(query, "filename", "file", "name")
	if filename != "" {
		filename = path.Base(filename)
	} else {
		p, _ := url.PathUnescape(u.EscapedPath())
		filename = path.Base(p)
	}
	if filename == "" || filename == "." || filename == "/" {
		return nil, ErrNoFilename
	}

	info := ParseEpisodeFilename(filename)
	kind, lang := DetectKind(filename)
	link := &ParsedLink{
		URL:              raw,
		Filename:         filename,
		EpisodeNumber:    info.Number,
		EpisodeTitle:     info.Title,
		HashCode:         info.HashCode,
		Kind:             kind,
		SubtitleLanguage: lang,
		Token:            firstValue(query, "token", "t"),
		Hash:             firstValue(query, "hash", "h"),
		CourseAPIID:      courseAPIID(u.Path, query),
	}
	if kind == "" {
		return link, ErrUnknownKind
	}
	return link, nil
}

// DetectKind classifies a filename by extension; subtitles also report the
// language encoded in ".fa.srt" / ".en.srt".
func DetectKind(filename string) (model.AssetKind, string) {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".fa.srt"):
		return model.KindSubtitle, "fa"
	case strings.HasSuffix(lower, ".en.srt"):
		return model.KindSubtitle, "en"
	case strings.HasSuffix(lower, ".srt"), strings.HasSuffix(lower, ".vtt"):
		return model.KindSubtitle, ""
	case strings.HasSuffix(lower, ".zip"), strings.HasSuffix(lower, ".rar"),
		strings.HasSuffix(lower, ".7z"), strings.HasSuffix(lower, ".pdf"):
		return model.KindExercise, ""
	case IsVideoFile(lower):
		return model.KindVideo, ""
	}
	return "", ""
}

func kindFromLabel(label string) model.AssetKind {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "subtitle"), strings.Contains(l, "sub"), strings.Contains(l, "زیرنویس"):
		return model.KindSubtitle
	case strings.Contains(l, "exercise"), strings.Contains(l, "files"), strings.Contains(l, "تمرین"):
		return model.KindExercise
	case strings.Contains(l, "video"), strings.Contains(l, "ویدیو"):
		return model.KindVideo
	}
	return ""
}

func courseAPIID(p string, query url.Values) string {
	if v := firstValue(query, "course_id", "id"); v != "" {
		return v
	}
	if m := downloadLinksDir.FindStringSubmatch(p); len(m) > 1 {
		return m[1]
	}
	return ""
}

func firstValue(q url.Values, keys ...string) string {
	for _, k := range keys {
		if v := q.Get(k); v != "" {
			return v
		}
	}
	return ""
}
