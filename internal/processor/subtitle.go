package processor

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/htmlindex"
)

var (
	htmlTagRegex   = regexp.MustCompile(`<[^>]+>`)
	timestampRegex = regexp.MustCompile(`(\d{1,2}):(\d{2}):(\d{2})[,.](\d{1,3})\s*-->\s*(\d{1,2}):(\d{2}):(\d{2})[,.](\d{1,3})`)
)

// Cue 一条字幕
type Cue struct {
	Index int
	Start time.Duration
	End   time.Duration
	Text  string
}

type SubtitleOptions struct {
	RemoveAds        bool
	AdPatterns       []*regexp.Regexp
	NormalizePersian bool
	RemoveHTMLTags   bool
	Renumber         bool
	FixOverlap       bool
}

func DefaultSubtitleOptions() SubtitleOptions {
	return SubtitleOptions{
		RemoveAds: true,
		AdPatterns: []*regexp.Regexp{
			regexp.MustCompile(`git\.ir`),
			regexp.MustCompile(`downloaded\s+from`),
			regexp.MustCompile(`translat(or|ed)\s+by`),
		},
		NormalizePersian: true,
		RemoveHTMLTags:   true,
		Renumber:         true,
		FixOverlap:       true,
	}
}

type SubtitleStats struct {
	InputEncoding string `json:"input_encoding"`
	InputCount    int    `json:"input_count"`
	OutputCount   int    `json:"output_count"`
}

// CleanSubtitleFile reads an SRT in whatever encoding it came in, cleans it
// and writes UTF-8 to dst.
func CleanSubtitleFile(src, dst string, opts SubtitleOptions) (SubtitleStats, error) {
	raw, err := os.ReadFile(src)
	if err != nil {
		return SubtitleStats{}, fmt.Errorf("read subtitle: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return SubtitleStats{}, ErrEmptyFile
	}
	text, enc := DecodeText(raw)

	cues := ParseSRT(text)
	cleaned := CleanCues(cues, opts)
	if len(cleaned) == 0 {
		return SubtitleStats{}, ErrNoCues
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return SubtitleStats{}, err
	}
	if err := os.WriteFile(dst, []byte(ComposeSRT(cleaned)), 0644); err != nil {
		return SubtitleStats{}, fmt.Errorf("write subtitle: %w", err)
	}
	return SubtitleStats{InputEncoding: enc, InputCount: len(cues), OutputCount: len(cleaned)}, nil
}

// DecodeText 检测编码并转为 UTF-8，识别失败时按 UTF-8 处理
func DecodeText(raw []byte) (string, string) {
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	if utf8.Valid(raw) {
		return string(raw), "UTF-8"
	}
	res, err := chardet.NewTextDetector().DetectBest(raw)
	if err != nil || res == nil {
		return strings.ToValidUTF8(string(raw), "�"), "UTF-8"
	}
	enc, err := htmlindex.Get(res.Charset)
	if err != nil {
		return strings.ToValidUTF8(string(raw), "�"), res.Charset
	}
	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return strings.ToValidUTF8(string(raw), "�"), res.Charset
	}
	return string(decoded), res.Charset
}

// ParseSRT is lenient: blocks without a valid timing line are dropped.
func ParseSRT(text string) []Cue {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var cues []Cue
	for _, block := range strings.Split(text, "\n\n") {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		for i, line := range lines {
			m := timestampRegex.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			cue := Cue{
				Start: parseTimestamp(m[1:5]),
				End:   parseTimestamp(m[5:9]),
				Text:  strings.TrimSpace(strings.Join(lines[i+1:], "\n")),
			}
			if i > 0 {
				cue.Index, _ = strconv.Atoi(strings.TrimSpace(lines[i-1]))
			}
			cues = append(cues, cue)
			break
		}
	}
	return cues
}

func parseTimestamp(parts []string) time.Duration {
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	s, _ := strconv.Atoi(parts[2])
	ms, _ := strconv.Atoi((parts[3] + "00")[:3])
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second + time.Duration(ms)*time.Millisecond
}

func CleanCues(cues []Cue, opts SubtitleOptions) []Cue {
	out := make([]Cue, 0, len(cues))
	for _, c := range cues {
		text := strings.TrimSpace(c.Text)
		if opts.RemoveHTMLTags {
			text = strings.TrimSpace(htmlTagRegex.ReplaceAllString(text, ""))
		}
		if opts.NormalizePersian {
			text = normalizePersian(text)
		}
		if text == "" || (opts.RemoveAds && isAd(text, opts.AdPatterns)) {
			continue
		}
		c.Text = text
		out = append(out, c)
	}

	if opts.FixOverlap {
		for i := 0; i+1 < len(out); i++ {
			if out[i].End > out[i+1].Start {
				adjusted := out[i+1].Start - time.Millisecond
				if adjusted > out[i].Start {
					out[i].End = adjusted
				}
			}
		}
	}
	if opts.Renumber {
		for i := range out {
			out[i].Index = i + 1
		}
	}
	return out
}

var persianReplacer = strings.NewReplacer("\u064a", "\u06cc", "\u0643", "\u06a9", "\u200c\u200c", "\u200c")

func normalizePersian(s string) string {
	return persianReplacer.Replace(s)
}

func isAd(text string, patterns []*regexp.Regexp) bool {
	lower := strings.ToLower(text)
	for _, p := range patterns {
		if p.MatchString(lower) {
			return true
		}
	}
	return false
}

func ComposeSRT(cues []Cue) string {
	var b strings.Builder
	for i, c := range cues {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n", c.Index, formatTimestamp(c.Start), formatTimestamp(c.End), c.Text)
	}
	return b.String()
}

func formatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, d/time.Millisecond)
}
