package parser

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	// 课程文件名约定: "001-Intro-to-Go-AbC1-git.ir.mp4"
	leadingEpisodeRegex = regexp.MustCompile(`^(\d{3})[-_\s]+(.+)$`)
	hashCodeRegex       = regexp.MustCompile(`(?i)-([A-Za-z0-9]{4})-git\.ir`)
	gitMarkerRegex      = regexp.MustCompile(`(?i)(-[A-Za-z0-9]{4})?-git\.ir$`)

	sxeRegex          = regexp.MustCompile(`(?i)\bS(\d+)\s*E(\d+)\b`)
	dashEpRegex       = regexp.MustCompile(`\s-\s(\d+)(\s|v\d|END|$)`)
	bracketEpRegex    = regexp.MustCompile(`\[(\d{1,3})\]`)
	episodeWordRegex  = regexp.MustCompile(`(?i)\b(?:episode|ep|lesson|lecture)[\s._-]*(\d{1,3})\b`)
	standaloneNumRegx = regexp.MustCompile(`\b(\d{1,3})(v\d)?\b`)
)

// knownSuffixes is checked longest first so ".fa.srt" wins over ".srt".
var knownSuffixes = []string{
	".fa.srt", ".en.srt", ".srt",
	".mp4", ".mkv", ".avi", ".mov",
	".zip", ".rar", ".7z", ".pdf",
}

// IsVideoFile checks if the file is a video based on extension
func IsVideoFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".mp4", ".mkv", ".avi", ".mov", ".flv", ".wmv", ".ts", ".webm", ".m2ts":
		return true
	}
	return false
}

// EpisodeInfo 从文件名解析出的集数与标题
type EpisodeInfo struct {
	Number   *int
	Title    string
	HashCode string
}

// ParseEpisodeFilename extracts the episode number and title. The course
// convention (three-digit prefix) is tried first, then the looser patterns
// that media filenames use.
func ParseEpisodeFilename(filename string) EpisodeInfo {
	info := EpisodeInfo{}
	if m := hashCodeRegex.FindStringSubmatch(filename); len(m) > 1 {
		info.HashCode = m[1]
	}

	stem := StripKnownSuffix(filename)
	stem = gitMarkerRegex.ReplaceAllString(stem, "")

	if m := leadingEpisodeRegex.FindStringSubmatch(stem); len(m) > 2 {
		n, _ := strconv.Atoi(m[1])
		info.Number = &n
		info.Title = cleanTitle(m[2])
		return info
	}

	normalized := strings.ReplaceAll(stem, "_", " ")

	// Pattern A: "S01E02" / "S1E2"
	if m := sxeRegex.FindStringSubmatch(normalized); len(m) > 2 {
		if e, err := strconv.Atoi(m[2]); err == nil && isLikelyEpisodeNumber(e) {
			info.Number = &e
			info.Title = cleanTitle(normalized[:strings.Index(normalized, m[0])])
			return info
		}
	}

	// Pattern B: "Lesson 05" / "Episode 5"
	if m := episodeWordRegex.FindStringSubmatch(normalized); len(m) > 1 {
		if e, err := strconv.Atoi(m[1]); err == nil && isLikelyEpisodeNumber(e) {
			info.Number = &e
			info.Title = cleanTitle(episodeWordRegex.ReplaceAllString(normalized, ""))
			return info
		}
	}

	// Pattern C: Standard " - 01"
	if m := dashEpRegex.FindStringSubmatch(normalized); len(m) > 1 {
		if e, err := strconv.Atoi(m[1]); err == nil && isLikelyEpisodeNumber(e) {
			info.Number = &e
			info.Title = cleanTitle(normalized[:strings.Index(normalized, m[0])])
			return info
		}
	}

	// Bracket pattern [01]
	for _, m := range bracketEpRegex.FindAllStringSubmatch(normalized, -1) {
		if e, _ := strconv.Atoi(m[1]); isLikelyEpisodeNumber(e) {
			info.Number = &e
			info.Title = cleanTitle(bracketEpRegex.ReplaceAllString(normalized, ""))
			return info
		}
	}

	// Fallback: 最后一个看起来像集数的独立数字
	all := standaloneNumRegx.FindAllStringSubmatch(normalized, -1)
	for i := len(all) - 1; i >= 0; i-- {
		e, _ := strconv.Atoi(all[i][1])
		if isLikelyEpisodeNumber(e) {
			info.Number = &e
			break
		}
	}
	info.Title = cleanTitle(normalized)
	return info
}

// StripKnownSuffix removes one recognised media/archive suffix.
func StripKnownSuffix(filename string) string {
	lower := strings.ToLower(filename)
	for _, suf := range knownSuffixes {
		if strings.HasSuffix(lower, suf) {
			return filename[:len(filename)-len(suf)]
		}
	}
	return filename
}

func isLikelyEpisodeNumber(num int) bool {
	if num == 0 {
		return false
	}
	// Filter out common resolutions if they appear as standalone numbers (rare but possible)
	if num == 360 || num == 480 || num == 720 || num == 1080 || num == 2160 {
		return false
	}
	// Filter out years
	if num > 1900 && num < 2100 {
		return false
	}
	// Filter out video codecs
	if num == 264 || num == 265 {
		return false
	}
	return true
}

func cleanTitle(raw string) string {
	s := strings.NewReplacer("-", " ", "_", " ", ".", " ").Replace(raw)
	// Remove leading [...]
	s = regexp.MustCompile(`^\[.*?\]\s*`).ReplaceAllString(s, "")
	// normalize spacing
	return strings.Join(strings.Fields(s), " ")
}
