package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// minFallbackSize 没有 ffprobe 时的最小可接受文件大小
const minFallbackSize = 1024

type VideoInfo struct {
	Duration   float64 `json:"duration"`
	Size       int64   `json:"size"`
	Resolution string  `json:"resolution,omitempty"`
	Codec      string  `json:"codec,omitempty"`
	Probed     bool    `json:"probed"`
}

type probeOutput struct {
	Streams []struct {
		CodecName string `json:"codec_name"`
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		Size     string `json:"size"`
	} `json:"format"`
}

// ValidateVideo runs ffprobe on path. When the binary is missing the file is
// accepted on size alone.
func ValidateVideo(ctx context.Context, binary, path string) (VideoInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return VideoInfo{}, fmt.Errorf("stat video: %w", err)
	}
	if fi.Size() == 0 {
		return VideoInfo{}, ErrEmptyFile
	}

	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-show_format", "-show_streams", "-of", "json", "--", path) //nolint:gosec
	out, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			if fi.Size() <= minFallbackSize {
				return VideoInfo{}, fmt.Errorf("%w: %d bytes", ErrInvalidVideo, fi.Size())
			}
			return VideoInfo{Size: fi.Size()}, nil
		}
		return VideoInfo{}, fmt.Errorf("%w: %v", ErrInvalidVideo, err)
	}

	var probe probeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return VideoInfo{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	info := VideoInfo{Size: fi.Size(), Probed: true}
	info.Duration, _ = strconv.ParseFloat(strings.TrimSpace(probe.Format.Duration), 64)
	for _, s := range probe.Streams {
		if strings.EqualFold(s.CodecType, "video") {
			info.Codec = s.CodecName
			info.Resolution = fmt.Sprintf("%dx%d", s.Width, s.Height)
			break
		}
	}
	if info.Codec == "" {
		return info, fmt.Errorf("%w: no video stream", ErrInvalidVideo)
	}
	return info, nil
}
