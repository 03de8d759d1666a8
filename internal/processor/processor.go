package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
)

var (
	ErrEmptyFile    = errors.New("file is empty")
	ErrInvalidVideo = errors.New("video failed validation")
	ErrNoCues       = errors.New("subtitle has no usable cues")
)

// Processor 下载后的文件处理：字幕清洗、视频/练习文件校验
type Processor interface {
	ProcessVideo(ctx context.Context, path string) (VideoInfo, error)
	ProcessSubtitle(ctx context.Context, src, dst string) (SubtitleStats, error)
	ProcessExercise(ctx context.Context, path string) error
}

type Local struct {
	FFprobe  string
	Subtitle SubtitleOptions
}

func NewLocal(ffprobe string) *Local {
	return &Local{FFprobe: ffprobe, Subtitle: DefaultSubtitleOptions()}
}

func (p *Local) ProcessVideo(ctx context.Context, path string) (VideoInfo, error) {
	return ValidateVideo(ctx, p.FFprobe, path)
}

func (p *Local) ProcessSubtitle(_ context.Context, src, dst string) (SubtitleStats, error) {
	return CleanSubtitleFile(src, dst, p.Subtitle)
}

func (p *Local) ProcessExercise(_ context.Context, path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat exercise: %w", err)
	}
	if fi.Size() == 0 {
		return ErrEmptyFile
	}
	return nil
}
