// Package asset holds the per-episode asset status rules: transition guards,
// the composite display status and progress weights.
package asset

import (
	"math"

	"github.com/pokerjest/acms/internal/model"
)

// CanDownload is true iff the asset is pending or errored.
func CanDownload(s model.AssetStatus) bool {
	return s == model.AssetPending || s == model.AssetError
}

// CanProcess is true when the asset is downloaded, or when it is already
// processed while a sibling asset is still downloaded (video muxing waits on
// the subtitle).
func CanProcess(ep *model.Episode, kind model.AssetKind) bool {
	switch ep.Status(kind) {
	case model.AssetDownloaded:
		return true
	case model.AssetProcessed:
		return siblingHas(ep, kind, model.AssetDownloaded)
	}
	return false
}

// CanUpload 已处理/已上传 (幂等重传检查) 或者同集的另一类资源已处理
func CanUpload(ep *model.Episode, kind model.AssetKind) bool {
	switch ep.Status(kind) {
	case model.AssetProcessed, model.AssetUploaded:
		return true
	}
	return siblingHas(ep, kind, model.AssetProcessed)
}

func CanRetry(ep *model.Episode) bool {
	for _, k := range model.AssetKinds {
		if ep.Status(k) == model.AssetError {
			return true
		}
	}
	return false
}

// RetryStage is the active state an errored asset goes back to on retry.
// Assets that failed before a stage was recorded restart at downloading.
func RetryStage(ep *model.Episode, kind model.AssetKind) model.AssetStatus {
	a := ep.Asset(kind)
	if a.Status != model.AssetError {
		return ""
	}
	switch a.FailedStage {
	case model.AssetProcessing, model.AssetUploading:
		return a.FailedStage
	}
	return model.AssetDownloading
}

// IsDone 视频已上传且字幕已上传/不可用/跳过
func IsDone(ep *model.Episode) bool {
	if ep.VideoStatus != model.AssetUploaded {
		return false
	}
	switch ep.SubtitleStatus {
	case model.AssetUploaded, model.AssetNotAvailable, model.AssetSkipped:
		return true
	}
	return false
}

// Composite statuses for display. "done" is the only value that is not an
// AssetStatus.
const CompositeDone model.AssetStatus = "done"

// Composite collapses the three assets into one display status. In-progress
// outranks error, error outranks done, done outranks partial progress.
func Composite(ep *model.Episode) model.AssetStatus {
	for _, s := range []model.AssetStatus{
		model.AssetUploading,
		model.AssetProcessing,
		model.AssetDownloading,
		model.AssetError,
	} {
		if anyStatus(ep, s) {
			return s
		}
	}
	if IsDone(ep) {
		return CompositeDone
	}
	if anyStatus(ep, model.AssetProcessed) {
		return model.AssetProcessed
	}
	if anyStatus(ep, model.AssetDownloaded) {
		return model.AssetDownloaded
	}
	return model.AssetPending
}

var weights = map[model.AssetStatus]int{
	model.AssetPending:      0,
	model.AssetDownloading:  35,
	model.AssetDownloaded:   60,
	model.AssetProcessing:   78,
	model.AssetProcessed:    90,
	model.AssetUploading:    95,
	model.AssetUploaded:     100,
	model.AssetSkipped:      100,
	model.AssetNotAvailable: 100,
	model.AssetError:        0,
}

func Weight(s model.AssetStatus) int {
	return weights[s]
}

// EpisodeProgress is round(mean of the three asset weights), in [0,100].
func EpisodeProgress(ep *model.Episode) int {
	sum := 0
	for _, k := range model.AssetKinds {
		sum += Weight(ep.Status(k))
	}
	return int(math.Round(float64(sum) / float64(len(model.AssetKinds))))
}

// CourseProgress is the mean episode progress rounded to one decimal; zero
// episodes report 0.
func CourseProgress(episodes []model.Episode) float64 {
	if len(episodes) == 0 {
		return 0
	}
	sum := 0
	for i := range episodes {
		sum += EpisodeProgress(&episodes[i])
	}
	mean := float64(sum) / float64(len(episodes))
	return math.Round(mean*10) / 10
}

func siblingHas(ep *model.Episode, kind model.AssetKind, s model.AssetStatus) bool {
	for _, k := range model.AssetKinds {
		if k != kind && ep.Status(k) == s {
			return true
		}
	}
	return false
}

func anyStatus(ep *model.Episode, s model.AssetStatus) bool {
	for _, k := range model.AssetKinds {
		if ep.Status(k) == s {
			return true
		}
	}
	return false
}
