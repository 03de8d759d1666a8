package model

import "fmt"

type CourseStatus string

const (
	CourseCreated        CourseStatus = "created"
	CourseScraping       CourseStatus = "scraping"
	CourseScraped        CourseStatus = "scraped"
	CourseProcessing     CourseStatus = "processing"
	CourseReadyForUpload CourseStatus = "ready_for_upload"
	CourseCompleted      CourseStatus = "completed"
	CourseError          CourseStatus = "error"
)

var courseRank = map[CourseStatus]int{
	CourseCreated:        0,
	CourseScraping:       1,
	CourseScraped:        2,
	CourseProcessing:     3,
	CourseReadyForUpload: 4,
	CourseCompleted:      5,
}

// CanAdvance reports whether a course may move from -> to. Forward moves are
// allowed, error is reachable from everything except completed, and an
// errored course may be moved anywhere by an explicit retry.
func (from CourseStatus) CanAdvance(to CourseStatus) bool {
	if from == to {
		return false
	}
	if from == CourseCompleted {
		return false
	}
	if to == CourseError || from == CourseError {
		return true
	}
	return courseRank[to] > courseRank[from]
}

type AssetStatus string

const (
	AssetPending      AssetStatus = "pending"
	AssetDownloading  AssetStatus = "downloading"
	AssetDownloaded   AssetStatus = "downloaded"
	AssetProcessing   AssetStatus = "processing"
	AssetProcessed    AssetStatus = "processed"
	AssetUploading    AssetStatus = "uploading"
	AssetUploaded     AssetStatus = "uploaded"
	AssetError        AssetStatus = "error"
	AssetSkipped      AssetStatus = "skipped"
	AssetNotAvailable AssetStatus = "not_available"
)

// AllAssetStatuses 用于穷举测试
var AllAssetStatuses = []AssetStatus{
	AssetPending, AssetDownloading, AssetDownloaded, AssetProcessing, AssetProcessed,
	AssetUploading, AssetUploaded, AssetError, AssetSkipped, AssetNotAvailable,
}

func (s AssetStatus) IsActive() bool {
	return s == AssetDownloading || s == AssetProcessing || s == AssetUploading
}

type AssetKind string

const (
	KindVideo    AssetKind = "video"
	KindSubtitle AssetKind = "subtitle"
	KindExercise AssetKind = "exercise"
)

var AssetKinds = []AssetKind{KindVideo, KindSubtitle, KindExercise}

func ParseAssetKind(s string) (AssetKind, error) {
	switch AssetKind(s) {
	case KindVideo, KindSubtitle, KindExercise:
		return AssetKind(s), nil
	}
	return "", fmt.Errorf("unknown asset kind %q", s)
}

// Column returns the episodes column for a per-asset field, e.g.
// KindVideo.Column("status") == "video_status".
func (k AssetKind) Column(field string) string {
	return string(k) + "_" + field
}

type LogLevel string

const (
	LevelDebug   LogLevel = "debug"
	LevelInfo    LogLevel = "info"
	LevelWarning LogLevel = "warning"
	LevelError   LogLevel = "error"
)

type TaskStatus string

const (
	TaskQueued  TaskStatus = "queued"
	TaskRunning TaskStatus = "running"
	TaskDone    TaskStatus = "done"
	TaskFailed  TaskStatus = "failed"
)

func (s TaskStatus) Terminal() bool {
	return s == TaskDone || s == TaskFailed
}
