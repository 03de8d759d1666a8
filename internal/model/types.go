package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Course 代表一个待迁移的课程
type Course struct {
	gorm.Model
	SourceURL      string            `json:"source_url" gorm:"uniqueIndex;not null"`
	Slug           string            `json:"slug"`
	TitleEN        string            `json:"title_en"`
	TitleFA        string            `json:"title_fa"`
	DescriptionEN  string            `json:"description_en"`
	DescriptionFA  string            `json:"description_fa"`
	Instructor     string            `json:"instructor"`
	SourcePlatform string            `json:"source_platform"`
	ThumbnailURL   string            `json:"thumbnail_url"`
	LecturesCount  int               `json:"lectures_count"`
	Status         CourseStatus      `json:"status" gorm:"index;default:'created'"`
	DebugMode      bool              `json:"debug_mode"`
	ExtraMetadata  datatypes.JSONMap `json:"extra_metadata"`
	Episodes       []Episode         `json:"episodes,omitempty" gorm:"constraint:OnDelete:CASCADE"`
}

// Episode 课程中的一集，三种资源各自维护状态
type Episode struct {
	gorm.Model
	CourseID      uint   `json:"course_id" gorm:"index;not null"`
	EpisodeNumber *int   `json:"episode_number" gorm:"index"`
	TitleEN       string `json:"title_en"`
	TitleFA       string `json:"title_fa"`
	HashCode      string `json:"hash_code"`
	SortOrder     int    `json:"sort_order"`

	VideoStatus      AssetStatus `json:"video_status" gorm:"default:'pending'"`
	VideoDownloadURL string      `json:"video_download_url"`
	VideoLocalPath   string      `json:"video_local_path"`
	VideoFilename    string      `json:"video_filename"`
	VideoFailedStage AssetStatus `json:"video_failed_stage"`

	SubtitleStatus        AssetStatus `json:"subtitle_status" gorm:"default:'pending'"`
	SubtitleDownloadURL   string      `json:"subtitle_download_url"`
	SubtitleLocalPath     string      `json:"subtitle_local_path"`
	SubtitleFilename      string      `json:"subtitle_filename"`
	SubtitleFailedStage   AssetStatus `json:"subtitle_failed_stage"`
	SubtitleProcessedPath string      `json:"subtitle_processed_path"`
	SubtitleLanguage      string      `json:"subtitle_language"`

	ExerciseStatus      AssetStatus `json:"exercise_status" gorm:"default:'not_available'"`
	ExerciseDownloadURL string      `json:"exercise_download_url"`
	ExerciseLocalPath   string      `json:"exercise_local_path"`
	ExerciseFilename    string      `json:"exercise_filename"`
	ExerciseFailedStage AssetStatus `json:"exercise_failed_stage"`

	ErrorMessage  string     `json:"error_message"`
	RetryCount    int        `json:"retry_count"`
	LastAttemptAt *time.Time `json:"last_attempt_at"`
}

// TaskLog 结构化任务日志，也是实时推送的数据源
type TaskLog struct {
	ID        uint              `json:"id" gorm:"primaryKey"`
	CourseID  *uint             `json:"course_id" gorm:"index"`
	EpisodeID *uint             `json:"episode_id"`
	Level     LogLevel          `json:"level"`
	TaskType  string            `json:"task_type" gorm:"index"`
	Status    string            `json:"status" gorm:"index"`
	Message   string            `json:"message"`
	Details   datatypes.JSONMap `json:"details"`
	CreatedAt time.Time         `json:"timestamp" gorm:"index"`
}

// DownloadLinkBatch 记录每次粘贴的链接批次
type DownloadLinkBatch struct {
	gorm.Model
	CourseID    uint   `json:"course_id" gorm:"index"`
	RawLinks    string `json:"raw_links"`
	Token       string `json:"token"`
	Hash        string `json:"hash"`
	CourseAPIID string `json:"course_api_id"`
	IsActive    bool   `json:"is_active"`
}

// ProcessingTask 每次 Submit 留下的任务记录，dashboard 的排队数从这里现算
type ProcessingTask struct {
	ID          string         `json:"id" gorm:"primaryKey"`
	Kind        string         `json:"kind" gorm:"index"`
	CourseID    uint           `json:"course_id" gorm:"index"`
	EpisodeID   *uint          `json:"episode_id"`
	Mode        string         `json:"mode"`
	Status      TaskStatus     `json:"status" gorm:"index"`
	Payload     datatypes.JSON `json:"payload"`
	Result      datatypes.JSON `json:"result"`
	Error       string         `json:"error"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	StartedAt   *time.Time     `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at"`
}

// User 管理后台账号
type User struct {
	gorm.Model
	Username     string `json:"username" gorm:"uniqueIndex;not null"`
	PasswordHash string `json:"-"`
}

// GlobalConfig 存储运行期可调的配置
type GlobalConfig struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

const (
	MetaKeyLinksExpired   = "links_expired"
	MetaKeyLinksExpiredAt = "links_expired_at"
	// MetaKeyLinksExpiredAssets lists "<episode id>:<kind>" for each asset
	// whose link expired and has not been replaced yet.
	MetaKeyLinksExpiredAssets = "links_expired_assets"
	MetaKeyUploadSummary      = "upload_summary"
	MetaKeySEOContent         = "seo_content"
)

// 运行期设置 (GlobalConfig.Key)
const (
	ConfigKeyDefaultDebugMode = "default_debug_mode"
	ConfigKeyAutoTranslate    = "auto_translate"
)

// SettingKeys 允许通过 API 修改的设置
var SettingKeys = []string{ConfigKeyDefaultDebugMode, ConfigKeyAutoTranslate}
