// Package progress derives the read-only views: per-course completion and the
// dashboard counters. Everything is recomputed on demand.
package progress

import (
	"context"
	"time"

	"github.com/pokerjest/acms/internal/asset"
	"github.com/pokerjest/acms/internal/model"
	"github.com/pokerjest/acms/internal/repo"
)

// TaskCounter counts queued+running tasks; *dispatch.Dispatcher fits.
type TaskCounter interface {
	CountActive(ctx context.Context) (int64, error)
}

type EpisodeView struct {
	ID           uint                                  `json:"id"`
	Number       *int                                  `json:"episode_number"`
	Label        string                                `json:"label"`
	TitleEN      string                                `json:"title_en"`
	TitleFA      string                                `json:"title_fa"`
	Status       model.AssetStatus                     `json:"status"`
	Progress     int                                   `json:"progress"`
	Assets       map[model.AssetKind]model.AssetStatus `json:"assets"`
	CanRetry     bool                                  `json:"can_retry"`
	ErrorMessage string                                `json:"error_message,omitempty"`
}

type CourseView struct {
	CourseID      uint                      `json:"course_id"`
	Status        model.CourseStatus        `json:"status"`
	DebugMode     bool                      `json:"debug_mode"`
	Percent       float64                   `json:"percent"`
	TotalEpisodes int                       `json:"total_episodes"`
	DoneEpisodes  int                       `json:"done_episodes"`
	Counts        map[model.AssetStatus]int `json:"counts"`
	LinksExpired  bool                      `json:"links_expired"`
	UploadSummary interface{}               `json:"upload_summary,omitempty"`
	Episodes      []EpisodeView             `json:"episodes"`
}

type Dashboard struct {
	TotalCourses  int64 `json:"total_courses"`
	ActiveCourses int64 `json:"active_courses"`
	PendingTasks  int64 `json:"pending_tasks"`
	FailedLast24h int64 `json:"failed_last_24h"`
}

type Service struct {
	store *repo.Store
	tasks TaskCounter
	now   func() time.Time
}

func NewService(store *repo.Store, tasks TaskCounter) *Service {
	return &Service{store: store, tasks: tasks, now: time.Now}
}

// CourseProgress 课程完成度，百分比保留一位小数，无分集时为 0
func (s *Service) CourseProgress(ctx context.Context, courseID uint) (*CourseView, error) {
	c, err := s.store.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	eps, err := s.store.ListEpisodes(ctx, courseID)
	if err != nil {
		return nil, err
	}

	view := &CourseView{
		CourseID:      c.ID,
		Status:        c.Status,
		DebugMode:     c.DebugMode,
		Percent:       asset.CourseProgress(eps),
		TotalEpisodes: len(eps),
		Counts:        map[model.AssetStatus]int{},
		Episodes:      make([]EpisodeView, 0, len(eps)),
		UploadSummary: c.ExtraMetadata[model.MetaKeyUploadSummary],
	}
	view.LinksExpired, _ = c.ExtraMetadata[model.MetaKeyLinksExpired].(bool)

	for i := range eps {
		ep := &eps[i]
		composite := asset.Composite(ep)
		view.Counts[composite]++
		if composite == asset.CompositeDone {
			view.DoneEpisodes++
		}
		assets := make(map[model.AssetKind]model.AssetStatus, len(model.AssetKinds))
		for _, kind := range model.AssetKinds {
			assets[kind] = ep.Status(kind)
		}
		view.Episodes = append(view.Episodes, EpisodeView{
			ID:           ep.ID,
			Number:       ep.EpisodeNumber,
			Label:        ep.Label(),
			TitleEN:      ep.TitleEN,
			TitleFA:      ep.TitleFA,
			Status:       composite,
			Progress:     asset.EpisodeProgress(ep),
			Assets:       assets,
			CanRetry:     asset.CanRetry(ep),
			ErrorMessage: ep.ErrorMessage,
		})
	}
	return view, nil
}

var activeStatuses = []model.AssetStatus{model.AssetDownloading, model.AssetProcessing, model.AssetUploading}

// DashboardStats counts courses, courses with work in flight, queued+running
// tasks and task failures logged in the last 24 hours.
func (s *Service) DashboardStats(ctx context.Context) (*Dashboard, error) {
	var d Dashboard
	db := s.store.DB.WithContext(ctx)

	if err := db.Model(&model.Course{}).Count(&d.TotalCourses).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.Episode{}).Distinct("course_id").
		Where("video_status IN ? OR subtitle_status IN ? OR exercise_status IN ?", activeStatuses, activeStatuses, activeStatuses).
		Count(&d.ActiveCourses).Error; err != nil {
		return nil, err
	}
	if s.tasks != nil {
		n, err := s.tasks.CountActive(ctx)
		if err != nil {
			return nil, err
		}
		d.PendingTasks = n
	}
	since := s.now().UTC().Add(-24 * time.Hour)
	if err := db.Model(&model.TaskLog{}).
		Where("status = ? AND created_at >= ?", "failed", since).
		Count(&d.FailedLast24h).Error; err != nil {
		return nil, err
	}
	return &d, nil
}
