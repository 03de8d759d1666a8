package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/pokerjest/acms/internal/logger"
	"github.com/pokerjest/acms/internal/model"
	"github.com/pokerjest/acms/internal/renamer"
	"github.com/pokerjest/acms/internal/repo"
	"github.com/pokerjest/acms/internal/tasklog"
	"gorm.io/gorm"
)

var (
	ErrCourseExists  = errors.New("course with this source url already exists")
	ErrInvalidSource = errors.New("source_url must be an absolute http(s) url")
)

type CreateCourseInput struct {
	SourceURL string `json:"source_url" binding:"required"`
	TitleEN   string `json:"title_en"`
	Slug      string `json:"slug"`
	DebugMode *bool  `json:"debug_mode"`
}

type CourseService struct {
	store  *repo.Store
	layout renamer.Layout
	logs   *tasklog.Recorder
	log    *logger.Logger
}

func NewCourseService(store *repo.Store, layout renamer.Layout, logs *tasklog.Recorder, log *logger.Logger) *CourseService {
	return &CourseService{store: store, layout: layout, logs: logs, log: log.With("component", "CourseService")}
}

// Create registers a course in status created. debug_mode falls back to the
// default_debug_mode setting.
func (s *CourseService) Create(ctx context.Context, in CreateCourseInput) (*model.Course, error) {
	u, err := url.Parse(strings.TrimSpace(in.SourceURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrInvalidSource
	}
	source := u.String()

	var n int64
	if err := s.store.DB.WithContext(ctx).Model(&model.Course{}).Where("source_url = ?", source).Count(&n).Error; err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, ErrCourseExists
	}

	debug := false
	if in.DebugMode != nil {
		debug = *in.DebugMode
	} else if v, err := s.store.Setting(ctx, model.ConfigKeyDefaultDebugMode); err == nil && v != "" {
		debug, _ = strconv.ParseBool(v)
	}

	slug := renamer.Slugify(in.Slug)
	if slug == "" {
		slug = renamer.Slugify(in.TitleEN)
	}
	if slug == "" {
		slug = renamer.Slugify(path.Base(strings.TrimSuffix(u.Path, "/")))
	}

	c := &model.Course{
		SourceURL: source,
		Slug:      slug,
		TitleEN:   in.TitleEN,
		Status:    model.CourseCreated,
		DebugMode: debug,
	}
	if err := s.store.DB.WithContext(ctx).Create(c).Error; err != nil {
		return nil, fmt.Errorf("create course: %w", err)
	}
	if c.Slug == "" {
		c.Slug = fmt.Sprintf("course-%d", c.ID)
		if err := s.store.UpdateCourse(ctx, c.ID, map[string]interface{}{"slug": c.Slug}); err != nil {
			return nil, err
		}
	}
	if err := s.layout.Ensure(c.Slug); err != nil {
		s.log.Warn("create course directories failed", "slug", c.Slug, "error", err)
	}
	s.logs.Info(ctx, c.ID, 0, "course", "created", "Course created", map[string]interface{}{"source_url": source, "slug": c.Slug})
	return c, nil
}

func (s *CourseService) List(ctx context.Context) ([]model.Course, error) {
	var courses []model.Course
	err := s.store.DB.WithContext(ctx).Order("created_at DESC, id DESC").Find(&courses).Error
	return courses, err
}

// Get returns the course with its episodes in pipeline order.
func (s *CourseService) Get(ctx context.Context, id uint) (*model.Course, error) {
	c, err := s.store.GetCourse(ctx, id)
	if err != nil {
		return nil, err
	}
	eps, err := s.store.ListEpisodes(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Episodes = eps
	return c, nil
}

func (s *CourseService) Episodes(ctx context.Context, id uint) ([]model.Episode, error) {
	if _, err := s.store.GetCourse(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListEpisodes(ctx, id)
}

// Delete removes the course with its episodes and link batches. wipe also
// deletes the downloaded files.
func (s *CourseService) Delete(ctx context.Context, id uint, wipe bool) error {
	c, err := s.store.GetCourse(ctx, id)
	if err != nil {
		return err
	}
	err = s.store.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("course_id = ?", id).Delete(&model.Episode{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("course_id = ?", id).Delete(&model.DownloadLinkBatch{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&model.Course{}, id).Error
	})
	if err != nil {
		return fmt.Errorf("delete course %d: %w", id, err)
	}
	if wipe {
		if err := s.layout.Wipe(c.Slug); err != nil {
			s.log.Warn("wipe course storage failed", "slug", c.Slug, "error", err)
		}
	}
	s.logs.Info(ctx, 0, 0, "course", "deleted", fmt.Sprintf("Course %d deleted", id), map[string]interface{}{"wipe": wipe, "slug": c.Slug})
	return nil
}
