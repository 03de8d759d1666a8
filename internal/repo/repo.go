// Package repo is the storage boundary for courses and episodes. Asset status
// changes go through compare-and-set updates so that two writers racing on the
// same asset cannot both win.
package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pokerjest/acms/internal/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrCourseNotFound  = errors.New("course not found")
	ErrEpisodeNotFound = errors.New("episode not found")
)

type Store struct {
	DB *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{DB: db}
}

func (s *Store) GetCourse(ctx context.Context, id uint) (*model.Course, error) {
	var c model.Course
	if err := s.DB.WithContext(ctx).First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrCourseNotFound, id)
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) GetEpisode(ctx context.Context, id uint) (*model.Episode, error) {
	var ep model.Episode
	if err := s.DB.WithContext(ctx).First(&ep, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrEpisodeNotFound, id)
		}
		return nil, err
	}
	return &ep, nil
}

// ListEpisodes returns the course episodes ordered by episode number
// ascending; episodes without a number go last.
func (s *Store) ListEpisodes(ctx context.Context, courseID uint) ([]model.Episode, error) {
	var eps []model.Episode
	err := s.DB.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("episode_number IS NULL, episode_number ASC, sort_order ASC, id ASC").
		Find(&eps).Error
	return eps, err
}

// TransitionAsset moves one asset to `to` only if its current status is one
// of `from`. extra columns are written in the same statement. It reports
// whether this caller won the transition.
func (s *Store) TransitionAsset(ctx context.Context, episodeID uint, kind model.AssetKind, from []model.AssetStatus, to model.AssetStatus, extra map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{kind.Column("status"): to}
	for k, v := range extra {
		updates[k] = v
	}
	res := s.DB.WithContext(ctx).Model(&model.Episode{}).
		Where("id = ? AND "+kind.Column("status")+" IN ?", episodeID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkAssetError records a failure that happened while the asset was in
// `stage`. The message lands in the episode-level error_message.
func (s *Store) MarkAssetError(ctx context.Context, episodeID uint, kind model.AssetKind, stage model.AssetStatus, message string) error {
	now := time.Now()
	_, err := s.TransitionAsset(ctx, episodeID, kind,
		[]model.AssetStatus{model.AssetDownloading, model.AssetProcessing, model.AssetUploading, model.AssetPending, model.AssetDownloaded, model.AssetProcessed},
		model.AssetError,
		map[string]interface{}{
			kind.Column("failed_stage"): stage,
			"error_message":             message,
			"last_attempt_at":           &now,
		})
	return err
}

// ClearResolvedError drops error_message once no asset of the episode is in
// error any more.
func (s *Store) ClearResolvedError(ctx context.Context, episodeID uint) error {
	return s.DB.WithContext(ctx).Model(&model.Episode{}).
		Where("id = ? AND video_status <> ? AND subtitle_status <> ? AND exercise_status <> ?",
			episodeID, model.AssetError, model.AssetError, model.AssetError).
		Update("error_message", "").Error
}

func (s *Store) UpdateEpisode(ctx context.Context, episodeID uint, updates map[string]interface{}) error {
	return s.DB.WithContext(ctx).Model(&model.Episode{}).Where("id = ?", episodeID).Updates(updates).Error
}

// UpdateCourseMetadata applies fn to a copy of extra_metadata inside a
// transaction and writes it back.
func (s *Store) UpdateCourseMetadata(ctx context.Context, courseID uint, fn func(meta map[string]interface{})) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c model.Course
		if err := tx.Select("id", "extra_metadata").First(&c, courseID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %d", ErrCourseNotFound, courseID)
			}
			return err
		}
		meta := map[string]interface{}{}
		for k, v := range c.ExtraMetadata {
			meta[k] = v
		}
		fn(meta)
		return tx.Model(&model.Course{}).Where("id = ?", courseID).
			Update("extra_metadata", datatypes.JSONMap(meta)).Error
	})
}

// AdvanceCourseStatus moves the course forward; it never regresses and never
// leaves completed. Returns whether the status changed.
func (s *Store) AdvanceCourseStatus(ctx context.Context, courseID uint, to model.CourseStatus) (bool, error) {
	c, err := s.GetCourse(ctx, courseID)
	if err != nil {
		return false, err
	}
	if !c.Status.CanAdvance(to) {
		return false, nil
	}
	res := s.DB.WithContext(ctx).Model(&model.Course{}).
		Where("id = ? AND status = ?", courseID, c.Status).
		Update("status", to)
	return res.RowsAffected == 1, res.Error
}

func (s *Store) UpdateCourse(ctx context.Context, courseID uint, updates map[string]interface{}) error {
	return s.DB.WithContext(ctx).Model(&model.Course{}).Where("id = ?", courseID).Updates(updates).Error
}

func (s *Store) CreateEpisode(ctx context.Context, ep *model.Episode) error {
	return s.DB.WithContext(ctx).Create(ep).Error
}

// IncrementRetry bumps retry_count and stamps last_attempt_at.
func (s *Store) IncrementRetry(ctx context.Context, episodeID uint) error {
	return s.DB.WithContext(ctx).Model(&model.Episode{}).Where("id = ?", episodeID).
		Updates(map[string]interface{}{
			"retry_count":     gorm.Expr("retry_count + ?", 1),
			"last_attempt_at": time.Now(),
		}).Error
}

// Setting reads a GlobalConfig value; missing keys read as "".
func (s *Store) Setting(ctx context.Context, key string) (string, error) {
	var cfg model.GlobalConfig
	err := s.DB.WithContext(ctx).Where("key = ?", key).Limit(1).Find(&cfg).Error
	return cfg.Value, err
}

func (s *Store) SaveSetting(ctx context.Context, key, value string) error {
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&model.GlobalConfig{Key: key, Value: value}).Error
}

// Settings returns every stored setting.
func (s *Store) Settings(ctx context.Context) (map[string]string, error) {
	var rows []model.GlobalConfig
	if err := s.DB.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}
