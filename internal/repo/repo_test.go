package repo

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pokerjest/acms/internal/db"
	"github.com/pokerjest/acms/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	conn, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return New(conn)
}

func seed(t *testing.T, s *Store) (*model.Course, *model.Episode) {
	t.Helper()
	c := &model.Course{SourceURL: "https://example.com/c/1", Status: model.CourseScraped}
	require.NoError(t, s.DB.Create(c).Error)
	n := 1
	ep := &model.Episode{CourseID: c.ID, EpisodeNumber: &n,
		VideoStatus: model.AssetPending, SubtitleStatus: model.AssetPending, ExerciseStatus: model.AssetNotAvailable}
	require.NoError(t, s.DB.Create(ep).Error)
	return c, ep
}

func TestTransitionAssetOnlyOneWriterWins(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, ep := seed(t, s)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.TransitionAsset(ctx, ep.ID, model.KindVideo,
				[]model.AssetStatus{model.AssetPending, model.AssetError}, model.AssetDownloading, nil)
			assert.NoError(t, err)
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)

	got, err := s.GetEpisode(ctx, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AssetDownloading, got.VideoStatus)
	// other kinds untouched
	assert.Equal(t, model.AssetPending, got.SubtitleStatus)
}

func TestMarkAssetErrorAndClear(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, ep := seed(t, s)

	require.NoError(t, s.MarkAssetError(ctx, ep.ID, model.KindVideo, model.AssetDownloading, "Video download failed: timeout"))
	got, _ := s.GetEpisode(ctx, ep.ID)
	assert.Equal(t, model.AssetError, got.VideoStatus)
	assert.Equal(t, model.AssetDownloading, got.VideoFailedStage)
	assert.Equal(t, "Video download failed: timeout", got.ErrorMessage)

	// still errored: message kept
	require.NoError(t, s.ClearResolvedError(ctx, ep.ID))
	got, _ = s.GetEpisode(ctx, ep.ID)
	assert.NotEmpty(t, got.ErrorMessage)

	ok, err := s.TransitionAsset(ctx, ep.ID, model.KindVideo, []model.AssetStatus{model.AssetError}, model.AssetDownloaded, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, s.ClearResolvedError(ctx, ep.ID))
	got, _ = s.GetEpisode(ctx, ep.ID)
	assert.Empty(t, got.ErrorMessage)
}

func TestNotAvailableIsTerminalForErrors(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, ep := seed(t, s)

	require.NoError(t, s.MarkAssetError(ctx, ep.ID, model.KindExercise, model.AssetDownloading, "boom"))
	got, _ := s.GetEpisode(ctx, ep.ID)
	assert.Equal(t, model.AssetNotAvailable, got.ExerciseStatus)
}

func TestAdvanceCourseStatusNeverLeavesCompleted(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	c, _ := seed(t, s)

	changed, err := s.AdvanceCourseStatus(ctx, c.ID, model.CourseProcessing)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, _ = s.AdvanceCourseStatus(ctx, c.ID, model.CourseScraped)
	assert.False(t, changed, "no regression")

	changed, _ = s.AdvanceCourseStatus(ctx, c.ID, model.CourseCompleted)
	assert.True(t, changed)
	changed, _ = s.AdvanceCourseStatus(ctx, c.ID, model.CourseError)
	assert.False(t, changed)

	got, _ := s.GetCourse(ctx, c.ID)
	assert.Equal(t, model.CourseCompleted, got.Status)
}

func TestUpdateCourseMetadata(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	c, _ := seed(t, s)

	require.NoError(t, s.UpdateCourseMetadata(ctx, c.ID, func(m map[string]interface{}) {
		m[model.MetaKeyLinksExpired] = true
	}))
	got, _ := s.GetCourse(ctx, c.ID)
	assert.Equal(t, true, got.ExtraMetadata[model.MetaKeyLinksExpired])

	_, err := s.GetCourse(ctx, 999)
	assert.ErrorIs(t, err, ErrCourseNotFound)
}

func TestSettingsUpsert(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	v, err := s.Setting(ctx, model.ConfigKeyDefaultDebugMode)
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SaveSetting(ctx, model.ConfigKeyDefaultDebugMode, "true"))
	require.NoError(t, s.SaveSetting(ctx, model.ConfigKeyDefaultDebugMode, "false"))
	v, err = s.Setting(ctx, model.ConfigKeyDefaultDebugMode)
	require.NoError(t, err)
	assert.Equal(t, "false", v)

	all, err := s.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{model.ConfigKeyDefaultDebugMode: "false"}, all)
}
