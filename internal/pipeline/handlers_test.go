package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pokerjest/acms/internal/dispatch"
	"github.com/pokerjest/acms/internal/downloader"
	"github.com/pokerjest/acms/internal/event"
	"github.com/pokerjest/acms/internal/logger"
	"github.com/pokerjest/acms/internal/model"
	"github.com/pokerjest/acms/internal/renamer"
	"github.com/pokerjest/acms/internal/scraper"
	"github.com/pokerjest/acms/internal/service"
	"github.com/pokerjest/acms/internal/tasklog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	expiringVideo    = "https://cdn.example.com/go/001-Lesson-AbCd-git.ir.mp4?token=t1&hash=h1"
	expiringSubtitle = "https://cdn.example.com/go/001-Lesson-AbCd-git.ir.fa.srt?token=t1&hash=h1"
)

func TestDownloadFailureLeavesOtherClaimsAlone(t *testing.T) {
	env := newTestEnv(t, false, 1)
	ctx := context.Background()
	id := env.eps[0].ID
	// exercise is owned by another in-flight task
	require.NoError(t, env.store.UpdateEpisode(ctx, id, map[string]interface{}{
		"exercise_status":       model.AssetDownloading,
		"exercise_download_url": "https://cdn.example.com/go/001-files.zip",
	}))
	env.dl.fail[videoURL(1)] = &downloader.Error{Kind: downloader.KindNetwork, Err: errors.New("reset")}

	sub := env.orch.dispatcher.Submit(ctx, dispatch.DownloadTask{CourseID: env.course.ID, EpisodeID: id, Kinds: []model.AssetKind{model.KindVideo}})
	assert.True(t, sub.Failed())

	ep := env.episode(t, 0)
	assert.Equal(t, model.AssetError, ep.VideoStatus)
	assert.Equal(t, model.AssetDownloading, ep.ExerciseStatus)
	assert.Equal(t, "video download failed: network: reset", ep.ErrorMessage)
}

func TestDownloadLinkExpiredFlagsCourse(t *testing.T) {
	env := newTestEnv(t, false, 1)
	ctx := context.Background()
	id := env.eps[0].ID
	require.NoError(t, env.store.UpdateEpisode(ctx, id, map[string]interface{}{"video_download_url": expiringVideo}))
	env.dl.fail[expiringVideo] = &downloader.Error{Kind: downloader.KindLinkExpired, StatusCode: 403, Err: errors.New("forbidden")}

	sub := env.orch.dispatcher.Submit(ctx, dispatch.DownloadTask{CourseID: env.course.ID, EpisodeID: id})
	assert.True(t, sub.Failed())

	ep := env.episode(t, 0)
	assert.Equal(t, model.AssetError, ep.VideoStatus)
	assert.True(t, strings.HasPrefix(ep.ErrorMessage, downloader.ExpiredPrefix), ep.ErrorMessage)

	c, err := env.store.GetCourse(ctx, env.course.ID)
	require.NoError(t, err)
	assert.Equal(t, true, c.ExtraMetadata[model.MetaKeyLinksExpired])
	assert.NotEmpty(t, c.ExtraMetadata[model.MetaKeyLinksExpiredAt])
	assert.Equal(t, []string{model.ExpiredAssetKey(id, model.KindVideo)}, model.ExpiredAssets(c.ExtraMetadata))
}

func TestExpiredLinkRecoveredAfterSiblingFailure(t *testing.T) {
	env := newTestEnv(t, false, 1)
	ctx := context.Background()
	id := env.eps[0].ID
	require.NoError(t, env.store.UpdateEpisode(ctx, id, map[string]interface{}{
		"video_download_url":    expiringVideo,
		"subtitle_download_url": expiringSubtitle,
		"subtitle_filename":     "001-Lesson-AbCd-git.ir.fa.srt",
	}))
	env.dl.fail[expiringVideo] = &downloader.Error{Kind: downloader.KindLinkExpired, StatusCode: 403, Err: errors.New("forbidden")}
	env.dl.fail[expiringSubtitle] = &downloader.Error{Kind: downloader.KindNetwork, Err: errors.New("i/o timeout")}

	sub := env.orch.dispatcher.Submit(ctx, dispatch.DownloadTask{CourseID: env.course.ID, EpisodeID: id})
	require.True(t, sub.Failed())
	ep := env.episode(t, 0)
	require.Equal(t, model.AssetError, ep.VideoStatus)
	require.Equal(t, model.AssetError, ep.SubtitleStatus)
	require.Equal(t, "subtitle download failed: network: i/o timeout", ep.ErrorMessage)

	bus := event.NewInMemoryBus()
	links := service.NewLinkService(env.store, tasklog.NewRecorder(env.db, logger.Nop(), bus), bus, logger.Nop())
	fresh := "https://cdn.example.com/go/001-Lesson-AbCd-git.ir.mp4?token=t2&hash=h2"
	res, err := links.ApplyLinkBatch(ctx, env.course.ID, fresh, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Matched)
	assert.True(t, res.LinksExpiredCleared)

	ep = env.episode(t, 0)
	assert.Equal(t, model.AssetPending, ep.VideoStatus)
	assert.Equal(t, fresh, ep.VideoDownloadURL)

	c, err := env.store.GetCourse(ctx, env.course.ID)
	require.NoError(t, err)
	assert.NotContains(t, c.ExtraMetadata, model.MetaKeyLinksExpired)
	assert.Empty(t, model.ExpiredAssets(c.ExtraMetadata))
}

func TestUploadPanicReleasesClaimedAsset(t *testing.T) {
	env := newTestEnv(t, false, 1)
	ctx := context.Background()
	id := env.eps[0].ID
	require.NoError(t, env.store.UpdateEpisode(ctx, id, map[string]interface{}{
		"video_status":    model.AssetProcessed,
		"subtitle_status": model.AssetNotAvailable,
	}))
	env.up.onUpload = func(ep *model.Episode) { panic("boom") }

	sub := env.orch.dispatcher.Submit(ctx, dispatch.UploadTask{CourseID: env.course.ID, EpisodeID: id})
	assert.True(t, sub.Failed())

	ep := env.episode(t, 0)
	assert.Equal(t, model.AssetError, ep.VideoStatus)
	assert.Equal(t, model.AssetUploading, ep.VideoFailedStage)
	assert.Equal(t, model.AssetNotAvailable, ep.SubtitleStatus)
	assert.Equal(t, "video upload failed: panic: boom", ep.ErrorMessage)
}

type stubScraper struct{ data *scraper.CourseData }

func (s stubScraper) Scrape(ctx context.Context, sourceURL string) (*scraper.CourseData, error) {
	return s.data, nil
}

func TestScrapeStoresMetadataAndEpisodes(t *testing.T) {
	env := newTestEnv(t, false, 1)
	ctx := context.Background()
	two := 2
	bus := event.NewInMemoryBus()
	h := NewHandlers(Deps{
		Store:  env.store,
		Layout: renamer.Layout{Root: t.TempDir()},
		Scraper: stubScraper{data: &scraper.CourseData{
			TitleEN:       "Go in Practice",
			LecturesCount: 2,
			Episodes:      []scraper.EpisodeData{{Number: &two, TitleEN: "Lesson 2"}},
			Extra:         map[string]interface{}{"level": "beginner"},
		}},
		Logs: tasklog.NewRecorder(env.db, logger.Nop(), bus),
		Bus:  bus,
		Log:  logger.Nop(),
	})

	res, err := h.Scrape(ctx, dispatch.ScrapeTask{CourseID: env.course.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, res.EpisodesCreated)

	c, err := env.store.GetCourse(ctx, env.course.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CourseScraped, c.Status)
	assert.Equal(t, map[string]interface{}{"level": "beginner"}, c.ExtraMetadata["scraped"])
}
