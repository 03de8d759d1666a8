package asset

import (
	"math"
	"testing"

	"github.com/pokerjest/acms/internal/model"
	"github.com/stretchr/testify/assert"
)

func episode(video, subtitle, exercise model.AssetStatus) *model.Episode {
	return &model.Episode{VideoStatus: video, SubtitleStatus: subtitle, ExerciseStatus: exercise}
}

func TestCanDownloadExhaustive(t *testing.T) {
	for _, s := range model.AllAssetStatuses {
		want := s == model.AssetPending || s == model.AssetError
		assert.Equal(t, want, CanDownload(s), "status %s", s)
	}
}

func TestCanProcess(t *testing.T) {
	ep := episode(model.AssetDownloaded, model.AssetPending, model.AssetNotAvailable)
	assert.True(t, CanProcess(ep, model.KindVideo))
	assert.False(t, CanProcess(ep, model.KindSubtitle))

	// processed video waits on the subtitle that is still only downloaded
	ep = episode(model.AssetProcessed, model.AssetDownloaded, model.AssetNotAvailable)
	assert.True(t, CanProcess(ep, model.KindVideo))
	assert.True(t, CanProcess(ep, model.KindSubtitle))

	ep = episode(model.AssetProcessed, model.AssetProcessed, model.AssetNotAvailable)
	assert.False(t, CanProcess(ep, model.KindVideo))

	for _, s := range []model.AssetStatus{model.AssetDownloading, model.AssetProcessing, model.AssetError, model.AssetPending} {
		assert.False(t, CanProcess(episode(s, model.AssetDownloaded, model.AssetPending), model.KindVideo), "status %s", s)
	}
}

func TestCanUpload(t *testing.T) {
	assert.True(t, CanUpload(episode(model.AssetProcessed, model.AssetPending, model.AssetPending), model.KindVideo))
	assert.True(t, CanUpload(episode(model.AssetUploaded, model.AssetPending, model.AssetPending), model.KindVideo))
	assert.True(t, CanUpload(episode(model.AssetDownloaded, model.AssetProcessed, model.AssetPending), model.KindVideo))
	assert.False(t, CanUpload(episode(model.AssetDownloaded, model.AssetDownloaded, model.AssetPending), model.KindVideo))
	assert.False(t, CanUpload(episode(model.AssetUploading, model.AssetPending, model.AssetPending), model.KindVideo))
}

func TestCanRetryAndRetryStage(t *testing.T) {
	ep := episode(model.AssetUploaded, model.AssetUploaded, model.AssetNotAvailable)
	assert.False(t, CanRetry(ep))

	ep.SubtitleStatus = model.AssetError
	ep.SubtitleFailedStage = model.AssetProcessing
	assert.True(t, CanRetry(ep))
	assert.Equal(t, model.AssetProcessing, RetryStage(ep, model.KindSubtitle))
	assert.Equal(t, model.AssetStatus(""), RetryStage(ep, model.KindVideo))

	ep.SubtitleFailedStage = ""
	assert.Equal(t, model.AssetDownloading, RetryStage(ep, model.KindSubtitle))
}

func TestCompositePrecedence(t *testing.T) {
	cases := []struct {
		ep   *model.Episode
		want model.AssetStatus
	}{
		{episode(model.AssetUploading, model.AssetError, model.AssetPending), model.AssetUploading},
		{episode(model.AssetError, model.AssetProcessing, model.AssetPending), model.AssetProcessing},
		{episode(model.AssetDownloading, model.AssetError, model.AssetPending), model.AssetDownloading},
		{episode(model.AssetUploaded, model.AssetError, model.AssetNotAvailable), model.AssetError},
		{episode(model.AssetUploaded, model.AssetNotAvailable, model.AssetPending), CompositeDone},
		{episode(model.AssetUploaded, model.AssetSkipped, model.AssetNotAvailable), CompositeDone},
		{episode(model.AssetUploaded, model.AssetProcessed, model.AssetNotAvailable), model.AssetProcessed},
		{episode(model.AssetDownloaded, model.AssetPending, model.AssetNotAvailable), model.AssetDownloaded},
		{episode(model.AssetPending, model.AssetPending, model.AssetNotAvailable), model.AssetPending},
	}
	for i, c := range cases {
		assert.Equal(t, c.want, Composite(c.ep), "case %d", i)
	}
}

func TestEpisodeProgressMatchesMeanOfWeights(t *testing.T) {
	for _, v := range model.AllAssetStatuses {
		for _, s := range model.AllAssetStatuses {
			for _, e := range model.AllAssetStatuses {
				p := EpisodeProgress(episode(v, s, e))
				want := int(math.Round(float64(Weight(v)+Weight(s)+Weight(e)) / 3))
				assert.Equal(t, want, p)
				assert.GreaterOrEqual(t, p, 0)
				assert.LessOrEqual(t, p, 100)
			}
		}
	}
	assert.Equal(t, 33, EpisodeProgress(episode(model.AssetPending, model.AssetPending, model.AssetNotAvailable)))
	assert.Equal(t, 78, EpisodeProgress(episode(model.AssetDownloading, model.AssetUploaded, model.AssetSkipped))) // 235/3
}

func TestCourseProgress(t *testing.T) {
	assert.Equal(t, 0.0, CourseProgress(nil))

	eps := []model.Episode{
		*episode(model.AssetUploaded, model.AssetUploaded, model.AssetNotAvailable),  // 100
		*episode(model.AssetPending, model.AssetPending, model.AssetNotAvailable),    // 33
		*episode(model.AssetDownloaded, model.AssetPending, model.AssetNotAvailable), // 53
	}
	// (100+33+53)/3 = 62.0
	assert.Equal(t, 62.0, CourseProgress(eps))

	eps = eps[:2]
	assert.Equal(t, 66.5, CourseProgress(eps))
}
