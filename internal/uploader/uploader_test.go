package uploader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/pokerjest/acms/internal/config"
	"github.com/pokerjest/acms/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func processedEpisode(t *testing.T) *model.Episode {
	t.Helper()
	dir := t.TempDir()
	video := filepath.Join(dir, "001.mp4")
	sub := filepath.Join(dir, "001.fa.srt")
	require.NoError(t, os.WriteFile(video, []byte("video"), 0644))
	require.NoError(t, os.WriteFile(sub, []byte("1\n00:00:01,000 --> 00:00:02,000\nx\n"), 0644))
	n := 1
	return &model.Episode{
		EpisodeNumber:         &n,
		TitleEN:               "Intro",
		VideoStatus:           model.AssetProcessed,
		VideoLocalPath:        video,
		SubtitleStatus:        model.AssetProcessed,
		SubtitleProcessedPath: sub,
		ExerciseStatus:        model.AssetNotAvailable,
	}
}

func TestUploadEpisode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/courses/go-basics/episodes", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "001", r.FormValue("episode_number"))
		_, _, err := r.FormFile("video")
		assert.NoError(t, err)
		_, _, err = r.FormFile("subtitle")
		assert.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"url":"https://dest/e/1"}`))
	}))
	defer srv.Close()

	u := NewHTTPUploader(config.UploaderConfig{Endpoint: srv.URL})
	res, err := u.UploadEpisode(context.Background(), &model.Course{Slug: "go-basics", TitleEN: "Go"}, processedEpisode(t))
	require.NoError(t, err)
	assert.False(t, res.SkipExisting)
	assert.Equal(t, []model.AssetKind{model.KindVideo, model.KindSubtitle}, res.Uploaded)
	assert.Equal(t, "https://dest/e/1", res.URL)
}

func TestUploadEpisodeConflictIsSkipExisting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"exists"}`))
	}))
	defer srv.Close()

	u := NewHTTPUploader(config.UploaderConfig{Endpoint: srv.URL})
	res, err := u.UploadEpisode(context.Background(), &model.Course{Slug: "go-basics"}, processedEpisode(t))
	require.NoError(t, err)
	assert.True(t, res.SkipExisting)
}

func TestUploadEpisodeNotConfigured(t *testing.T) {
	_, err := NewHTTPUploader(config.UploaderConfig{}).UploadEpisode(context.Background(), &model.Course{}, &model.Episode{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
