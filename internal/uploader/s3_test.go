package uploader

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pokerjest/acms/internal/config"
	"github.com/pokerjest/acms/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memStore) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (m *memStore) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func TestS3UploadEpisode(t *testing.T) {
	store := &memStore{objects: map[string][]byte{}}
	u := &S3Uploader{client: store, bucket: "media", prefix: "courses"}
	course := &model.Course{Slug: "go-basics"}
	ep := processedEpisode(t)

	res, err := u.UploadEpisode(context.Background(), course, ep)
	require.NoError(t, err)
	assert.False(t, res.SkipExisting)
	assert.Equal(t, []model.AssetKind{model.KindVideo, model.KindSubtitle}, res.Uploaded)
	assert.Equal(t, "s3://media/courses/go-basics/001", res.URL)
	assert.Equal(t, []byte("video"), store.objects["courses/go-basics/001/001.mp4"])
	assert.Contains(t, store.objects, "courses/go-basics/001/001.fa.srt")

	again, err := u.UploadEpisode(context.Background(), course, ep)
	require.NoError(t, err)
	assert.True(t, again.SkipExisting)
	assert.Empty(t, again.Uploaded)
}

func TestS3UploadRequiresProcessedVideo(t *testing.T) {
	u := &S3Uploader{client: &memStore{objects: map[string][]byte{}}, bucket: "media"}
	ep := processedEpisode(t)
	ep.VideoStatus = model.AssetDownloaded

	_, err := u.UploadEpisode(context.Background(), &model.Course{Slug: "x"}, ep)
	assert.Error(t, err)
}

func TestNewSelectsBackend(t *testing.T) {
	up, err := New(context.Background(), config.UploaderConfig{Mode: "http", Endpoint: "http://dest"})
	require.NoError(t, err)
	assert.IsType(t, &HTTPUploader{}, up)

	_, err = New(context.Background(), config.UploaderConfig{Mode: "s3"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = New(context.Background(), config.UploaderConfig{Mode: "ftp"})
	assert.Error(t, err)
}
