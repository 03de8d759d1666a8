package uploader

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pokerjest/acms/internal/config"
	"github.com/pokerjest/acms/internal/model"
)

type objectStore interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader 把单集文件写入 S3 兼容的对象存储 (R2, MinIO ...)
// 目录结构: <prefix>/<course slug>/<episode>/<file>
type S3Uploader struct {
	client objectStore
	bucket string
	prefix string
}

func NewS3Uploader(ctx context.Context, cfg config.S3Config) (*S3Uploader, error) {
	if cfg.Bucket == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, ErrNotConfigured
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("load s3 config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// 自建/R2 端点用 path style 更稳
			o.UsePathStyle = true
		}
	})
	return &S3Uploader{client: client, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

func (u *S3Uploader) UploadEpisode(ctx context.Context, course *model.Course, ep *model.Episode) (Result, error) {
	videoPath := uploadPath(ep, model.KindVideo)
	if videoPath == "" {
		return Result{}, errors.New("episode has no processed video")
	}
	base := u.episodeKey(course, ep)
	videoKey := path.Join(base, filepath.Base(videoPath))

	exists, err := u.exists(ctx, videoKey)
	if err != nil {
		return Result{}, err
	}
	if exists {
		return Result{SkipExisting: true, URL: u.url(base)}, nil
	}

	var uploaded []model.AssetKind
	for _, kind := range model.AssetKinds {
		p := uploadPath(ep, kind)
		if p == "" {
			continue
		}
		if err := u.put(ctx, path.Join(base, filepath.Base(p)), p); err != nil {
			if kind == model.KindVideo {
				return Result{}, err
			}
			// subtitle/exercise 失败不阻塞视频
			continue
		}
		uploaded = append(uploaded, kind)
	}
	return Result{Uploaded: uploaded, URL: u.url(base)}, nil
}

func (u *S3Uploader) episodeKey(course *model.Course, ep *model.Episode) string {
	slug := course.Slug
	if slug == "" {
		slug = fmt.Sprintf("course-%d", course.ID)
	}
	name := ep.Label()
	if ep.EpisodeNumber == nil {
		name = fmt.Sprintf("episode-%d", ep.ID)
	}
	return path.Join(u.prefix, slug, name)
}

func (u *S3Uploader) exists(ctx context.Context, key string) (bool, error) {
	_, err := u.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(u.bucket), Key: aws.String(key)})
	if err == nil {
		return true, nil
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return false, nil
	}
	var re *awshttp.ResponseError
	if errors.As(err, &re) && re.HTTPStatusCode() == 404 {
		return false, nil
	}
	return false, fmt.Errorf("head %s: %w", key, err)
}

func (u *S3Uploader) put(ctx context.Context, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	contentType := mime.TypeByExtension(filepath.Ext(localPath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (u *S3Uploader) url(key string) string {
	return "s3://" + u.bucket + "/" + key
}

// New 按配置选择上传后端
func New(ctx context.Context, cfg config.UploaderConfig) (Uploader, error) {
	switch cfg.Mode {
	case "", "http":
		return NewHTTPUploader(cfg), nil
	case "s3":
		return NewS3Uploader(ctx, cfg.S3)
	}
	return nil, fmt.Errorf("unknown uploader mode %q", cfg.Mode)
}
