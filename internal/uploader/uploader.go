package uploader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pokerjest/acms/internal/config"
	"github.com/pokerjest/acms/internal/model"
)

var ErrNotConfigured = errors.New("uploader endpoint not configured")

// Uploader 把处理好的单集推送到目标站点
type Uploader interface {
	UploadEpisode(ctx context.Context, course *model.Course, ep *model.Episode) (Result, error)
}

type Result struct {
	// SkipExisting means the destination already has this episode.
	SkipExisting bool                   `json:"skip_existing"`
	Uploaded     []model.AssetKind      `json:"uploaded,omitempty"`
	URL          string                 `json:"url,omitempty"`
	Summary      map[string]interface{} `json:"summary,omitempty"`
}

// HTTPUploader posts episode files as multipart form data to
// <endpoint>/courses/<slug>/episodes.
type HTTPUploader struct {
	client   *resty.Client
	endpoint string
}

func NewHTTPUploader(cfg config.UploaderConfig) *HTTPUploader {
	c := resty.New()
	c.SetTimeout(30 * time.Minute)
	if cfg.Token != "" {
		c.SetAuthToken(cfg.Token)
	}
	return &HTTPUploader{client: c, endpoint: strings.TrimSuffix(cfg.Endpoint, "/")}
}

type uploadResponse struct {
	URL     string                 `json:"url"`
	Summary map[string]interface{} `json:"summary"`
	Error   string                 `json:"error"`
}

func (u *HTTPUploader) UploadEpisode(ctx context.Context, course *model.Course, ep *model.Episode) (Result, error) {
	if u.endpoint == "" {
		return Result{}, ErrNotConfigured
	}

	title := ep.TitleFA
	if title == "" {
		title = ep.TitleEN
	}
	req := u.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"course_title":   firstNonEmpty(course.TitleFA, course.TitleEN, course.Slug),
			"episode_number": ep.Label(),
			"episode_title":  title,
			"hash_code":      ep.HashCode,
		})

	var files []model.AssetKind
	for _, kind := range model.AssetKinds {
		path := uploadPath(ep, kind)
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			if kind == model.KindVideo {
				return Result{}, fmt.Errorf("video file missing: %w", err)
			}
			continue
		}
		req.SetFile(string(kind), path)
		files = append(files, kind)
	}

	var body uploadResponse
	resp, err := req.SetResult(&body).SetError(&body).
		Post(fmt.Sprintf("%s/courses/%s/episodes", u.endpoint, course.Slug))
	if err != nil {
		return Result{}, err
	}
	if resp.StatusCode() == http.StatusConflict {
		return Result{SkipExisting: true, Summary: body.Summary}, nil
	}
	if resp.IsError() {
		if body.Error != "" {
			return Result{}, fmt.Errorf("upload failed: %s: %s", resp.Status(), body.Error)
		}
		return Result{}, fmt.Errorf("upload failed: %s", resp.Status())
	}
	return Result{Uploaded: files, URL: body.URL, Summary: body.Summary}, nil
}

// uploadPath prefers the processed subtitle over the original download.
func uploadPath(ep *model.Episode, kind model.AssetKind) string {
	a := ep.Asset(kind)
	switch a.Status {
	case model.AssetProcessed, model.AssetUploaded, model.AssetUploading:
	default:
		return ""
	}
	if kind == model.KindSubtitle && ep.SubtitleProcessedPath != "" {
		return ep.SubtitleProcessedPath
	}
	return a.LocalPath
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
