package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pokerjest/acms/internal/ai"
	"github.com/pokerjest/acms/internal/asset"
	"github.com/pokerjest/acms/internal/dispatch"
	"github.com/pokerjest/acms/internal/downloader"
	"github.com/pokerjest/acms/internal/event"
	"github.com/pokerjest/acms/internal/logger"
	"github.com/pokerjest/acms/internal/model"
	"github.com/pokerjest/acms/internal/parser"
	"github.com/pokerjest/acms/internal/processor"
	"github.com/pokerjest/acms/internal/renamer"
	"github.com/pokerjest/acms/internal/repo"
	"github.com/pokerjest/acms/internal/scraper"
	"github.com/pokerjest/acms/internal/tasklog"
	"github.com/pokerjest/acms/internal/uploader"
	"golang.org/x/sync/errgroup"
)

// Deps are the collaborators the task handlers need. Translator, Generator and
// Scraper may be nil; their tasks then become no-ops.
type Deps struct {
	Store      *repo.Store
	Layout     renamer.Layout
	Downloader downloader.Downloader
	Processor  processor.Processor
	Translator ai.Translator
	Generator  ai.ContentGenerator
	Uploader   uploader.Uploader
	Scraper    scraper.Scraper
	Logs       *tasklog.Recorder
	Bus        event.Bus
	Log        *logger.Logger
}

// Handlers 各类任务的执行体，API 进程和 worker 共用
type Handlers struct {
	Deps
	log *logger.Logger
}

func NewHandlers(d Deps) *Handlers {
	return &Handlers{Deps: d, log: d.Log.With("component", "TaskHandlers")}
}

// Register binds every task kind to the registry.
func (h *Handlers) Register(r *dispatch.Registry) error {
	return errors.Join(
		dispatch.Register(r, h.Scrape, h.scrapeFailed),
		dispatch.Register(r, h.Download, nil),
		dispatch.Register(r, h.Process, nil),
		dispatch.Register(r, h.Translate, nil),
		dispatch.Register(r, h.Upload, nil),
		dispatch.Register(r, h.Content, nil),
	)
}

// ---- scrape ----

func (h *Handlers) Scrape(ctx context.Context, t dispatch.ScrapeTask) (dispatch.ScrapeResult, error) {
	var res dispatch.ScrapeResult
	if h.Scraper == nil {
		return res, errors.New("no scraper configured")
	}
	course, err := h.Store.GetCourse(ctx, t.CourseID)
	if err != nil {
		return res, err
	}
	if _, err := h.Store.AdvanceCourseStatus(ctx, course.ID, model.CourseScraping); err != nil {
		return res, err
	}
	h.Logs.Info(ctx, course.ID, 0, "scrape", "started", "Scraping course page", map[string]interface{}{"url": course.SourceURL})

	data, err := h.Scraper.Scrape(ctx, course.SourceURL)
	if err != nil {
		return res, fmt.Errorf("scrape %s: %w", course.SourceURL, err)
	}

	// title_fa 只由翻译写入
	updates := map[string]interface{}{
		"title_en":        data.TitleEN,
		"description_en":  data.DescriptionEN,
		"instructor":      data.Instructor,
		"thumbnail_url":   data.ThumbnailURL,
		"source_platform": data.SourcePlatform,
		"lectures_count":  data.LecturesCount,
	}
	if course.Slug == "" {
		updates["slug"] = courseSlug(&model.Course{TitleEN: data.TitleEN, Model: course.Model})
	}
	if err := h.Store.UpdateCourse(ctx, course.ID, updates); err != nil {
		return res, err
	}
	if len(data.Extra) > 0 {
		if err := h.Store.UpdateCourseMetadata(ctx, course.ID, func(meta map[string]interface{}) {
			meta["scraped"] = data.Extra
		}); err != nil {
			h.log.Warn("save scraped metadata failed", "course_id", course.ID, "error", err)
		}
	}

	existing, err := h.Store.ListEpisodes(ctx, course.ID)
	if err != nil {
		return res, err
	}
	known := map[int]bool{}
	for _, ep := range existing {
		if ep.EpisodeNumber != nil {
			known[*ep.EpisodeNumber] = true
		}
	}
	for _, sep := range data.Episodes {
		if sep.Number == nil || known[*sep.Number] {
			continue
		}
		n := *sep.Number
		ep := &model.Episode{CourseID: course.ID, EpisodeNumber: &n, TitleEN: sep.TitleEN, SortOrder: n}
		if err := h.Store.CreateEpisode(ctx, ep); err != nil {
			return res, err
		}
		known[n] = true
		res.EpisodesCreated++
	}
	res.LecturesCount = data.LecturesCount

	if _, err := h.Store.AdvanceCourseStatus(ctx, course.ID, model.CourseScraped); err != nil {
		return res, err
	}
	h.Logs.Info(ctx, course.ID, 0, "scrape", "completed", "Course scraped", map[string]interface{}{
		"episodes_created": res.EpisodesCreated,
		"lectures_count":   res.LecturesCount,
	})
	h.notifyCourse(course.ID)
	return res, nil
}

func (h *Handlers) scrapeFailed(ctx context.Context, t dispatch.ScrapeTask, err error) {
	ctx = context.WithoutCancel(ctx)
	_, _ = h.Store.AdvanceCourseStatus(ctx, t.CourseID, model.CourseError)
	h.notifyCourse(t.CourseID)
}

// ---- download ----

func (h *Handlers) Download(ctx context.Context, t dispatch.DownloadTask) (res dispatch.DownloadResult, err error) {
	res = dispatch.DownloadResult{Failed: map[model.AssetKind]string{}}
	ep, err := h.Store.GetEpisode(ctx, t.EpisodeID)
	if err != nil {
		return res, err
	}
	course, err := h.Store.GetCourse(ctx, ep.CourseID)
	if err != nil {
		return res, err
	}
	defer h.notifyEpisode(ep.CourseID, ep.ID)
	var held []model.AssetKind
	defer h.release(ctx, ep.ID, model.AssetDownloading, &held, &err)

	if t.Retry {
		if err := h.Store.IncrementRetry(ctx, ep.ID); err != nil {
			return res, err
		}
	}

	now := time.Now()
	var claimed []model.Asset
	for _, kind := range kindsOrAll(t.Kinds) {
		a := ep.Asset(kind)
		if !asset.CanDownload(a.Status) {
			continue
		}
		if a.DownloadURL == "" {
			if kind == model.KindVideo {
				msg := "video download link missing"
				if err := h.Store.MarkAssetError(ctx, ep.ID, kind, model.AssetDownloading, msg); err != nil {
					return res, err
				}
				res.Failed[kind] = msg
			} else if a.Status == model.AssetPending {
				if _, err := h.Store.TransitionAsset(ctx, ep.ID, kind,
					[]model.AssetStatus{model.AssetPending}, model.AssetNotAvailable, nil); err != nil {
					return res, err
				}
			}
			continue
		}
		ok, err := h.Store.TransitionAsset(ctx, ep.ID, kind,
			[]model.AssetStatus{model.AssetPending, model.AssetError}, model.AssetDownloading,
			map[string]interface{}{"last_attempt_at": &now})
		if err != nil {
			return res, err
		}
		if ok {
			claimed = append(claimed, a)
			held = append(held, kind)
		}
	}

	if len(claimed) == 0 && len(res.Failed) == 0 {
		res.Skipped = true
		return res, nil
	}

	var (
		mu       sync.Mutex
		paths    = map[model.AssetKind]string{}
		failures = map[model.AssetKind]error{}
		g        errgroup.Group
	)
	for _, a := range claimed {
		a := a
		h.Logs.Info(ctx, course.ID, ep.ID, "download", "started",
			fmt.Sprintf("Downloading %s for episode %s", a.Kind, ep.Label()), map[string]interface{}{"asset": a.Kind})
		g.Go(func() error {
			path, err := h.fetch(ctx, course, ep, a)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[a.Kind] = err
			} else {
				paths[a.Kind] = path
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, a := range claimed {
		if err, failed := failures[a.Kind]; failed {
			msg := downloader.Message(string(a.Kind), err)
			expired := downloader.IsExpired(err)
			if merr := h.Store.MarkAssetError(ctx, ep.ID, a.Kind, model.AssetDownloading, msg); merr != nil {
				return res, merr
			}
			res.Failed[a.Kind] = msg
			h.Logs.Error(ctx, course.ID, ep.ID, "download", "error", msg, map[string]interface{}{
				"asset":        a.Kind,
				"error":        err.Error(),
				"expired_link": expired,
			})
			if expired {
				res.LinkExpired = true
				h.markLinksExpired(ctx, course.ID, ep.ID, a.Kind)
			}
			continue
		}

		path := paths[a.Kind]
		extra := map[string]interface{}{
			a.Kind.Column("local_path"):   path,
			a.Kind.Column("filename"):     filepath.Base(path),
			a.Kind.Column("failed_stage"): "",
		}
		if a.Kind == model.KindSubtitle {
			if _, lang := parser.DetectKind(a.Filename); lang != "" {
				extra["subtitle_language"] = lang
			}
		}
		if _, err := h.Store.TransitionAsset(ctx, ep.ID, a.Kind,
			[]model.AssetStatus{model.AssetDownloading}, model.AssetDownloaded, extra); err != nil {
			return res, err
		}
		res.Downloaded = append(res.Downloaded, a.Kind)
		h.forgetExpired(ctx, course, ep.ID, a.Kind)
		h.Logs.Info(ctx, course.ID, ep.ID, "download", "completed",
			fmt.Sprintf("Downloaded %s for episode %s", a.Kind, ep.Label()), map[string]interface{}{"asset": a.Kind, "path": path})
	}

	if len(res.Downloaded) > 0 {
		if err := h.Store.ClearResolvedError(ctx, ep.ID); err != nil {
			return res, err
		}
		if _, err := h.Store.AdvanceCourseStatus(ctx, course.ID, model.CourseProcessing); err != nil {
			return res, err
		}
	}
	if len(res.Failed) > 0 {
		return res, fmt.Errorf("download failed: %s", joinFailures(res.Failed))
	}
	return res, nil
}

func (h *Handlers) fetch(ctx context.Context, course *model.Course, ep *model.Episode, a model.Asset) (string, error) {
	name := a.Filename
	if name == "" {
		name = fmt.Sprintf("%s-%s", ep.Label(), a.Kind)
	}
	dest := filepath.Join(h.Layout.Dir(courseSlug(course), a.Kind), renamer.CleanFilename(name))
	out, err := h.Downloader.Fetch(ctx, a.DownloadURL, dest, downloader.Options{DebugMode: course.DebugMode})
	if err != nil {
		return "", err
	}
	return out.Path, nil
}

// markLinksExpired sets the course flag and remembers which asset needs a
// fresh link; only the first expiry logs the banner message.
func (h *Handlers) markLinksExpired(ctx context.Context, courseID, episodeID uint, kind model.AssetKind) {
	first := false
	key := model.ExpiredAssetKey(episodeID, kind)
	err := h.Store.UpdateCourseMetadata(ctx, courseID, func(meta map[string]interface{}) {
		if v, _ := meta[model.MetaKeyLinksExpired].(bool); !v {
			first = true
		}
		meta[model.MetaKeyLinksExpired] = true
		meta[model.MetaKeyLinksExpiredAt] = time.Now().UTC().Format(time.RFC3339)
		keys := model.ExpiredAssets(meta)
		for _, k := range keys {
			if k == key {
				return
			}
		}
		model.SetExpiredAssets(meta, append(keys, key))
	})
	if err != nil {
		h.log.Warn("mark links expired failed", "course_id", courseID, "error", err)
		return
	}
	if first {
		h.Logs.Warn(ctx, courseID, episodeID, "download", "expired",
			"Download links have expired. Please provide a fresh link batch in Refresh Links.", nil)
	}
	h.notifyCourse(courseID)
}

// forgetExpired drops the expiry record of an asset that downloaded after all.
func (h *Handlers) forgetExpired(ctx context.Context, course *model.Course, episodeID uint, kind model.AssetKind) {
	key := model.ExpiredAssetKey(episodeID, kind)
	found := false
	for _, k := range model.ExpiredAssets(course.ExtraMetadata) {
		found = found || k == key
	}
	if !found {
		return
	}
	err := h.Store.UpdateCourseMetadata(ctx, course.ID, func(meta map[string]interface{}) {
		var left []string
		for _, k := range model.ExpiredAssets(meta) {
			if k != key {
				left = append(left, k)
			}
		}
		model.SetExpiredAssets(meta, left)
	})
	if err != nil {
		h.log.Warn("clear expired asset failed", "course_id", course.ID, "episode_id", episodeID, "error", err)
	}
}

// ---- process ----

func (h *Handlers) Process(ctx context.Context, t dispatch.ProcessTask) (res dispatch.ProcessResult, err error) {
	res = dispatch.ProcessResult{Failed: map[model.AssetKind]string{}}
	ep, err := h.Store.GetEpisode(ctx, t.EpisodeID)
	if err != nil {
		return res, err
	}
	course, err := h.Store.GetCourse(ctx, ep.CourseID)
	if err != nil {
		return res, err
	}
	defer h.notifyEpisode(ep.CourseID, ep.ID)
	var held []model.AssetKind
	defer h.release(ctx, ep.ID, model.AssetProcessing, &held, &err)

	if t.Retry {
		if err := h.Store.IncrementRetry(ctx, ep.ID); err != nil {
			return res, err
		}
	}

	now := time.Now()
	for _, kind := range kindsOrAll(t.Kinds) {
		var from []model.AssetStatus
		if t.Retry {
			if asset.RetryStage(ep, kind) != model.AssetProcessing {
				continue
			}
			from = []model.AssetStatus{model.AssetError}
		} else {
			if !asset.CanProcess(ep, kind) {
				continue
			}
			from = []model.AssetStatus{model.AssetDownloaded, model.AssetProcessed}
		}
		ok, err := h.Store.TransitionAsset(ctx, ep.ID, kind, from, model.AssetProcessing,
			map[string]interface{}{"last_attempt_at": &now})
		if err != nil {
			return res, err
		}
		if !ok {
			continue
		}
		held = append(held, kind)

		extra, perr := h.processOne(ctx, course, ep, kind)
		if perr != nil {
			msg := fmt.Sprintf("%s processing failed: %v", kind, perr)
			if err := h.Store.MarkAssetError(ctx, ep.ID, kind, model.AssetProcessing, msg); err != nil {
				return res, err
			}
			res.Failed[kind] = msg
			h.Logs.Error(ctx, course.ID, ep.ID, "process", "error", msg, map[string]interface{}{"asset": kind})
			continue
		}
		extra[kind.Column("failed_stage")] = ""
		if _, err := h.Store.TransitionAsset(ctx, ep.ID, kind,
			[]model.AssetStatus{model.AssetProcessing}, model.AssetProcessed, extra); err != nil {
			return res, err
		}
		res.Processed = append(res.Processed, kind)
		h.Logs.Info(ctx, course.ID, ep.ID, "process", "completed",
			fmt.Sprintf("Processed %s for episode %s", kind, ep.Label()), map[string]interface{}{"asset": kind})
	}

	if len(res.Processed) == 0 && len(res.Failed) == 0 {
		res.Skipped = true
		return res, nil
	}
	if len(res.Processed) > 0 {
		if err := h.Store.ClearResolvedError(ctx, ep.ID); err != nil {
			return res, err
		}
	}
	if len(res.Failed) > 0 {
		return res, fmt.Errorf("process failed: %s", joinFailures(res.Failed))
	}
	return res, nil
}

func (h *Handlers) processOne(ctx context.Context, course *model.Course, ep *model.Episode, kind model.AssetKind) (map[string]interface{}, error) {
	extra := map[string]interface{}{}
	path := ep.Asset(kind).LocalPath
	if path == "" {
		return extra, errors.New("no local file")
	}
	switch kind {
	case model.KindVideo:
		info, err := h.Processor.ProcessVideo(ctx, path)
		if err != nil {
			return extra, err
		}
		h.log.Debug("video validated", "episode_id", ep.ID, "duration", info.Duration, "probed", info.Probed)
	case model.KindSubtitle:
		dst := filepath.Join(h.Layout.ProcessedSubtitleDir(courseSlug(course)), filepath.Base(path))
		stats, err := h.Processor.ProcessSubtitle(ctx, path, dst)
		if err != nil {
			return extra, err
		}
		extra["subtitle_processed_path"] = dst
		h.log.Debug("subtitle cleaned", "episode_id", ep.ID, "input", stats.InputCount, "output", stats.OutputCount)
	case model.KindExercise:
		if err := h.Processor.ProcessExercise(ctx, path); err != nil {
			return extra, err
		}
	}
	return extra, nil
}

// ---- translate ----

func (h *Handlers) Translate(ctx context.Context, t dispatch.TranslateTask) (dispatch.TranslateResult, error) {
	var res dispatch.TranslateResult
	if h.Translator == nil {
		res.Skipped = true
		return res, nil
	}
	course, err := h.Store.GetCourse(ctx, t.CourseID)
	if err != nil {
		return res, err
	}

	if t.EpisodeID == 0 {
		updates := map[string]interface{}{}
		if course.TitleEN != "" && course.TitleFA == "" {
			out, err := h.Translator.TranslateTitle(ctx, course.TitleEN, course.SourcePlatform)
			if err != nil {
				return res, skipUnconfigured(&res, err)
			}
			updates["title_fa"] = out
		}
		if course.DescriptionEN != "" && course.DescriptionFA == "" {
			out, err := h.Translator.TranslateDescription(ctx, course.DescriptionEN)
			if err != nil {
				return res, skipUnconfigured(&res, err)
			}
			updates["description_fa"] = out
		}
		if len(updates) == 0 {
			res.Skipped = true
			return res, nil
		}
		if err := h.Store.UpdateCourse(ctx, course.ID, updates); err != nil {
			return res, err
		}
		for k := range updates {
			res.Updated = append(res.Updated, k)
		}
		sort.Strings(res.Updated)
		h.notifyCourse(course.ID)
		return res, nil
	}

	ep, err := h.Store.GetEpisode(ctx, t.EpisodeID)
	if err != nil {
		return res, err
	}
	if ep.TitleFA != "" || ep.TitleEN == "" {
		res.Skipped = true
		return res, nil
	}
	out, err := h.Translator.TranslateTitle(ctx, ep.TitleEN, course.SourcePlatform)
	if err != nil {
		return res, skipUnconfigured(&res, err)
	}
	if err := h.Store.UpdateEpisode(ctx, ep.ID, map[string]interface{}{"title_fa": out}); err != nil {
		return res, err
	}
	res.Updated = []string{"title_fa"}
	h.Logs.Info(ctx, course.ID, ep.ID, "translate", "completed", "Episode title translated", map[string]interface{}{"title_fa": out})
	h.notifyEpisode(course.ID, ep.ID)
	return res, nil
}

func skipUnconfigured(res *dispatch.TranslateResult, err error) error {
	if errors.Is(err, ai.ErrNotConfigured) {
		res.Skipped = true
		return nil
	}
	return fmt.Errorf("translate: %w", err)
}

// ---- upload ----

func (h *Handlers) Upload(ctx context.Context, t dispatch.UploadTask) (res dispatch.UploadResult, err error) {
	ep, err := h.Store.GetEpisode(ctx, t.EpisodeID)
	if err != nil {
		return res, err
	}
	course, err := h.Store.GetCourse(ctx, ep.CourseID)
	if err != nil {
		return res, err
	}
	defer h.notifyEpisode(ep.CourseID, ep.ID)
	var claimed []model.AssetKind
	defer h.release(ctx, ep.ID, model.AssetUploading, &claimed, &err)

	if t.Retry {
		if err := h.Store.IncrementRetry(ctx, ep.ID); err != nil {
			return res, err
		}
	}

	now := time.Now()
	for _, kind := range model.AssetKinds {
		var from []model.AssetStatus
		if t.Retry {
			if asset.RetryStage(ep, kind) != model.AssetUploading {
				continue
			}
			from = []model.AssetStatus{model.AssetError}
		} else {
			if ep.Status(kind) != model.AssetProcessed || !asset.CanUpload(ep, kind) {
				continue
			}
			from = []model.AssetStatus{model.AssetProcessed}
		}
		ok, err := h.Store.TransitionAsset(ctx, ep.ID, kind, from, model.AssetUploading,
			map[string]interface{}{"last_attempt_at": &now})
		if err != nil {
			return res, err
		}
		if ok {
			claimed = append(claimed, kind)
		}
	}
	if len(claimed) == 0 {
		res.Skipped = true
		return res, nil
	}
	if h.Uploader == nil {
		return res, uploader.ErrNotConfigured
	}

	fresh, err := h.Store.GetEpisode(ctx, ep.ID)
	if err != nil {
		return res, err
	}
	h.Logs.Info(ctx, course.ID, ep.ID, "upload", "started", fmt.Sprintf("Uploading episode %s", ep.Label()), nil)
	out, err := h.Uploader.UploadEpisode(ctx, course, fresh)
	if err != nil {
		return res, err
	}

	for _, kind := range claimed {
		if _, err := h.Store.TransitionAsset(ctx, ep.ID, kind,
			[]model.AssetStatus{model.AssetUploading}, model.AssetUploaded,
			map[string]interface{}{kind.Column("failed_stage"): ""}); err != nil {
			return res, err
		}
	}
	if err := h.Store.ClearResolvedError(ctx, ep.ID); err != nil {
		return res, err
	}

	res.Uploaded = claimed
	res.SkipExisting = out.SkipExisting
	res.DebugHalt = out.SkipExisting && course.DebugMode
	res.Summary = out.Summary
	if out.SkipExisting {
		h.Logs.Warn(ctx, course.ID, ep.ID, "upload", "skip_existing",
			fmt.Sprintf("Episode %s already exists on destination", ep.Label()), map[string]interface{}{"debug_halt": res.DebugHalt})
	} else {
		h.Logs.Info(ctx, course.ID, ep.ID, "upload", "completed",
			fmt.Sprintf("Uploaded episode %s", ep.Label()), map[string]interface{}{"url": out.URL})
	}
	return res, nil
}

// ---- content ----

func (h *Handlers) Content(ctx context.Context, t dispatch.ContentTask) (dispatch.ContentResult, error) {
	var res dispatch.ContentResult
	if h.Generator == nil {
		return res, nil
	}
	course, err := h.Store.GetCourse(ctx, t.CourseID)
	if err != nil {
		return res, err
	}
	content, err := h.Generator.GenerateCourseContent(ctx, course)
	if err != nil {
		if errors.Is(err, ai.ErrNotConfigured) {
			return res, nil
		}
		return res, fmt.Errorf("generate content: %w", err)
	}
	if !content.Complete() {
		h.Logs.Warn(ctx, course.ID, 0, "content", "incomplete", "Generated course content was incomplete and was discarded", nil)
		return res, nil
	}
	if err := h.Store.UpdateCourseMetadata(ctx, course.ID, func(meta map[string]interface{}) {
		meta[model.MetaKeySEOContent] = content.Map()
	}); err != nil {
		return res, err
	}
	res.Generated = true
	h.Logs.Info(ctx, course.ID, 0, "content", "completed", "Course content generated", nil)
	h.notifyCourse(course.ID)
	return res, nil
}

// ---- helpers ----

// release is deferred by every handler that claims assets. Assets this task
// still holds in the active state (early return or panic) go to error; assets
// claimed by other tasks and failures already recorded are left alone. A
// panic is re-raised for the dispatcher boundary.
func (h *Handlers) release(ctx context.Context, episodeID uint, active model.AssetStatus, held *[]model.AssetKind, errp *error) {
	rec := recover()
	if len(*held) > 0 {
		cause := "interrupted"
		switch {
		case rec != nil:
			cause = fmt.Sprintf("panic: %v", rec)
		case *errp != nil:
			cause = (*errp).Error()
		}
		ctx := context.WithoutCancel(ctx)
		now := time.Now()
		for _, kind := range *held {
			msg := fmt.Sprintf("%s %s failed: %s", kind, stageName(active), cause)
			_, err := h.Store.TransitionAsset(ctx, episodeID, kind, []model.AssetStatus{active}, model.AssetError,
				map[string]interface{}{
					kind.Column("failed_stage"): active,
					"error_message":             msg,
					"last_attempt_at":           &now,
				})
			if err != nil {
				h.log.Warn("release asset failed", "episode_id", episodeID, "asset", kind, "error", err)
			}
		}
	}
	if rec != nil {
		panic(rec)
	}
}

func stageName(active model.AssetStatus) string {
	switch active {
	case model.AssetDownloading:
		return "download"
	case model.AssetProcessing:
		return "processing"
	case model.AssetUploading:
		return "upload"
	}
	return string(active)
}

func (h *Handlers) notifyEpisode(courseID, episodeID uint) {
	if h.Bus != nil {
		h.Bus.Publish(event.Event{Type: event.EventEpisodeUpdated, CourseID: courseID, Payload: map[string]interface{}{"episode_id": episodeID}})
	}
}

func (h *Handlers) notifyCourse(courseID uint) {
	if h.Bus != nil {
		h.Bus.Publish(event.Event{Type: event.EventCourseUpdated, CourseID: courseID, Payload: map[string]interface{}{"course_id": courseID}})
	}
}

func kindsOrAll(kinds []model.AssetKind) []model.AssetKind {
	if len(kinds) == 0 {
		return model.AssetKinds
	}
	return kinds
}

func courseSlug(c *model.Course) string {
	if c.Slug != "" {
		return c.Slug
	}
	if s := renamer.Slugify(c.TitleEN); s != "" {
		return s
	}
	return fmt.Sprintf("course-%d", c.ID)
}

func joinFailures(failed map[model.AssetKind]string) string {
	parts := make([]string, 0, len(failed))
	for _, kind := range model.AssetKinds {
		if msg, ok := failed[kind]; ok {
			parts = append(parts, msg)
		}
	}
	return strings.Join(parts, "; ")
}
