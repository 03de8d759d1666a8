package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pokerjest/acms/internal/asset"
	"github.com/pokerjest/acms/internal/dispatch"
	"github.com/pokerjest/acms/internal/event"
	"github.com/pokerjest/acms/internal/logger"
	"github.com/pokerjest/acms/internal/model"
	"github.com/pokerjest/acms/internal/repo"
	"github.com/pokerjest/acms/internal/tasklog"
)

var (
	ErrUnknownAction = errors.New("unknown action")
	ErrRunInProgress = errors.New("automatic run already in progress")
)

type Action string

const (
	ActionDownload  Action = "download"
	ActionProcess   Action = "process"
	ActionUpload    Action = "upload"
	ActionRetry     Action = "retry"
	ActionTranslate Action = "translate"
)

// Dispatcher is the part of dispatch.Dispatcher the orchestrator drives.
type Dispatcher interface {
	Submit(ctx context.Context, task dispatch.Task) dispatch.Submission
	SubmitAndWait(ctx context.Context, task dispatch.Task) dispatch.Submission
}

type Orchestrator struct {
	store      *repo.Store
	dispatcher Dispatcher
	logs       *tasklog.Recorder
	bus        event.Bus
	log        *logger.Logger

	mu   sync.Mutex
	runs map[uint]*atomic.Bool // course id -> cancel flag of the active run
}

func NewOrchestrator(store *repo.Store, dispatcher Dispatcher, logs *tasklog.Recorder, bus event.Bus, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		store:      store,
		dispatcher: dispatcher,
		logs:       logs,
		bus:        bus,
		log:        log.With("component", "Orchestrator"),
		runs:       make(map[uint]*atomic.Bool),
	}
}

type ActionResult struct {
	Action      Action                `json:"action"`
	EpisodeID   uint                  `json:"episode_id"`
	Noop        bool                  `json:"noop"`
	Submissions []dispatch.Submission `json:"submissions,omitempty"`
}

// PerformAction runs one action on one episode. An action whose guard is
// false is a successful no-op.
func (o *Orchestrator) PerformAction(ctx context.Context, episodeID uint, action Action) (ActionResult, error) {
	res := ActionResult{Action: action, EpisodeID: episodeID}
	ep, err := o.store.GetEpisode(ctx, episodeID)
	if err != nil {
		return res, err
	}

	var tasks []dispatch.Task
	switch action {
	case ActionDownload:
		if needsDownload(ep) {
			tasks = append(tasks, dispatch.DownloadTask{CourseID: ep.CourseID, EpisodeID: ep.ID})
		}
	case ActionProcess:
		if needsProcess(ep) {
			tasks = append(tasks, dispatch.ProcessTask{CourseID: ep.CourseID, EpisodeID: ep.ID})
		}
	case ActionUpload:
		if needsUpload(ep) {
			tasks = append(tasks, dispatch.UploadTask{CourseID: ep.CourseID, EpisodeID: ep.ID})
		}
	case ActionRetry:
		tasks = retryTasks(ep)
	case ActionTranslate:
		if ep.TitleFA == "" && ep.TitleEN != "" {
			tasks = append(tasks, dispatch.TranslateTask{CourseID: ep.CourseID, EpisodeID: ep.ID})
		}
	default:
		return res, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}

	if len(tasks) == 0 {
		res.Noop = true
		return res, nil
	}
	for _, t := range tasks {
		res.Submissions = append(res.Submissions, o.dispatcher.Submit(ctx, t))
	}
	return res, nil
}

// retryTasks routes every errored asset back to the stage it failed in.
func retryTasks(ep *model.Episode) []dispatch.Task {
	if !asset.CanRetry(ep) {
		return nil
	}
	byStage := map[model.AssetStatus][]model.AssetKind{}
	for _, kind := range model.AssetKinds {
		if stage := asset.RetryStage(ep, kind); stage != "" {
			byStage[stage] = append(byStage[stage], kind)
		}
	}
	var tasks []dispatch.Task
	if kinds := byStage[model.AssetDownloading]; len(kinds) > 0 {
		tasks = append(tasks, dispatch.DownloadTask{CourseID: ep.CourseID, EpisodeID: ep.ID, Kinds: kinds, Retry: true})
	}
	if kinds := byStage[model.AssetProcessing]; len(kinds) > 0 {
		tasks = append(tasks, dispatch.ProcessTask{CourseID: ep.CourseID, EpisodeID: ep.ID, Kinds: kinds, Retry: true})
	}
	if len(byStage[model.AssetUploading]) > 0 {
		tasks = append(tasks, dispatch.UploadTask{CourseID: ep.CourseID, EpisodeID: ep.ID, Retry: true})
	}
	return tasks
}

type PipelineResult struct {
	CourseID   uint   `json:"course_id"`
	DebugMode  bool   `json:"debug_mode"`
	Episodes   []uint `json:"episodes"`
	Dispatched int    `json:"dispatched"`
	Failed     int    `json:"failed"`
}

// StartPipeline downloads then processes every target episode. In debug mode
// the only target is the lowest numbered episode.
func (o *Orchestrator) StartPipeline(ctx context.Context, courseID uint) (PipelineResult, error) {
	res := PipelineResult{CourseID: courseID}
	course, err := o.store.GetCourse(ctx, courseID)
	if err != nil {
		return res, err
	}
	res.DebugMode = course.DebugMode
	eps, err := o.store.ListEpisodes(ctx, courseID)
	if err != nil {
		return res, err
	}
	targets := eps
	if course.DebugMode {
		targets = firstEpisode(eps)
	}
	if _, err := o.store.AdvanceCourseStatus(ctx, courseID, model.CourseProcessing); err != nil {
		return res, err
	}
	o.logs.Info(ctx, courseID, 0, "pipeline", "started", fmt.Sprintf("Pipeline started for %d episode(s)", len(targets)),
		map[string]interface{}{"debug_mode": course.DebugMode})

	for _, ep := range targets {
		res.Episodes = append(res.Episodes, ep.ID)
		failed := false
		for _, t := range []dispatch.Task{
			dispatch.DownloadTask{CourseID: courseID, EpisodeID: ep.ID},
			dispatch.ProcessTask{CourseID: courseID, EpisodeID: ep.ID},
		} {
			sub := o.dispatcher.SubmitAndWait(ctx, t)
			res.Dispatched++
			if sub.Failed() {
				failed = true
			}
		}
		if failed {
			res.Failed++
		}
	}

	o.refreshCourseStatus(ctx, courseID)
	o.logs.Info(ctx, courseID, 0, "pipeline", "completed", "Pipeline finished",
		map[string]interface{}{"episodes": len(res.Episodes), "failed": res.Failed})
	return res, nil
}

const (
	RunRunning      = "running"
	RunCompleted    = "completed"
	RunPartialError = "partial_error"
	RunFailed       = "failed"
)

// RunSummary is persisted at extra_metadata.upload_summary.
type RunSummary struct {
	State              string `json:"state"`
	RunRequested       int    `json:"run_requested"`
	RunProcessed       int    `json:"run_processed"`
	RunUploaded        int    `json:"run_uploaded"`
	RunFailed          int    `json:"run_failed"`
	RunSkippedExisting int    `json:"run_skipped_existing"`
	UploadedTotal      int    `json:"uploaded_total"`
	FailedTotal        int    `json:"failed_total"`
	TotalEpisodes      int    `json:"total_episodes"`
	UpdatedAt          string `json:"updated_at"`
	DebugHalt          bool   `json:"debug_halt,omitempty"`
	Cancelled          bool   `json:"cancelled,omitempty"`
	FailedEpisodes     []uint `json:"failed_episodes,omitempty"`
}

func (s RunSummary) Map() map[string]interface{} {
	m := map[string]interface{}{
		"state":                s.State,
		"run_requested":        s.RunRequested,
		"run_processed":        s.RunProcessed,
		"run_uploaded":         s.RunUploaded,
		"run_failed":           s.RunFailed,
		"run_skipped_existing": s.RunSkippedExisting,
		"uploaded_total":       s.UploadedTotal,
		"failed_total":         s.FailedTotal,
		"total_episodes":       s.TotalEpisodes,
		"updated_at":           s.UpdatedAt,
	}
	if s.DebugHalt {
		m["debug_halt"] = true
	}
	if s.Cancelled {
		m["cancelled"] = true
	}
	if len(s.FailedEpisodes) > 0 {
		m["failed_episodes"] = s.FailedEpisodes
	}
	return m
}

// RunAutomatic walks the outstanding episodes in ascending order and takes
// each through download, process, translate and upload. One episode failing
// does not stop the run; cancellation is honoured between episodes.
func (o *Orchestrator) RunAutomatic(ctx context.Context, courseID uint) (RunSummary, error) {
	var sum RunSummary
	course, err := o.store.GetCourse(ctx, courseID)
	if err != nil {
		return sum, err
	}
	cancelled, err := o.beginRun(courseID)
	if err != nil {
		return sum, err
	}
	defer o.endRun(courseID)

	eps, err := o.store.ListEpisodes(ctx, courseID)
	if err != nil {
		return sum, err
	}
	candidates := eps
	if course.DebugMode {
		candidates = firstEpisode(eps)
	}
	var targets []model.Episode
	for _, ep := range candidates {
		if !asset.IsDone(&ep) {
			targets = append(targets, ep)
		}
	}

	sum = RunSummary{State: RunRunning, RunRequested: len(targets), TotalEpisodes: len(eps)}
	o.saveSummary(ctx, courseID, &sum, nil)
	o.logs.Info(ctx, courseID, 0, "auto_run", "started", fmt.Sprintf("Automatic run started for %d episode(s)", len(targets)),
		map[string]interface{}{"debug_mode": course.DebugMode})

	var uploaderSummary map[string]interface{}
	for i := range targets {
		if cancelled.Load() {
			sum.Cancelled = true
			o.logs.Warn(ctx, courseID, 0, "auto_run", "cancelled", "Automatic run cancelled", nil)
			break
		}
		if ctx.Err() != nil {
			sum.Cancelled = true
			break
		}

		out := o.runEpisode(ctx, course, &targets[i])
		sum.RunProcessed++
		switch {
		case out.failed:
			sum.RunFailed++
			sum.FailedEpisodes = append(sum.FailedEpisodes, targets[i].ID)
		case out.skipExisting:
			sum.RunSkippedExisting++
		case out.uploaded:
			sum.RunUploaded++
		}
		if out.summary != nil {
			uploaderSummary = out.summary
		}
		o.publishProgress(courseID, sum)

		if out.debugHalt {
			sum.DebugHalt = true
			o.logs.Warn(ctx, courseID, targets[i].ID, "auto_run", "debug_halt",
				"Destination already has this episode; debug run halted", nil)
			break
		}
	}

	switch {
	case sum.RunFailed == 0:
		sum.State = RunCompleted
	case sum.RunFailed < sum.RunProcessed:
		sum.State = RunPartialError
	default:
		sum.State = RunFailed
	}
	o.saveSummary(context.WithoutCancel(ctx), courseID, &sum, uploaderSummary)
	o.refreshCourseStatus(context.WithoutCancel(ctx), courseID)
	o.logs.Info(ctx, courseID, 0, "auto_run", sum.State, "Automatic run finished", sum.Map())
	return sum, nil
}

type episodeOutcome struct {
	failed       bool
	uploaded     bool
	skipExisting bool
	debugHalt    bool
	summary      map[string]interface{}
}

func (o *Orchestrator) runEpisode(ctx context.Context, course *model.Course, ep *model.Episode) episodeOutcome {
	var out episodeOutcome
	fail := func(step string, sub dispatch.Submission) episodeOutcome {
		out.failed = true
		o.logs.Error(ctx, course.ID, ep.ID, "auto_run", "episode_failed",
			fmt.Sprintf("Episode %s failed at %s", ep.Label(), step), map[string]interface{}{"error": sub.Error})
		return out
	}

	if needsDownload(ep) {
		if sub := o.dispatcher.SubmitAndWait(ctx, dispatch.DownloadTask{CourseID: course.ID, EpisodeID: ep.ID}); sub.Failed() {
			return fail("download", sub)
		}
	}
	if !o.reload(ctx, ep) {
		out.failed = true
		return out
	}
	if needsProcess(ep) {
		if sub := o.dispatcher.SubmitAndWait(ctx, dispatch.ProcessTask{CourseID: course.ID, EpisodeID: ep.ID}); sub.Failed() {
			return fail("process", sub)
		}
	}
	if ep.TitleFA == "" && ep.TitleEN != "" && o.autoTranslate(ctx) {
		// best effort
		if sub := o.dispatcher.SubmitAndWait(ctx, dispatch.TranslateTask{CourseID: course.ID, EpisodeID: ep.ID}); sub.Failed() {
			o.logs.Warn(ctx, course.ID, ep.ID, "translate", "skipped", "Title translation failed, continuing", map[string]interface{}{"error": sub.Error})
		}
	}
	if !o.reload(ctx, ep) {
		out.failed = true
		return out
	}
	if needsUpload(ep) {
		sub := o.dispatcher.SubmitAndWait(ctx, dispatch.UploadTask{CourseID: course.ID, EpisodeID: ep.ID})
		if sub.Failed() {
			return fail("upload", sub)
		}
		if res, ok := sub.Result.(dispatch.UploadResult); ok {
			out.skipExisting = res.SkipExisting
			out.debugHalt = res.DebugHalt
			out.uploaded = len(res.Uploaded) > 0 && !res.SkipExisting
			out.summary = res.Summary
		}
	}
	return out
}

// autoTranslate reads the auto_translate setting; unset means on.
func (o *Orchestrator) autoTranslate(ctx context.Context) bool {
	v, err := o.store.Setting(ctx, model.ConfigKeyAutoTranslate)
	if err != nil || v == "" {
		return true
	}
	on, err := strconv.ParseBool(v)
	return err != nil || on
}

func (o *Orchestrator) reload(ctx context.Context, ep *model.Episode) bool {
	fresh, err := o.store.GetEpisode(ctx, ep.ID)
	if err != nil {
		o.log.Warn("reload episode failed", "episode_id", ep.ID, "error", err)
		return false
	}
	*ep = *fresh
	return true
}

// saveSummary writes the run summary; a summary reported by the uploader
// replaces the computed one.
func (o *Orchestrator) saveSummary(ctx context.Context, courseID uint, sum *RunSummary, fromUploader map[string]interface{}) {
	eps, err := o.store.ListEpisodes(ctx, courseID)
	if err == nil {
		sum.UploadedTotal, sum.FailedTotal = 0, 0
		for i := range eps {
			if asset.IsDone(&eps[i]) {
				sum.UploadedTotal++
			}
			if asset.CanRetry(&eps[i]) {
				sum.FailedTotal++
			}
		}
		sum.TotalEpisodes = len(eps)
	}
	sum.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	value := sum.Map()
	if fromUploader != nil {
		value = fromUploader
	}
	if err := o.store.UpdateCourseMetadata(ctx, courseID, func(meta map[string]interface{}) {
		meta[model.MetaKeyUploadSummary] = value
	}); err != nil {
		o.log.Warn("save upload summary failed", "course_id", courseID, "error", err)
	}
}

func (o *Orchestrator) publishProgress(courseID uint, sum RunSummary) {
	if o.bus != nil {
		o.bus.Publish(event.Event{Type: event.EventRunProgress, CourseID: courseID, Payload: sum.Map()})
	}
}

// refreshCourseStatus derives the course status from its episodes.
func (o *Orchestrator) refreshCourseStatus(ctx context.Context, courseID uint) {
	eps, err := o.store.ListEpisodes(ctx, courseID)
	if err != nil || len(eps) == 0 {
		return
	}
	allDone, allProcessed := true, true
	for i := range eps {
		if !asset.IsDone(&eps[i]) {
			allDone = false
		}
		switch eps[i].VideoStatus {
		case model.AssetProcessed, model.AssetUploading, model.AssetUploaded:
		default:
			allProcessed = false
		}
	}
	switch {
	case allDone:
		_, _ = o.store.AdvanceCourseStatus(ctx, courseID, model.CourseCompleted)
	case allProcessed:
		_, _ = o.store.AdvanceCourseStatus(ctx, courseID, model.CourseReadyForUpload)
	}
	if o.bus != nil {
		o.bus.Publish(event.Event{Type: event.EventCourseUpdated, CourseID: courseID, Payload: map[string]interface{}{"course_id": courseID}})
	}
}

func (o *Orchestrator) beginRun(courseID uint) (*atomic.Bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.runs[courseID]; ok {
		return nil, ErrRunInProgress
	}
	flag := &atomic.Bool{}
	o.runs[courseID] = flag
	return flag, nil
}

func (o *Orchestrator) endRun(courseID uint) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.runs, courseID)
}

// CancelRun asks the active run of a course to stop before its next episode.
// It reports whether a run was active.
func (o *Orchestrator) CancelRun(courseID uint) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	flag, ok := o.runs[courseID]
	if ok {
		flag.Store(true)
	}
	return ok
}

func (o *Orchestrator) IsRunning(courseID uint) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.runs[courseID]
	return ok
}

// ToggleDebug flips debug_mode and returns the new value.
func (o *Orchestrator) ToggleDebug(ctx context.Context, courseID uint) (bool, error) {
	course, err := o.store.GetCourse(ctx, courseID)
	if err != nil {
		return false, err
	}
	next := !course.DebugMode
	if err := o.store.UpdateCourse(ctx, courseID, map[string]interface{}{"debug_mode": next}); err != nil {
		return false, err
	}
	o.logs.Info(ctx, courseID, 0, "course", "debug_mode", fmt.Sprintf("Debug mode set to %t", next), nil)
	return next, nil
}

// RetryAllFailed retries every episode that has an errored asset.
func (o *Orchestrator) RetryAllFailed(ctx context.Context, courseID uint) ([]ActionResult, error) {
	if _, err := o.store.GetCourse(ctx, courseID); err != nil {
		return nil, err
	}
	eps, err := o.store.ListEpisodes(ctx, courseID)
	if err != nil {
		return nil, err
	}
	var out []ActionResult
	for i := range eps {
		if !asset.CanRetry(&eps[i]) {
			continue
		}
		res, err := o.PerformAction(ctx, eps[i].ID, ActionRetry)
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}

// Scrape, TranslateCourse and GenerateContent are course-level one-shot tasks.
func (o *Orchestrator) Scrape(ctx context.Context, courseID uint) (dispatch.Submission, error) {
	if _, err := o.store.GetCourse(ctx, courseID); err != nil {
		return dispatch.Submission{}, err
	}
	return o.dispatcher.Submit(ctx, dispatch.ScrapeTask{CourseID: courseID}), nil
}

func (o *Orchestrator) TranslateCourse(ctx context.Context, courseID uint) (dispatch.Submission, error) {
	if _, err := o.store.GetCourse(ctx, courseID); err != nil {
		return dispatch.Submission{}, err
	}
	return o.dispatcher.Submit(ctx, dispatch.TranslateTask{CourseID: courseID}), nil
}

func (o *Orchestrator) GenerateContent(ctx context.Context, courseID uint) (dispatch.Submission, error) {
	if _, err := o.store.GetCourse(ctx, courseID); err != nil {
		return dispatch.Submission{}, err
	}
	return o.dispatcher.Submit(ctx, dispatch.ContentTask{CourseID: courseID}), nil
}

func needsDownload(ep *model.Episode) bool {
	for _, kind := range model.AssetKinds {
		if asset.CanDownload(ep.Status(kind)) {
			return true
		}
	}
	return false
}

func needsProcess(ep *model.Episode) bool {
	for _, kind := range model.AssetKinds {
		if asset.CanProcess(ep, kind) {
			return true
		}
	}
	return false
}

func needsUpload(ep *model.Episode) bool {
	for _, kind := range model.AssetKinds {
		if ep.Status(kind) == model.AssetProcessed && asset.CanUpload(ep, kind) {
			return true
		}
	}
	return false
}

// firstEpisode returns the lowest numbered episode; ListEpisodes already
// orders numbered episodes first.
func firstEpisode(eps []model.Episode) []model.Episode {
	if len(eps) == 0 {
		return nil
	}
	return eps[:1]
}
