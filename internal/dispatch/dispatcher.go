package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pokerjest/acms/internal/logger"
	"github.com/pokerjest/acms/internal/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ModeQueued = "queued"
	ModeLocal  = "local"
)

var ErrTaskNotFound = errors.New("task not found")

// Submission is the uniform answer to Submit. Result holds the typed result
// of the task kind (e.g. DownloadResult) once the task is done.
type Submission struct {
	TaskID string           `json:"task_id"`
	Kind   Kind             `json:"kind"`
	Status model.TaskStatus `json:"status"`
	Mode   string           `json:"mode"`
	Result interface{}      `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
}

func (s Submission) Failed() bool { return s.Status == model.TaskFailed }

// FailureLog receives one entry per failed task; *tasklog.Recorder fits.
type FailureLog interface {
	Error(ctx context.Context, courseID, episodeID uint, taskType, status, msg string, details map[string]interface{})
}

type Dispatcher struct {
	db            *gorm.DB
	log           *logger.Logger
	registry      *Registry
	queue         Queue
	failures      FailureLog
	awaitInterval time.Duration
	heartbeat     time.Duration
}

// NewDispatcher builds a dispatcher. queue may be nil, in which case every
// task runs locally.
func NewDispatcher(db *gorm.DB, log *logger.Logger, registry *Registry, queue Queue, failures FailureLog, awaitInterval time.Duration) *Dispatcher {
	if awaitInterval <= 0 {
		awaitInterval = 2 * time.Second
	}
	return &Dispatcher{
		db:            db,
		log:           log.With("component", "Dispatcher"),
		registry:      registry,
		queue:         queue,
		failures:      failures,
		awaitInterval: awaitInterval,
		heartbeat:     time.Minute,
	}
}

// SetHeartbeat sets how often a running task refreshes its record's
// updated_at, which the stale reaper reads.
func (d *Dispatcher) SetHeartbeat(iv time.Duration) {
	if iv > 0 {
		d.heartbeat = iv
	}
}

func (d *Dispatcher) Registry() *Registry { return d.registry }

// Submit enqueues the task when a worker is reachable, otherwise runs it
// synchronously and returns a terminal status. It never returns an error:
// failures are reported through Submission.Status/Error.
func (d *Dispatcher) Submit(ctx context.Context, task Task) Submission {
	sub := Submission{TaskID: uuid.NewString(), Kind: task.Kind()}

	e, ok := d.registry.get(task.Kind())
	if !ok {
		sub.Status, sub.Mode, sub.Error = model.TaskFailed, ModeLocal, (&missingHandlerError{Kind: task.Kind()}).Error()
		d.log.Error("submit failed", "kind", task.Kind(), "error", sub.Error)
		return sub
	}

	payload, err := json.Marshal(task)
	if err != nil {
		sub.Status, sub.Mode, sub.Error = model.TaskFailed, ModeLocal, err.Error()
		return sub
	}
	courseID, episodeID := task.Scope()
	rec := model.ProcessingTask{
		ID:        sub.TaskID,
		Kind:      string(task.Kind()),
		CourseID:  courseID,
		EpisodeID: episodeID,
		Payload:   datatypes.JSON(payload),
	}

	if d.queue != nil && d.queue.Available(ctx) {
		rec.Mode, rec.Status = ModeQueued, model.TaskQueued
		if err := d.db.WithContext(ctx).Create(&rec).Error; err != nil {
			d.log.Warn("record task failed", "task_id", rec.ID, "error", err)
		}
		err := d.queue.Enqueue(ctx, Envelope{ID: sub.TaskID, Kind: task.Kind(), Payload: payload})
		if err == nil {
			sub.Status, sub.Mode = model.TaskQueued, ModeQueued
			d.log.Debug("task queued", "task_id", sub.TaskID, "kind", sub.Kind)
			return sub
		}
		d.log.Warn("enqueue failed, running locally", "task_id", sub.TaskID, "error", err)
		d.db.WithContext(ctx).Model(&model.ProcessingTask{}).Where("id = ?", rec.ID).Update("mode", ModeLocal)
	} else {
		rec.Mode, rec.Status = ModeLocal, model.TaskQueued
		if err := d.db.WithContext(ctx).Create(&rec).Error; err != nil {
			d.log.Warn("record task failed", "task_id", rec.ID, "error", err)
		}
	}

	sub.Mode = ModeLocal
	sub.Status, sub.Result, sub.Error = d.run(ctx, e, task, rec.ID)
	return sub
}

// Execute runs a task pulled off the queue. The record must still be queued;
// a task already claimed by another worker is ignored.
func (d *Dispatcher) Execute(ctx context.Context, env Envelope) error {
	e, ok := d.registry.get(env.Kind)
	if !ok {
		err := &missingHandlerError{Kind: env.Kind}
		d.finish(ctx, env.ID, model.TaskFailed, nil, err.Error())
		return err
	}
	task, err := e.decodeTask(env.Payload)
	if err != nil {
		d.finish(ctx, env.ID, model.TaskFailed, nil, err.Error())
		return fmt.Errorf("decode task %s: %w", env.ID, err)
	}
	d.run(ctx, e, task, env.ID)
	return nil
}

func (d *Dispatcher) run(ctx context.Context, e entry, task Task, id string) (model.TaskStatus, interface{}, string) {
	now := time.Now()
	claim := d.db.WithContext(ctx).Model(&model.ProcessingTask{}).
		Where("id = ? AND status = ?", id, model.TaskQueued).
		Updates(map[string]interface{}{"status": model.TaskRunning, "started_at": now})
	if claim.Error == nil && claim.RowsAffected == 0 {
		var existing model.ProcessingTask
		if err := d.db.WithContext(ctx).Select("id").First(&existing, "id = ?", id).Error; err == nil {
			d.log.Warn("task already claimed, skipping", "task_id", id)
			return model.TaskFailed, nil, "task already claimed"
		}
	}

	stop := d.beat(ctx, id)
	result, err := e.execute(ctx, task)
	stop()
	if err != nil {
		courseID, episodeID := task.Scope()
		d.log.Error("task failed", "task_id", id, "kind", task.Kind(), "course_id", courseID, "error", err)
		if d.failures != nil {
			ep := uint(0)
			if episodeID != nil {
				ep = *episodeID
			}
			d.failures.Error(ctx, courseID, ep, string(task.Kind()), "failed", err.Error(), map[string]interface{}{"task_id": id})
		}
		d.finish(ctx, id, model.TaskFailed, nil, err.Error())
		return model.TaskFailed, nil, err.Error()
	}
	d.finish(ctx, id, model.TaskDone, result, "")
	return model.TaskDone, result, ""
}

// beat touches the running record until stop is called.
func (d *Dispatcher) beat(ctx context.Context, id string) (stop func()) {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(d.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				err := d.db.WithContext(context.WithoutCancel(ctx)).Model(&model.ProcessingTask{}).
					Where("id = ? AND status = ?", id, model.TaskRunning).
					Update("updated_at", time.Now()).Error
				if err != nil {
					d.log.Warn("task heartbeat failed", "task_id", id, "error", err)
				}
			}
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}

func (d *Dispatcher) finish(ctx context.Context, id string, status model.TaskStatus, result interface{}, errMsg string) {
	updates := map[string]interface{}{
		"status":       status,
		"error":        errMsg,
		"completed_at": time.Now(),
	}
	if result != nil {
		if raw, err := json.Marshal(result); err == nil {
			updates["result"] = datatypes.JSON(raw)
		}
	}
	// 任务本身的 ctx 可能已取消，记录状态不能丢
	if err := d.db.WithContext(context.WithoutCancel(ctx)).Model(&model.ProcessingTask{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		d.log.Warn("update task record failed", "task_id", id, "error", err)
	}
}

// Get returns the current view of a task.
func (d *Dispatcher) Get(ctx context.Context, taskID string) (Submission, error) {
	var rec model.ProcessingTask
	if err := d.db.WithContext(ctx).First(&rec, "id = ?", taskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Submission{}, ErrTaskNotFound
		}
		return Submission{}, err
	}
	sub := Submission{TaskID: rec.ID, Kind: Kind(rec.Kind), Status: rec.Status, Mode: rec.Mode, Error: rec.Error}
	if len(rec.Result) > 0 {
		if e, ok := d.registry.get(sub.Kind); ok {
			if res, err := e.decodeResult([]byte(rec.Result)); err == nil {
				sub.Result = res
			}
		}
	}
	return sub, nil
}

// Await polls the task record until it reaches a terminal status.
func (d *Dispatcher) Await(ctx context.Context, taskID string) (Submission, error) {
	ticker := time.NewTicker(d.awaitInterval)
	defer ticker.Stop()
	for {
		sub, err := d.Get(ctx, taskID)
		if err != nil {
			return sub, err
		}
		if sub.Status.Terminal() {
			return sub, nil
		}
		select {
		case <-ctx.Done():
			return sub, ctx.Err()
		case <-ticker.C:
		}
	}
}

// SubmitAndWait is Submit followed by Await when the task was queued.
func (d *Dispatcher) SubmitAndWait(ctx context.Context, task Task) Submission {
	sub := d.Submit(ctx, task)
	if sub.Status.Terminal() {
		return sub
	}
	done, err := d.Await(ctx, sub.TaskID)
	if err != nil {
		sub.Error = err.Error()
		return sub
	}
	return done
}

// CountActive 统计排队中和运行中的任务数
func (d *Dispatcher) CountActive(ctx context.Context) (int64, error) {
	var n int64
	err := d.db.WithContext(ctx).Model(&model.ProcessingTask{}).
		Where("status IN ?", []model.TaskStatus{model.TaskQueued, model.TaskRunning}).
		Count(&n).Error
	return n, err
}
