package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pokerjest/acms/internal/db"
	"github.com/pokerjest/acms/internal/logger"
	"github.com/pokerjest/acms/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeQueue struct {
	mu        sync.Mutex
	available bool
	fail      bool
	envs      []Envelope
}

func (q *fakeQueue) Available(ctx context.Context) bool { return q.available }

func (q *fakeQueue) Enqueue(ctx context.Context, env Envelope) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fail {
		return errors.New("broker went away")
	}
	q.envs = append(q.envs, env)
	return nil
}

type failureLog struct {
	mu   sync.Mutex
	msgs []string
}

func (f *failureLog) Error(ctx context.Context, courseID, episodeID uint, taskType, status, msg string, details map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, taskType+": "+msg)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.Open(":memory:")
	require.NoError(t, err)
	return gdb
}

func newRegistry(t *testing.T, failed *[]string) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, Register(r, func(ctx context.Context, task ScrapeTask) (ScrapeResult, error) {
		return ScrapeResult{EpisodesCreated: int(task.CourseID)}, nil
	}, nil))
	require.NoError(t, Register(r, func(ctx context.Context, task DownloadTask) (DownloadResult, error) {
		return DownloadResult{}, errors.New("connection reset")
	}, func(ctx context.Context, task DownloadTask, err error) {
		*failed = append(*failed, err.Error())
	}))
	require.NoError(t, Register(r, func(ctx context.Context, task UploadTask) (UploadResult, error) {
		panic("boom")
	}, func(ctx context.Context, task UploadTask, err error) {
		*failed = append(*failed, err.Error())
	}))
	return r
}

func TestRegisterTwice(t *testing.T) {
	r := NewRegistry()
	run := func(ctx context.Context, task ContentTask) (ContentResult, error) { return ContentResult{}, nil }
	require.NoError(t, Register(r, run, nil))
	assert.Error(t, Register(r, run, nil))
}

func TestSubmitLocalWhenNoQueue(t *testing.T) {
	gdb := newTestDB(t)
	var failed []string
	d := NewDispatcher(gdb, logger.Nop(), newRegistry(t, &failed), nil, nil, time.Millisecond)

	sub := d.Submit(context.Background(), ScrapeTask{CourseID: 7})
	assert.Equal(t, model.TaskDone, sub.Status)
	assert.Equal(t, ModeLocal, sub.Mode)
	assert.Equal(t, ScrapeResult{EpisodesCreated: 7}, sub.Result)

	var rec model.ProcessingTask
	require.NoError(t, gdb.First(&rec, "id = ?", sub.TaskID).Error)
	assert.Equal(t, model.TaskDone, rec.Status)
	assert.Equal(t, uint(7), rec.CourseID)
	assert.NotNil(t, rec.CompletedAt)
}

func TestSubmitFallsBackWhenQueueUnavailable(t *testing.T) {
	gdb := newTestDB(t)
	var failed []string
	q := &fakeQueue{available: false}
	d := NewDispatcher(gdb, logger.Nop(), newRegistry(t, &failed), q, nil, time.Millisecond)

	sub := d.Submit(context.Background(), ScrapeTask{CourseID: 1})
	assert.Equal(t, ModeLocal, sub.Mode)
	assert.Equal(t, model.TaskDone, sub.Status)
	assert.Empty(t, q.envs)
}

func TestSubmitFallsBackWhenEnqueueFails(t *testing.T) {
	gdb := newTestDB(t)
	var failed []string
	q := &fakeQueue{available: true, fail: true}
	d := NewDispatcher(gdb, logger.Nop(), newRegistry(t, &failed), q, nil, time.Millisecond)

	sub := d.Submit(context.Background(), ScrapeTask{CourseID: 1})
	assert.Equal(t, ModeLocal, sub.Mode)
	assert.Equal(t, model.TaskDone, sub.Status)
}

func TestHandlerErrorIsCapturedAndHookRuns(t *testing.T) {
	gdb := newTestDB(t)
	var failed []string
	logs := &failureLog{}
	d := NewDispatcher(gdb, logger.Nop(), newRegistry(t, &failed), nil, logs, time.Millisecond)

	sub := d.Submit(context.Background(), DownloadTask{CourseID: 1, EpisodeID: 2})
	assert.Equal(t, model.TaskFailed, sub.Status)
	assert.Equal(t, "connection reset", sub.Error)
	assert.Equal(t, []string{"connection reset"}, failed)
	assert.Equal(t, []string{"download: connection reset"}, logs.msgs)
}

func TestHandlerPanicIsCaptured(t *testing.T) {
	gdb := newTestDB(t)
	var failed []string
	d := NewDispatcher(gdb, logger.Nop(), newRegistry(t, &failed), nil, nil, time.Millisecond)

	var sub Submission
	assert.NotPanics(t, func() {
		sub = d.Submit(context.Background(), UploadTask{CourseID: 1, EpisodeID: 2})
	})
	assert.True(t, sub.Failed())
	assert.Contains(t, sub.Error, "boom")
	require.Len(t, failed, 1)
}

func TestSubmitUnknownKind(t *testing.T) {
	gdb := newTestDB(t)
	d := NewDispatcher(gdb, logger.Nop(), NewRegistry(), nil, nil, time.Millisecond)
	sub := d.Submit(context.Background(), ContentTask{CourseID: 1})
	assert.True(t, sub.Failed())
	assert.Contains(t, sub.Error, "no handler")
}

func TestQueuedTaskExecutedByWorkerAndAwaited(t *testing.T) {
	gdb := newTestDB(t)
	var failed []string
	q := &fakeQueue{available: true}
	d := NewDispatcher(gdb, logger.Nop(), newRegistry(t, &failed), q, nil, 5*time.Millisecond)

	sub := d.Submit(context.Background(), ScrapeTask{CourseID: 3})
	assert.Equal(t, model.TaskQueued, sub.Status)
	assert.Equal(t, ModeQueued, sub.Mode)
	require.Len(t, q.envs, 1)

	n, err := d.CountActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = d.Execute(context.Background(), q.envs[0])
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done, err := d.Await(ctx, sub.TaskID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskDone, done.Status)
	assert.Equal(t, ScrapeResult{EpisodesCreated: 3}, done.Result)

	// a second delivery of the same envelope is ignored
	require.NoError(t, d.Execute(context.Background(), q.envs[0]))
	n, err = d.CountActive(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAwaitUnknownTask(t *testing.T) {
	d := NewDispatcher(newTestDB(t), logger.Nop(), NewRegistry(), nil, nil, time.Millisecond)
	_, err := d.Await(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestRunningTaskHeartbeat(t *testing.T) {
	gdb := newTestDB(t)
	release := make(chan struct{})
	r := NewRegistry()
	require.NoError(t, Register(r, func(ctx context.Context, task ContentTask) (ContentResult, error) {
		<-release
		return ContentResult{Generated: true}, nil
	}, nil))
	d := NewDispatcher(gdb, logger.Nop(), r, nil, nil, time.Millisecond)
	d.SetHeartbeat(10 * time.Millisecond)

	done := make(chan Submission, 1)
	go func() { done <- d.Submit(context.Background(), ContentTask{CourseID: 1}) }()

	var rec model.ProcessingTask
	require.Eventually(t, func() bool {
		return gdb.Where("status = ?", model.TaskRunning).First(&rec).Error == nil
	}, time.Second, 5*time.Millisecond)

	old := time.Now().Add(-3 * time.Hour)
	require.NoError(t, gdb.Model(&model.ProcessingTask{}).Where("id = ?", rec.ID).UpdateColumn("updated_at", old).Error)
	assert.Eventually(t, func() bool {
		var cur model.ProcessingTask
		if err := gdb.First(&cur, "id = ?", rec.ID).Error; err != nil {
			return false
		}
		return cur.UpdatedAt.After(time.Now().Add(-time.Minute))
	}, time.Second, 5*time.Millisecond)

	close(release)
	sub := <-done
	assert.Equal(t, model.TaskDone, sub.Status)
}
