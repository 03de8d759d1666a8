// Package scheduler runs periodic housekeeping: task records and assets left
// in an active state by a crashed process are moved to failed/error so they
// can be retried.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/pokerjest/acms/internal/logger"
	"github.com/pokerjest/acms/internal/model"
	"github.com/pokerjest/acms/internal/repo"
)

// Recorder receives one entry per recovered asset; *tasklog.Recorder fits.
type Recorder interface {
	Warn(ctx context.Context, courseID, episodeID uint, taskType, status, msg string, details map[string]interface{})
}

type SweepResult struct {
	Tasks  int64 `json:"tasks"`
	Assets int   `json:"assets"`
}

type Manager struct {
	store      *repo.Store
	logs       Recorder
	log        *logger.Logger
	staleAfter time.Duration
	interval   time.Duration
	now        func() time.Time

	ticker *time.Ticker
	quit   chan struct{}
}

func NewManager(store *repo.Store, logs Recorder, log *logger.Logger, staleAfter, interval time.Duration) *Manager {
	if staleAfter <= 0 {
		staleAfter = 2 * time.Hour
	}
	if interval <= 0 {
		// 每15分钟检查一次
		interval = 15 * time.Minute
	}
	return &Manager{
		store:      store,
		logs:       logs,
		log:        log.With("component", "Scheduler"),
		staleAfter: staleAfter,
		interval:   interval,
		now:        time.Now,
		quit:       make(chan struct{}),
	}
}

func (m *Manager) Start() {
	m.log.Info("scheduler started", "stale_after", m.staleAfter, "interval", m.interval)
	m.ticker = time.NewTicker(m.interval)
	go func() {
		// 立即执行一次
		m.run()
		for {
			select {
			case <-m.ticker.C:
				m.run()
			case <-m.quit:
				m.ticker.Stop()
				return
			}
		}
	}()
}

func (m *Manager) Stop() {
	close(m.quit)
	m.log.Info("scheduler stopped")
}

func (m *Manager) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	res, err := m.Sweep(ctx)
	if err != nil {
		m.log.Error("sweep failed", "error", err)
		return
	}
	if res.Tasks > 0 || res.Assets > 0 {
		m.log.Info("stale work recovered", "tasks", res.Tasks, "assets", res.Assets)
	}
}

var activeAssetStatuses = []model.AssetStatus{model.AssetDownloading, model.AssetProcessing, model.AssetUploading}

// Sweep fails task records that made no progress within staleAfter, then
// moves assets stuck in an active state with no live task to error, keeping
// the stage they were in so a retry resumes there.
func (m *Manager) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	cutoff := m.now().Add(-m.staleAfter)
	db := m.store.DB.WithContext(ctx)

	tx := db.Model(&model.ProcessingTask{}).
		Where("status IN ? AND updated_at < ?", []model.TaskStatus{model.TaskQueued, model.TaskRunning}, cutoff).
		Updates(map[string]interface{}{
			"status":       model.TaskFailed,
			"error":        "stale: no progress before restart",
			"completed_at": m.now(),
		})
	if tx.Error != nil {
		return res, fmt.Errorf("fail stale tasks: %w", tx.Error)
	}
	res.Tasks = tx.RowsAffected

	var eps []model.Episode
	err := db.Where("(video_status IN ? OR subtitle_status IN ? OR exercise_status IN ?) AND updated_at < ?",
		activeAssetStatuses, activeAssetStatuses, activeAssetStatuses, cutoff).
		Find(&eps).Error
	if err != nil {
		return res, fmt.Errorf("find stuck episodes: %w", err)
	}

	for i := range eps {
		ep := &eps[i]
		var live int64
		if err := db.Model(&model.ProcessingTask{}).
			Where("episode_id = ? AND status IN ?", ep.ID, []model.TaskStatus{model.TaskQueued, model.TaskRunning}).
			Count(&live).Error; err != nil {
			return res, err
		}
		if live > 0 {
			continue
		}
		for _, kind := range model.AssetKinds {
			stage := ep.Status(kind)
			if !stage.IsActive() {
				continue
			}
			msg := fmt.Sprintf("%s %s interrupted", kind, stage)
			if err := m.store.MarkAssetError(ctx, ep.ID, kind, stage, msg); err != nil {
				return res, err
			}
			res.Assets++
			if m.logs != nil {
				m.logs.Warn(ctx, ep.CourseID, ep.ID, "reaper", "error", msg, map[string]interface{}{"asset": kind, "stage": stage})
			}
		}
	}
	return res, nil
}
