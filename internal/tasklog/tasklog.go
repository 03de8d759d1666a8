// Package tasklog is the structured task log: every entry is persisted,
// kept in a bounded most-recent-first buffer and pushed on the event bus.
package tasklog

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pokerjest/acms/internal/event"
	"github.com/pokerjest/acms/internal/logger"
	"github.com/pokerjest/acms/internal/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BufferSize is how many entries the live stream keeps.
const BufferSize = 300

type Entry struct {
	ID        uint                   `json:"id"`
	Level     model.LogLevel         `json:"level"`
	TaskType  string                 `json:"task_type"`
	Status    string                 `json:"status"`
	Message   string                 `json:"message"`
	CourseID  uint                   `json:"course_id,omitempty"`
	EpisodeID uint                   `json:"episode_id,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

type Recorder struct {
	db  *gorm.DB
	log *logger.Logger
	bus event.Bus

	mu   sync.RWMutex
	ring []Entry // oldest first, len <= BufferSize
}

func NewRecorder(db *gorm.DB, log *logger.Logger, bus event.Bus) *Recorder {
	r := &Recorder{
		db:   db,
		log:  log.With("component", "TaskLog"),
		bus:  bus,
		ring: make([]Entry, 0, BufferSize),
	}
	if bus != nil {
		// entries recorded by other processes arrive through the redis bridge
		bus.Subscribe(event.EventTaskLog, func(e event.Event) {
			if e.Origin == "" {
				return
			}
			if entry, ok := decodeEntry(e.Payload); ok {
				r.push(entry)
			}
		})
	}
	return r
}

// Record persists the entry, appends it to the live buffer and publishes it.
// Persistence failures are logged, never returned: logging must not break a
// pipeline step.
func (r *Recorder) Record(ctx context.Context, e Entry) Entry {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Level == "" {
		e.Level = model.LevelInfo
	}

	row := model.TaskLog{
		Level:     e.Level,
		TaskType:  e.TaskType,
		Status:    e.Status,
		Message:   e.Message,
		Details:   datatypes.JSONMap(e.Details),
		CreatedAt: e.Timestamp,
	}
	if e.CourseID != 0 {
		cid := e.CourseID
		row.CourseID = &cid
	}
	if e.EpisodeID != 0 {
		eid := e.EpisodeID
		row.EpisodeID = &eid
	}
	if r.db != nil {
		if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
			r.log.Warn("persist task log failed", "error", err)
		} else {
			e.ID = row.ID
		}
	}

	r.zap(e)
	r.push(e)
	if r.bus != nil {
		r.bus.Publish(event.Event{Type: event.EventTaskLog, CourseID: e.CourseID, Payload: e})
	}
	return e
}

// Info/Warn/Error are shorthands used across the pipeline.
func (r *Recorder) Info(ctx context.Context, courseID, episodeID uint, taskType, status, msg string, details map[string]interface{}) {
	r.Record(ctx, Entry{Level: model.LevelInfo, CourseID: courseID, EpisodeID: episodeID, TaskType: taskType, Status: status, Message: msg, Details: details})
}

func (r *Recorder) Warn(ctx context.Context, courseID, episodeID uint, taskType, status, msg string, details map[string]interface{}) {
	r.Record(ctx, Entry{Level: model.LevelWarning, CourseID: courseID, EpisodeID: episodeID, TaskType: taskType, Status: status, Message: msg, Details: details})
}

func (r *Recorder) Error(ctx context.Context, courseID, episodeID uint, taskType, status, msg string, details map[string]interface{}) {
	r.Record(ctx, Entry{Level: model.LevelError, CourseID: courseID, EpisodeID: episodeID, TaskType: taskType, Status: status, Message: msg, Details: details})
}

// Recent returns up to limit buffered entries, most recent first. courseID 0
// means every course.
func (r *Recorder) Recent(courseID uint, limit int) []Entry {
	if limit <= 0 || limit > BufferSize {
		limit = BufferSize
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, limit)
	for i := len(r.ring) - 1; i >= 0 && len(out) < limit; i-- {
		if courseID != 0 && r.ring[i].CourseID != courseID {
			continue
		}
		out = append(out, r.ring[i])
	}
	return out
}

// History reads persisted logs for a course, newest first.
func (r *Recorder) History(ctx context.Context, courseID uint, limit int) ([]model.TaskLog, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	var logs []model.TaskLog
	q := r.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit)
	if courseID != 0 {
		q = q.Where("course_id = ?", courseID)
	}
	err := q.Find(&logs).Error
	return logs, err
}

func (r *Recorder) push(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.ring) == BufferSize {
		copy(r.ring, r.ring[1:])
		r.ring = r.ring[:BufferSize-1]
	}
	r.ring = append(r.ring, e)
}

func (r *Recorder) zap(e Entry) {
	kv := []interface{}{"task_type", e.TaskType, "status", e.Status, "course_id", e.CourseID}
	if e.EpisodeID != 0 {
		kv = append(kv, "episode_id", e.EpisodeID)
	}
	switch e.Level {
	case model.LevelError:
		r.log.Error(e.Message, kv...)
	case model.LevelWarning:
		r.log.Warn(e.Message, kv...)
	case model.LevelDebug:
		r.log.Debug(e.Message, kv...)
	default:
		r.log.Info(e.Message, kv...)
	}
}

func decodeEntry(payload interface{}) (Entry, bool) {
	if e, ok := payload.(Entry); ok {
		return e, true
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false
	}
	return e, true
}
