package tasklog

import (
	"context"
	"fmt"
	"testing"

	"github.com/pokerjest/acms/internal/db"
	"github.com/pokerjest/acms/internal/event"
	"github.com/pokerjest/acms/internal/logger"
	"github.com/pokerjest/acms/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderBoundedMostRecentFirst(t *testing.T) {
	conn, err := db.Open(":memory:")
	require.NoError(t, err)
	bus := event.NewInMemoryBus()
	rec := NewRecorder(conn, logger.Nop(), bus)
	ctx := context.Background()

	var pushed int
	bus.Subscribe(event.EventTaskLog, func(e event.Event) { pushed++ })

	for i := 0; i < BufferSize+20; i++ {
		rec.Info(ctx, 1, 0, "download", "running", fmt.Sprintf("msg %d", i), nil)
	}
	rec.Warn(ctx, 2, 5, "links", "expired", "other course", map[string]interface{}{"asset_type": "video"})

	all := rec.Recent(0, 0)
	assert.Len(t, all, BufferSize)
	assert.Equal(t, "other course", all[0].Message)
	assert.Equal(t, fmt.Sprintf("msg %d", BufferSize+19), all[1].Message)

	course1 := rec.Recent(1, 3)
	require.Len(t, course1, 3)
	assert.Equal(t, fmt.Sprintf("msg %d", BufferSize+19), course1[0].Message)
	assert.Equal(t, fmt.Sprintf("msg %d", BufferSize+17), course1[2].Message)

	assert.Equal(t, BufferSize+21, pushed)

	history, err := rec.History(ctx, 2, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.LevelWarning, history[0].Level)
	assert.Equal(t, "video", history[0].Details["asset_type"])
}

func TestRecorderAcceptsForwardedEntries(t *testing.T) {
	bus := event.NewInMemoryBus()
	rec := NewRecorder(nil, logger.Nop(), bus)

	// shape of an entry after a JSON round trip through redis
	bus.Publish(event.Event{Type: event.EventTaskLog, CourseID: 3, Origin: "worker-1", Payload: map[string]interface{}{
		"level": "info", "task_type": "upload", "status": "completed", "message": "Episode 001: uploaded", "course_id": 3,
	}})

	got := rec.Recent(3, 10)
	require.Len(t, got, 1)
	assert.Equal(t, "upload", got[0].TaskType)
}
