package launcher

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/pokerjest/acms/internal/logger"
	"github.com/stretchr/testify/assert"
)

func TestGoStopsWithManagerContext(t *testing.T) {
	m := &Manager{Log: logger.Nop()}
	m.Ctx, m.Cancel = context.WithCancel(context.Background())

	started := make(chan struct{})
	var stopped atomic.Bool
	m.Go(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		stopped.Store(true)
	})

	<-started
	assert.False(t, stopped.Load())
	m.Cancel()
	m.Wait()
	assert.True(t, stopped.Load())
}
