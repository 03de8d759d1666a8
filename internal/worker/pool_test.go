package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pokerjest/acms/internal/dispatch"
	"github.com/pokerjest/acms/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu         sync.Mutex
	items      chan dispatch.Envelope
	heartbeats int
	left       []string
	failNext   bool
}

func newFakeSource(envs ...dispatch.Envelope) *fakeSource {
	s := &fakeSource{items: make(chan dispatch.Envelope, len(envs))}
	for _, e := range envs {
		s.items <- e
	}
	return s
}

func (s *fakeSource) Dequeue(ctx context.Context, timeout time.Duration) (*dispatch.Envelope, error) {
	s.mu.Lock()
	if s.failNext {
		s.failNext = false
		s.mu.Unlock()
		return nil, errors.New("broker unavailable")
	}
	s.mu.Unlock()
	select {
	case e := <-s.items:
		return &e, nil
	case <-time.After(timeout):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *fakeSource) Heartbeat(ctx context.Context, workerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heartbeats++
	return nil
}

func (s *fakeSource) Leave(ctx context.Context, workerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.left = append(s.left, workerID)
	return nil
}

type recordingExec struct {
	mu   sync.Mutex
	seen []string
	done chan struct{}
	want int
}

func (r *recordingExec) Execute(ctx context.Context, env dispatch.Envelope) error {
	if env.Kind == "boom" {
		panic("handler exploded")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, env.ID)
	if len(r.seen) == r.want {
		close(r.done)
	}
	if env.Kind == "bad" {
		return errors.New("decode failed")
	}
	return nil
}

func TestPoolDrainsQueueAndLeaves(t *testing.T) {
	src := newFakeSource(
		dispatch.Envelope{ID: "a", Kind: dispatch.KindDownload},
		dispatch.Envelope{ID: "x", Kind: "boom"},
		dispatch.Envelope{ID: "b", Kind: "bad"},
		dispatch.Envelope{ID: "c", Kind: dispatch.KindUpload},
	)
	src.failNext = true
	exec := &recordingExec{done: make(chan struct{}), want: 3}

	pool := NewPool(src, exec, logger.Nop(), Options{Concurrency: 2, PollTimeout: 10 * time.Millisecond, HeartbeatInterval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- pool.Run(ctx) }()

	select {
	case <-exec.done:
	case <-time.After(5 * time.Second):
		t.Fatal("tasks were not consumed")
	}
	cancel()
	require.NoError(t, <-errCh)

	exec.mu.Lock()
	assert.ElementsMatch(t, []string{"a", "b", "c"}, exec.seen)
	exec.mu.Unlock()

	src.mu.Lock()
	defer src.mu.Unlock()
	assert.GreaterOrEqual(t, src.heartbeats, 1)
	assert.Equal(t, []string{pool.ID()}, src.left)
}
