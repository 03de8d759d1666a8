// Package worker pulls queued tasks off the broker and runs them through the
// dispatcher, announcing itself with periodic heartbeats.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pokerjest/acms/internal/dispatch"
	"github.com/pokerjest/acms/internal/logger"
	"golang.org/x/sync/errgroup"
)

// Source is the consuming side of the queue; *dispatch.RedisQueue fits.
type Source interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*dispatch.Envelope, error)
	Heartbeat(ctx context.Context, workerID string) error
	Leave(ctx context.Context, workerID string) error
}

// Executor runs one envelope; *dispatch.Dispatcher fits.
type Executor interface {
	Execute(ctx context.Context, env dispatch.Envelope) error
}

type Options struct {
	Concurrency       int
	PollTimeout       time.Duration
	HeartbeatInterval time.Duration
}

// Pool 固定数量的消费协程 + 一个心跳协程
type Pool struct {
	id     string
	source Source
	exec   Executor
	log    *logger.Logger
	opts   Options
}

func NewPool(source Source, exec Executor, log *logger.Logger, opts Options) *Pool {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 3
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 5 * time.Second
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 10 * time.Second
	}
	host, _ := os.Hostname()
	id := fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
	return &Pool{
		id:     id,
		source: source,
		exec:   exec,
		log:    log.With("component", "Worker", "worker_id", id),
		opts:   opts,
	}
}

func (p *Pool) ID() string { return p.id }

// Run blocks until ctx is cancelled. The worker leaves the registry on the way
// out so producers stop routing to it.
func (p *Pool) Run(ctx context.Context) error {
	if err := p.source.Heartbeat(ctx, p.id); err != nil {
		return fmt.Errorf("register worker: %w", err)
	}
	p.log.Info("worker started", "concurrency", p.opts.Concurrency)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p.heartbeat(gctx)
		return nil
	})
	for i := 0; i < p.opts.Concurrency; i++ {
		slot := i
		g.Go(func() error {
			p.consume(gctx, slot)
			return nil
		})
	}
	err := g.Wait()

	leaveCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if lerr := p.source.Leave(leaveCtx, p.id); lerr != nil {
		p.log.Warn("leave failed", "error", lerr)
	}
	p.log.Info("worker stopped")
	return err
}

func (p *Pool) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(p.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.source.Heartbeat(ctx, p.id); err != nil && ctx.Err() == nil {
				p.log.Warn("heartbeat failed", "error", err)
			}
		}
	}
}

func (p *Pool) consume(ctx context.Context, slot int) {
	for ctx.Err() == nil {
		env, err := p.source.Dequeue(ctx, p.opts.PollTimeout)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			p.log.Warn("dequeue failed", "slot", slot, "error", err)
			// 防止 broker 不可用时空转
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if env == nil {
			continue
		}
		p.handle(ctx, slot, *env)
	}
}

func (p *Pool) handle(ctx context.Context, slot int, env dispatch.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("task panicked", "slot", slot, "task_id", env.ID, "panic", r)
		}
	}()
	start := time.Now()
	if err := p.exec.Execute(ctx, env); err != nil {
		p.log.Error("execute failed", "slot", slot, "task_id", env.ID, "kind", env.Kind, "error", err)
		return
	}
	p.log.Debug("task finished", "slot", slot, "task_id", env.ID, "kind", env.Kind, "took", time.Since(start))
}
