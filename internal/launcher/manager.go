// Package launcher wires the components from configuration and owns the
// lifetime of the background services (redis bridge, scheduler, worker pool).
package launcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pokerjest/acms/internal/ai"
	"github.com/pokerjest/acms/internal/config"
	"github.com/pokerjest/acms/internal/db"
	"github.com/pokerjest/acms/internal/dispatch"
	"github.com/pokerjest/acms/internal/downloader"
	"github.com/pokerjest/acms/internal/event"
	"github.com/pokerjest/acms/internal/logger"
	"github.com/pokerjest/acms/internal/pipeline"
	"github.com/pokerjest/acms/internal/processor"
	"github.com/pokerjest/acms/internal/renamer"
	"github.com/pokerjest/acms/internal/repo"
	"github.com/pokerjest/acms/internal/scheduler"
	"github.com/pokerjest/acms/internal/scraper"
	"github.com/pokerjest/acms/internal/tasklog"
	"github.com/pokerjest/acms/internal/uploader"
	"github.com/pokerjest/acms/internal/worker"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

var ErrNoQueue = errors.New("redis is not configured or unreachable")

type Manager struct {
	Cfg *config.Config
	Log *logger.Logger

	DB           *gorm.DB
	Redis        *goredis.Client
	Queue        *dispatch.RedisQueue
	Bus          *event.InMemoryBus
	Store        *repo.Store
	Layout       renamer.Layout
	Logs         *tasklog.Recorder
	Dispatcher   *dispatch.Dispatcher
	Orchestrator *pipeline.Orchestrator

	Ctx    context.Context
	Cancel context.CancelFunc
	wg     sync.WaitGroup
	sched  *scheduler.Manager
}

// NewManager opens the database, connects redis when configured and builds
// the dispatcher with every task handler registered. A redis outage is not
// fatal: tasks then run in-process.
func NewManager(cfg *config.Config, log *logger.Logger) (*Manager, error) {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{Cfg: cfg, Log: log, Ctx: ctx, Cancel: cancel}

	if err := db.InitDB(cfg.Database.Path); err != nil {
		cancel()
		return nil, err
	}
	m.DB = db.DB
	m.Store = repo.New(m.DB)
	m.Layout = renamer.Layout{Root: cfg.Storage.Path}
	m.Bus = event.NewInMemoryBus()

	if cfg.Redis.Addr != "" {
		if err := m.connectRedis(); err != nil {
			log.Warn("redis unavailable, running tasks locally", "addr", cfg.Redis.Addr, "error", err)
		}
	}
	m.Logs = tasklog.NewRecorder(m.DB, log, m.Bus)

	up, err := uploader.New(ctx, cfg.Uploader)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("uploader: %w", err)
	}
	aiClient := ai.NewClient(cfg.AI)
	handlers := pipeline.NewHandlers(pipeline.Deps{
		Store:      m.Store,
		Layout:     m.Layout,
		Downloader: downloader.NewHTTPDownloader(cfg.Download, log),
		Processor:  processor.NewLocal(cfg.Processor.FFprobe),
		Translator: aiClient,
		Generator:  aiClient,
		Uploader:   up,
		Scraper:    scraper.NewHTMLScraper(cfg.Scraper),
		Logs:       m.Logs,
		Bus:        m.Bus,
		Log:        log,
	})
	registry := dispatch.NewRegistry()
	if err := handlers.Register(registry); err != nil {
		cancel()
		return nil, err
	}

	var queue dispatch.Queue
	if m.Queue != nil {
		queue = m.Queue
	}
	m.Dispatcher = dispatch.NewDispatcher(m.DB, log, registry, queue, m.Logs, cfg.Pipeline.AwaitInterval)
	m.Dispatcher.SetHeartbeat(cfg.Worker.StaleAfter / 4)
	m.Orchestrator = pipeline.NewOrchestrator(m.Store, m.Dispatcher, m.Logs, m.Bus, log)
	return m, nil
}

func (m *Manager) connectRedis() error {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     m.Cfg.Redis.Addr,
		Password: m.Cfg.Redis.Password,
		DB:       m.Cfg.Redis.DB,
	})
	pctx, cancel := context.WithTimeout(m.Ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return err
	}
	bridge := event.NewRedisBridge(m.Log, rdb, m.Cfg.Redis.EventsChannel, m.Bus)
	if err := bridge.Start(m.Ctx); err != nil {
		_ = rdb.Close()
		return err
	}
	m.Redis = rdb
	m.Queue = dispatch.NewRedisQueue(rdb, m.Cfg.Redis)
	m.Log.Info("redis connected", "addr", m.Cfg.Redis.Addr, "queue", m.Cfg.Redis.Queue)
	return nil
}

// StartScheduler starts the stale-work reaper.
func (m *Manager) StartScheduler() {
	m.sched = scheduler.NewManager(m.Store, m.Logs, m.Log, m.Cfg.Worker.StaleAfter, 0)
	m.sched.Start()
}

// StartWorker runs a consumer pool until StopAll.
// Go runs fn in the background with the manager context; StopAll cancels it
// and waits for fn to return before closing the database.
func (m *Manager) Go(fn func(ctx context.Context)) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn(m.Ctx)
	}()
}

func (m *Manager) StartWorker() error {
	if m.Queue == nil {
		return ErrNoQueue
	}
	pool := worker.NewPool(m.Queue, m.Dispatcher, m.Log, worker.Options{
		Concurrency:       m.Cfg.Worker.Concurrency,
		HeartbeatInterval: m.Cfg.Redis.WorkerTTL / 3,
	})
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := pool.Run(m.Ctx); err != nil {
			m.Log.Error("worker pool exited", "error", err)
		}
	}()
	return nil
}

// Wait blocks until every started background service returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) StopAll() {
	if m.sched != nil {
		m.sched.Stop()
	}
	m.Cancel()
	m.wg.Wait()
	if m.Redis != nil {
		_ = m.Redis.Close()
	}
	if err := db.CloseDB(); err != nil {
		m.Log.Warn("close database failed", "error", err)
	}
}
