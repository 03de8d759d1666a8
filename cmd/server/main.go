package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pokerjest/acms/internal/api"
	"github.com/pokerjest/acms/internal/config"
	"github.com/pokerjest/acms/internal/launcher"
	"github.com/pokerjest/acms/internal/logger"
	"github.com/pokerjest/acms/internal/progress"
	"github.com/pokerjest/acms/internal/service"
)

func main() {
	// 1. Load Config
	if err := config.LoadConfig("."); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg := config.AppConfig

	appLog, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer appLog.Sync()

	// 2. Setup Gin Mode
	gin.SetMode(cfg.Server.Mode)

	// 转换为绝对路径日志一下
	absPath, _ := filepath.Abs(cfg.Database.Path)
	appLog.Info("initializing database", "path", absPath)

	m, err := launcher.NewManager(cfg, appLog)
	if err != nil {
		appLog.Fatal("startup failed", "error", err)
	}

	auth := service.NewAuthService(m.DB, appLog)
	if cfg.Auth.Enabled {
		if err := auth.EnsureAdmin(m.Ctx, cfg.Auth.AdminUser, cfg.Auth.AdminPassword); err != nil {
			appLog.Fatal("create admin user failed", "error", err)
		}
	}

	srv := api.NewServer(api.Deps{
		Store:         m.Store,
		Courses:       service.NewCourseService(m.Store, m.Layout, m.Logs, appLog),
		Links:         service.NewLinkService(m.Store, m.Logs, m.Bus, appLog),
		Auth:          auth,
		Orchestrator:  m.Orchestrator,
		Progress:      progress.NewService(m.Store, m.Dispatcher),
		Logs:          m.Logs,
		Tasks:         m.Dispatcher,
		Bus:           m.Bus,
		Log:           appLog,
		Runs:          m,
		AuthEnabled:   cfg.Auth.Enabled,
		SessionSecret: cfg.Auth.SessionSecret,
	})

	// Start Scheduler
	m.StartScheduler()
	if cfg.Worker.Embedded {
		if err := m.StartWorker(); err != nil {
			appLog.Warn("embedded worker not started", "error", err)
		}
	}

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.NewRouter(srv),
	}
	go func() {
		appLog.Info("server starting", "port", cfg.Server.Port)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		appLog.Warn("http shutdown", "error", err)
	}
	m.StopAll()
}
