// Command worker consumes queued pipeline tasks from redis. Run as many as
// needed; each announces itself with a heartbeat so producers know a worker
// is alive.
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pokerjest/acms/internal/config"
	"github.com/pokerjest/acms/internal/launcher"
	"github.com/pokerjest/acms/internal/logger"
)

func main() {
	if err := config.LoadConfig("."); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg := config.AppConfig

	appLog, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer appLog.Sync()

	m, err := launcher.NewManager(cfg, appLog)
	if err != nil {
		appLog.Fatal("startup failed", "error", err)
	}
	if err := m.StartWorker(); err != nil {
		appLog.Fatal("worker not started", "error", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("shutting down worker")
	m.StopAll()
}
