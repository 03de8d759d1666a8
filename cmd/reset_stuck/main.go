// Command reset_stuck moves task records and assets left in an active state
// by a crashed process to failed/error so they can be retried.
//
//	reset_stuck -db data/acms.db -older-than 10m
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/pokerjest/acms/internal/config"
	"github.com/pokerjest/acms/internal/db"
	"github.com/pokerjest/acms/internal/logger"
	"github.com/pokerjest/acms/internal/repo"
	"github.com/pokerjest/acms/internal/scheduler"
	"github.com/pokerjest/acms/internal/tasklog"
)

func main() {
	if err := config.LoadConfig("."); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	dbPath := flag.String("db", config.AppConfig.Database.Path, "sqlite database path")
	olderThan := flag.Duration("older-than", time.Minute, "only reset work idle for at least this long")
	flag.Parse()

	if err := db.InitDB(*dbPath); err != nil {
		log.Fatal(err)
	}
	defer db.CloseDB()

	appLog := logger.Nop()
	store := repo.New(db.DB)
	logs := tasklog.NewRecorder(db.DB, appLog, nil)
	reaper := scheduler.NewManager(store, logs, appLog, *olderThan, time.Hour)

	res, err := reaper.Sweep(context.Background())
	if err != nil {
		log.Fatal("Sweep failed:", err)
	}
	fmt.Printf("Reset Complete. Tasks failed: %d, Assets moved to error: %d\n", res.Tasks, res.Assets)
}
