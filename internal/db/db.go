package db

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"github.com/pokerjest/acms/internal/model"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var DB *gorm.DB

// Open 打开 (并迁移) 一个 SQLite 数据库。":memory:" 用于测试
func Open(storagePath string) (*gorm.DB, error) {
	if storagePath != ":memory:" {
		// 确保存储目录存在
		dir := filepath.Dir(storagePath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	conn, err := gorm.Open(sqlite.Open(storagePath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	// SQLite 单写者; 内存库每个连接都是独立的库，只能用一个连接
	sqlDB.SetMaxOpenConns(1)

	// 自动迁移模式
	err = conn.AutoMigrate(
		&model.Course{},
		&model.Episode{},
		&model.TaskLog{},
		&model.DownloadLinkBatch{},
		&model.ProcessingTask{},
		&model.GlobalConfig{},
		&model.User{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return conn, nil
}

// InitDB opens the database and installs it as the package-level DB.
func InitDB(storagePath string) error {
	conn, err := Open(storagePath)
	if err != nil {
		return err
	}
	DB = conn
	return nil
}

func CloseDB() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
