package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Download  DownloadConfig  `mapstructure:"download"`
	AI        AIConfig        `mapstructure:"ai"`
	Uploader  UploaderConfig  `mapstructure:"uploader"`
	Scraper   ScraperConfig   `mapstructure:"scraper"`
	Processor ProcessorConfig `mapstructure:"processor"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Auth      AuthConfig      `mapstructure:"auth"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug or release
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Mode  string `mapstructure:"mode"` // development or production
}

// RedisConfig 分布式队列。Addr 为空时直接走本地执行
type RedisConfig struct {
	Addr          string        `mapstructure:"addr"`
	Password      string        `mapstructure:"password"`
	DB            int           `mapstructure:"db"`
	Queue         string        `mapstructure:"queue"`
	EventsChannel string        `mapstructure:"events_channel"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`
	WorkerTTL     time.Duration `mapstructure:"worker_ttl"`
}

type StorageConfig struct {
	Path string `mapstructure:"path"`
}

type DownloadConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	RetryCount int           `mapstructure:"retry_count"`
	UserAgent  string        `mapstructure:"user_agent"`
}

type AIConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
}

// UploaderConfig 目标站点。Mode 为 http (表单上传) 或 s3 (对象存储)
type UploaderConfig struct {
	Mode     string   `mapstructure:"mode"`
	Endpoint string   `mapstructure:"endpoint"`
	Token    string   `mapstructure:"token"`
	S3       S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

type ScraperConfig struct {
	UserAgent string `mapstructure:"user_agent"`
}

type ProcessorConfig struct {
	FFprobe string `mapstructure:"ffprobe"`
}

type WorkerConfig struct {
	Embedded    bool          `mapstructure:"embedded"`
	Concurrency int           `mapstructure:"concurrency"`
	StaleAfter  time.Duration `mapstructure:"stale_after"`
}

type PipelineConfig struct {
	AwaitInterval time.Duration `mapstructure:"await_interval"`
}

// AuthConfig 管理后台登录。关闭时 API 不校验会话
type AuthConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	SessionSecret string `mapstructure:"session_secret"`
	AdminUser     string `mapstructure:"admin_user"`
	AdminPassword string `mapstructure:"admin_password"`
}

var AppConfig *Config

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0 Safari/537.36"

func LoadConfig(configPath string) error {
	v := viper.New()

	// 默认值
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.path", "data/acms.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.mode", "development")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.queue", "acms:tasks")
	v.SetDefault("redis.events_channel", "acms:events")
	v.SetDefault("redis.probe_timeout", 800*time.Millisecond)
	v.SetDefault("redis.worker_ttl", 30*time.Second)
	v.SetDefault("storage.path", "storage")
	v.SetDefault("download.timeout", 30*time.Second)
	v.SetDefault("download.retry_count", 3)
	v.SetDefault("download.user_agent", defaultUserAgent)
	v.SetDefault("ai.endpoint", "https://api.openai.com/v1")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("uploader.mode", "http")
	v.SetDefault("uploader.endpoint", "")
	v.SetDefault("uploader.token", "")
	v.SetDefault("uploader.s3.endpoint", "")
	v.SetDefault("uploader.s3.region", "auto")
	v.SetDefault("uploader.s3.bucket", "")
	v.SetDefault("uploader.s3.access_key", "")
	v.SetDefault("uploader.s3.secret_key", "")
	v.SetDefault("uploader.s3.prefix", "courses")
	v.SetDefault("scraper.user_agent", defaultUserAgent)
	v.SetDefault("processor.ffprobe", "ffprobe")
	v.SetDefault("worker.embedded", false)
	v.SetDefault("worker.concurrency", 3)
	v.SetDefault("worker.stale_after", 2*time.Hour)
	v.SetDefault("pipeline.await_interval", 2*time.Second)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.session_secret", "acms-secret")
	v.SetDefault("auth.admin_user", "admin")
	v.SetDefault("auth.admin_password", "admin")

	// 配置文件路径
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}

	// 环境变量替换 (使用 ACMS_ 前缀)
	// 比如 ACMS_REDIS_ADDR=localhost:6379
	v.SetEnvPrefix("ACMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay, use defaults
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	AppConfig = cfg

	return nil
}
