package config

import (
	"os"
	"strconv"
)

// DatabaseConfig PostgreSQL 连接配置（babies 目录）
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// RedisConfig Redis 连接配置（历史/去重状态/通知日志）
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT 连接配置（传感器实时数据）
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// Config 体温监护服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	// 通知投递配置
	Notify struct {
		WebhookURL string // 推送网关地址，为空则只写通知日志
		TimeoutSec int    // 请求超时（秒）
	}

	// 监护服务特定配置
	Monitor struct {
		OwnerID string // 只监护指定监护人的对象，为空表示全部

		// Redis 键配置
		HistoryKeyPrefix string // 体温历史键前缀，如 "teddy:history:"
		PrevBandsKey     string // 分级去重状态键
		NotificationsKey string // 通知日志键
		PollLockKey      string // 后台轮询互斥锁键

		HistoryMaxEntries int // 每对象历史记录上限，默认 1000

		// 轮询配置
		PollIntervalSec      int // 后台轮询间隔（秒），默认 900（平台只保证下限）
		DirectoryIntervalSec int // 目录快照刷新间隔（秒），默认 30
		ReadTimeoutSec       int // 单设备读取超时（秒），默认 5

		MetricsAddr string // Prometheus /metrics 监听地址
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 从环境变量加载（默认值）
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "teddy")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "teddy-monitor")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")

	cfg.Notify.WebhookURL = getEnv("NOTIFY_WEBHOOK_URL", "")
	cfg.Notify.TimeoutSec = getEnvInt("NOTIFY_TIMEOUT", 10)

	cfg.Monitor.OwnerID = getEnv("MONITOR_OWNER_ID", "")
	cfg.Monitor.HistoryKeyPrefix = getEnv("CACHE_HISTORY_PREFIX", "teddy:history:")
	cfg.Monitor.PrevBandsKey = getEnv("CACHE_PREV_BANDS_KEY", "teddy:prev-bands")
	cfg.Monitor.NotificationsKey = getEnv("CACHE_NOTIFICATIONS_KEY", "teddy:notifications")
	cfg.Monitor.PollLockKey = getEnv("CACHE_POLL_LOCK_KEY", "teddy:poll:lock")
	cfg.Monitor.HistoryMaxEntries = getEnvInt("HISTORY_MAX_ENTRIES", 1000)
	cfg.Monitor.PollIntervalSec = getEnvInt("POLL_INTERVAL", 900)
	cfg.Monitor.DirectoryIntervalSec = getEnvInt("DIRECTORY_INTERVAL", 30)
	cfg.Monitor.ReadTimeoutSec = getEnvInt("READ_TIMEOUT", 5)
	cfg.Monitor.MetricsAddr = getEnv("METRICS_ADDR", ":9102")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
