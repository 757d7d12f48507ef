package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	// 清除环境变量
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// 验证默认值
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, "postgres", cfg.Database.Password)
	assert.Equal(t, "teddy", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "", cfg.Redis.Password)
	assert.Equal(t, 0, cfg.Redis.DB)

	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, "teddy-monitor", cfg.MQTT.ClientID)

	assert.Equal(t, "", cfg.Notify.WebhookURL)
	assert.Equal(t, 10, cfg.Notify.TimeoutSec)

	assert.Equal(t, "teddy:history:", cfg.Monitor.HistoryKeyPrefix)
	assert.Equal(t, "teddy:prev-bands", cfg.Monitor.PrevBandsKey)
	assert.Equal(t, "teddy:notifications", cfg.Monitor.NotificationsKey)
	assert.Equal(t, "teddy:poll:lock", cfg.Monitor.PollLockKey)
	assert.Equal(t, 1000, cfg.Monitor.HistoryMaxEntries)
	assert.Equal(t, 900, cfg.Monitor.PollIntervalSec)
	assert.Equal(t, 30, cfg.Monitor.DirectoryIntervalSec)
	assert.Equal(t, 5, cfg.Monitor.ReadTimeoutSec)
	assert.Equal(t, ":9102", cfg.Monitor.MetricsAddr)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	// 设置环境变量
	os.Setenv("DB_HOST", "test-host")
	os.Setenv("DB_NAME", "test-db")
	os.Setenv("REDIS_ADDR", "test-redis:6380")
	os.Setenv("MQTT_BROKER", "tcp://test-broker:1883")
	os.Setenv("NOTIFY_WEBHOOK_URL", "https://push.example.com/send")
	os.Setenv("MONITOR_OWNER_ID", "owner-42")
	os.Setenv("HISTORY_MAX_ENTRIES", "500")
	os.Setenv("POLL_INTERVAL", "60")
	os.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// 验证环境变量覆盖
	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, "test-db", cfg.Database.Database)
	assert.Equal(t, "test-redis:6380", cfg.Redis.Addr)
	assert.Equal(t, "tcp://test-broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, "https://push.example.com/send", cfg.Notify.WebhookURL)
	assert.Equal(t, "owner-42", cfg.Monitor.OwnerID)
	assert.Equal(t, 500, cfg.Monitor.HistoryMaxEntries)
	assert.Equal(t, 60, cfg.Monitor.PollIntervalSec)
	assert.Equal(t, "debug", cfg.Log.Level)

	// 清理环境变量
	os.Clearenv()
}

func TestGetEnvInt_Invalid(t *testing.T) {
	os.Setenv("TEST_INT_KEY", "not-a-number")
	assert.Equal(t, 7, getEnvInt("TEST_INT_KEY", 7))
	os.Unsetenv("TEST_INT_KEY")

	os.Setenv("TEST_INT_KEY", "42")
	assert.Equal(t, 42, getEnvInt("TEST_INT_KEY", 7))
	os.Unsetenv("TEST_INT_KEY")
}
