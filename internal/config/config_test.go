package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(EnvMap{})
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.BackendURL)
	assert.Equal(t, "ws://localhost:8000/ws/transactions", cfg.WSURL)
	assert.Equal(t, ":8090", cfg.HTTPAddr)
	assert.Equal(t, 5000, cfg.StoreCapacity)
	assert.Equal(t, 50, cfg.DisplayLimit)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 10, cfg.PollLimit)
	assert.Equal(t, time.Second, cfg.ReconnectBase)
	assert.Equal(t, 10*time.Second, cfg.ReconnectMax)
	assert.Equal(t, 3, cfg.FallbackThreshold)
	assert.Equal(t, "local", cfg.StatsSource)
	assert.Equal(t, 3*time.Second, cfg.StatsInterval)
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "fraudpulse-transactions", cfg.KafkaTopic)
	assert.Equal(t, "sqlite", cfg.ArchiveDriver)
	assert.Equal(t, "data/fraudpulse.db", cfg.ArchiveDSN)
	assert.Equal(t, 100, cfg.MirrorBatchSize)
	assert.Equal(t, time.Second, cfg.MirrorFlush)
	assert.Equal(t, "logs/fraudpulse.log", cfg.LogFile)
	assert.Equal(t, 3, cfg.LogMaxBackups)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(EnvMap{
		"BACKEND_URL":    "https://fraud.example.com/",
		"POLL_LIMIT":     "50",
		"STATS_SOURCE":   "SERVER",
		"KAFKA_BROKERS":  "k1:9092, k2:9092,",
		"ARCHIVE_DRIVER": "mysql",
		"ARCHIVE_DSN":    "user:pw@tcp(db:3306)/fraud",
		"STORE_CAPACITY": "0",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://fraud.example.com", cfg.BackendURL)
	assert.Equal(t, "wss://fraud.example.com/ws/transactions", cfg.WSURL)
	assert.Equal(t, 50, cfg.PollLimit)
	assert.Equal(t, "server", cfg.StatsSource)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "mysql", cfg.ArchiveDriver)
	assert.Equal(t, 0, cfg.StoreCapacity)
}

func TestLoadExplicitWSURL(t *testing.T) {
	cfg, err := Load(EnvMap{"WS_URL": "ws://push:9000/feed"})
	require.NoError(t, err)
	assert.Equal(t, "ws://push:9000/feed", cfg.WSURL)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]EnvMap{
		"backend scheme":  {"BACKEND_URL": "ftp://backend"},
		"poll limit high": {"POLL_LIMIT": "51"},
		"poll limit zero": {"POLL_LIMIT": "0"},
		"poll interval":   {"POLL_INTERVAL": "soon"},
		"negative":        {"RECONNECT_BASE": "-1s"},
		"max below base":  {"RECONNECT_BASE": "5s", "RECONNECT_MAX": "1s"},
		"stats source":    {"STATS_SOURCE": "both"},
		"archive driver":  {"ARCHIVE_DRIVER": "clickhouse"},
		"mysql dsn":       {"ARCHIVE_DRIVER": "mysql"},
		"threshold":       {"FALLBACK_THRESHOLD": "x"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(env)
			assert.Error(t, err)
		})
	}
}

func TestLoadRequiresSource(t *testing.T) {
	_, err := Load(nil)
	assert.Error(t, err)
}
