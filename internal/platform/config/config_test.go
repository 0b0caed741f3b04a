package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("FLOCK_STORE", "")
	t.Setenv("FLOCK_ADDR", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, StoreMemory, cfg.StoreBackend)
	assert.Equal(t, time.Hour, cfg.AutomationInterval)
	assert.Equal(t, 10, cfg.Redis.PoolSize)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("FLOCK_STORE", "Redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("FLOCK_AUTOMATION_INTERVAL", "15m")
	t.Setenv("FLOCK_ALLOWED_ORIGINS", "https://church.example")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, StoreRedis, cfg.StoreBackend)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 15*time.Minute, cfg.AutomationInterval)
	assert.Equal(t, []string{"https://church.example"}, cfg.AllowedOrigins)
}

func TestFromEnvRejects(t *testing.T) {
	cases := map[string]map[string]string{
		"redis without url":    {"FLOCK_STORE": "redis", "REDIS_URL": ""},
		"postgres without dsn": {"FLOCK_STORE": "postgres", "DATABASE_URL": ""},
		"s3 without bucket":    {"FLOCK_STORE": "s3", "S3_BUCKET": ""},
		"unknown backend":      {"FLOCK_STORE": "etcd"},
		"bad interval":         {"FLOCK_STORE": "memory", "FLOCK_AUTOMATION_INTERVAL": "hourly"},
		"bad pool size":        {"FLOCK_STORE": "memory", "REDIS_POOL_SIZE": "many"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range vars {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}
