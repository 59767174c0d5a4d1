package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DB_TYPE", "")
	t.Setenv("CACHE_BACKEND", "")
	t.Setenv("CACHE_TTL", "")
	t.Setenv("KAFKA_ENABLE", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg := LoadConfig()
	assert.Same(t, AppConfig, cfg)
	assert.Equal(t, "postgres", cfg.DBType)
	assert.Equal(t, "memory", cfg.CacheBackend)
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL)
	assert.False(t, cfg.KafkaEnable)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Setenv("DB_TYPE", "SQLite")
	t.Setenv("DB_MAX_OPEN_CONNS", "25")
	t.Setenv("CACHE_TTL", "90")
	t.Setenv("REQUEST_TIMEOUT", "2s")
	t.Setenv("KAFKA_ENABLE", "true")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, ,kafka-2:9092")
	t.Setenv("CONTENT_SERVICE_URL", "http://content.local/api")

	cfg := LoadConfig()
	assert.Equal(t, "sqlite", cfg.DBType)
	assert.Equal(t, 25, cfg.DBMaxOpenConns)
	assert.Equal(t, 90*time.Second, cfg.CacheTTL)
	assert.Equal(t, 2*time.Second, cfg.RequestTimeout)
	assert.True(t, cfg.KafkaEnable)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "http://content.local/api", cfg.ContentServiceURL)
}

func TestLoadConfig_BadValuesFallBack(t *testing.T) {
	t.Setenv("DB_MAX_OPEN_CONNS", "many")
	t.Setenv("KAFKA_ENABLE", "sometimes")
	t.Setenv("EXTERNAL_HTTP_TIMEOUT", "soon")

	cfg := LoadConfig()
	assert.Equal(t, 10, cfg.DBMaxOpenConns)
	assert.False(t, cfg.KafkaEnable)
	assert.Equal(t, 5*time.Second, cfg.ExternalHTTPTimeout)
}

func TestLoadConfig_NonPositiveTTLDisablesCache(t *testing.T) {
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("CACHE_TTL", "0s")

	cfg := LoadConfig()
	assert.Equal(t, "none", cfg.CacheBackend)
}
