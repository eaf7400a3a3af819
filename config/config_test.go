package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FETCH_LIMIT", "")
	t.Setenv("FETCH_TIMEOUT", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("MQTT_BROKER", "")

	cfg := Load()

	assert.Equal(t, 500, cfg.FetchLimit)
	assert.Equal(t, 5*time.Second, cfg.FetchTimeout)
	assert.Equal(t, "classroom_status", cfg.ObservationTable)
	assert.False(t, cfg.CacheEnabled())
	assert.False(t, cfg.MQTTEnabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("FETCH_LIMIT", "100")
	t.Setenv("FETCH_TIMEOUT", "750ms")
	t.Setenv("CACHE_TTL", "3")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("MQTT_BROKER", "tcp://localhost:1883")

	cfg := Load()

	assert.Equal(t, 100, cfg.FetchLimit)
	assert.Equal(t, 750*time.Millisecond, cfg.FetchTimeout)
	assert.Equal(t, 3*time.Second, cfg.CacheTTL)
	assert.True(t, cfg.CacheEnabled())
	assert.True(t, cfg.MQTTEnabled())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("FETCH_LIMIT", "lots")
	t.Setenv("FETCH_TIMEOUT", "soon")

	cfg := Load()

	assert.Equal(t, 500, cfg.FetchLimit)
	assert.Equal(t, 5*time.Second, cfg.FetchTimeout)
}

func TestDSN(t *testing.T) {
	cfg := &Config{
		PostgresHost:     "db",
		PostgresPort:     "5433",
		PostgresUser:     "u",
		PostgresPassword: "p",
		PostgresDB:       "rooms",
		PostgresSSLMode:  "require",
	}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=rooms sslmode=require", cfg.DSN())
}
