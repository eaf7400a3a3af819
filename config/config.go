package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	ObservationTable string

	FetchLimit      int
	FetchTimeout    time.Duration
	StoreMaxRetries int

	HTTPAddr           string
	CORSAllowedOrigins []string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	MQTTBroker   string
	MQTTClientID string
	MQTTTopic    string
	MQTTUsername string
	MQTTPassword string

	LogLevel  string
	LogFormat string

	ChromeBin      string
	SnapshotDir    string
	MaxConcurrency int
	RateLimitMs    int
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "clasutil"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "clasutil"),
		PostgresDB:       getEnv("POSTGRES_DB", "clasutil"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		ObservationTable: getEnv("OBSERVATION_TABLE", "classroom_status"),

		FetchLimit:      getEnvInt("FETCH_LIMIT", 500),
		FetchTimeout:    getEnvDuration("FETCH_TIMEOUT", 5*time.Second),
		StoreMaxRetries: getEnvInt("STORE_MAX_RETRIES", 3),

		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		CacheTTL:      getEnvDuration("CACHE_TTL", 2*time.Second),

		MQTTBroker:   getEnv("MQTT_BROKER", ""),
		MQTTClientID: getEnv("MQTT_CLIENT_ID", "clasutil-ingest"),
		MQTTTopic:    getEnv("MQTT_TOPIC", "clasutil/rooms/+/status"),
		MQTTUsername: getEnv("MQTT_USERNAME", ""),
		MQTTPassword: getEnv("MQTT_PASSWORD", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		ChromeBin:      getEnv("CHROME_BIN", ""),
		SnapshotDir:    getEnv("SNAPSHOT_DIR", "./output/snapshots"),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 2),
		RateLimitMs:    getEnvInt("RATE_LIMIT_MS", 500),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// CacheEnabled reports whether the Redis batch cache should be used.
func (c *Config) CacheEnabled() bool {
	return c.RedisAddr != "" && c.CacheTTL > 0
}

// MQTTEnabled reports whether MQTT ingestion should be started.
func (c *Config) MQTTEnabled() bool {
	return c.MQTTBroker != ""
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("750ms", "5s") or plain seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if n, err := strconv.Atoi(val); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
