package config

import (
	"os"
	"strconv"
	"time"
)

// Config is everything the server needs from its environment.
type Config struct {
	Addr          string
	PostgresDSN   string
	Redis         RedisConfig
	JWTSigningKey string
	LogLevel      string

	// AuditAsync moves the audit sink off the request path: events are
	// buffered on a channel and persisted by a background worker.
	AuditAsync       bool
	AuditQueueBuffer int
}

// RedisConfig tunes the shared options store connection. An empty URL means
// redis is not configured and the in-memory options store is used.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds the config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Addr:          envOr("OTAKUDB_ADDR", ":8080"),
		PostgresDSN:   os.Getenv("OTAKUDB_POSTGRES_DSN"),
		JWTSigningKey: envOr("OTAKUDB_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		LogLevel:      envOr("OTAKUDB_LOG_LEVEL", "info"),

		AuditAsync:       os.Getenv("OTAKUDB_AUDIT_ASYNC") == "true",
		AuditQueueBuffer: envInt("OTAKUDB_AUDIT_QUEUE_BUFFER", 256),
		Redis: RedisConfig{
			URL:          os.Getenv("OTAKUDB_REDIS_URL"),
			PoolSize:     envInt("OTAKUDB_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("OTAKUDB_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
