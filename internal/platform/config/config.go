// Package config reads process configuration from the environment so main
// stays lean.
package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr string
	// PostgresDSN selects the durable record store; empty runs in-memory.
	PostgresDSN string
	// DirectoryBaseURL points at the personnel directory; empty disables
	// driver lookups at issuance.
	DirectoryBaseURL string
	ShutdownTimeout  time.Duration
	Redis            RedisConfig
}

// RedisConfig captures the optional payment reference store settings.
type RedisConfig struct {
	// URL in redis:// form; empty runs the in-memory reservation store.
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	return Server{
		Addr:             envOr("CONTRAVA_ADDR", ":8080"),
		PostgresDSN:      os.Getenv("CONTRAVA_POSTGRES_DSN"),
		DirectoryBaseURL: os.Getenv("CONTRAVA_DIRECTORY_URL"),
		ShutdownTimeout:  envDuration("CONTRAVA_SHUTDOWN_TIMEOUT", 10*time.Second),
		Redis: RedisConfig{
			URL:          os.Getenv("CONTRAVA_REDIS_URL"),
			PoolSize:     envInt("CONTRAVA_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("CONTRAVA_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("CONTRAVA_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("CONTRAVA_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("CONTRAVA_REDIS_WRITE_TIMEOUT", 3*time.Second),
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

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
