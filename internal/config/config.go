package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the relay process.
type Config struct {
	Port     string
	Env      string
	RedisURL string

	// Session is the room identifier all connections on this deployment
	// share; it keys the fanout channel and the offline queue namespace.
	Session string

	// HeartbeatInterval is the liveness probe period. A connection that
	// misses a full cycle is evicted on the next tick.
	HeartbeatInterval time.Duration

	// SentimentURL is the base URL of the sentiment-analysis collaborator.
	// Empty disables the /api/analyze endpoint.
	SentimentURL string

	// HistorySize bounds the in-memory log of recent messages handed to
	// the sentiment collaborator.
	HistorySize int

	// ConnectLimit is the per-IP websocket connect budget per minute.
	// Zero disables limiting.
	ConnectLimit int
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		Env:               getEnv("ENV", "development"),
		RedisURL:          os.Getenv("REDIS_URL"),
		Session:           getEnv("SESSION", "lobby"),
		HeartbeatInterval: getDuration("HEARTBEAT_INTERVAL", 30*time.Second),
		SentimentURL:      os.Getenv("SENTIMENT_URL"),
		HistorySize:       getInt("HISTORY_SIZE", 100),
		ConnectLimit:      getInt("CONNECT_LIMIT", 60),
	}

	// In production, require the fanout backend
	if cfg.Env == "production" && cfg.RedisURL == "" {
		panic("REDIS_URL is required in production")
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
