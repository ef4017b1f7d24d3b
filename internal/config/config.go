package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string // PostgreSQL; empty selects SQLite
	SQLitePath  string
	RedisURL    string // token store; empty selects the in-memory store

	SessionTTL time.Duration // registered account tokens
	GuestTTL   time.Duration // anonymous tokens
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  getEnv("SQLITE_PATH", "sketchsync.db"),
		RedisURL:    os.Getenv("REDIS_URL"),
		SessionTTL:  time.Duration(getHours("SESSION_TTL_HOURS", 72)) * time.Hour,
		GuestTTL:    time.Duration(getHours("GUEST_TTL_HOURS", 24)) * time.Hour,
	}

	// In production, require real backends
	if cfg.Env == "production" {
		if cfg.DatabaseURL == "" {
			panic("DATABASE_URL is required in production")
		}
		if cfg.RedisURL == "" {
			panic("REDIS_URL is required in production")
		}
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

func getHours(key string, defaultHours int) int {
	if value := os.Getenv(key); value != "" {
		if h, err := strconv.Atoi(value); err == nil && h > 0 {
			return h
		}
	}
	return defaultHours
}
