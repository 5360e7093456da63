package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the relay.
type Config struct {
	Port          string
	Env           string
	Host          string
	StatsSchedule string

	// Per-connection inbound rate limit.
	RateLimitBurst    int32
	RateLimitInterval time.Duration
}

// Load reads configuration from the environment, consulting a .env file when
// present. The relay keeps all state in memory, so nothing is required.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:              getEnv("PORT", "8080"),
		Env:               getEnv("APP_ENV", "development"),
		Host:              getEnv("HOST", "localhost"),
		StatsSchedule:     getEnv("STATS_SCHEDULE", "@every 1m"),
		RateLimitBurst:    5,
		RateLimitInterval: 500 * time.Millisecond,
	}
}

// IsDevelopment reports whether the relay runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}
