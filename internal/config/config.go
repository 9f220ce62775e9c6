package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the process configuration, read from the environment with an
// optional .env file. CLI flags override individual fields.
type Config struct {
	DBPath           string
	Port             string
	SlackToken       string
	SlackChannel     string
	ScheduleInterval time.Duration
}

// Load reads configuration from .env (if present) and the environment.
func Load() Config {
	// Missing .env is fine; plain environment variables still apply.
	_ = godotenv.Load()

	cfg := Config{
		DBPath:           getenv("BOTFLOW_DB", "botflow.db"),
		Port:             getenv("PORT", "8080"),
		SlackToken:       os.Getenv("SLACK_BOT_TOKEN"),
		SlackChannel:     os.Getenv("SLACK_CHANNEL"),
		ScheduleInterval: 30 * time.Second,
	}
	if raw := os.Getenv("SCHEDULE_INTERVAL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			cfg.ScheduleInterval = d
		}
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
