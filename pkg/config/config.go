// Package config loads engine settings from the environment, with .env
// support for local runs.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds everything the engine binary needs to start.
type Config struct {
	// GoogleAPIKey authenticates the Gemini client. Required unless the
	// binary runs with a scripted generator.
	GoogleAPIKey string `env:"GOOGLE_API_KEY"`
	GoogleModel  string `env:"GOOGLE_MODEL" envDefault:"gemini-3-pro"`

	DataPath   string `env:"DATA_PATH" envDefault:"data/botengine.json"`
	EventLog   string `env:"EVENT_LOG" envDefault:"logs/events.jsonl"`
	BotCount   int    `env:"BOT_COUNT" envDefault:"5"`
	RandSeed   int64  `env:"RAND_SEED" envDefault:"0"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	UsePlanner bool   `env:"USE_PLANNER" envDefault:"true"`

	TickInterval    time.Duration `env:"TICK_INTERVAL" envDefault:"1m"`
	ProcessInterval time.Duration `env:"PROCESS_INTERVAL" envDefault:"30s"`
	BatchLimit      int           `env:"BATCH_LIMIT" envDefault:"25"`

	// GenerationRPM throttles Gemini calls. Zero disables the limiter.
	GenerationRPM float64 `env:"GENERATION_RPM" envDefault:"30"`

	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9091"`
}

// Load reads .env if present, then parses the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
