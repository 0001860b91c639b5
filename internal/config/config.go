// Package config loads the application configuration from the environment,
// with an optional .env file for local development.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the full application configuration.
type Config struct {
	// Server
	ServerAddr string `env:"SERVER_ADDR" envDefault:"0.0.0.0:8080"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

	// Vector store
	QdrantHost string `env:"QDRANT_HOST" envDefault:"localhost"`
	QdrantPort int    `env:"QDRANT_PORT" envDefault:"6334"`

	// OpenAI
	OpenAIAPIKey  string `env:"OPENAI_API_KEY,notEmpty"`
	PrimaryModel  string `env:"PRIMARY_MODEL" envDefault:"gpt-4o"`
	FallbackModel string `env:"FALLBACK_MODEL" envDefault:"gpt-4o-mini"`

	// Uploads
	UploadDir       string        `env:"UPLOAD_DIR" envDefault:"/tmp/lexichat-uploads"`
	MaxFileSize     int64         `env:"MAX_FILE_SIZE" envDefault:"52428800"` // 50 MiB
	UploadRetention time.Duration `env:"UPLOAD_RETENTION" envDefault:"30m"`

	// Retrieval budget
	MaxContextTokens  int `env:"MAX_CONTEXT_TOKENS" envDefault:"3000"`
	MaxSegmentCount   int `env:"MAX_SEGMENT_COUNT" envDefault:"8"`
	MemoryThresholdMB int `env:"MEMORY_THRESHOLD_MB" envDefault:"400"`
}

// Load reads .env if present and parses the environment. Missing .env is
// fine; in containerized deployments the variables are set externally.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.QdrantPort < 1 || c.QdrantPort > 65535 {
		return fmt.Errorf("QDRANT_PORT must be a valid port, got %d", c.QdrantPort)
	}
	if c.MaxFileSize < 1 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive, got %d", c.MaxFileSize)
	}
	if c.MaxContextTokens < 1 || c.MaxSegmentCount < 1 {
		return fmt.Errorf("retrieval budget must be positive, got tokens=%d segments=%d",
			c.MaxContextTokens, c.MaxSegmentCount)
	}
	return nil
}

// SlogLevel maps the configured level name to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
