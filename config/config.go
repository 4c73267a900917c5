/*
Package config loads the server configuration from the environment.

SOURCES (later wins):
  1. Defaults from struct tags
  2. An optional .env file (-env flag, or ./.env when present)
  3. Process environment

VARIABLES:
  APP_ADDR               Listen address (default :8080)
  DB_PATH                SQLite path, ":memory:" for a throwaway database
  LOG_LEVEL              debug | info | warn | error
  LOG_FORMAT             json | console
  CORS_ALLOWED_ORIGINS   Comma separated origins
  RECEIVING_RATE_LIMIT   Receiving requests per minute per client IP
  APP_READ_TIMEOUT, APP_WRITE_TIMEOUT, APP_IDLE_TIMEOUT, APP_SHUTDOWN_TIMEOUT
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the server.
type Config struct {
	Addr            string        `envconfig:"APP_ADDR" default:":8080"`
	ReadTimeout     time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `envconfig:"APP_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"APP_SHUTDOWN_TIMEOUT" default:"30s"`

	DBPath string `envconfig:"DB_PATH" default:"kitchen.db"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`

	// ReceivingRateLimit caps receiving and unlock calls per client IP per minute.
	ReceivingRateLimit int `envconfig:"RECEIVING_RATE_LIMIT" default:"30"`
}

// Load reads environment variables, optionally from envFile first, and
// materializes a Config.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
		}
	} else {
		// A missing ./.env is fine.
		_ = godotenv.Load()
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the server cannot start with.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return errors.New("DB_PATH must not be empty")
	}
	if c.ReceivingRateLimit <= 0 {
		return fmt.Errorf("RECEIVING_RATE_LIMIT must be positive, got %d", c.ReceivingRateLimit)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat)
	}
	return nil
}
