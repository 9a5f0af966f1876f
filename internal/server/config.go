// Package server loads runtime configuration from the environment, with an
// optional .env file for development and validation of the result.
package server

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds every tunable of the relay. Values come from the environment;
// all of them have workable defaults so an empty environment boots a
// development server.
type Config struct {
	Port                    string        `envconfig:"SERVER_PORT" default:":8080" validate:"required"`
	AllowedOrigins          []string      `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8080"`
	MaxMessageSize          int64         `envconfig:"MAX_MESSAGE_SIZE" default:"4096" validate:"gt=0"`
	DefaultRoom             string        `envconfig:"DEFAULT_ROOM" default:"general" validate:"required,excludesall= "`
	RateLimitBurst          int           `envconfig:"RATE_LIMIT_BURST" default:"5" validate:"gt=0"`
	RateLimitRefillInterval time.Duration `envconfig:"RATE_LIMIT_REFILL_INTERVAL" default:"1s" validate:"gt=0"`
	ShutdownTimeout         time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s" validate:"gt=0"`
	LogLevel                string        `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
}

// LoadConfig reads a .env file when one is present, overlays the process
// environment, and validates the combined result.
func LoadConfig() (*Config, error) {
	// Missing .env is the normal case outside development.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// DefaultConfig returns the built-in defaults without touching the
// environment. Tests build servers from it.
func DefaultConfig() *Config {
	return &Config{
		Port:                    ":8080",
		AllowedOrigins:          []string{"http://localhost:8080"},
		MaxMessageSize:          4096,
		DefaultRoom:             "general",
		RateLimitBurst:          5,
		RateLimitRefillInterval: time.Second,
		ShutdownTimeout:         10 * time.Second,
		LogLevel:                "info",
	}
}
