// Package config loads the engine configuration from the environment.
package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all runtime settings. DATABASE_URL left empty selects the
// in-memory store (development only).
type Config struct {
	Port        string        `env:"PORT" envDefault:"8080"`
	DatabaseURL string        `env:"DATABASE_URL"`
	RedisURL    string        `env:"REDIS_URL"`
	CacheTTL    time.Duration `env:"CACHE_TTL" envDefault:"30s"`
	CORSOrigin  string        `env:"CORS_ORIGIN" envDefault:"*"`
}

// Load parses the configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	return cfg, env.Parse(&cfg)
}
