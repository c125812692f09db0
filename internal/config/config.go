// Package config implements A1: process configuration via struct tags and
// environment variables, with optional local .env loading.
//
// Grounded in the teacher's internal/config/config.go (caarlos0/env/v11
// struct tags, fx.Module("config", fx.Provide(NewConfig))) and
// cmd/server/main.go's godotenv.Load/.Overload calls.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config is the process-wide configuration surface (SPEC_FULL.md §4.11).
type Config struct {
	EventBusHistoryCapacity int           `env:"ENTITYCORE_RING_BUFFER_CAPACITY" envDefault:"10000"`
	PendingParentTimeout    time.Duration `env:"ENTITYCORE_PENDING_PARENT_TIMEOUT" envDefault:"30s"`
	MaintenanceSweepCron    string        `env:"ENTITYCORE_MAINTENANCE_CRON" envDefault:"@every 1m"`

	Database DatabaseConfig
}

// DatabaseConfig configures the optional A5 Postgres persistence backend.
// Unset (Host == "") means "memory-only store", matching spec.md §6's
// "otherwise the store is memory-only."
type DatabaseConfig struct {
	Host     string `env:"ENTITYCORE_DB_HOST"`
	Port     int    `env:"ENTITYCORE_DB_PORT" envDefault:"5432"`
	User     string `env:"ENTITYCORE_DB_USER" envDefault:"entitycore"`
	Password string `env:"ENTITYCORE_DB_PASSWORD"`
	Name     string `env:"ENTITYCORE_DB_NAME" envDefault:"entitycore"`
	SSLMode  string `env:"ENTITYCORE_DB_SSLMODE" envDefault:"disable"`
}

// DSN formats the Postgres connection URL that pgxpool.ParseConfig accepts.
// Returns "" when no host is configured.
func (d DatabaseConfig) DSN() string {
	if d.Host == "" {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// Load loads .env/.env.local (if present, ignored if absent) then parses
// the process environment into a Config.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Module wires Config into the fx graph (SPEC_FULL.md §4.18).
var Module = fx.Module("config", fx.Provide(Load))
