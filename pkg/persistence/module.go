package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"go.uber.org/fx"

	"github.com/furlat/Abstractions-sub003/internal/config"
	"github.com/furlat/Abstractions-sub003/pkg/logger"
)

// Module wires the optional Postgres persistence backend into the fx
// graph (SPEC_FULL.md §4.18), grounded in the teacher's
// internal/database.Module. It is only meant to be included by a
// composition root that has a non-empty config.DatabaseConfig.Host; the
// in-memory entitystore.Store works standalone without it.
var Module = fx.Module("persistence",
	fx.Provide(NewPgxPool, NewBunDB, NewRepository),
)

// NewPgxPool creates a pgx connection pool and registers a lifecycle hook
// to close it on shutdown.
func NewPgxPool(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) (*pgxpool.Pool, error) {
	log = log.With(logger.Scope("persistence"))

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info("entity graph database pool created",
		slog.String("host", cfg.Database.Host),
		slog.Int("port", cfg.Database.Port),
		slog.String("database", cfg.Database.Name),
	)

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})
	return pool, nil
}

// NewBunDB wraps pool in a bun.DB using the Postgres dialect.
func NewBunDB(lc fx.Lifecycle, pool *pgxpool.Pool, log *slog.Logger) *bun.DB {
	db := bun.NewDB(stdlib.OpenDBFromPool(pool), pgdialect.New())
	log.With(logger.Scope("persistence")).Info("bun database initialized")

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return db.Close()
		},
	})
	return db
}
