package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kiranshivaraju/matchintel/internal/config"
)

// MigrationsDir is where the server looks for Postgres migrations, relative to its working directory.
const MigrationsDir = "migrations"

// Connect opens and pings a pgx pool sized from cfg.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	poolCfg.MinConns = int32(cfg.MaxIdleConns)
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// Open builds the job store selected by STORE_BACKEND. Called once at server startup.
func Open(ctx context.Context, storeCfg config.StoreConfig, dbCfg config.DatabaseConfig, opts ...Option) (Store, error) {
	switch storeCfg.Backend {
	case "postgres":
		if err := RunMigrations(dbCfg.URL, MigrationsDir); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		pool, err := Connect(ctx, dbCfg)
		if err != nil {
			return nil, err
		}
		return NewPostgresStore(pool, opts...), nil
	case "sqlite":
		return OpenSQLite(ctx, storeCfg.SQLitePath, opts...)
	case "memory":
		return NewMemoryStore(opts...), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q: must be one of postgres, sqlite, memory", storeCfg.Backend)
	}
}
