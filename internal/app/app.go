// Package app wires configuration, storage and model clients into the
// running services. Construction order matters: schema first, then the
// pool, then the model client, then the services on top.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koopa0/shiksha/db"
	"github.com/koopa0/shiksha/internal/answer"
	"github.com/koopa0/shiksha/internal/config"
	"github.com/koopa0/shiksha/internal/gemini"
	"github.com/koopa0/shiksha/internal/ingest"
	"github.com/koopa0/shiksha/internal/log"
	"github.com/koopa0/shiksha/internal/store"
)

// App holds every initialized component for the lifetime of one command.
type App struct {
	Config *config.Config
	Logger log.Logger
	Store  *store.Store
	Ingest *ingest.Service
	Answer *answer.Service

	pool *pgxpool.Pool
}

// New loads configuration, migrates the schema, and wires the pipeline.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level, JSON: cfg.LogJSON})

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	ai, err := gemini.New(ctx, cfg, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	st := store.New(pool, logger)

	return &App{
		Config: cfg,
		Logger: logger,
		Store:  st,
		Ingest: ingest.NewService(ai, ai, ai, st, logger),
		Answer: answer.NewService(ai, ai, st, logger),
		pool:   pool,
	}, nil
}

// Close releases the connection pool.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}
