package storage

import (
	"fmt"
	"log/slog"

	"github.com/bossmod/tracker/internal/config"
	"github.com/bossmod/tracker/internal/storage/influx"
	"github.com/bossmod/tracker/internal/storage/memory"
	"github.com/bossmod/tracker/internal/storage/postgres"
	sqlitestorage "github.com/bossmod/tracker/internal/storage/sqlite"
	"github.com/bossmod/tracker/internal/storage/websocket"
	"github.com/rs/zerolog"
)

// NewBackend creates a storage backend based on configuration.
// The returned backend is not initialized yet.
func NewBackend(cfg config.StorageConfig, logger *slog.Logger, dbLog zerolog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Type {
	case "memory":
		return memory.New(cfg.Memory), nil
	case "sqlite":
		b, err := sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: cfg.SQLite.DumpInterval,
			DumpPath:     cfg.SQLite.Path,
		}, logger, dbLog)
		if err != nil {
			return nil, fmt.Errorf("sqlite backend: %w", err)
		}
		return b, nil
	case "postgres":
		b, err := postgres.New(cfg.DB, cfg.SQLite.Path, logger, dbLog)
		if err != nil {
			return nil, fmt.Errorf("postgres backend: %w", err)
		}
		return b, nil
	case "influx":
		return influx.New(cfg.Influx, dbLog), nil
	case "websocket":
		return websocket.New(websocket.Config{
			URL:    cfg.Websocket.URL,
			Secret: cfg.Websocket.Secret,
			Logger: logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
