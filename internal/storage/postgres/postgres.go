// Package postgres implements the storage.Backend interface on PostgreSQL
// (with PostGIS for cast locations). When the server cannot be reached the
// backend falls back to an in-memory SQLite database dumped to a local file.
package postgres

import (
	"fmt"
	"log/slog"

	"github.com/bossmod/tracker/internal/config"
	"github.com/bossmod/tracker/internal/database"
	gormstorage "github.com/bossmod/tracker/internal/storage/gorm"
	"github.com/bossmod/tracker/pkg/core"
	"github.com/rs/zerolog"
)

// Backend wraps the GORM backend with the Postgres connection lifecycle.
type Backend struct {
	*gormstorage.Backend
	db  *database.Manager
	log *slog.Logger
}

// New connects to Postgres and migrates the schema. fallbackPath is where the
// local SQLite copy is written if Postgres is unavailable.
func New(cfg config.DBConfig, fallbackPath string, logger *slog.Logger, dbLog zerolog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mgr := database.NewManager(dbLog)
	if err := mgr.ConnectPostgres(cfg, fallbackPath); err != nil {
		return nil, err
	}
	if err := mgr.Setup(); err != nil {
		_ = mgr.Close()
		return nil, fmt.Errorf("failed to setup DB: %w", err)
	}

	log := logger.With("component", "postgres")
	if mgr.ShouldSaveLocal {
		log.Warn("Postgres unavailable, recording to local SQLite", "path", fallbackPath)
	}

	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{
			DB:          mgr.DB,
			Logger:      logger,
			SkipMigrate: true,
		}),
		db:  mgr,
		log: log,
	}, nil
}

// Local reports whether the backend fell back to SQLite.
func (b *Backend) Local() bool {
	return b.db.ShouldSaveLocal
}

// EndEncounter stores the trace; in fallback mode the local copy is dumped.
func (b *Backend) EndEncounter(trace core.EncounterTrace) error {
	if err := b.Backend.EndEncounter(trace); err != nil {
		return err
	}
	return b.dumpLocal()
}

// Close flushes the queues and releases the connection.
func (b *Backend) Close() error {
	if err := b.Backend.Close(); err != nil {
		return err
	}
	if err := b.dumpLocal(); err != nil {
		return err
	}
	return b.db.Close()
}

func (b *Backend) dumpLocal() error {
	if !b.db.ShouldSaveLocal || b.db.SqliteFilePath == "" {
		return nil
	}
	if err := b.db.DumpMemoryToDisk(); err != nil {
		b.log.Error("Error dumping local copy", "path", b.db.SqliteFilePath, "error", err)
		return err
	}
	return nil
}
