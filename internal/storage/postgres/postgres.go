// Package postgres implements the storage.Backend interface on PostgreSQL
// through the GORM backend.
package postgres

import (
	"fmt"
	"log/slog"

	"github.com/OCAP2/clustermap/internal/config"
	"github.com/OCAP2/clustermap/internal/database"
	gormstorage "github.com/OCAP2/clustermap/internal/storage/gorm"
	"github.com/rs/zerolog"
)

// Backend wraps the GORM backend with a managed Postgres connection.
type Backend struct {
	*gormstorage.Backend
	cfg     config.PostgresConfig
	manager *database.Manager
	log     *slog.Logger
}

// New creates a Postgres backend. The connection is opened by Init.
func New(cfg config.PostgresConfig, dbLog zerolog.Logger, log *slog.Logger) *Backend {
	if log == nil {
		log = slog.Default()
	}
	return &Backend{
		cfg:     cfg,
		manager: database.NewManager(dbLog),
		log:     log,
	}
}

// Init connects, validates the connection and migrates the schema.
func (b *Backend) Init() error {
	if err := b.manager.OpenPostgres(b.cfg); err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := b.manager.Migrate(gormstorage.Models...); err != nil {
		return err
	}

	b.Backend = gormstorage.New(gormstorage.Dependencies{
		DB:     b.manager.DB,
		Logger: b.log,
	})
	return b.Backend.Init()
}

// Close flushes queued revisions and closes the connection pool.
func (b *Backend) Close() error {
	if b.Backend != nil {
		if err := b.Backend.Close(); err != nil {
			return err
		}
	}
	return b.manager.Close()
}
