// Package sqlite registers an embedded FactStore for development and tests.
package sqlite

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/chirino/student-memory-service/internal/config"
	"github.com/chirino/student-memory-service/internal/dataencryption"
	"github.com/chirino/student-memory-service/internal/plugin/store/gormstore"
	registrymigrate "github.com/chirino/student-memory-service/internal/registry/migrate"
	registrystore "github.com/chirino/student-memory-service/internal/registry/store"
	sqlite3 "github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// DefaultDSN is used when no database URL is configured.
const DefaultDSN = "file:student-memory.db?_busy_timeout=5000&_foreign_keys=on"

func init() {
	registrystore.Register(registrystore.Plugin{
		Name:   "sqlite",
		Loader: load,
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &sqliteMigrator{}})
}

func dsn(cfg *config.Config) string {
	if cfg == nil || cfg.DBURL == "" {
		return DefaultDSN
	}
	return cfg.DBURL
}

func load(ctx context.Context) (registrystore.FactStore, error) {
	cfg := config.FromContext(ctx)
	ring, err := dataencryption.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return Open(ctx, dsn(cfg), ring)
}

// Open connects to the sqlite database at dsn. sqlite serializes writers, so
// the pool is held to a single connection.
func Open(ctx context.Context, dsn string, ring *dataencryption.KeyRing) (*gormstore.Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), gormstore.GormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying db: %w", err)
	}
	gormstore.ConfigurePool(ctx, sqlDB, 1, 1)
	return gormstore.New(db, ring, isTransient), nil
}

// AutoMigrate creates or updates the tables used by the store.
func AutoMigrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(gormstore.Models()...)
}

func isTransient(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

type sqliteMigrator struct{}

func (m *sqliteMigrator) Name() string { return "sqlite-schema" }
func (m *sqliteMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart || cfg.DatastoreType != "sqlite" {
		return nil
	}
	log.Info("Running migration", "name", m.Name())
	db, err := gorm.Open(sqlite.Open(dsn(cfg)), gormstore.GormConfig())
	if err != nil {
		return fmt.Errorf("migration: failed to open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := AutoMigrate(ctx, db); err != nil {
		return fmt.Errorf("migration: %w", err)
	}
	log.Info("SQLite schema migration complete")
	return nil
}
