package datastore

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nongbuhae/cropdoc/internal/conf"
	"github.com/nongbuhae/cropdoc/internal/logger"
)

// SQLiteStore implements Interface on SQLite
type SQLiteStore struct {
	DataStore
	Settings *conf.Settings
}

// Open creates the database file if needed and migrates the schema.
func (store *SQLiteStore) Open() error {
	path := store.Settings.Database.SQLite.Path
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return dbError(fmt.Errorf("failed to create database directory: %w", err), "open_sqlite")
		}
	}

	// WAL lets the listing queries run while a diagnosis is being written.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: newGormLogger(store.Settings.Database.SlowQueryThreshold),
	})
	if err != nil {
		return dbError(fmt.Errorf("failed to open SQLite database: %w", err), "open_sqlite")
	}

	store.DB = db
	GetLogger().Info("SQLite database opened", logger.String("path", path))
	return performAutoMigration(db, "SQLite")
}

// Close closes the SQLite connection
func (store *SQLiteStore) Close() error {
	return closeDB(store.DB)
}
