// Package datastore persists reference diseases, users and diagnosis records
// with GORM on SQLite or MySQL.
package datastore

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/nongbuhae/cropdoc/internal/conf"
	"github.com/nongbuhae/cropdoc/internal/errors"
)

// Interface is the persistence contract used by the rest of the service.
// Lookups that miss return nil without an error unless stated otherwise.
type Interface interface {
	Open() error
	Close() error

	// DiseaseByCropAndName returns the reference entry for (crop, name).
	DiseaseByCropAndName(ctx context.Context, crop, name string) (*Disease, error)
	// DiseaseByID returns the reference entry with the given id.
	DiseaseByID(ctx context.Context, id string) (*Disease, error)
	// UpsertDiseases inserts or replaces reference entries by id.
	UpsertDiseases(ctx context.Context, diseases []Disease) error
	CountDiseases(ctx context.Context) (int64, error)

	// GetUser returns the user or an error wrapping errors.ErrUserNotFound.
	GetUser(ctx context.Context, id string) (*User, error)
	SaveUser(ctx context.Context, user *User) error

	// SaveDiagnosis inserts a record after checking its identity invariants.
	SaveDiagnosis(ctx context.Context, record *DiagnosisRecord) error
	ListDiagnoses(ctx context.Context, filters *DiagnosisFilters) ([]DiagnosisRecord, error)
	// DeleteDiagnosis removes the record owned by userID and returns it.
	// A missing or foreign record yields an error wrapping errors.ErrNotFound.
	DeleteDiagnosis(ctx context.Context, id uint, userID string) (*DiagnosisRecord, error)
}

// DataStore implements the shared part of Interface on a *gorm.DB.
type DataStore struct {
	DB *gorm.DB
}

// New returns the store selected by settings.Database.Type. The returned
// store must be opened before use.
func New(settings *conf.Settings) (Interface, error) {
	switch settings.Database.Type {
	case "sqlite":
		return &SQLiteStore{Settings: settings}, nil
	case "mysql":
		return &MySQLStore{Settings: settings}, nil
	default:
		return nil, errors.Newf("unsupported database type %q", settings.Database.Type).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// models lists every table managed by AutoMigrate.
func models() []any {
	return []any{&Disease{}, &User{}, &DiagnosisRecord{}}
}

// performAutoMigration creates or updates the schema.
func performAutoMigration(db *gorm.DB, dbType string) error {
	log := GetLogger()
	if err := db.AutoMigrate(models()...); err != nil {
		return errors.New(fmt.Errorf("failed to auto-migrate %s database: %w", dbType, err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "auto_migrate").
			Context("db_type", dbType).
			Build()
	}
	log.Debug("database schema migrated", loggerString("db_type", dbType))
	return nil
}

// closeDB closes the underlying sql.DB of a gorm handle.
func closeDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database connection is not initialized")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to retrieve generic DB object: %w", err)
	}
	return sqlDB.Close()
}

func dbError(err error, operation string) error {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation).
		Build()
}
