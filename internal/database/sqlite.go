package database

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/notebook/backend/internal/store"
	"github.com/MarcoPoloResearchLab/notebook/backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
// The pool holds a single connection, so callers must not query outside an open
// transaction while it runs.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := store.AutoMigrate(db); err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&users.User{}, &migrationRecord{}); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return db, nil
}
