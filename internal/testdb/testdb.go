// Package testdb provides throwaway databases for package tests.
package testdb

import (
	"fmt"
	"testing"

	"tracker/database"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// New returns a migrated, private in-memory sqlite database that is
// closed when the test ends.
func New(tb testing.TB) *gorm.DB {
	tb.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		tb.Fatalf("open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("get test database handle: %v", err)
	}
	// a single connection keeps the shared in-memory database alive and
	// serializes writers
	sqlDB.SetMaxOpenConns(1)

	if err := database.RunMigrations(db); err != nil {
		tb.Fatalf("migrate test database: %v", err)
	}

	tb.Cleanup(func() { sqlDB.Close() })
	return db
}
