// Package testdb opens migrated databases for tests.
package testdb

import (
	"os"
	"path/filepath"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"patchtriage/internal/bootstrap/database"
	"patchtriage/internal/infrastructure/persistence/gormdb/model"
)

// SQLite returns a fresh on-disk database under tb.TempDir().
func SQLite(tb testing.TB) *gorm.DB {
	tb.Helper()
	return SQLiteFile(tb, filepath.Join(tb.TempDir(), "triage.sqlite"))
}

// SQLiteFile opens and migrates the database at dsn. Two calls with the same
// dsn give two independent connections to one store.
func SQLiteFile(tb testing.TB, dsn string) *gorm.DB {
	tb.Helper()

	db, err := database.OpenSQLite(dsn, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("get sql db: %v", err)
	}
	tb.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := db.AutoMigrate(model.All()...); err != nil {
		tb.Fatalf("auto migrate: %v", err)
	}
	return db
}

// Postgres connects to TEST_POSTGRES_DSN and empties every table, or skips
// the test when the variable is unset.
func Postgres(tb testing.TB) *gorm.DB {
	tb.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		tb.Skip("set TEST_POSTGRES_DSN to run postgres integration tests")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		tb.Fatalf("open postgres: %v", err)
	}
	if err := db.AutoMigrate(model.All()...); err != nil {
		tb.Fatalf("auto migrate: %v", err)
	}
	if err := db.Exec("TRUNCATE patches, patch_ratings, patch_claims, patch_claim_logs, users, triage_kv RESTART IDENTITY").Error; err != nil {
		tb.Fatalf("truncate tables: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("get sql db: %v", err)
	}
	tb.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}
