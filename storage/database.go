package storage

import (
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const sqlitePrefix = "sqlite://"

// InitDB opens the database named by dsn. Postgres DSNs (postgres://) are the
// production target; sqlite:// DSNs serve local development and tests.
func InitDB(dsn string) (*gorm.DB, error) {
	var driver gorm.Dialector
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		driver = postgres.Open(dsn)
	case strings.HasPrefix(dsn, sqlitePrefix):
		driver = sqlite.Open(strings.TrimPrefix(dsn, sqlitePrefix))
	default:
		return nil, fmt.Errorf("unsupported or missing DATABASE_DSN: %q", dsn)
	}

	db, err := gorm.Open(driver, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if IsSQLite(db) {
		// A single connection serializes writers and keeps :memory: databases alive.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access sql db: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	}

	return db, nil
}

func IsSQLite(db *gorm.DB) bool {
	return db.Dialector.Name() == "sqlite"
}
