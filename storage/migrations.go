package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"gorm.io/gorm"

	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations brings the schema up to date. Postgres databases run the
// versioned goose migrations; SQLite databases are auto-migrated and seeded,
// which is only meant for development and tests.
func RunMigrations(db *gorm.DB) error {
	if IsSQLite(db) {
		if err := db.AutoMigrate(models.All()...); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
		return SeedRoles(db)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql db: %w", err)
	}
	return migrate(sqlDB, "postgres", migrationsFS, "migrations")
}

// migrate applies the goose migrations found in dir of fsys.
func migrate(sqlDB *sql.DB, dialect string, fsys fs.FS, dir string) error {
	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.Up(sqlDB, dir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// SeedRoles makes sure every known role has a row.
func SeedRoles(db *gorm.DB) error {
	for _, name := range models.RoleNames {
		role := models.Role{Name: string(name)}
		if err := db.Where(models.Role{Name: string(name)}).FirstOrCreate(&role).Error; err != nil {
			return fmt.Errorf("seed role %s: %w", name, err)
		}
	}
	return nil
}
