package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openSQLite opens the default store. The sweeper and the request handlers
// share this handle, so file-backed databases run in WAL mode with a busy
// timeout to ride out overlapping writes instead of failing with SQLITE_BUSY.
func openSQLite(cfg Config) (*gorm.DB, error) {
	if cfg.DSN == "" && !isMemoryPath(cfg.Path) {
		if err := ensureDir(strings.TrimSpace(cfg.Path)); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(buildSQLiteDSN(cfg)), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: false,
	})
	if err != nil {
		return nil, err
	}

	if err := enableForeignKeys(db); err != nil {
		return nil, err
	}

	return db, nil
}

func buildSQLiteDSN(cfg Config) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	if isMemoryPath(cfg.Path) {
		return "file::memory:?cache=shared&_foreign_keys=1"
	}
	path := filepath.ToSlash(strings.TrimSpace(cfg.Path))
	return fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000", path)
}

func isMemoryPath(path string) bool {
	path = strings.TrimSpace(path)
	return path == "" || strings.EqualFold(path, ":memory:")
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// enableForeignKeys turns on referential integrity so promise cascade
// deletes cannot leave orphaned milestones or notes behind.
func enableForeignKeys(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil && err != sql.ErrConnDone {
		return err
	}
	return nil
}
