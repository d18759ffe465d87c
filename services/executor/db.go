package executor

import (
	"fmt"

	"arbitrationd/native/treasury"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenStore opens the configured native/treasury.Store backend. "sqlite"
// (the default) opens an embedded, pure-Go database via SQLiteStore and
// needs no running server; "postgres" dials a production database via
// GormStore. Both speak the same domain schema.
func OpenStore(driver, dsn string) (treasury.Store, error) {
	switch driver {
	case "sqlite", "":
		store, err := NewSQLiteStore(dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	case "postgres":
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
		if err != nil {
			return nil, fmt.Errorf("open postgres database: %w", err)
		}
		if err := AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("migrate postgres schema: %w", err)
		}
		return NewGormStore(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
