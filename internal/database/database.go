package database

import (
	"fmt"
	"strings"

	"github.com/gdg-garage/event-checkin/internal/config"
	"github.com/gdg-garage/event-checkin/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the configured database and migrates the schema.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DatabaseDriver {
	case "postgres":
		dialector = postgres.Open(cfg.DatabaseDSN)
	default:
		// Foreign keys are off by default in sqlite and the busy timeout keeps
		// concurrent check-ins waiting on the writer lock instead of failing.
		dialector = sqlite.Open(cfg.DatabasePath + "?_foreign_keys=on&_busy_timeout=5000")
	}

	db, err := Open(dialector)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.DatabaseDriver, err)
	}
	return db, nil
}

// Open opens a gorm connection with error translation enabled and migrates
// every model. Tests call it with an in-memory sqlite dialector.
func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.APIKey{},
		&models.Participant{},
		&models.Event{},
		&models.Enrollment{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// OpenInMemory opens a private in-memory sqlite database named after name.
// The pool is pinned to one connection so every query sees the same schema.
func OpenInMemory(name string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", strings.NewReplacer("/", "_", " ", "_").Replace(name))
	db, err := Open(sqlite.Open(dsn))
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}
