package database

import (
	"fmt"
	"strings"
	"time"

	"keepr-backend/pkg/config"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const sqlitePrefix = "sqlite://"

// Open picks the driver from DATABASE_URL. A sqlite:// URL opens a local file for development.
func Open(cfg *config.Config) (*gorm.DB, error) {
	if strings.HasPrefix(cfg.DatabaseURL, sqlitePrefix) {
		return NewSQLiteConnection(strings.TrimPrefix(cfg.DatabaseURL, sqlitePrefix), gormLogLevel(cfg.Env))
	}
	return NewPostgresConnection(cfg)
}

// NewPostgresConnection opens the shared store. Row-level upserts rely on postgres ON CONFLICT.
func NewPostgresConnection(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormLogLevel(cfg.Env)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// NewSQLiteConnection opens a pure-Go sqlite database. ":memory:" gives a private
// database per call, which is what repository tests use.
func NewSQLiteConnection(dsn string, level gormlogger.LogLevel) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	// sqlite serializes writers, and an in-memory database lives on a single connection
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}

func gormLogLevel(env string) gormlogger.LogLevel {
	if env == "development" {
		return gormlogger.Info
	}
	return gormlogger.Warn
}
