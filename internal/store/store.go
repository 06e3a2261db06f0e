// Package store persists claims, resolutions, aliases and pipeline state in SQLite via gorm.
package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ppiankov/rollcall/internal/model"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// Store is the rollcall database
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Open opens (creating if needed) the SQLite database and migrates the schema.
// Path ":memory:" opens a private in-memory database.
func Open(cfg model.DatabaseConfig) (*Store, error) {
	logLevel := logger.Silent
	if cfg.Debug {
		logLevel = logger.Info
	}

	path := cfg.Path
	if path == "" {
		path = "rollcall.db"
	}
	dsn := path
	if path != ":memory:" && !strings.Contains(path, "?") {
		dsn = fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON", path)
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	// SQLite allows one writer; every :memory: connection is a separate database
	sqlDB.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.Migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates or updates every table
func (s *Store) Migrate() error {
	err := s.db.AutoMigrate(
		&claimRow{},
		&resolutionRow{},
		&aliasRow{},
		&artifactRow{},
		&eventRow{},
		&counterRow{},
		&alertRow{},
		&trustRow{},
	)
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// DB returns the underlying gorm handle
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close closes the database
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SetClock overrides the time source used for row timestamps
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}
