// Package history persists the append-only cross-run metric record. The
// store exposes only Append and ReadAll; rows are never edited in place so
// repeatability analysis stays trustworthy.
package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"banbench/internal/domain"
)

// Store wraps the run-metrics table. One writer process owns the store at a
// time; Append is transactional so a concurrent reader never observes a
// partially written row.
type Store struct {
	db *gorm.DB
}

// Open connects to Postgres when a DSN is configured and falls back to a
// local sqlite file otherwise, so single-host runs need no database server.
func Open(dsn, sqlitePath string) (*Store, error) {
	var dialector gorm.Dialector
	switch {
	case dsn != "":
		dialector = postgres.Open(dsn)
	case sqlitePath != "":
		if err := os.MkdirAll(filepath.Dir(sqlitePath), os.ModePerm); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
		dialector = sqlite.Open(sqlitePath)
	default:
		return nil, &domain.ConfigurationError{Reason: "history store needs a postgres DSN or a sqlite path"}
	}
	return OpenWithDialector(dialector)
}

// OpenWithDialector exists so tests can run against an in-memory database.
func OpenWithDialector(dialector gorm.Dialector) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	if err := db.AutoMigrate(&domain.RunMetrics{}); err != nil {
		return nil, fmt.Errorf("migrate history store: %w", err)
	}
	log.Debug("history store ready", "dialect", dialector.Name())
	return &Store{db: db}, nil
}

// Append writes one run's metrics. Duplicate run ids are rejected by the
// unique index; the history is insertion-ordered and append-only.
func (s *Store) Append(ctx context.Context, run *domain.RunMetrics) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(run).Error
	})
}

// ReadAll returns every run in append order.
func (s *Store) ReadAll(ctx context.Context) ([]domain.RunMetrics, error) {
	var runs []domain.RunMetrics
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// Len reports the number of recorded runs.
func (s *Store) Len(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&domain.RunMetrics{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
