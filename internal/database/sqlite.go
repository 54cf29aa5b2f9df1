package database

import (
	"context"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type SQLiteStore struct {
	db *gorm.DB
}

func NewSQLiteStore() *SQLiteStore {
	return &SQLiteStore{}
}

func (s *SQLiteStore) Init(path string) error {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	s.db = db

	if err := db.AutoMigrate(&JobRecord{}); err != nil {
		return fmt.Errorf("auto migration failed: %w", err)
	}
	return nil
}

// SaveRecord upserts a terminal snapshot; retried writes stay idempotent per job id.
func (s *SQLiteStore) SaveRecord(ctx context.Context, record *JobRecord) error {
	return s.db.WithContext(ctx).Save(record).Error
}

// ListRecords returns terminal jobs, most recently finished first.
func (s *SQLiteStore) ListRecords(ctx context.Context, limit int) ([]JobRecord, error) {
	var records []JobRecord
	query := s.db.WithContext(ctx).Order("finished_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
