package database

import (
	"context"

	"github.com/astas888/manga-media-server/internal/logutils"
)

// HistoryStore persists terminal job snapshots for the dashboard.
type HistoryStore interface {
	SaveRecord(ctx context.Context, record *JobRecord) error
	ListRecords(ctx context.Context, limit int) ([]JobRecord, error)
}

func NewDatabase(path string) (HistoryStore, error) {
	store := NewSQLiteStore()
	if err := store.Init(path); err != nil {
		logutils.Log.WithError(err).Error("Failed to initialize the history database")
		return nil, err
	}

	logutils.Log.Info("History database initialized successfully")
	return store, nil
}
