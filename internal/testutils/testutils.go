package testutils

import (
	"testing"
	"time"

	"github.com/astas888/manga-media-server/internal/config"
	"github.com/astas888/manga-media-server/internal/database"
)

// TestConfig creates a configuration suitable for testing: fast retries and a
// rate limit high enough that throttling never slows a test down.
func TestConfig(tempDir string) *config.Config {
	return &config.Config{
		ListenAddr:  "127.0.0.1:0",
		LogLevel:    "debug",
		DownloadDir: tempDir,

		DownloadSettings: config.DownloadConfig{
			MaxConcurrentJobs: 2,
			JobQueueSize:      16,
		},

		RetrySettings: config.RetryConfig{
			MaxAttempts:    3,
			BaseDelay:      time.Millisecond,
			MaxDelay:       5 * time.Millisecond,
			AttemptTimeout: time.Second,
		},

		RateLimitSettings: config.RateLimitConfig{
			InitialRate:    1000,
			MinRate:        1,
			MaxRate:        2000,
			SuccessStreak:  3,
			IncreaseFactor: 1.1,
			DecreaseFactor: 0.5,
		},
	}
}

// TestDatabase creates an in-memory SQLite history store.
func TestDatabase(t *testing.T) database.HistoryStore {
	t.Helper()

	store := database.NewSQLiteStore()
	if err := store.Init(":memory:"); err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	return store
}
