package config

import (
	"testing"
	"time"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig failed: %v", err)
	}

	if cfg.ListenAddr != DefaultListenAddr {
		t.Errorf("Expected default listen addr, got %q", cfg.ListenAddr)
	}
	if cfg.DownloadDir != DefaultDownloadDir {
		t.Errorf("Expected default download dir, got %q", cfg.DownloadDir)
	}
	if cfg.HistoryDB != DefaultDownloadDir+"/history.db" {
		t.Errorf("Expected history db derived from download dir, got %q", cfg.HistoryDB)
	}
	if cfg.DownloadSettings.MaxConcurrentJobs != DefaultMaxConcurrentJobs {
		t.Errorf("Expected default concurrency, got %d", cfg.DownloadSettings.MaxConcurrentJobs)
	}
	if cfg.RetrySettings.MaxAttempts != DefaultRetryMaxAttempts {
		t.Errorf("Expected default retry count, got %d", cfg.RetrySettings.MaxAttempts)
	}
	if cfg.RateLimitSettings.InitialRate != DefaultInitialRate {
		t.Errorf("Expected default initial rate, got %v", cfg.RateLimitSettings.InitialRate)
	}
}

func TestNewConfigFromEnvironment(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9090")
	t.Setenv("DOWNLOAD_DIR", "/tmp/manga")
	t.Setenv("MAX_CONCURRENT_JOBS", "5")
	t.Setenv("RETRY_COUNT", "7")
	t.Setenv("RETRY_DELAY", "2s")
	t.Setenv("SOURCE_RATE_INITIAL", "2.5")

	cfg, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig failed: %v", err)
	}

	if cfg.ListenAddr != ":9090" {
		t.Errorf("Expected :9090, got %q", cfg.ListenAddr)
	}
	if cfg.DownloadDir != "/tmp/manga" {
		t.Errorf("Expected /tmp/manga, got %q", cfg.DownloadDir)
	}
	if cfg.HistoryDB != "/tmp/manga/history.db" {
		t.Errorf("Expected derived history path, got %q", cfg.HistoryDB)
	}
	if cfg.DownloadSettings.MaxConcurrentJobs != 5 {
		t.Errorf("Expected 5 concurrent jobs, got %d", cfg.DownloadSettings.MaxConcurrentJobs)
	}
	if cfg.RetrySettings.MaxAttempts != 7 {
		t.Errorf("Expected 7 attempts, got %d", cfg.RetrySettings.MaxAttempts)
	}
	if cfg.RetrySettings.BaseDelay != 2*time.Second {
		t.Errorf("Expected 2s base delay, got %v", cfg.RetrySettings.BaseDelay)
	}
	if cfg.RateLimitSettings.InitialRate != 2.5 {
		t.Errorf("Expected initial rate 2.5, got %v", cfg.RateLimitSettings.InitialRate)
	}
}

func TestNewConfigExplicitHistoryDB(t *testing.T) {
	t.Setenv("HISTORY_DB", "/var/lib/manga/history.db")

	cfg, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig failed: %v", err)
	}
	if cfg.HistoryDB != "/var/lib/manga/history.db" {
		t.Errorf("Explicit HISTORY_DB ignored, got %q", cfg.HistoryDB)
	}
}

func TestNewConfigIgnoresMalformedValues(t *testing.T) {
	t.Setenv("MAX_CONCURRENT_JOBS", "many")
	t.Setenv("RETRY_DELAY", "soon")
	t.Setenv("SOURCE_RATE_INITIAL", "fast")

	cfg, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig failed: %v", err)
	}
	if cfg.DownloadSettings.MaxConcurrentJobs != DefaultMaxConcurrentJobs {
		t.Errorf("Expected fallback to default concurrency, got %d", cfg.DownloadSettings.MaxConcurrentJobs)
	}
	if cfg.RetrySettings.BaseDelay != DefaultRetryBaseDelay {
		t.Errorf("Expected fallback to default delay, got %v", cfg.RetrySettings.BaseDelay)
	}
	if cfg.RateLimitSettings.InitialRate != DefaultInitialRate {
		t.Errorf("Expected fallback to default rate, got %v", cfg.RateLimitSettings.InitialRate)
	}
}

func TestNewConfigValidation(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"empty download dir", "DOWNLOAD_DIR", ""},
		{"zero concurrency", "MAX_CONCURRENT_JOBS", "0"},
		{"negative queue", "JOB_QUEUE_SIZE", "-1"},
		{"zero attempts", "RETRY_COUNT", "0"},
		{"negative min rate", "SOURCE_RATE_MIN", "-1"},
		{"max below min", "SOURCE_RATE_MAX", "0.1"},
		{"initial out of range", "SOURCE_RATE_INITIAL", "100"},
		{"streak below one", "SOURCE_RATE_SUCCESS_STREAK", "0"},
		{"increase factor at one", "SOURCE_RATE_INCREASE_FACTOR", "1"},
		{"decrease factor at one", "SOURCE_RATE_DECREASE_FACTOR", "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := NewConfig(); err == nil {
				t.Errorf("Expected validation to reject %s=%q", tt.key, tt.value)
			}
		})
	}
}
