package config

import (
	"os"
	"strconv"
	"time"

	"github.com/astas888/manga-media-server/internal/utils"
)

const (
	DefaultListenAddr        = ":8080"
	DefaultDownloadDir       = "./downloads"
	DefaultMaxConcurrentJobs = 2
	DefaultJobQueueSize      = 64

	DefaultRetryMaxAttempts = 5
	DefaultRetryBaseDelay   = 500 * time.Millisecond
	DefaultRetryMaxDelay    = 30 * time.Second
	DefaultAttemptTimeout   = 30 * time.Second

	DefaultInitialRate    = 3.0
	DefaultMinRate        = 0.5
	DefaultMaxRate        = 10.0
	DefaultSuccessStreak  = 10
	DefaultIncreaseFactor = 1.1
	DefaultDecreaseFactor = 0.5
)

type Config struct {
	ListenAddr  string
	APIKey      string
	LogLevel    string
	DownloadDir string
	HistoryDB   string

	DownloadSettings  DownloadConfig
	RetrySettings     RetryConfig
	RateLimitSettings RateLimitConfig
}

type DownloadConfig struct {
	MaxConcurrentJobs int
	JobQueueSize      int
}

type RetryConfig struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
}

// RateLimitConfig bounds the per-source adaptive limiter. Rates are requests per second.
type RateLimitConfig struct {
	InitialRate    float64
	MinRate        float64
	MaxRate        float64
	SuccessStreak  int
	IncreaseFactor float64
	DecreaseFactor float64
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func NewConfig() (*Config, error) {
	config := &Config{
		ListenAddr:  getEnv("LISTEN_ADDR", DefaultListenAddr),
		APIKey:      getEnv("API_KEY", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DownloadDir: getEnv("DOWNLOAD_DIR", DefaultDownloadDir),
		HistoryDB:   getEnv("HISTORY_DB", ""),

		DownloadSettings: DownloadConfig{
			MaxConcurrentJobs: getEnvInt("MAX_CONCURRENT_JOBS", DefaultMaxConcurrentJobs),
			JobQueueSize:      getEnvInt("JOB_QUEUE_SIZE", DefaultJobQueueSize),
		},

		RetrySettings: RetryConfig{
			MaxAttempts:    getEnvInt("RETRY_COUNT", DefaultRetryMaxAttempts),
			BaseDelay:      getEnvDuration("RETRY_DELAY", DefaultRetryBaseDelay),
			MaxDelay:       getEnvDuration("RETRY_MAX_DELAY", DefaultRetryMaxDelay),
			AttemptTimeout: getEnvDuration("FETCH_TIMEOUT", DefaultAttemptTimeout),
		},

		RateLimitSettings: RateLimitConfig{
			InitialRate:    getEnvFloat("SOURCE_RATE_INITIAL", DefaultInitialRate),
			MinRate:        getEnvFloat("SOURCE_RATE_MIN", DefaultMinRate),
			MaxRate:        getEnvFloat("SOURCE_RATE_MAX", DefaultMaxRate),
			SuccessStreak:  getEnvInt("SOURCE_RATE_SUCCESS_STREAK", DefaultSuccessStreak),
			IncreaseFactor: getEnvFloat("SOURCE_RATE_INCREASE_FACTOR", DefaultIncreaseFactor),
			DecreaseFactor: getEnvFloat("SOURCE_RATE_DECREASE_FACTOR", DefaultDecreaseFactor),
		},
	}

	if config.HistoryDB == "" {
		config.HistoryDB = config.DownloadDir + "/history.db"
	}

	if err := config.validate(); err != nil {
		return nil, utils.WrapError(err, "configuration validation failed", nil)
	}

	return config, nil
}
