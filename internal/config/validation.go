package config

import (
	"fmt"
)

func (c *Config) validate() error {
	if err := c.validateRequiredFields(); err != nil {
		return err
	}

	if err := c.validateDownloadSettings(); err != nil {
		return err
	}

	if err := c.validateRetrySettings(); err != nil {
		return err
	}

	return c.validateRateLimitSettings()
}

func (c *Config) validateRequiredFields() error {
	if c.DownloadDir == "" {
		return fmt.Errorf("DOWNLOAD_DIR must not be empty")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("LISTEN_ADDR must not be empty")
	}
	return nil
}

func (c *Config) validateDownloadSettings() error {
	if c.DownloadSettings.MaxConcurrentJobs < 1 {
		return fmt.Errorf("MAX_CONCURRENT_JOBS must be at least 1, got %d", c.DownloadSettings.MaxConcurrentJobs)
	}
	if c.DownloadSettings.JobQueueSize < 1 {
		return fmt.Errorf("JOB_QUEUE_SIZE must be at least 1, got %d", c.DownloadSettings.JobQueueSize)
	}
	return nil
}

func (c *Config) validateRetrySettings() error {
	r := c.RetrySettings
	if r.MaxAttempts < 1 {
		return fmt.Errorf("RETRY_COUNT must be at least 1, got %d", r.MaxAttempts)
	}
	if r.BaseDelay < 0 {
		return fmt.Errorf("RETRY_DELAY must not be negative, got %v", r.BaseDelay)
	}
	if r.MaxDelay < r.BaseDelay {
		return fmt.Errorf("RETRY_MAX_DELAY (%v) must not be below RETRY_DELAY (%v)", r.MaxDelay, r.BaseDelay)
	}
	if r.AttemptTimeout < 0 {
		return fmt.Errorf("FETCH_TIMEOUT must not be negative, got %v", r.AttemptTimeout)
	}
	return nil
}

func (c *Config) validateRateLimitSettings() error {
	rl := c.RateLimitSettings
	if rl.MinRate <= 0 {
		return fmt.Errorf("SOURCE_RATE_MIN must be positive, got %v", rl.MinRate)
	}
	if rl.MaxRate < rl.MinRate {
		return fmt.Errorf("SOURCE_RATE_MAX (%v) must not be below SOURCE_RATE_MIN (%v)", rl.MaxRate, rl.MinRate)
	}
	if rl.InitialRate < rl.MinRate || rl.InitialRate > rl.MaxRate {
		return fmt.Errorf("SOURCE_RATE_INITIAL (%v) must be within [%v, %v]", rl.InitialRate, rl.MinRate, rl.MaxRate)
	}
	if rl.SuccessStreak < 1 {
		return fmt.Errorf("SOURCE_RATE_SUCCESS_STREAK must be at least 1, got %d", rl.SuccessStreak)
	}
	if rl.IncreaseFactor <= 1 {
		return fmt.Errorf("SOURCE_RATE_INCREASE_FACTOR must be above 1, got %v", rl.IncreaseFactor)
	}
	if rl.DecreaseFactor <= 0 || rl.DecreaseFactor >= 1 {
		return fmt.Errorf("SOURCE_RATE_DECREASE_FACTOR must be in (0, 1), got %v", rl.DecreaseFactor)
	}
	return nil
}
