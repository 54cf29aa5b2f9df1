package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/astas888/manga-media-server/internal/config"
	"github.com/astas888/manga-media-server/internal/logutils"
)

// counterDecayThreshold triggers halving of the cumulative counters so the
// derived error rate tracks recent behavior instead of ancient history.
const counterDecayThreshold = 200

// AdaptiveLimiter throttles requests to one source and adapts the allowed rate
// from observed outcomes: halve on a source-attributable failure, grow by a
// small factor after a streak of successes. Backing off fast and recovering
// slowly keeps the source from banning the client.
type AdaptiveLimiter struct {
	source  string
	limiter *rate.Limiter
	cfg     config.RateLimitConfig

	mu                   sync.Mutex
	currentRate          float64
	consecutiveSuccesses int
	consecutiveErrors    int
	successCount         int64
	errorCount           int64
}

func NewAdaptiveLimiter(sourceName string, cfg config.RateLimitConfig) *AdaptiveLimiter {
	initial := clamp(cfg.InitialRate, cfg.MinRate, cfg.MaxRate)
	return &AdaptiveLimiter{
		source:      sourceName,
		limiter:     rate.NewLimiter(rate.Limit(initial), 1),
		cfg:         cfg,
		currentRate: initial,
	}
}

// Acquire blocks until one request may be sent under the current rate, or ctx is done.
func (l *AdaptiveLimiter) Acquire(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// ReportOutcome records one finished attempt and adjusts the rate.
// A failure cuts the rate immediately; successes only raise it after a full streak.
func (l *AdaptiveLimiter) ReportOutcome(success bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if success {
		l.successCount++
		l.consecutiveErrors = 0
		l.consecutiveSuccesses++
		if l.consecutiveSuccesses >= l.cfg.SuccessStreak {
			l.consecutiveSuccesses = 0
			l.adjustRate(l.currentRate * l.cfg.IncreaseFactor)
		}
	} else {
		l.errorCount++
		l.consecutiveSuccesses = 0
		l.consecutiveErrors++
		l.adjustRate(l.currentRate * l.cfg.DecreaseFactor)
	}

	if l.successCount+l.errorCount > counterDecayThreshold {
		l.successCount /= 2
		l.errorCount /= 2
	}
}

// adjustRate applies the new rate clamped to [MinRate, MaxRate]. Caller holds l.mu.
func (l *AdaptiveLimiter) adjustRate(target float64) {
	target = clamp(target, l.cfg.MinRate, l.cfg.MaxRate)
	if target == l.currentRate {
		return
	}

	logutils.Log.WithFields(logutils.Fields{
		"source":   l.source,
		"old_rate": l.currentRate,
		"new_rate": target,
	}).Debug("Adjusted source rate limit")

	l.currentRate = target
	l.limiter.SetLimit(rate.Limit(target))
}

// Rate returns the current allowed rate in requests per second.
func (l *AdaptiveLimiter) Rate() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentRate
}

// Status is a point-in-time view of one source limiter for the dashboard.
type Status struct {
	Source    string  `json:"source"`
	Limit     float64 `json:"limit"`
	Success   int64   `json:"success"`
	Error     int64   `json:"error"`
	ErrorRate float64 `json:"error_rate"`
}

// Stats derives the error rate on read; it is never stored.
func (l *AdaptiveLimiter) Stats() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := l.successCount + l.errorCount
	var errorRate float64
	if total > 0 {
		errorRate = float64(l.errorCount) / float64(total)
	}
	return Status{
		Source:    l.source,
		Limit:     l.currentRate,
		Success:   l.successCount,
		Error:     l.errorCount,
		ErrorRate: errorRate,
	}
}

func clamp(v, minV, maxV float64) float64 {
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}
