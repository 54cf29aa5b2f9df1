package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/astas888/manga-media-server/internal/config"
	"github.com/astas888/manga-media-server/internal/logutils"
)

// ExhaustedError is returned when every allowed attempt failed with a
// retryable cause. Cause is the error of the last attempt.
type ExhaustedError struct {
	Attempts int
	Cause    error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Cause
}

// OutcomeReporter receives the outcome of every attempt so adaptive throttling
// reacts to real failure signals, not just retry bookkeeping.
type OutcomeReporter interface {
	ReportOutcome(success bool)
}

// Policy wraps one idempotent unit of work with bounded exponential backoff.
type Policy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
}

func NewPolicy(cfg config.RetryConfig) Policy {
	return Policy{
		MaxAttempts:    cfg.MaxAttempts,
		BaseDelay:      cfg.BaseDelay,
		MaxDelay:       cfg.MaxDelay,
		AttemptTimeout: cfg.AttemptTimeout,
	}
}

// Do runs op until it succeeds, fails fatally, exhausts MaxAttempts, or ctx is
// cancelled. Each attempt gets its own deadline. Fatal failures surface after
// exactly one attempt. Cancellation is never counted against the source.
func (p Policy) Do(ctx context.Context, reporter OutcomeReporter, op func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		attemptCtx := ctx
		cancel := func() {}
		if p.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
		}
		err := op(attemptCtx)
		cancel()

		if err == nil {
			if reporter != nil {
				reporter.ReportOutcome(true)
			}
			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if reporter != nil {
			// Fatal-but-clean responses (e.g. 404) count as successful source
			// interactions: the source answered, only its content was wrong.
			reporter.ReportOutcome(!SourceAttributable(err))
		}

		if !Retryable(err) {
			return err
		}
		lastErr = err

		if attempt == p.MaxAttempts {
			break
		}

		delay := p.backoff(attempt)
		logutils.Log.WithFields(logutils.Fields{
			"attempt": attempt,
			"delay":   delay,
		}).WithError(err).Debug("Attempt failed, backing off")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return &ExhaustedError{Attempts: p.MaxAttempts, Cause: lastErr}
}

// backoff computes the wait after the k-th failed attempt:
// min(MaxDelay, BaseDelay * 2^(k-1)) scaled by a jitter factor drawn uniformly
// from [0.5, 1.5] so concurrent jobs hitting one source don't retry in lockstep.
func (p Policy) backoff(attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay || delay < 0 {
			delay = p.MaxDelay
			break
		}
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	jitter := 0.5 + rand.Float64()
	return time.Duration(float64(delay) * jitter)
}
