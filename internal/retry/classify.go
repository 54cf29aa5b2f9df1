package retry

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/astas888/manga-media-server/internal/source"
)

// Retryable reports whether a failed attempt may be tried again: timeouts,
// HTTP 429 and 5xx, and transport-level failures. Everything else (404, 401,
// malformed content) is fatal and aborts without consuming attempts.
func Retryable(err error) bool {
	if isTimeout(err) {
		return true
	}

	var reqErr *source.RequestError
	if errors.As(err, &reqErr) {
		switch {
		case reqErr.StatusCode == 0:
			return true
		case reqErr.StatusCode == http.StatusTooManyRequests:
			return true
		case reqErr.StatusCode >= 500:
			return true
		}
	}
	return false
}

// SourceAttributable reports whether a failure signals pressure from the
// source itself (429/403/5xx, timeouts, dropped connections) and should push
// the adaptive rate limiter down.
func SourceAttributable(err error) bool {
	if isTimeout(err) {
		return true
	}

	var reqErr *source.RequestError
	if errors.As(err, &reqErr) {
		switch {
		case reqErr.StatusCode == 0:
			return true
		case reqErr.StatusCode == http.StatusTooManyRequests:
			return true
		case reqErr.StatusCode == http.StatusForbidden:
			return true
		case reqErr.StatusCode >= 500:
			return true
		}
	}
	return false
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
